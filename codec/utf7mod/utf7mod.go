// Package utf7mod implements RFC 3501 §5.1.3 "modified UTF-7", the
// encoding IMAP uses for mailbox names on the wire.
//
// Adapted from the teacher's imap/imapparser/utf7mod package. That
// decoder is deliberately lenient ("There are several MUST requirements
// in the spec that we relax for decoding") because it only has to cope
// with whatever a real IMAP server sends. This port is used to validate
// folder names a client receives and must reject anything that is not
// the unique canonical encoding, per spec.md §4.2/§8 Testable Property 4.
package utf7mod

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrInvalidUTF7 is returned for any violation of the canonical encoding
// rules: bad base64, non-canonical run length, non-zero padding bits,
// mergeable adjacent runs, lone surrogates, or non-printable literal
// bytes outside an encoded region.
var ErrInvalidUTF7 = errors.New("utf7mod: invalid modified UTF-7")

// encodeModB64 is "modified BASE64": standard base64 with "," instead
// of "/", and no padding.
const encodeModB64 = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,"

var b64 = base64.NewEncoding(encodeModB64).WithPadding(base64.NoPadding).Strict()

// Encode returns the modified UTF-7 encoding of a UTF-8 string.
//
// Two input bytes expand to at most seven output bytes (spec.md §4.2).
func Encode(s string) string {
	return string(AppendEncode(nil, []byte(s)))
}

// Decode returns the UTF-8 decoding of a modified UTF-7 byte string,
// rejecting anything that is not the unique canonical encoding.
func Decode(s string) (string, error) {
	dst, err := AppendDecode(nil, []byte(s))
	if err != nil {
		return "", err
	}
	return string(dst), nil
}

// AppendEncode appends the modified UTF-7 encoding of src to dst.
func AppendEncode(dst, src []byte) []byte {
	for len(src) > 0 {
		r, sz := utf8.DecodeRune(src)
		switch {
		case r == '&':
			dst = append(dst, '&', '-')
			src = src[1:]
			continue
		case r < utf8.RuneSelf:
			dst = append(dst, byte(r))
			src = src[1:]
			continue
		}

		// Shift in: encode a maximal run of non-ASCII runes as
		// base64'd UTF-16BE. Merging the whole run into one shift
		// sequence (rather than emitting one per rune) is what keeps
		// the output canonical - see the "adjacent runs" decoder rule.
		var scratch []byte
		for len(src) > 0 {
			r, sz = utf8.DecodeRune(src)
			if r < utf8.RuneSelf {
				break
			}
			src = src[sz:]
			if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
				scratch = append(scratch, byte(r1>>8), byte(r1))
				r = r2
			}
			scratch = append(scratch, byte(r>>8), byte(r))
		}

		n := b64.EncodedLen(len(scratch))
		dst = append(dst, '&')
		dst = append(dst, make([]byte, n)...)
		b64.Encode(dst[len(dst)-n:], scratch)
		dst = append(dst, '-')
	}
	return dst
}

// AppendDecode appends the UTF-8 decoding of src to dst, or returns
// ErrInvalidUTF7 (wrapped with context) on the first violation.
func AppendDecode(dst, src []byte) ([]byte, error) {
	prevWasShiftEnd := false
	for len(src) > 0 {
		c := src[0]

		if c != '&' {
			if c < 0x20 || c > 0x7E {
				return nil, fmt.Errorf("%w: non-printable byte %#x outside encoded region", ErrInvalidUTF7, c)
			}
			dst = append(dst, c)
			src = src[1:]
			prevWasShiftEnd = false
			continue
		}

		src = src[1:]
		if len(src) > 0 && src[0] == '-' {
			// "&-" is the literal ampersand. It is not a base64 shift
			// run, so it never merges with a preceding one: the
			// encoder always ends a non-ASCII run at the first ASCII
			// byte, including '&', so "<run>&-" is routinely canonical.
			dst = append(dst, '&')
			src = src[1:]
			prevWasShiftEnd = false
			continue
		}

		if prevWasShiftEnd {
			return nil, fmt.Errorf("%w: adjacent shift sequences should be merged", ErrInvalidUTF7)
		}

		i := bytes.IndexByte(src, '-')
		if i == -1 {
			return nil, fmt.Errorf("%w: unterminated shift sequence", ErrInvalidUTF7)
		}
		if i == 0 {
			return nil, fmt.Errorf("%w: empty shift sequence", ErrInvalidUTF7)
		}

		units, err := decodeRun(src[:i])
		if err != nil {
			return nil, err
		}
		src = src[i+1:]

		for len(units) > 0 {
			r := rune(units[0])<<8 | rune(units[1])
			units = units[2:]
			if r < utf8.RuneSelf && !utf16.IsSurrogate(r) {
				// The canonical encoder never shifts an ASCII code
				// point into a base64 run (it is either written
				// directly or, for '&', as "&-"), so seeing one
				// here means a non-canonical encoding.
				return nil, fmt.Errorf("%w: ASCII code point encoded in shift run", ErrInvalidUTF7)
			}
			if utf16.IsSurrogate(r) {
				if len(units) < 2 {
					return nil, fmt.Errorf("%w: lone surrogate", ErrInvalidUTF7)
				}
				r2 := rune(units[0])<<8 | rune(units[1])
				units = units[2:]
				decoded := utf16.DecodeRune(r, r2)
				if decoded == utf8.RuneError {
					return nil, fmt.Errorf("%w: invalid surrogate pair", ErrInvalidUTF7)
				}
				r = decoded
			}
			dst = appendRune(dst, r)
		}
		prevWasShiftEnd = true
	}
	return dst, nil
}

// decodeRun decodes the base64 portion of one shift sequence (the bytes
// between '&' and the terminating '-'), rejecting non-canonical lengths:
// the number of base64 characters must be the minimal count needed to
// represent the decoded bytes, and the decoded byte count must be even
// (modified UTF-7 payloads are sequences of UTF-16 code units).
func decodeRun(run []byte) ([]byte, error) {
	nBytes := b64.DecodedLen(len(run))
	if b64.EncodedLen(nBytes) != len(run) {
		return nil, fmt.Errorf("%w: non-canonical base64 length", ErrInvalidUTF7)
	}
	if nBytes%2 != 0 {
		return nil, fmt.Errorf("%w: odd UTF-16BE byte count", ErrInvalidUTF7)
	}
	dst := make([]byte, nBytes)
	n, err := b64.Decode(dst, run)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUTF7, err)
	}
	return dst[:n], nil
}

func appendRune(dst []byte, r rune) []byte {
	var b [4]byte
	return append(dst, b[:utf8.EncodeRune(b[:], r)]...)
}
