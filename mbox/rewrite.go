package mbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/neomutt/neomutt-sub011/mail"
)

// statusLine and xstatusLine follow the historical mbox convention:
// Status carries R (read) and O (not-new, i.e. already seen once
// before); X-Status carries D/F/A (deleted/flagged/answered).
func statusLine(f mail.Flag) string {
	var s string
	if f.Has(mail.FlagRead) {
		s += "R"
	}
	if f.Has(mail.FlagOld) {
		s += "O"
	}
	if s == "" {
		return ""
	}
	return "Status: " + s
}

func xstatusLine(f mail.Flag) string {
	var s string
	if f.Has(mail.FlagDeleted) {
		s += "D"
	}
	if f.Has(mail.FlagFlagged) {
		s += "F"
	}
	if f.Has(mail.FlagReplied) {
		s += "A"
	}
	if s == "" {
		return ""
	}
	return "X-Status: " + s
}

// countingWriter tracks the total number of bytes written through it,
// so Expunge can record each kept message's new starting offset.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Expunge rewrites the file, dropping every Email flagged FlagDeleted
// and writing updated Status/X-Status header lines for the rest
// (spec.md §4.6 "two-phase atomic rewrite"): the new content is built
// in a temp file in the same directory, then renamed over the original
// so a crash mid-write never leaves a half-written mailbox.
func (m *Mailbox) Expunge(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".mbox-rewrite-*")
	if err != nil {
		return fmt.Errorf("mbox: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	cw := &countingWriter{w: bufio.NewWriterSize(tmp, 64*1024)}
	bw := cw.w.(*bufio.Writer)

	kept := m.mbox.Emails[:0:0]
	for _, e := range m.mbox.Emails {
		if !e.Active || e.Flags.Has(mail.FlagDeleted) {
			continue
		}
		data, ok := e.Backend.(*mail.MboxEmailData)
		if !ok {
			continue
		}
		newOffset := cw.n
		if err := m.writeOne(cw, data, e.Flags); err != nil {
			tmp.Close()
			return err
		}
		data.Offset = newOffset
		kept = append(kept, e)
	}

	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("mbox: flush rewrite: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("mbox: sync rewrite: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("mbox: close rewrite: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("mbox: rename rewrite into place: %w", err)
	}

	// m.f still refers to the replaced file; switch to the new one.
	f, err := os.OpenFile(m.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("mbox: reopen %s: %w", m.path, err)
	}
	if err := lock(f); err != nil {
		f.Close()
		return fmt.Errorf("mbox: lock %s: %w", m.path, err)
	}
	unlock(m.f)
	m.f.Close()
	m.f = f

	m.mbox.Emails = kept
	m.mbox.Reindex()
	m.mbox.CountFlags()
	m.mbox.Changed = false
	return m.reload()
}

// writeOne copies one message's separator and body from the live file
// into w, substituting Status/X-Status header lines to match flags; for
// an MMDF file it then writes the closing marker.
func (m *Mailbox) writeOne(w io.Writer, data *mail.MboxEmailData, flags mail.Flag) error {
	msgLen := (data.HdrOffset - data.Offset) + data.HdrLen + data.BodyLen
	if _, err := m.f.Seek(data.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("mbox: seek source message: %w", err)
	}
	br := bufio.NewReader(io.LimitReader(m.f, msgLen))

	sep, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("mbox: read separator: %w", err)
	}
	if _, err := io.WriteString(w, sep); err != nil {
		return err
	}

	wroteStatus, inBody := false, false
	for {
		line, rerr := br.ReadString('\n')
		skip := false
		if !inBody {
			trimmed := trimEOL(line)
			switch {
			case hasHeaderName(trimmed, "Status"), hasHeaderName(trimmed, "X-Status"):
				skip = true
				if !wroteStatus {
					writeStatusLines(w, flags)
					wroteStatus = true
				}
			case trimmed == "":
				if !wroteStatus {
					writeStatusLines(w, flags)
				}
				inBody = true
			}
		}
		if !skip && len(line) > 0 {
			if _, err := io.WriteString(w, line); err != nil {
				return err
			}
		}
		if rerr != nil {
			if m.format == FormatMMDF {
				if _, err := io.WriteString(w, mmdfMarker+"\n"); err != nil {
					return err
				}
			}
			return nil
		}
	}
}

func writeStatusLines(w io.Writer, flags mail.Flag) {
	if s := statusLine(flags); s != "" {
		io.WriteString(w, s+"\n")
	}
	if s := xstatusLine(flags); s != "" {
		io.WriteString(w, s+"\n")
	}
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func hasHeaderName(line, name string) bool {
	if len(line) <= len(name) || line[len(name)] != ':' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := line[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		n := name[i]
		if n >= 'a' && n <= 'z' {
			n -= 'a' - 'A'
		}
		if c != n {
			return false
		}
	}
	return true
}
