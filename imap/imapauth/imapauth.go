// Package imapauth implements the client side of the SASL mechanisms
// spec.md §4.4/§4.5 name: LOGIN, CRAM-MD5, PLAIN, OAUTHBEARER/XOAUTH2,
// ANONYMOUS, and the POP3 APOP variant.
//
// Adapted from the teacher's imapserver authentication handlers (which
// verify these same mechanisms from the server side); this port drives
// the client half of the same exchange.
package imapauth

import (
	"encoding/base64"
	"fmt"

	"github.com/neomutt/neomutt-sub011/codec"
)

// Mechanism drives one SASL exchange step by step. Step is called with
// the server's challenge (already base64-decoded, empty on the first
// call for mechanisms that send an initial response) and returns the
// next response to base64-encode and send, or done=true when the
// exchange has produced its final response.
type Mechanism interface {
	Name() string
	Step(challenge []byte) (response []byte, done bool, err error)
}

// Login implements the non-standard but near-universal two-step
// "AUTHENTICATE LOGIN" exchange: username, then password.
type Login struct {
	User, Password string
	step           int
}

func (m *Login) Name() string { return "LOGIN" }

func (m *Login) Step(challenge []byte) ([]byte, bool, error) {
	defer func() { m.step++ }()
	switch m.step {
	case 0:
		return []byte(m.User), false, nil
	case 1:
		return []byte(m.Password), true, nil
	default:
		return nil, true, fmt.Errorf("imapauth: LOGIN: unexpected extra challenge")
	}
}

// Plain implements SASL PLAIN (RFC 4616): a single response of
// "authzid\0authcid\0password".
type Plain struct {
	AuthzID, User, Password string
	sent                    bool
}

func (m *Plain) Name() string { return "PLAIN" }

func (m *Plain) Step(challenge []byte) ([]byte, bool, error) {
	if m.sent {
		return nil, true, fmt.Errorf("imapauth: PLAIN: unexpected extra challenge")
	}
	m.sent = true
	resp := m.AuthzID + "\x00" + m.User + "\x00" + m.Password
	return []byte(resp), true, nil
}

// CramMD5 implements RFC 2195: the server sends a challenge token and
// the client replies with "user hex(hmac-md5(password, challenge))".
type CramMD5 struct {
	User, Password string
	sent           bool
}

func (m *CramMD5) Name() string { return "CRAM-MD5" }

func (m *CramMD5) Step(challenge []byte) ([]byte, bool, error) {
	if m.sent {
		return nil, true, fmt.Errorf("imapauth: CRAM-MD5: unexpected extra challenge")
	}
	m.sent = true
	return codec.CramMD5Response([]byte(m.User), []byte(m.Password), challenge), true, nil
}

// OAuthBearer implements RFC 7628: a single response carrying a bearer
// token in the "n,a=user,\x01host=...\x01port=...\x01auth=Bearer
// <token>\x01\x01" GS2 form. If the server rejects the token it does
// not fail the command directly; it sends back a further "+ <b64 JSON
// error>" continuation that the client must answer with a lone 0x01
// byte before the server sends its tagged NO (RFC 7628 §3.2.3).
type OAuthBearer struct {
	User, Token, Host string
	Port              int
	sent              bool
	failed            bool
}

func (m *OAuthBearer) Name() string { return "OAUTHBEARER" }

func (m *OAuthBearer) Step(challenge []byte) ([]byte, bool, error) {
	if m.failed {
		return nil, true, fmt.Errorf("imapauth: OAUTHBEARER: unexpected extra challenge after failure response")
	}
	if m.sent {
		// The server is rejecting the bearer token: acknowledge its
		// error response with the single required dummy byte so it can
		// proceed to the tagged failure.
		m.failed = true
		return []byte{0x01}, true, nil
	}
	m.sent = true
	resp := fmt.Sprintf("n,a=%s,\x01host=%s\x01port=%d\x01auth=Bearer %s\x01\x01",
		m.User, m.Host, m.Port, m.Token)
	return []byte(resp), false, nil
}

// XOAuth2 implements the older Google-originated XOAUTH2 variant: a
// single response of "user=<user>\x01auth=Bearer <token>\x01\x01".
type XOAuth2 struct {
	User, Token string
	sent        bool
}

func (m *XOAuth2) Name() string { return "XOAUTH2" }

func (m *XOAuth2) Step(challenge []byte) ([]byte, bool, error) {
	if m.sent {
		return nil, true, fmt.Errorf("imapauth: XOAUTH2: unexpected extra challenge")
	}
	m.sent = true
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", m.User, m.Token)
	return []byte(resp), true, nil
}

// Anonymous implements RFC 4505: a single response carrying a trace
// token (conventionally an email address or other contact string), sent
// with no verification expected.
type Anonymous struct {
	Trace string
	sent  bool
}

func (m *Anonymous) Name() string { return "ANONYMOUS" }

func (m *Anonymous) Step(challenge []byte) ([]byte, bool, error) {
	if m.sent {
		return nil, true, fmt.Errorf("imapauth: ANONYMOUS: unexpected extra challenge")
	}
	m.sent = true
	return []byte(m.Trace), true, nil
}

// EncodeChallenge and DecodeChallenge wrap the base64 framing every
// "AUTHENTICATE mechanism" continuation line uses (RFC 4422 §4); a
// bare "+" continuation carries no data, decoded to an empty slice.
func EncodeChallenge(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func DecodeChallenge(line []byte) ([]byte, error) {
	if len(line) == 0 {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(string(line))
}

// Result is one authenticator's outcome (spec.md §4.5).
type Result int

const (
	Unavailable Result = iota
	Success
	Failure
	Socket
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	case Unavailable:
		return "Unavailable"
	case Socket:
		return "Socket"
	default:
		return "Unknown"
	}
}

// AuthFunc drives one AUTHENTICATE exchange for mech to completion,
// reporting its Result; the caller supplies this as a thin wrapper
// over imapclient.Queue.Authenticate so this package stays free of a
// dependency on the wire layer.
type AuthFunc func(mech Mechanism) (Result, error)

// Registry drives the ordered authentication cascade spec.md §4.5
// describes: a registry of authenticators tried in the order of
// Mechanisms. Registry has no default list of its own; a caller that
// wants a default cascade fills Mechanisms with it.
type Registry struct {
	Mechanisms []Mechanism

	// TryAll mirrors `auth_try_all`: when true, a Failure does not stop
	// the cascade, and every mechanism in the registry is attempted in
	// turn regardless of earlier failures.
	TryAll bool
}

// Authenticate tries each Mechanism in order, driving it via auth,
// until one reports Success, one reports Failure while TryAll is
// false (which stops the cascade immediately), or the registry is
// exhausted. Unavailable mechanisms (and Failures when TryAll is set)
// are skipped in favor of the next configured mechanism. It returns
// the name and Result of whichever mechanism ended the cascade, or
// ("", Unavailable, nil) if Mechanisms is empty or was exhausted
// without a Success.
func (reg *Registry) Authenticate(auth AuthFunc) (mechName string, result Result, err error) {
	for _, mech := range reg.Mechanisms {
		res, aerr := auth(mech)
		if aerr != nil {
			return mech.Name(), Socket, aerr
		}
		switch {
		case res == Success:
			return mech.Name(), Success, nil
		case res == Failure && !reg.TryAll:
			return mech.Name(), Failure, nil
		}
	}
	return "", Unavailable, nil
}

// APOPCredentials computes the POP3 APOP response for the "USER
// timestamp" greeting banner a server presents, per RFC 1939 §7 and
// spec.md §4.6. The result is the literal "<name> <digest>" line; POP3
// APOP is not a SASL mechanism and carries no base64 framing.
func APOPCredentials(name, password string, timestamp []byte) string {
	return fmt.Sprintf("%s %s", name, codec.APOPDigest(timestamp, []byte(password)))
}
