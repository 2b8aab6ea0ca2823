// Package pop implements the POP3 backend for mail/store.Backend
// (RFC 1939, plus RFC 2449 CAPA and RFC 2595/RFC 2449 STLS), spec.md
// §4.6.
//
// Adapted from the teacher's netconn.Conn framing (shared with the IMAP
// backend) and from the sync/pop3 pattern found elsewhere in the
// example pack: a bufio-wrapped connection, "+OK"/"-ERR" single-line
// command/response pairs, and a dotted multi-line reply for RETR/TOP/
// UIDL-all, generalized here into the Disconnected -> Authorization ->
// Transaction -> Update -> Closed state machine spec.md §4.6 names.
package pop

import (
	"context"
	"crypto/tls"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/neomutt/neomutt-sub011/imap/imapauth"
	"github.com/neomutt/neomutt-sub011/mail"
	"github.com/neomutt/neomutt-sub011/netconn"
	"github.com/neomutt/neomutt-sub011/third_party/imf"
	"github.com/neomutt/neomutt-sub011/util/throttle"
)

// State is the POP3 session state machine (RFC 1939 §3).
type State int

const (
	StateDisconnected State = iota
	StateAuthorization
	StateTransaction
	StateUpdate
	StateClosed
)

// Config carries the dial/auth parameters for a POP3 account.
type Config struct {
	Addr        string
	TLSConfig   *tls.Config
	ImplicitTLS bool
	User        string
	Password    string
	UseAPOP     bool // use APOP instead of USER/PASS if the greeting carries a timestamp
	Logf        func(format string, v ...interface{})

	// ReplyRegex recomputes Envelope.RealSubject as each TOP 0 header
	// block is parsed (Seed Test S7); nil leaves RealSubject equal to
	// Subject.
	ReplyRegex *regexp.Regexp
}

// Mailbox is a POP3 "mailbox": the flat list RFC 1939 exposes, with no
// folder hierarchy and no durable UIDs unless the server advertises
// UIDL (spec.md §4.6).
type Mailbox struct {
	cfg  Config
	mbox mail.Mailbox

	conn  *netconn.Conn
	state State

	capabilities map[string]bool

	// throttle slows repeated failed logins against the same account,
	// the way spilld's db.Authenticator throttles AuthDevice: a caller
	// retrying Open after a bad password does not get to hammer the
	// server at full speed.
	throttle throttle.Throttle
}

func New(cfg Config) *Mailbox {
	return &Mailbox{cfg: cfg, capabilities: make(map[string]bool)}
}

func (m *Mailbox) Mailbox() *mail.Mailbox { return &m.mbox }

// Open dials, reads the greeting, optionally negotiates STLS, issues
// CAPA, authenticates, and lists the mailbox (STAT + UIDL).
func (m *Mailbox) Open(ctx context.Context) error {
	var conn *netconn.Conn
	var err error
	if m.cfg.ImplicitTLS {
		conn, err = netconn.DialTLS(ctx, m.cfg.Addr, m.cfg.TLSConfig)
	} else {
		conn, err = netconn.Dial(ctx, m.cfg.Addr)
	}
	if err != nil {
		return fmt.Errorf("pop: dial: %w", err)
	}
	conn.Logf = m.cfg.Logf
	m.conn = conn
	m.state = StateAuthorization

	greeting, err := conn.ReadLine()
	if err != nil {
		return fmt.Errorf("pop: greeting: %w", err)
	}
	if !strings.HasPrefix(string(greeting), "+OK") {
		return fmt.Errorf("pop: bad greeting %q", greeting)
	}
	timestamp := extractAPOPTimestamp(string(greeting))

	m.refreshCapabilities()

	if !m.cfg.ImplicitTLS && m.capabilities["STLS"] {
		if err := m.stls(); err != nil {
			return err
		}
		m.refreshCapabilities()
	}

	if m.cfg.UseAPOP && timestamp != "" {
		if err := m.authAPOP(timestamp); err != nil {
			return err
		}
	} else {
		if err := m.authUserPass(); err != nil {
			return err
		}
	}
	m.state = StateTransaction
	m.mbox.Kind = mail.KindPOP

	return m.listMessages()
}

func extractAPOPTimestamp(greeting string) string {
	start := strings.IndexByte(greeting, '<')
	end := strings.IndexByte(greeting, '>')
	if start < 0 || end < start {
		return ""
	}
	return greeting[start : end+1]
}

func (m *Mailbox) stls() error {
	if err := m.simpleCommand("STLS"); err != nil {
		return fmt.Errorf("pop: STLS: %w", err)
	}
	return m.conn.UpgradeTLS(m.cfg.TLSConfig)
}

func (m *Mailbox) refreshCapabilities() {
	m.capabilities = make(map[string]bool)
	if err := m.writeCommand("CAPA"); err != nil {
		return
	}
	line, err := m.conn.ReadLine()
	if err != nil || !strings.HasPrefix(string(line), "+OK") {
		return
	}
	for {
		l, err := m.conn.ReadLine()
		if err != nil {
			return
		}
		if string(l) == "." {
			return
		}
		name := strings.ToUpper(strings.Fields(string(l))[0])
		m.capabilities[name] = true
	}
}

func (m *Mailbox) authAPOP(timestamp string) error {
	m.throttle.Throttle(m.cfg.User)
	resp := imapauth.APOPCredentials(m.cfg.User, m.cfg.Password, []byte(timestamp))
	if err := m.simpleCommand("APOP " + resp); err != nil {
		m.throttle.Add(m.cfg.User)
		return err
	}
	return nil
}

func (m *Mailbox) authUserPass() error {
	m.throttle.Throttle(m.cfg.User)
	if err := m.simpleCommand(fmt.Sprintf("USER %s", m.cfg.User)); err != nil {
		return fmt.Errorf("pop: USER: %w", err)
	}
	if err := m.simpleCommand(fmt.Sprintf("PASS %s", m.cfg.Password)); err != nil {
		m.throttle.Add(m.cfg.User)
		return fmt.Errorf("pop: PASS: %w", err)
	}
	return nil
}

// simpleCommand sends cmd and expects a single "+OK ..." or "-ERR ..."
// reply line.
func (m *Mailbox) simpleCommand(cmd string) error {
	if err := m.writeCommand(cmd); err != nil {
		return err
	}
	line, err := m.conn.ReadLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(string(line), "+OK") {
		return fmt.Errorf("pop: %s: %s", cmd, line)
	}
	return nil
}

func (m *Mailbox) writeCommand(cmd string) error {
	return m.conn.WriteLine([]byte(cmd))
}

// listMessages issues STAT then, if supported, UIDL to build the
// Mailbox's Emails list with PopEmailData attached.
func (m *Mailbox) listMessages() error {
	if err := m.writeCommand("STAT"); err != nil {
		return err
	}
	line, err := m.conn.ReadLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(string(line), "+OK") {
		return fmt.Errorf("pop: STAT: %s", line)
	}
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return fmt.Errorf("pop: malformed STAT reply %q", line)
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("pop: malformed STAT count %q", line)
	}

	sizes, err := m.listSizes(count)
	if err != nil {
		return err
	}
	uidls := m.listUIDLs(count)

	m.mbox.Emails = make([]*mail.Email, 0, count)
	for i := 1; i <= count; i++ {
		e := &mail.Email{
			Active: true,
			Backend: &mail.PopEmailData{
				Number: i,
				Size:   sizes[i],
				UIDL:   uidls[i],
			},
		}
		if header, err := m.TOP(i, 0); err == nil {
			if env, _, err := imf.ParseEnvelope(header, m.cfg.ReplyRegex); err == nil {
				e.Envelope = env
			}
		}
		m.mbox.Emails = append(m.mbox.Emails, e)
	}
	m.mbox.Reindex()
	m.mbox.CountFlags()
	return nil
}

func (m *Mailbox) listSizes(count int) (map[int]int64, error) {
	sizes := make(map[int]int64, count)
	if err := m.writeCommand("LIST"); err != nil {
		return nil, err
	}
	line, err := m.conn.ReadLine()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(string(line), "+OK") {
		return nil, fmt.Errorf("pop: LIST: %s", line)
	}
	for {
		l, err := m.conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if string(l) == "." {
			return sizes, nil
		}
		fields := strings.Fields(string(l))
		if len(fields) != 2 {
			continue
		}
		num, err1 := strconv.Atoi(fields[0])
		size, err2 := strconv.ParseInt(fields[1], 10, 64)
		if err1 == nil && err2 == nil {
			sizes[num] = size
		}
	}
}

// listUIDLs issues UIDL (all-message form); if the server lacks UIDL
// support, it returns an empty map rather than failing the whole open
// (UIDL is optional per RFC 1939 §7).
func (m *Mailbox) listUIDLs(count int) map[int]string {
	uidls := make(map[int]string, count)
	if err := m.writeCommand("UIDL"); err != nil {
		return uidls
	}
	line, err := m.conn.ReadLine()
	if err != nil || !strings.HasPrefix(string(line), "+OK") {
		return uidls
	}
	for {
		l, err := m.conn.ReadLine()
		if err != nil {
			return uidls
		}
		if string(l) == "." {
			return uidls
		}
		fields := strings.Fields(string(l))
		if len(fields) != 2 {
			continue
		}
		if num, err := strconv.Atoi(fields[0]); err == nil {
			uidls[num] = fields[1]
		}
	}
}

// Check issues NOOP.
func (m *Mailbox) Check(ctx context.Context) error {
	return m.simpleCommand("NOOP")
}

// Sync re-lists the mailbox: POP3 has no incremental update mechanism,
// so every Sync is a full STAT+UIDL re-enumeration, matching against
// the previous UIDL to detect which Emails are still present.
func (m *Mailbox) Sync(ctx context.Context) error {
	prevByUIDL := make(map[string]*mail.Email, len(m.mbox.Emails))
	for _, e := range m.mbox.Emails {
		if data, ok := e.Backend.(*mail.PopEmailData); ok && data.UIDL != "" {
			prevByUIDL[data.UIDL] = e
		}
	}
	if err := m.listMessages(); err != nil {
		return err
	}
	if len(prevByUIDL) == 0 {
		return nil
	}
	for _, e := range m.mbox.Emails {
		data := e.Backend.(*mail.PopEmailData)
		if prev, ok := prevByUIDL[data.UIDL]; ok {
			e.Flags = prev.Flags
		}
	}
	return nil
}

// RETR fetches message n's full raw content.
func (m *Mailbox) RETR(n int) ([]byte, error) {
	return m.dottedCommand(fmt.Sprintf("RETR %d", n))
}

// TOP fetches message n's header plus the first lines lines of body
// (RFC 1939 §7 TOP).
func (m *Mailbox) TOP(n, lines int) ([]byte, error) {
	return m.dottedCommand(fmt.Sprintf("TOP %d %d", n, lines))
}

func (m *Mailbox) dottedCommand(cmd string) ([]byte, error) {
	if err := m.writeCommand(cmd); err != nil {
		return nil, err
	}
	line, err := m.conn.ReadLine()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(string(line), "+OK") {
		return nil, fmt.Errorf("pop: %s: %s", cmd, line)
	}
	var data []byte
	for {
		l, err := m.conn.ReadLine()
		if err != nil {
			return data, err
		}
		if string(l) == "." {
			return data, nil
		}
		if strings.HasPrefix(string(l), "..") {
			l = l[1:]
		}
		data = append(data, l...)
		data = append(data, '\r', '\n')
	}
}

// Delete marks message n for deletion (RFC 1939 DELE); the server only
// removes it on a successful QUIT (Update state).
func (m *Mailbox) Delete(n int) error {
	return m.simpleCommand(fmt.Sprintf("DELE %d", n))
}

// SetFlags has no server-side equivalent in POP3 except \Deleted, which
// RFC 1939 maps onto DELE/RSET rather than a general flag store: setting
// FlagDeleted issues DELE once per Email (tracked via PopEmailData.Delete
// so a second SetFlags call with the flag still set does not re-issue
// it), and clearing it issues RSET, which undoes every DELE this session
// has queued, not just this Email's. Every other bit is local-only.
func (m *Mailbox) SetFlags(ctx context.Context, emails []*mail.Email, flags mail.Flag, silent bool) error {
	for _, e := range emails {
		data, ok := e.Backend.(*mail.PopEmailData)
		if !ok {
			continue
		}
		wantDeleted := flags.Has(mail.FlagDeleted)
		switch {
		case wantDeleted && !data.Delete:
			if err := m.Delete(data.Number); err != nil {
				return fmt.Errorf("pop: SetFlags: %w", err)
			}
			data.Delete = true
		case !wantDeleted && data.Delete:
			if err := m.Reset(); err != nil {
				return fmt.Errorf("pop: SetFlags: %w", err)
			}
			for _, other := range m.mbox.Emails {
				if od, ok := other.Backend.(*mail.PopEmailData); ok {
					od.Delete = false
				}
			}
		}
		e.Flags = flags
	}
	m.mbox.CountFlags()
	return nil
}

// FetchBody retrieves e's full raw message via RETR.
func (m *Mailbox) FetchBody(ctx context.Context, e *mail.Email) ([]byte, error) {
	data, ok := e.Backend.(*mail.PopEmailData)
	if !ok {
		return nil, fmt.Errorf("pop: not a POP3 email")
	}
	if e.RawBody != nil {
		return e.RawBody, nil
	}
	raw, err := m.RETR(data.Number)
	if err != nil {
		return nil, fmt.Errorf("pop: RETR: %w", err)
	}
	e.RawBody = raw
	return raw, nil
}

// Copy is not supported: RFC 1939 defines no server-side copy, and POP3
// sessions are single-mailbox with no notion of a destination name.
func (m *Mailbox) Copy(ctx context.Context, emails []*mail.Email, dest string) error {
	return fmt.Errorf("pop: COPY is not supported by POP3")
}

// Append is not supported: RFC 1939 has no command to store a new
// message into the mailbox, only to retrieve and delete existing ones.
func (m *Mailbox) Append(ctx context.Context, raw []byte, flags mail.Flag) error {
	return fmt.Errorf("pop: APPEND is not supported by POP3")
}

// Reset issues RSET, undoing every DELE since the session began.
func (m *Mailbox) Reset() error {
	return m.simpleCommand("RSET")
}

// Close issues QUIT, entering the Update state where the server applies
// queued deletions, then closes the connection.
func (m *Mailbox) Close(ctx context.Context) error {
	if m.conn == nil {
		return nil
	}
	m.state = StateUpdate
	err := m.simpleCommand("QUIT")
	m.state = StateClosed
	closeErr := m.conn.Close()
	if err != nil {
		return err
	}
	return closeErr
}
