// Package imapmailbox implements the IMAP backend for mail/store.Backend:
// it drives an imap/imapclient.Queue over a netconn.Conn, reconciles
// untagged responses into a mail.Mailbox, and exposes Open/Check/Sync/
// Close/Copy/Append per spec.md §4.3.
//
// Adapted from the teacher's spilldb/imapdb package, which wires the
// same DataStore/Session shape for the server side of an IMAP session;
// this port drives the client half against a real remote server instead
// of a local sqlite-backed store.
package imapmailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/neomutt/neomutt-sub011/codec/utf7mod"
	"github.com/neomutt/neomutt-sub011/imap/bodystruct"
	"github.com/neomutt/neomutt-sub011/imap/envelope"
	"github.com/neomutt/neomutt-sub011/imap/imapauth"
	"github.com/neomutt/neomutt-sub011/imap/imapclient"
	"github.com/neomutt/neomutt-sub011/imap/uidset"
	"github.com/neomutt/neomutt-sub011/mail"
	"github.com/neomutt/neomutt-sub011/netconn"
)

// Config carries the dial/auth parameters spec.md §6 lists as an
// account's IMAP connection parameters.
type Config struct {
	Addr      string // "host:port"
	TLSConfig *tls.Config
	ImplicitTLS bool // true for "imaps", false for STARTTLS negotiation
	User      string
	Password  string
	// Mechanisms lists SASL mechanism names to try, in order, mirroring
	// `imap_authenticators` (spec.md §4.5); nil or empty tries every
	// mechanism this package knows, in its own default order, until one
	// succeeds. TryAll mirrors `auth_try_all`: a Failure does not stop
	// the cascade.
	Mechanisms []string
	TryAll     bool

	OAuthToken string
	OAuthHost  string // SASL GS2 host/port channel-binding hint for OAUTHBEARER
	OAuthPort  int
	Logf      func(format string, v ...interface{})

	// ReplyRegex recomputes Envelope.RealSubject as each ENVELOPE arrives
	// (Seed Test S7); nil leaves RealSubject equal to Subject.
	ReplyRegex *regexp.Regexp
}

// Mailbox is one selected IMAP folder.
type Mailbox struct {
	cfg  Config
	path mail.Path

	mbox mail.Mailbox

	conn  *netconn.Conn
	queue *imapclient.Queue

	uidToIndex map[uint32]int
	msnOrder   []uint32 // msn-1 -> UID, for the currently selected mailbox
	uidValidity uint32
	uidNext     uint32
	highestModSeq int64
	caps          map[string]bool // last "* CAPABILITY" seen, upper-cased

	// needReopen is set by Exists when the server reports a smaller
	// EXISTS than previously known (spec.md §4.4's Sink.Exists
	// contract); the next Sync performs a full rebuild instead of an
	// incremental fetch.
	needReopen bool

	// lastCopyUID holds the most recent "COPYUID validity src-uids
	// dst-uids" response code (RFC 4315), populated when the server
	// advertises UIDPLUS; Copy surfaces it so a caller can learn the
	// destination UIDs it was assigned.
	lastCopyUID *CopyUID

	// ListedMailboxes collects LIST/LSUB replies seen since Open, names
	// decoded out of modified UTF-7 (RFC 3501 §5.1.3) back to normal text.
	ListedMailboxes []ListEntry
}

// ListEntry is one LIST/LSUB reply (spec.md §6 hierarchy discovery).
type ListEntry struct {
	Attrs []string
	Delim byte
	Name  string
	LSUB  bool
}

// CopyUID is a parsed UIDPLUS "COPYUID" response code (RFC 4315 §3):
// the destination mailbox's UIDVALIDITY, and the parallel source/dest
// UID sets the server assigned to a COPY.
type CopyUID struct {
	UIDValidity uint32
	SourceUIDs  string
	DestUIDs    string
}

// New prepares (without connecting) an IMAP backend for path, which must
// canonicalise to an "imap://" or "imaps://" URL.
func New(cfg Config, path mail.Path) *Mailbox {
	return &Mailbox{cfg: cfg, path: path, uidToIndex: make(map[uint32]int)}
}

func (m *Mailbox) Mailbox() *mail.Mailbox { return &m.mbox }

// Open dials the server, authenticates, and SELECTs the folder named by
// m.path (spec.md §4.4's Disconnected -> Connected -> Authenticated ->
// Selected progression, driven straight through since this package has
// no interactive login prompt to pause for).
func (m *Mailbox) Open(ctx context.Context) error {
	var conn *netconn.Conn
	var err error
	if m.cfg.ImplicitTLS {
		conn, err = netconn.DialTLS(ctx, m.cfg.Addr, m.cfg.TLSConfig)
	} else {
		conn, err = netconn.Dial(ctx, m.cfg.Addr)
	}
	if err != nil {
		return fmt.Errorf("imapmailbox: dial: %w", err)
	}
	conn.Logf = m.cfg.Logf
	m.conn = conn

	greeting, err := conn.ReadLine()
	if err != nil {
		return fmt.Errorf("imapmailbox: greeting: %w", err)
	}
	if !strings.HasPrefix(string(greeting), "* OK") && !strings.HasPrefix(string(greeting), "* PREAUTH") {
		return fmt.Errorf("imapmailbox: unexpected greeting %q", greeting)
	}

	m.queue = imapclient.NewQueue(conn, m)
	m.queue.SetState(imapclient.StateConnected)

	if !m.cfg.ImplicitTLS {
		if err := m.startTLS(); err != nil {
			return err
		}
	}

	if err := m.authenticate(); err != nil {
		return err
	}
	m.queue.SetState(imapclient.StateAuthenticated)

	// Learn UIDPLUS/LITERAL+ support up front so Sync's expunge path and
	// Append's literal framing can use them (spec.md §4.6 "sync"/"append").
	if _, err := m.queue.Exec("CAPABILITY", 0, nil); err != nil {
		return fmt.Errorf("imapmailbox: CAPABILITY: %w", err)
	}

	if err := m.selectMailbox(); err != nil {
		return err
	}
	m.queue.SetState(imapclient.StateSelected)
	return m.rebuild(ctx)
}

// rebuildFetchItems is the FETCH data-item list spec.md §4.6 "open"
// names for a full header-list rebuild: everything Fetch needs to
// populate an Email's UID, flags, size, date, body structure and
// envelope from scratch.
const rebuildFetchItems = "UID FLAGS RFC822.SIZE INTERNALDATE BODYSTRUCTURE ENVELOPE"

// rebuild performs the full MSN-range FETCH spec.md §4.6 "open"
// requires for a freshly selected mailbox (no CONDSTORE-based
// CHANGEDSINCE catch-up is attempted, since this package keeps no
// cross-session UIDVALIDITY/MODSEQ cache): one FETCH across every MSN
// the SELECT's EXISTS response just reported.
func (m *Mailbox) rebuild(ctx context.Context) error {
	hi := len(m.msnOrder)
	if hi < 1 {
		return nil
	}
	cmd := fmt.Sprintf("FETCH 1:%d (%s)", hi, rebuildFetchItems)
	_, err := m.queue.Exec(cmd, 0, nil)
	return err
}

func (m *Mailbox) startTLS() error {
	var status imapclient.Status
	_, err := m.queue.Exec("STARTTLS", 0, func(s imapclient.Status, code *imapclient.ResponseCode, text string) {
		status = s
	})
	if err != nil {
		return fmt.Errorf("imapmailbox: STARTTLS: %w", err)
	}
	if status != imapclient.StatusOK {
		return fmt.Errorf("imapmailbox: STARTTLS rejected")
	}
	return m.conn.UpgradeTLS(m.cfg.TLSConfig)
}

// authenticate drives spec.md §4.5's authenticator registry/cascade:
// each configured mechanism is tried in order via AUTHENTICATE until
// one succeeds, one reports Failure (stopping the cascade unless
// TryAll is set), or the list is exhausted.
func (m *Mailbox) authenticate() error {
	reg := imapauth.Registry{Mechanisms: buildMechanisms(m.cfg), TryAll: m.cfg.TryAll}
	name, result, err := reg.Authenticate(func(mech imapauth.Mechanism) (imapauth.Result, error) {
		status, _, aerr := m.queue.Authenticate(mech.Name(), mech.Step)
		if aerr != nil {
			return imapauth.Socket, aerr
		}
		if status == imapclient.StatusOK {
			return imapauth.Success, nil
		}
		return imapauth.Failure, nil
	})
	if err != nil {
		return fmt.Errorf("imapmailbox: AUTHENTICATE %s: %w", name, err)
	}
	if result != imapauth.Success {
		if name == "" {
			return fmt.Errorf("imapmailbox: AUTHENTICATE: no usable mechanism configured")
		}
		return fmt.Errorf("imapmailbox: AUTHENTICATE %s: %s", name, result)
	}
	return nil
}

// buildMechanisms resolves cfg's ordered mechanism names (or this
// package's default cascade order, if Mechanisms is empty) into ready
// imapauth.Mechanism instances.
func buildMechanisms(cfg Config) []imapauth.Mechanism {
	ctors := map[string]func() imapauth.Mechanism{
		"LOGIN": func() imapauth.Mechanism {
			return &imapauth.Login{User: cfg.User, Password: cfg.Password}
		},
		"CRAM-MD5": func() imapauth.Mechanism {
			return &imapauth.CramMD5{User: cfg.User, Password: cfg.Password}
		},
		"PLAIN": func() imapauth.Mechanism {
			return &imapauth.Plain{User: cfg.User, Password: cfg.Password}
		},
		"OAUTHBEARER": func() imapauth.Mechanism {
			return &imapauth.OAuthBearer{User: cfg.User, Token: cfg.OAuthToken, Host: cfg.OAuthHost, Port: cfg.OAuthPort}
		},
		"XOAUTH2": func() imapauth.Mechanism {
			return &imapauth.XOAuth2{User: cfg.User, Token: cfg.OAuthToken}
		},
	}
	names := cfg.Mechanisms
	if len(names) == 0 {
		names = []string{"LOGIN", "CRAM-MD5", "PLAIN", "OAUTHBEARER", "XOAUTH2"}
	}
	var mechs []imapauth.Mechanism
	for _, name := range names {
		if ctor, ok := ctors[strings.ToUpper(name)]; ok {
			mechs = append(mechs, ctor())
		}
	}
	return mechs
}

func (m *Mailbox) selectMailbox() error {
	name := m.path.Canon()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	var status imapclient.Status
	_, err := m.queue.Exec(fmt.Sprintf(`SELECT %s`, quoteMailbox(name)), 0, func(s imapclient.Status, code *imapclient.ResponseCode, text string) {
		status = s
	})
	if err != nil {
		return fmt.Errorf("imapmailbox: SELECT %s: %w", name, err)
	}
	if status != imapclient.StatusOK {
		return fmt.Errorf("imapmailbox: SELECT %s rejected", name)
	}
	m.mbox.Kind = mail.KindIMAP
	m.mbox.Path = m.path
	return nil
}

// quoteMailbox encodes name as modified UTF-7 (RFC 3501 §5.1.3, the
// international mailbox-name convention) before quoting it as an IMAP
// quoted-string.
func quoteMailbox(name string) string {
	encoded := utf7mod.Encode(name)
	return `"` + strings.ReplaceAll(strings.ReplaceAll(encoded, `\`, `\\`), `"`, `\"`) + `"`
}

// Check issues NOOP, the standard IMAP way to let the server push any
// pending untagged EXISTS/EXPUNGE/FETCH without committing to a full
// Sync (spec.md §4 Check operation).
func (m *Mailbox) Check(ctx context.Context) error {
	_, err := m.queue.Exec("NOOP", 0, nil)
	return err
}

// imapTrackedFlags lists the permanent flags this package round-trips
// to the server, paired with their IMAP system-flag names.
var imapTrackedFlags = []struct {
	bit    mail.Flag
	letter string
}{
	{mail.FlagRead, `\Seen`},
	{mail.FlagDeleted, `\Deleted`},
	{mail.FlagFlagged, `\Flagged`},
	{mail.FlagReplied, `\Answered`},
}

// Sync reconciles local state with the server (spec.md §4.6 "sync"): a
// NOOP first lets the server push any pending untagged data, then
// locally-changed flags converge via batched UID STORE, messages
// flagged \Deleted are expunged, and any message the server reported
// via EXISTS but this Mailbox hasn't fetched yet is pulled in. If
// Exists previously reported a shrinking count, a full rebuild runs
// instead of the incremental path.
func (m *Mailbox) Sync(ctx context.Context) error {
	if err := m.Check(ctx); err != nil {
		return err
	}
	if m.needReopen {
		m.needReopen = false
		m.mbox.Emails = nil
		m.uidToIndex = make(map[uint32]int)
		return m.rebuild(ctx)
	}
	if err := m.syncFlags(ctx); err != nil {
		return err
	}
	if err := m.syncExpunge(ctx); err != nil {
		return err
	}
	return m.syncNewMessages(ctx)
}

// syncFlags emits UID STORE +FLAGS.SILENT/-FLAGS.SILENT for every flag
// whose local value differs from the last-observed remote value,
// batched per flag letter through a MsgSetBuilder (spec.md §4.6 "Flag
// reconciliation"). Since FLAGS.SILENT suppresses the server's echo
// FETCH, a successful STORE immediately updates FlagsRemote to match.
func (m *Mailbox) syncFlags(ctx context.Context) error {
	for _, fl := range imapTrackedFlags {
		if err := m.storeFlagDelta(fl.bit, fl.letter, true); err != nil {
			return err
		}
		if err := m.storeFlagDelta(fl.bit, fl.letter, false); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mailbox) storeFlagDelta(bit mail.Flag, letter string, set bool) error {
	pred := func(e *mail.Email) bool {
		data, ok := e.Backend.(*mail.ImapEmailData)
		if !ok {
			return false
		}
		return e.Flags.Has(bit) == set && data.FlagsRemote.Has(bit) != set
	}
	var matched []*mail.Email
	for _, e := range m.mbox.Emails {
		if e.Active && pred(e) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	verb := "+FLAGS.SILENT"
	if !set {
		verb = "-FLAGS.SILENT"
	}
	b := uidset.NewBuilder(&m.mbox, pred, "UID STORE", fmt.Sprintf("%s (%s)", verb, letter))
	for _, cmd := range b.Commands() {
		status := imapclient.StatusOK
		if _, err := m.queue.Exec(cmd, 0, func(s imapclient.Status, code *imapclient.ResponseCode, text string) {
			status = s
		}); err != nil {
			return err
		}
		if status != imapclient.StatusOK {
			return fmt.Errorf("imapmailbox: %s rejected", cmd)
		}
	}
	for _, e := range matched {
		data := e.Backend.(*mail.ImapEmailData)
		data.FlagsRemote = data.FlagsRemote.Set(bit, set)
	}
	return nil
}

// syncExpunge issues UID EXPUNGE (if the server advertised UIDPLUS) or
// a bare EXPUNGE for every message locally flagged \Deleted (spec.md
// §4.6 "sync"); the server's resulting untagged EXPUNGE responses
// reach the Sink.Expunge path already wired below.
func (m *Mailbox) syncExpunge(ctx context.Context) error {
	pred := func(e *mail.Email) bool { return e.Active && e.Flags.Has(mail.FlagDeleted) }
	any := false
	for _, e := range m.mbox.Emails {
		if pred(e) {
			any = true
			break
		}
	}
	if !any {
		return nil
	}
	if m.caps["UIDPLUS"] {
		b := uidset.NewBuilder(&m.mbox, pred, "UID EXPUNGE", "")
		for _, cmd := range b.Commands() {
			if _, err := m.queue.Exec(cmd, 0, nil); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := m.queue.Exec("EXPUNGE", 0, nil)
	return err
}

// syncNewMessages fetches every attribute rebuild needs for MSNs the
// server has reported (via EXISTS) but this Mailbox has not yet
// fetched.
func (m *Mailbox) syncNewMessages(ctx context.Context) error {
	if len(m.msnOrder) <= len(m.mbox.Emails) {
		return nil
	}
	lo := len(m.mbox.Emails) + 1
	hi := len(m.msnOrder)
	cmd := fmt.Sprintf("FETCH %d:%d (%s)", lo, hi, rebuildFetchItems)
	_, err := m.queue.Exec(cmd, 0, nil)
	return err
}

// Close issues LOGOUT and releases the connection.
func (m *Mailbox) Close(ctx context.Context) error {
	if m.queue != nil {
		m.queue.Exec("LOGOUT", 0, nil)
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// SetFlags replaces the given Emails' flag sets with flags, both
// locally and via a batched "UID STORE (FLAGS|FLAGS.SILENT)" (spec.md
// §4 "set flags"). On success it also updates FlagsRemote, so a
// subsequent Sync's flag reconciliation finds nothing to converge for
// these messages (spec.md §4.6 "Flag reconciliation").
func (m *Mailbox) SetFlags(ctx context.Context, emails []*mail.Email, flags mail.Flag, silent bool) error {
	targets := make(map[*mail.Email]bool, len(emails))
	for _, e := range emails {
		targets[e] = true
		e.Flags = flags
	}
	pred := func(e *mail.Email) bool { return targets[e] }
	letters := flagsToIMAP(flags)
	verb := "FLAGS"
	if silent {
		verb = "FLAGS.SILENT"
	}
	b := uidset.NewBuilder(&m.mbox, pred, "UID STORE", fmt.Sprintf("%s (%s)", verb, strings.Join(letters, " ")))
	for _, cmd := range b.Commands() {
		status := imapclient.StatusOK
		if _, err := m.queue.Exec(cmd, 0, func(s imapclient.Status, code *imapclient.ResponseCode, text string) {
			status = s
		}); err != nil {
			return err
		}
		if status != imapclient.StatusOK {
			return fmt.Errorf("imapmailbox: %s rejected", cmd)
		}
	}
	for _, e := range emails {
		if data, ok := e.Backend.(*mail.ImapEmailData); ok {
			data.FlagsRemote = flags
		}
	}
	return nil
}

// FetchBody retrieves e's full raw message via "UID FETCH (BODY.PEEK[])",
// which (unlike plain BODY[]) does not implicitly set \Seen (spec.md §4
// "fetch message body").
func (m *Mailbox) FetchBody(ctx context.Context, e *mail.Email) ([]byte, error) {
	data, ok := e.Backend.(*mail.ImapEmailData)
	if !ok {
		return nil, fmt.Errorf("imapmailbox: not an IMAP email")
	}
	if e.RawBody != nil {
		return e.RawBody, nil
	}
	cmd := fmt.Sprintf("UID FETCH %d (BODY.PEEK[])", data.UID)
	var status imapclient.Status
	if _, err := m.queue.Exec(cmd, 0, func(s imapclient.Status, code *imapclient.ResponseCode, text string) {
		status = s
	}); err != nil {
		return nil, fmt.Errorf("imapmailbox: FETCH BODY.PEEK[]: %w", err)
	}
	if status != imapclient.StatusOK {
		return nil, fmt.Errorf("imapmailbox: FETCH BODY.PEEK[] rejected")
	}
	if e.RawBody == nil {
		return nil, fmt.Errorf("imapmailbox: server did not return BODY[] for UID %d", data.UID)
	}
	return e.RawBody, nil
}

// Copy issues "UID COPY <uid-set> <mbox>" for emails, batched through a
// MsgSetBuilder, and records the server's COPYUID response code if
// UIDPLUS is advertised (spec.md §4.6 "copy"); the result is available
// afterwards via LastCopyUID.
func (m *Mailbox) Copy(ctx context.Context, emails []*mail.Email, dest string) error {
	m.lastCopyUID = nil
	targets := make(map[*mail.Email]bool, len(emails))
	for _, e := range emails {
		targets[e] = true
	}
	pred := func(e *mail.Email) bool { return targets[e] }
	b := uidset.NewBuilder(&m.mbox, pred, "UID COPY", quoteMailbox(dest))
	for _, cmd := range b.Commands() {
		var status imapclient.Status
		if _, err := m.queue.Exec(cmd, 0, func(s imapclient.Status, code *imapclient.ResponseCode, text string) {
			status = s
		}); err != nil {
			return fmt.Errorf("imapmailbox: UID COPY: %w", err)
		}
		if status != imapclient.StatusOK {
			return fmt.Errorf("imapmailbox: UID COPY to %s rejected", dest)
		}
	}
	return nil
}

// LastCopyUID returns the UIDPLUS COPYUID code from the most recent
// Copy call, or nil if the server did not advertise UIDPLUS (or the
// copy predates Copy being called).
func (m *Mailbox) LastCopyUID() *CopyUID { return m.lastCopyUID }

// Append stores raw as a new message in this Mailbox's own folder via
// "APPEND <mbox> (<flags>) {n}" plus the literal payload (spec.md §4.6
// "append"), using LITERAL+ (RFC 7888) to skip the continuation
// round-trip when the server advertises it.
func (m *Mailbox) Append(ctx context.Context, raw []byte, flags mail.Flag) error {
	name := m.path.Canon()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	letters := flagsToIMAP(flags)
	cmd := fmt.Sprintf("APPEND %s (%s)", quoteMailbox(name), strings.Join(letters, " "))
	literalPlus := m.caps["LITERAL+"] || m.caps["LITERAL-"]

	var status imapclient.Status
	_, err := m.queue.ExecLiteral(cmd, raw, literalPlus, 0, func(s imapclient.Status, code *imapclient.ResponseCode, text string) {
		status = s
	})
	if err != nil {
		return fmt.Errorf("imapmailbox: APPEND: %w", err)
	}
	if status != imapclient.StatusOK {
		return fmt.Errorf("imapmailbox: APPEND rejected")
	}
	return nil
}

func flagsToIMAP(f mail.Flag) []string {
	var out []string
	if f.Has(mail.FlagRead) {
		out = append(out, `\Seen`)
	}
	if f.Has(mail.FlagDeleted) {
		out = append(out, `\Deleted`)
	}
	if f.Has(mail.FlagFlagged) {
		out = append(out, `\Flagged`)
	}
	if f.Has(mail.FlagReplied) {
		out = append(out, `\Answered`)
	}
	sort.Strings(out)
	return out
}

// --- imapclient.Sink ---

// Exists reports "* n EXISTS" (spec.md §4.4). A growing count just
// extends msnOrder so the new MSNs can be fetched; a shrinking count
// means the mailbox went out of sync with the server behind this
// session's back (e.g. another client expunged without this session
// seeing the individual EXPUNGE responses), so the Sink contract
// (imapclient.Sink.Exists) calls for a full reopen on the next Sync
// rather than silently truncating local state.
func (m *Mailbox) Exists(n uint32) {
	if n < uint32(len(m.msnOrder)) {
		m.needReopen = true
		return
	}
	for uint32(len(m.msnOrder)) < n {
		m.msnOrder = append(m.msnOrder, 0)
	}
}

func (m *Mailbox) Recent(n uint32) {}

func (m *Mailbox) Expunge(msn uint32) {
	if int(msn) < 1 || int(msn) > len(m.msnOrder) {
		return
	}
	uid := m.msnOrder[msn-1]
	m.msnOrder = append(m.msnOrder[:msn-1], m.msnOrder[msn:]...)
	if idx, ok := m.uidToIndex[uid]; ok {
		m.mbox.Emails[idx].Active = false
		m.mbox.Emails[idx].Index = int(mail.NotIndexed)
		delete(m.uidToIndex, uid)
	}
	m.mbox.Reindex()
	m.mbox.CountFlags()
}

func (m *Mailbox) Vanished(uids []uint32, earlier bool) {
	for _, uid := range uids {
		if idx, ok := m.uidToIndex[uid]; ok {
			m.mbox.Emails[idx].Active = false
			m.mbox.Emails[idx].Index = int(mail.NotIndexed)
			delete(m.uidToIndex, uid)
		}
	}
	m.mbox.Reindex()
	m.mbox.CountFlags()
}

func (m *Mailbox) Fetch(msn uint32, attrs imapclient.FetchAttrs) {
	if int(msn) >= 1 && int(msn) <= len(m.msnOrder) && attrs.HaveUID {
		m.msnOrder[msn-1] = attrs.UID
	}

	var e *mail.Email
	if attrs.HaveUID {
		if idx, ok := m.uidToIndex[attrs.UID]; ok {
			e = m.mbox.Emails[idx]
		}
	}
	if e == nil {
		e = &mail.Email{Active: true, Backend: &mail.ImapEmailData{}}
		m.mbox.Emails = append(m.mbox.Emails, e)
		if attrs.HaveUID {
			m.uidToIndex[attrs.UID] = len(m.mbox.Emails) - 1
		}
	}

	data := e.Backend.(*mail.ImapEmailData)
	if attrs.HaveUID {
		data.UID = attrs.UID
	}
	data.MSN = msn
	if attrs.HaveModSeq {
		data.ModSeq = attrs.ModSeq
	}
	if attrs.HaveFlags {
		e.Flags = parseIMAPFlags(attrs.Flags)
		data.FlagsRemote = e.Flags
	}
	if attrs.BodyStructure != "" {
		if body, err := bodystruct.Parse(attrs.BodyStructure); err == nil {
			e.Body = body
		}
	}
	if attrs.Envelope != "" {
		if env, err := envelope.Parse(attrs.Envelope); err == nil {
			env.RealSubject = mail.ComputeRealSubject(env.Subject, m.cfg.ReplyRegex)
			e.Envelope = env
		}
	}
	if attrs.HaveRawBody {
		e.RawBody = []byte(attrs.RawBody)
	}
}

func parseIMAPFlags(flags []string) mail.Flag {
	var f mail.Flag
	for _, s := range flags {
		switch s {
		case `\Seen`:
			f |= mail.FlagRead
		case `\Deleted`:
			f |= mail.FlagDeleted
		case `\Flagged`:
			f |= mail.FlagFlagged
		case `\Answered`:
			f |= mail.FlagReplied
		case `\Recent`:
			// handled by the dedicated RECENT count, not a persistent flag
		}
	}
	return f
}

func (m *Mailbox) Flags(flags []string) {}

func (m *Mailbox) StatusCode(code imapclient.ResponseCode) {
	switch code.Code {
	case "UIDVALIDITY":
		if len(code.Args) == 1 {
			if v, ok := parseUint32(code.Args[0]); ok {
				m.uidValidity = v
			}
		}
	case "UIDNEXT":
		if len(code.Args) == 1 {
			if v, ok := parseUint32(code.Args[0]); ok {
				m.uidNext = v
			}
		}
	case "HIGHESTMODSEQ":
		if len(code.Args) == 1 {
			if v, ok := parseInt64(code.Args[0]); ok {
				m.highestModSeq = v
			}
		}
	case "READ-ONLY":
		m.mbox.ReadOnly = true
	case "READ-WRITE":
		m.mbox.ReadOnly = false
	case "COPYUID":
		if len(code.Args) == 3 {
			if v, ok := parseUint32(code.Args[0]); ok {
				m.lastCopyUID = &CopyUID{
					UIDValidity: v,
					SourceUIDs:  code.Args[1],
					DestUIDs:    code.Args[2],
				}
			}
		}
	}
}

func (m *Mailbox) Capability(caps []string) {
	m.caps = make(map[string]bool, len(caps))
	for _, c := range caps {
		m.caps[strings.ToUpper(c)] = true
	}
}

func (m *Mailbox) List(attrs []string, delim byte, name string, isLSUB bool) {
	decoded, err := utf7mod.Decode(name)
	if err != nil {
		decoded = name
	}
	m.ListedMailboxes = append(m.ListedMailboxes, ListEntry{
		Attrs: attrs,
		Delim: delim,
		Name:  decoded,
		LSUB:  isLSUB,
	})
}

func (m *Mailbox) Search(nums []uint32) {}
func (m *Mailbox) Status(mailbox string, items map[string]int64) {}

func parseUint32(s string) (uint32, bool) {
	var v uint64
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		v = v*10 + uint64(s[i]-'0')
	}
	return uint32(v), true
}

func parseInt64(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
