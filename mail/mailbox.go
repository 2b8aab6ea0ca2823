package mail

import "time"

// Kind identifies which backend implements a Mailbox.
type Kind int

const (
	KindUnknown Kind = iota
	KindIMAP
	KindPOP
	KindMbox
	KindMMDF
)

func (k Kind) String() string {
	switch k {
	case KindIMAP:
		return "IMAP"
	case KindPOP:
		return "POP"
	case KindMbox:
		return "MBOX"
	case KindMMDF:
		return "MMDF"
	default:
		return "UNKNOWN"
	}
}

// Rights is an IMAP ACL bitset (RFC 4314 rights letters, one bit per letter).
type Rights uint32

const (
	RightLookup Rights = 1 << iota
	RightRead
	RightSeen
	RightWrite
	RightInsert
	RightPost
	RightCreate
	RightDelete
	RightAdmin
)

// Mailbox is a folder: the generic state every backend shares. Each
// backend's own Mailbox type (imapmailbox, mbox, pop) holds one of these
// in a field and returns it from its Mailbox method.
//
// Invariants after Reindex: 0 <= VCount <= len(Emails); every active
// Emails[i].Index == i and every inactive one has Index NotIndexed; if
// Emails[i].Virtual >= 0 then V2R[Emails[i].Virtual] == i.
type Mailbox struct {
	Kind     Kind
	Path     Path
	EmailMax int
	Emails   []*Email
	V2R      []int // visible index -> real index

	Tagged   int
	Deleted  int
	New      int
	Unread   int
	Flagged  int

	ReadOnly  bool
	DontWrite bool
	Changed   bool
	Rights    Rights
	MTime     time.Time
}

// VCount is the number of currently visible messages.
func (m *Mailbox) VCount() int { return len(m.V2R) }

// Reindex restores the Index/Virtual/V2R invariants after a mutation that
// changed Emails' Active state (e.g. an EXPUNGE reconciliation). It is the
// single place that recomputes visibility so every backend applies the
// same rule: an Email is visible iff Active is true.
func (m *Mailbox) Reindex() {
	m.V2R = m.V2R[:0]
	for i, e := range m.Emails {
		if !e.Active {
			e.Index = int(NotIndexed)
			e.Virtual = -1
			continue
		}
		e.Index = i
		e.Virtual = len(m.V2R)
		m.V2R = append(m.V2R, i)
	}
}

// CountFlags recomputes the Tagged/Deleted/New/Unread/Flagged counters
// from the current Emails slice.
func (m *Mailbox) CountFlags() {
	m.Tagged, m.Deleted, m.New, m.Unread, m.Flagged = 0, 0, 0, 0, 0
	for _, e := range m.Emails {
		if !e.Active {
			continue
		}
		if e.Flags.Has(FlagTagged) {
			m.Tagged++
		}
		if e.Flags.Has(FlagDeleted) {
			m.Deleted++
		}
		if !e.Flags.Has(FlagOld) {
			m.New++
		}
		if !e.Flags.Has(FlagRead) {
			m.Unread++
		}
		if e.Flags.Has(FlagFlagged) {
			m.Flagged++
		}
	}
}
