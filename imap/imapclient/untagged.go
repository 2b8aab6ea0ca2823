package imapclient

// Sink receives untagged server data as the Queue's Step loop dispatches
// it (spec.md §4.4 "Untagged effects"). An ImapMailbox implements Sink to
// keep its MSN/UID maps, flag cache, and UIDVALIDITY/UIDNEXT/MODSEQ in
// sync with the server as responses arrive, independent of which tagged
// command is currently outstanding.
type Sink interface {
	// Exists reports "* n EXISTS". If n is greater than the mailbox's
	// previous count, the sink should schedule an incremental fetch of
	// the newly reported MSNs; if it is smaller, the mailbox is out of
	// sync with the server and should be scheduled for a full reopen.
	Exists(n uint32)

	// Recent reports "* n RECENT".
	Recent(n uint32)

	// Expunge reports "* n EXPUNGE": the message at MSN n must be
	// removed, with every later MSN shifting down by one.
	Expunge(msn uint32)

	// Vanished reports "* VANISHED [(EARLIER)] uid-set" (QRESYNC/CONDSTORE).
	Vanished(uids []uint32, earlier bool)

	// Fetch reports one "* n FETCH (...)" response.
	Fetch(msn uint32, attrs FetchAttrs)

	// Flags reports "* FLAGS (...)", the permanent-flag list for the
	// selected mailbox.
	Flags(flags []string)

	// StatusCode reports an "OK [CODE ...] text" response code, one of
	// ALERT, PERMANENTFLAGS, UIDVALIDITY, UIDNEXT, HIGHESTMODSEQ,
	// COPYUID, READ-ONLY, READ-WRITE, or an unrecognised code (passed
	// through the same way: Code holds its upper-cased name and Args its
	// remaining words; Text is left empty).
	StatusCode(code ResponseCode)

	// Capability reports "* CAPABILITY ...".
	Capability(caps []string)

	// List reports "* LIST (attrs) delim name" (also used for LSUB).
	List(attrs []string, delim byte, name string, isLSUB bool)

	// Search reports "* SEARCH n1 n2 ...".
	Search(nums []uint32)

	// Status reports "* STATUS mailbox (ITEM value ...)".
	Status(mailbox string, items map[string]int64)
}

// FetchAttrs holds the subset of a FETCH response's data-items this
// package extracts directly; BODYSTRUCTURE and ENVELOPE payloads are
// handed to the caller as raw S-expression text for imap/bodystruct (or
// an envelope parser) to interpret, keeping this package free of a MIME
// dependency.
type FetchAttrs struct {
	UID           uint32
	HaveUID       bool
	Flags         []string
	HaveFlags     bool
	ModSeq        int64
	HaveModSeq    bool
	RFC822Size    int64
	HaveSize      bool
	InternalDate  string
	HaveDate      bool
	BodyStructure string // raw BODYSTRUCTURE S-expression, if requested
	Envelope      string // raw ENVELOPE S-expression, if requested
	RawBody       string // raw BODY[] literal payload, if requested
	HaveRawBody   bool
}

// ResponseCode is a parsed "OK [CODE ...]" status response code.
type ResponseCode struct {
	Code        string // ALERT, PERMANENTFLAGS, UIDVALIDITY, UIDNEXT, HIGHESTMODSEQ, COPYUID, READ-ONLY, READ-WRITE, ...
	Args        []string
	Text        string
}
