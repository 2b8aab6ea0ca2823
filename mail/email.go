// Package mail defines the backend-agnostic data model shared by every
// mailbox backend: Email, Mailbox, Envelope, Body and Path.
//
// Mailboxes and the Emails inside them are owned by the store.Store arena;
// this package only defines their shapes, not their lifecycle.
package mail

import "time"

// Flag is a bitset of the boolean flags tracked per Email.
type Flag uint16

const (
	FlagRead Flag = 1 << iota
	FlagOld
	FlagDeleted
	FlagFlagged
	FlagReplied
	FlagTagged
	FlagPurge
	FlagChanged
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

func (f Flag) Set(bit Flag, on bool) Flag {
	if on {
		return f | bit
	}
	return f &^ bit
}

// NotIndexed marks an Email that has been expunged by the server and
// must never again be selected by a msg-set builder.
const NotIndexed = ^uint32(0)

// BackendData is implemented by each backend's per-Email private state
// (ImapEmailData, MboxEmailData, PopEmailData, ...). It exists so the
// generic Email type never branches on backend kind.
type BackendData interface {
	backendData()
}

// Email is a message as seen locally, independent of backend.
type Email struct {
	Index    int  // insertion order within the owning Mailbox, or NotIndexed if expunged
	Virtual  int  // visible position, or -1 if not currently visible
	Active   bool // false once pending expunge has been applied
	Flags    Flag
	Envelope *Envelope
	Body     *Body
	Received time.Time

	// RawBody caches the full raw message once a backend's FetchBody
	// has retrieved it, so a second FetchBody call (or a local Copy)
	// does not re-fetch.
	RawBody []byte

	// Backend is one of *ImapEmailData, *MboxEmailData, *PopEmailData.
	Backend BackendData
}

// ImapEmailData is the IMAP backend's private per-Email state.
type ImapEmailData struct {
	UID         uint32
	MSN         uint32 // 1-based message sequence number, dense within a Selected mailbox
	ModSeq      int64
	FlagsSystem Flag // last flags requested locally
	FlagsRemote Flag // last flags observed from the server
}

func (*ImapEmailData) backendData() {}

// MboxEmailData is the mbox/MMDF backend's private per-Email state.
type MboxEmailData struct {
	Offset    int64 // byte offset of the "From " (or MMDF separator) line
	HdrOffset int64 // byte offset of the first header line
	HdrLen    int64 // header block length in bytes, including its terminating blank line
	BodyLen   int64 // body length in bytes, excluding headers
	Lines     int64
}

func (*MboxEmailData) backendData() {}

// PopEmailData is the POP3 backend's private per-Email state.
type PopEmailData struct {
	Number int    // 1-based POP3 message number, valid only within a session
	UIDL   string // server-provided unique id, if UIDL is supported
	Size   int64
	Delete bool // queued for DELE on QUIT
}

func (*PopEmailData) backendData() {}
