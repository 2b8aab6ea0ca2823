// Package store implements the public façade spec.md §4 calls "Store":
// an arena of stable-ID Mailboxes and Emails shared by every backend, so
// callers (and backends reconciling against each other, e.g. an IMAP
// mailbox's MSN renumbering) never hold a raw pointer that a slice
// append could invalidate.
//
// Adapted from the teacher's spilldb/boxmgmt package, which owns a
// similar registry of long-lived per-account resources (one
// sqlitex.Pool per mailbox) behind stable integer keys rather than
// pointers, so accounts can be opened, closed and reopened without
// callers needing to track pointer lifetime.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/neomutt/neomutt-sub011/mail"
)

// MailboxID and EmailID are stable handles into the Store's arena: they
// never change even as a Mailbox's Emails slice is compacted (an mbox
// Expunge) or renumbered by Reindex.
type MailboxID int
type EmailID int64

// Backend is the uniform operation set every concrete backend
// (imapmailbox.Mailbox, mbox.Mailbox, pop.Mailbox) implements; Store
// dispatches through this interface so callers write backend-agnostic
// code (spec.md §4 "every backend exposes the same operation set").
type Backend interface {
	Open(ctx context.Context) error
	Check(ctx context.Context) error
	Sync(ctx context.Context) error
	Close(ctx context.Context) error
	Mailbox() *mail.Mailbox

	// SetFlags applies flags to every given Email, replacing (not
	// merging with) its previous flag set; silent suppresses the
	// server's flag-change echo where the backend's protocol makes
	// that distinction (IMAP's FLAGS.SILENT).
	SetFlags(ctx context.Context, emails []*mail.Email, flags mail.Flag, silent bool) error

	// FetchBody returns e's full raw message, fetching it from the
	// backend if it is not already held locally.
	FetchBody(ctx context.Context, e *mail.Email) ([]byte, error)

	// Copy duplicates emails into dest, a backend-specific destination
	// name (an IMAP mailbox name, or a filesystem path for mbox/MMDF).
	// Backends with no server-side copy (POP3) return an error naming
	// why instead of silently doing nothing.
	Copy(ctx context.Context, emails []*mail.Email, dest string) error

	// Append stores raw as a new message in this Backend's own
	// mailbox, with the given initial flags.
	Append(ctx context.Context, raw []byte, flags mail.Flag) error
}

type entry struct {
	id      MailboxID
	backend Backend
	emails  map[EmailID]*mail.Email
	nextEID EmailID
}

// Store owns every open Mailbox in a session, keyed by a MailboxID that
// outlives reconciliation and compaction.
type Store struct {
	mu      sync.Mutex
	byID    map[MailboxID]*entry
	byPath  map[string]MailboxID
	nextID  MailboxID
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID:   make(map[MailboxID]*entry),
		byPath: make(map[string]MailboxID),
	}
}

// Open registers backend under path's canonical form, opening it if not
// already present, and returns its stable MailboxID. Calling Open again
// for an already-open path returns the existing ID without reopening.
func (s *Store) Open(ctx context.Context, path mail.Path, backend Backend) (MailboxID, error) {
	canon := path.Canon()

	s.mu.Lock()
	if id, ok := s.byPath[canon]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	if err := backend.Open(ctx); err != nil {
		return 0, fmt.Errorf("store: open %s: %w", canon, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.byID[id] = &entry{id: id, backend: backend, emails: make(map[EmailID]*mail.Email)}
	s.byPath[canon] = id
	return id, nil
}

func (s *Store) lookup(id MailboxID) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("store: unknown mailbox id %d", id)
	}
	return e, nil
}

// Mailbox returns the generic Mailbox state for id.
func (s *Store) Mailbox(id MailboxID) (*mail.Mailbox, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.backend.Mailbox(), nil
}

// Check asks the backend to perform a lightweight freshness check
// (IMAP NOOP, mbox mtime comparison, ...), per spec.md §4's Check
// operation.
func (s *Store) Check(ctx context.Context, id MailboxID) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.backend.Check(ctx)
}

// Sync asks the backend to reconcile local state with the underlying
// store (server or file), applying pending flag changes and picking up
// new/expunged messages.
func (s *Store) Sync(ctx context.Context, id MailboxID) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := e.backend.Sync(ctx); err != nil {
		return err
	}
	e.backend.Mailbox().Reindex()
	e.backend.Mailbox().CountFlags()
	return nil
}

// SetFlags applies flags to emails through id's backend (spec.md §4
// "set flags").
func (s *Store) SetFlags(ctx context.Context, id MailboxID, emails []*mail.Email, flags mail.Flag, silent bool) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.backend.SetFlags(ctx, emails, flags, silent)
}

// FetchBody retrieves email's full raw message through id's backend
// (spec.md §4 "fetch message body").
func (s *Store) FetchBody(ctx context.Context, id MailboxID, email *mail.Email) ([]byte, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.backend.FetchBody(ctx, email)
}

// Copy duplicates emails into dest through id's backend (spec.md §4
// "copy/move").
func (s *Store) Copy(ctx context.Context, id MailboxID, emails []*mail.Email, dest string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.backend.Copy(ctx, emails, dest)
}

// Append stores raw as a new message in id's mailbox through its
// backend (spec.md §4 "append").
func (s *Store) Append(ctx context.Context, id MailboxID, raw []byte, flags mail.Flag) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	return e.backend.Append(ctx, raw, flags)
}

// Close releases id's backend resources and removes it from the arena.
// The MailboxID itself is never reused.
func (s *Store) Close(ctx context.Context, id MailboxID) error {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: unknown mailbox id %d", id)
	}
	delete(s.byID, id)
	for path, pid := range s.byPath {
		if pid == id {
			delete(s.byPath, path)
		}
	}
	s.mu.Unlock()
	return e.backend.Close(ctx)
}

// AssignEmailID hands out the next stable EmailID for a newly-seen
// Email within mailbox id, recording the mapping so FindEmail can later
// resolve it even after the Mailbox's Emails slice has been
// reindexed.
func (s *Store) AssignEmailID(id MailboxID, e *mail.Email) (EmailID, error) {
	ent, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ent.nextEID++
	eid := ent.nextEID
	ent.emails[eid] = e
	return eid, nil
}

// FindEmail resolves a stable EmailID back to its current *mail.Email,
// or ok=false if it has been expunged and forgotten.
func (s *Store) FindEmail(id MailboxID, eid EmailID) (*mail.Email, bool) {
	ent, err := s.lookup(id)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := ent.emails[eid]
	return e, ok
}

// ForgetEmail drops an EmailID from the arena once its backing Email
// has been permanently expunged (mail.Email.Active == false and no
// longer of interest).
func (s *Store) ForgetEmail(id MailboxID, eid EmailID) {
	ent, err := s.lookup(id)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(ent.emails, eid)
	s.mu.Unlock()
}

// Paths lists the canonical paths of every currently open mailbox, in
// sorted order, mainly for diagnostics (cmd/mxdump).
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
