package uidset

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/neomutt/neomutt-sub011/mail"
)

// ImapMaxCmdlen bounds the UID-set portion of a single generated command
// line. RFC 7162 recommends servers support at least 8192 octets; the
// builder caps there by default and callers may choose a smaller value
// for conservative servers.
const ImapMaxCmdlen = 8192

// Predicate reports whether e should be included in the set being built.
type Predicate func(e *mail.Email) bool

// Builder walks a Mailbox's Emails in UID-ascending order and emits
// "<prefix> <uid-set> <postfix>" commands honouring a byte budget,
// looping until every selected UID has been covered.
//
// NewBuilder sorts the selected UIDs itself, so the order of
// mbox.Emails does not matter and the caller's sort is left untouched.
type Builder struct {
	Prefix  string
	Postfix string
	Budget  int // defaults to ImapMaxCmdlen if zero

	ranges []Range
	pos    int
}

// NewBuilder selects every Email in mbox.Emails matching pred, in
// ascending order of its IMAP UID, and prepares a Builder to emit
// commands covering them.
func NewBuilder(mbox *mail.Mailbox, pred Predicate, prefix, postfix string) *Builder {
	type uidEmail struct {
		uid uint32
		e   *mail.Email
	}
	var selected []uidEmail
	for _, e := range mbox.Emails {
		if !e.Active {
			continue
		}
		data, ok := e.Backend.(*mail.ImapEmailData)
		if !ok {
			continue
		}
		if pred(e) {
			selected = append(selected, uidEmail{data.UID, e})
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].uid < selected[j].uid })

	uids := make([]uint32, len(selected))
	for i, s := range selected {
		uids[i] = s.uid
	}
	budget := ImapMaxCmdlen
	return &Builder{
		Prefix:  prefix,
		Postfix: postfix,
		Budget:  budget,
		ranges:  Compress(uids),
	}
}

// Next produces the next command string, or ok == false once every
// selected UID has been covered.
func (b *Builder) Next() (cmd string, ok bool) {
	if b.pos >= len(b.ranges) {
		return "", false
	}
	budget := b.Budget
	if budget <= 0 {
		budget = ImapMaxCmdlen
	}
	// Reserve room for "<prefix> " and " <postfix>" around the set.
	overhead := len(b.Prefix) + len(b.Postfix) + 2
	setBudget := budget - overhead
	if setBudget < 1 {
		setBudget = 1
	}

	var buf bytes.Buffer
	consumed, newPos := CompressBudget(&buf, b.ranges, b.pos, setBudget)
	if consumed == 0 {
		// A single range didn't fit even alone; emit it anyway so the
		// builder always makes progress (Testable Property 2).
		r := b.ranges[b.pos]
		if r.Min == r.Max {
			fmt.Fprintf(&buf, "%d", r.Min)
		} else {
			fmt.Fprintf(&buf, "%d:%d", r.Min, r.Max)
		}
		newPos = b.pos + 1
	}
	b.pos = newPos

	var out bytes.Buffer
	if b.Prefix != "" {
		out.WriteString(b.Prefix)
		out.WriteByte(' ')
	}
	out.Write(buf.Bytes())
	if b.Postfix != "" {
		out.WriteByte(' ')
		out.WriteString(b.Postfix)
	}
	return out.String(), true
}

// Commands drains the Builder, returning every command it produces.
func (b *Builder) Commands() []string {
	var cmds []string
	for {
		cmd, ok := b.Next()
		if !ok {
			break
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}
