package imapmailbox

import (
	"regexp"
	"testing"

	"github.com/neomutt/neomutt-sub011/imap/imapclient"
	"github.com/neomutt/neomutt-sub011/mail"
)

// TestFetchPopulatesEnvelope exercises the ENVELOPE wiring Fetch performs:
// a FETCH response carrying a raw ENVELOPE S-expression should leave the
// Email's Envelope parsed, with RealSubject recomputed per the
// mailbox's configured reply regex (Seed Test S7).
func TestFetchPopulatesEnvelope(t *testing.T) {
	m := New(Config{ReplyRegex: regexp.MustCompile(`(?i)^re: *`)}, mail.NewPath("INBOX"))
	m.msnOrder = make([]uint32, 1)

	attrs := imapclient.FetchAttrs{
		UID:     7,
		HaveUID: true,
		Envelope: `("Mon, 2 Jan 2006 15:04:05 +0000" "Re: hello" ` +
			`(("Alice" NIL "alice" "example.com")) ` +
			`(("Alice" NIL "alice" "example.com")) ` +
			`(("Alice" NIL "alice" "example.com")) ` +
			`(("Bob" NIL "bob" "example.com")) ` +
			`NIL NIL NIL "<abc@example.com>")`,
	}
	m.Fetch(1, attrs)

	idx, ok := m.uidToIndex[7]
	if !ok {
		t.Fatalf("expected UID 7 indexed")
	}
	e := m.mbox.Emails[idx]
	if e.Envelope == nil {
		t.Fatalf("expected Envelope to be populated")
	}
	if e.Envelope.Subject != "Re: hello" {
		t.Fatalf("Subject = %q", e.Envelope.Subject)
	}
	if e.Envelope.RealSubject != "hello" {
		t.Fatalf("RealSubject = %q, want %q", e.Envelope.RealSubject, "hello")
	}
	if len(e.Envelope.From) != 1 || e.Envelope.From[0].Addr != "alice@example.com" {
		t.Fatalf("From = %+v", e.Envelope.From)
	}
}
