package mbox

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/neomutt/neomutt-sub011/mail"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// TestSeedS4AppendDetection mirrors Seed Test S4: appending a well-formed
// message to an mbox file must be picked up by Sync without disturbing
// the messages already parsed.
func TestSeedS4AppendDetection(t *testing.T) {
	dir := t.TempDir()
	initial := "From alice@example.com Mon Jan  2 15:04:05 2006\r\n" +
		"Subject: first\r\n\r\n" +
		"body one\r\n"
	path := writeTestFile(t, dir, "test.mbox", initial)

	mb := New(path)
	if err := mb.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mb.Close(context.Background())

	if got := len(mb.Mailbox().Emails); got != 1 {
		t.Fatalf("expected 1 message after initial parse, got %d", got)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("reopen for append: %v", err)
	}
	appended := "From bob@example.com Tue Jan  3 10:00:00 2006\r\n" +
		"Subject: second\r\n\r\n" +
		"body two\r\n"
	if _, err := f.WriteString(appended); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	if err := mb.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := len(mb.Mailbox().Emails); got != 2 {
		t.Fatalf("expected 2 messages after append, got %d", got)
	}
}

// TestSeedS5MMDFParse mirrors Seed Test S5: an MMDF-separated file
// parses into the same message count as its mbox equivalent.
func TestSeedS5MMDFParse(t *testing.T) {
	dir := t.TempDir()
	content := mmdfMarker + "\n" +
		"From: a\n" +
		"\n" +
		"body\n" +
		mmdfMarker + "\n"
	path := writeTestFile(t, dir, "test.mmdf", content)

	mb := New(path)
	if err := mb.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mb.Close(context.Background())

	if mb.Mailbox().Kind.String() != "MMDF" {
		t.Fatalf("expected MMDF format detected, got %v", mb.Mailbox().Kind)
	}
	if got := len(mb.Mailbox().Emails); got != 1 {
		t.Fatalf("expected 1 message, got %d", got)
	}

	e := mb.Mailbox().Emails[0]
	data := e.Backend.(*mail.MboxEmailData)
	if data.BodyLen != 5 {
		t.Fatalf("body length = %d, want 5", data.BodyLen)
	}
	if e.Envelope == nil || len(e.Envelope.From) != 1 || e.Envelope.From[0].Addr != "a" {
		t.Fatalf("envelope.From = %+v, want [{Addr: a}]", e.Envelope)
	}
}

// TestSeedS7ReplyRegexRecomputationMbox mirrors Seed Test S7 end to end
// through the mbox backend: changing ReplyRegex and reloading recomputes
// every message's RealSubject without anything else changing.
func TestSeedS7ReplyRegexRecomputationMbox(t *testing.T) {
	dir := t.TempDir()
	content := "From sender@example.com Mon Jan  2 15:04:05 2006\n" +
		"Subject: Re: Re: hello\n" +
		"\n" +
		"body\n"
	path := writeTestFile(t, dir, "test.mbox", content)

	mb := New(path)
	mb.ReplyRegex = regexp.MustCompile(`(?i)^(re: *)+`)
	if err := mb.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mb.Close(context.Background())

	e := mb.Mailbox().Emails[0]
	if e.Envelope.RealSubject != "hello" {
		t.Fatalf("RealSubject = %q, want %q", e.Envelope.RealSubject, "hello")
	}

	mb.ReplyRegex = regexp.MustCompile(`(?i)^re: *`)
	if err := mb.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	e = mb.Mailbox().Emails[0]
	if e.Envelope.RealSubject != "Re: hello" {
		t.Fatalf("RealSubject = %q, want %q", e.Envelope.RealSubject, "Re: hello")
	}
}

func TestParseFormatFromLineRoundTrip(t *testing.T) {
	date := time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC)
	line := FormatFromLine("alice@example.com", date)
	sender, got, ok := ParseFromLine(line)
	if !ok {
		t.Fatalf("ParseFromLine(%q) failed to parse", line)
	}
	if sender != "alice@example.com" {
		t.Fatalf("sender = %q, want alice@example.com", sender)
	}
	if !got.Equal(date) {
		t.Fatalf("date = %v, want %v", got, date)
	}
}
