package mail

import (
	"regexp"
	"testing"
)

// TestSeedS7ReplyRegexRecomputation mirrors Seed Test S7: changing the
// configured reply-regex and recomputing changes RealSubject, without
// needing any other part of the Envelope to change.
func TestSeedS7ReplyRegexRecomputation(t *testing.T) {
	repeating := regexp.MustCompile(`(?i)^(re: *)+`)
	subject := "Re: Re: hello"
	if got := ComputeRealSubject(subject, repeating); got != "hello" {
		t.Fatalf("repeating regex: got %q, want %q", got, "hello")
	}

	single := regexp.MustCompile(`(?i)^re: *`)
	if got := ComputeRealSubject(subject, single); got != "Re: hello" {
		t.Fatalf("single regex: got %q, want %q", got, "Re: hello")
	}
}

func TestComputeRealSubjectNoMatch(t *testing.T) {
	re := regexp.MustCompile(`(?i)^re: *`)
	if got := ComputeRealSubject("hello", re); got != "hello" {
		t.Fatalf("got %q, want unchanged %q", got, "hello")
	}
}

func TestComputeRealSubjectNilRegex(t *testing.T) {
	if got := ComputeRealSubject("Re: hello", nil); got != "Re: hello" {
		t.Fatalf("got %q, want unchanged", got)
	}
}
