package score

import (
	"regexp"
	"testing"

	"github.com/neomutt/neomutt-sub011/mail"
)

func TestEvaluateSumsMatchingRules(t *testing.T) {
	rules := []Rule{
		{Field: FieldSubject, Pattern: regexp.MustCompile(`(?i)urgent`), Value: 50},
		{Field: FieldFrom, Pattern: regexp.MustCompile(`boss@example\.com`), Value: 100},
		{Field: FieldSubject, Pattern: regexp.MustCompile(`newsletter`), Value: -20},
	}
	env := &mail.Envelope{
		Subject: "Urgent: quarterly numbers",
		From:    []mail.Address{{Addr: "boss@example.com"}},
	}
	if got := Evaluate(rules, env); got != 150 {
		t.Fatalf("score = %d, want 150", got)
	}
}

func TestEvaluateStopsOnExact(t *testing.T) {
	rules := []Rule{
		{Field: FieldSubject, Pattern: regexp.MustCompile(`spam`), Value: 10, Exact: true},
		{Field: FieldSubject, Pattern: regexp.MustCompile(`.`), Value: 1000},
	}
	env := &mail.Envelope{Subject: "spam offer"}
	if got := Evaluate(rules, env); got != 10 {
		t.Fatalf("score = %d, want 10 (exact rule should stop evaluation)", got)
	}
}

func TestEvaluateStopsOnMagnitudeThreshold(t *testing.T) {
	rules := []Rule{
		{Field: FieldSubject, Pattern: regexp.MustCompile(`critical`), Value: 9999},
		{Field: FieldSubject, Pattern: regexp.MustCompile(`.`), Value: 1},
	}
	env := &mail.Envelope{Subject: "critical outage"}
	if got := Evaluate(rules, env); got != 9999 {
		t.Fatalf("score = %d, want 9999", got)
	}
}

func TestApplyThresholds(t *testing.T) {
	e := New()
	e.SetRules([]Rule{
		{Field: FieldSubject, Pattern: regexp.MustCompile(`(?i)urgent`), Value: 100},
	})
	e.SetThresholds(Thresholds{Flag: 50})

	email := &mail.Email{Envelope: &mail.Envelope{Subject: "Urgent!"}}
	score := e.Apply(email)
	if score != 100 {
		t.Fatalf("score = %d, want 100", score)
	}
	if !email.Flags.Has(mail.FlagFlagged) {
		t.Fatalf("expected FlagFlagged to be set")
	}
}

func TestRescoreClearsNeedRescore(t *testing.T) {
	e := New()
	e.SetRules([]Rule{{Field: FieldSubject, Pattern: regexp.MustCompile(`x`), Value: 1}})
	if !e.NeedRescore {
		t.Fatalf("expected NeedRescore after SetRules")
	}
	emails := []*mail.Email{{Envelope: &mail.Envelope{Subject: "x"}}}
	e.Rescore(emails)
	if e.NeedRescore {
		t.Fatalf("expected NeedRescore cleared after Rescore")
	}
}
