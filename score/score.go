// Package score implements the auxiliary score engine spec.md §4.9
// describes as "not described in detail" beyond its rule shape: an
// ordered list of (pattern, value, exact) rules, evaluated by summing
// matching values, with thresholds mapping the final score to
// automatic flag changes.
//
// The pattern language itself is explicitly out of scope (spec.md §1
// Out-of-scope: "the score engine ... are implementation conveniences
// and are not described"). This package substitutes the simplest
// equivalent a Go implementer would reach for: a compiled *regexp.Regexp
// matched against one Email field, grounded on the teacher's own use of
// plain library regexps (no custom pattern VM) wherever it needed
// text matching, e.g. imap/imapparser.
package score

import (
	"regexp"

	"github.com/neomutt/neomutt-sub011/mail"
)

// Field names which part of an Email a Rule's pattern matches against.
type Field int

const (
	FieldSubject Field = iota
	FieldFrom
	FieldTo
)

// Rule is one entry in the ordered score list.
type Rule struct {
	Field   Field
	Pattern *regexp.Regexp
	Value   int
	Exact   bool // stop evaluation after this rule matches
}

// exactStop is the magnitude spec.md §4.9 names as also stopping
// evaluation, independent of the Exact flag: "unless a rule has exact
// or value ±9999".
const exactStop = 9999

// Thresholds maps a final score to automatic flag changes
// (score_threshold_read|flag|delete in spec.md §4.9).
type Thresholds struct {
	Read   int // score <= Read marks the message read
	Flag   int // score >= Flag marks the message flagged
	Delete int // score <= Delete marks the message deleted
}

// Engine is the ordered rule list plus thresholds for one account.
type Engine struct {
	Rules      []Rule
	Thresholds Thresholds

	// NeedRescore is set whenever Rules or Thresholds change and
	// cleared by Rescore; a caller whose current sort key is SCORE
	// should also force a resort when this was set (spec.md §4.9).
	NeedRescore bool
}

// New returns an Engine with no rules configured.
func New() *Engine {
	return &Engine{}
}

// SetRules replaces the rule list and marks the engine for rescoring.
func (e *Engine) SetRules(rules []Rule) {
	e.Rules = rules
	e.NeedRescore = true
}

// SetThresholds replaces the thresholds and marks the engine for
// rescoring.
func (e *Engine) SetThresholds(t Thresholds) {
	e.Thresholds = t
	e.NeedRescore = true
}

func fieldText(env *mail.Envelope, f Field) string {
	if env == nil {
		return ""
	}
	switch f {
	case FieldFrom:
		return addrListText(env.From)
	case FieldTo:
		return addrListText(env.To)
	default:
		return env.Subject
	}
}

func addrListText(addrs []mail.Address) string {
	var s string
	for i, a := range addrs {
		if i > 0 {
			s += ", "
		}
		s += a.Name + " <" + a.Addr + ">"
	}
	return s
}

// Evaluate sums the Value of every Rule whose Pattern matches env,
// stopping early at the first Rule that is Exact or whose own Value's
// magnitude is exactStop or greater.
func Evaluate(rules []Rule, env *mail.Envelope) int {
	total := 0
	for _, r := range rules {
		text := fieldText(env, r.Field)
		if !r.Pattern.MatchString(text) {
			continue
		}
		total += r.Value
		if r.Exact || abs(r.Value) >= exactStop {
			break
		}
	}
	return total
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Apply computes email's score from its own Envelope and sets
// Read/Flagged/Deleted per the Engine's thresholds, returning the
// computed score.
func (e *Engine) Apply(email *mail.Email) int {
	s := Evaluate(e.Rules, email.Envelope)
	if e.Thresholds.Read != 0 && s <= e.Thresholds.Read {
		email.Flags = email.Flags.Set(mail.FlagRead, true)
	}
	if e.Thresholds.Flag != 0 && s >= e.Thresholds.Flag {
		email.Flags = email.Flags.Set(mail.FlagFlagged, true)
	}
	if e.Thresholds.Delete != 0 && s <= e.Thresholds.Delete {
		email.Flags = email.Flags.Set(mail.FlagDeleted, true)
	}
	return s
}

// Rescore reapplies the engine to every email and clears NeedRescore;
// callers whose current sort key is SCORE should also force a resort
// after calling this, per spec.md §4.9.
func (e *Engine) Rescore(emails []*mail.Email) {
	for _, email := range emails {
		e.Apply(email)
	}
	e.NeedRescore = false
}
