package mail

import "regexp"

// ComputeRealSubject strips a single leading match of replyRegex from
// subject (spec.md §8 Seed Test S7): the regex is applied once, so
// whether repeated "Re: " prefixes collapse in one pass is entirely a
// property of the regex itself ("^(re: *)+" repeats internally and
// strips them all; "^re: *" strips only the first). A nil replyRegex,
// or one that does not match at the very start, leaves subject
// unchanged.
func ComputeRealSubject(subject string, replyRegex *regexp.Regexp) string {
	if replyRegex == nil {
		return subject
	}
	loc := replyRegex.FindStringIndex(subject)
	if loc == nil || loc[0] != 0 || loc[1] == 0 {
		return subject
	}
	return subject[loc[1]:]
}
