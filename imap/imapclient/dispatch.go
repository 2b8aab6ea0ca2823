package imapclient

import "strings"

// dispatchUntagged interprets the tokens following "*" and forwards the
// parsed result to q.sink (spec.md §4.4 "Untagged effects"). Unknown
// keywords are ignored rather than treated as protocol errors: servers
// routinely send untagged data (e.g. "* OK [...] text" greetings, "* BYE")
// that every backend does not need to act on.
func (q *Queue) dispatchUntagged(tokens []token) {
	if len(tokens) == 0 {
		return
	}

	if n, ok := parseUint32(tokens[0].text); ok && len(tokens) >= 2 {
		switch strings.ToUpper(tokens[1].text) {
		case "EXISTS":
			q.sink.Exists(n)
		case "RECENT":
			q.sink.Recent(n)
		case "EXPUNGE":
			q.sink.Expunge(n)
		case "FETCH":
			group, _, err := parenGroup(tokens, 2)
			if err != nil {
				return
			}
			q.sink.Fetch(n, parseFetchAttrs(group))
		}
		return
	}

	switch strings.ToUpper(tokens[0].text) {
	case "OK", "NO", "BAD", "PREAUTH", "BYE":
		code, text := parseOptionalCode(tokens[1:])
		if code != nil {
			q.sink.StatusCode(*code)
		}
		_ = joinAtoms(text)
	case "CAPABILITY":
		caps := make([]string, len(tokens)-1)
		for i, t := range tokens[1:] {
			caps[i] = t.text
		}
		q.sink.Capability(caps)
	case "FLAGS":
		group, _, err := parenGroup(tokens, 1)
		if err != nil {
			return
		}
		flags := make([]string, len(group))
		for i, t := range group {
			flags[i] = t.text
		}
		q.sink.Flags(flags)
	case "LIST", "LSUB":
		dispatchList(q, tokens, strings.ToUpper(tokens[0].text) == "LSUB")
	case "SEARCH":
		var nums []uint32
		for _, t := range tokens[1:] {
			if n, ok := parseUint32(t.text); ok {
				nums = append(nums, n)
			}
		}
		q.sink.Search(nums)
	case "STATUS":
		if len(tokens) < 2 {
			return
		}
		mailbox := tokens[1].text
		group, _, err := parenGroup(tokens, 2)
		if err != nil {
			return
		}
		items := make(map[string]int64)
		for i := 0; i+1 < len(group); i += 2 {
			if v, ok := parseInt64(group[i+1].text); ok {
				items[strings.ToUpper(group[i].text)] = v
			}
		}
		q.sink.Status(mailbox, items)
	case "VANISHED":
		i := 1
		earlier := false
		if i < len(tokens) && tokens[i].kind == tokOpen {
			group, next, err := parenGroup(tokens, i)
			if err != nil {
				return
			}
			for _, t := range group {
				if strings.ToUpper(t.text) == "EARLIER" {
					earlier = true
				}
			}
			i = next
		}
		if i >= len(tokens) {
			return
		}
		uids, err := parseUIDSetTokens(tokens[i].text)
		if err != nil {
			return
		}
		q.sink.Vanished(uids, earlier)
	}
}

func dispatchList(q *Queue, tokens []token, isLSUB bool) {
	if len(tokens) < 2 {
		return
	}
	var attrs []string
	i := 1
	if tokens[i].kind == tokOpen {
		group, next, err := parenGroup(tokens, i)
		if err != nil {
			return
		}
		for _, t := range group {
			attrs = append(attrs, t.text)
		}
		i = next
	}
	if i >= len(tokens) {
		return
	}
	var delim byte
	if tokens[i].text != "NIL" && len(tokens[i].text) > 0 {
		delim = tokens[i].text[0]
	}
	i++
	if i >= len(tokens) {
		return
	}
	name := tokens[i].text
	q.sink.List(attrs, delim, name, isLSUB)
}

// parseFetchAttrs extracts the data items this package understands from
// a flat "(name value name value ...)" FETCH group; BODYSTRUCTURE and
// ENVELOPE keep their raw bracketed text for a higher-level parser.
func parseFetchAttrs(group []token) FetchAttrs {
	var attrs FetchAttrs
	for i := 0; i < len(group); i++ {
		switch strings.ToUpper(group[i].text) {
		case "UID":
			if i+1 < len(group) {
				if v, ok := parseUint32(group[i+1].text); ok {
					attrs.UID = v
					attrs.HaveUID = true
				}
				i++
			}
		case "FLAGS":
			flagGroup, next, err := parenGroup(group, i+1)
			if err == nil {
				for _, t := range flagGroup {
					attrs.Flags = append(attrs.Flags, t.text)
				}
				attrs.HaveFlags = true
				i = next - 1
			}
		case "MODSEQ":
			modGroup, next, err := parenGroup(group, i+1)
			if err == nil && len(modGroup) == 1 {
				if v, ok := parseInt64(modGroup[0].text); ok {
					attrs.ModSeq = v
					attrs.HaveModSeq = true
				}
				i = next - 1
			}
		case "RFC822.SIZE":
			if i+1 < len(group) {
				if v, ok := parseInt64(group[i+1].text); ok {
					attrs.RFC822Size = v
					attrs.HaveSize = true
				}
				i++
			}
		case "INTERNALDATE":
			if i+1 < len(group) {
				attrs.InternalDate = group[i+1].text
				attrs.HaveDate = true
				i++
			}
		case "BODYSTRUCTURE":
			end, text := spanSExpr(group, i+1)
			attrs.BodyStructure = text
			i = end - 1
		case "ENVELOPE":
			end, text := spanSExpr(group, i+1)
			attrs.Envelope = text
			i = end - 1
		case "BODY[]":
			if i+1 < len(group) && group[i+1].kind == tokLiteral {
				attrs.RawBody = group[i+1].text
				attrs.HaveRawBody = true
				i++
			}
		}
	}
	return attrs
}

// spanSExpr returns the raw text of the balanced-parenthesis expression
// (or single atom) starting at group[start], and the index just past
// it. Atoms that were originally quoted strings or literals are
// re-quoted on the way out (quoteSExprAtom), so a value containing a
// space - a MIME parameter like name="my file.txt", or a real
// Subject/display-name on the ENVELOPE path - is not re-split into
// multiple atoms when bodystruct.Parse/envelope.Parse re-tokenize this
// reconstructed text.
func spanSExpr(group []token, start int) (next int, text string) {
	if start >= len(group) {
		return start, ""
	}
	if group[start].kind != tokOpen {
		return start + 1, quoteSExprAtom(group[start])
	}
	inner, end, err := parenGroup(group, start)
	if err != nil {
		return len(group), ""
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, t := range inner {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch t.kind {
		case tokOpen:
			b.WriteByte('(')
		case tokClose:
			b.WriteByte(')')
		default:
			b.WriteString(quoteSExprAtom(t))
		}
	}
	b.WriteByte(')')
	return end, b.String()
}

// quoteSExprAtom reconstructs wire text for one atom token: a token
// that originated as a quoted string or a literal is re-quoted
// (escaping backslash and double-quote) so it round-trips through a
// downstream tokenizer as a single string again; a bare atom (NIL,
// numbers, unquoted keywords) is left untouched.
func quoteSExprAtom(t token) string {
	if t.kind == tokLiteral || t.quoted {
		return quoteIMAPString(t.text)
	}
	return t.text
}

func quoteIMAPString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// parseUIDSetTokens parses a uid-set string (e.g. "1:4,6,8:10") as found
// in a VANISHED response. It does not call imap/uidset's Parse, which
// reads the same grammar, so that this package does not import
// imap/uidset.
func parseUIDSetTokens(s string) ([]uint32, error) {
	var out []uint32
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, ":"); ok {
			a, okA := parseUint32(lo)
			b, okB := parseUint32(hi)
			if !okA || !okB {
				return nil, ErrProtocol
			}
			for v := a; v <= b; v++ {
				out = append(out, v)
			}
			continue
		}
		v, ok := parseUint32(part)
		if !ok {
			return nil, ErrProtocol
		}
		out = append(out, v)
	}
	return out, nil
}
