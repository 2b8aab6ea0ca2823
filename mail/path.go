package mail

import "strings"

// pathFlags tracks which of Path's derived forms have already been
// computed, so repeated calls to Canon/Pretty are cheap.
type pathFlags uint8

const (
	pathHaveCanon pathFlags = 1 << iota
	pathHavePretty
)

// Path is a mailbox location: a URL (imap[s]://, pop[s]://) or a plain
// filesystem path, together with its derived forms.
//
//	Orig   the string as given by the user or config
//	Canon  normalised form used for comparison and as the wire name
//	Pretty abbreviated form used for display
type Path struct {
	Orig   string
	canon  string
	pretty string
	flags  pathFlags
}

// NewPath wraps a raw path/URL string. Canon/Pretty are computed lazily.
func NewPath(orig string) Path {
	return Path{Orig: orig}
}

// Scheme returns the lower-cased URL scheme, or "" for a filesystem path.
func (p Path) Scheme() string {
	if i := strings.Index(p.Orig, "://"); i >= 0 {
		return strings.ToLower(p.Orig[:i])
	}
	return ""
}

// Canon returns the canonicalised form: scheme and host lower-cased,
// credentials stripped, and an empty or "/"-only or case-insensitive "inbox" IMAP
// mailbox path canonicalised to "INBOX" (spec.md §6).
func (p *Path) Canon() string {
	if p.flags&pathHaveCanon != 0 {
		return p.canon
	}
	p.canon = canonicalize(p.Orig)
	p.flags |= pathHaveCanon
	return p.canon
}

func canonicalize(orig string) string {
	scheme := ""
	rest := orig
	if i := strings.Index(orig, "://"); i >= 0 {
		scheme = strings.ToLower(orig[:i])
		rest = orig[i+3:]
	}
	if scheme != "imap" && scheme != "imaps" && scheme != "pop" && scheme != "pops" {
		return orig
	}

	// Strip userinfo (user[:pass]@) from the canonical form.
	hostAndPath := rest
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		hostAndPath = rest[at+1:]
	}

	host := hostAndPath
	mboxPath := ""
	if slash := strings.Index(hostAndPath, "/"); slash >= 0 {
		host = hostAndPath[:slash]
		mboxPath = hostAndPath[slash+1:]
	}
	host = strings.ToLower(host)

	if scheme == "imap" || scheme == "imaps" {
		if mboxPath == "" || mboxPath == "/" || strings.EqualFold(mboxPath, "inbox") {
			mboxPath = "INBOX"
		}
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	if mboxPath != "" {
		b.WriteByte('/')
		b.WriteString(mboxPath)
	}
	return b.String()
}

// Pretty returns a shortened display form. For remote paths this is
// currently the mailbox name alone; for local paths it is Orig.
func (p *Path) Pretty() string {
	if p.flags&pathHavePretty != 0 {
		return p.pretty
	}
	canon := p.Canon()
	p.pretty = canon
	if i := strings.LastIndex(canon, "/"); i >= 0 && p.Scheme() != "" {
		p.pretty = canon[i+1:]
	}
	p.flags |= pathHavePretty
	return p.pretty
}

// Compare orders two paths by their canonical forms: scheme first; host
// is case-insensitive, since Canon lower-cases it; a path ending in
// "/INBOX" sorts before any other path of the same scheme; otherwise
// plain string comparison of the canonical form. User and password are
// stripped by Canon and take no part in the comparison, and a port is
// compared as part of the host, so "host" and "host:143" never compare
// equal.
func Compare(a, b *Path) int {
	as, bs := a.Scheme(), b.Scheme()
	if as != bs {
		return strings.Compare(as, bs)
	}
	ac, bc := a.Canon(), b.Canon()
	if ac == bc {
		return 0
	}
	aInbox := strings.HasSuffix(ac, "/INBOX")
	bInbox := strings.HasSuffix(bc, "/INBOX")
	if aInbox != bInbox {
		if aInbox {
			return -1
		}
		return 1
	}
	return strings.Compare(ac, bc)
}
