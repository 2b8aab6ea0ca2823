// The mxdump command opens one or more mailboxes through mail/store.Store
// and prints a one-line summary per message: flags, subject, and sender.
//
// Only the mbox/MMDF backend is wired up here (it needs no network
// round-trip); IMAP and POP paths are rejected with a clear error rather
// than silently doing nothing, since dialing out is outside the scope of
// a local inspection tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"

	"github.com/neomutt/neomutt-sub011/mail"
	"github.com/neomutt/neomutt-sub011/mail/store"
	"github.com/neomutt/neomutt-sub011/mbox"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-reply-regex pattern] path [path ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flagReplyRegex := flag.String("reply-regex", `(?i)^re: *`, "regex stripped once from Subject to compute RealSubject")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var replyRegex *regexp.Regexp
	if *flagReplyRegex != "" {
		re, err := regexp.Compile(*flagReplyRegex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mxdump: -reply-regex: %v\n", err)
			os.Exit(1)
		}
		replyRegex = re
	}

	ctx := context.Background()
	s := store.New()
	status := 0
	for _, arg := range flag.Args() {
		if err := dump(ctx, s, arg, replyRegex); err != nil {
			fmt.Fprintf(os.Stderr, "mxdump: %s: %v\n", arg, err)
			status = 1
		}
	}
	os.Exit(status)
}

func dump(ctx context.Context, s *store.Store, arg string, replyRegex *regexp.Regexp) error {
	path := mail.NewPath(arg)
	switch path.Scheme() {
	case "imap", "imaps":
		return fmt.Errorf("IMAP mailboxes require a live server connection, not supported by mxdump")
	case "pop", "pops":
		return fmt.Errorf("POP3 mailboxes require a live server connection, not supported by mxdump")
	}

	backend := mbox.New(arg)
	backend.ReplyRegex = replyRegex

	id, err := s.Open(ctx, path, backend)
	if err != nil {
		return err
	}
	defer s.Close(ctx, id)

	mb, err := s.Mailbox(id)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s, %d messages (%d unread, %d deleted)\n",
		path.Pretty(), mb.Kind, len(mb.Emails), mb.Unread, mb.Deleted)
	for _, e := range mb.Emails {
		if !e.Active {
			continue
		}
		fmt.Printf("  %s %s\n", flagString(e.Flags), subjectOf(e))
	}
	return nil
}

func subjectOf(e *mail.Email) string {
	if e.Envelope == nil {
		return "(no envelope)"
	}
	from := "(unknown sender)"
	if len(e.Envelope.From) > 0 {
		from = e.Envelope.From[0].Addr
	}
	return fmt.Sprintf("%-30s %s", from, e.Envelope.RealSubject)
}

func flagString(f mail.Flag) string {
	out := []byte("-----")
	if !f.Has(mail.FlagRead) {
		out[0] = 'N'
	}
	if f.Has(mail.FlagFlagged) {
		out[1] = 'F'
	}
	if f.Has(mail.FlagReplied) {
		out[2] = 'R'
	}
	if f.Has(mail.FlagDeleted) {
		out[3] = 'D'
	}
	if f.Has(mail.FlagTagged) {
		out[4] = 'T'
	}
	return string(out)
}
