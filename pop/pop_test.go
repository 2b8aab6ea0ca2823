package pop

import (
	"bufio"
	"net"
	"regexp"
	"strings"
	"testing"

	"github.com/neomutt/neomutt-sub011/netconn"
)

// fakeServer answers a scripted sequence of commands over one side of a
// net.Pipe, matching leading prefixes and writing back canned replies;
// it stands in for a real POP3 server for the USER/PASS+STAT+LIST+UIDL
// exchange Open drives.
func fakeServer(t *testing.T, conn net.Conn, script map[string][]string, greeting string) {
	t.Helper()
	go func() {
		defer conn.Close()
		w := bufio.NewWriter(conn)
		writeLines(w, []string{greeting})
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimRight(line, "\r\n")
			reply, ok := script[cmd]
			if !ok {
				writeLines(w, []string{"-ERR unexpected command " + cmd})
				continue
			}
			writeLines(w, reply)
			if cmd == "QUIT" {
				return
			}
		}
	}()
}

func writeLines(w *bufio.Writer, lines []string) {
	for _, l := range lines {
		w.WriteString(l)
		w.WriteString("\r\n")
	}
	w.Flush()
}

func TestOpenUserPassAndList(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	script := map[string][]string{
		"CAPA":        {"+OK", "UIDL", "."},
		"USER alice":  {"+OK"},
		"PASS secret": {"+OK"},
		"STAT":        {"+OK 2 320"},
		"LIST":        {"+OK", "1 120", "2 200", "."},
		"UIDL":        {"+OK", "1 uid-one", "2 uid-two", "."},
		"TOP 1 0":     {"+OK", "Subject: Re: hello", "From: alice@example.com", "", "."},
		"TOP 2 0":     {"+OK", "Subject: second", "From: bob@example.com", "", "."},
	}
	fakeServer(t, server, script, "+OK POP3 ready")

	m := New(Config{User: "alice", Password: "secret", ReplyRegex: regexp.MustCompile(`(?i)^re: *`)})
	m.conn = netconn.New(client)

	greeting, err := m.conn.ReadLine()
	if err != nil {
		t.Fatalf("greeting: %v", err)
	}
	if !strings.HasPrefix(string(greeting), "+OK") {
		t.Fatalf("bad greeting %q", greeting)
	}
	ts := extractAPOPTimestamp(string(greeting))
	if ts != "" {
		t.Fatalf("expected no APOP timestamp, got %q", ts)
	}

	m.refreshCapabilities()
	if !m.capabilities["UIDL"] {
		t.Fatalf("expected UIDL capability advertised")
	}

	if err := m.authUserPass(); err != nil {
		t.Fatalf("authUserPass: %v", err)
	}
	m.state = StateTransaction

	if err := m.listMessages(); err != nil {
		t.Fatalf("listMessages: %v", err)
	}
	if got := len(m.mbox.Emails); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}

	e := m.mbox.Emails[0]
	if e.Envelope == nil {
		t.Fatalf("expected Envelope populated from TOP 1 0")
	}
	if e.Envelope.Subject != "Re: hello" {
		t.Fatalf("Subject = %q", e.Envelope.Subject)
	}
	if e.Envelope.RealSubject != "hello" {
		t.Fatalf("RealSubject = %q, want %q", e.Envelope.RealSubject, "hello")
	}
}

func TestExtractAPOPTimestamp(t *testing.T) {
	ts := extractAPOPTimestamp("+OK POP3 server ready <1896.697170952@dbc.mtview.ca.us>")
	if ts != "<1896.697170952@dbc.mtview.ca.us>" {
		t.Fatalf("got %q", ts)
	}
	if got := extractAPOPTimestamp("+OK no timestamp here"); got != "" {
		t.Fatalf("expected empty timestamp, got %q", got)
	}
}

func TestDottedCommandUnstuffing(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	script := map[string][]string{
		"RETR 1": {"+OK 2 octets", "..leading dot", "plain line", "."},
	}
	fakeServer(t, server, script, "+OK ready")

	m := New(Config{})
	m.conn = netconn.New(client)
	if _, err := m.conn.ReadLine(); err != nil {
		t.Fatalf("greeting: %v", err)
	}

	data, err := m.RETR(1)
	if err != nil {
		t.Fatalf("RETR: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, ".leading dot") {
		t.Fatalf("expected unstuffed leading dot, got %q", got)
	}
	if !strings.Contains(got, "plain line") {
		t.Fatalf("expected plain line, got %q", got)
	}
}
