package mail

// Body is a node in the MIME tree. It is the parsed form of an IMAP
// BODYSTRUCTURE response (see imap/bodystruct) or of headers read directly
// off an mbox/MMDF message.
//
// Adapted from the teacher's flat email.Part list (email/message.go):
// that model suits building outgoing messages, where parts are numbered
// 1..n up front. Reading BODYSTRUCTURE needs an actual tree, since
// multipart/* and message/rfc822 parts nest arbitrarily, so Parts here
// holds children rather than a flat slice.
type Body struct {
	Type        string // "text", "multipart", "message", ...
	Subtype     string // "plain", "mixed", "rfc822", ...
	Parameters  map[string]string
	Disposition string
	DispParams  map[string]string
	Encoding    string // "7BIT", "8BIT", "BASE64", "QUOTED-PRINTABLE", ... (imap/bodystruct upper-cases it)
	Description string
	ContentID   string

	Offset    int64 // byte offset of this part's content within the message
	Length    int64
	HdrOffset int64 // byte offset of this part's own header block
	Lines     int64 // line count, meaningful for text/* and message/rfc822

	// Parts holds child parts for multipart/* and message/rfc822 bodies.
	// Leaf parts have a nil Parts.
	Parts []*Body
}

// IsMultipart reports whether this part has children to recurse into.
func (b *Body) IsMultipart() bool {
	return b.Type == "multipart" || (b.Type == "message" && b.Subtype == "rfc822")
}
