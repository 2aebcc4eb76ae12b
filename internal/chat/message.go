// Package chat implements the in-memory core of the relay: the session
// registry that binds display names to live connections, the message store
// that owns message identity and history, and the broadcast engine that
// routes connection events between them.
package chat

// Message is a single entry in the chat log. Author and reply-text fields are
// snapshots taken at creation time; renaming a user later does not relabel
// their prior messages.
type Message struct {
	ID          int64  `json:"id"`
	User        string `json:"user"`
	Text        string `json:"text"`
	ReplyTo     *int64 `json:"replyTo,omitempty"`
	ReplyToText string `json:"replyToText,omitempty"`
	Time        string `json:"time"`
	Seen        bool   `json:"seen"`
}

// Session is the core's view of one connection: an opaque identifier and at
// most one bound display name. The channel layer owns the connection itself;
// the core only ever holds name-to-session back-references.
type Session struct {
	ID   string
	Name string
}

// Bound reports whether the session has claimed a display name.
func (s *Session) Bound() bool {
	return s.Name != ""
}
