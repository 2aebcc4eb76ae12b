package chat

import "time"

// timeLayout is the display timestamp format stamped onto messages at
// creation. It is never recomputed afterwards.
const timeLayout = "15:04"

// Store is the ordered message log for the lifetime of the process. It owns
// message identity: ids come from a global counter, increase strictly in
// creation order, and are never reused even after deletion. The engine's
// event loop is the only caller, so no locking is needed.
type Store struct {
	nextID int64
	msgs   []*Message
	now    func() time.Time
}

// NewStore returns an empty store whose first message will have id 0.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append creates a message authored by author, assigns it the next id, stamps
// the current wall-clock display time, and appends it to the log. It always
// succeeds.
func (s *Store) Append(author, text string, replyTo *int64, replyToText string) *Message {
	m := &Message{
		ID:          s.nextID,
		User:        author,
		Text:        text,
		ReplyTo:     replyTo,
		ReplyToText: replyToText,
		Time:        s.now().Format(timeLayout),
	}
	s.nextID++
	s.msgs = append(s.msgs, m)
	return m
}

// Find returns the message with the given id, or nil if it is not in the log.
func (s *Store) Find(id int64) *Message {
	for _, m := range s.msgs {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Delete removes the message with the given id, but only if requester is its
// recorded author. There is no admin override.
func (s *Store) Delete(id int64, requester string) error {
	for i, m := range s.msgs {
		if m.ID != id {
			continue
		}
		if m.User != requester {
			return ErrNotAuthor
		}
		s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
		return nil
	}
	return ErrNotFound
}

// Edit replaces the message body in place, but only if requester is the
// recorded author. Timestamp, reply fields, and the seen flag are untouched.
func (s *Store) Edit(id int64, requester, newText string) error {
	m := s.Find(id)
	if m == nil {
		return ErrNotFound
	}
	if m.User != requester {
		return ErrNotAuthor
	}
	m.Text = newText
	return nil
}

// MarkSeen flips the seen flag, but only once per message and never for the
// message's own author.
func (s *Store) MarkSeen(id int64, reader string) error {
	m := s.Find(id)
	if m == nil {
		return ErrNotFound
	}
	if m.User == reader {
		return ErrOwnMessage
	}
	if m.Seen {
		return ErrAlreadySeen
	}
	m.Seen = true
	return nil
}

// History returns the current log in creation order, deleted entries absent.
// A newly joined participant receives this as one snapshot.
func (s *Store) History() []*Message {
	out := make([]*Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len reports the number of messages currently in the log.
func (s *Store) Len() int {
	return len(s.msgs)
}
