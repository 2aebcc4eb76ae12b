package chat

import "errors"

// The wire protocol never surfaces failures to clients; every rejected event
// degrades to "nothing observably happens". These sentinels carry the reason
// internally so callers can log it and tests can assert on it.
var (
	// ErrNameNotBound rejects events that require a claimed display name.
	ErrNameNotBound = errors.New("chat: connection has no bound display name")

	// ErrNotFound rejects operations targeting a message id that is not in
	// the log (never created, or already deleted).
	ErrNotFound = errors.New("chat: message not found")

	// ErrNotAuthor rejects edit and delete requests from anyone other than
	// the message's recorded author.
	ErrNotAuthor = errors.New("chat: requester is not the message author")

	// ErrAlreadySeen rejects repeated seen-marks; the flag is monotonic.
	ErrAlreadySeen = errors.New("chat: message already marked seen")

	// ErrOwnMessage rejects an author marking their own message seen.
	ErrOwnMessage = errors.New("chat: author cannot mark own message seen")

	// ErrBadPayload rejects frames whose data does not decode into the shape
	// the event requires.
	ErrBadPayload = errors.New("chat: malformed event payload")

	// ErrUnknownEvent rejects frames with an event name the routing table
	// does not know.
	ErrUnknownEvent = errors.New("chat: unknown event")
)
