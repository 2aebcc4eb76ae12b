package chat

import "encoding/json"

// Uploader validates and decodes an inbound image payload. The returned
// write continuation performs the disk write and yields the reference URL;
// it is the only step of any event that may run off the engine's loop.
type Uploader interface {
	Prepare(fileName, fileData string) (write func() (url string, err error), err error)
}

// Engine is the event-routing hub. It owns the registry and the store,
// mutates them in response to inbound connection events, and describes the
// resulting fanout as Outbound emissions for the channel layer to deliver.
// It is stateless beyond its two stores and must only be driven from a single
// goroutine.
type Engine struct {
	registry *Registry
	store    *Store
	uploads  Uploader
}

// NewEngine constructs an engine with fresh stores. The registry and store
// live exactly as long as the engine, which lives as long as the process.
func NewEngine(uploads Uploader) *Engine {
	return &Engine{
		registry: NewRegistry(),
		store:    NewStore(),
		uploads:  uploads,
	}
}

// HandleEvent applies one inbound event and returns the emissions it caused.
// A non-nil error means the event was rejected; nothing was mutated, nothing
// is emitted, and no client learns about it beyond the caller's log line.
// Image uploads do not pass through here; see PrepareUpload.
func (e *Engine) HandleEvent(sess *Session, event string, data json.RawMessage) ([]Outbound, error) {
	switch event {
	case EvSetUsername:
		return e.setUsername(sess, data)
	case EvChatMessage:
		return e.chatMessage(sess, data)
	case EvDeleteMessage:
		return e.deleteMessage(sess, data)
	case EvEditMessage:
		return e.editMessage(sess, data)
	case EvMarkSeen:
		return e.markSeen(sess, data)
	case EvTyping, EvStopTyping:
		return e.relayTyping(event, data)
	default:
		return nil, ErrUnknownEvent
	}
}

// setUsername claims the name for the session and answers with the full
// backlog snapshot. Claiming always succeeds, so the history reply always
// goes out, including on a re-claim of the same name.
func (e *Engine) setUsername(sess *Session, data json.RawMessage) ([]Outbound, error) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return nil, ErrBadPayload
	}
	e.registry.Claim(sess, name)
	return toSender(EvLoadHistory, e.store.History()), nil
}

func (e *Engine) chatMessage(sess *Session, data json.RawMessage) ([]Outbound, error) {
	if !sess.Bound() {
		return nil, ErrNameNotBound
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrBadPayload
	}
	var replyTo *int64
	if p.ReplyTo != nil {
		id := int64(*p.ReplyTo)
		replyTo = &id
	}
	m := e.store.Append(sess.Name, p.Text, replyTo, p.ReplyToText)
	return toAll(EvChatMessage, m), nil
}

func (e *Engine) deleteMessage(sess *Session, data json.RawMessage) ([]Outbound, error) {
	if !sess.Bound() {
		return nil, ErrNameNotBound
	}
	var id ID
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, ErrBadPayload
	}
	if err := e.store.Delete(int64(id), sess.Name); err != nil {
		return nil, err
	}
	return toAll(EvDeleteMessage, int64(id)), nil
}

func (e *Engine) editMessage(sess *Session, data json.RawMessage) ([]Outbound, error) {
	if !sess.Bound() {
		return nil, ErrNameNotBound
	}
	var p editPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrBadPayload
	}
	if err := e.store.Edit(int64(p.ID), sess.Name, p.NewText); err != nil {
		return nil, err
	}
	return toAll(EvEditConfirmed, editConfirmed{ID: int64(p.ID), NewText: p.NewText}), nil
}

// markSeen has no bound-name precondition; an unbound reader is simply a
// reader whose name never matches any author.
func (e *Engine) markSeen(sess *Session, data json.RawMessage) ([]Outbound, error) {
	var id ID
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, ErrBadPayload
	}
	if err := e.store.MarkSeen(int64(id), sess.Name); err != nil {
		return nil, err
	}
	return toAll(EvMessageSeen, int64(id)), nil
}

// relayTyping is a stateless relay: the payload name goes back out under the
// same event to everyone but the sender.
func (e *Engine) relayTyping(event string, data json.RawMessage) ([]Outbound, error) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return nil, ErrBadPayload
	}
	return toPeers(event, name), nil
}

// UploadJob is an image upload that has been validated and decoded but not
// yet written. The author is snapshotted at prepare time, so a rename while
// the write is in flight does not relabel the eventual message.
type UploadJob struct {
	Author string
	write  func() (string, error)
}

// Write persists the image and returns its reference URL. It is safe to call
// off the engine's loop; the store is untouched until FinishUpload.
func (j *UploadJob) Write() (string, error) {
	return j.write()
}

// PrepareUpload validates an image upload event and returns the pending job.
// The store is not mutated; the caller runs Write off the loop and feeds the
// result back through FinishUpload.
func (e *Engine) PrepareUpload(sess *Session, data json.RawMessage) (*UploadJob, error) {
	if !sess.Bound() {
		return nil, ErrNameNotBound
	}
	var p uploadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrBadPayload
	}
	write, err := e.uploads.Prepare(p.FileName, p.FileData)
	if err != nil {
		return nil, err
	}
	return &UploadJob{Author: sess.Name, write: write}, nil
}

// FinishUpload appends the completed upload as a regular message whose body
// is the reference URL, and broadcasts it.
func (e *Engine) FinishUpload(author, url string) []Outbound {
	m := e.store.Append(author, url, nil, "")
	return toAll(EvChatMessage, m)
}

// Disconnect releases the session's registry entry. The departure broadcast
// fires only if the session had a bound name.
func (e *Engine) Disconnect(sess *Session) []Outbound {
	e.registry.Release(sess)
	if !sess.Bound() {
		return nil
	}
	return toAll(EvUserDisconnected, sess.Name)
}

// Registry exposes the session registry for inspection.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Store exposes the message store for inspection.
func (e *Engine) Store() *Store {
	return e.store
}
