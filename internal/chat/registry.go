package chat

// Registry maps live display names to their sessions. Names are case
// sensitive and last-bind-wins: a second connection claiming an in-use name
// silently takes over the entry, and the displaced session is not notified.
// The engine's event loop is the only caller, so no locking is needed.
type Registry struct {
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Claim binds name to sess. If sess currently holds a different name, its old
// entry is dropped first. Any prior owner of name is overwritten without
// notification. Names are not validated; Claim always succeeds.
func (r *Registry) Claim(sess *Session, name string) {
	if sess.Name != name {
		if cur, ok := r.sessions[sess.Name]; ok && cur == sess {
			delete(r.sessions, sess.Name)
		}
	}
	sess.Name = name
	r.sessions[name] = sess
}

// Release removes the entry owned by sess, if any. A session that was
// displaced by another connection claiming its name no longer owns an entry,
// so Release finds nothing to remove for it.
func (r *Registry) Release(sess *Session) {
	if cur, ok := r.sessions[sess.Name]; ok && cur == sess {
		delete(r.sessions, sess.Name)
	}
}

// Lookup returns the session currently bound to name.
func (r *Registry) Lookup(name string) (*Session, bool) {
	sess, ok := r.sessions[name]
	return sess, ok
}

// Len reports the number of bound names.
func (r *Registry) Len() int {
	return len(r.sessions)
}
