package chat

import "sync"

// SessionRegistry tracks which identities are held by live connections and
// enforces global uniqueness. It holds no durable state; after a restart all
// claims are rebuilt from the connect/claim sequence.
type SessionRegistry struct {
	mu         sync.RWMutex
	byIdentity map[string]string // identity -> connID
	byConn     map[string]string // connID -> identity
}

// NewSessionRegistry creates an empty session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byIdentity: make(map[string]string),
		byConn:     make(map[string]string),
	}
}

// Claim binds identity exclusively to connID until Release. The identity's
// lexical form is the caller's precondition; Claim only arbitrates
// uniqueness. A session claims exactly once.
func (r *SessionRegistry) Claim(connID, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[connID]; ok {
		return ErrAlreadyIdentified
	}
	if _, ok := r.byIdentity[identity]; ok {
		return ErrIdentityTaken
	}

	r.byIdentity[identity] = connID
	r.byConn[connID] = identity
	return nil
}

// Release drops the claim held by connID, if any, and returns the released
// identity. Releasing an unidentified connection is a no-op.
func (r *SessionRegistry) Release(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	delete(r.byIdentity, identity)
	return identity, true
}

// Identity returns the identity held by connID.
func (r *SessionRegistry) Identity(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.byConn[connID]
	return identity, ok
}

// Holder returns the connection currently holding identity.
func (r *SessionRegistry) Holder(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byIdentity[identity]
	return connID, ok
}

// Count returns the number of identified sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
