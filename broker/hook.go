package broker

import (
	"crypto/subtle"
	"sync"
)

// AuthDecision is the three-valued result of authenticating a CONNECT.
type AuthDecision byte

const (
	Accept AuthDecision = iota
	BadUserOrPass
	NotAuthorized
)

// Authenticator decides whether a connecting client may proceed past
// CONNECT. hasUsername/hasPassword distinguish an absent field from an
// empty one, since an empty username is a valid (if unusual) identity.
type Authenticator interface {
	Authenticate(clientID, username, password string, hasUsername, hasPassword bool) AuthDecision
}

// BasicAuthHook authenticates against a fixed username/password table,
// using a constant-time comparison to avoid leaking password length or
// prefix through timing.
type BasicAuthHook struct {
	mu    sync.RWMutex
	users map[string]string
}

// NewBasicAuthHook creates an empty username/password table.
func NewBasicAuthHook() *BasicAuthHook {
	return &BasicAuthHook{users: make(map[string]string)}
}

// AddUser registers or overwrites a user's password.
func (h *BasicAuthHook) AddUser(username, password string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[username] = password
}

// RemoveUser deletes a user from the table.
func (h *BasicAuthHook) RemoveUser(username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.users, username)
}

// HasUser reports whether username is registered.
func (h *BasicAuthHook) HasUser(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.users[username]
	return ok
}

// UserCount returns the number of registered users.
func (h *BasicAuthHook) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// LoadUsers bulk-registers users, overwriting any existing entries.
func (h *BasicAuthHook) LoadUsers(users map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for u, p := range users {
		h.users[u] = p
	}
}

// Authenticate rejects a CONNECT with no username, an unknown username, or
// a mismatched password.
func (h *BasicAuthHook) Authenticate(clientID, username, password string, hasUsername, hasPassword bool) AuthDecision {
	if !hasUsername {
		return BadUserOrPass
	}

	h.mu.RLock()
	expected, ok := h.users[username]
	h.mu.RUnlock()
	if !ok {
		return BadUserOrPass
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(password)) != 1 {
		return BadUserOrPass
	}
	return Accept
}

// AnonymousAuthHook gates CONNECT packets that supply neither a username
// nor a password; anything carrying credentials is left for a later hook
// (e.g. BasicAuthHook) to judge.
type AnonymousAuthHook struct {
	mu             sync.RWMutex
	allowAnonymous bool
}

// NewAnonymousAuthHook creates a hook with the given anonymous-access
// policy.
func NewAnonymousAuthHook(allowAnonymous bool) *AnonymousAuthHook {
	return &AnonymousAuthHook{allowAnonymous: allowAnonymous}
}

// SetAllowAnonymous updates the anonymous-access policy at runtime.
func (h *AnonymousAuthHook) SetAllowAnonymous(allow bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowAnonymous = allow
}

// IsAnonymousAllowed reports the current anonymous-access policy.
func (h *AnonymousAuthHook) IsAnonymousAllowed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.allowAnonymous
}

// Authenticate accepts a credential-less CONNECT only if anonymous access
// is allowed; it accepts everything else, deferring the judgment call to
// whatever hook runs next.
func (h *AnonymousAuthHook) Authenticate(clientID, username, password string, hasUsername, hasPassword bool) AuthDecision {
	if !hasUsername && !hasPassword {
		h.mu.RLock()
		allow := h.allowAnonymous
		h.mu.RUnlock()
		if !allow {
			return NotAuthorized
		}
	}
	return Accept
}

// ChainAuthenticator runs a list of Authenticators in order, short-
// circuiting on the first non-Accept verdict.
type ChainAuthenticator struct {
	hooks []Authenticator
}

// NewChainAuthenticator builds a ChainAuthenticator over hooks, evaluated
// in the given order.
func NewChainAuthenticator(hooks ...Authenticator) *ChainAuthenticator {
	return &ChainAuthenticator{hooks: hooks}
}

func (c *ChainAuthenticator) Authenticate(clientID, username, password string, hasUsername, hasPassword bool) AuthDecision {
	for _, h := range c.hooks {
		if d := h.Authenticate(clientID, username, password, hasUsername, hasPassword); d != Accept {
			return d
		}
	}
	return Accept
}
