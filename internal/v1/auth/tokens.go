// Package auth implements the identity side of the broker: opaque access
// tokens, short-lived single-use RTM tickets, and the Origin allowlist for
// WebSocket upgrades. Tokens carry no claims; they are random 128-bit
// Base32 strings resolved by server-side lookup.
package auth

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/openrooms/orc-server/internal/v1/types"
)

// TicketTTL is how long an RTM ticket stays valid after minting.
const TicketTTL = 60 * time.Second

// Session records one issued access token.
type Session struct {
	Token    string
	UserID   types.UserIdType
	IssuedAt time.Time
}

type ticket struct {
	userID    types.UserIdType
	expiresAt time.Time
	used      bool
}

// Store issues and resolves tokens and tickets. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	tokens  map[string]*Session
	tickets map[string]*ticket
	clock   clock.PassiveClock
}

// NewStore returns an empty token store using the real clock.
func NewStore() *Store {
	return NewStoreWithClock(clock.RealClock{})
}

// NewStoreWithClock returns a token store with an injected clock for tests.
func NewStoreWithClock(c clock.PassiveClock) *Store {
	return &Store{
		tokens:  make(map[string]*Session),
		tickets: make(map[string]*ticket),
		clock:   c,
	}
}

// IssueToken associates a fresh opaque access token with the user.
func (s *Store) IssueToken(userID types.UserIdType) string {
	token := types.NewID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = &Session{Token: token, UserID: userID, IssuedAt: s.clock.Now()}
	return token
}

// Resolve returns the user a token belongs to.
func (s *Store) Resolve(token string) (types.UserIdType, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tokens[token]
	if !ok {
		return "", false
	}
	return sess.UserID, true
}

// Revoke invalidates a token. Revoking an unknown token is a no-op.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// ListSessions returns the sessions issued to a user, oldest first.
func (s *Store) ListSessions(userID types.UserIdType) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, sess := range s.tokens {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].IssuedAt.Before(out[j-1].IssuedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// MintTicket records a single-use RTM ticket for the user and returns it
// with its TTL in milliseconds.
func (s *Store) MintTicket(userID types.UserIdType) (string, int64) {
	tk := types.NewID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[tk] = &ticket{
		userID:    userID,
		expiresAt: s.clock.Now().Add(TicketTTL),
	}
	return tk, TicketTTL.Milliseconds()
}

// ConsumeTicket returns the ticket's user iff the ticket exists, is unused
// and unexpired. The ticket is atomically marked used, so a second call
// with the same ticket always fails.
func (s *Store) ConsumeTicket(tk string) (types.UserIdType, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[tk]
	if !ok || t.used || !s.clock.Now().Before(t.expiresAt) {
		return "", false
	}
	t.used = true
	return t.userID, true
}

// PruneTickets drops used and expired tickets. Called periodically; ticket
// validity never depends on it.
func (s *Store) PruneTickets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	n := 0
	for k, t := range s.tickets {
		if t.used || !now.Before(t.expiresAt) {
			delete(s.tickets, k)
			n++
		}
	}
	return n
}
