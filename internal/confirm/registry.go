// Package confirm implements the pending-confirmation registry: a
// transient store of unconfirmed sensitive actions (draft transactions),
// keyed by unguessable tokens, each with its own expiry timer.
package confirm

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound covers missing, expired, and already-resolved tokens;
	// they are indistinguishable to the caller.
	ErrNotFound = errors.New("confirmation not found or expired")
	// ErrNotOwner is returned when someone other than the creator tries
	// to resolve an entry, so the user gets "this isn't yours" rather
	// than "not found".
	ErrNotOwner = errors.New("confirmation belongs to another user")
)

// ActionKind identifies what a confirmed entry should execute.
type ActionKind string

const (
	ActionCreateTransaction ActionKind = "create_transaction"
	ActionCancelTransaction ActionKind = "cancel_transaction"
)

// Entry is one pending action awaiting the owner's confirm or cancel.
type Entry struct {
	Token     string
	OwnerID   int64
	ChatID    int64
	Kind      ActionKind
	Payload   any
	CreatedAt time.Time
}

// DefaultTTL is how long an entry stays resolvable.
const DefaultTTL = 5 * time.Minute

// Registry holds pending entries in process memory. Every Create schedules
// its own removal after the TTL; expiry, resolve and discard are all
// terminal.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entryState
	ttl     time.Duration
}

type entryState struct {
	entry Entry
	timer *time.Timer
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		entries: make(map[string]*entryState),
		ttl:     ttl,
	}
}

// generateToken returns a cryptographically random hex token (6 bytes =
// 12 hex chars), short enough for callback payloads but not guessable.
func generateToken() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate confirmation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create registers a pending action for ownerID and returns its token.
func (r *Registry) Create(ownerID, chatID int64, kind ActionKind, payload any) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state := &entryState{
		entry: Entry{
			Token:     token,
			OwnerID:   ownerID,
			ChatID:    chatID,
			Kind:      kind,
			Payload:   payload,
			CreatedAt: time.Now(),
		},
	}
	state.timer = time.AfterFunc(r.ttl, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.entries, token)
	})
	r.entries[token] = state

	return token, nil
}

// Get returns the entry for token without resolving it.
func (r *Registry) Get(token string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.entries[token]
	if !ok {
		return Entry{}, false
	}
	return state.entry, true
}

// Resolve removes and returns the entry if byUser owns it. A second
// Resolve of the same token fails with ErrNotFound: resolution is
// terminal, which is what makes confirmation idempotent at the
// transaction level.
func (r *Registry) Resolve(token string, byUser int64) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.entries[token]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if state.entry.OwnerID != byUser {
		return Entry{}, ErrNotOwner
	}

	state.timer.Stop()
	delete(r.entries, token)
	return state.entry, nil
}

// Discard removes the entry regardless of disposition. Discarding an
// unknown token is a no-op.
func (r *Registry) Discard(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.entries[token]; ok {
		state.timer.Stop()
		delete(r.entries, token)
	}
}

// Len reports the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
