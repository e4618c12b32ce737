// Package session tracks the authenticated identity and drives the per-user load
// pipeline on sign-in and the cleanup on sign-out.
package session

import (
	"context"
	"sync"
	"time"

	"meritlog.org/internal/auth"
	"meritlog.org/internal/stream"
)

// Event is a session transition. An empty UserID means signed out.
type Event struct {
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// SignedIn reports whether the event carries an identity.
func (e Event) SignedIn() bool { return e.UserID != "" }

// Provider is the identity provider as seen by the session manager.
type Provider interface {
	// Current returns the active session; ok is false when signed out.
	Current(ctx context.Context) (ev Event, ok bool, err error)
	Subscribe(ctx context.Context) <-chan Event
	SignOut(ctx context.Context) error
}

// TokenProvider holds one session established from a signed bearer token.
type TokenProvider struct {
	verifier *auth.Verifier
	events   *stream.Stream[Event]
	now      func() time.Time

	mu      sync.RWMutex
	current Event
}

var _ Provider = (*TokenProvider)(nil)

func NewTokenProvider(v *auth.Verifier) *TokenProvider {
	return &TokenProvider{
		verifier: v,
		events:   stream.New[Event](),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SignIn verifies token and makes its subject the current session.
func (p *TokenProvider) SignIn(ctx context.Context, token string) (Event, error) {
	id, err := p.verifier.ParseAndValidate(token)
	if err != nil {
		return Event{}, err
	}
	ev := Event{UserID: id.UserID, Email: id.Email, ExpiresAt: id.ExpiresAt}
	p.mu.Lock()
	p.current = ev
	p.mu.Unlock()
	return ev, p.events.PublishWait(ctx, ev)
}

// Current returns the session unless its token has expired.
func (p *TokenProvider) Current(context.Context) (Event, bool, error) {
	p.mu.RLock()
	ev := p.current
	p.mu.RUnlock()
	if !ev.SignedIn() {
		return Event{}, false, nil
	}
	if !ev.ExpiresAt.IsZero() && p.now().After(ev.ExpiresAt) {
		return Event{}, false, nil
	}
	return ev, true, nil
}

func (p *TokenProvider) Subscribe(ctx context.Context) <-chan Event {
	return p.events.Subscribe(ctx)
}

// SignOut clears the session and notifies subscribers.
func (p *TokenProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = Event{}
	p.mu.Unlock()
	return p.events.PublishWait(ctx, Event{})
}
