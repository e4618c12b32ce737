package session

import (
	"context"
	"sync"

	"meritlog.org/internal/auth"
	"meritlog.org/internal/entity"
	"meritlog.org/internal/legacy"
	"meritlog.org/internal/obs"
	"meritlog.org/internal/stream"
)

// Migrator runs the one-shot legacy migration for a user.
type Migrator interface {
	Run(ctx context.Context, userID string) legacy.Result
}

// State is what presentation consumers see of the session.
type State struct {
	Resolving         bool   `json:"resolving"`
	SignedIn          bool   `json:"signed_in"`
	UserID            string `json:"user_id,omitempty"`
	Email             string `json:"email,omitempty"`
	Loading           bool   `json:"loading"`
	ProfileIncomplete bool   `json:"profile_incomplete"`
	ProfileError      string `json:"profile_error,omitempty"`
	LoadError         string `json:"load_error,omitempty"`
	Migrated          int    `json:"migrated,omitempty"`
}

// Manager observes the provider and keeps the entity store in step with it.
type Manager struct {
	provider Provider
	store    *entity.Store
	migrator Migrator
	changes  *stream.Stream[State]

	mu    sync.RWMutex
	state State
	epoch uint64
}

func NewManager(p Provider, store *entity.Store, migrator Migrator) *Manager {
	return &Manager{
		provider: p,
		store:    store,
		migrator: migrator,
		changes:  stream.New[State](),
		state:    State{Resolving: true},
	}
}

// Run performs the initial session check and then handles provider events in order
// until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	events := m.provider.Subscribe(ctx)

	ev, ok, err := m.provider.Current(ctx)
	if err != nil {
		obs.Logger().Warn().Err(err).Msg("session check failed; treating as signed out")
	}
	if !ok {
		ev = Event{}
	}
	m.handle(ctx, ev)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, open := <-events:
			if !open {
				return ctx.Err()
			}
			m.handle(ctx, ev)
		}
	}
}

// State returns the current session state. The incomplete-profile flag is read from
// the store so profile edits are reflected without a reload.
func (m *Manager) State() State {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()
	if st.SignedIn && !st.Loading {
		p, loaded := m.store.Profile()
		st.ProfileIncomplete = !loaded || p.Incomplete()
	}
	return st
}

// Resolving is true until the first session check has completed.
func (m *Manager) Resolving() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Resolving
}

// Changes streams state updates until ctx ends.
func (m *Manager) Changes(ctx context.Context) <-chan State {
	return m.changes.Subscribe(ctx)
}

// Await blocks until the state satisfies pred or ctx ends.
func (m *Manager) Await(ctx context.Context, pred func(State) bool) (State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := m.changes.Subscribe(ctx)
	if st := m.State(); pred(st) {
		return st, nil
	}
	for {
		select {
		case <-ctx.Done():
			return m.State(), ctx.Err()
		case <-ch:
			if st := m.State(); pred(st) {
				return st, nil
			}
		}
	}
}

// SignOut clears local state before asking the provider to end the session, so no
// reader observes the previous user's data once SignOut returns.
func (m *Manager) SignOut(ctx context.Context) error {
	m.signOut()
	return m.provider.SignOut(ctx)
}

func (m *Manager) handle(ctx context.Context, ev Event) {
	cur := m.State()
	if !ev.SignedIn() {
		m.signOut()
		return
	}
	if cur.SignedIn && cur.UserID == ev.UserID {
		return
	}
	if cur.SignedIn {
		m.signOut()
	}
	m.signIn(ctx, ev)
}

func (m *Manager) signOut() {
	m.store.Reset()
	m.mu.Lock()
	wasSignedIn := m.state.SignedIn
	m.epoch++
	m.state = State{}
	st := m.state
	m.mu.Unlock()
	if wasSignedIn {
		obs.RecordSessionTransition("signed_out")
		obs.Logger().Info().Msg("session signed out")
	}
	m.changes.Publish(st)
}

// signIn binds the store and runs profile load, legacy migration, collection load and
// metrics rebuild in that order.
func (m *Manager) signIn(ctx context.Context, ev Event) {
	uid := ev.UserID
	m.store.Bind(uid)

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.state = State{SignedIn: true, UserID: uid, Email: ev.Email, Loading: true, ProfileIncomplete: true}
	st := m.state
	m.mu.Unlock()
	obs.RecordSessionTransition("signed_in")
	m.changes.Publish(st)

	ctx = auth.ContextWithUser(ctx, uid)
	log := obs.Logger().With().Str("user_id", uid).Logger()

	if err := m.store.LoadProfile(ctx); err != nil {
		st.ProfileError = err.Error()
		log.Warn().Err(err).Msg("profile load failed")
	}
	if m.migrator != nil {
		res := m.migrator.Run(ctx, uid)
		st.Migrated = res.Inserted
	}
	if err := m.store.LoadCollections(ctx); err != nil {
		st.LoadError = err.Error()
		log.Warn().Err(err).Msg("collection load failed")
	}
	st.Loading = false

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		log.Debug().Msg("sign-in pipeline superseded")
		return
	}
	m.state = st
	m.mu.Unlock()
	log.Info().Int("migrated", st.Migrated).Msg("session ready")
	m.changes.Publish(m.State())
}
