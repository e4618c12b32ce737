// Package entity holds the signed-in user's achievements, goals, files and profile,
// keeps them consistent with the remote store, and maintains year metrics alongside.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"meritlog.org/internal/aggregate"
	"meritlog.org/internal/audit"
	"meritlog.org/internal/obs"
	"meritlog.org/internal/tracker"
	"meritlog.org/internal/vault"
)

// Store is the session-scoped cache of one user's collections. Construct one per
// process, Bind it on sign-in and Reset it on sign-out.
type Store struct {
	remote tracker.Remote
	agg    *aggregate.Aggregator
	binder *vault.Binder
	now    func() time.Time

	compensate bool

	mu            sync.RWMutex
	userID        string
	gen           uint64
	achievements  []tracker.Achievement
	goals         []tracker.Goal
	files         []tracker.FileDescriptor
	profile       tracker.Profile
	profileLoaded bool
}

// Option configures a Store.
type Option func(*Store)

// WithAggregator shares an existing aggregator instead of creating one.
func WithAggregator(a *aggregate.Aggregator) Option {
	return func(s *Store) {
		if a != nil {
			s.agg = a
		}
	}
}

// WithCompensation removes a freshly uploaded evidence blob or avatar when the write
// that should reference it fails. Blobs that replaced an existing one are kept.
func WithCompensation() Option {
	return func(s *Store) { s.compensate = true }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New creates an unbound store over remote.
func New(remote tracker.Remote, opts ...Option) *Store {
	s := &Store{
		remote:     remote,
		agg:        aggregate.New(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.binder = vault.NewBinder(remote, s)
	return s
}

// Bind starts a session for userID with empty collections.
func (s *Store) Bind(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.userID = userID
}

// Reset clears every collection and the year metrics. Results of remote calls issued
// before Reset are discarded when they arrive.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.userID = ""
}

func (s *Store) clearLocked() {
	s.gen++
	s.achievements = nil
	s.goals = nil
	s.files = nil
	s.profile = tracker.Profile{}
	s.profileLoaded = false
	s.agg.Reset()
}

// session returns the bound user and the generation the caller must match on commit.
func (s *Store) session() (string, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.gen, s.userID != ""
}

// UserID returns the bound user, or "" when signed out.
func (s *Store) UserID() string {
	uid, _, _ := s.session()
	return uid
}

// Aggregator exposes the year metrics maintained by the store.
func (s *Store) Aggregator() *aggregate.Aggregator { return s.agg }

// Load fetches the profile and the three collections, then rebuilds the year metrics.
func (s *Store) Load(ctx context.Context) error {
	perr := s.LoadProfile(ctx)
	if err := s.LoadCollections(ctx); err != nil {
		return err
	}
	return perr
}

// LoadProfile fetches the profile row. A missing row leaves an empty, incomplete
// profile in place and is not an error.
func (s *Store) LoadProfile(ctx context.Context) error {
	uid, gen, ok := s.session()
	if !ok {
		return nil
	}
	p, err := s.remote.Profiles(ctx).Get(ctx, uid)
	if errors.Is(err, tracker.ErrNotFound) {
		p, err = tracker.Profile{ID: uid}, nil
	}
	if err != nil {
		audit.Failure(ctx, tracker.OpProfileGet, err, nil)
		return fmt.Errorf("%s: %w", tracker.OpProfileGet, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.profile = p
		s.profileLoaded = true
	}
	return nil
}

// LoadCollections fetches achievements, goals and the evidence listing concurrently and
// rebuilds the year metrics from the loaded achievements. Collections that failed to
// load stay empty; the first failure is returned.
func (s *Store) LoadCollections(ctx context.Context) error {
	uid, gen, ok := s.session()
	if !ok {
		return nil
	}

	var (
		achievements []tracker.Achievement
		goals        []tracker.Goal
		files        []tracker.FileDescriptor
	)
	var g errgroup.Group
	g.Go(func() error {
		items, err := s.remote.Achievements(ctx).List(ctx, uid)
		if err != nil {
			audit.Failure(ctx, tracker.OpAchievementList, err, nil)
			return fmt.Errorf("%s: %w", tracker.OpAchievementList, err)
		}
		achievements = items
		return nil
	})
	g.Go(func() error {
		items, err := s.remote.Goals(ctx).List(ctx, uid)
		if err != nil {
			audit.Failure(ctx, tracker.OpGoalList, err, nil)
			return fmt.Errorf("%s: %w", tracker.OpGoalList, err)
		}
		goals = items
		return nil
	})
	g.Go(func() error {
		objs, err := s.remote.Blobs(ctx, tracker.BucketEvidence).List(ctx, uid+"/")
		if err != nil {
			audit.Failure(ctx, tracker.OpBlobList, err, nil)
			return fmt.Errorf("%s: %w", tracker.OpBlobList, err)
		}
		sort.SliceStable(objs, func(i, j int) bool { return objs[i].UpdatedAt.After(objs[j].UpdatedAt) })
		for _, obj := range objs {
			if fd, ok := vault.Descriptor(uid, obj); ok {
				fd.ID = newID()
				files = append(files, fd)
			}
		}
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		obs.Logger().Debug().Str("user_id", uid).Msg("stale load discarded")
		return nil
	}
	s.achievements = achievements
	s.goals = goals
	s.files = files
	s.agg.Rebuild(achievements)
	return err
}

// Achievements returns a copy of the achievement collection, newest first.
func (s *Store) Achievements() []tracker.Achievement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]tracker.Achievement(nil), s.achievements...)
}

// Achievement returns the cached achievement with id.
func (s *Store) Achievement(id string) (tracker.Achievement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.achievements {
		if a.ID == id {
			return a, true
		}
	}
	return tracker.Achievement{}, false
}

// Goals returns a copy of the goal collection.
func (s *Store) Goals() []tracker.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]tracker.Goal(nil), s.goals...)
}

// Files returns a copy of the file descriptors.
func (s *Store) Files() []tracker.FileDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]tracker.FileDescriptor(nil), s.files...)
}

// File returns the cached descriptor with id.
func (s *Store) File(id string) (tracker.FileDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fd := range s.files {
		if fd.ID == id {
			return fd, true
		}
	}
	return tracker.FileDescriptor{}, false
}

// Profile returns the cached profile and whether it has been loaded.
func (s *Store) Profile() (tracker.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile, s.profileLoaded
}

// Metrics returns a copy of the year metric mapping.
func (s *Store) Metrics() map[string]aggregate.YearMetric {
	return s.agg.Snapshot()
}
