package tracker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"meritlog.org/internal/ids"
)

// InMemory implements Remote with in-process concurrency safety. It backs tests and
// the local demo mode; FailOn injects per-operation failures.
type InMemory struct {
	mu           sync.RWMutex
	profiles     map[string]Profile
	achievements map[string]Achievement
	goals        map[string]Goal
	blobs        map[string]map[string]memBlob // bucket -> path -> blob
	failures     map[string]error
	calls        map[string]int
	baseURL      string
}

type memBlob struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

var _ Remote = (*InMemory)(nil)

// NewInMemory creates an empty remote store.
func NewInMemory() *InMemory {
	return &InMemory{
		profiles:     make(map[string]Profile),
		achievements: make(map[string]Achievement),
		goals:        make(map[string]Goal),
		blobs:        make(map[string]map[string]memBlob),
		failures:     make(map[string]error),
		calls:        make(map[string]int),
		baseURL:      "memory://storage",
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears the failure.
func (m *InMemory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls reports how many times op was invoked, failed calls included.
func (m *InMemory) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// PutProfile seeds a profile row.
func (m *InMemory) PutProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

// BlobData returns the stored bytes at path, if any.
func (m *InMemory) BlobData(bucket, path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[bucket][path]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, true
}

// enter records the call and returns the injected failure, if any. Caller holds mu.
func (m *InMemory) enter(op string) error {
	m.calls[op]++
	return m.failures[op]
}

func (m *InMemory) Profiles(context.Context) ProfileStore         { return memProfiles{m} }
func (m *InMemory) Achievements(context.Context) AchievementStore { return memAchievements{m} }
func (m *InMemory) Goals(context.Context) GoalStore               { return memGoals{m} }
func (m *InMemory) Blobs(_ context.Context, bucket string) BlobStore {
	return memBlobs{m: m, bucket: bucket}
}

// Profiles -------------------------------------------------------------------

type memProfiles struct{ m *InMemory }

func (s memProfiles) Get(ctx context.Context, userID string) (Profile, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpProfileGet); err != nil {
		return Profile{}, err
	}
	p, ok := s.m.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s memProfiles) Update(ctx context.Context, userID string, upd ProfileUpdate) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpProfileUpdate); err != nil {
		return err
	}
	p, ok := s.m.profiles[userID]
	if !ok {
		p = Profile{ID: userID}
	}
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
	}
	if upd.TargetRole != nil {
		p.TargetRole = *upd.TargetRole
	}
	if upd.TargetGoal != nil {
		p.TargetGoal = *upd.TargetGoal
	}
	if upd.AvatarPath != nil {
		p.AvatarPath = *upd.AvatarPath
	}
	if upd.LastLoggedDate != nil {
		d := *upd.LastLoggedDate
		p.LastLoggedDate = &d
	}
	s.m.profiles[userID] = p
	return nil
}

// Achievements ---------------------------------------------------------------

type memAchievements struct{ m *InMemory }

func (s memAchievements) List(ctx context.Context, userID string) ([]Achievement, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpAchievementList); err != nil {
		return nil, err
	}
	var res []Achievement
	for _, a := range s.m.achievements {
		if a.UserID == userID {
			res = append(res, a)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Date.Equal(res[j].Date) {
			return res[i].ID > res[j].ID
		}
		return res[i].Date.After(res[j].Date)
	})
	return res, nil
}

func (s memAchievements) Insert(ctx context.Context, a Achievement) (Achievement, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpAchievementInsert); err != nil {
		return Achievement{}, err
	}
	return s.insertLocked(a), nil
}

func (s memAchievements) InsertBatch(ctx context.Context, items []Achievement) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpAchievementBatch); err != nil {
		return 0, err
	}
	existing := make(map[string]bool)
	for _, a := range s.m.achievements {
		if a.LegacyKey != "" {
			existing[a.LegacyKey] = true
		}
	}
	n := 0
	for _, a := range items {
		if a.LegacyKey != "" {
			if existing[a.LegacyKey] {
				continue
			}
			existing[a.LegacyKey] = true
		}
		s.insertLocked(a)
		n++
	}
	return n, nil
}

func (s memAchievements) insertLocked(a Achievement) Achievement {
	a.ID = ids.New()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.DisplayDate == "" {
		a.DisplayDate = DisplayDate(a.Date)
	}
	s.m.achievements[a.ID] = a
	return a
}

func (s memAchievements) Update(ctx context.Context, userID, id string, upd AchievementUpdate) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpAchievementUpdate); err != nil {
		return err
	}
	a, ok := s.m.achievements[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	s.m.achievements[id] = upd.Apply(a)
	return nil
}

func (s memAchievements) Delete(ctx context.Context, userID, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpAchievementDelete); err != nil {
		return err
	}
	a, ok := s.m.achievements[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	delete(s.m.achievements, id)
	return nil
}

// Goals ----------------------------------------------------------------------

type memGoals struct{ m *InMemory }

func (s memGoals) List(ctx context.Context, userID string) ([]Goal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpGoalList); err != nil {
		return nil, err
	}
	var res []Goal
	for _, g := range s.m.goals {
		if g.UserID == userID {
			res = append(res, g)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (s memGoals) Insert(ctx context.Context, g Goal) (Goal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpGoalInsert); err != nil {
		return Goal{}, err
	}
	g.ID = ids.New()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if g.Status == "" {
		g.Status = GoalInProgress
	}
	s.m.goals[g.ID] = g
	return g, nil
}

func (s memGoals) Update(ctx context.Context, userID, id string, upd GoalUpdate) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpGoalUpdate); err != nil {
		return err
	}
	g, ok := s.m.goals[id]
	if !ok || g.UserID != userID {
		return ErrNotFound
	}
	s.m.goals[id] = upd.Apply(g)
	return nil
}

func (s memGoals) Delete(ctx context.Context, userID, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpGoalDelete); err != nil {
		return err
	}
	g, ok := s.m.goals[id]
	if !ok || g.UserID != userID {
		return ErrNotFound
	}
	delete(s.m.goals, id)
	return nil
}

// Blobs ----------------------------------------------------------------------

type memBlobs struct {
	m      *InMemory
	bucket string
}

func (s memBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpBlobUpload); err != nil {
		return err
	}
	if strings.TrimSpace(path) == "" {
		return ErrInvalidInput
	}
	bucket, ok := s.m.blobs[s.bucket]
	if !ok {
		bucket = make(map[string]memBlob)
		s.m.blobs[s.bucket] = bucket
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	bucket[path] = memBlob{data: buf, contentType: contentType, updatedAt: time.Now().UTC()}
	return nil
}

func (s memBlobs) List(ctx context.Context, prefix string) ([]BlobObject, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpBlobList); err != nil {
		return nil, err
	}
	var res []BlobObject
	for path, b := range s.m.blobs[s.bucket] {
		if strings.HasPrefix(path, prefix) {
			res = append(res, BlobObject{Path: path, Size: int64(len(b.data)), UpdatedAt: b.updatedAt})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Path < res[j].Path })
	return res, nil
}

func (s memBlobs) Remove(ctx context.Context, path string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpBlobRemove); err != nil {
		return err
	}
	bucket := s.m.blobs[s.bucket]
	if _, ok := bucket[path]; !ok {
		return ErrNotFound
	}
	delete(bucket, path)
	return nil
}

func (s memBlobs) Download(ctx context.Context, path string) ([]byte, string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter(OpBlobDownload); err != nil {
		return nil, "", err
	}
	b, ok := s.m.blobs[s.bucket][path]
	if !ok {
		return nil, "", ErrNotFound
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, b.contentType, nil
}

func (s memBlobs) PublicURL(path string) string {
	return s.m.baseURL + "/" + s.bucket + "/" + path
}
