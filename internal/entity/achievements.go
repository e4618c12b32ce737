package entity

import (
	"context"
	"fmt"
	"strings"

	"meritlog.org/internal/obs"
	"meritlog.org/internal/tracker"
	"meritlog.org/internal/vault"
)

// AddAchievement uploads the optional evidence file, inserts the record remotely and,
// on success, prepends it locally and credits its year metric. A failed upload
// downgrades the entry to file-less. A failed insert leaves local state unchanged.
func (s *Store) AddAchievement(ctx context.Context, in tracker.AchievementInput) (tracker.Achievement, error) {
	uid, gen, ok := s.session()
	if !ok {
		return tracker.Achievement{}, nil
	}
	if err := in.Validate(); err != nil {
		return tracker.Achievement{}, fmt.Errorf("%w: %v", tracker.ErrInvalidInput, err)
	}

	rec := tracker.Achievement{
		UserID:       uid,
		Title:        strings.TrimSpace(in.Title),
		Date:         in.Date,
		DisplayDate:  tracker.DisplayDate(in.Date),
		Category:     in.Category,
		Tag:          in.Tag,
		Impact:       in.Impact,
		EvidenceKind: in.EvidenceKind,
		FileName:     in.FileName,
		IsPublic:     in.IsPublic,
	}
	if rec.EvidenceKind == "" {
		rec.EvidenceKind = tracker.EvidencePDF
	}

	var bound tracker.FileDescriptor
	compensable := false
	if in.File != nil && len(in.File.Data) > 0 {
		fresh := s.compensate && !s.blobExists(ctx, tracker.BucketEvidence,
			vault.Path(uid, vault.CleanFolder(in.File.Folder), vault.CleanName(in.File.Name)))
		if fd, ok := s.binder.Bind(ctx, uid, *in.File); ok {
			rec.FileName = fd.Name
			bound = fd
			compensable = fresh
		}
	}

	var created tracker.Achievement
	st := step{
		op: tracker.OpAchievementInsert,
		apply: func(ctx context.Context) error {
			var err error
			created, err = s.remote.Achievements(ctx).Insert(ctx, rec)
			return err
		},
		commit: func() {
			s.achievements = append([]tracker.Achievement{created}, s.achievements...)
			s.agg.Add(created)
		},
		fields: map[string]any{"title": rec.Title, "date": rec.Date.Format(tracker.DateLayout)},
	}
	if compensable {
		st.undo = func(ctx context.Context) error {
			return s.unbind(ctx, gen, bound)
		}
	}
	if err := s.run(ctx, gen, st); err != nil {
		return tracker.Achievement{}, err
	}
	return created, nil
}

// unbind removes an evidence blob written for an achievement that was never created,
// along with the one descriptor recorded for that upload.
func (s *Store) unbind(ctx context.Context, gen uint64, fd tracker.FileDescriptor) error {
	if err := s.remote.Blobs(ctx, tracker.BucketEvidence).Remove(ctx, fd.Path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.files = removeFileByID(s.files, fd.ID)
	}
	return nil
}

// blobExists reports whether path is already taken in bucket. A failed lookup counts
// as taken so nothing that might belong to another record is compensated away.
func (s *Store) blobExists(ctx context.Context, bucket, path string) bool {
	found, err := vault.Exists(ctx, s.remote.Blobs(ctx, bucket), path)
	if err != nil {
		obs.Logger().Warn().Err(err).Str("bucket", bucket).Str("path", path).Msg("blob lookup failed; upload will not be compensated")
		return true
	}
	return found
}

// UpdateAchievement writes the changed fields remotely and merges them into the cached
// record. When the date or category changes, the record's metric contribution moves
// with it.
func (s *Store) UpdateAchievement(ctx context.Context, id string, upd tracker.AchievementUpdate) error {
	uid, gen, ok := s.session()
	if !ok || upd.Empty() {
		return nil
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return fmt.Errorf("%w: title is required", tracker.ErrInvalidInput)
	}
	if upd.Date != nil && upd.Date.IsZero() {
		return fmt.Errorf("%w: date is required", tracker.ErrInvalidInput)
	}
	return s.run(ctx, gen, step{
		op: tracker.OpAchievementUpdate,
		apply: func(ctx context.Context) error {
			return s.remote.Achievements(ctx).Update(ctx, uid, id, upd)
		},
		commit: func() {
			for i, old := range s.achievements {
				if old.ID != id {
					continue
				}
				next := upd.Apply(old)
				if old.Year() != next.Year() || old.Category != next.Category {
					s.agg.Remove(old)
					s.agg.Add(next)
				}
				s.achievements[i] = next
				return
			}
		},
		fields: map[string]any{"id": id},
	})
}

// DeleteAchievement deletes the record remotely, then drops it locally and debits the
// year and category it had before removal.
func (s *Store) DeleteAchievement(ctx context.Context, id string) error {
	uid, gen, ok := s.session()
	if !ok {
		return nil
	}
	return s.run(ctx, gen, step{
		op: tracker.OpAchievementDelete,
		apply: func(ctx context.Context) error {
			return s.remote.Achievements(ctx).Delete(ctx, uid, id)
		},
		commit: func() {
			for i, a := range s.achievements {
				if a.ID == id {
					removed := a
					s.achievements = append(s.achievements[:i:i], s.achievements[i+1:]...)
					s.agg.Remove(removed)
					return
				}
			}
		},
		fields: map[string]any{"id": id},
	})
}
