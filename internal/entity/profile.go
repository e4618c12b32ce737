package entity

import (
	"context"
	"fmt"
	"path"
	"strings"

	"meritlog.org/internal/audit"
	"meritlog.org/internal/obs"
	"meritlog.org/internal/tracker"
	"meritlog.org/internal/vault"
)

// RefreshProfile re-fetches the profile and replaces the cached copy.
func (s *Store) RefreshProfile(ctx context.Context) error {
	uid, gen, ok := s.session()
	if !ok {
		return nil
	}
	var p tracker.Profile
	return s.run(ctx, gen, step{
		op: tracker.OpProfileGet,
		apply: func(ctx context.Context) error {
			var err error
			p, err = s.remote.Profiles(ctx).Get(ctx, uid)
			return err
		},
		commit: func() {
			s.profile = p
			s.profileLoaded = true
		},
	})
}

// UpdateProfile writes the changed fields remotely and then refreshes the cached profile.
func (s *Store) UpdateProfile(ctx context.Context, upd tracker.ProfileUpdate) error {
	uid, gen, ok := s.session()
	if !ok {
		return nil
	}
	if upd.DisplayName != nil && strings.TrimSpace(*upd.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", tracker.ErrInvalidInput)
	}
	err := s.run(ctx, gen, step{
		op: tracker.OpProfileUpdate,
		apply: func(ctx context.Context) error {
			return s.remote.Profiles(ctx).Update(ctx, uid, upd)
		},
	})
	if err != nil {
		return err
	}
	return s.RefreshProfile(ctx)
}

// UploadAvatar stores an avatar image, points the profile at it and returns its public
// URL. With compensation enabled, a failed profile update removes the image again unless
// it replaced an avatar that was already stored.
func (s *Store) UploadAvatar(ctx context.Context, name string, data []byte) (string, error) {
	uid, gen, ok := s.session()
	if !ok {
		return "", nil
	}
	name = vault.CleanName(name)
	if name == "" || len(data) == 0 {
		return "", fmt.Errorf("%w: avatar image is required", tracker.ErrInvalidInput)
	}
	if vault.KindFor(name) != tracker.FileImage {
		return "", fmt.Errorf("%w: avatar must be an image", tracker.ErrInvalidInput)
	}
	key := uid + "/avatar" + strings.ToLower(path.Ext(name))
	blobs := s.remote.Blobs(ctx, tracker.BucketAvatars)
	fresh := s.compensate && !s.blobExists(ctx, tracker.BucketAvatars, key)

	err := blobs.Upload(ctx, key, data, vault.ContentType(name))
	obs.RecordMutation(tracker.OpBlobUpload, err)
	if err != nil {
		audit.Failure(ctx, tracker.OpBlobUpload, err, map[string]any{"path": key, "bucket": tracker.BucketAvatars})
		return "", fmt.Errorf("%s: %w", tracker.OpBlobUpload, err)
	}

	st := step{
		op: tracker.OpProfileUpdate,
		apply: func(ctx context.Context) error {
			return s.remote.Profiles(ctx).Update(ctx, uid, tracker.ProfileUpdate{AvatarPath: &key})
		},
		fields: map[string]any{"avatar_path": key},
	}
	if fresh {
		st.undo = func(ctx context.Context) error {
			return blobs.Remove(ctx, key)
		}
	}
	err = s.run(ctx, gen, st)
	if err != nil {
		return "", err
	}
	if err := s.RefreshProfile(ctx); err != nil {
		return "", err
	}
	return blobs.PublicURL(key), nil
}

// AvatarURL resolves the cached profile's avatar to a public URL.
func (s *Store) AvatarURL(ctx context.Context) string {
	p, _ := s.Profile()
	if p.AvatarPath == "" {
		return ""
	}
	return s.remote.Blobs(ctx, tracker.BucketAvatars).PublicURL(p.AvatarPath)
}
