package entity

import (
	"context"
	"fmt"
	"strings"

	"meritlog.org/internal/tracker"
)

// AddFile prepends fd with a fresh local id, replacing any descriptor already recorded
// for the same storage path. Without a session, or for a path outside the bound user's
// prefix, it returns fd unchanged.
func (s *Store) AddFile(fd tracker.FileDescriptor) tracker.FileDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return fd
	}
	if fd.Path != "" && !strings.HasPrefix(fd.Path, s.userID+"/") {
		return fd
	}
	fd.ID = newID()
	rest := s.files
	if fd.Path != "" {
		rest = removeFileByPath(rest, fd.Path)
	}
	s.files = append([]tracker.FileDescriptor{fd}, rest...)
	return fd
}

// DeleteFile removes the blob at fd.Path, then the local descriptor. If the blob removal
// fails the descriptor stays.
func (s *Store) DeleteFile(ctx context.Context, fd tracker.FileDescriptor) error {
	uid, gen, ok := s.session()
	if !ok {
		return nil
	}
	if fd.Path == "" {
		return fmt.Errorf("%w: file has no storage path", tracker.ErrInvalidInput)
	}
	if !strings.HasPrefix(fd.Path, uid+"/") {
		return fmt.Errorf("%w: file is outside the user's vault", tracker.ErrInvalidInput)
	}
	return s.run(ctx, gen, step{
		op: tracker.OpBlobRemove,
		apply: func(ctx context.Context) error {
			return s.remote.Blobs(ctx, tracker.BucketEvidence).Remove(ctx, fd.Path)
		},
		commit: func() {
			s.files = removeFileByPath(s.files, fd.Path)
		},
		fields: map[string]any{"path": fd.Path},
	})
}

// FileURL returns the public URL of an evidence blob.
func (s *Store) FileURL(ctx context.Context, fd tracker.FileDescriptor) string {
	if fd.Path == "" {
		return ""
	}
	return s.remote.Blobs(ctx, tracker.BucketEvidence).PublicURL(fd.Path)
}

func removeFileByPath(files []tracker.FileDescriptor, path string) []tracker.FileDescriptor {
	out := files[:0:0]
	for _, fd := range files {
		if fd.Path != path {
			out = append(out, fd)
		}
	}
	return out
}

func removeFileByID(files []tracker.FileDescriptor, id string) []tracker.FileDescriptor {
	out := files[:0:0]
	for _, fd := range files {
		if fd.ID != id {
			out = append(out, fd)
		}
	}
	return out
}
