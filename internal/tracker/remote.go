package tracker

import "context"

// Remote is the durable record database plus blob store. It is the source of truth
// across sessions; the entity store only caches what it returns.
type Remote interface {
	Profiles(ctx context.Context) ProfileStore
	Achievements(ctx context.Context) AchievementStore
	Goals(ctx context.Context) GoalStore
	Blobs(ctx context.Context, bucket string) BlobStore
}

// ProfileStore manages the "profiles" collection.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (Profile, error)
	Update(ctx context.Context, userID string, upd ProfileUpdate) error
}

// AchievementStore manages the "achievements" collection.
type AchievementStore interface {
	// List returns the user's achievements ordered by occurrence date, newest first.
	List(ctx context.Context, userID string) ([]Achievement, error)
	Insert(ctx context.Context, a Achievement) (Achievement, error)
	// InsertBatch inserts all rows in one call and returns how many were written.
	// Rows whose LegacyKey already exists are skipped.
	InsertBatch(ctx context.Context, items []Achievement) (int, error)
	Update(ctx context.Context, userID, id string, upd AchievementUpdate) error
	Delete(ctx context.Context, userID, id string) error
}

// GoalStore manages the "goals" collection.
type GoalStore interface {
	// List returns the user's goals ordered by creation time, newest first.
	List(ctx context.Context, userID string) ([]Goal, error)
	Insert(ctx context.Context, g Goal) (Goal, error)
	Update(ctx context.Context, userID, id string, upd GoalUpdate) error
	Delete(ctx context.Context, userID, id string) error
}

// BlobStore is one bucket of the blob store.
type BlobStore interface {
	// Upload writes data at path, overwriting any existing blob.
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]BlobObject, error)
	Remove(ctx context.Context, path string) error
	// Download returns the stored bytes and content type at path.
	Download(ctx context.Context, path string) ([]byte, string, error)
	PublicURL(path string) string
}

// Operation names used for failure injection and metrics.
const (
	OpProfileGet        = "profiles.get"
	OpProfileUpdate     = "profiles.update"
	OpAchievementList   = "achievements.list"
	OpAchievementInsert = "achievements.insert"
	OpAchievementBatch  = "achievements.insert_batch"
	OpAchievementUpdate = "achievements.update"
	OpAchievementDelete = "achievements.delete"
	OpGoalList          = "goals.list"
	OpGoalInsert        = "goals.insert"
	OpGoalUpdate        = "goals.update"
	OpGoalDelete        = "goals.delete"
	OpBlobUpload        = "blobs.upload"
	OpBlobList          = "blobs.list"
	OpBlobRemove        = "blobs.remove"
	OpBlobDownload      = "blobs.download"
)
