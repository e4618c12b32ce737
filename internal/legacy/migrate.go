// Package legacy moves achievements logged before the remote store existed out of the
// local cache and into the remote achievements collection.
package legacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"meritlog.org/internal/audit"
	"meritlog.org/internal/obs"
	"meritlog.org/internal/tracker"
)

// Key is the cache entry holding the legacy achievement array.
const Key = "my_achievements"

// PlaceholderImpact fills legacy rows saved without an impact statement.
const PlaceholderImpact = "No impact statement provided."

// Record is the shape the pre-backend client serialized.
type Record struct {
	Title        string `json:"title"`
	Date         string `json:"date"`
	DisplayDate  string `json:"displayDate"`
	Category     string `json:"category"`
	Tag          string `json:"tag"`
	Impact       string `json:"impact"`
	EvidenceType string `json:"evidenceType"`
	FileName     string `json:"fileName"`
	IsPublic     bool   `json:"isPublic"`
}

// Result summarizes one migration run.
type Result struct {
	Found    int   // rows read from the cache
	Inserted int   // rows written remotely; deduplicated rows are not counted
	Skipped  int   // rows left in the cache for an unusable date or shape
	Err      error // set when the bulk insert or cache access failed
}

// Migrator runs the one-shot transfer for a signed-in user.
type Migrator struct {
	cache  Cache
	remote tracker.Remote
}

func NewMigrator(cache Cache, remote tracker.Remote) *Migrator {
	return &Migrator{cache: cache, remote: remote}
}

// Run migrates the cached achievements of userID. It never fails the caller: errors are
// logged, counted, and returned in Result while the cache key is kept for the next run.
func (m *Migrator) Run(ctx context.Context, userID string) Result {
	var res Result
	if m == nil || m.cache == nil || userID == "" {
		return res
	}

	raw, ok, err := m.cache.Get(ctx, Key)
	if err != nil {
		return m.fail(ctx, res, fmt.Errorf("read legacy cache: %w", err))
	}
	if !ok || strings.TrimSpace(raw) == "" {
		m.cleanup(ctx)
		return res
	}

	var records []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return m.fail(ctx, res, fmt.Errorf("decode legacy cache: %w", err))
	}
	res.Found = len(records)
	if len(records) == 0 {
		m.cleanup(ctx)
		return res
	}

	rows := make([]tracker.Achievement, 0, len(records))
	var unmigrated []json.RawMessage
	for _, item := range records {
		var r Record
		a, err := decodeRecord(userID, item, &r)
		if err != nil {
			res.Skipped++
			unmigrated = append(unmigrated, item)
			obs.Logger().Warn().Err(err).Str("user_id", userID).Str("title", r.Title).Str("date", r.Date).Msg("legacy record skipped")
			continue
		}
		rows = append(rows, a)
	}

	if len(rows) > 0 {
		n, err := m.remote.Achievements(ctx).InsertBatch(ctx, rows)
		obs.RecordMutation(tracker.OpAchievementBatch, err)
		if err != nil {
			return m.fail(ctx, res, err)
		}
		res.Inserted = n
	}

	// Rows are already remote from here on; the dedup key keeps a rerun from duplicating them.
	if len(unmigrated) > 0 {
		rest, err := json.Marshal(unmigrated)
		if err == nil {
			err = m.cache.Set(ctx, Key, string(rest))
		}
		if err != nil {
			obs.Logger().Warn().Err(err).Str("user_id", userID).Msg("legacy cache not narrowed to skipped records")
		}
	} else if err := m.cache.Remove(ctx, Key); err != nil {
		obs.Logger().Warn().Err(err).Str("user_id", userID).Msg("legacy cache key not removed")
	}
	obs.RecordMigration("success", res.Inserted)
	_ = audit.LogEvent(ctx, "legacy.migrated", map[string]any{
		"found":    res.Found,
		"inserted": res.Inserted,
		"skipped":  res.Skipped,
	})
	return res
}

func (m *Migrator) cleanup(ctx context.Context) {
	if err := m.cache.Remove(ctx, Key); err != nil {
		obs.Logger().Warn().Err(err).Msg("legacy cache cleanup failed")
	}
	obs.RecordMigration("empty", 0)
}

func (m *Migrator) fail(ctx context.Context, res Result, err error) Result {
	res.Err = err
	obs.RecordMigration("failure", 0)
	audit.Failure(ctx, "legacy.migrate", err, map[string]any{"found": res.Found})
	return res
}

func decodeRecord(userID string, item json.RawMessage, r *Record) (tracker.Achievement, error) {
	if err := json.Unmarshal(item, r); err != nil {
		return tracker.Achievement{}, err
	}
	return Map(userID, *r)
}

// Map converts one legacy record into the remote schema for userID.
func Map(userID string, r Record) (tracker.Achievement, error) {
	date, err := tracker.ParseDate(r.Date)
	if err != nil {
		return tracker.Achievement{}, fmt.Errorf("record %q: %w", r.Title, err)
	}
	impact := strings.TrimSpace(r.Impact)
	if impact == "" {
		impact = PlaceholderImpact
	}
	kind := tracker.EvidenceKind(strings.ToLower(strings.TrimSpace(r.EvidenceType)))
	if !kind.Valid() {
		kind = tracker.EvidencePDF
	}
	display := r.DisplayDate
	if display == "" {
		display = tracker.DisplayDate(date)
	}
	return tracker.Achievement{
		UserID:       userID,
		Title:        r.Title,
		Date:         date,
		DisplayDate:  display,
		Category:     r.Category,
		Tag:          r.Tag,
		Impact:       impact,
		EvidenceKind: kind,
		FileName:     r.FileName,
		IsPublic:     r.IsPublic,
		LegacyKey:    DedupKey(userID, r.Title, date.Format(tracker.DateLayout)),
	}, nil
}

// DedupKey identifies a legacy row across retried migrations.
func DedupKey(userID, title, date string) string {
	sum := sha256.Sum256([]byte(userID + "|" + title + "|" + date))
	return hex.EncodeToString(sum[:])
}

// Import stores raw as the legacy cache entry after checking it decodes as a record array.
func Import(ctx context.Context, cache Cache, raw []byte) (int, error) {
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, fmt.Errorf("%w: legacy file is not an achievement array: %v", tracker.ErrInvalidInput, err)
	}
	if err := cache.Set(ctx, Key, string(raw)); err != nil {
		return 0, err
	}
	return len(records), nil
}
