package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"meritlog.org/internal/tracker"
)

const achievementCols = `id, user_id, title, date, display_date, category, tag, impact,
	evidence_kind, coalesce(file_name, ''), is_public, coalesce(legacy_key, ''), created_at`

type achievements struct{ db *sql.DB }

func (s achievements) List(ctx context.Context, userID string) ([]tracker.Achievement, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+achievementCols+`
		from achievements
		where user_id = $1
		order by date desc, created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []tracker.Achievement{}
	for rows.Next() {
		var (
			a    tracker.Achievement
			kind string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Date, &a.DisplayDate, &a.Category, &a.Tag,
			&a.Impact, &kind, &a.FileName, &a.IsPublic, &a.LegacyKey, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.EvidenceKind = tracker.EvidenceKind(kind)
		a.Date = a.Date.UTC()
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s achievements) Insert(ctx context.Context, a tracker.Achievement) (tracker.Achievement, error) {
	a = prepare(a)
	err := s.db.QueryRowContext(ctx, insertAchievement+` returning created_at`, achievementArgs(a)...).Scan(&a.CreatedAt)
	if err != nil {
		return tracker.Achievement{}, mapErr(err)
	}
	return a, nil
}

// InsertBatch writes all rows in one transaction. Rows whose legacy key already exists
// are skipped by the unique index and do not count.
func (s achievements) InsertBatch(ctx context.Context, items []tracker.Achievement) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, a := range items {
		res, err := tx.ExecContext(ctx, insertAchievement+` on conflict (legacy_key) do nothing`, achievementArgs(prepare(a))...)
		if err != nil {
			return 0, mapErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(total), nil
}

func (s achievements) Update(ctx context.Context, userID, id string, upd tracker.AchievementUpdate) error {
	if !validID(id) {
		return tracker.ErrNotFound
	}
	var set setClause
	if upd.Title != nil {
		set.add("title", *upd.Title)
	}
	if upd.Date != nil {
		set.add("date", *upd.Date)
		set.add("display_date", tracker.DisplayDate(*upd.Date))
	}
	if upd.Category != nil {
		set.add("category", *upd.Category)
	}
	if upd.Tag != nil {
		set.add("tag", *upd.Tag)
	}
	if upd.Impact != nil {
		set.add("impact", *upd.Impact)
	}
	if upd.IsPublic != nil {
		set.add("is_public", *upd.IsPublic)
	}
	if set.empty() {
		return nil
	}
	return set.update(ctx, s.db, "achievements", userID, id)
}

func (s achievements) Delete(ctx context.Context, userID, id string) error {
	return deleteOwned(ctx, s.db, "achievements", userID, id)
}

const insertAchievement = `
	insert into achievements(id, user_id, title, date, display_date, category, tag, impact,
		evidence_kind, file_name, is_public, legacy_key, created_at)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func prepare(a tracker.Achievement) tracker.Achievement {
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.DisplayDate == "" {
		a.DisplayDate = tracker.DisplayDate(a.Date)
	}
	if a.EvidenceKind == "" {
		a.EvidenceKind = tracker.EvidencePDF
	}
	return a
}

func achievementArgs(a tracker.Achievement) []any {
	return []any{
		a.ID, a.UserID, strings.TrimSpace(a.Title), a.Date, a.DisplayDate, a.Category, a.Tag, a.Impact,
		string(a.EvidenceKind), nullIfEmpty(a.FileName), a.IsPublic, nullIfEmpty(a.LegacyKey), a.CreatedAt,
	}
}
