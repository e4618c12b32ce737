package pg

import (
	"context"
	"database/sql"
	"errors"

	"meritlog.org/internal/tracker"
)

type profiles struct{ db *sql.DB }

func (p profiles) Get(ctx context.Context, userID string) (tracker.Profile, error) {
	var (
		out    = tracker.Profile{ID: userID}
		avatar sql.NullString
		last   sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		select display_name, target_role, target_goal, avatar_path, last_logged_date
		from profiles where id = $1
	`, userID).Scan(&out.DisplayName, &out.TargetRole, &out.TargetGoal, &avatar, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Profile{}, tracker.ErrNotFound
	}
	if err != nil {
		return tracker.Profile{}, err
	}
	out.AvatarPath = avatar.String
	out.LastLoggedDate = datePtr(last)
	return out, nil
}

// Update upserts the row; nil fields keep their stored value.
func (p profiles) Update(ctx context.Context, userID string, upd tracker.ProfileUpdate) error {
	_, err := p.db.ExecContext(ctx, `
		insert into profiles(id, display_name, target_role, target_goal, avatar_path, last_logged_date, updated_at)
		values ($1, coalesce($2, ''), coalesce($3, ''), coalesce($4, ''), $5, $6, now())
		on conflict (id) do update set
			display_name     = coalesce($2, profiles.display_name),
			target_role      = coalesce($3, profiles.target_role),
			target_goal      = coalesce($4, profiles.target_goal),
			avatar_path      = coalesce($5, profiles.avatar_path),
			last_logged_date = coalesce($6, profiles.last_logged_date),
			updated_at       = now()
	`, userID, nullable(upd.DisplayName), nullable(upd.TargetRole), nullable(upd.TargetGoal),
		nullable(upd.AvatarPath), nullDate(upd.LastLoggedDate))
	return mapErr(err)
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
