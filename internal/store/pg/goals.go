package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"meritlog.org/internal/tracker"
)

type goals struct{ db *sql.DB }

func (s goals) List(ctx context.Context, userID string) ([]tracker.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, title, description, target_date, status, created_at
		from goals
		where user_id = $1
		order by created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []tracker.Goal{}
	for rows.Next() {
		var (
			g      tracker.Goal
			target sql.NullTime
			status string
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.Description, &target, &status, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.TargetDate = datePtr(target)
		g.Status = tracker.GoalStatus(status)
		res = append(res, g)
	}
	return res, rows.Err()
}

func (s goals) Insert(ctx context.Context, g tracker.Goal) (tracker.Goal, error) {
	g.ID = uuid.NewString()
	if g.Status == "" {
		g.Status = tracker.GoalInProgress
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into goals(id, user_id, title, description, target_date, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at
	`, g.ID, g.UserID, g.Title, g.Description, nullDate(g.TargetDate), string(g.Status), g.CreatedAt).Scan(&g.CreatedAt)
	if err != nil {
		return tracker.Goal{}, mapErr(err)
	}
	return g, nil
}

func (s goals) Update(ctx context.Context, userID, id string, upd tracker.GoalUpdate) error {
	if !validID(id) {
		return tracker.ErrNotFound
	}
	var set setClause
	if upd.Title != nil {
		set.add("title", *upd.Title)
	}
	if upd.Description != nil {
		set.add("description", *upd.Description)
	}
	if upd.TargetDate != nil {
		set.add("target_date", *upd.TargetDate)
	}
	if upd.Status != nil {
		set.add("status", string(*upd.Status))
	}
	if set.empty() {
		return nil
	}
	return set.update(ctx, s.db, "goals", userID, id)
}

func (s goals) Delete(ctx context.Context, userID, id string) error {
	return deleteOwned(ctx, s.db, "goals", userID, id)
}
