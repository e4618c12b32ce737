package entity

import (
	"context"
	"fmt"
	"strings"

	"meritlog.org/internal/tracker"
)

func (s *Store) AddGoal(ctx context.Context, in tracker.GoalInput) (tracker.Goal, error) {
	uid, gen, ok := s.session()
	if !ok {
		return tracker.Goal{}, nil
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return tracker.Goal{}, fmt.Errorf("%w: title is required", tracker.ErrInvalidInput)
	}
	var created tracker.Goal
	err := s.run(ctx, gen, step{
		op: tracker.OpGoalInsert,
		apply: func(ctx context.Context) error {
			var err error
			created, err = s.remote.Goals(ctx).Insert(ctx, tracker.Goal{
				UserID:      uid,
				Title:       title,
				Description: in.Description,
				TargetDate:  in.TargetDate,
				Status:      tracker.GoalInProgress,
			})
			return err
		},
		commit: func() {
			s.goals = append([]tracker.Goal{created}, s.goals...)
		},
		fields: map[string]any{"title": title},
	})
	if err != nil {
		return tracker.Goal{}, err
	}
	return created, nil
}

func (s *Store) UpdateGoal(ctx context.Context, id string, upd tracker.GoalUpdate) error {
	uid, gen, ok := s.session()
	if !ok {
		return nil
	}
	if upd.Status != nil && *upd.Status != tracker.GoalInProgress && *upd.Status != tracker.GoalCompleted {
		return fmt.Errorf("%w: unknown goal status %q", tracker.ErrInvalidInput, *upd.Status)
	}
	return s.run(ctx, gen, step{
		op: tracker.OpGoalUpdate,
		apply: func(ctx context.Context) error {
			return s.remote.Goals(ctx).Update(ctx, uid, id, upd)
		},
		commit: func() {
			for i, g := range s.goals {
				if g.ID == id {
					s.goals[i] = upd.Apply(g)
					return
				}
			}
		},
		fields: map[string]any{"id": id},
	})
}

// ToggleGoal flips a goal between in progress and completed.
func (s *Store) ToggleGoal(ctx context.Context, id string) error {
	s.mu.RLock()
	var current tracker.Goal
	found := false
	for _, g := range s.goals {
		if g.ID == id {
			current, found = g, true
			break
		}
	}
	s.mu.RUnlock()
	if !found {
		if s.UserID() == "" {
			return nil
		}
		return tracker.ErrNotFound
	}
	next := tracker.GoalCompleted
	if current.Status == tracker.GoalCompleted {
		next = tracker.GoalInProgress
	}
	return s.UpdateGoal(ctx, id, tracker.GoalUpdate{Status: &next})
}

func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	uid, gen, ok := s.session()
	if !ok {
		return nil
	}
	return s.run(ctx, gen, step{
		op: tracker.OpGoalDelete,
		apply: func(ctx context.Context) error {
			return s.remote.Goals(ctx).Delete(ctx, uid, id)
		},
		commit: func() {
			for i, g := range s.goals {
				if g.ID == id {
					s.goals = append(s.goals[:i:i], s.goals[i+1:]...)
					return
				}
			}
		},
		fields: map[string]any{"id": id},
	})
}
