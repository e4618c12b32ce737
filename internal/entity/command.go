package entity

import (
	"context"
	"fmt"

	"meritlog.org/internal/audit"
	"meritlog.org/internal/ids"
	"meritlog.org/internal/obs"
)

// step pairs one remote write with the local update it justifies.
//
// apply performs the remote call. commit runs under the store lock only when apply
// succeeded and the session is still the one that issued the call. undo, when set,
// compensates side effects that happened before apply and runs only when apply fails.
type step struct {
	op     string
	apply  func(ctx context.Context) error
	commit func()
	undo   func(ctx context.Context) error
	fields map[string]any
}

// run executes st for the session generation gen. A failed apply is reported on the
// audit channel and returned wrapped with the operation name; local state is untouched.
func (s *Store) run(ctx context.Context, gen uint64, st step) error {
	err := st.apply(ctx)
	obs.RecordMutation(st.op, err)
	if err != nil {
		audit.Failure(ctx, st.op, err, st.fields)
		if st.undo != nil {
			if uerr := st.undo(ctx); uerr != nil {
				audit.Failure(ctx, st.op+".undo", uerr, st.fields)
			}
		}
		return fmt.Errorf("%s: %w", st.op, err)
	}
	if st.commit == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		obs.Logger().Debug().Str("op", st.op).Msg("mutation result discarded after session change")
		return nil
	}
	st.commit()
	return nil
}

func newID() string { return ids.New() }
