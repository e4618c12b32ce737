package tracker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestAchievementsListedNewestFirst(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	store := m.Achievements(ctx)

	for _, d := range []string{"2023-05-01", "2024-10-14", "2024-01-02"} {
		if _, err := store.Insert(ctx, Achievement{UserID: "u1", Title: d, Date: mustDate(t, d)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := store.Insert(ctx, Achievement{UserID: "u2", Title: "other", Date: mustDate(t, "2025-01-01")}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"2024-10-14", "2024-01-02", "2023-05-01"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Title != w {
			t.Fatalf("row %d: got %s, want %s", i, got[i].Title, w)
		}
		if got[i].DisplayDate == "" {
			t.Fatalf("row %d: display date not derived", i)
		}
	}
}

func TestInsertBatchSkipsKnownLegacyKeys(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	store := m.Achievements(ctx)
	rows := []Achievement{
		{UserID: "u1", Title: "A", Date: mustDate(t, "2024-03-01"), LegacyKey: "k1"},
		{UserID: "u1", Title: "B", Date: mustDate(t, "2024-03-02"), LegacyKey: "k2"},
	}

	n, err := store.InsertBatch(ctx, rows)
	if err != nil || n != 2 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	n, err = store.InsertBatch(ctx, rows)
	if err != nil || n != 0 {
		t.Fatalf("second batch should be deduplicated: n=%d err=%v", n, err)
	}
	all, _ := store.List(ctx, "u1")
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}
}

func TestFailOnInjectsErrors(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	boom := errors.New("network down")
	m.FailOn(OpGoalInsert, boom)

	if _, err := m.Goals(ctx).Insert(ctx, Goal{UserID: "u1", Title: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	m.FailOn(OpGoalInsert, nil)
	g, err := m.Goals(ctx).Insert(ctx, Goal{UserID: "u1", Title: "x"})
	if err != nil {
		t.Fatalf("insert after clear: %v", err)
	}
	if g.Status != GoalInProgress {
		t.Fatalf("expected default status, got %s", g.Status)
	}
	if m.Calls(OpGoalInsert) != 2 {
		t.Fatalf("expected 2 calls, got %d", m.Calls(OpGoalInsert))
	}
}

func TestUpdateAndDeleteAreOwnerScoped(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	a, _ := m.Achievements(ctx).Insert(ctx, Achievement{UserID: "u1", Title: "mine", Date: mustDate(t, "2024-01-01")})

	title := "stolen"
	if err := m.Achievements(ctx).Update(ctx, "u2", a.ID, AchievementUpdate{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign update, got %v", err)
	}
	if err := m.Achievements(ctx).Delete(ctx, "u2", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
}

func TestBlobUploadOverwritesAndLists(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	b := m.Blobs(ctx, BucketEvidence)

	if err := b.Upload(ctx, "u1/report.pdf", []byte("v1"), "application/pdf"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := b.Upload(ctx, "u1/report.pdf", []byte("version-2"), "application/pdf"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_ = b.Upload(ctx, "u2/other.pdf", []byte("x"), "application/pdf")

	objs, err := b.List(ctx, "u1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objs) != 1 || objs[0].Size != int64(len("version-2")) {
		t.Fatalf("unexpected listing: %+v", objs)
	}
	if err := b.Remove(ctx, "u1/report.pdf"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := b.Remove(ctx, "u1/report.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestAchievementUpdateApplyDerivesDisplayDate(t *testing.T) {
	d := mustDate(t, "2023-06-05")
	cat := CategoryAward
	a := AchievementUpdate{Date: &d, Category: &cat}.Apply(Achievement{Title: "t", Date: mustDate(t, "2024-01-01")})
	if a.Year() != "2023" {
		t.Fatalf("unexpected year %s", a.Year())
	}
	if a.DisplayDate != "June 05, 2023" {
		t.Fatalf("unexpected display date %q", a.DisplayDate)
	}
	if a.Category != CategoryAward || a.Title != "t" {
		t.Fatalf("unexpected merge result: %+v", a)
	}
}

func TestProfileIncomplete(t *testing.T) {
	cases := []struct {
		p    Profile
		want bool
	}{
		{Profile{}, true},
		{Profile{DisplayName: "Ada"}, true},
		{Profile{DisplayName: "Ada", TargetRole: "  "}, true},
		{Profile{DisplayName: "Ada", TargetRole: "Principal Scientist"}, false},
	}
	for _, tc := range cases {
		if got := tc.p.Incomplete(); got != tc.want {
			t.Fatalf("Incomplete(%+v)=%v, want %v", tc.p, got, tc.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := ParseDate("03/01/2024"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	d, err := ParseDate("2024-03-01T10:00:00+02:00")
	if err != nil || d.Format(DateLayout) != "2024-03-01" {
		t.Fatalf("unexpected parse: %v %v", d, err)
	}
}

func TestBlobDownload(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	blobs := m.Blobs(ctx, BucketAvatars)
	if err := blobs.Upload(ctx, "u1/avatar.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, ct, err := blobs.Download(ctx, "u1/avatar.png")
	if err != nil || string(data) != "png" || ct != "image/png" {
		t.Fatalf("unexpected download: %q %q %v", data, ct, err)
	}
	if _, _, err := m.Blobs(ctx, BucketEvidence).Download(ctx, "u1/avatar.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from other bucket, got %v", err)
	}
}
