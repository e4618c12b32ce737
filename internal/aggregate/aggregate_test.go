package aggregate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meritlog.org/internal/tracker"
)

func achievement(date, category string) tracker.Achievement {
	d, err := time.Parse(tracker.DateLayout, date)
	if err != nil {
		panic(err)
	}
	return tracker.Achievement{Title: category + " " + date, Date: d, Category: category}
}

func TestRebuildMatchesClosedForm(t *testing.T) {
	items := []tracker.Achievement{
		achievement("2024-10-14", "Internal Project"),
		achievement("2024-09-12", "Award"),
		achievement("2024-06-05", "Publication"),
		achievement("2023-03-22", "Leadership"),
		achievement("2023-01-15", "Award"),
		achievement("2023-02-15", "Award"),
	}
	a := New()
	a.Rebuild(items)

	snap := a.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, YearMetric{ImpactScore: 25, CompletionRate: "100%", Awards: 1}, snap["2024"])
	assert.Equal(t, YearMetric{ImpactScore: 35, CompletionRate: "100%", Awards: 2}, snap["2023"])
	assert.Equal(t, []string{"2024", "2023"}, a.Years())
}

func TestRebuildClearsPreviousState(t *testing.T) {
	a := New()
	a.Add(achievement("2019-01-01", "Award"))
	a.Rebuild([]tracker.Achievement{achievement("2024-01-01", "Publication")})

	_, ok := a.Year("2019")
	assert.False(t, ok)
	m, ok := a.Year("2024")
	require.True(t, ok)
	assert.Equal(t, 5, m.ImpactScore)
}

func TestAddSequenceWithinYear(t *testing.T) {
	for _, tc := range []struct{ entries, awards int }{{0, 1}, {3, 0}, {4, 2}, {10, 10}, {30, 1}} {
		t.Run(fmt.Sprintf("%d_entries_%d_awards", tc.entries, tc.awards), func(t *testing.T) {
			a := New()
			for i := 0; i < tc.entries; i++ {
				a.Add(achievement("2024-02-01", "Publication"))
			}
			for i := 0; i < tc.awards; i++ {
				a.Add(achievement("2024-03-01", "Award"))
			}
			m, _ := a.Year("2024")
			want := min(100, 5*(tc.entries+tc.awards)+10*tc.awards)
			assert.Equal(t, want, m.ImpactScore)
			assert.Equal(t, tc.awards, m.Awards)
		})
	}
}

func TestFirstAwardInEmptyYear(t *testing.T) {
	a := New()
	a.Add(achievement("2024-01-01", "Award"))
	m, ok := a.Year("2024")
	require.True(t, ok)
	assert.Equal(t, 15, m.ImpactScore)
	assert.Equal(t, 1, m.Awards)
	assert.Equal(t, "100%", m.CompletionRate)
}

func TestAwardClampsAtHundred(t *testing.T) {
	a := New()
	// 95 points with two awards: 2 awards (30) + 13 entries (65).
	for i := 0; i < 2; i++ {
		a.Add(achievement("2024-05-01", "Award"))
	}
	for i := 0; i < 13; i++ {
		a.Add(achievement("2024-05-02", "Leadership"))
	}
	m, _ := a.Year("2024")
	require.Equal(t, YearMetric{ImpactScore: 95, CompletionRate: "100%", Awards: 2}, m)

	a.Add(achievement("2024-06-01", "Award"))
	m, _ = a.Year("2024")
	assert.Equal(t, 100, m.ImpactScore)
	assert.Equal(t, 3, m.Awards)
}

func TestRemoveIsInverseOfAdd(t *testing.T) {
	a := New()
	a.Rebuild([]tracker.Achievement{
		achievement("2024-01-01", "Award"),
		achievement("2024-02-01", "Publication"),
	})
	before, _ := a.Year("2024")

	for _, cat := range []string{"Award", "Leadership"} {
		item := achievement("2024-04-04", cat)
		a.Add(item)
		a.Remove(item)
		after, _ := a.Year("2024")
		assert.Equal(t, before, after, "category %s", cat)
	}
}

func TestRemoveClampsAtZero(t *testing.T) {
	a := New()
	a.Add(achievement("2024-01-01", "Publication"))
	a.Remove(achievement("2024-01-01", "Award"))

	m, _ := a.Year("2024")
	assert.Equal(t, 0, m.ImpactScore)
	assert.Equal(t, 0, m.Awards)
}

func TestRemoveUnknownYearIsNoop(t *testing.T) {
	a := New()
	a.Remove(achievement("2020-01-01", "Award"))
	assert.Empty(t, a.Snapshot())
}

func TestSnapshotIsCopy(t *testing.T) {
	a := New()
	a.Add(achievement("2024-01-01", "Award"))
	snap := a.Snapshot()
	snap["2024"] = YearMetric{ImpactScore: 1}
	m, _ := a.Year("2024")
	assert.Equal(t, 15, m.ImpactScore)
}

func TestResetEmptiesMapping(t *testing.T) {
	a := New()
	a.Add(achievement("2024-01-01", "Award"))
	a.Reset()
	assert.Empty(t, a.Snapshot())
}

func TestConcurrentAdds(t *testing.T) {
	a := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Add(achievement("2024-07-07", "Award"))
		}()
	}
	wg.Wait()
	m, _ := a.Year("2024")
	assert.Equal(t, 50, m.Awards)
	assert.Equal(t, 100, m.ImpactScore)
}
