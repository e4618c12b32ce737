// Package insights derives read-only views from a loaded session: logging streak,
// pathway gap analysis, public portfolio and the per-year report.
package insights

import (
	"math"
	"sort"
	"time"

	"meritlog.org/internal/aggregate"
	"meritlog.org/internal/tracker"
)

// StreakWindowDays is how recent the last entry must be to count as a streak.
const StreakWindowDays = 30

// Streak describes how recently the user last logged an achievement.
type Streak struct {
	LastLogged    *time.Time `json:"last_logged,omitempty"`
	DaysSince     int        `json:"days_since"`
	OnStreak      bool       `json:"on_streak"`
	DaysRemaining int        `json:"days_remaining"`
}

// LastLogged returns the profile's marker when set, otherwise the newest achievement date.
func LastLogged(p tracker.Profile, achievements []tracker.Achievement) *time.Time {
	if p.LastLoggedDate != nil && !p.LastLoggedDate.IsZero() {
		d := *p.LastLoggedDate
		return &d
	}
	var latest time.Time
	for _, a := range achievements {
		if a.Date.After(latest) {
			latest = a.Date
		}
	}
	if latest.IsZero() {
		return nil
	}
	return &latest
}

// ComputeStreak counts whole calendar days between lastLogged and now. A nil lastLogged
// yields the zero Streak.
func ComputeStreak(lastLogged *time.Time, now time.Time) Streak {
	if lastLogged == nil {
		return Streak{}
	}
	days := int(math.Floor(day(now).Sub(day(*lastLogged)).Hours() / 24))
	s := Streak{LastLogged: lastLogged, DaysSince: days, OnStreak: days <= StreakWindowDays}
	if s.OnStreak {
		s.DaysRemaining = StreakWindowDays - days
	}
	return s
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Criteria are the pathway criteria a year's evidence is checked against.
var Criteria = []string{
	"Original Contribution",
	"Critical Role",
	"High Salary",
	"Display of Work",
	"Publication",
	"Award",
}

// Gaps is the outcome of GapAnalysis.
type Gaps struct {
	Year     string   `json:"year"`
	Met      []string `json:"met"`
	Missing  []string `json:"missing"`
	Progress int      `json:"progress"`
}

// GapAnalysis checks which criteria the year's achievements cover through their
// category or tag.
func GapAnalysis(year string, achievements []tracker.Achievement) Gaps {
	hit := make(map[string]bool, len(Criteria))
	for _, a := range ForYear(year, achievements) {
		hit[a.Category] = true
		hit[a.Tag] = true
	}
	g := Gaps{Year: year, Met: []string{}, Missing: []string{}}
	for _, c := range Criteria {
		if hit[c] {
			g.Met = append(g.Met, c)
		} else {
			g.Missing = append(g.Missing, c)
		}
	}
	g.Progress = int(math.Round(float64(len(g.Met)) / float64(len(Criteria)) * 100))
	return g
}

// ForYear filters achievements dated in year, keeping their order.
func ForYear(year string, achievements []tracker.Achievement) []tracker.Achievement {
	out := make([]tracker.Achievement, 0)
	for _, a := range achievements {
		if a.Year() == year {
			out = append(out, a)
		}
	}
	return out
}

// Portfolio is the public view of a user's achievements.
type Portfolio struct {
	UserID       string                `json:"user_id"`
	Achievements []tracker.Achievement `json:"achievements"`
	Awards       int                   `json:"awards"`
}

// PublicPortfolio keeps the public achievements, newest first.
func PublicPortfolio(userID string, achievements []tracker.Achievement) Portfolio {
	p := Portfolio{UserID: userID, Achievements: []tracker.Achievement{}}
	for _, a := range achievements {
		if !a.IsPublic {
			continue
		}
		p.Achievements = append(p.Achievements, a)
		if a.Category == tracker.CategoryAward {
			p.Awards++
		}
	}
	sort.SliceStable(p.Achievements, func(i, j int) bool {
		return p.Achievements[i].Date.After(p.Achievements[j].Date)
	})
	return p
}

// Report is the content of a yearly achievements report.
type Report struct {
	Year         string                `json:"year"`
	Metric       aggregate.YearMetric  `json:"metric"`
	Achievements []tracker.Achievement `json:"achievements"`
}

// YearReport collects the year's entries and metric. A year without a metric entry
// reports zero values with a "0%" completion rate.
func YearReport(year string, achievements []tracker.Achievement, metrics map[string]aggregate.YearMetric) Report {
	m, ok := metrics[year]
	if !ok {
		m = aggregate.YearMetric{ImpactScore: 0, CompletionRate: "0%", Awards: 0}
	}
	return Report{Year: year, Metric: m, Achievements: ForYear(year, achievements)}
}
