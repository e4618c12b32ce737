// Package aggregate maintains per-year summaries derived from achievements.
//
// Rebuild is the ground truth used on initial load. Add and Remove adjust a single
// year entry so single-record mutations never rescan the collection.
package aggregate

import (
	"sort"
	"sync"

	"meritlog.org/internal/tracker"
)

const (
	maxImpact        = 100
	pointsPerEntry   = 5
	pointsPerAward   = 10
	defaultRateLabel = "100%"
)

// YearMetric is the derived summary for one calendar year.
type YearMetric struct {
	ImpactScore    int    `json:"impact_score"`
	CompletionRate string `json:"completion_rate"`
	Awards         int    `json:"awards"`
}

// Aggregator holds the year -> metric mapping. Safe for concurrent use; overlapping
// Add/Remove calls are applied in whatever order they acquire the lock.
type Aggregator struct {
	mu    sync.RWMutex
	years map[string]YearMetric
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{years: make(map[string]YearMetric)}
}

// Rebuild clears the mapping and recomputes it from the full collection.
func (a *Aggregator) Rebuild(items []tracker.Achievement) {
	years := make(map[string]YearMetric)
	for _, item := range items {
		y := item.Year()
		years[y] = credit(entryOrDefault(years, y), item.Category)
	}
	a.mu.Lock()
	a.years = years
	a.mu.Unlock()
}

// Add applies one achievement to its year, creating the year entry if absent.
func (a *Aggregator) Add(item tracker.Achievement) {
	y := item.Year()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.years[y] = credit(entryOrDefault(a.years, y), item.Category)
}

// Remove reverses Add for one achievement. No-op when the year has no entry.
func (a *Aggregator) Remove(item tracker.Achievement) {
	a.RemoveFrom(item.Year(), item.Category)
}

// RemoveFrom reverses one contribution of the given category from year.
func (a *Aggregator) RemoveFrom(year, category string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.years[year]
	if !ok {
		return
	}
	a.years[year] = debit(m, category)
}

// Year returns the metric for year, if any.
func (a *Aggregator) Year(year string) (YearMetric, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.years[year]
	return m, ok
}

// Snapshot returns a copy of the whole mapping.
func (a *Aggregator) Snapshot() map[string]YearMetric {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]YearMetric, len(a.years))
	for k, v := range a.years {
		out[k] = v
	}
	return out
}

// Years returns the known years, newest first.
func (a *Aggregator) Years() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.years))
	for y := range a.years {
		out = append(out, y)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// Reset drops every year entry.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.years = make(map[string]YearMetric)
	a.mu.Unlock()
}

func entryOrDefault(years map[string]YearMetric, y string) YearMetric {
	if m, ok := years[y]; ok {
		return m
	}
	return YearMetric{CompletionRate: defaultRateLabel}
}

func credit(m YearMetric, category string) YearMetric {
	m.ImpactScore += pointsPerEntry
	if category == tracker.CategoryAward {
		m.ImpactScore += pointsPerAward
		m.Awards++
	}
	if m.ImpactScore > maxImpact {
		m.ImpactScore = maxImpact
	}
	return m
}

func debit(m YearMetric, category string) YearMetric {
	m.ImpactScore -= pointsPerEntry
	if category == tracker.CategoryAward {
		m.ImpactScore -= pointsPerAward
		m.Awards--
	}
	if m.ImpactScore < 0 {
		m.ImpactScore = 0
	}
	if m.Awards < 0 {
		m.Awards = 0
	}
	return m
}
