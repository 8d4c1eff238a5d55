// Package progress turns raw discrete-trial records into the views shown on
// practitioner reports and the family portal. Nothing here does I/O; callers
// load goals, sessions and entries already scoped to one patient, one
// practitioner and one window.
package progress

import (
	"sort"
	"time"

	"abapractice/internal/models"
)

// SessionDates maps a session ID to the calendar date of that session
type SessionDates map[int64]time.Time

// DatesFromSessions indexes session dates by session ID
func DatesFromSessions(sessions []models.Session) SessionDates {
	dates := make(SessionDates, len(sessions))
	for _, s := range sessions {
		dates[s.ID] = s.SessionDate
	}
	return dates
}

// GoalCompletion is the latest measured result for one goal.
// Percentage is nil when the goal has no entry with trials > 0.
type GoalCompletion struct {
	GoalID           int64      `json:"goal_id"`
	GoalName         string     `json:"goal_name"`
	Category         string     `json:"category"`
	TargetPercentage float64    `json:"target_percentage"`
	Percentage       *float64   `json:"percentage"`
	Achieved         bool       `json:"achieved"`
	MeasuredOn       *time.Time `json:"measured_on,omitempty"`
}

// DailyAverage is the mean entry percentage for one session date
type DailyAverage struct {
	Date       string  `json:"date"`
	Percentage float64 `json:"percentage"`
	Entries    int     `json:"entries"`
}

// PromptCount is one bar of the prompt-level histogram
type PromptCount struct {
	Level models.PromptLevel `json:"level"`
	Label string             `json:"label"`
	Count int                `json:"count"`
}

// SummaryStats are the headline figures for a report.
// AvgProgressPercent is a flat mean over qualifying entries and is only
// meaningful when QualifyingEntries > 0.
type SummaryStats struct {
	TotalSessions      int     `json:"total_sessions"`
	TotalHours         float64 `json:"total_hours"`
	AvgProgressPercent float64 `json:"avg_progress_percent"`
	QualifyingEntries  int     `json:"qualifying_entries"`
	GoalsAchievedCount int     `json:"goals_achieved_count"`
}

// DefaultPromptLabels are the display strings used on reports
var DefaultPromptLabels = map[models.PromptLevel]string{
	models.PromptIndependent: "Independente",
	models.PromptGestural:    "Gestual",
	models.PromptVerbal:      "Verbal",
	models.PromptPartial:     "Parcial",
	models.PromptFull:        "Total",
}

func entryPercentage(e models.ProgressEntry) float64 {
	// multiply first so 8/10 yields exactly 80
	return float64(e.Correct) * 100 / float64(e.Trials)
}

// qualifies reports whether an entry contributes a percentage at all
func qualifies(e models.ProgressEntry) bool {
	return e.Trials > 0
}

// ComputeGoalCompletion returns one result per goal, in the order given.
// The most recent qualifying entry decides: latest session date first, then
// later creation time, then larger ID. Ratios above 100% are reported as is.
func ComputeGoalCompletion(goals []models.Goal, entries []models.ProgressEntry, dates SessionDates) []GoalCompletion {
	type pick struct {
		entry models.ProgressEntry
		date  time.Time
	}
	latest := make(map[int64]pick)

	for _, e := range entries {
		if !qualifies(e) {
			continue
		}
		date, ok := dates[e.SessionID]
		if !ok {
			continue
		}
		cur, seen := latest[e.GoalID]
		if !seen || newer(e, date, cur.entry, cur.date) {
			latest[e.GoalID] = pick{entry: e, date: date}
		}
	}

	results := make([]GoalCompletion, 0, len(goals))
	for _, g := range goals {
		gc := GoalCompletion{
			GoalID:           g.ID,
			GoalName:         g.Name,
			Category:         g.Category,
			TargetPercentage: g.TargetPercentage,
		}
		if p, ok := latest[g.ID]; ok {
			pct := entryPercentage(p.entry)
			date := p.date
			gc.Percentage = &pct
			gc.MeasuredOn = &date
			gc.Achieved = pct >= g.TargetPercentage
		}
		results = append(results, gc)
	}
	return results
}

func newer(e models.ProgressEntry, date time.Time, cur models.ProgressEntry, curDate time.Time) bool {
	d, cd := dateKey(date), dateKey(curDate)
	if d != cd {
		return d > cd
	}
	if !e.CreatedAt.Equal(cur.CreatedAt) {
		return e.CreatedAt.After(cur.CreatedAt)
	}
	return e.ID > cur.ID
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ComputeDailyAverage groups qualifying entries by session date and averages
// their percentages. Dates without a qualifying entry are left out.
func ComputeDailyAverage(entries []models.ProgressEntry, dates SessionDates) []DailyAverage {
	type acc struct {
		sum   float64
		count int
	}
	byDate := make(map[string]*acc)

	for _, e := range entries {
		if !qualifies(e) {
			continue
		}
		date, ok := dates[e.SessionID]
		if !ok {
			continue
		}
		key := dateKey(date)
		a := byDate[key]
		if a == nil {
			a = &acc{}
			byDate[key] = a
		}
		a.sum += entryPercentage(e)
		a.count++
	}

	out := make([]DailyAverage, 0, len(byDate))
	for key, a := range byDate {
		out = append(out, DailyAverage{Date: key, Percentage: a.sum / float64(a.count), Entries: a.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// ComputePromptHistogram counts entries per prompt level in canonical order.
// Levels missing from labels are dropped and zero counts are omitted.
func ComputePromptHistogram(entries []models.ProgressEntry, labels map[models.PromptLevel]string) []PromptCount {
	counts := make(map[models.PromptLevel]int)
	for _, e := range entries {
		counts[e.PromptLevel]++
	}

	out := make([]PromptCount, 0, len(models.PromptLevels))
	for _, level := range models.PromptLevels {
		label, ok := labels[level]
		if !ok || counts[level] == 0 {
			continue
		}
		out = append(out, PromptCount{Level: level, Label: label, Count: counts[level]})
	}
	return out
}

// ComputeSummaryStats builds the headline figures for a report
func ComputeSummaryStats(sessions []models.Session, entries []models.ProgressEntry, goals []models.Goal, dates SessionDates) SummaryStats {
	stats := SummaryStats{TotalSessions: len(sessions)}

	minutes := 0
	for _, s := range sessions {
		minutes += s.DurationMinutes
	}
	stats.TotalHours = float64(minutes) / 60

	sum := 0.0
	for _, e := range entries {
		if !qualifies(e) {
			continue
		}
		sum += entryPercentage(e)
		stats.QualifyingEntries++
	}
	if stats.QualifyingEntries > 0 {
		stats.AvgProgressPercent = sum / float64(stats.QualifyingEntries)
	}

	for _, gc := range ComputeGoalCompletion(goals, entries, dates) {
		if gc.Achieved {
			stats.GoalsAchievedCount++
		}
	}
	return stats
}
