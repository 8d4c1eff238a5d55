package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abapractice/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func entry(id, sessionID, goalID int64, trials, correct int, level models.PromptLevel) models.ProgressEntry {
	return models.ProgressEntry{
		ID:          id,
		SessionID:   sessionID,
		GoalID:      goalID,
		Trials:      trials,
		Correct:     correct,
		PromptLevel: level,
		CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestComputeGoalCompletionIgnoresZeroTrialEntries(t *testing.T) {
	goals := []models.Goal{{ID: 1, Name: "Contato visual", TargetPercentage: 80}}
	entries := []models.ProgressEntry{
		entry(1, 10, 1, 10, 8, models.PromptVerbal),
		entry(2, 10, 1, 0, 0, models.PromptVerbal),
	}
	dates := SessionDates{10: day(3)}

	got := ComputeGoalCompletion(goals, entries, dates)

	require.Len(t, got, 1)
	require.NotNil(t, got[0].Percentage)
	assert.Equal(t, 80.0, *got[0].Percentage)
	assert.True(t, got[0].Achieved)
}

func TestComputeGoalCompletionUndefined(t *testing.T) {
	goals := []models.Goal{
		{ID: 1, Name: "Sem registros", TargetPercentage: 0},
		{ID: 2, Name: "Apenas zeros", TargetPercentage: 0},
	}
	entries := []models.ProgressEntry{
		entry(1, 10, 2, 0, 0, models.PromptFull),
		entry(2, 11, 2, 0, 0, models.PromptFull),
	}
	dates := SessionDates{10: day(1), 11: day(2)}

	got := ComputeGoalCompletion(goals, entries, dates)

	require.Len(t, got, 2)
	for _, gc := range got {
		assert.Nil(t, gc.Percentage, "goal %d", gc.GoalID)
		assert.False(t, gc.Achieved, "goal %d with a zero target is still not achieved", gc.GoalID)
	}
}

func TestComputeGoalCompletionPicksMostRecent(t *testing.T) {
	goals := []models.Goal{{ID: 1, TargetPercentage: 70}}

	older := entry(1, 10, 1, 10, 10, models.PromptIndependent)
	newest := entry(2, 11, 1, 10, 6, models.PromptVerbal)
	dates := SessionDates{10: day(1), 11: day(5)}

	// input order must not matter
	got := ComputeGoalCompletion(goals, []models.ProgressEntry{newest, older}, dates)
	require.NotNil(t, got[0].Percentage)
	assert.Equal(t, 60.0, *got[0].Percentage)
	assert.False(t, got[0].Achieved)
	assert.Equal(t, day(5), *got[0].MeasuredOn)
}

func TestComputeGoalCompletionSameDateTieBreak(t *testing.T) {
	goals := []models.Goal{{ID: 1, TargetPercentage: 50}}
	dates := SessionDates{10: day(2), 11: day(2)}

	first := entry(1, 10, 1, 10, 2, models.PromptFull)
	second := entry(2, 11, 1, 10, 9, models.PromptGestural)
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	got := ComputeGoalCompletion(goals, []models.ProgressEntry{second, first}, dates)
	assert.Equal(t, 90.0, *got[0].Percentage)

	// identical timestamps fall back to the larger ID
	second.CreatedAt = first.CreatedAt
	got = ComputeGoalCompletion(goals, []models.ProgressEntry{second, first}, dates)
	assert.Equal(t, 90.0, *got[0].Percentage)
}

func TestComputeGoalCompletionDoesNotClamp(t *testing.T) {
	goals := []models.Goal{{ID: 1, TargetPercentage: 100}}
	entries := []models.ProgressEntry{entry(1, 10, 1, 4, 5, models.PromptVerbal)}

	got := ComputeGoalCompletion(goals, entries, SessionDates{10: day(1)})
	assert.Equal(t, 125.0, *got[0].Percentage)
	assert.True(t, got[0].Achieved)
}

func TestComputeGoalCompletionPreservesGoalOrderAndSkipsUndatedEntries(t *testing.T) {
	goals := []models.Goal{{ID: 3}, {ID: 1}, {ID: 2}}
	entries := []models.ProgressEntry{
		entry(1, 10, 1, 10, 5, models.PromptVerbal),
		entry(2, 99, 2, 10, 5, models.PromptVerbal), // session outside the loaded set
	}

	got := ComputeGoalCompletion(goals, entries, SessionDates{10: day(1)})

	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{got[0].GoalID, got[1].GoalID, got[2].GoalID})
	assert.Nil(t, got[0].Percentage)
	assert.NotNil(t, got[1].Percentage)
	assert.Nil(t, got[2].Percentage)
}

func TestComputeDailyAverage(t *testing.T) {
	dates := SessionDates{10: day(4), 11: day(2), 12: day(2), 13: day(6)}
	entries := []models.ProgressEntry{
		entry(1, 10, 1, 10, 5, models.PromptVerbal),
		entry(2, 11, 1, 10, 10, models.PromptVerbal),
		entry(3, 12, 2, 4, 2, models.PromptVerbal),
		entry(4, 12, 2, 0, 0, models.PromptVerbal),
		entry(5, 13, 1, 0, 0, models.PromptVerbal), // only zero-trial entries on day 6
	}

	got := ComputeDailyAverage(entries, dates)

	require.Len(t, got, 2)
	assert.Equal(t, "2024-05-02", got[0].Date)
	assert.InDelta(t, 75.0, got[0].Percentage, 1e-9)
	assert.Equal(t, 2, got[0].Entries)
	assert.Equal(t, "2024-05-04", got[1].Date)
	assert.InDelta(t, 50.0, got[1].Percentage, 1e-9)
}

func TestComputeDailyAverageNeverEmitsZeroTrialDates(t *testing.T) {
	dates := SessionDates{}
	var entries []models.ProgressEntry
	for i := int64(1); i <= 20; i++ {
		dates[i] = day(int(i))
		trials := 0
		if i%3 == 0 {
			trials = 5
		}
		entries = append(entries, entry(i, i, 1, trials, 0, models.PromptFull))
	}

	for _, d := range ComputeDailyAverage(entries, dates) {
		ts, err := time.Parse("2006-01-02", d.Date)
		require.NoError(t, err)
		assert.Equal(t, 0, ts.Day()%3, "date %s only had zero-trial entries", d.Date)
	}
}

func TestComputePromptHistogram(t *testing.T) {
	entries := []models.ProgressEntry{
		entry(1, 1, 1, 10, 5, models.PromptFull),
		entry(2, 1, 1, 10, 5, models.PromptIndependent),
		entry(3, 1, 1, 10, 5, models.PromptFull),
		entry(4, 1, 1, 0, 0, models.PromptVerbal),
		entry(5, 1, 1, 10, 5, models.PromptLevel("physical")),
	}

	got := ComputePromptHistogram(entries, DefaultPromptLabels)

	assert.Equal(t, []PromptCount{
		{Level: models.PromptIndependent, Label: "Independente", Count: 1},
		{Level: models.PromptVerbal, Label: "Verbal", Count: 1},
		{Level: models.PromptFull, Label: "Total", Count: 2},
	}, got)

	total := 0
	for _, pc := range got {
		assert.NotZero(t, pc.Count)
		total += pc.Count
	}
	assert.Equal(t, 4, total, "sum equals entries with a recognized level")
}

func TestComputePromptHistogramDropsUnlabeledLevels(t *testing.T) {
	entries := []models.ProgressEntry{
		entry(1, 1, 1, 1, 1, models.PromptGestural),
		entry(2, 1, 1, 1, 1, models.PromptPartial),
	}
	labels := map[models.PromptLevel]string{models.PromptPartial: "Partial"}

	got := ComputePromptHistogram(entries, labels)
	assert.Equal(t, []PromptCount{{Level: models.PromptPartial, Label: "Partial", Count: 1}}, got)
}

func TestComputeSummaryStats(t *testing.T) {
	sessions := []models.Session{
		{ID: 10, SessionDate: day(1), DurationMinutes: 60},
		{ID: 11, SessionDate: day(2), DurationMinutes: 30},
	}
	goals := []models.Goal{
		{ID: 1, TargetPercentage: 80},
		{ID: 2, TargetPercentage: 50},
		{ID: 3, TargetPercentage: 10},
	}
	entries := []models.ProgressEntry{
		entry(1, 10, 1, 10, 10, models.PromptVerbal),
		entry(2, 10, 1, 10, 0, models.PromptVerbal),
		entry(3, 11, 2, 10, 10, models.PromptVerbal),
		entry(4, 11, 3, 0, 0, models.PromptVerbal),
	}
	dates := DatesFromSessions(sessions)

	stats := ComputeSummaryStats(sessions, entries, goals, dates)

	assert.Equal(t, 2, stats.TotalSessions)
	assert.InDelta(t, 1.5, stats.TotalHours, 1e-9)
	assert.Equal(t, 3, stats.QualifyingEntries)
	assert.InDelta(t, 200.0/3, stats.AvgProgressPercent, 1e-9)
	// goal 1: latest entry (same day, larger id) is 0%; goal 2: 100%; goal 3: undefined
	assert.Equal(t, 1, stats.GoalsAchievedCount)
}

func TestFlatMeanDiffersFromMeanOfDailyAverages(t *testing.T) {
	sessions := []models.Session{
		{ID: 10, SessionDate: day(1), DurationMinutes: 45},
		{ID: 11, SessionDate: day(2), DurationMinutes: 45},
	}
	entries := []models.ProgressEntry{
		entry(1, 10, 1, 10, 10, models.PromptVerbal),
		entry(2, 10, 1, 10, 0, models.PromptVerbal),
		entry(3, 11, 1, 10, 10, models.PromptVerbal),
	}
	dates := DatesFromSessions(sessions)

	stats := ComputeSummaryStats(sessions, entries, nil, dates)
	daily := ComputeDailyAverage(entries, dates)

	meanOfDaily := 0.0
	for _, d := range daily {
		meanOfDaily += d.Percentage
	}
	meanOfDaily /= float64(len(daily))

	assert.InDelta(t, 66.666, stats.AvgProgressPercent, 0.01)
	assert.InDelta(t, 75.0, meanOfDaily, 1e-9)
	assert.NotEqual(t, meanOfDaily, stats.AvgProgressPercent)
}

func TestEmptyInputs(t *testing.T) {
	assert.Empty(t, ComputeGoalCompletion(nil, nil, nil))
	assert.Empty(t, ComputeDailyAverage(nil, nil))
	assert.Empty(t, ComputePromptHistogram(nil, DefaultPromptLabels))
	assert.Empty(t, ComputePromptHistogram(nil, nil))

	stats := ComputeSummaryStats(nil, nil, nil, nil)
	assert.Equal(t, SummaryStats{}, stats)
}
