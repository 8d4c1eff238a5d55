package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abapractice/internal/models"
	"abapractice/internal/validation"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		input   string
		want    Window
		wantErr bool
	}{
		{input: "", want: Last30Days},
		{input: "7d", want: Last7Days},
		{input: "30D", want: Last30Days},
		{input: " 90d ", want: Last90Days},
		{input: "all", want: AllTime},
		{input: "14d", wantErr: true},
		{input: "forever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseWindow(tt.input)
			if tt.wantErr {
				var ve validation.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, "window", ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindowSince(t *testing.T) {
	now := time.Date(2024, 6, 15, 17, 45, 0, 0, time.UTC)

	since, ok := Last7Days.Since(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), since)

	days := 0
	for d := since; !d.After(now); d = d.AddDate(0, 0, 1) {
		days++
	}
	assert.Equal(t, 7, days, "7d spans seven session dates including today")

	since, ok = Last30Days.Since(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), since)

	_, ok = AllTime.Since(now)
	assert.False(t, ok)

	assert.Equal(t, "90d", Last90Days.String())
	assert.Equal(t, "all", AllTime.String())
}

func TestBuildReport(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	sessions := []models.Session{{ID: 10, SessionDate: day(6), DurationMinutes: 90}}
	goals := []models.Goal{{ID: 1, Name: "Nomear cores", TargetPercentage: 80}}
	entries := []models.ProgressEntry{
		entry(1, 10, 1, 10, 8, models.PromptGestural),
		entry(2, 10, 1, 0, 0, models.PromptGestural),
	}

	r := BuildReport(ReportInput{
		PatientID: 7,
		Window:    Last7Days,
		Now:       now,
		Goals:     goals,
		Sessions:  sessions,
		Entries:   entries,
	})

	assert.Equal(t, int64(7), r.PatientID)
	assert.Equal(t, "7d", r.Window)
	require.NotNil(t, r.Since)
	assert.Equal(t, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), *r.Since)
	assert.Equal(t, 1, r.Summary.GoalsAchievedCount)
	assert.Equal(t, 80.0, *r.GoalCompletion[0].Percentage)
	assert.Len(t, r.DailyAverage, 1)
	assert.Equal(t, []PromptCount{{Level: models.PromptGestural, Label: "Gestual", Count: 2}}, r.PromptHistogram)
}
