package progress

import (
	"strings"
	"time"

	"abapractice/internal/validation"
)

// Window is the reporting period: the last Days days, or all time when Days is 0
type Window struct {
	Days int
}

// Supported windows
var (
	Last7Days  = Window{Days: 7}
	Last30Days = Window{Days: 30}
	Last90Days = Window{Days: 90}
	AllTime    = Window{}
)

// DefaultWindow is used when the caller does not pick one
var DefaultWindow = Last30Days

// ParseWindow accepts "7d", "30d", "90d" or "all". An empty value selects DefaultWindow.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultWindow, nil
	case "7d":
		return Last7Days, nil
	case "30d":
		return Last30Days, nil
	case "90d":
		return Last90Days, nil
	case "all":
		return AllTime, nil
	}
	return Window{}, validation.ValidationError{Field: "window", Message: "window must be one of 7d, 30d, 90d, all"}
}

// String returns the form accepted by ParseWindow
func (w Window) String() string {
	switch w.Days {
	case 0:
		return "all"
	case 7:
		return "7d"
	case 30:
		return "30d"
	case 90:
		return "90d"
	}
	return "custom"
}

// IsAllTime reports whether the window is unbounded
func (w Window) IsAllTime() bool {
	return w.Days <= 0
}

// Since returns the first calendar day (UTC midnight) inside the window.
// A window of N days covers today and the N-1 days before it. The second
// result is false for all time.
func (w Window) Since(now time.Time) (time.Time, bool) {
	if w.IsAllTime() {
		return time.Time{}, false
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, 1-w.Days), true
}
