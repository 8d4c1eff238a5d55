package models

import "time"

// PromptLevel is the amount of assistance given during a trial block
type PromptLevel string

const (
	PromptIndependent PromptLevel = "independent"
	PromptGestural    PromptLevel = "gestural"
	PromptVerbal      PromptLevel = "verbal"
	PromptPartial     PromptLevel = "partial"
	PromptFull        PromptLevel = "full"
)

// PromptLevels lists the canonical levels from least to most assistance
var PromptLevels = []PromptLevel{PromptIndependent, PromptGestural, PromptVerbal, PromptPartial, PromptFull}

// Valid reports whether p is a canonical prompt level
func (p PromptLevel) Valid() bool {
	for _, l := range PromptLevels {
		if p == l {
			return true
		}
	}
	return false
}

// ProgressEntry records one block of discrete trials for a goal within a session
type ProgressEntry struct {
	ID          int64       `json:"id"`
	SessionID   int64       `json:"session_id"`
	GoalID      int64       `json:"goal_id"`
	Trials      int         `json:"trials"`
	Correct     int         `json:"correct"`
	PromptLevel PromptLevel `json:"prompt_level"`
	Notes       string      `json:"notes"`
	CreatedAt   time.Time   `json:"created_at"`
}
