package store

import (
	"encoding/json"
	"time"
)

type Project struct {
	ID          string
	Title       string
	Description string
	Stack       string
	Status      string
	Percentage  int
	StartDate   *time.Time
	EndDate     *time.Time
	Notes       string
	Roadmap     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Task struct {
	ID         string
	ProjectID  string
	Title      string
	Done       bool
	Percentage int
	SortOrder  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProjectSession is one recorded review event. Rows are append-only: the
// service inserts them once and never updates them.
type ProjectSession struct {
	ID              string
	ProjectID       *string
	CalendlyEventID *string
	ScheduledAt     time.Time
	CompletedAt     *time.Time

	// Reported by the invitee or the manual caller
	ProgressReported int
	Blockers         string
	NeedsReview      string
	ChangesSinceLast string
	TargetMilestone  string

	// Derived analysis
	HealthStatus      string
	RiskLevel         string
	TimelineAlignment string
	DelayAnalysis     string
	Recommendations   []string
	SuggestedFocus    string
	ActionPlan        []string
	// YYYY-MM-DD literal, nil when the analysis suggested no adjustment
	AdjustedEndDate *string
	SessionSummary  string
	NextMilestone   string

	CreatedAt time.Time
}
