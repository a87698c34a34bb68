package model

import "time"

// ProgressStatus is the qualitative bucket for progress toward a goal,
// derived from current percentage relative to the target.
type ProgressStatus string

const (
	StatusNotStarted       ProgressStatus = "not_started"
	StatusNeedsImprovement ProgressStatus = "needs_improvement"
	StatusGettingStarted   ProgressStatus = "getting_started"
	StatusOnTrack          ProgressStatus = "on_track"
	StatusAlmostThere      ProgressStatus = "almost_there"
	StatusAchieved         ProgressStatus = "achieved"
)

// InsightPriority orders insights by importance for callers that re-sort.
type InsightPriority string

const (
	PriorityHigh   InsightPriority = "high"
	PriorityMedium InsightPriority = "medium"
	PriorityLow    InsightPriority = "low"
)

// Insight is a human-readable observation about goal progress.
type Insight struct {
	Type     string          `json:"type"`
	Message  string          `json:"message"`
	Priority InsightPriority `json:"priority"`
}

// Trend classifies the direction of recent progress.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// ProjectionConfidence grades how much data backs a projection.
type ProjectionConfidence string

const (
	ConfidenceLow    ProjectionConfidence = "low"
	ConfidenceMedium ProjectionConfidence = "medium"
	ConfidenceHigh   ProjectionConfidence = "high"
)

// Projection is an optional trend extrapolation over the purchase history.
// When the history is too thin to divide safely, InsufficientData is set
// instead of guessing.
type Projection struct {
	Trend            Trend                `json:"trend"`
	DaysToGoal       int                  `json:"days_to_goal,omitempty"`
	Confidence       ProjectionConfidence `json:"confidence"`
	InsufficientData bool                 `json:"insufficient_data,omitempty"`
}

// ScoreBucket is a fixed-width score decile with its item count.
type ScoreBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ProgressResult is the full output of one progress computation. It is
// derived, never persisted, and always produced atomically from a complete
// pass over the purchase history.
type ProgressResult struct {
	GoalID            string         `json:"goal_id"`
	TotalItems        int            `json:"total_items"`
	GoalMetItems      int            `json:"goal_met_items"`
	TotalValue        float64        `json:"total_value"`
	GoalMetValue      float64        `json:"goal_met_value"`
	CurrentPercentage float64        `json:"current_percentage"`
	TargetPercentage  float64        `json:"target_percentage"`
	IsAchieved        bool           `json:"is_achieved"`
	Status            ProgressStatus `json:"status"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
	GradeBreakdown    map[Grade]int  `json:"grade_breakdown"`
	ScoreBreakdown    []ScoreBucket  `json:"score_breakdown"`
	CurrentStreak     int            `json:"current_streak"`
	LongestStreak     int            `json:"longest_streak"`
	RecentOutcomes    []bool         `json:"recent_outcomes"`
	Insights          []Insight      `json:"insights"`
	Projection        *Projection    `json:"projection,omitempty"`
	ComputedAt        time.Time      `json:"computed_at"`
}
