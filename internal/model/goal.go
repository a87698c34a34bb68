package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GoalType identifies how purchases are matched against a goal.
type GoalType string

const (
	// GoalGradeBased matches products whose sustainability grade is in the
	// goal's target grade set.
	GoalGradeBased GoalType = "grade_based"

	// GoalScoreBased matches products whose sustainability score meets the
	// goal's minimum score.
	GoalScoreBased GoalType = "score_based"

	// GoalCategoryBased matches products in the goal's target categories,
	// optionally narrowed by a grade set.
	GoalCategoryBased GoalType = "category_based"
)

// Valid reports whether the goal type is one of the known variants.
func (t GoalType) Valid() bool {
	switch t {
	case GoalGradeBased, GoalScoreBased, GoalCategoryBased:
		return true
	}
	return false
}

// Grade is a product sustainability grade, A (best) through F.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
	GradeF Grade = "F"
)

// Valid reports whether the grade is in the A..F range.
func (g Grade) Valid() bool {
	switch g {
	case GradeA, GradeB, GradeC, GradeD, GradeE, GradeF:
		return true
	}
	return false
}

// GoalConfig holds the type-specific matching criteria for a goal.
// Percentage is the target share of qualifying purchases, in (0, 100].
type GoalConfig struct {
	TargetGrades     []Grade  `json:"target_grades,omitempty"`
	MinScore         float64  `json:"min_score,omitempty"`
	TargetCategories []string `json:"target_categories,omitempty"`
	Percentage       float64  `json:"percentage"`
}

// Goal is a user-defined sustainability target.
type Goal struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Type       GoalType   `json:"goal_type"`
	Config     GoalConfig `json:"goal_config"`
	Title      string     `json:"title"`
	IsActive   bool       `json:"is_active"`
	IsAchieved bool       `json:"is_achieved"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks that the goal is internally consistent.
func (g *Goal) Validate() error {
	if !g.Type.Valid() {
		return fmt.Errorf("unknown goal type %q", g.Type)
	}
	if g.Config.Percentage <= 0 || g.Config.Percentage > 100 {
		return fmt.Errorf("target percentage %v out of range (0, 100]", g.Config.Percentage)
	}
	switch g.Type {
	case GoalGradeBased:
		if len(g.Config.TargetGrades) == 0 {
			return fmt.Errorf("grade_based goal requires target grades")
		}
		for _, gr := range g.Config.TargetGrades {
			if !gr.Valid() {
				return fmt.Errorf("invalid grade %q", gr)
			}
		}
	case GoalScoreBased:
		if g.Config.MinScore < 0 || g.Config.MinScore > 100 {
			return fmt.Errorf("min score %v out of range [0, 100]", g.Config.MinScore)
		}
	case GoalCategoryBased:
		if len(g.Config.TargetCategories) == 0 {
			return fmt.Errorf("category_based goal requires target categories")
		}
	}
	return nil
}

// TempIDPrefix marks client-generated goal ids that the server has not seen.
const TempIDPrefix = "temp_"

// NewTempID generates a client-side goal id for offline creates.
func NewTempID(now time.Time) string {
	return TempIDPrefix + strconv.FormatInt(now.UnixNano(), 10)
}

// IsTempID reports whether the id is a client-generated temporary id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// GoalStats is the server-computed statistics blob for a user's goals.
type GoalStats struct {
	TotalGoals      int       `json:"total_goals"`
	ActiveGoals     int       `json:"active_goals"`
	AchievedGoals   int       `json:"achieved_goals"`
	AverageProgress float64   `json:"average_progress"`
	UpdatedAt       time.Time `json:"updated_at"`
}
