package progress

import (
	"fmt"

	"greencart-sync-api/internal/model"
)

// Difficulty scores how demanding a goal configuration is, from 1 (easy)
// to 5 (strict). Each strictness signal pushes the score up by one.
func Difficulty(goal *model.Goal) int {
	score := 1

	if goal.Type == model.GoalGradeBased &&
		len(goal.Config.TargetGrades) == 1 && goal.Config.TargetGrades[0] == model.GradeA {
		score++
	}
	if goal.Type == model.GoalScoreBased && goal.Config.MinScore >= 80 {
		score++
	}
	if goal.Type == model.GoalCategoryBased && len(goal.Config.TargetCategories) == 1 {
		score++
	}
	if goal.Config.Percentage >= 90 {
		score++
	}

	if score > 5 {
		score = 5
	}
	return score
}

// ProgressColor maps the current/target ratio to a display color.
func ProgressColor(current, target float64) string {
	if target <= 0 {
		return "#9ca3af"
	}
	ratio := current / target
	switch {
	case ratio >= 1:
		return "#22c55e"
	case ratio >= 0.8:
		return "#84cc16"
	case ratio >= 0.5:
		return "#eab308"
	case ratio >= 0.25:
		return "#f97316"
	default:
		return "#ef4444"
	}
}

// FormatPercentage renders a percentage with one decimal place.
func FormatPercentage(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}
