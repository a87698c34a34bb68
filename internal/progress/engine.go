// Package progress computes goal progress from raw purchase history.
//
// Everything in this package is pure: results depend only on the inputs,
// there is no I/O and no shared mutable state, so calls are safe from any
// goroutine and batch computation is trivially parallelizable.
package progress

import (
	"fmt"
	"math"
	"sort"
	"time"

	"greencart-sync-api/internal/model"
)

// recentOutcomeWindow is how many of the latest purchase outcomes are kept.
const recentOutcomeWindow = 10

// scoreBucketLabels are the fixed-width score deciles, low to high.
var scoreBucketLabels = []string{"0-49", "50-59", "60-69", "70-79", "80-89", "90-100"}

// TimeRange filters purchases to [From, To). A zero bound is open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Options control how progress is computed.
type Options struct {
	// CountPartialProgress relaxes secondary criteria: a category goal that
	// also narrows by grade counts category-only matches as met.
	CountPartialProgress bool

	// WeightByQuantity counts each line item by its quantity instead of once.
	WeightByQuantity bool

	// WeightByPrice computes the percentage from spend instead of item counts.
	WeightByPrice bool

	// Timeframe restricts the purchase history when non-nil.
	Timeframe *TimeRange

	// IncludeProjection adds a trend projection to the result.
	IncludeProjection bool
}

// Calculate computes the full progress result for one goal over the given
// purchase history. Deterministic for fixed inputs.
func Calculate(goal *model.Goal, history []model.Purchase, opts Options) model.ProgressResult {
	purchases := filterTimeframe(history, opts.Timeframe)

	// Chronological order so streaks and recency are well defined even if
	// the order subsystem hands us history newest-first.
	sort.SliceStable(purchases, func(i, j int) bool {
		return purchases[i].OrderedAt.Before(purchases[j].OrderedAt)
	})

	res := model.ProgressResult{
		GoalID:            goal.ID,
		TargetPercentage:  goal.Config.Percentage,
		CategoryBreakdown: make(map[string]int),
		GradeBreakdown:    make(map[model.Grade]int),
		ScoreBreakdown:    emptyScoreBuckets(),
	}

	for _, p := range purchases {
		purchaseAligned := false
		for _, item := range p.Items {
			w := 1
			if opts.WeightByQuantity && item.Quantity > 1 {
				w = item.Quantity
			}
			value := item.Price * float64(maxInt(item.Quantity, 1))

			res.TotalItems += w
			res.TotalValue += value
			res.CategoryBreakdown[item.Category] += w
			res.GradeBreakdown[item.Grade] += w
			addScoreBucket(res.ScoreBreakdown, item.Score, w)

			if aligned(goal, item, opts.CountPartialProgress) {
				res.GoalMetItems += w
				res.GoalMetValue += value
				purchaseAligned = true
			}
		}

		if purchaseAligned {
			res.CurrentStreak++
			if res.CurrentStreak > res.LongestStreak {
				res.LongestStreak = res.CurrentStreak
			}
		} else {
			res.CurrentStreak = 0
		}
		res.RecentOutcomes = append(res.RecentOutcomes, purchaseAligned)
		if len(res.RecentOutcomes) > recentOutcomeWindow {
			res.RecentOutcomes = res.RecentOutcomes[1:]
		}
	}

	res.CurrentPercentage = percentage(res, opts)
	res.IsAchieved = res.TotalItems > 0 && res.CurrentPercentage >= res.TargetPercentage
	res.Status = status(res.TotalItems, res.CurrentPercentage, res.TargetPercentage)
	res.Insights = buildInsights(&res)

	if opts.IncludeProjection {
		res.Projection = project(goal, purchases, opts, res.CurrentPercentage)
	}

	return res
}

// BatchCalculate maps each goal independently to a progress result. Goals
// share no state, so callers may shard this across goroutines; the
// sequential loop keeps result order aligned with the input.
func BatchCalculate(goals []model.Goal, history []model.Purchase, opts Options) []model.ProgressResult {
	results := make([]model.ProgressResult, 0, len(goals))
	for i := range goals {
		results = append(results, Calculate(&goals[i], history, opts))
	}
	return results
}

// aligned is the per-goal-type alignment predicate.
func aligned(goal *model.Goal, item model.PurchaseItem, partial bool) bool {
	switch goal.Type {
	case model.GoalGradeBased:
		return gradeIn(item.Grade, goal.Config.TargetGrades)
	case model.GoalScoreBased:
		return item.Score >= goal.Config.MinScore
	case model.GoalCategoryBased:
		if !categoryIn(item.Category, goal.Config.TargetCategories) {
			return false
		}
		if len(goal.Config.TargetGrades) == 0 || partial {
			return true
		}
		return gradeIn(item.Grade, goal.Config.TargetGrades)
	}
	return false
}

func gradeIn(g model.Grade, set []model.Grade) bool {
	for _, s := range set {
		if g == s {
			return true
		}
	}
	return false
}

func categoryIn(c string, set []string) bool {
	for _, s := range set {
		if c == s {
			return true
		}
	}
	return false
}

// percentage derives the completion percentage, by spend or by count.
// Zero totals short-circuit to 0 rather than dividing.
func percentage(res model.ProgressResult, opts Options) float64 {
	if opts.WeightByPrice {
		if res.TotalValue == 0 {
			return 0
		}
		return res.GoalMetValue / res.TotalValue * 100
	}
	if res.TotalItems == 0 {
		return 0
	}
	return float64(res.GoalMetItems) / float64(res.TotalItems) * 100
}

// status buckets current progress. The achieved rung is relative to the
// goal's own target; the lower rungs climb fixed percentage thresholds.
func status(totalItems int, current, target float64) model.ProgressStatus {
	if totalItems == 0 {
		return model.StatusNotStarted
	}
	if current >= target {
		return model.StatusAchieved
	}
	switch {
	case current < 25:
		return model.StatusNeedsImprovement
	case current < 50:
		return model.StatusGettingStarted
	case current < 80:
		return model.StatusOnTrack
	default:
		return model.StatusAlmostThere
	}
}

func filterTimeframe(history []model.Purchase, tf *TimeRange) []model.Purchase {
	out := make([]model.Purchase, 0, len(history))
	for _, p := range history {
		if tf != nil && !tf.Contains(p.OrderedAt) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func emptyScoreBuckets() []model.ScoreBucket {
	buckets := make([]model.ScoreBucket, len(scoreBucketLabels))
	for i, label := range scoreBucketLabels {
		buckets[i] = model.ScoreBucket{Label: label}
	}
	return buckets
}

// addScoreBucket increments the decile bucket for the score. Scores below 50
// share one bucket; everything else lands in its decile, capped at 90-100.
func addScoreBucket(buckets []model.ScoreBucket, score float64, w int) {
	idx := 0
	if score >= 50 {
		idx = int(math.Min(score, 100)-50)/10 + 1
		if idx >= len(buckets) {
			idx = len(buckets) - 1
		}
	}
	buckets[idx].Count += w
}

// topCategory returns the category with the largest item count,
// alphabetically first on ties so results stay deterministic.
func topCategory(breakdown map[string]int) (string, int) {
	best, bestCount := "", 0
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if breakdown[k] > bestCount {
			best, bestCount = k, breakdown[k]
		}
	}
	return best, bestCount
}

// buildInsights produces the human-readable insight list in insertion order.
// Callers that want priority ordering re-sort on their side.
func buildInsights(res *model.ProgressResult) []model.Insight {
	var insights []model.Insight

	if res.IsAchieved {
		insights = append(insights, model.Insight{
			Type:     "achievement",
			Message:  fmt.Sprintf("Goal achieved! %s of your purchases meet the target.", FormatPercentage(res.CurrentPercentage)),
			Priority: model.PriorityHigh,
		})
	}

	if res.CurrentStreak >= 3 {
		insights = append(insights, model.Insight{
			Type:     "streak",
			Message:  fmt.Sprintf("You're on a %d-purchase streak of sustainable choices.", res.CurrentStreak),
			Priority: model.PriorityMedium,
		})
	}

	gap := res.TargetPercentage - res.CurrentPercentage
	if !res.IsAchieved && res.CurrentPercentage > 0 && gap <= 10 {
		insights = append(insights, model.Insight{
			Type:     "almost_there",
			Message:  fmt.Sprintf("Almost there: only %s to go.", FormatPercentage(gap)),
			Priority: model.PriorityHigh,
		})
	}

	if cat, count := topCategory(res.CategoryBreakdown); count > 0 {
		insights = append(insights, model.Insight{
			Type:     "top_category",
			Message:  fmt.Sprintf("Most of your purchases are in %s (%d items).", cat, count),
			Priority: model.PriorityLow,
		})
	}

	if res.Status == model.StatusNeedsImprovement || res.Status == model.StatusGettingStarted {
		insights = append(insights, model.Insight{
			Type:     "suggestion",
			Message:  "Try swapping a few regular purchases for higher-graded alternatives to close the gap.",
			Priority: model.PriorityMedium,
		})
	}

	return insights
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
