package progress

import (
	"math"
	"time"

	"greencart-sync-api/internal/model"
)

const (
	// projectionWindow is the recent sub-window compared against all time.
	projectionWindow = 30 * 24 * time.Hour

	// stableBand is the percentage-point band within which the trend counts
	// as stable rather than improving or declining.
	stableBand = 2.0

	// minRecentItems is the smallest recent sample a projection will divide by.
	minRecentItems = 5

	mediumConfidencePurchases = 10
	highConfidencePurchases   = 25
)

// project classifies the recent trend and, when improving, extrapolates the
// days remaining until the goal is reached. Purchases must be sorted
// chronologically. Thin or empty windows short-circuit to an
// insufficient-data projection instead of dividing by zero.
func project(goal *model.Goal, purchases []model.Purchase, opts Options, allTimePct float64) *model.Projection {
	if len(purchases) == 0 {
		return &model.Projection{
			Trend:            model.TrendStable,
			Confidence:       model.ConfidenceLow,
			InsufficientData: true,
		}
	}

	latest := purchases[len(purchases)-1].OrderedAt
	windowStart := latest.Add(-projectionWindow)

	var recentTotal, recentMet int
	var recentTotalValue, recentMetValue float64
	for _, p := range purchases {
		if p.OrderedAt.Before(windowStart) {
			continue
		}
		for _, item := range p.Items {
			w := 1
			if opts.WeightByQuantity && item.Quantity > 1 {
				w = item.Quantity
			}
			value := item.Price * float64(maxInt(item.Quantity, 1))

			recentTotal += w
			recentTotalValue += value
			if aligned(goal, item, opts.CountPartialProgress) {
				recentMet += w
				recentMetValue += value
			}
		}
	}

	if recentTotal < minRecentItems {
		return &model.Projection{
			Trend:            model.TrendStable,
			Confidence:       model.ConfidenceLow,
			InsufficientData: true,
		}
	}

	var recentPct float64
	if opts.WeightByPrice {
		if recentTotalValue == 0 {
			return &model.Projection{
				Trend:            model.TrendStable,
				Confidence:       model.ConfidenceLow,
				InsufficientData: true,
			}
		}
		recentPct = recentMetValue / recentTotalValue * 100
	} else {
		recentPct = float64(recentMet) / float64(recentTotal) * 100
	}

	delta := recentPct - allTimePct

	proj := &model.Projection{
		Trend:      model.TrendStable,
		Confidence: model.ConfidenceLow,
	}
	switch {
	case math.Abs(delta) < stableBand:
		proj.Trend = model.TrendStable
	case delta > 0:
		proj.Trend = model.TrendImproving
	default:
		proj.Trend = model.TrendDeclining
	}

	if len(purchases) >= highConfidencePurchases {
		proj.Confidence = model.ConfidenceHigh
	} else if len(purchases) >= mediumConfidencePurchases {
		proj.Confidence = model.ConfidenceMedium
	}

	// Extrapolate days-to-goal from the recent delta per 30-day window.
	if proj.Trend == model.TrendImproving && allTimePct < goal.Config.Percentage {
		gap := goal.Config.Percentage - allTimePct
		proj.DaysToGoal = int(math.Ceil(gap / delta * projectionWindow.Hours() / 24))
	}

	return proj
}
