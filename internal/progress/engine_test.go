package progress

import (
	"math"
	"reflect"
	"testing"
	"time"

	"greencart-sync-api/internal/model"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// gradeGoal builds a grade-based goal targeting grades A and B at 80%.
func gradeGoal(t *testing.T) *model.Goal {
	t.Helper()
	return &model.Goal{
		ID:    "g1",
		Type:  model.GoalGradeBased,
		Title: "Mostly A/B purchases",
		Config: model.GoalConfig{
			TargetGrades: []model.Grade{model.GradeA, model.GradeB},
			Percentage:   80,
		},
	}
}

// purchase builds a single-item purchase at an offset from the test base time.
func purchase(t *testing.T, dayOffset int, grade model.Grade, score float64, category string) model.Purchase {
	t.Helper()
	return model.Purchase{
		OrderID:   "o",
		OrderedAt: testBase.AddDate(0, 0, dayOffset),
		Items: []model.PurchaseItem{
			{ProductID: "p", Grade: grade, Score: score, Category: category, Price: 10, Quantity: 1},
		},
	}
}

func TestCalculateEmptyHistory(t *testing.T) {
	res := Calculate(gradeGoal(t), nil, Options{})

	if res.TotalItems != 0 {
		t.Errorf("expected 0 total items, got %d", res.TotalItems)
	}
	if res.CurrentPercentage != 0 {
		t.Errorf("expected percentage 0, got %v", res.CurrentPercentage)
	}
	if res.Status != model.StatusNotStarted {
		t.Errorf("expected status not_started, got %s", res.Status)
	}
	if res.IsAchieved {
		t.Error("empty history must not be achieved")
	}
}

func TestCalculateGradeScenario(t *testing.T) {
	history := []model.Purchase{
		purchase(t, 0, model.GradeA, 90, "food"),
		purchase(t, 1, model.GradeB, 80, "food"),
		purchase(t, 2, model.GradeD, 40, "household"),
	}

	res := Calculate(gradeGoal(t), history, Options{})

	if res.TotalItems != 3 || res.GoalMetItems != 2 {
		t.Fatalf("expected 2/3 items met, got %d/%d", res.GoalMetItems, res.TotalItems)
	}
	if math.Abs(res.CurrentPercentage-66.7) > 0.1 {
		t.Errorf("expected percentage ~66.7, got %v", res.CurrentPercentage)
	}
	if res.IsAchieved {
		t.Error("66.7%% must not achieve an 80%% target")
	}
	if res.Status != model.StatusOnTrack {
		t.Errorf("expected status on_track, got %s", res.Status)
	}
}

func TestCalculateAchieved(t *testing.T) {
	history := []model.Purchase{
		purchase(t, 0, model.GradeA, 95, "food"),
		purchase(t, 1, model.GradeA, 92, "food"),
		purchase(t, 2, model.GradeA, 97, "food"),
	}

	res := Calculate(gradeGoal(t), history, Options{})

	if res.CurrentPercentage != 100 {
		t.Errorf("expected percentage 100, got %v", res.CurrentPercentage)
	}
	if !res.IsAchieved {
		t.Error("expected goal achieved")
	}
	if res.Status != model.StatusAchieved {
		t.Errorf("expected status achieved, got %s", res.Status)
	}

	found := false
	for _, in := range res.Insights {
		if in.Type == "achievement" {
			found = true
		}
	}
	if !found {
		t.Error("expected an achievement insight")
	}
}

func TestCalculateBounds(t *testing.T) {
	histories := [][]model.Purchase{
		nil,
		{purchase(t, 0, model.GradeF, 5, "misc")},
		{
			purchase(t, 0, model.GradeA, 90, "food"),
			purchase(t, 1, model.GradeF, 10, "misc"),
			purchase(t, 2, model.GradeB, 85, "food"),
		},
	}

	for i, history := range histories {
		res := Calculate(gradeGoal(t), history, Options{})
		if res.GoalMetItems > res.TotalItems {
			t.Errorf("history %d: met %d exceeds total %d", i, res.GoalMetItems, res.TotalItems)
		}
		if res.CurrentPercentage < 0 || res.CurrentPercentage > 100 {
			t.Errorf("history %d: percentage %v out of [0, 100]", i, res.CurrentPercentage)
		}
	}
}

func TestCalculateIdempotent(t *testing.T) {
	history := []model.Purchase{
		purchase(t, 0, model.GradeA, 90, "food"),
		purchase(t, 1, model.GradeC, 55, "household"),
		purchase(t, 2, model.GradeB, 82, "food"),
	}
	opts := Options{IncludeProjection: true}

	first := Calculate(gradeGoal(t), history, opts)
	second := Calculate(gradeGoal(t), history, opts)

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different results")
	}
}

func TestStreaks(t *testing.T) {
	history := []model.Purchase{
		purchase(t, 0, model.GradeA, 90, "food"),
		purchase(t, 1, model.GradeA, 91, "food"),
		purchase(t, 2, model.GradeA, 93, "food"),
		purchase(t, 3, model.GradeF, 10, "misc"),
		purchase(t, 4, model.GradeB, 85, "food"),
	}

	res := Calculate(gradeGoal(t), history, Options{})

	if res.CurrentStreak != 1 {
		t.Errorf("expected current streak 1, got %d", res.CurrentStreak)
	}
	if res.LongestStreak != 3 {
		t.Errorf("expected longest streak 3, got %d", res.LongestStreak)
	}
	if res.LongestStreak < res.CurrentStreak {
		t.Error("longest streak must never be below current streak")
	}
	want := []bool{true, true, true, false, true}
	if !reflect.DeepEqual(res.RecentOutcomes, want) {
		t.Errorf("recent outcomes = %v, want %v", res.RecentOutcomes, want)
	}
}

func TestStreakInvariantLongHistory(t *testing.T) {
	grades := []model.Grade{
		model.GradeA, model.GradeF, model.GradeA, model.GradeA, model.GradeB,
		model.GradeD, model.GradeF, model.GradeA, model.GradeB, model.GradeA,
		model.GradeA, model.GradeC, model.GradeB, model.GradeF, model.GradeA,
	}
	var history []model.Purchase
	for i, g := range grades {
		history = append(history, purchase(t, i, g, 50, "food"))
	}

	res := Calculate(gradeGoal(t), history, Options{})

	if res.LongestStreak < res.CurrentStreak {
		t.Errorf("longest streak %d below current %d", res.LongestStreak, res.CurrentStreak)
	}
	if len(res.RecentOutcomes) != recentOutcomeWindow {
		t.Errorf("expected %d recent outcomes, got %d", recentOutcomeWindow, len(res.RecentOutcomes))
	}
}

func TestStreakInsight(t *testing.T) {
	history := []model.Purchase{
		purchase(t, 0, model.GradeA, 90, "food"),
		purchase(t, 1, model.GradeA, 91, "food"),
		purchase(t, 2, model.GradeB, 85, "food"),
		purchase(t, 3, model.GradeA, 95, "food"),
	}

	res := Calculate(gradeGoal(t), history, Options{})

	found := false
	for _, in := range res.Insights {
		if in.Type == "streak" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a streak insight for streak %d", res.CurrentStreak)
	}
}

func TestScoreBasedAlignment(t *testing.T) {
	goal := &model.Goal{
		ID:   "g2",
		Type: model.GoalScoreBased,
		Config: model.GoalConfig{
			MinScore:   70,
			Percentage: 50,
		},
	}
	history := []model.Purchase{
		purchase(t, 0, model.GradeC, 70, "food"),
		purchase(t, 1, model.GradeC, 69.9, "food"),
	}

	res := Calculate(goal, history, Options{})

	if res.GoalMetItems != 1 {
		t.Errorf("expected exactly the >=70 item to align, got %d", res.GoalMetItems)
	}
	if !res.IsAchieved {
		t.Error("50%% met should achieve a 50%% target")
	}
}

func TestCategoryAlignmentWithGradeNarrowing(t *testing.T) {
	goal := &model.Goal{
		ID:   "g3",
		Type: model.GoalCategoryBased,
		Config: model.GoalConfig{
			TargetCategories: []string{"food"},
			TargetGrades:     []model.Grade{model.GradeA},
			Percentage:       60,
		},
	}
	history := []model.Purchase{
		purchase(t, 0, model.GradeA, 90, "food"),
		purchase(t, 1, model.GradeC, 50, "food"),
		purchase(t, 2, model.GradeA, 95, "household"),
	}

	strict := Calculate(goal, history, Options{})
	if strict.GoalMetItems != 1 {
		t.Errorf("strict: expected 1 aligned item, got %d", strict.GoalMetItems)
	}

	partial := Calculate(goal, history, Options{CountPartialProgress: true})
	if partial.GoalMetItems != 2 {
		t.Errorf("partial: expected 2 aligned items, got %d", partial.GoalMetItems)
	}
}

func TestWeighting(t *testing.T) {
	history := []model.Purchase{
		{
			OrderedAt: testBase,
			Items: []model.PurchaseItem{
				{Grade: model.GradeA, Score: 90, Category: "food", Price: 1, Quantity: 4},
				{Grade: model.GradeF, Score: 10, Category: "misc", Price: 48, Quantity: 1},
			},
		},
	}

	byQuantity := Calculate(gradeGoal(t), history, Options{WeightByQuantity: true})
	if byQuantity.TotalItems != 5 || byQuantity.GoalMetItems != 4 {
		t.Errorf("quantity weighting: got %d/%d, want 4/5", byQuantity.GoalMetItems, byQuantity.TotalItems)
	}

	byPrice := Calculate(gradeGoal(t), history, Options{WeightByPrice: true})
	// 4 of 52 currency units aligned.
	if math.Abs(byPrice.CurrentPercentage-7.7) > 0.1 {
		t.Errorf("price weighting: percentage = %v, want ~7.7", byPrice.CurrentPercentage)
	}
}

func TestTimeframeFilter(t *testing.T) {
	history := []model.Purchase{
		purchase(t, 0, model.GradeF, 10, "misc"),
		purchase(t, 10, model.GradeA, 90, "food"),
	}
	from := testBase.AddDate(0, 0, 5)

	res := Calculate(gradeGoal(t), history, Options{Timeframe: &TimeRange{From: from}})

	if res.TotalItems != 1 || res.GoalMetItems != 1 {
		t.Errorf("timeframe filter: got %d/%d, want 1/1", res.GoalMetItems, res.TotalItems)
	}
}

func TestScoreBuckets(t *testing.T) {
	history := []model.Purchase{
		purchase(t, 0, model.GradeC, 30, "a"),
		purchase(t, 1, model.GradeC, 55, "a"),
		purchase(t, 2, model.GradeB, 78, "a"),
		purchase(t, 3, model.GradeA, 100, "a"),
	}

	res := Calculate(gradeGoal(t), history, Options{})

	counts := map[string]int{}
	for _, b := range res.ScoreBreakdown {
		counts[b.Label] = b.Count
	}
	for label, want := range map[string]int{"0-49": 1, "50-59": 1, "70-79": 1, "90-100": 1} {
		if counts[label] != want {
			t.Errorf("bucket %s = %d, want %d", label, counts[label], want)
		}
	}
}

func TestProjectionInsufficientData(t *testing.T) {
	history := []model.Purchase{
		purchase(t, 0, model.GradeA, 90, "food"),
	}

	res := Calculate(gradeGoal(t), history, Options{IncludeProjection: true})

	if res.Projection == nil {
		t.Fatal("expected a projection")
	}
	if !res.Projection.InsufficientData {
		t.Error("one purchase must yield an insufficient-data projection")
	}
	if res.Projection.Confidence != model.ConfidenceLow {
		t.Errorf("expected low confidence, got %s", res.Projection.Confidence)
	}
}

func TestProjectionImproving(t *testing.T) {
	// Older history misses the goal, the recent 30-day window hits it.
	var history []model.Purchase
	for i := 0; i < 10; i++ {
		history = append(history, purchase(t, i, model.GradeF, 10, "misc"))
	}
	for i := 0; i < 10; i++ {
		history = append(history, purchase(t, 60+i, model.GradeA, 90, "food"))
	}

	res := Calculate(gradeGoal(t), history, Options{IncludeProjection: true})

	if res.Projection == nil {
		t.Fatal("expected a projection")
	}
	if res.Projection.Trend != model.TrendImproving {
		t.Errorf("expected improving trend, got %s", res.Projection.Trend)
	}
	if res.Projection.DaysToGoal <= 0 {
		t.Errorf("expected a positive days-to-goal, got %d", res.Projection.DaysToGoal)
	}
	if res.Projection.Confidence != model.ConfidenceMedium {
		t.Errorf("expected medium confidence for 20 purchases, got %s", res.Projection.Confidence)
	}
}

func TestBatchCalculateIndependent(t *testing.T) {
	goals := []model.Goal{*gradeGoal(t), {
		ID:     "g2",
		Type:   model.GoalScoreBased,
		Config: model.GoalConfig{MinScore: 80, Percentage: 50},
	}}
	history := []model.Purchase{
		purchase(t, 0, model.GradeA, 90, "food"),
		purchase(t, 1, model.GradeD, 40, "misc"),
	}

	results := BatchCalculate(goals, history, Options{})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].GoalID != "g1" || results[1].GoalID != "g2" {
		t.Error("result order must match input order")
	}
	single := Calculate(&goals[1], history, Options{})
	if !reflect.DeepEqual(results[1], single) {
		t.Error("batch result differs from standalone calculation")
	}
}

func TestDifficulty(t *testing.T) {
	tests := []struct {
		name string
		goal model.Goal
		want int
	}{
		{
			name: "lenient grade goal",
			goal: model.Goal{Type: model.GoalGradeBased, Config: model.GoalConfig{
				TargetGrades: []model.Grade{model.GradeA, model.GradeB, model.GradeC}, Percentage: 50}},
			want: 1,
		},
		{
			name: "grade A only",
			goal: model.Goal{Type: model.GoalGradeBased, Config: model.GoalConfig{
				TargetGrades: []model.Grade{model.GradeA}, Percentage: 50}},
			want: 2,
		},
		{
			name: "grade A only, high target",
			goal: model.Goal{Type: model.GoalGradeBased, Config: model.GoalConfig{
				TargetGrades: []model.Grade{model.GradeA}, Percentage: 95}},
			want: 3,
		},
		{
			name: "strict score goal",
			goal: model.Goal{Type: model.GoalScoreBased, Config: model.GoalConfig{
				MinScore: 85, Percentage: 90}},
			want: 3,
		},
		{
			name: "single category",
			goal: model.Goal{Type: model.GoalCategoryBased, Config: model.GoalConfig{
				TargetCategories: []string{"food"}, Percentage: 50}},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Difficulty(&tt.goal); got != tt.want {
				t.Errorf("Difficulty() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProgressColor(t *testing.T) {
	if c := ProgressColor(100, 80); c != "#22c55e" {
		t.Errorf("achieved ratio: got %s", c)
	}
	if c := ProgressColor(10, 80); c != "#ef4444" {
		t.Errorf("low ratio: got %s", c)
	}
	if c := ProgressColor(50, 0); c != "#9ca3af" {
		t.Errorf("zero target: got %s", c)
	}
}

func TestFormatPercentage(t *testing.T) {
	if s := FormatPercentage(66.666); s != "66.7%" {
		t.Errorf("FormatPercentage(66.666) = %s", s)
	}
	if s := FormatPercentage(0); s != "0.0%" {
		t.Errorf("FormatPercentage(0) = %s", s)
	}
}
