package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumMeals_Empty(t *testing.T) {
	assert.Equal(t, Macros{}, sumMeals(nil))
	assert.Equal(t, Macros{}, sumMeals([]Meal{}))
}

func TestSummarizeDay_FiltersAndTotals(t *testing.T) {
	loc := mustLoad(t, "Europe/Paris")
	day := DayKey{Year: 2024, Month: time.May, Day: 10}
	meals := []Meal{
		meal("breakfast", 1, time.Date(2024, 5, 10, 8, 0, 0, 0, loc), 400, 20, 50, 10),
		meal("late", 1, time.Date(2024, 5, 10, 23, 58, 0, 0, loc), 300, 10, 30, 12),
		meal("next", 1, time.Date(2024, 5, 11, 0, 2, 0, 0, loc), 900, 40, 90, 30),
		meal("prev", 1, time.Date(2024, 5, 9, 12, 0, 0, 0, loc), 500, 25, 60, 15),
	}

	onDay, totals := summarizeDay(meals, day, loc)
	require.Len(t, onDay, 2)
	assert.Equal(t, "breakfast", onDay[0].ID)
	assert.Equal(t, "late", onDay[1].ID)
	assert.Equal(t, Macros{Calories: 700, Protein: 30, Carbs: 80, Fat: 22}, totals)

	// Recomputing over the same input is idempotent.
	_, again := summarizeDay(meals, day, loc)
	assert.Equal(t, totals, again)
}

func TestMealsOnDay_NoMatchIsEmptyNotNil(t *testing.T) {
	got := mealsOnDay(nil, DayKey{Year: 2024, Month: 1, Day: 1}, time.UTC)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestWeekStart_MondayThroughSunday(t *testing.T) {
	monday := DayKey{Year: 2024, Month: time.March, Day: 4}
	for i := 0; i < 7; i++ {
		d := monday.AddDays(i)
		assert.Equal(t, monday, weekStart(d), "day %s", d)
	}
	// The following Monday starts a new week.
	assert.Equal(t, monday.AddDays(7), weekStart(monday.AddDays(7)))
}

func TestSummarizeWeek_Buckets(t *testing.T) {
	loc := time.UTC
	// Wednesday 2024-03-06.
	now := time.Date(2024, 3, 6, 15, 0, 0, 0, loc)
	meals := []Meal{
		meal("mon", 1, time.Date(2024, 3, 4, 12, 0, 0, 0, loc), 700, 35, 0, 0),
		meal("wed-a", 1, time.Date(2024, 3, 6, 9, 0, 0, 0, loc), 500, 20, 0, 0),
		meal("wed-b", 1, time.Date(2024, 3, 6, 19, 0, 0, 0, loc), 900, 50, 0, 0),
		meal("sun", 1, time.Date(2024, 3, 10, 20, 0, 0, 0, loc), 200, 0, 0, 0),
		meal("last-week", 1, time.Date(2024, 3, 3, 12, 0, 0, 0, loc), 1000, 70, 0, 0),
	}

	s := summarizeWeek(meals, 0, now, loc)
	require.Len(t, s.Days, 7)
	assert.Equal(t, "2024-03-04", s.WeekStart.String())
	assert.Equal(t, "2024-03-10", s.WeekEnd.String())

	wantDates := []string{"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07", "2024-03-08", "2024-03-09", "2024-03-10"}
	for i, b := range s.Days {
		assert.Equal(t, wantDates[i], b.Date.String())
	}

	assert.Equal(t, 700.0, s.Days[0].Calories)
	assert.Equal(t, 1400.0, s.Days[2].Calories)
	assert.Equal(t, 70.0, s.Days[2].Protein)
	assert.Equal(t, 200.0, s.Days[6].Calories)

	today := 0
	for i, b := range s.Days {
		if b.IsToday {
			today++
			assert.Equal(t, 2, i)
		}
	}
	assert.Equal(t, 1, today)

	assert.InDelta(t, 2300.0/7, s.Stats.AvgCalories, 1e-9)
	assert.InDelta(t, 105.0/7, s.Stats.AvgProtein, 1e-9)
	assert.Equal(t, 1400.0, s.Stats.MaxCalories)
}

func TestSummarizeWeek_SundayBelongsToPreviousMonday(t *testing.T) {
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC) // Sunday
	s := summarizeWeek(nil, 0, now, time.UTC)
	assert.Equal(t, "2024-03-04", s.WeekStart.String())
	assert.True(t, s.Days[6].IsToday)
}

func TestSummarizeWeek_Offsets(t *testing.T) {
	now := time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)
	meals := []Meal{meal("last-week", 1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 800, 40, 0, 0)}

	prev := summarizeWeek(meals, 1, now, time.UTC)
	assert.Equal(t, 1, prev.Offset)
	assert.Equal(t, "2024-02-26", prev.WeekStart.String())
	assert.Equal(t, 800.0, prev.Days[4].Calories)
	for _, b := range prev.Days {
		assert.False(t, b.IsToday, "no bucket is today in a past week")
	}

	// Negative offsets clamp to the current week.
	assert.Equal(t, summarizeWeek(meals, 0, now, time.UTC), summarizeWeek(meals, -1, now, time.UTC))

	far := summarizeWeek(meals, 52, now, time.UTC)
	assert.Equal(t, "2023-03-06", far.WeekStart.String())
	assert.Zero(t, far.Stats.MaxCalories)
}

// TestSummarizeWeek_ViewerZone verifies bucketing uses the viewer's zone.
func TestSummarizeWeek_ViewerZone(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	now := time.Date(2024, 3, 6, 20, 0, 0, 0, time.UTC)
	// 2024-03-07 02:00 UTC is still Wednesday evening in Los Angeles.
	meals := []Meal{meal("dinner", 1, time.Date(2024, 3, 7, 2, 0, 0, 0, time.UTC), 600, 30, 0, 0)}

	utc := summarizeWeek(meals, 0, now, time.UTC)
	assert.Equal(t, 600.0, utc.Days[3].Calories)

	local := summarizeWeek(meals, 0, now, la)
	assert.Equal(t, 600.0, local.Days[2].Calories)
	assert.Zero(t, local.Days[3].Calories)
}
