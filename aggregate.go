package main

import "time"

// mealsOnDay returns the meals whose eaten_at falls on day in loc, in input
// order. The day is derived at read time, so a meal written in one zone can
// land on a different day when viewed from another.
func mealsOnDay(meals []Meal, day DayKey, loc *time.Location) []Meal {
	out := make([]Meal, 0)
	for _, m := range meals {
		if dayKeyOf(m.EatenAt, loc) == day {
			out = append(out, m)
		}
	}
	return out
}

// sumMeals reduces meals to their combined totals. Empty input sums to zero.
func sumMeals(meals []Meal) Macros {
	var t Macros
	for _, m := range meals {
		t = t.add(m.Totals())
	}
	return t
}

// summarizeDay filters meals to day and totals them.
func summarizeDay(meals []Meal, day DayKey, loc *time.Location) ([]Meal, Macros) {
	onDay := mealsOnDay(meals, day, loc)
	return onDay, sumMeals(onDay)
}

// weekStart returns the Monday of the ISO week containing day. Sunday
// belongs to the week that started six days earlier.
func weekStart(day DayKey) DayKey {
	weekday := int(day.Weekday()) // 0=Sun
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDays(-(weekday - 1))
}

// summarizeWeek buckets meals into the 7 days (Mon..Sun) of the week offset
// weeks before the current one. Negative offsets are clamped to 0; there is
// no upper bound. Exactly one bucket is marked IsToday when offset is 0.
func summarizeWeek(meals []Meal, offset int, now time.Time, loc *time.Location) weekSummary {
	if offset < 0 {
		offset = 0
	}
	today := dayKeyOf(now, loc)
	monday := weekStart(today).AddDays(-7 * offset)

	// Index meals by day once instead of filtering the collection 7 times.
	byDay := make(map[DayKey]Macros, 7)
	for _, m := range meals {
		k := dayKeyOf(m.EatenAt, loc)
		byDay[k] = byDay[k].add(m.Totals())
	}

	days := make([]weekBucket, 7)
	var stats weekStats
	var sumCalories, sumProtein float64
	for i := range days {
		d := monday.AddDays(i)
		b := weekBucket{Date: d, IsToday: d == today, Macros: byDay[d]}
		days[i] = b
		sumCalories += b.Calories
		sumProtein += b.Protein
		if b.Calories > stats.MaxCalories {
			stats.MaxCalories = b.Calories
		}
	}
	stats.AvgCalories = sumCalories / 7
	stats.AvgProtein = sumProtein / 7

	return weekSummary{
		Offset:    offset,
		WeekStart: monday,
		WeekEnd:   monday.AddDays(6),
		Days:      days,
		Stats:     stats,
	}
}
