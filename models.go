package main

import (
	"encoding/json"
	"time"
)

/* ─── Meals ──────────────────────────────────────────────────────────── */

// MealCategory is the meal slot a meal was eaten in.
type MealCategory string

const (
	CategoryBreakfast MealCategory = "breakfast"
	CategoryLunch     MealCategory = "lunch"
	CategoryDinner    MealCategory = "dinner"
	CategorySnack     MealCategory = "snack"
)

// validCategories is the set of allowed meal categories.
var validCategories = map[MealCategory]bool{
	CategoryBreakfast: true,
	CategoryLunch:     true,
	CategoryDinner:    true,
	CategorySnack:     true,
}

// validUnits is the set of allowed food-line portion units.
var validUnits = map[string]bool{
	"g":       true,
	"ml":      true,
	"piece":   true,
	"serving": true,
}

// Macros is a calorie + macronutrient tally. Grams for the macros.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

func (m Macros) add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		Protein:  m.Protein + o.Protein,
		Carbs:    m.Carbs + o.Carbs,
		Fat:      m.Fat + o.Fat,
	}
}

// FoodLine is one food within a meal with its own nutrition contribution.
type FoodLine struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Portion  float64 `json:"portion"`
	Unit     string  `json:"unit"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

func (f FoodLine) macros() Macros {
	return Macros{Calories: f.Calories, Protein: f.Protein, Carbs: f.Carbs, Fat: f.Fat}
}

// Meal is a logged meal. Totals are not stored: they are always the sum of
// the food lines, so they cannot drift out of sync.
type Meal struct {
	ID        string       `json:"id"`
	UserID    int          `json:"user_id"`
	Name      string       `json:"name"`
	EatenAt   time.Time    `json:"eaten_at"`
	Category  MealCategory `json:"category"`
	Cuisine   string       `json:"cuisine"`
	Notes     string       `json:"notes"`
	Foods     []FoodLine   `json:"foods"`
	CreatedAt time.Time    `json:"created_at"`
}

// Totals sums the meal's food lines.
func (m Meal) Totals() Macros {
	var t Macros
	for _, f := range m.Foods {
		t = t.add(f.macros())
	}
	return t
}

// MarshalJSON adds the derived totals to the wire shape.
func (m Meal) MarshalJSON() ([]byte, error) {
	type mealAlias Meal
	t := m.Totals()
	foods := m.Foods
	if foods == nil {
		foods = []FoodLine{}
	}
	alias := mealAlias(m)
	alias.Foods = foods
	return json.Marshal(struct {
		mealAlias
		TotalCalories float64 `json:"total_calories"`
		TotalProtein  float64 `json:"total_protein"`
		TotalCarbs    float64 `json:"total_carbs"`
		TotalFat      float64 `json:"total_fat"`
	}{alias, t.Calories, t.Protein, t.Carbs, t.Fat})
}

// dailySummary is the response shape for GET /api/meals/daily.
type dailySummary struct {
	Date         DayKey           `json:"date"`
	Timezone     string           `json:"timezone"`
	Totals       Macros           `json:"totals"`
	Goals        NutritionTargets `json:"goals"`
	CaloriesLeft float64          `json:"calories_left"`
	Meals        []Meal           `json:"meals"`
}

// weekBucket is one day in the weekly chart.
type weekBucket struct {
	Date    DayKey `json:"date"`
	IsToday bool   `json:"is_today"`
	Macros
}

// weekStats summarises a week of buckets. Averages are over all 7 days.
type weekStats struct {
	AvgCalories float64 `json:"avg_calories"`
	AvgProtein  float64 `json:"avg_protein"`
	MaxCalories float64 `json:"max_calories"`
}

// weekSummary is the response shape for GET /api/meals/week-summary.
type weekSummary struct {
	Offset    int          `json:"offset"`
	WeekStart DayKey       `json:"week_start"`
	WeekEnd   DayKey       `json:"week_end"`
	Days      []weekBucket `json:"days"`
	Stats     weekStats    `json:"stats"`
}

// foodLineRequest is one food line in a create/update meal body.
type foodLineRequest struct {
	Name     string  `json:"name"`
	Portion  float64 `json:"portion"`
	Unit     string  `json:"unit"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// createMealRequest is the request body for POST /api/meals. When Foods is
// empty the top-level nutrition becomes a single food line named after the meal.
type createMealRequest struct {
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Cuisine  string            `json:"cuisine"`
	Notes    string            `json:"notes"`
	EatenAt  string            `json:"eaten_at"` // RFC 3339; defaults to now
	Foods    []foodLineRequest `json:"foods"`
	Portion  float64           `json:"portion"`
	Unit     string            `json:"unit"`
	Calories float64           `json:"calories"`
	Protein  float64           `json:"protein"`
	Carbs    float64           `json:"carbs"`
	Fat      float64           `json:"fat"`
}

// updateMealRequest is the request body for PUT /api/meals/:id. Only non-nil
// fields are applied.
type updateMealRequest struct {
	Name     *string            `json:"name"`
	Category *string            `json:"category"`
	Cuisine  *string            `json:"cuisine"`
	Notes    *string            `json:"notes"`
	EatenAt  *string            `json:"eaten_at"`
	Foods    *[]foodLineRequest `json:"foods"`
}

/* ─── Profile ────────────────────────────────────────────────────────── */

// UserProfile is one row per user. The four goal fields are owned by the
// profile and are recomputed in full on every save.
type UserProfile struct {
	UserID            int               `json:"user_id"            db:"user_id"`
	Name              string            `json:"name"               db:"name"`
	Age               int               `json:"age"                db:"age"`
	Gender            Gender            `json:"gender"             db:"gender"`
	WeightKG          float64           `json:"weight_kg"          db:"weight_kg"`
	HeightCM          float64           `json:"height_cm"          db:"height_cm"`
	ActivityLevel     ActivityLevel     `json:"activity_level"     db:"activity_level"`
	Goal              Goal              `json:"goal"               db:"goal"`
	GoalIntensity     GoalIntensity     `json:"goal_intensity"     db:"goal_intensity"`
	DietaryPreference DietaryPreference `json:"dietary_preference" db:"dietary_preference"`
	CalorieGoal       int               `json:"calorie_goal"       db:"calorie_goal"`
	ProteinGoal       int               `json:"protein_goal"       db:"protein_goal"`
	CarbsGoal         int               `json:"carbs_goal"         db:"carbs_goal"`
	FatGoal           int               `json:"fat_goal"           db:"fat_goal"`
	UpdatedAt         *time.Time        `json:"updated_at"         db:"updated_at"`

	// Computed fields, populated from the body metrics; not stored.
	ComputedBMR  *float64 `json:"computed_bmr,omitempty"  db:"-"`
	ComputedTDEE *float64 `json:"computed_tdee,omitempty" db:"-"`
}

func (p UserProfile) metrics() bodyMetrics {
	return bodyMetrics{
		WeightKG:          p.WeightKG,
		HeightCM:          p.HeightCM,
		Age:               p.Age,
		Gender:            p.Gender,
		ActivityLevel:     p.ActivityLevel,
		Goal:              p.Goal,
		GoalIntensity:     p.GoalIntensity,
		DietaryPreference: p.DietaryPreference,
	}
}

func (p UserProfile) targets() NutritionTargets {
	return NutritionTargets{Calories: p.CalorieGoal, Protein: p.ProteinGoal, Carbs: p.CarbsGoal, Fat: p.FatGoal}
}

// patchProfileRequest is the request body for PUT and PATCH /api/profile.
// All fields are pointers so PATCH can tell "not provided" from zero.
type patchProfileRequest struct {
	Name              *string  `json:"name"`
	Age               *int     `json:"age"`
	Gender            *string  `json:"gender"`
	WeightKG          *float64 `json:"weight_kg"`
	HeightCM          *float64 `json:"height_cm"`
	ActivityLevel     *string  `json:"activity_level"`
	Goal              *string  `json:"goal"`
	GoalIntensity     *string  `json:"goal_intensity"`
	DietaryPreference *string  `json:"dietary_preference"`
}

/* ─── Water ──────────────────────────────────────────────────────────── */

// WaterImpact is the qualitative hydration tier of a supplement.
type WaterImpact string

const (
	ImpactHigh   WaterImpact = "high"
	ImpactMedium WaterImpact = "medium"
	ImpactLow    WaterImpact = "low"
)

// Supplement adjusts the daily water goal by WaterML while selected.
type Supplement struct {
	Name         string      `json:"name"`
	WaterImpact  WaterImpact `json:"water_impact"`
	WaterML      int         `json:"water_ml"`
	Selected     bool        `json:"selected"`
	AutoDetected bool        `json:"auto_detected,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

// waterIntakeRecord maps to water_intake: one row per user per day.
type waterIntakeRecord struct {
	UserID    int        `json:"user_id"    db:"user_id"`
	Date      DayKey     `json:"date"       db:"date"`
	ML        int        `json:"ml"         db:"ml"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// waterState is the response shape for the /api/water endpoints.
type waterState struct {
	Date            DayKey       `json:"date"`
	BaselineGoalL   float64      `json:"baseline_goal_l"`
	AdjustedGoalL   float64      `json:"adjusted_goal_l"`
	CurrentIntakeML int          `json:"current_intake_ml"`
	Supplements     []Supplement `json:"supplements"`
}

/* ─── Notifications ──────────────────────────────────────────────────── */

// ReminderType is a meal category or "water".
type ReminderType string

const ReminderWater ReminderType = "water"

var validReminderTypes = map[ReminderType]bool{
	ReminderType(CategoryBreakfast): true,
	ReminderType(CategoryLunch):     true,
	ReminderType(CategoryDinner):    true,
	ReminderType(CategorySnack):     true,
	ReminderWater:                   true,
}

// NotificationPreference is one reminder setting. There is at most one per
// (user, type); saving replaces it.
type NotificationPreference struct {
	UserID   int          `json:"user_id"  db:"user_id"`
	Type     ReminderType `json:"type"     db:"type"`
	Time     string       `json:"time"     db:"time"` // HH:mm
	Enabled  bool         `json:"enabled"  db:"enabled"`
	Days     []int32      `json:"days"     db:"days"` // 0=Sunday .. 6=Saturday
	Timezone string       `json:"timezone" db:"timezone"`
}
