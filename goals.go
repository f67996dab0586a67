package main

import "math"

type (
	Gender            string
	ActivityLevel     string
	Goal              string
	GoalIntensity     string
	DietaryPreference string
)

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"

	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"

	GoalLose     Goal = "lose"
	GoalMaintain Goal = "maintain"
	GoalGain     Goal = "gain"

	IntensitySlow       GoalIntensity = "slow"
	IntensityModerate   GoalIntensity = "moderate"
	IntensityAggressive GoalIntensity = "aggressive"

	DietStandard   DietaryPreference = "standard"
	DietVegetarian DietaryPreference = "vegetarian"
	DietVegan      DietaryPreference = "vegan"
	DietKeto       DietaryPreference = "keto"
	DietPaleo      DietaryPreference = "paleo"
)

// activityMultipliers maps activity level to its TDEE multiplier.
// This is the single source of truth for valid activity levels; profile
// validation checks membership here.
var activityMultipliers = map[ActivityLevel]float64{
	ActivitySedentary:  1.2,
	ActivityLight:      1.375,
	ActivityModerate:   1.55,
	ActivityActive:     1.725,
	ActivityVeryActive: 1.9,
}

// Calorie adjustment fractions per goal intensity. A missing intensity is
// treated as slow.
var (
	deficitByIntensity = map[GoalIntensity]float64{
		IntensitySlow:       0.15,
		IntensityModerate:   0.20,
		IntensityAggressive: 0.25,
	}
	surplusByIntensity = map[GoalIntensity]float64{
		IntensitySlow:       0.10,
		IntensityModerate:   0.15,
		IntensityAggressive: 0.20,
	}
)

var (
	validGenders = map[Gender]bool{GenderMale: true, GenderFemale: true, GenderOther: true}
	validGoals   = map[Goal]bool{GoalLose: true, GoalMaintain: true, GoalGain: true}
	validDiets   = map[DietaryPreference]bool{
		DietStandard: true, DietVegetarian: true, DietVegan: true, DietKeto: true, DietPaleo: true,
	}
)

const (
	ketoCarbsG         = 30
	ketoFatShare       = 0.75
	standardFatShare   = 0.25
	proteinPerKG       = 2.0
	proteinPerKGHigh   = 2.2
	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
)

// bodyMetrics is the subset of a profile the goal calculator reads.
type bodyMetrics struct {
	WeightKG          float64
	HeightCM          float64
	Age               int
	Gender            Gender
	ActivityLevel     ActivityLevel
	Goal              Goal
	GoalIntensity     GoalIntensity
	DietaryPreference DietaryPreference
}

// NutritionTargets are the four daily goals derived from a profile.
type NutritionTargets struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
}

// defaultTargets are shown to users who have not finished onboarding.
var defaultTargets = NutritionTargets{Calories: 2400, Protein: 150, Carbs: 300, Fat: 70}

// basalRate is the Mifflin-St Jeor BMR: +5 for men, -161 for everyone else.
func basalRate(m bodyMetrics) float64 {
	bmr := 10*m.WeightKG + 6.25*m.HeightCM - 5*float64(m.Age)
	if m.Gender == GenderMale {
		return bmr + 5
	}
	return bmr - 161
}

// activityMultiplier falls back to sedentary for unknown levels. Handlers
// reject unknown levels before they reach here.
func activityMultiplier(level ActivityLevel) float64 {
	if mult, ok := activityMultipliers[level]; ok {
		return mult
	}
	return activityMultipliers[ActivitySedentary]
}

// dailyExpenditure returns BMR and TDEE unrounded.
func dailyExpenditure(m bodyMetrics) (bmr, tdee float64) {
	bmr = basalRate(m)
	return bmr, bmr * activityMultiplier(m.ActivityLevel)
}

func calorieGoalFor(tdee float64, goal Goal, intensity GoalIntensity) float64 {
	switch goal {
	case GoalLose:
		frac, ok := deficitByIntensity[intensity]
		if !ok {
			frac = deficitByIntensity[IntensitySlow]
		}
		return tdee * (1 - frac)
	case GoalGain:
		frac, ok := surplusByIntensity[intensity]
		if !ok {
			frac = surplusByIntensity[IntensitySlow]
		}
		return tdee * (1 + frac)
	default:
		return tdee
	}
}

// calculateNutritionGoals derives the four daily targets from body metrics.
// Inputs are not validated. Carbs are not clamped: a very low calorie goal
// with a high protein target yields negative carbs, which callers surface
// rather than hide.
func calculateNutritionGoals(m bodyMetrics) NutritionTargets {
	_, tdee := dailyExpenditure(m)
	calories := calorieGoalFor(tdee, m.Goal, m.GoalIntensity)

	var protein, fat, carbs float64
	if m.DietaryPreference == DietKeto {
		protein = m.WeightKG * proteinPerKGHigh
		fat = calories * ketoFatShare / kcalPerGramFat
		carbs = ketoCarbsG
	} else {
		perKG := proteinPerKG
		if m.Goal == GoalGain {
			perKG = proteinPerKGHigh
		}
		protein = m.WeightKG * perKG
		fat = calories * standardFatShare / kcalPerGramFat
		carbs = (calories - (protein*kcalPerGramProtein + fat*kcalPerGramFat)) / kcalPerGramCarbs
	}

	return NutritionTargets{
		Calories: roundHalfUp(calories),
		Protein:  roundHalfUp(protein),
		Carbs:    roundHalfUp(carbs),
		Fat:      roundHalfUp(fat),
	}
}

// roundHalfUp rounds .5 toward +Inf. math.Round rounds away from zero,
// which differs for negative carbs.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
