package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Sanity bounds for body metrics. The goal formula itself does not validate.
const (
	minAgeYears = 13
	maxAgeYears = 120
	minWeightKG = 20
	maxWeightKG = 400
	minHeightCM = 50
	maxHeightCM = 260
)

type profileRepository interface {
	GetProfile(ctx context.Context, userID int) (UserProfile, error)
	UpsertProfile(ctx context.Context, p UserProfile) (UserProfile, error)
}

// ProfileService owns the profile and the four goals derived from it.
type ProfileService struct {
	repo profileRepository
	log  *zap.Logger
}

func NewProfileService(repo profileRepository, log *zap.Logger) *ProfileService {
	return &ProfileService{repo: repo, log: log.With(zap.String("component", "profile"))}
}

// Get returns the stored profile with BMR and TDEE filled in.
func (s *ProfileService) Get(ctx context.Context, userID int) (UserProfile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}
	populateComputed(&p)
	return p, nil
}

// Targets returns the user's stored goals, or defaultTargets before onboarding.
func (s *ProfileService) Targets(ctx context.Context, userID int) (NutritionTargets, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, errNotFound) {
		return defaultTargets, nil
	}
	if err != nil {
		return NutritionTargets{}, err
	}
	return p.targets(), nil
}

// Save applies req and recomputes all four goals before persisting. With
// partial=false the request replaces the profile; with partial=true only
// the provided fields change and the rest come from the stored profile.
func (s *ProfileService) Save(ctx context.Context, userID int, req patchProfileRequest, partial bool) (UserProfile, error) {
	p := UserProfile{UserID: userID}
	if partial {
		stored, err := s.repo.GetProfile(ctx, userID)
		switch {
		case err == nil:
			p = stored
		case !errors.Is(err, errNotFound):
			return UserProfile{}, err
		}
	}

	if err := applyProfilePatch(&p, req); err != nil {
		return UserProfile{}, err
	}
	applyProfileDefaults(&p)
	if err := validateProfile(p); err != nil {
		return UserProfile{}, err
	}

	t := calculateNutritionGoals(p.metrics())
	p.CalorieGoal, p.ProteinGoal, p.CarbsGoal, p.FatGoal = t.Calories, t.Protein, t.Carbs, t.Fat
	if t.Carbs < 0 {
		s.log.Warn("negative carbs goal", zap.Int("user_id", userID), zap.Int("carbs", t.Carbs))
	}

	saved, err := s.repo.UpsertProfile(ctx, p)
	if err != nil {
		s.log.Error("upsert profile", zap.Int("user_id", userID), zap.Error(err))
		return UserProfile{}, err
	}
	populateComputed(&saved)
	return saved, nil
}

func applyProfilePatch(p *UserProfile, req patchProfileRequest) error {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Age != nil {
		p.Age = *req.Age
	}
	if req.WeightKG != nil {
		p.WeightKG = *req.WeightKG
	}
	if req.HeightCM != nil {
		p.HeightCM = *req.HeightCM
	}
	if req.Gender != nil {
		g := Gender(strings.ToLower(*req.Gender))
		if !validGenders[g] {
			return fmt.Errorf("%w: gender must be one of: male, female, other", errInvalid)
		}
		p.Gender = g
	}
	// activityMultipliers is the source of truth for valid levels.
	if req.ActivityLevel != nil {
		a := ActivityLevel(strings.ToLower(*req.ActivityLevel))
		if _, ok := activityMultipliers[a]; !ok {
			return fmt.Errorf("%w: activity_level must be one of: sedentary, light, moderate, active, very_active", errInvalid)
		}
		p.ActivityLevel = a
	}
	if req.Goal != nil {
		g := Goal(strings.ToLower(*req.Goal))
		if !validGoals[g] {
			return fmt.Errorf("%w: goal must be one of: lose, maintain, gain", errInvalid)
		}
		p.Goal = g
	}
	if req.GoalIntensity != nil {
		i := GoalIntensity(strings.ToLower(*req.GoalIntensity))
		if _, ok := deficitByIntensity[i]; !ok {
			return fmt.Errorf("%w: goal_intensity must be one of: slow, moderate, aggressive", errInvalid)
		}
		p.GoalIntensity = i
	}
	if req.DietaryPreference != nil {
		d := DietaryPreference(strings.ToLower(*req.DietaryPreference))
		if !validDiets[d] {
			return fmt.Errorf("%w: dietary_preference must be one of: standard, vegetarian, vegan, keto, paleo", errInvalid)
		}
		p.DietaryPreference = d
	}
	return nil
}

func applyProfileDefaults(p *UserProfile) {
	if p.ActivityLevel == "" {
		p.ActivityLevel = ActivitySedentary
	}
	if p.Goal == "" {
		p.Goal = GoalMaintain
	}
	if p.GoalIntensity == "" {
		p.GoalIntensity = IntensitySlow
	}
	if p.DietaryPreference == "" {
		p.DietaryPreference = DietStandard
	}
}

func validateProfile(p UserProfile) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", errInvalid)
	case p.Gender == "":
		return fmt.Errorf("%w: gender is required", errInvalid)
	case p.Age < minAgeYears || p.Age > maxAgeYears:
		return fmt.Errorf("%w: age must be between %d and %d", errInvalid, minAgeYears, maxAgeYears)
	case p.WeightKG < minWeightKG || p.WeightKG > maxWeightKG:
		return fmt.Errorf("%w: weight_kg must be between %d and %d", errInvalid, minWeightKG, maxWeightKG)
	case p.HeightCM < minHeightCM || p.HeightCM > maxHeightCM:
		return fmt.Errorf("%w: height_cm must be between %d and %d", errInvalid, minHeightCM, maxHeightCM)
	}
	return nil
}

// populateComputed fills BMR and TDEE when the body metrics are present.
func populateComputed(p *UserProfile) {
	if p.WeightKG <= 0 || p.HeightCM <= 0 || p.Age <= 0 {
		return
	}
	bmr, tdee := dailyExpenditure(p.metrics())
	p.ComputedBMR = &bmr
	p.ComputedTDEE = &tdee
}

/* ─── Postgres ───────────────────────────────────────────────────────── */

type pgProfileRepo struct{ db dbPool }

func newPGProfileRepo(db dbPool) *pgProfileRepo { return &pgProfileRepo{db: db} }

func (r *pgProfileRepo) GetProfile(ctx context.Context, userID int) (UserProfile, error) {
	p, err := queryOne[UserProfile](r.db, ctx,
		"SELECT * FROM profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
	if errors.Is(err, pgx.ErrNoRows) {
		return UserProfile{}, fmt.Errorf("%w: profile", errNotFound)
	}
	return p, err
}

func (r *pgProfileRepo) UpsertProfile(ctx context.Context, p UserProfile) (UserProfile, error) {
	return queryOne[UserProfile](r.db, ctx,
		`INSERT INTO profiles (user_id, name, age, gender, weight_kg, height_cm, activity_level,
			goal, goal_intensity, dietary_preference, calorie_goal, protein_goal, carbs_goal, fat_goal)
		 VALUES (@userID, @name, @age, @gender, @weightKG, @heightCM, @activityLevel,
			@goal, @goalIntensity, @dietaryPreference, @calorieGoal, @proteinGoal, @carbsGoal, @fatGoal)
		 ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			weight_kg = EXCLUDED.weight_kg,
			height_cm = EXCLUDED.height_cm,
			activity_level = EXCLUDED.activity_level,
			goal = EXCLUDED.goal,
			goal_intensity = EXCLUDED.goal_intensity,
			dietary_preference = EXCLUDED.dietary_preference,
			calorie_goal = EXCLUDED.calorie_goal,
			protein_goal = EXCLUDED.protein_goal,
			carbs_goal = EXCLUDED.carbs_goal,
			fat_goal = EXCLUDED.fat_goal,
			updated_at = now()
		 RETURNING *`,
		pgx.NamedArgs{
			"userID":            p.UserID,
			"name":              p.Name,
			"age":               p.Age,
			"gender":            string(p.Gender),
			"weightKG":          p.WeightKG,
			"heightCM":          p.HeightCM,
			"activityLevel":     string(p.ActivityLevel),
			"goal":              string(p.Goal),
			"goalIntensity":     string(p.GoalIntensity),
			"dietaryPreference": string(p.DietaryPreference),
			"calorieGoal":       p.CalorieGoal,
			"proteinGoal":       p.ProteinGoal,
			"carbsGoal":         p.CarbsGoal,
			"fatGoal":           p.FatGoal,
		})
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// getProfile returns the profile with computed BMR/TDEE.
// GET /api/profile. 404 until the user has saved one.
func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.profiles.Get(c, c.GetInt("user_id"))
	if err != nil {
		respondError(c, err, "failed to fetch profile")
		return
	}
	c.JSON(http.StatusOK, p)
}

// putProfile replaces the profile. Goals are always recomputed.
// PUT /api/profile.
func (h *Handler) putProfile(c *gin.Context) {
	h.saveProfile(c, false)
}

// patchProfile updates only the provided fields. Pointer fields in the body
// distinguish "not provided" from zero. Goals are always recomputed.
// PATCH /api/profile.
func (h *Handler) patchProfile(c *gin.Context) {
	h.saveProfile(c, true)
}

func (h *Handler) saveProfile(c *gin.Context, partial bool) {
	var body patchProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.profiles.Save(c, c.GetInt("user_id"), body, partial)
	if err != nil {
		respondError(c, err, "failed to save profile")
		return
	}
	c.JSON(http.StatusOK, p)
}
