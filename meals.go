package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const reconcileTimeout = 10 * time.Second

// mealRepository is the persistence collaborator for meals. Meals are always
// fetched in full per user; filtering by day happens in memory.
type mealRepository interface {
	ListMeals(ctx context.Context, userID int) ([]Meal, error)
	InsertMeal(ctx context.Context, m Meal) (Meal, error)
	UpdateMeal(ctx context.Context, m Meal) (Meal, error)
	DeleteMeal(ctx context.Context, userID int, id string) error
}

// mealCollection is one user's resident meals. applied is the sequence
// number of the fetch that produced meals; older fetches never replace it.
// A stale collection is refetched on the next read.
type mealCollection struct {
	meals   []Meal
	applied uint64
	stale   bool
}

// MealService keeps each user's meal collection in memory and syncs it with
// the repository. Writes persist first, update the resident collection
// optimistically, then refetch in the background; the most recently started
// fetch that succeeds wins for the whole collection.
type MealService struct {
	repo  mealRepository
	clock Clock
	log   *zap.Logger

	mu    sync.Mutex
	users map[int]*mealCollection
	seq   uint64

	bg sync.WaitGroup
}

func NewMealService(repo mealRepository, clock Clock, log *zap.Logger) *MealService {
	return &MealService{
		repo:  repo,
		clock: clock,
		log:   log.With(zap.String("component", "meals")),
		users: make(map[int]*mealCollection),
	}
}

// Meals returns the user's resident collection, fetching it on first use.
// The returned slice is a copy.
func (s *MealService) Meals(ctx context.Context, userID int) ([]Meal, error) {
	s.mu.Lock()
	col, ok := s.users[userID]
	if ok && !col.stale {
		out := cloneMeals(col.meals)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()
	return s.Reload(ctx, userID)
}

// Reload fetches the user's meals and replaces the resident collection,
// unless a fetch that started later has already been applied. In that case
// the newer resident collection is returned.
func (s *MealService) Reload(ctx context.Context, userID int) ([]Meal, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	meals, err := s.repo.ListMeals(ctx, userID)
	if err != nil {
		s.log.Error("fetch meals", zap.Int("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.users[userID]
	if !ok {
		col = &mealCollection{}
		s.users[userID] = col
	}
	if seq > col.applied {
		col.meals, col.applied, col.stale = meals, seq, false
	} else {
		s.log.Debug("discarding stale meal fetch", zap.Int("user_id", userID), zap.Uint64("seq", seq), zap.Uint64("applied", col.applied))
	}
	return cloneMeals(col.meals), nil
}

// reconcile refetches in the background. It outlives the request that
// triggered it.
func (s *MealService) reconcile(ctx context.Context, userID int) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
		defer cancel()
		if _, err := s.Reload(ctx, userID); err != nil {
			s.log.Warn("reconcile meals", zap.Int("user_id", userID), zap.Error(err))
		}
	}()
}

// Wait blocks until background reconciliation fetches finish.
func (s *MealService) Wait() { s.bg.Wait() }

// Invalidate marks every resident collection stale so the next read
// refetches. The applied watermark is kept, so a fetch that started before
// the invalidation can still land but an older one cannot.
func (s *MealService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, col := range s.users {
		col.stale = true
	}
}

// mutateLocal applies fn to the resident collection if there is one.
func (s *MealService) mutateLocal(userID int, fn func([]Meal) []Meal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.users[userID]; ok {
		col.meals = fn(col.meals)
	}
}

// insertByEatenAt places m after every meal eaten at or before it, matching
// the repository's eaten_at, created_at ordering.
func insertByEatenAt(ms []Meal, m Meal) []Meal {
	i := slices.IndexFunc(ms, func(x Meal) bool { return x.EatenAt.After(m.EatenAt) })
	if i < 0 {
		return append(ms, m)
	}
	return slices.Insert(ms, i, m)
}

// Add validates req, persists the meal, appends it locally and schedules a
// reconciliation fetch. Validation failures never reach the repository.
func (s *MealService) Add(ctx context.Context, userID int, req createMealRequest) (Meal, error) {
	m, err := buildMeal(userID, req, s.clock.Now())
	if err != nil {
		return Meal{}, err
	}
	saved, err := s.repo.InsertMeal(ctx, m)
	if err != nil {
		s.log.Error("insert meal", zap.Int("user_id", userID), zap.Error(err))
		return Meal{}, err
	}
	s.mutateLocal(userID, func(ms []Meal) []Meal { return insertByEatenAt(ms, saved) })
	s.reconcile(ctx, userID)
	return saved, nil
}

// Update applies the non-nil fields of req to meal id and persists it.
func (s *MealService) Update(ctx context.Context, userID int, id string, req updateMealRequest) (Meal, error) {
	meals, err := s.Meals(ctx, userID)
	if err != nil {
		return Meal{}, err
	}
	var current *Meal
	for i := range meals {
		if meals[i].ID == id {
			current = &meals[i]
			break
		}
	}
	if current == nil {
		return Meal{}, fmt.Errorf("%w: meal %s", errNotFound, id)
	}

	next, err := applyMealUpdate(*current, req)
	if err != nil {
		return Meal{}, err
	}
	saved, err := s.repo.UpdateMeal(ctx, next)
	if err != nil {
		s.log.Error("update meal", zap.Int("user_id", userID), zap.String("meal_id", id), zap.Error(err))
		return Meal{}, err
	}
	s.mutateLocal(userID, func(ms []Meal) []Meal {
		for i := range ms {
			if ms[i].ID == id {
				ms[i] = saved
			}
		}
		return ms
	})
	s.reconcile(ctx, userID)
	return saved, nil
}

// Delete removes meal id from the repository and the resident collection.
func (s *MealService) Delete(ctx context.Context, userID int, id string) error {
	if err := s.repo.DeleteMeal(ctx, userID, id); err != nil {
		return err
	}
	s.mutateLocal(userID, func(ms []Meal) []Meal {
		out := ms[:0]
		for _, m := range ms {
			if m.ID != id {
				out = append(out, m)
			}
		}
		return out
	})
	s.reconcile(ctx, userID)
	return nil
}

func cloneMeals(ms []Meal) []Meal {
	out := make([]Meal, len(ms))
	copy(out, ms)
	return out
}

/* ─── Construction & validation ──────────────────────────────────────── */

// buildMeal turns a create request into a validated Meal with fresh IDs.
func buildMeal(userID int, req createMealRequest, now time.Time) (Meal, error) {
	m := Meal{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		Category:  MealCategory(strings.ToLower(strings.TrimSpace(req.Category))),
		Cuisine:   strings.TrimSpace(req.Cuisine),
		Notes:     req.Notes,
		EatenAt:   now,
		CreatedAt: now,
	}
	if req.EatenAt != "" {
		t, err := parseTimestamp(req.EatenAt)
		if err != nil {
			return Meal{}, err
		}
		m.EatenAt = t
	}
	if err := validateMealHeader(m); err != nil {
		return Meal{}, err
	}

	lines := req.Foods
	if len(lines) == 0 {
		lines = []foodLineRequest{{
			Name:     m.Name,
			Portion:  req.Portion,
			Unit:     req.Unit,
			Calories: req.Calories,
			Protein:  req.Protein,
			Carbs:    req.Carbs,
			Fat:      req.Fat,
		}}
	}
	foods, err := buildFoodLines(lines)
	if err != nil {
		return Meal{}, err
	}
	m.Foods = foods

	if err := validateMeal(m); err != nil {
		return Meal{}, err
	}
	return m, nil
}

func buildFoodLines(reqs []foodLineRequest) ([]FoodLine, error) {
	out := make([]FoodLine, 0, len(reqs))
	for i, r := range reqs {
		f := FoodLine{
			ID:       uuid.NewString(),
			Name:     strings.TrimSpace(r.Name),
			Portion:  r.Portion,
			Unit:     strings.ToLower(strings.TrimSpace(r.Unit)),
			Calories: r.Calories,
			Protein:  r.Protein,
			Carbs:    r.Carbs,
			Fat:      r.Fat,
		}
		if f.Portion == 0 {
			f.Portion = 1
		}
		if f.Unit == "" {
			f.Unit = "serving"
		}
		if f.Name == "" {
			return nil, fmt.Errorf("%w: foods[%d] name is required", errInvalid, i)
		}
		if !validUnits[f.Unit] {
			return nil, fmt.Errorf("%w: foods[%d] unit must be one of: g, ml, piece, serving", errInvalid, i)
		}
		if f.Portion < 0 || f.Calories < 0 || f.Protein < 0 || f.Carbs < 0 || f.Fat < 0 {
			return nil, fmt.Errorf("%w: foods[%d] portion and nutrition must not be negative", errInvalid, i)
		}
		out = append(out, f)
	}
	return out, nil
}

func validateMeal(m Meal) error {
	if err := validateMealHeader(m); err != nil {
		return err
	}
	if len(m.Foods) == 0 {
		return fmt.Errorf("%w: at least one food is required", errInvalid)
	}
	return nil
}

func validateMealHeader(m Meal) error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", errInvalid)
	}
	if m.Category == "" {
		return fmt.Errorf("%w: category is required", errInvalid)
	}
	if !validCategories[m.Category] {
		return fmt.Errorf("%w: category must be one of: breakfast, lunch, dinner, snack", errInvalid)
	}
	return nil
}

// applyMealUpdate returns a copy of m with req's non-nil fields applied.
func applyMealUpdate(m Meal, req updateMealRequest) (Meal, error) {
	if req.Name != nil {
		m.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		m.Category = MealCategory(strings.ToLower(strings.TrimSpace(*req.Category)))
	}
	if req.Cuisine != nil {
		m.Cuisine = strings.TrimSpace(*req.Cuisine)
	}
	if req.Notes != nil {
		m.Notes = *req.Notes
	}
	if req.EatenAt != nil {
		t, err := parseTimestamp(*req.EatenAt)
		if err != nil {
			return Meal{}, err
		}
		m.EatenAt = t
	}
	if req.Foods != nil {
		foods, err := buildFoodLines(*req.Foods)
		if err != nil {
			return Meal{}, err
		}
		m.Foods = foods
	}
	if err := validateMeal(m); err != nil {
		return Meal{}, err
	}
	return m, nil
}
