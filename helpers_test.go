package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

/* ─── Clock ──────────────────────────────────────────────────────────── */

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err, "load %s", name)
	return loc
}

/* ─── Meal repository ────────────────────────────────────────────────── */

// fakeMealRepo keeps meals in memory. listFn, when set, replaces ListMeals.
type fakeMealRepo struct {
	mu        sync.Mutex
	meals     map[int][]Meal
	listCalls int
	inserts   int
	insertErr error
	listFn    func(ctx context.Context, userID int) ([]Meal, error)
}

func newFakeMealRepo() *fakeMealRepo { return &fakeMealRepo{meals: make(map[int][]Meal)} }

func (r *fakeMealRepo) ListMeals(ctx context.Context, userID int) ([]Meal, error) {
	r.mu.Lock()
	r.listCalls++
	fn := r.listFn
	out := cloneMeals(r.meals[userID])
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, userID)
	}
	return out, nil
}

func (r *fakeMealRepo) InsertMeal(_ context.Context, m Meal) (Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return Meal{}, r.insertErr
	}
	r.meals[m.UserID] = append(r.meals[m.UserID], m)
	return m, nil
}

func (r *fakeMealRepo) UpdateMeal(_ context.Context, m Meal) (Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.meals[m.UserID] {
		if cur.ID == m.ID {
			r.meals[m.UserID][i] = m
			return m, nil
		}
	}
	return Meal{}, fmt.Errorf("%w: meal %s", errNotFound, m.ID)
}

func (r *fakeMealRepo) DeleteMeal(_ context.Context, userID int, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.meals[userID] {
		if cur.ID == id {
			r.meals[userID] = append(r.meals[userID][:i], r.meals[userID][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: meal %s", errNotFound, id)
}

func (r *fakeMealRepo) calls() (lists, inserts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls, r.inserts
}

/* ─── Profile repository ─────────────────────────────────────────────── */

type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[int]UserProfile
	upserts  int
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[int]UserProfile)}
}

func (r *fakeProfileRepo) GetProfile(_ context.Context, userID int) (UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return UserProfile{}, fmt.Errorf("%w: profile", errNotFound)
	}
	return p, nil
}

func (r *fakeProfileRepo) UpsertProfile(_ context.Context, p UserProfile) (UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	r.profiles[p.UserID] = p
	return p, nil
}

/* ─── Water repository ───────────────────────────────────────────────── */

type waterKey struct {
	userID int
	day    DayKey
}

type fakeWaterRepo struct {
	mu        sync.Mutex
	intake    map[waterKey]int
	upsertErr error
}

func newFakeWaterRepo() *fakeWaterRepo { return &fakeWaterRepo{intake: make(map[waterKey]int)} }

func (r *fakeWaterRepo) GetIntake(_ context.Context, userID int, day DayKey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intake[waterKey{userID, day}], nil
}

func (r *fakeWaterRepo) UpsertIntake(_ context.Context, userID int, day DayKey, ml int) (waterIntakeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return waterIntakeRecord{}, r.upsertErr
	}
	r.intake[waterKey{userID, day}] = ml
	return waterIntakeRecord{UserID: userID, Date: day, ML: ml}, nil
}

func (r *fakeWaterRepo) ListIntake(_ context.Context, userID int, start, end DayKey) ([]waterIntakeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []waterIntakeRecord{}
	for d := start; !end.Before(d); d = d.AddDays(1) {
		if ml, ok := r.intake[waterKey{userID, d}]; ok {
			out = append(out, waterIntakeRecord{UserID: userID, Date: d, ML: ml})
		}
	}
	return out, nil
}

/* ─── Notification repository ────────────────────────────────────────── */

type fakeNotificationRepo struct {
	mu    sync.Mutex
	prefs map[string]NotificationPreference
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{prefs: make(map[string]NotificationPreference)}
}

func (r *fakeNotificationRepo) ListPreferences(_ context.Context, userID int) ([]NotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []NotificationPreference{}
	for _, p := range r.prefs {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) ListEnabledPreferences(context.Context) ([]NotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []NotificationPreference{}
	for _, p := range r.prefs {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) GetPreference(_ context.Context, userID int, t ReminderType) (NotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[reminderID(userID, t)]
	if !ok {
		return NotificationPreference{}, fmt.Errorf("%w: %s reminder", errNotFound, t)
	}
	return p, nil
}

func (r *fakeNotificationRepo) UpsertPreference(_ context.Context, p NotificationPreference) (NotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[reminderID(p.UserID, p.Type)] = p
	return p, nil
}

/* ─── Publisher ──────────────────────────────────────────────────────── */

type recordingPublisher struct {
	mu   sync.Mutex
	sent []reminder
}

func (p *recordingPublisher) Publish(_ context.Context, r reminder) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, r)
	return nil
}

/* ─── Handler wiring ─────────────────────────────────────────────────── */

type testEnv struct {
	router   *gin.Engine
	clock    *fakeClock
	meals    *fakeMealRepo
	profiles *fakeProfileRepo
	water    *fakeWaterRepo
	prefs    *fakeNotificationRepo
	pub      *recordingPublisher
	h        *Handler
}

// newTestEnv wires a Handler over in-memory repositories. Routes are
// registered without the auth middleware; every request runs as userID.
func newTestEnv(t *testing.T, now time.Time, userID int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zap.NewNop()
	env := &testEnv{
		clock:    newFakeClock(now),
		meals:    newFakeMealRepo(),
		profiles: newFakeProfileRepo(),
		water:    newFakeWaterRepo(),
		prefs:    newFakeNotificationRepo(),
		pub:      &recordingPublisher{},
	}
	scheduler := newReminderScheduler(env.clock, env.pub, log)
	env.h = &Handler{
		log:       log,
		clock:     env.clock,
		meals:     NewMealService(env.meals, env.clock, log),
		profiles:  NewProfileService(env.profiles, log),
		water:     NewWaterService(env.water, defaultBaselineWaterL, log),
		reminders: NewNotificationService(env.prefs, scheduler, log),
		estimator: newNutritionEstimator(config{OpenAIBaseURL: "http://127.0.0.1:0"}, log),
	}
	t.Cleanup(env.h.meals.Wait)

	router := gin.New()
	api := router.Group("/api", func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	api.GET("/meals", env.h.listMeals)
	api.POST("/meals", env.h.createMeal)
	api.PUT("/meals/:id", env.h.updateMeal)
	api.DELETE("/meals/:id", env.h.deleteMeal)
	api.GET("/meals/daily", env.h.getDailySummary)
	api.GET("/meals/week-summary", env.h.getWeekSummary)
	api.POST("/meals/estimate", env.h.estimateMeal)
	api.POST("/meals/estimate-image", env.h.estimateMealImage)
	api.GET("/profile", env.h.getProfile)
	api.PUT("/profile", env.h.putProfile)
	api.PATCH("/profile", env.h.patchProfile)
	api.GET("/water", env.h.getWater)
	api.GET("/water/history", env.h.getWaterHistory)
	api.POST("/water/intake", env.h.addWaterIntake)
	api.POST("/water/supplements", env.h.addSupplement)
	api.POST("/water/supplements/toggle", env.h.toggleSupplement)
	api.POST("/water/detect", env.h.detectSupplements)
	api.POST("/water/reset", env.h.resetWater)
	api.GET("/notifications/preferences", env.h.getNotificationPreferences)
	api.PUT("/notifications/preferences", env.h.putNotificationPreference)
	api.POST("/notifications/preferences/:type/toggle", env.h.toggleNotificationPreference)
	env.router = router
	return env
}

// do sends a request with an optional JSON body and returns the recorder.
func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// meal builds a single-food meal for fixtures.
func meal(id string, userID int, eatenAt time.Time, calories, protein, carbs, fat float64) Meal {
	return Meal{
		ID:       id,
		UserID:   userID,
		Name:     id,
		EatenAt:  eatenAt,
		Category: CategoryLunch,
		Foods: []FoodLine{{
			ID: id + "-f", Name: id, Portion: 1, Unit: "serving",
			Calories: calories, Protein: protein, Carbs: carbs, Fat: fat,
		}},
		CreatedAt: eatenAt,
	}
}
