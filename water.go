package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

const defaultBaselineWaterL = 3.1

// defaultSupplements is the catalog every tracker starts from.
func defaultSupplements() []Supplement {
	return []Supplement{
		{Name: "Creatine", WaterImpact: ImpactHigh, WaterML: 500},
		{Name: "Protein Powder", WaterImpact: ImpactMedium, WaterML: 300},
		{Name: "Pre-Workout", WaterImpact: ImpactHigh, WaterML: 400},
		{Name: "BCAAs", WaterImpact: ImpactMedium, WaterML: 250},
		{Name: "Caffeine", WaterImpact: ImpactHigh, WaterML: 350},
		{Name: "Multivitamin", WaterImpact: ImpactLow, WaterML: 100},
		{Name: "Fish Oil", WaterImpact: ImpactLow, WaterML: 100},
	}
}

// waterSuggestion is a keyword-matched water contribution for a custom supplement.
type waterSuggestion struct {
	keyword string
	ml      int
	reason  string
}

// supplementWaterTable is matched in order; the first keyword contained in
// the supplement name wins, so the order is part of the contract.
var supplementWaterTable = []waterSuggestion{
	{"creatine", 500, "Additional water helps prevent cramping and supports creatine absorption"},
	{"protein", 300, "Extra water aids protein absorption and prevents dehydration"},
	{"preworkout", 400, "Caffeine in pre-workout can be dehydrating"},
	{"bcaa", 250, "Supports amino acid absorption and muscle recovery"},
	{"caffeine", 350, "Compensates for the diuretic effect of caffeine"},
	{"electrolytes", -200, "Electrolytes help retain water, slightly reducing needed intake"},
	{"vitaminc", 100, "Supports vitamin absorption and hydration"},
	{"fishoil", 100, "Helps with supplement absorption"},
}

var defaultWaterSuggestion = waterSuggestion{ml: 100, reason: "General hydration support for supplement absorption"}

// foldName lowercases s and drops everything but letters and digits, so
// "Pre Workout", "pre-workout" and "PreWorkout" all fold to "preworkout".
func foldName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// suggestWaterFor looks name up in supplementWaterTable, falling back to
// the default contribution when nothing matches.
func suggestWaterFor(name string) waterSuggestion {
	folded := foldName(name)
	for _, s := range supplementWaterTable {
		if strings.Contains(folded, s.keyword) {
			return s
		}
	}
	return defaultWaterSuggestion
}

/* ─── Tracker ────────────────────────────────────────────────────────── */

// waterTracker is one user's hydration state for one day. Not safe for
// concurrent use; WaterService serializes access per user.
type waterTracker struct {
	mu          sync.Mutex
	day         DayKey
	loaded      bool
	baselineL   float64
	supplements []Supplement
	intakeML    int
}

func newWaterTracker(baselineL float64) *waterTracker {
	return &waterTracker{baselineL: baselineL, supplements: defaultSupplements()}
}

// adjustedGoalL is the baseline plus every selected supplement's contribution.
func (t *waterTracker) adjustedGoalL() float64 {
	extra := 0
	for _, s := range t.supplements {
		if s.Selected {
			extra += s.WaterML
		}
	}
	return t.baselineL + float64(extra)/1000
}

// goalML is the adjusted goal rounded to whole millilitres.
func (t *waterTracker) goalML() int {
	return int(math.Round(t.adjustedGoalL() * 1000))
}

func (t *waterTracker) find(name string) int {
	for i, s := range t.supplements {
		if strings.EqualFold(s.Name, name) {
			return i
		}
	}
	return -1
}

func (t *waterTracker) toggle(name string) (Supplement, error) {
	i := t.find(name)
	if i < 0 {
		return Supplement{}, fmt.Errorf("%w: supplement %q", errNotFound, name)
	}
	t.supplements[i].Selected = !t.supplements[i].Selected
	return t.supplements[i], nil
}

// addCustom appends a user supplement, selected, with its contribution taken
// from the keyword table. Adding a name that already exists selects it instead.
func (t *waterTracker) addCustom(name string) (Supplement, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Supplement{}, fmt.Errorf("%w: name is required", errInvalid)
	}
	if i := t.find(name); i >= 0 {
		t.supplements[i].Selected = true
		return t.supplements[i], nil
	}
	sug := suggestWaterFor(name)
	s := Supplement{
		Name:        name,
		WaterImpact: ImpactMedium,
		WaterML:     sug.ml,
		Selected:    true,
		Reason:      sug.reason,
	}
	t.supplements = append(t.supplements, s)
	return s, nil
}

// detect selects every supplement whose name appears in description
// (case-insensitive) and flags it as auto-detected. Returns the matched names.
func (t *waterTracker) detect(description string) []string {
	lower := strings.ToLower(description)
	matched := []string{}
	for i := range t.supplements {
		hit := strings.Contains(lower, strings.ToLower(t.supplements[i].Name))
		t.supplements[i].AutoDetected = hit
		if hit {
			t.supplements[i].Selected = true
			matched = append(matched, t.supplements[i].Name)
		}
	}
	return matched
}

// intakeAfter returns the intake that adding ml would produce, capped at
// the adjusted goal. Intake already logged above a since-lowered goal is
// kept as is.
func (t *waterTracker) intakeAfter(ml int) int {
	return max(t.intakeML, min(t.intakeML+ml, t.goalML()))
}

// reset clears selections, drops user-added supplements and zeroes intake.
func (t *waterTracker) reset() {
	t.supplements = defaultSupplements()
	t.intakeML = 0
}

func (t *waterTracker) state() waterState {
	sups := make([]Supplement, len(t.supplements))
	copy(sups, t.supplements)
	return waterState{
		Date:            t.day,
		BaselineGoalL:   t.baselineL,
		AdjustedGoalL:   t.adjustedGoalL(),
		CurrentIntakeML: t.intakeML,
		Supplements:     sups,
	}
}

/* ─── Service ────────────────────────────────────────────────────────── */

// waterRepository persists daily intake, upserted by (user, date).
type waterRepository interface {
	GetIntake(ctx context.Context, userID int, day DayKey) (int, error)
	UpsertIntake(ctx context.Context, userID int, day DayKey, ml int) (waterIntakeRecord, error)
	ListIntake(ctx context.Context, userID int, start, end DayKey) ([]waterIntakeRecord, error)
}

// WaterService owns one tracker per user. Supplement selections live in
// memory for the session; intake is persisted per day.
type WaterService struct {
	repo      waterRepository
	log       *zap.Logger
	baselineL float64

	mu       sync.Mutex
	trackers map[int]*waterTracker
}

func NewWaterService(repo waterRepository, baselineL float64, log *zap.Logger) *WaterService {
	if baselineL <= 0 {
		baselineL = defaultBaselineWaterL
	}
	return &WaterService{
		repo:      repo,
		log:       log.With(zap.String("component", "water")),
		baselineL: baselineL,
		trackers:  make(map[int]*waterTracker),
	}
}

// with locks the user's tracker, loads the day's persisted intake when the
// tracker is on another day, and runs fn.
func (s *WaterService) with(ctx context.Context, userID int, day DayKey, fn func(t *waterTracker) error) error {
	s.mu.Lock()
	t, ok := s.trackers[userID]
	if !ok {
		t = newWaterTracker(s.baselineL)
		s.trackers[userID] = t
	}
	s.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded || t.day != day {
		ml, err := s.repo.GetIntake(ctx, userID, day)
		if err != nil {
			s.log.Error("load intake", zap.Int("user_id", userID), zap.Stringer("date", day), zap.Error(err))
			return err
		}
		t.day, t.intakeML, t.loaded = day, ml, true
	}
	return fn(t)
}

func (s *WaterService) State(ctx context.Context, userID int, day DayKey) (waterState, error) {
	var st waterState
	err := s.with(ctx, userID, day, func(t *waterTracker) error {
		st = t.state()
		return nil
	})
	return st, err
}

// AddWater records ml more intake, capped at the adjusted goal. The tracker
// only changes once the upsert succeeds.
func (s *WaterService) AddWater(ctx context.Context, userID int, day DayKey, ml int) (waterState, error) {
	if ml <= 0 || ml > 5000 {
		return waterState{}, fmt.Errorf("%w: ml must be between 1 and 5000", errInvalid)
	}
	var st waterState
	err := s.with(ctx, userID, day, func(t *waterTracker) error {
		next := t.intakeAfter(ml)
		if _, err := s.repo.UpsertIntake(ctx, userID, day, next); err != nil {
			s.log.Error("upsert intake", zap.Int("user_id", userID), zap.Error(err))
			return err
		}
		t.intakeML = next
		st = t.state()
		return nil
	})
	return st, err
}

func (s *WaterService) ToggleSupplement(ctx context.Context, userID int, day DayKey, name string) (waterState, error) {
	var st waterState
	err := s.with(ctx, userID, day, func(t *waterTracker) error {
		if _, err := t.toggle(name); err != nil {
			return err
		}
		st = t.state()
		return nil
	})
	return st, err
}

func (s *WaterService) AddSupplement(ctx context.Context, userID int, day DayKey, name string) (waterState, Supplement, error) {
	var st waterState
	var added Supplement
	err := s.with(ctx, userID, day, func(t *waterTracker) error {
		sup, err := t.addCustom(name)
		if err != nil {
			return err
		}
		added, st = sup, t.state()
		return nil
	})
	return st, added, err
}

func (s *WaterService) Detect(ctx context.Context, userID int, day DayKey, description string) (waterState, []string, error) {
	var st waterState
	var matched []string
	err := s.with(ctx, userID, day, func(t *waterTracker) error {
		matched = t.detect(description)
		st = t.state()
		return nil
	})
	return st, matched, err
}

// Reset zeroes the day's persisted intake, then restores the catalog.
func (s *WaterService) Reset(ctx context.Context, userID int, day DayKey) (waterState, error) {
	var st waterState
	err := s.with(ctx, userID, day, func(t *waterTracker) error {
		if _, err := s.repo.UpsertIntake(ctx, userID, day, 0); err != nil {
			s.log.Error("reset intake", zap.Int("user_id", userID), zap.Error(err))
			return err
		}
		t.reset()
		st = t.state()
		return nil
	})
	return st, err
}

func (s *WaterService) History(ctx context.Context, userID int, start, end DayKey) ([]waterIntakeRecord, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: start must not be after end", errInvalid)
	}
	return s.repo.ListIntake(ctx, userID, start, end)
}
