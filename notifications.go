package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const reminderTimeLayout = "15:04"

// reminder is one due notification handed to a publisher.
type reminder struct {
	ID     string       `json:"id"`
	UserID int          `json:"user_id"`
	Type   ReminderType `json:"type"`
	Title  string       `json:"title"`
	Body   string       `json:"body"`
	At     time.Time    `json:"at"`
}

func reminderID(userID int, t ReminderType) string {
	return string(t) + "-" + strconv.Itoa(userID)
}

func reminderText(t ReminderType) (title, body string) {
	if t == ReminderWater {
		return "Time to hydrate!", "Don't forget to log your water intake."
	}
	return fmt.Sprintf("Time for %s!", t), fmt.Sprintf("Don't forget to log your %s.", t)
}

// normalizePreference validates p and canonicalizes it: type lowercased,
// days sorted and deduplicated. Empty days means every day.
func normalizePreference(p NotificationPreference) (NotificationPreference, error) {
	p.Type = ReminderType(strings.ToLower(strings.TrimSpace(string(p.Type))))
	if !validReminderTypes[p.Type] {
		return p, fmt.Errorf("%w: type must be one of: breakfast, lunch, dinner, snack, water", errInvalid)
	}
	p.Time = strings.TrimSpace(p.Time)
	if _, err := time.Parse(reminderTimeLayout, p.Time); err != nil || len(p.Time) != len(reminderTimeLayout) {
		return p, fmt.Errorf("%w: time must be HH:mm", errInvalid)
	}
	for _, d := range p.Days {
		if d < 0 || d > 6 {
			return p, fmt.Errorf("%w: days must be between 0 (Sunday) and 6 (Saturday)", errInvalid)
		}
	}
	days := slices.Clone(p.Days)
	slices.Sort(days)
	p.Days = slices.Compact(days)
	if p.Days == nil {
		p.Days = []int32{}
	}
	if _, err := loadLocation(p.Timezone); err != nil {
		return p, err
	}
	return p, nil
}

/* ─── Scheduler ──────────────────────────────────────────────────────── */

type reminderPublisher interface {
	Publish(ctx context.Context, r reminder) error
}

type scheduledReminder struct {
	pref         NotificationPreference
	loc          *time.Location
	hour, minute int
	lastFired    time.Time // local minute of the last send
}

// reminderScheduler holds at most one scheduled reminder per (user, type).
// Scheduling again replaces the previous entry.
type reminderScheduler struct {
	clock     Clock
	publisher reminderPublisher
	log       *zap.Logger

	mu      sync.Mutex
	entries map[string]*scheduledReminder
}

func newReminderScheduler(clock Clock, publisher reminderPublisher, log *zap.Logger) *reminderScheduler {
	return &reminderScheduler{
		clock:     clock,
		publisher: publisher,
		log:       log.With(zap.String("component", "reminders")),
		entries:   make(map[string]*scheduledReminder),
	}
}

// Schedule installs p, replacing any previous reminder with the same id.
// A disabled preference cancels instead.
func (s *reminderScheduler) Schedule(p NotificationPreference) error {
	if !p.Enabled {
		s.Cancel(p.UserID, p.Type)
		return nil
	}
	at, err := time.Parse(reminderTimeLayout, p.Time)
	if err != nil {
		return fmt.Errorf("%w: time must be HH:mm", errInvalid)
	}
	loc, err := loadLocation(p.Timezone)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[reminderID(p.UserID, p.Type)] = &scheduledReminder{
		pref:   p,
		loc:    loc,
		hour:   at.Hour(),
		minute: at.Minute(),
	}
	return nil
}

func (s *reminderScheduler) Cancel(userID int, t ReminderType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, reminderID(userID, t))
}

// Len reports how many reminders are scheduled.
func (s *reminderScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// due returns the reminders whose local HH:mm is now on an active weekday,
// marking each as fired for that minute so repeated ticks do not resend.
func (s *reminderScheduler) due(now time.Time) []reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []reminder
	for id, e := range s.entries {
		local := now.In(e.loc)
		if local.Hour() != e.hour || local.Minute() != e.minute {
			continue
		}
		if len(e.pref.Days) > 0 && !slices.Contains(e.pref.Days, int32(local.Weekday())) {
			continue
		}
		minute := local.Truncate(time.Minute)
		if e.lastFired.Equal(minute) {
			continue
		}
		e.lastFired = minute
		title, body := reminderText(e.pref.Type)
		out = append(out, reminder{ID: id, UserID: e.pref.UserID, Type: e.pref.Type, Title: title, Body: body, At: minute})
	}
	slices.SortFunc(out, func(a, b reminder) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// fire publishes everything due at now. Publish failures are logged and
// not retried.
func (s *reminderScheduler) fire(ctx context.Context, now time.Time) int {
	sent := 0
	for _, r := range s.due(now) {
		if err := s.publisher.Publish(ctx, r); err != nil {
			s.log.Error("publish reminder", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Run ticks until ctx is cancelled. tick must be under a minute so no
// reminder minute is skipped.
func (s *reminderScheduler) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.fire(ctx, s.clock.Now())
		}
	}
}

/* ─── Publishers ─────────────────────────────────────────────────────── */

// redisReminderPublisher fans reminders out on a Redis pub/sub channel for
// push-delivery workers.
type redisReminderPublisher struct {
	rdb     *redis.Client
	channel string
}

func newRedisReminderPublisher(ctx context.Context, addr, channel string) (*redisReminderPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisReminderPublisher{rdb: rdb, channel: channel}, nil
}

func (p *redisReminderPublisher) Publish(ctx context.Context, r reminder) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

func (p *redisReminderPublisher) Close() error { return p.rdb.Close() }

// logReminderPublisher is used when Redis is not configured.
type logReminderPublisher struct{ log *zap.Logger }

func (p logReminderPublisher) Publish(_ context.Context, r reminder) error {
	p.log.Info("reminder due",
		zap.String("id", r.ID),
		zap.Int("user_id", r.UserID),
		zap.String("type", string(r.Type)),
		zap.String("title", r.Title),
	)
	return nil
}

/* ─── Service ────────────────────────────────────────────────────────── */

type notificationRepository interface {
	ListPreferences(ctx context.Context, userID int) ([]NotificationPreference, error)
	ListEnabledPreferences(ctx context.Context) ([]NotificationPreference, error)
	GetPreference(ctx context.Context, userID int, t ReminderType) (NotificationPreference, error)
	UpsertPreference(ctx context.Context, p NotificationPreference) (NotificationPreference, error)
}

// NotificationService stores reminder preferences and keeps the scheduler
// in step with them.
type NotificationService struct {
	repo      notificationRepository
	scheduler *reminderScheduler
	log       *zap.Logger
}

func NewNotificationService(repo notificationRepository, scheduler *reminderScheduler, log *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, scheduler: scheduler, log: log.With(zap.String("component", "notifications"))}
}

func (s *NotificationService) Preferences(ctx context.Context, userID int) ([]NotificationPreference, error) {
	return s.repo.ListPreferences(ctx, userID)
}

// Save upserts p by (user, type). Enabled preferences are (re)scheduled,
// disabled ones cancelled.
func (s *NotificationService) Save(ctx context.Context, p NotificationPreference) (NotificationPreference, error) {
	p, err := normalizePreference(p)
	if err != nil {
		return NotificationPreference{}, err
	}
	saved, err := s.repo.UpsertPreference(ctx, p)
	if err != nil {
		s.log.Error("upsert preference", zap.Int("user_id", p.UserID), zap.String("type", string(p.Type)), zap.Error(err))
		return NotificationPreference{}, err
	}
	if err := s.scheduler.Schedule(saved); err != nil {
		return NotificationPreference{}, err
	}
	return saved, nil
}

// Toggle sets enabled on an existing preference. Unknown types are 404.
func (s *NotificationService) Toggle(ctx context.Context, userID int, t ReminderType, enabled *bool) (NotificationPreference, error) {
	p, err := s.repo.GetPreference(ctx, userID, t)
	if err != nil {
		return NotificationPreference{}, err
	}
	if enabled != nil {
		p.Enabled = *enabled
	} else {
		p.Enabled = !p.Enabled
	}
	return s.Save(ctx, p)
}

// RescheduleAll schedules every enabled stored preference. Called on startup.
func (s *NotificationService) RescheduleAll(ctx context.Context) (int, error) {
	prefs, err := s.repo.ListEnabledPreferences(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range prefs {
		if err := s.scheduler.Schedule(p); err != nil {
			s.log.Warn("skip unschedulable preference", zap.Int("user_id", p.UserID), zap.String("type", string(p.Type)), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

/* ─── Postgres ───────────────────────────────────────────────────────── */

type pgNotificationRepo struct{ db dbPool }

func newPGNotificationRepo(db dbPool) *pgNotificationRepo { return &pgNotificationRepo{db: db} }

const preferenceColumns = "user_id, type, time, enabled, days, timezone"

func (r *pgNotificationRepo) ListPreferences(ctx context.Context, userID int) ([]NotificationPreference, error) {
	return queryMany[NotificationPreference](r.db, ctx,
		"SELECT "+preferenceColumns+" FROM notification_preferences WHERE user_id = @userID ORDER BY type",
		pgx.NamedArgs{"userID": userID})
}

func (r *pgNotificationRepo) ListEnabledPreferences(ctx context.Context) ([]NotificationPreference, error) {
	return queryMany[NotificationPreference](r.db, ctx,
		"SELECT "+preferenceColumns+" FROM notification_preferences WHERE enabled ORDER BY user_id, type",
		nil)
}

func (r *pgNotificationRepo) GetPreference(ctx context.Context, userID int, t ReminderType) (NotificationPreference, error) {
	p, err := queryOne[NotificationPreference](r.db, ctx,
		"SELECT "+preferenceColumns+" FROM notification_preferences WHERE user_id = @userID AND type = @type",
		pgx.NamedArgs{"userID": userID, "type": string(t)})
	if errors.Is(err, pgx.ErrNoRows) {
		return p, fmt.Errorf("%w: %s reminder", errNotFound, t)
	}
	return p, err
}

func (r *pgNotificationRepo) UpsertPreference(ctx context.Context, p NotificationPreference) (NotificationPreference, error) {
	return queryOne[NotificationPreference](r.db, ctx,
		`INSERT INTO notification_preferences (user_id, type, time, enabled, days, timezone)
		 VALUES (@userID, @type, @time, @enabled, @days, @timezone)
		 ON CONFLICT (user_id, type) DO UPDATE SET
			time = EXCLUDED.time,
			enabled = EXCLUDED.enabled,
			days = EXCLUDED.days,
			timezone = EXCLUDED.timezone,
			updated_at = now()
		 RETURNING `+preferenceColumns,
		pgx.NamedArgs{
			"userID":   p.UserID,
			"type":     string(p.Type),
			"time":     p.Time,
			"enabled":  p.Enabled,
			"days":     p.Days,
			"timezone": p.Timezone,
		})
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// getNotificationPreferences lists the user's reminder settings.
// GET /api/notifications/preferences.
func (h *Handler) getNotificationPreferences(c *gin.Context) {
	prefs, err := h.reminders.Preferences(c, c.GetInt("user_id"))
	if err != nil {
		respondError(c, err, "failed to fetch preferences")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// putNotificationPreference saves one reminder setting, replacing any
// existing one of the same type.
// PUT /api/notifications/preferences. Body: { type, time, enabled, days, timezone }.
// timezone defaults to the request's tz when omitted.
func (h *Handler) putNotificationPreference(c *gin.Context) {
	var body NotificationPreference
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	body.UserID = c.GetInt("user_id")
	if body.Timezone == "" {
		loc, ok := requestLocation(c)
		if !ok {
			return
		}
		if loc != time.Local {
			body.Timezone = loc.String()
		}
	}

	p, err := h.reminders.Save(c, body)
	if err != nil {
		respondError(c, err, "failed to save preference")
		return
	}
	c.JSON(http.StatusOK, p)
}

// toggleNotificationPreference enables or disables an existing reminder.
// POST /api/notifications/preferences/:type/toggle. Body: { "enabled": bool };
// an empty body flips the current value.
func (h *Handler) toggleNotificationPreference(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			apiError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	t := ReminderType(strings.ToLower(c.Param("type")))
	if !validReminderTypes[t] {
		apiError(c, http.StatusBadRequest, "type must be one of: breakfast, lunch, dinner, snack, water")
		return
	}

	p, err := h.reminders.Toggle(c, c.GetInt("user_id"), t, body.Enabled)
	if err != nil {
		respondError(c, err, "failed to toggle preference")
		return
	}
	c.JSON(http.StatusOK, p)
}
