package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	maxDayCheckInterval = time.Minute
	defaultReminderTick = 30 * time.Second
)

// config is read once at startup from the environment (after .env).
type config struct {
	Addr              string
	DBURL             string
	AppEnv            string
	AutoMigrate       bool
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIVisionModel string
	RedisAddr         string
	RedisChannel      string
	DayCheckInterval  time.Duration
	ReminderTick      time.Duration
	BaseWaterGoalL    float64
}

// loadConfig reads the environment. Malformed optional values fall back to
// their defaults; a missing DB_URL is an error.
func loadConfig() (config, error) {
	cfg := config{
		Addr:              envString("ADDR", ":3000"),
		DBURL:             envString("DB_URL", ""),
		AppEnv:            envString("APP_ENV", "development"),
		AutoMigrate:       envBool("AUTO_MIGRATE", false),
		OpenAIAPIKey:      envString("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     envString("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:       envString("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIVisionModel: envString("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		RedisAddr:         envString("REDIS_ADDR", ""),
		RedisChannel:      envString("REDIS_CHANNEL", "reminders"),
		DayCheckInterval:  envDuration("DAY_CHECK_INTERVAL", maxDayCheckInterval),
		ReminderTick:      envDuration("REMINDER_TICK", defaultReminderTick),
		BaseWaterGoalL:    envFloat("BASE_WATER_GOAL_L", defaultBaselineWaterL),
	}
	// Rollover must be noticed within a minute.
	if cfg.DayCheckInterval > maxDayCheckInterval {
		cfg.DayCheckInterval = maxDayCheckInterval
	}
	// A tick of a minute or more could step over a reminder's minute.
	if cfg.ReminderTick >= time.Minute {
		cfg.ReminderTick = defaultReminderTick
	}
	if cfg.DBURL == "" {
		return cfg, fmt.Errorf("DB_URL is required")
	}
	return cfg, nil
}

func (c config) production() bool { return c.AppEnv == "production" }

func envString(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func envBool(name string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return def
	}
	return b
}

func envFloat(name string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(name)), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envDuration(name string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(name)))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
