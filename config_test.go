package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv blanks every variable loadConfig reads so the host
// environment cannot leak into a test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"ADDR", "DB_URL", "APP_ENV", "AUTO_MIGRATE",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_VISION_MODEL",
		"REDIS_ADDR", "REDIS_CHANNEL", "DAY_CHECK_INTERVAL", "REMINDER_TICK", "BASE_WATER_GOAL_L",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DB_URL", "postgres://localhost/nutri")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.False(t, cfg.production())
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, "https://api.openai.com", cfg.OpenAIBaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "reminders", cfg.RedisChannel)
	assert.Equal(t, time.Minute, cfg.DayCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.ReminderTick)
	assert.Equal(t, defaultBaselineWaterL, cfg.BaseWaterGoalL)
}

func TestLoadConfig_RequiresDBURL(t *testing.T) {
	clearConfigEnv(t)
	_, err := loadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DB_URL", "postgres://db/nutri")
	t.Setenv("ADDR", ":8080")
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("DAY_CHECK_INTERVAL", "15s")
	t.Setenv("REMINDER_TICK", "10s")
	t.Setenv("BASE_WATER_GOAL_L", "2.5")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.production())
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 15*time.Second, cfg.DayCheckInterval)
	assert.Equal(t, 10*time.Second, cfg.ReminderTick)
	assert.Equal(t, 2.5, cfg.BaseWaterGoalL)
}

func TestLoadConfig_ClampsAndFallbacks(t *testing.T) {
	cases := []struct {
		name, key, value string
		check            func(config) bool
	}{
		{"day check capped at a minute", "DAY_CHECK_INTERVAL", "10m", func(c config) bool { return c.DayCheckInterval == time.Minute }},
		{"malformed day check", "DAY_CHECK_INTERVAL", "soon", func(c config) bool { return c.DayCheckInterval == time.Minute }},
		{"reminder tick of a minute resets", "REMINDER_TICK", "1m", func(c config) bool { return c.ReminderTick == defaultReminderTick }},
		{"negative reminder tick", "REMINDER_TICK", "-5s", func(c config) bool { return c.ReminderTick == defaultReminderTick }},
		{"zero water goal", "BASE_WATER_GOAL_L", "0", func(c config) bool { return c.BaseWaterGoalL == defaultBaselineWaterL }},
		{"malformed water goal", "BASE_WATER_GOAL_L", "lots", func(c config) bool { return c.BaseWaterGoalL == defaultBaselineWaterL }},
		{"malformed bool", "AUTO_MIGRATE", "sure", func(c config) bool { return !c.AutoMigrate }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("DB_URL", "postgres://db/nutri")
			t.Setenv(tc.key, tc.value)
			cfg, err := loadConfig()
			require.NoError(t, err)
			assert.True(t, tc.check(cfg), "%s=%q produced %+v", tc.key, tc.value, cfg)
		})
	}
}
