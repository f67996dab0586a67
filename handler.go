package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// dbPool is the slice of a Postgres pool that handlers and repositories use.
// Implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	db        dbPool
	log       *zap.Logger
	clock     Clock
	meals     *MealService
	profiles  *ProfileService
	water     *WaterService
	reminders *NotificationService
	estimator *nutritionEstimator
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
func queryOne[T any](pool dbPool, ctx context.Context, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("query: %w", err)
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return result, fmt.Errorf("scan: %w", err)
	}
	return result, nil
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
// Returns an empty (non-nil) slice when nothing matches.
func queryMany[T any](pool dbPool, ctx context.Context, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if results == nil {
		results = []T{}
	}
	return results, nil
}

/* ─── Request helpers ─────────────────────────────────────────────────── */

// requestLocation resolves the viewer's timezone from the tz query param or
// the X-Timezone header. Writes a 400 and returns ok=false when it is unknown.
func requestLocation(c *gin.Context) (*time.Location, bool) {
	name := c.Query("tz")
	if name == "" {
		name = c.GetHeader("X-Timezone")
	}
	loc, err := loadLocation(name)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return loc, true
}

// requestDay parses the date query param, defaulting to today in loc.
func (h *Handler) requestDay(c *gin.Context, loc *time.Location) (DayKey, bool) {
	s := c.Query("date")
	if s == "" {
		return todayIn(h.clock, loc), true
	}
	day, err := parseDayKey(s)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return DayKey{}, false
	}
	return day, true
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// newDBPool creates a connection pool. A pool (not a single conn) survives
// the provider closing idle connections.
func newDBPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Simple protocol avoids "cached plan must not change result type" errors
	// from server-side prepared statement caches after migrations.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.GET("/healthz", h.healthz)
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/meals", h.listMeals)
	api.POST("/meals", h.createMeal)
	api.PUT("/meals/:id", h.updateMeal)
	api.DELETE("/meals/:id", h.deleteMeal)
	api.GET("/meals/daily", h.getDailySummary)
	api.GET("/meals/week-summary", h.getWeekSummary)
	api.POST("/meals/estimate", h.estimateMeal)
	api.POST("/meals/estimate-image", h.estimateMealImage)

	api.GET("/profile", h.getProfile)
	api.PUT("/profile", h.putProfile)
	api.PATCH("/profile", h.patchProfile)

	api.GET("/water", h.getWater)
	api.GET("/water/history", h.getWaterHistory)
	api.POST("/water/intake", h.addWaterIntake)
	api.POST("/water/supplements", h.addSupplement)
	api.POST("/water/supplements/toggle", h.toggleSupplement)
	api.POST("/water/detect", h.detectSupplements)
	api.POST("/water/reset", h.resetWater)

	api.GET("/notifications/preferences", h.getNotificationPreferences)
	api.PUT("/notifications/preferences", h.putNotificationPreference)
	api.POST("/notifications/preferences/:type/toggle", h.toggleNotificationPreference)
}

// healthz reports liveness and, when a DB is wired, database reachability.
func (h *Handler) healthz(c *gin.Context) {
	if h.db != nil {
		if err := h.db.QueryRow(c, "SELECT 1").Scan(new(int)); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			apiError(c, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
