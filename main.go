package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional in deployed environments.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, cfg.DBURL); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
	}

	pool, err := newDBPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	var publisher reminderPublisher = logReminderPublisher{log: logger}
	if cfg.RedisAddr != "" {
		rp, err := newRedisReminderPublisher(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			logger.Warn("redis unavailable, reminders go to the log", zap.Error(err))
		} else {
			defer rp.Close()
			publisher = rp
		}
	}

	clock := systemClock{}
	scheduler := newReminderScheduler(clock, publisher, logger)
	h := &Handler{
		db:        pool,
		log:       logger,
		clock:     clock,
		meals:     NewMealService(newPGMealRepo(pool), clock, logger),
		profiles:  NewProfileService(newPGProfileRepo(pool), logger),
		water:     NewWaterService(newPGWaterRepo(pool), cfg.BaseWaterGoalL, logger),
		reminders: NewNotificationService(newPGNotificationRepo(pool), scheduler, logger),
		estimator: newNutritionEstimator(cfg, logger),
	}

	if n, err := h.reminders.RescheduleAll(ctx); err != nil {
		logger.Error("reschedule reminders", zap.Error(err))
	} else {
		logger.Info("reminders scheduled", zap.Int("count", n))
	}

	// Resident meal collections are dropped at local midnight so the next
	// read refetches.
	watcher := newDayWatcher(clock, time.Local, cfg.DayCheckInterval, logger)
	watcher.OnChange(func(_, _ DayKey) { h.meals.Invalidate() })
	go watcher.Run(ctx)
	go scheduler.Run(ctx, cfg.ReminderTick)

	if cfg.production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(recoverer(logger), requestLogger(logger))
	// Trust no proxies: ClientIP() uses RemoteAddr directly.
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	h.registerRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.AppEnv))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
		h.meals.Wait()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

// newLogger builds a production JSON logger in production and a
// human-readable one elsewhere.
func newLogger(cfg config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
