// CLI tool to apply or inspect the embedded goose migrations.
// Usage: go run ./cmd/migrate [-cmd up|down|status]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"lg/nutri-track-api/migrations"
)

func main() {
	command := flag.String("cmd", "up", "goose command: up, down or status")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	// .env is optional; the environment may already carry DB_URL.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("load .env", zap.Error(err))
	}
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		logger.Fatal("DB_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal("set dialect", zap.Error(err))
	}

	switch *command {
	case "up":
		err = goose.UpContext(ctx, db, ".")
	case "down":
		err = goose.DownContext(ctx, db, ".")
	case "status":
		err = goose.StatusContext(ctx, db, ".")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want up, down or status)\n", *command)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("migrate", zap.String("cmd", *command), zap.Error(err))
	}
	logger.Info("migrate done", zap.String("cmd", *command))
}
