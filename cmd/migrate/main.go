// Command migrate applies or rolls back execution-bridge schema migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitaliisemenov/execution-bridge/internal/config"
	"github.com/vitaliisemenov/execution-bridge/internal/database"
	"github.com/vitaliisemenov/execution-bridge/internal/database/postgres"
	"github.com/vitaliisemenov/execution-bridge/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml")
		down       = flag.Int("down", 0, "roll back N migration steps instead of applying pending ones")
		status     = flag.Bool("status", false, "print migration status instead of applying")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	pool := postgres.NewPostgresPool(&postgres.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.Username,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConnections,
		MinConns:        cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}, log)

	ctx := context.Background()
	if err := pool.Connect(ctx); err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	switch {
	case *status:
		err = database.MigrationStatus(ctx, pool, log)
	case *down > 0:
		err = database.RunMigrationsDown(ctx, pool, *down, log)
	default:
		err = database.RunMigrations(ctx, pool, log)
	}

	if err != nil {
		log.Error("migration command failed", "error", err)
		os.Exit(1)
	}
}
