package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// dbCommands run goose against the settlement schema. reset and redo drop data
// and are refused in prod.
var dbCommands = map[string]struct {
	destructive bool
}{
	"up":      {},
	"down":    {destructive: true},
	"status":  {},
	"version": {},
	"redo":    {destructive: true},
	"reset":   {destructive: true},
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|redo|reset|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "goose migrations directory (empty uses the embedded migrations)")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only and must not need a full config.
	switch opts.cmd {
	case "create":
		exitOn(runCreate(opts))
		return
	case "validate":
		exitOn(migrate.ValidateDir(opts.dir))
		fmt.Println("migration validation passed")
		return
	}

	spec, ok := dbCommands[opts.cmd]
	if !ok {
		exitOn(fmt.Errorf("unknown -cmd value %q", opts.cmd))
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if spec.destructive && cfg.App.IsProd() {
		exitOn(fmt.Errorf("-cmd=%s is disabled in prod", opts.cmd))
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")
	if err := runDB(ctx, sqlDB, opts, logg); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func runCreate(opts options) error {
	if opts.name == "" {
		return errors.New("missing -name for create")
	}
	target := opts.dir
	if target == "" {
		target = migrate.DefaultDir
	}
	path, err := migrate.CreateSQLMigration(target, opts.name)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	fmt.Println("created migration:", path)
	return nil
}

func runDB(ctx context.Context, sqlDB *sql.DB, opts options, logg *logger.Logger) error {
	runner, err := migrate.NewRunner(sqlDB, opts.dir, logg)
	if err != nil {
		return err
	}
	if opts.cmd == "version" {
		if opts.version == "" {
			return errors.New("missing -version for version command")
		}
		return runner.To(ctx, opts.version)
	}
	return runner.Exec(ctx, opts.cmd)
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
