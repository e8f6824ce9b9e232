// Command migrate applies or rolls back the promotion schema.
//
//	migrate up | down | version | to <n>
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"ms-promotion/internal/config"
	"ms-promotion/internal/database"
	"ms-promotion/internal/database/migrations"
	"ms-promotion/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	log := logger.New(os.Stdout)
	_ = godotenv.Load()
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|version|to <n>")
		os.Exit(2)
	}

	bunDB, err := database.OpenPostgres(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.Migrations.Dir}, log)
	defer runner.Close()

	if err := execute(runner, os.Args[1:], log); err != nil {
		runner.Close()
		log.Fatal("MIGRATE", err.Error())
	}
}

func execute(runner *migrations.Runner, args []string, log *logger.Logger) error {
	switch args[0] {
	case "up":
		if err := runner.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := runner.MigrateDown(); err != nil {
			return err
		}
	case "to":
		if len(args) < 2 {
			return fmt.Errorf("to: missing version")
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("to: invalid version %q: %w", args[1], err)
		}
		if err := runner.MigrateTo(uint(version)); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	version, dirty, err := runner.Version()
	if err != nil {
		return err
	}
	log.Info("MIGRATE", fmt.Sprintf("Schema version %d (dirty=%t)", version, dirty))
	return nil
}
