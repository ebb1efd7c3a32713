package db

import (
	"errors"
	"fmt"
	"log"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp()
		return errors.New("missing migrate action")
	}

	// Open database connection without running migrations so the
	// subcommand is in charge of the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		return logStatus(database)

	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		return logStatus(database)

	case "status":
		return logStatus(database)

	case "force":
		if len(args) < 2 {
			return errors.New("usage: migrate force <version_number>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(version); err != nil {
			return err
		}
		return logStatus(database)

	default:
		PrintMigrateHelp()
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func logStatus(database *DB) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	log.Printf("Schema version %d of %d (dirty: %v)", version, latest, dirty)
	return nil
}

// PrintMigrateHelp prints usage information for the migrate command.
func PrintMigrateHelp() {
	fmt.Println(`Usage: pendulum migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show the current schema version
  force <version>    Force the recorded version (recover from a dirty state)`)
}
