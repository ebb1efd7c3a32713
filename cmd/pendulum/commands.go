package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/wind.report/internal/db"
	"github.com/banshee-data/wind.report/internal/security"
)

// runSubcommand handles the database maintenance commands. Output goes to
// out unless an export file is named.
func runSubcommand(ctx context.Context, args []string, dbPath string, out io.Writer) error {
	if dbPath == "" {
		return errors.New("a database is required: pass --db or set db_path in the config")
	}

	switch args[0] {
	case "migrate":
		return db.RunMigrateCommand(args[1:], dbPath)

	case "sessions":
		database, err := db.NewDB(dbPath)
		if err != nil {
			return err
		}
		defer database.Close()

		sessions, err := database.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			ended := "open"
			if !s.Ended.IsZero() {
				ended = s.Ended.Sub(s.Started).Round(time.Second).String()
			}
			fmt.Fprintf(out, "%s  %s  %-5s %-4s %-6s %s\n",
				s.ID, s.Started.Format(time.RFC3339), s.Output, s.Units, s.Model, ended)
		}
		return nil

	case "export":
		if len(args) < 2 {
			return errors.New("usage: pendulum export <session-id> [out.csv]")
		}
		if len(args) > 2 {
			if err := security.ValidateOutputPath(args[2]); err != nil {
				return err
			}
		}
		database, err := db.NewDB(dbPath)
		if err != nil {
			return err
		}
		defer database.Close()

		w := out
		if len(args) > 2 {
			f, err := os.Create(args[2])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[2], err)
			}
			defer f.Close()
			w = f
		}
		n, err := database.ExportSessionCSV(ctx, args[1], w)
		if err != nil {
			return err
		}
		if len(args) > 2 {
			fmt.Fprintf(out, "Exported %d samples to %s\n", n, args[2])
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q (expected migrate, sessions or export)", args[0])
	}
}
