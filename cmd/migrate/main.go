// Command migrate applies the SQL files under MIGRATIONS_PATH to the ledger
// database.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

// migrator is the part of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Migrate(version uint) error
	Force(version int) error
	Version() (uint, bool, error)
}

var errUsage = errors.New("usage")

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	source := "file://" + env.GetEnv("MIGRATIONS_PATH", "migrations")
	log.Printf("Migrating %s@%s:%s/%s from %s",
		env.GetEnv("DB_USER", ""), env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"), env.GetEnv("DB_NAME", ""), source)

	m, err := migrate.New(source, database.MigrationURL())
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}

	err = run(m, os.Args[1:], os.Stdout)
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		log.Printf("Failed to close migration resources: %v, %v", sourceErr, dbErr)
	}
	if errors.Is(err, errUsage) {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// run executes one command. ErrNoChange is reported, not returned.
func run(m migrator, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "up":
		return report(out, m.Up(), "all migrations applied")

	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := positive(args[1])
			if err != nil {
				return err
			}
			steps = n
		}
		return report(out, m.Steps(-steps), fmt.Sprintf("rolled back %d migration(s)", steps))

	case "goto":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		return report(out, m.Migrate(uint(v)), fmt.Sprintf("now at version %d", v))

	case "force":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force version %d: %w", v, err)
		}
		fmt.Fprintf(out, "forced version %d, dirty flag cleared\n", v)
		return nil

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(out, "no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		if dirty {
			fmt.Fprintf(out, "version %d (dirty, fix the schema and run force %d)\n", version, version)
			return nil
		}
		fmt.Fprintf(out, "version %d\n", version)
		return nil
	}
	return errUsage
}

func report(out io.Writer, err error, done string) error {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		fmt.Fprintln(out, "no change")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintln(out, done)
	return nil
}

func versionArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s: version required: %w", args[0], errUsage)
	}
	return positive(args[1])
}

func positive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid number %q: %w", s, errUsage)
	}
	return n, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: migrate <command>")
	fmt.Fprintln(w, "  up        apply all pending migrations")
	fmt.Fprintln(w, "  down [N]  roll back N migrations (default 1)")
	fmt.Fprintln(w, "  goto V    migrate up or down to version V")
	fmt.Fprintln(w, "  force V   set version V and clear the dirty flag")
	fmt.Fprintln(w, "  status    print the current version")
}
