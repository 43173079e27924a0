package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the on-disk location used by the create and validate commands.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its dialect and base filesystem in package globals.
var gooseMu sync.Mutex

// Embedded exposes the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, embeddedDir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Run executes a goose command against db. An empty dir selects the embedded
// migrations; otherwise the directory is read from disk.
func Run(ctx context.Context, db *sql.DB, dialect, dir, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if command == "" {
		return fmt.Errorf("command is required")
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := prepare(dialect, dir)
	if err != nil {
		return err
	}

	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect, dir, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err = prepare(dialect, dir)
	if err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}

func prepare(dialect, dir string) (string, error) {
	if dialect == "" {
		return "", fmt.Errorf("dialect is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	if dir == "" {
		goose.SetBaseFS(embedded)
		return embeddedDir, nil
	}
	goose.SetBaseFS(nil)
	return dir, nil
}
