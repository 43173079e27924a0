package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

// 14-digit timestamp, then a snake_case name.
var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migrations in dir on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys and reports all
// problems at once rather than stopping at the first.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var problems error
	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}

		match := migrationName.FindStringSubmatch(name)
		if match == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: name must look like YYYYMMDDHHMMSS_snake_name.sql", name))
			continue
		}
		if first, dup := versions[match[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, match[1], first))
		} else {
			versions[match[1]] = name
		}

		problems = multierr.Append(problems, checkMarkers(fsys, name))
	}
	return problems
}

// checkMarkers requires both goose sections with Up first.
func checkMarkers(fsys fs.FS, name string) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	body := string(raw)
	up := strings.Index(body, upMarker)
	down := strings.Index(body, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("%s: missing %q", name, upMarker)
	case down < 0:
		return fmt.Errorf("%s: missing %q", name, downMarker)
	case down < up:
		return fmt.Errorf("%s: %q must come before %q", name, upMarker, downMarker)
	}
	return nil
}
