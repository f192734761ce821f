package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var migrationFile = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

type migrationFileInfo struct {
	version string
	name    string
}

// scan lists the .sql files at the root of fsys ordered by version. Names
// that do not follow <version>_<slug>.sql and repeated versions are errors.
func scan(fsys fs.FS) ([]migrationFileInfo, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	files := make([]migrationFileInfo, 0, len(names))
	owners := make(map[string]string, len(names))
	for _, name := range names {
		m := migrationFile.FindStringSubmatch(path.Base(name))
		if m == nil {
			return nil, fmt.Errorf("migration %q: expected <YYYYMMDDHHMMSS>_<name>.sql", name)
		}
		if prev, dup := owners[m[1]]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %s", prev, name, m[1])
		}
		owners[m[1]] = name
		files = append(files, migrationFileInfo{version: m[1], name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// ValidateDir checks naming, version uniqueness and goose annotations for
// every migration in dir. All annotation problems are reported together.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("migrations dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	return validateFS(os.DirFS(dir))
}

func validateFS(fsys fs.FS) error {
	files, err := scan(fsys)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found")
	}

	var errs error
	for _, f := range files {
		raw, err := fs.ReadFile(fsys, f.name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %s: %w", f.name, err))
			continue
		}
		errs = multierr.Append(errs, checkAnnotations(f.name, string(raw)))
	}
	return errs
}

func checkAnnotations(name, body string) error {
	var errs error
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		errs = multierr.Append(errs, fmt.Errorf("%s: missing -- +goose Up", name))
	case down < 0:
		errs = multierr.Append(errs, fmt.Errorf("%s: missing -- +goose Down", name))
	case down < up:
		errs = multierr.Append(errs, fmt.Errorf("%s: Down section precedes Up", name))
	}
	begins := strings.Count(body, "-- +goose StatementBegin")
	ends := strings.Count(body, "-- +goose StatementEnd")
	if begins != ends {
		errs = multierr.Append(errs, fmt.Errorf("%s: %d StatementBegin vs %d StatementEnd", name, begins, ends))
	}
	return errs
}
