package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/farmlink/farmlink-backend/pkg/logger"
)

// DefaultDir is where the SQL migrations live relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

// Commands accepted by Run.
const (
	CommandUp     = "up"
	CommandDown   = "down"
	CommandRedo   = "redo"
	CommandStatus = "status"
)

func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("migrations dir is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider for %q: %w", dir, err)
	}
	return provider, nil
}

// Run applies command against the migrations in dir and logs one line per
// migration touched.
func Run(ctx context.Context, db *sql.DB, dir, command string, logg *logger.Logger) error {
	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}

	switch command {
	case CommandUp:
		results, err := provider.Up(ctx)
		logResults(ctx, logg, results...)
		return wrap(command, err)
	case CommandDown:
		result, err := provider.Down(ctx)
		logResults(ctx, logg, result)
		return wrap(command, err)
	case CommandRedo:
		down, err := provider.Down(ctx)
		logResults(ctx, logg, down)
		if err != nil {
			return wrap(command, err)
		}
		up, err := provider.UpByOne(ctx)
		logResults(ctx, logg, up)
		return wrap(command, err)
	case CommandStatus:
		statuses, err := provider.Status(ctx)
		if err != nil {
			return wrap(command, err)
		}
		for _, st := range statuses {
			if st == nil || st.Source == nil {
				continue
			}
			fields := map[string]any{
				"version": st.Source.Version,
				"path":    st.Source.Path,
				"state":   string(st.State),
			}
			if !st.AppliedAt.IsZero() {
				fields["applied_at"] = st.AppliedAt
			}
			logg.Info(logg.WithFields(ctx, fields), "migration status")
		}
		return nil
	default:
		return fmt.Errorf("unsupported migrate command %q", command)
	}
}

// MigrateTo moves the schema up or down until target (YYYYMMDDHHMMSS) is the
// current version.
func MigrateTo(ctx context.Context, db *sql.DB, dir, target string, logg *logger.Logger) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != len(versionLayout) {
		return fmt.Errorf("invalid version %q, expected %s digits", target, versionLayout)
	}

	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}

	switch {
	case current == version:
		logg.Info(logg.WithField(ctx, "version", version), "schema already at target version")
		return nil
	case current < version:
		results, err := provider.UpTo(ctx, version)
		logResults(ctx, logg, results...)
		return wrap("up-to", err)
	default:
		results, err := provider.DownTo(ctx, version)
		logResults(ctx, logg, results...)
		return wrap("down-to", err)
	}
}

func logResults(ctx context.Context, logg *logger.Logger, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		entry := logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"path":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		if res.Error != nil {
			logg.Error(entry, "migration failed", res.Error)
			continue
		}
		logg.Info(entry, "migration applied")
	}
}

func wrap(command string, err error) error {
	if err == nil {
		return nil
	}
	// An up with nothing pending is not a failure.
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
