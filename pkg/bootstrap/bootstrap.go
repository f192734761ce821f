// Package bootstrap holds the startup and shutdown steps shared by the
// long-running binaries.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/farmlink/farmlink-backend/pkg/config"
	"github.com/farmlink/farmlink-backend/pkg/db"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/migrate"
	"github.com/farmlink/farmlink-backend/pkg/redis"
)

// Process is one running binary: its config, its logger and the resources to
// release on the way out.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Start loads .env (when present) and the environment config, then builds the
// process logger.
func Start(name string) (*Process, error) {
	envErr := godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: load config: %w", name, err)
	}
	cfg.Service.Kind = name

	p := &Process{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}
	if envErr != nil {
		p.Logger.Debug(context.Background(), ".env file not found, relying on environment")
	}
	return p, nil
}

// OnClose registers fn to run during Close. Resources close in reverse order
// of registration.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, close: fn})
}

// Close releases registered resources, logging failures. It is safe to call
// more than once.
func (p *Process) Close() {
	ctx := context.Background()
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.close(); err != nil {
			p.Logger.Error(p.Logger.WithField(ctx, "resource", c.name), "error closing resource", err)
		}
	}
	p.closers = nil
}

// Exit logs err, releases resources and terminates with status 1.
func (p *Process) Exit(msg string, err error) {
	p.Logger.Error(context.Background(), msg, err)
	p.Close()
	os.Exit(1)
}

// Database connects to the configured database and, in dev with auto-migrate
// on, applies pending migrations.
func (p *Process) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	p.OnClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, p.Config, p.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	p.OnClose("redis", client.Close)
	return client, nil
}

// SignalContext is canceled on SIGINT or SIGTERM. Its log entries carry the
// environment, the service kind and fields.
func (p *Process) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"env":          p.Config.App.Env,
		"service_kind": p.Name,
	})
	if len(fields) > 0 {
		ctx = p.Logger.WithFields(ctx, fields)
	}
	return ctx, stop
}
