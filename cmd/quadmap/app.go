package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"quadmap/internal/config"
	"quadmap/internal/metrics"
	"quadmap/internal/router"
)

type appOptions struct {
	configPath   string
	repositories string
	logLevel     string
}

// app is the state every subcommand runs with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	router   *router.Router
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func newApp(opts *appOptions, stderr io.Writer) (*app, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if opts.configPath != "" {
		cfg, path, err = config.LoadFromPath(opts.configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.repositories != "" {
		cfg.Repositories = opts.repositories
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	if path != "" {
		logger.Debug("loaded config", "path", path, "summary", cfg.Summary())
	}

	desc, err := descriptorFor(cfg)
	if err != nil {
		return nil, err
	}
	r, err := router.New(desc, router.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, router: r}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics, err = metrics.New(a.registry, cfg.Metrics.Namespace)
		if err != nil {
			r.Close()
			return nil, err
		}
	}
	return a, nil
}

// expand turns an identity given without a scheme into a full IRI under the
// configured namespace.
func (a *app) expand(id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return a.cfg.Namespace + id
}

// descriptorFor loads the configured repository descriptor, or describes a
// single SQLite store owning everything when none is configured.
func descriptorFor(cfg *config.Config) (*router.Descriptor, error) {
	if cfg.Repositories == "" {
		return &router.Descriptor{
			Default: cfg.DefaultStore,
			Stores:  []router.Store{{Name: cfg.DefaultStore, Index: "sqlite:" + cfg.Database.Path}},
		}, nil
	}

	desc, err := router.LoadDescriptor(cfg.Repositories)
	if err != nil {
		return nil, fmt.Errorf("repository descriptor %s: %w", cfg.Repositories, err)
	}
	if desc.Default == "" {
		for _, s := range desc.Stores {
			if s.Name == cfg.DefaultStore {
				desc.Default = s.Name
			}
		}
	}
	return desc, nil
}

func (a *app) close() {
	if err := a.router.Close(); err != nil {
		a.logger.Warn("failed to close stores", "error", err)
	}
	if a.registry != nil && a.cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
			a.logger.Warn("failed to write metrics", "path", a.cfg.Metrics.Textfile, "error", err)
		}
	}
}

// withApp wraps a subcommand body with app setup and teardown.
func withApp(opts *appOptions, run func(a *app, out io.Writer, args []string) error) func(cmdOut, cmdErr io.Writer, args []string) error {
	return func(cmdOut, cmdErr io.Writer, args []string) error {
		a, err := newApp(opts, cmdErr)
		if err != nil {
			return err
		}
		defer a.close()
		return run(a, cmdOut, args)
	}
}
