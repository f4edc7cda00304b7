package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fbromtl/gouvernance-sub001/internal/adp"
	"github.com/fbromtl/gouvernance-sub001/internal/config"
	"github.com/fbromtl/gouvernance-sub001/internal/credential"
	"github.com/fbromtl/gouvernance-sub001/internal/db"
	"github.com/fbromtl/gouvernance-sub001/internal/logging"
	"github.com/fbromtl/gouvernance-sub001/internal/policy"
	"github.com/fbromtl/gouvernance-sub001/internal/session"
	"github.com/fbromtl/gouvernance-sub001/internal/trace"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `adp init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app bundles the stores every command works against.
type app struct {
	cfg      *config.Config
	db       *db.DB
	logger   *slog.Logger
	agents   *credential.Store
	sessions *session.Store
	policies *policy.Store
	traces   *trace.Store
	feed     *trace.Feed
	svc      *adp.Service
}

// openApp loads the config, opens the database and wires the stores.
// Logs go to stderr so stdout stays usable for command output.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.Log)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		db:       database,
		logger:   logger,
		agents:   credential.NewStore(database, logger),
		sessions: session.NewStore(database),
		policies: policy.NewStore(database, logger),
		feed:     trace.NewFeed(),
	}
	a.traces = trace.NewStore(database, logger,
		trace.WithAppendRetries(cfg.Trace.AppendRetries),
		trace.WithVerifyLimit(cfg.Trace.VerifyLimit),
		trace.WithRecentLimit(cfg.Trace.RecentLimit),
		trace.WithPublisher(a.feed),
	)
	a.svc = adp.NewService(adp.Deps{
		Agents:   a.agents,
		Sessions: a.sessions,
		Policies: a.policies,
		Traces:   a.traces,
		Logger:   logger,
	})
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
