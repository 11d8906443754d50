// Package cli wires shared dependencies for the alcove commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alcoveio/alcove/internal/build"
	"github.com/alcoveio/alcove/internal/cli/styles"
	"github.com/alcoveio/alcove/internal/config"
	"github.com/alcoveio/alcove/internal/logging"
	"github.com/alcoveio/alcove/internal/workbench/store"
)

// App holds CLI dependencies.
type App struct {
	Config    *config.Config
	Theme     *styles.Theme
	BuildInfo build.Info

	db    *sql.DB
	store *store.Store

	// Context with logger
	ctx context.Context
}

// NewApp creates a new CLI application with all dependencies.
func NewApp() (*App, error) {
	const dataDirPerm = 0o755

	cfg := loadConfig()
	theme := styles.NewTheme()

	// Quiet logger by default; commands that serve traffic build their own.
	logLevel := cfg.Logging.Level
	if envLevel := os.Getenv("ALCOVE_LOG_LEVEL"); envLevel != "" {
		logLevel = envLevel
	}
	logger := logging.NewFromConfigValues(logLevel, cfg.Logging.Format)
	ctx := logging.WithContext(context.Background(), logger)

	// The fallback config leaves derived paths empty; resolve them per XDG.
	dbFile := cfg.Database.Path
	if dbFile == "" {
		var err error
		dbFile, err = config.GetDatabaseFile()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		cfg.Database.Path = dbFile
	}
	if cfg.Extensions.Dir == "" {
		extDir, err := config.GetExtensionsDir()
		if err != nil {
			return nil, fmt.Errorf("resolve extensions dir: %w", err)
		}
		cfg.Extensions.Dir = extDir
	}

	if err := os.MkdirAll(filepath.Dir(dbFile), dataDirPerm); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := store.NewConnection(ctx, dbFile)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Debug().Str("db_path", dbFile).Msg("database connected")

	return &App{
		Config: cfg,
		Theme:  theme,
		db:     db,
		store:  store.New(db),
		ctx:    ctx,
	}, nil
}

// Close releases all resources.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ctx returns the app context carrying the logger.
func (a *App) Ctx() context.Context {
	return a.ctx
}

// Store returns the view-state store.
func (a *App) Store() *store.Store {
	return a.store
}

// loadConfig loads configuration from standard locations.
func loadConfig() *config.Config {
	mgr, err := config.NewManager()
	if err != nil {
		// Return default config if manager fails
		return config.DefaultConfig()
	}

	if err := mgr.Load(); err != nil {
		// Return default config if loading fails
		return config.DefaultConfig()
	}

	return mgr.Get()
}
