package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alcoveio/alcove/assets"
	"github.com/alcoveio/alcove/internal/logging"
	"github.com/alcoveio/alcove/internal/relay"
	"github.com/alcoveio/alcove/internal/scripting"
	"github.com/alcoveio/alcove/internal/workbench/store"
)

var serveListen string

const (
	serveHeaderTimeout = 10 * time.Second
	serveStopTimeout   = 5 * time.Second
	statePurgeInterval = 6 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extension host",
	Long: `Run the extension host: load scripted extensions, open the channel
endpoint, and serve webview views to a connecting workbench.

Extensions are .js files loaded from the extensions directory. When the
directory is empty, a built-in welcome extension is loaded instead so
the host always has at least one view type to offer.

Examples:
  alcove serve                         # listen per config (loopback)
  alcove serve --listen 127.0.0.1:0    # pick a free port
  alcove serve --listen unix:/tmp/alcove.sock`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "channel address, host:port or unix:PATH (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}
	cfg := app.Config

	listen := cfg.Listen
	if serveListen != "" {
		listen = serveListen
	}

	// Serving gets a real console logger; the shared CLI logger stays quiet.
	logger := logging.New(logging.Config{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		TimeFormat: "15:04:05",
		File:       cfg.Logging.File,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, logger)

	server, err := relay.NewServer(relay.ServerConfig{
		RequireToken: cfg.Auth.RequireToken,
		CallTimeout:  cfg.Channel.CallTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create channel server: %w", err)
	}

	engine := scripting.NewEngine(server.ViewHost(), scripting.Options{
		CallTimeout: cfg.Channel.ResolveTimeout,
	}, logger)
	defer func() { _ = engine.Close(context.Background()) }()

	loaded, err := engine.LoadDir(ctx, cfg.Extensions.Dir, cfg.Extensions.Allow)
	if err != nil {
		return fmt.Errorf("load extensions from %s: %w", cfg.Extensions.Dir, err)
	}
	if loaded == 0 {
		logger.Info().Str("dir", cfg.Extensions.Dir).Msg("no extensions found, loading built-in welcome extension")
		if err := engine.LoadScript(ctx, assets.WelcomeExtensionName, assets.WelcomeExtension); err != nil {
			return fmt.Errorf("load welcome extension: %w", err)
		}
	}

	listener, err := relay.Listen(listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listen, err)
	}

	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: serveHeaderTimeout,
	}

	logger.Info().
		Str("addr", listener.Addr().String()).
		Strs("extensions", engine.Extensions()).
		Msg("extension host listening")
	if cfg.Auth.RequireToken {
		logger.Info().Str("token", server.AuthToken()).Msg("channel requires session token")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve channel: %w", serveErr)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveStopTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.State.RetentionDays > 0 {
		g.Go(func() error {
			purgeStaleState(gctx, app.Store(), cfg.State.RetentionDays, logger)
			return nil
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("extension host stopped")
	return nil
}

// purgeStaleState drops persisted view state past the retention window, once
// at startup and then on a slow ticker.
func purgeStaleState(ctx context.Context, st *store.Store, retentionDays int, logger zerolog.Logger) {
	ticker := time.NewTicker(statePurgeInterval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		n, err := st.PurgeOlderThan(ctx, cutoff)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			logger.Warn().Err(err).Msg("state purge failed")
		case n > 0:
			logger.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("stale view state removed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
