// Package cmd provides Cobra CLI commands for alcove.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alcoveio/alcove/internal/build"
	"github.com/alcoveio/alcove/internal/cli"
)

var (
	app       *cli.App
	buildInfo build.Info
	rootCmd   = &cobra.Command{
		Use:   "alcove",
		Short: "Webview view host for scripted extensions",
		Long: `Alcove - an extension host that lends webview views to a workbench.

Extensions register webview view providers by view type; a workbench
connects over a local channel, opens views, and the host resolves them
by running the matching provider. Titles, badges, visibility, HTML and
messages flow both ways; view state persists across opens.

Use 'alcove serve' to run the host, or explore the subcommands for
inspecting configuration, persisted view state, and live views.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip initialization for commands that don't need app context
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}

			var err error
			app, err = cli.NewApp()
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			// Set build info from main.go
			app.BuildInfo = buildInfo
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if app != nil {
				_ = app.Close()
			}
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GetApp returns the initialized app (for use by subcommands).
func GetApp() *cli.App {
	return app
}

// SetBuildInfo sets the build information (called from main.go before Execute).
func SetBuildInfo(info build.Info) {
	buildInfo = info
}
