package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	statePurgeDays int
	statePurgeAll  bool
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted view state",
	Long: `Inspect and trim the view-state store.

View state is whatever an extension saved through webview setState,
keyed by view type. A workbench hands it back on the next resolve of
the same view type.`,
}

var stateLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List persisted view states",
	RunE:  runStateLs,
}

var statePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove stale view states",
	Long: `Remove persisted view states not updated within the retention window.

The window defaults to state.retention_days from the config. Use --days
to override it, or --all to drop every persisted state.`,
	RunE: runStatePurge,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateLsCmd)
	stateCmd.AddCommand(statePurgeCmd)

	statePurgeCmd.Flags().IntVar(&statePurgeDays, "days", 0, "purge states older than this many days")
	statePurgeCmd.Flags().BoolVar(&statePurgeAll, "all", false, "purge all persisted states")
}

func runStateLs(_ *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	states, err := app.Store().List(app.Ctx())
	if err != nil {
		return fmt.Errorf("list view states: %w", err)
	}

	theme := app.Theme
	if len(states) == 0 {
		fmt.Println(theme.Subtle.Render("No persisted view state."))
		return nil
	}

	fmt.Println(theme.Title.Render("Persisted view states:"))
	fmt.Println()

	// Row format: ViewType | Title | Size | UpdatedAt
	for i := range states {
		s := &states[i]
		title := s.Title
		if title == "" {
			title = "-"
		}
		line := fmt.Sprintf("  %s  %s  %s  %s",
			theme.Highlight.Render(s.ViewType),
			theme.Normal.Render(title),
			theme.Subtle.Render(fmt.Sprintf("(%s)", formatSize(int64(len(s.State))))),
			theme.Subtle.Render(s.UpdatedAt.Local().Format("2006-01-02 15:04:05")),
		)
		fmt.Println(line)
	}

	fmt.Println()
	fmt.Println(theme.Subtle.Render(fmt.Sprintf("%d state(s), database %s", len(states), app.Config.Database.Path)))
	return nil
}

func runStatePurge(_ *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	cutoff, window, err := purgeCutoff(time.Now(), statePurgeDays, statePurgeAll, app.Config.State.RetentionDays)
	if err != nil {
		return err
	}

	n, err := app.Store().PurgeOlderThan(app.Ctx(), cutoff)
	if err != nil {
		return fmt.Errorf("purge view states: %w", err)
	}

	theme := app.Theme
	if n == 0 {
		fmt.Println(theme.Subtle.Render("Nothing to purge " + window))
		return nil
	}
	fmt.Println(theme.SuccessStyle.Render(fmt.Sprintf("Purged %d state(s) %s", n, window)))
	return nil
}

// purgeCutoff resolves the purge window from the flags, falling back to the
// configured retention. Returns the cutoff time and a description for output.
func purgeCutoff(now time.Time, days int, all bool, retentionDays int) (time.Time, string, error) {
	if all {
		// Everything persisted so far was updated before now.
		return now, "(all)", nil
	}

	if days < 0 {
		return time.Time{}, "", fmt.Errorf("--days must be positive, got %d", days)
	}
	if days == 0 {
		days = retentionDays
	}
	if days <= 0 {
		return time.Time{}, "", fmt.Errorf("no retention window: set --days or state.retention_days")
	}

	return now.AddDate(0, 0, -days), fmt.Sprintf("(older than %d days)", days), nil
}

// formatSize formats a byte count in human-readable form.
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
