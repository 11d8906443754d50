package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alcoveio/alcove/internal/cli/styles"
	"github.com/alcoveio/alcove/internal/relay"
)

var viewsAddr string

const viewsRequestTimeout = 5 * time.Second

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Show registered view types and live views of a running host",
	Long: `Query a running extension host and show its registered view types,
the connected workbench session, and the currently resolved views.

The host address is taken from the config unless --addr is given.`,
	RunE: runViews,
}

func init() {
	rootCmd.AddCommand(viewsCmd)

	viewsCmd.Flags().StringVar(&viewsAddr, "addr", "", "host channel address, host:port or unix:PATH (overrides config)")
}

func runViews(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	addr := app.Config.Listen
	if viewsAddr != "" {
		addr = viewsAddr
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), viewsRequestTimeout)
	defer cancel()

	status, err := fetchStatus(ctx, addr)
	if err != nil {
		return fmt.Errorf("query host at %s: %w", addr, err)
	}

	fmt.Println(renderStatus(app.Theme, status))
	return nil
}

// fetchStatus GETs /status from a host listening on a loopback port or a
// unix socket.
func fetchStatus(ctx context.Context, addr string) (*relay.Status, error) {
	client := &http.Client{}
	url := "http://" + addr + "/status"

	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		dialer := &net.Dialer{}
		client.Transport = &http.Transport{
			DialContext: func(dialCtx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(dialCtx, "unix", path)
			},
		}
		// Host is ignored when dialing the socket directly.
		url = "http://alcove/status"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var status relay.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

// renderStatus formats a host status snapshot for the terminal.
func renderStatus(theme *styles.Theme, status *relay.Status) string {
	var b strings.Builder

	if status.Connected {
		since := ""
		if !status.ConnectedAt.IsZero() {
			since = theme.Subtle.Render(fmt.Sprintf("  since %s", status.ConnectedAt.Local().Format("15:04:05")))
		}
		b.WriteString(fmt.Sprintf("%s %s %s%s\n",
			theme.SuccessStyle.Render(styles.IconPlay),
			theme.Title.Render("Workbench connected"),
			theme.Subtle.Render(status.SessionID),
			since,
		))
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n",
			theme.Subtle.Render(styles.IconStop),
			theme.Subtle.Render("No workbench connected"),
		))
	}
	b.WriteString("\n")

	b.WriteString(theme.Title.Render("Registered view types:"))
	b.WriteString("\n")
	if len(status.Registrations) == 0 {
		b.WriteString(theme.Subtle.Render("  (none)"))
		b.WriteString("\n")
	}
	for _, reg := range status.Registrations {
		retain := ""
		if reg.RetainContextWhenHidden {
			retain = "  " + theme.BadgeMuted.Render("retain")
		}
		ext := ""
		if reg.Extension != "" {
			ext = theme.Subtle.Render("  " + reg.Extension)
		}
		b.WriteString(fmt.Sprintf("  %s %s%s%s\n",
			theme.Normal.Render(styles.IconExtension),
			theme.Highlight.Render(reg.ViewType),
			ext,
			retain,
		))
	}
	b.WriteString("\n")

	b.WriteString(theme.Title.Render("Live views:"))
	b.WriteString("\n")
	if len(status.Views) == 0 {
		b.WriteString(theme.Subtle.Render("  (none)"))
		b.WriteString("\n")
	}
	for _, view := range status.Views {
		visibility := theme.Subtle.Render("hidden")
		if view.Visible {
			visibility = theme.SuccessStyle.Render("visible")
		}
		title := view.Title
		if title == "" {
			title = "-"
		}
		b.WriteString(fmt.Sprintf("  %s %s  %s  %s  %s\n",
			theme.Normal.Render(styles.IconView),
			theme.Highlight.Render(view.ViewType),
			theme.Normal.Render(title),
			visibility,
			theme.Subtle.Render(shortHandle(view.Handle)),
		))
	}

	return strings.TrimRight(b.String(), "\n")
}

// shortHandle trims a UUID handle down to its first group for display.
func shortHandle(handle string) string {
	if idx := strings.IndexByte(handle, '-'); idx > 0 {
		return handle[:idx]
	}
	return handle
}
