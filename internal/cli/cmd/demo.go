package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/alcoveio/alcove/assets"
	"github.com/alcoveio/alcove/internal/cli/styles"
	"github.com/alcoveio/alcove/internal/logging"
	"github.com/alcoveio/alcove/internal/relay"
	"github.com/alcoveio/alcove/internal/scripting"
	"github.com/alcoveio/alcove/internal/workbench"
)

const (
	demoTimeout     = 10 * time.Second
	demoReplyWindow = 2 * time.Second
)

var demoCmd = &cobra.Command{
	Use:   "demo [view-type]",
	Short: "Run host and workbench in-process and open a view",
	Long: `Run the whole system end to end inside one process: start the extension
host on an ephemeral loopback port, connect a workbench, open a view, and
print what the extension rendered into it.

Extensions load from the configured extensions directory; when it is
empty the built-in welcome extension is used. Without an argument the
first registered view type is opened.

Examples:
  alcove demo                  # open the first registered view type
  alcove demo alcove.welcome   # open a specific view type`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}
	cfg := app.Config
	theme := app.Theme

	ctx, cancel := context.WithTimeout(cmd.Context(), demoTimeout)
	defer cancel()

	// Quiet logger: the demo narrates through styled output instead.
	logger := logging.NewFromConfigValues("error", cfg.Logging.Format)
	ctx = logging.WithContext(ctx, logger)

	// Extension host side.
	server, err := relay.NewServer(relay.ServerConfig{CallTimeout: cfg.Channel.CallTimeout}, logger)
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
		if err := engine.LoadScript(ctx, assets.WelcomeExtensionName, assets.WelcomeExtension); err != nil {
			return fmt.Errorf("load welcome extension: %w", err)
		}
	}

	listener, err := relay.Listen("127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	httpServer := &http.Server{Handler: server.Handler(), ReadHeaderTimeout: serveHeaderTimeout}
	go func() { _ = httpServer.Serve(listener) }()
	defer func() { _ = httpServer.Close() }()

	addr := listener.Addr().String()
	fmt.Println(theme.Subtle.Render("Extension host listening on " + addr))

	// Workbench side.
	wb := workbench.New(app.Store(), logger)
	channelURL := "ws://" + addr + relay.ChannelPath
	if err := wb.Connect(ctx, channelURL, "", cfg.Channel.CallTimeout); err != nil {
		return fmt.Errorf("connect workbench: %w", err)
	}
	go func() { _ = wb.Run(context.Background()) }()
	defer func() { _ = wb.Close() }()

	viewType, err := pickViewType(ctx, wb, args)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("%s %s\n", theme.Title.Render("Opening"), theme.Highlight.Render(viewType))

	session, err := wb.OpenView(ctx, viewType)
	if err != nil {
		return fmt.Errorf("open view %s: %w", viewType, err)
	}

	printSession(theme, session)

	// One message round trip, if the extension answers.
	ping := map[string]string{"type": "ping"}
	if err := session.Post(ctx, ping); err == nil {
		fmt.Println()
		fmt.Printf("  %s %s\n", theme.Subtle.Render("sent"), theme.Normal.Render(`{"type":"ping"}`))
		select {
		case reply, ok := <-session.Messages():
			if ok {
				fmt.Printf("  %s %s\n", theme.Subtle.Render("got "), theme.SuccessStyle.Render(compactJSON(reply)))
			}
		case <-time.After(demoReplyWindow):
			fmt.Println(theme.Subtle.Render("  (no reply)"))
		}
	}

	if err := session.Close(ctx); err != nil {
		return fmt.Errorf("close view: %w", err)
	}

	fmt.Println()
	fmt.Println(theme.Subtle.Render("View closed, host stopped."))
	return nil
}

// pickViewType returns the requested view type, or the first registered one.
// Registrations replay asynchronously after connect, so poll briefly.
func pickViewType(ctx context.Context, wb *workbench.Workbench, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if descriptors := wb.Descriptors(); len(descriptors) > 0 {
			return descriptors[0].ViewType, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("no view types registered: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// printSession shows what the extension put into the view during resolve.
func printSession(theme *styles.Theme, session *workbench.ViewSession) {
	rows := [][2]string{
		{"handle", shortHandle(session.Handle())},
		{"title", orDash(session.Title())},
		{"description", orDash(session.Description())},
	}

	if badge := session.Badge(); badge != nil {
		rows = append(rows, [2]string{"badge", fmt.Sprintf("%d (%s)", badge.Value, badge.Tooltip)})
	}

	visibility := "hidden"
	if session.Visible() {
		visibility = "visible"
	}
	rows = append(rows, [2]string{"visibility", visibility})

	if html := session.HTML(); html != "" {
		rows = append(rows, [2]string{"html", formatSize(int64(len(html)))})
	}
	if state := session.State(); len(state) > 0 && string(state) != "null" {
		rows = append(rows, [2]string{"state", compactJSON(state)})
	}

	fmt.Println()
	for _, row := range rows {
		fmt.Printf("  %s %s\n",
			theme.Subtle.Render(fmt.Sprintf("%-12s", row[0])),
			theme.Normal.Render(row[1]),
		)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// compactJSON renders a raw payload on one line for display.
func compactJSON(raw json.RawMessage) string {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}
