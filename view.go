package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zsprackett/display/internal/config"
	"github.com/zsprackett/display/internal/geometry"
	"github.com/zsprackett/display/internal/persist"
	"github.com/zsprackett/display/internal/placement"
	"github.com/zsprackett/display/internal/tui"
	"github.com/zsprackett/display/internal/viewer"
	"github.com/zsprackett/display/internal/wm"
)

var (
	viewURL       string
	viewTransport string
	viewStore     string
	viewToken     string
	viewSeed      int64
	viewHeadless  bool
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Open a viewer on a display server",
	Long: `Connect to a server's event stream and lay out each pane in the
terminal. Without a terminal on stdout, or with --headless, the viewer
only logs what it receives.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		f := cmd.Flags()
		if f.Changed("url") {
			cfg.Viewer.URL = viewURL
		}
		if f.Changed("transport") {
			cfg.Viewer.Transport = viewTransport
		}
		if f.Changed("store") {
			cfg.Viewer.Store = viewStore
		}
		if f.Changed("token") {
			cfg.Viewer.Token = viewToken
		}
		if f.Changed("seed") {
			cfg.Viewer.Seed = viewSeed
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		headless := viewHeadless || !term.IsTerminal(int(os.Stdout.Fd()))
		return runView(cmd.Context(), cfg, headless)
	},
}

func init() {
	viewCmd.Flags().StringVarP(&viewURL, "url", "u", "", "Server URL")
	viewCmd.Flags().StringVarP(&viewTransport, "transport", "t", "", "Stream transport (sse/ws)")
	viewCmd.Flags().StringVar(&viewStore, "store", "", "Geometry store (sqlite/http/memory)")
	viewCmd.Flags().StringVar(&viewToken, "token", "", "Viewer access token")
	viewCmd.Flags().Int64Var(&viewSeed, "seed", 0, "Placement seed (0 picks one)")
	viewCmd.Flags().BoolVar(&viewHeadless, "headless", false, "Log updates instead of drawing them")
}

// geometryStore picks where pane positions are kept. The returned func
// releases it.
func geometryStore(cfg config.Config) (persist.Adapter, func(), error) {
	scope := cfg.Viewer.Scope
	if scope == "" {
		scope = viewer.Scope(cfg.Viewer.URL)
	}
	switch cfg.Viewer.Store {
	case "memory":
		return persist.NewMemory(), func() {}, nil
	case "http":
		return persist.NewHTTP(cfg.Viewer.URL, scope, cfg.Viewer.Token), func() {}, nil
	case "sqlite":
		store, err := openDB(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return persist.NewSQLite(store, scope), func() { store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Viewer.Store)
}

func runView(parent context.Context, cfg config.Config, headless bool) error {
	if parent == nil {
		parent = context.Background()
	}
	var logger *slog.Logger
	var closeLog func()
	if headless {
		logger, closeLog = initLogging(cfg, "viewer", os.Stderr)
	} else {
		logger, closeLog = initLogging(cfg, "viewer", nil)
	}
	defer closeLog()

	store, release, err := geometryStore(cfg)
	if err != nil {
		return err
	}
	defer release()

	var solver *placement.Solver
	if cfg.Viewer.Seed != 0 {
		solver = placement.NewSeeded(cfg.Viewer.Seed)
	}
	viewport := geometry.Rect{Width: 1280, Height: 800}
	if headless {
		if w, h, err := term.GetSize(int(os.Stderr.Fd())); err == nil {
			viewport = tui.DefaultMetrics.Viewport(w, h)
		}
	}
	mgr := wm.New(wm.NewRegistry(), store, solver, viewport, logger)
	client := viewer.New(viewer.Config{
		URL:       cfg.Viewer.URL,
		Transport: viewer.Transport(cfg.Viewer.Transport),
		Token:     cfg.Viewer.Token,
		Insecure:  cfg.Viewer.Insecure,
	}, mgr, logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !headless {
		return tui.NewApp(mgr, client, cfg.Viewer.URL, logger).Run(ctx)
	}

	mgr.OnStatus(func(s wm.Status) {
		logger.Info("view: status", "status", s, "panes", mgr.Len())
	})
	err = client.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
