package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zsprackett/display/internal/applog"
	"github.com/zsprackett/display/internal/config"
	"github.com/zsprackett/display/internal/db"
)

var version = "0.1.0"

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "display",
	Short: "Live image, plot and text panes pushed from a producer",
	Long: `display relays updates from a producer to connected viewers.

  display serve                      # run the server on :8000
  display view                       # open the terminal viewer
  display publish text "hello"       # push a text pane
  display publish image frame.png    # push an image pane
  display publish plot < loss.csv    # push a line chart`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath(), "Config file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug/info/warn/error)")

	rootCmd.AddCommand(serveCmd, viewCmd, publishCmd, hashkeyCmd, tokenCmd)
}

func loadConfig() config.Config {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load config: %v\n", err)
		cfg = config.Defaults()
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg
}

// initLogging sends logs to the daily file, plus console when set. On
// failure it falls back to console output alone.
func initLogging(cfg config.Config, prefix string, console io.Writer) (*slog.Logger, func()) {
	logger, closer, err := applog.Init(applog.InitConfig{
		LogDir:   cfg.Log.Dir,
		LogLevel: cfg.Log.Level,
		Format:   cfg.Log.Format,
		Prefix:   prefix,
		Console:  console,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		if console == nil {
			console = io.Discard
		}
		logger = slog.New(applog.NewHandler(console, cfg.Log.Format, applog.ParseLevel(cfg.Log.Level)))
		return logger, func() {}
	}
	return logger, func() { closer.Close() }
}

func openDB(path string) (*db.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
