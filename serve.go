package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsprackett/display/internal/config"
	"github.com/zsprackett/display/internal/db"
	"github.com/zsprackett/display/internal/hub"
	"github.com/zsprackett/display/internal/webserver"
)

var (
	serveHost string
	servePort int
	serveNoDB bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event server",
	Long: `Accept commands on POST /events and stream them to viewers over
GET /events (server-sent events) and GET /ws (websocket).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port")
	serveCmd.Flags().BoolVar(&serveNoDB, "no-db", false, "Disable the geometry API")
}

func hubConfig(c config.HubConfig) hub.Config {
	return hub.Config{
		QueueSize:    c.QueueSize,
		Grace:        c.Grace.Std(),
		MaxPayload:   c.MaxPayload,
		ReapInterval: c.ReapInterval.Std(),
	}
}

func serverConfig(c config.ServerConfig) webserver.Config {
	return webserver.Config{
		Host:        c.Host,
		Port:        c.Port,
		TLS:         c.TLS.Mode == "self-signed",
		TLSCacheDir: c.TLS.CacheDir,
		Auth: webserver.AuthConfig{
			JWTSecret:       c.Auth.JWTSecret,
			ProducerKeyHash: c.Auth.ProducerKeyHash,
		},
		Keepalive:    c.Keepalive.Std(),
		WriteTimeout: c.WriteTimeout.Std(),
	}
}

func runServe(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, closeLog := initLogging(cfg, "server", os.Stderr)
	defer closeLog()

	var store *db.DB
	if !serveNoDB {
		var err error
		store, err = openDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
	}

	h := hub.New(hubConfig(cfg.Hub), logger)
	h.Start()
	defer h.Stop()

	srv := webserver.New(h, store, serverConfig(cfg.Server), logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("serve: shutting down", "stats", h.Stats())
		return nil
	})
	return g.Wait()
}
