package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/zulandar/intake/internal/config"
	"github.com/zulandar/intake/internal/db"
	"github.com/zulandar/intake/internal/gateway"
	"github.com/zulandar/intake/internal/metrics"
	"github.com/zulandar/intake/internal/store"
	"github.com/zulandar/intake/internal/telemetry"
)

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", config.DefaultPath, "path to intake config file")
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist. An explicit path must exist.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore connects to the configured database and migrates it.
func openStore(cfg *config.Config) (*store.Store, error) {
	gormDB, err := db.Connect(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to %s storage: %w", cfg.Storage.Driver, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return store.New(store.Opts{
		DB:         gormDB,
		MaxTurns:   cfg.Storage.MaxTurns,
		StaleAfter: time.Duration(cfg.Bridge.StaleAfterMin) * time.Minute,
	})
}

// newGateway builds the dialogue service client with the configured auth,
// tracing and call policies.
func newGateway(cfg *config.Config, m *metrics.Metrics) gateway.Gateway {
	opts := []gateway.ClientOption{
		gateway.WithBaseURL(cfg.Service.BaseURL),
		gateway.WithUserAgent(cfg.Service.UserAgent),
	}
	if cfg.Service.Tracing {
		opts = append(opts, gateway.WithTracing())
	}
	if o := cfg.Service.OAuth2; o.Enabled() {
		opts = append(opts, gateway.WithClientCredentials(&clientcredentials.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			TokenURL:     o.TokenURL,
			Scopes:       o.Scopes,
		}))
	}
	return gateway.Apply(gateway.NewClient(opts...),
		gateway.Instrument(m),
		gateway.Timeout(cfg.Service.Timeout()),
		gateway.AtMostOnce,
	)
}

// startTracing installs the stdout span exporter when service.tracing is
// set. The returned func flushes it and is always safe to call.
func startTracing(cfg *config.Config, w io.Writer) func() {
	if !cfg.Service.Tracing {
		return func() {}
	}
	shutdown, err := telemetry.InitTracer(w)
	if err != nil {
		log.Printf("intake: tracing disabled: %v", err)
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Printf("intake: flush traces: %v", err)
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
