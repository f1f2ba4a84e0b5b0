package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/intake/internal/metrics"
	"github.com/zulandar/intake/internal/question"
	"github.com/zulandar/intake/internal/store"
	"github.com/zulandar/intake/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		noStore    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browser intake widget",
		Long:  "Serves the intake web widget, its JSON API, a live event stream and Prometheus metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = 0
			}
			return runServe(cmd, configPath, port, noStore)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides web.port)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "keep sessions in memory only")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noStore bool) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Web.Port = port
	}
	defer startTracing(cfg, cmd.ErrOrStderr())()

	ctx, cancel := signalContext(cmd.OutOrStdout())
	defer cancel()

	var st *store.Store
	if !noStore {
		st, err = openStore(cfg)
		if err != nil {
			return err
		}
		go st.RunRetention(ctx, cfg.Retention.PruneCron, cfg.Retention.KeepDays)
	}

	m := metrics.Default()
	srv, err := web.New(web.Opts{
		Gateway:       newGateway(cfg, m),
		Store:         st,
		SignatureMode: question.SignatureMode(cfg.Signature.Mode),
		Metrics:       m,
		Port:          cfg.Web.Port,
		IdleTimeout:   time.Duration(cfg.Web.IdleMin) * time.Minute,
		Out:           cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
