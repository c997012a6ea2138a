package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/flatquery/internal/engine"
	"github.com/conduit-lang/flatquery/internal/web/api"
	"github.com/conduit-lang/flatquery/internal/web/middleware"
	"github.com/conduit-lang/flatquery/internal/web/server"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		port           int
		requestTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Long: `Start the HTTP API: POST/GET /query, /entities, /healthz and /metrics.
SIGINT or SIGTERM drains in-flight requests before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := a.open(ctx, engine.WithMetrics(engine.NewMetrics(reg)))
			if err != nil {
				return err
			}
			defer sess.Close()

			opts := api.Options{
				Logger:         a.logger,
				Prefix:         a.cfg.Server.APIPrefix,
				Gatherer:       reg,
				Pinger:         sess.db,
				RequestTimeout: requestTimeout,
			}
			if a.cfg.Server.RateLimit > 0 {
				opts.Limiter = middleware.NewTokenBucket(a.cfg.Server.RateLimit, time.Minute)
			}
			handler := api.NewRouter(sess.engine, opts)

			srv, err := server.New(server.DefaultConfig(a.cfg.Server.Addr(), handler), a.logger)
			if err != nil {
				return err
			}

			a.logger.Info("serving catalogue",
				zap.Int("entities", sess.registry.Count()),
				zap.String("driver", a.cfg.Database.Driver),
				zap.String("prefix", a.cfg.Server.APIPrefix),
				zap.Int("rate_limit", a.cfg.Server.RateLimit))
			defer a.logger.Sync()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().DurationVar(&requestTimeout, "request-timeout", 30*time.Second, "per-request deadline, 0 to disable")
	return cmd
}
