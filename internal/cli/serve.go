package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/city-weather/internal/api/http"
	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/scheduler"
)

const metricsNamespace = "cityweather"

func newServeCmd(opts *options) *cobra.Command {
	var (
		listenAddr     string
		circuitBreaker bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the weather API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			// A long-running server keeps breaker state across requests.
			cfg.HTTP.CircuitBreaker = circuitBreaker

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.NewCollector(metricsNamespace, reg)

			svc, cache, err := newService(cfg, logger, m)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			janitor := scheduler.New(cache, cfg.Cache.MaxAge, cfg.Cache.PruneInterval, logger, m)
			if err := janitor.Start(); err != nil {
				return fmt.Errorf("starting cache janitor: %w", err)
			}
			defer janitor.Stop()

			app := httpapi.NewApp(svc, httpapi.ServerOptions{
				Logger:    logger,
				Gatherer:  reg,
				AccessLog: true,
			})

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger.Info("starting city-weather",
				"listen_addr", cfg.ListenAddr,
				"provider", cfg.Provider,
				"cache_driver", cfg.Cache.Driver,
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := app.Listen(cfg.ListenAddr); err != nil {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer shutdownCancel()
				return app.ShutdownWithContext(shutdownCtx)
			})

			waitErr := g.Wait()
			logger.Info("city-weather shutdown complete")
			if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
				return waitErr
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVar(&circuitBreaker, "circuit-breaker", true, "share a circuit breaker across upstream calls")
	return cmd
}
