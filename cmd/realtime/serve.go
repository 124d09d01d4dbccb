package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mickaelvieira/realtime/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func serveCmd(a *app) *cobra.Command {
	var (
		addr      string
		redisAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development server",
		Long: `Run a server speaking the library websocket protocol.

The processing feed relays the progress events published on Redis
when --redis is given. Chat sessions echo the messages they receive.
Metrics are exposed on /metrics.

Examples:
  realtime serve
  realtime serve --addr :9000 --redis localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Apply command-line overrides
			if addr != "" {
				a.cfg.ListenAddr = addr
			}
			if redisAddr != "" {
				a.cfg.RedisAddr = redisAddr
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from config)")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address relaying processing events")

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	hub := server.NewHub(a.logger)

	opts := []server.OptionModifier{server.WithLogger(a.logger)}
	if p := a.cfg.PingInterval; p > 0 {
		opts = append(opts, server.WithPingInterval(p), server.WithPongWait(p*10/9))
	}

	if a.cfg.RedisAddr != "" {
		rc := server.DefaultRedisConfig()
		rc.Addr = a.cfg.RedisAddr
		rc.Prefix = a.cfg.RedisPrefix

		bridge := server.NewRedisBridge(rc, hub, a.logger)
		if err := bridge.Start(); err != nil {
			return err
		}
		defer bridge.Stop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "realtime",
			Subsystem: "server",
			Name:      "processing_sockets",
			Help:      "Number of sockets following the processing feed.",
		}, func() float64 {
			return float64(hub.Count(server.ProcessingTopic))
		}),
	)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", server.New(hub, &server.EchoResponder{}, opts...).Routes())

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		a.logger.Info("serving", "addr", a.cfg.ListenAddr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdown)
}
