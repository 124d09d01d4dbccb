package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mickaelvieira/realtime"
	"github.com/mickaelvieira/realtime/binding"
	"github.com/mickaelvieira/realtime/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func listenCmd(a *app) *cobra.Command {
	var (
		path        string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print every frame received on an endpoint",
		Long: `Bind a channel to an endpoint of the library app and print
every frame it receives until interrupted.

Examples:
  realtime listen
  realtime listen --path /ws/chat/3
  realtime listen --metrics :9100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var extra []client.OptionModifier
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				extra = append(extra, client.WithMetrics(client.NewMetrics(client.WithRegistry(reg))))

				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", "error", err)
					}
				}()
				defer srv.Close()
			}

			factory := binding.NewFactory(a.cfg.Origin, a.channelOptions(extra...)...)
			handlers := binding.Handlers{
				realtime.TypeWildcard: func(f realtime.Frame) {
					fmt.Fprintln(out, f.String())
				},
			}

			b, err := binding.Use(ctx, factory, path, handlers, binding.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer b.Release()

			a.logger.Info("listening", "origin", a.cfg.Origin, "path", path)
			a.watchStatuses(ctx, b.Statuses())

			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "/ws/processing", "Endpoint path")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "Expose channel metrics on this address")

	return cmd
}
