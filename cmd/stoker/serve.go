package main

import (
	"fmt"
	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/stokehttp/stoker/app"
	"github.com/stokehttp/stoker/config"
	"github.com/stokehttp/stoker/core/gateway"
	"github.com/stokehttp/stoker/core/observability"
)

func serveCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demonstration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "TCP bind address")
	f.StringVar(&cfg.UnixSocket, "unix-socket", "", "Unix-domain socket path (overrides --bind)")
	f.StringVar(&cfg.TLSCert, "tls-cert", "", "TLS certificate file")
	f.StringVar(&cfg.TLSKey, "tls-key", "", "TLS private key file")
	f.StringVar(&cfg.TLSChain, "tls-chain", "", "TLS certificate chain file")
	f.IntVar(&cfg.MinThreads, "min-threads", cfg.MinThreads, "minimum worker threads")
	f.IntVar(&cfg.MaxThreads, "max-threads", cfg.MaxThreads, "maximum worker threads")
	f.IntVar(&cfg.RequestQueueSize, "request-queue-size", cfg.RequestQueueSize, "pending connection queue depth")
	f.IntVar(&cfg.MaxConnections, "max-connections", 0, "cap on concurrently open connections (0 = unlimited)")
	f.DurationVar(&cfg.SocketTimeout, "socket-timeout", cfg.SocketTimeout, "per-socket read/write timeout")
	f.DurationVar(&cfg.KeepAliveTimeout, "keepalive-timeout", cfg.KeepAliveTimeout, "idle keep-alive window")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown grace period")

	return cmd
}

func runServe(cfg *config.Config) error {
	registry := prometheus.NewRegistry()
	metrics := observability.New(observability.Config{Registry: registry})

	// The demo application is an ordinary chi router; the adapter makes it
	// a gateway like any other.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)

	router.Get("/hello", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fmt.Fprint(w, "Hello world!")
	})
	router.Get("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(200)
		fmt.Fprint(w, "ok")
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	application := app.New(cfg, gateway.WrapHTTPHandler(router),
		app.WithObserver(metrics),
		app.WithTracer(otel.Tracer("stoker")))
	metrics.Bind(application.Bus())

	router.Get("/stats", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, application.Server().StatsJSON())
	})

	return application.Run()
}
