package app

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stokehttp/stoker/config"
	"github.com/stokehttp/stoker/core"
	"github.com/stokehttp/stoker/core/bus"
	"github.com/stokehttp/stoker/core/gateway"
	"github.com/stokehttp/stoker/core/pools"
)

// App wires configuration, lifecycle bus, and server into one runnable
// unit. Each App owns a fresh bus; nothing here is process-ambient.
type App struct {
	cfg      *config.Config
	bus      *bus.Bus
	server   *core.Server
	settings *config.Manager
}

// Option configures an App.
type Option func(*App, *[]core.ServerOption)

// WithObserver attaches a metrics observer to the server.
func WithObserver(o core.RequestObserver) Option {
	return func(_ *App, sopts *[]core.ServerOption) {
		*sopts = append(*sopts, core.WithObserver(o))
	}
}

// WithTracer records one span per dispatched request.
func WithTracer(t trace.Tracer) Option {
	return func(_ *App, sopts *[]core.ServerOption) {
		*sopts = append(*sopts, core.WithTracer(t))
	}
}

// WithSettings attaches a settings manager; SIGHUP re-applies it to the
// config and publishes graceful.
func WithSettings(m *config.Manager) Option {
	return func(a *App, _ *[]core.ServerOption) {
		a.settings = m
	}
}

// New creates an application serving gw.
func New(cfg *config.Config, gw gateway.Gateway, opts ...Option) *App {
	b := bus.New()
	b.SubscribeLogger()

	a := &App{cfg: cfg, bus: b}

	var sopts []core.ServerOption
	for _, opt := range opts {
		opt(a, &sopts)
	}

	a.server = core.NewServer(cfg, b, gw, sopts...)
	a.server.Attach()
	return a
}

// Bus returns the application's lifecycle bus.
func (a *App) Bus() *bus.Bus {
	return a.bus
}

// Server returns the underlying server, e.g. for stats snapshots.
func (a *App) Server() *core.Server {
	return a.server
}

// Run starts the bus and blocks until process exit.
func (a *App) Run() error {
	pools.ApplyGCConfig(pools.DefaultGCConfig())

	go a.awaitSignal()

	log.Printf("🚀 HTTP server starting on %s [%s]", a.cfg.BindAddr, a.cfg.Env)

	if err := a.bus.Start(); err != nil {
		log.Printf("Startup failed: %v", err)
		a.bus.Exit()
		a.bus.Block(100 * time.Millisecond)
		return err
	}

	a.bus.Block(100 * time.Millisecond)
	return nil
}

// Shutdown drives a clean exit from code rather than a signal.
func (a *App) Shutdown() error {
	return a.bus.Exit()
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range quit {
		if sig == syscall.SIGHUP {
			log.Printf("SIGHUP received, reloading configuration")
			// Workers read the live snapshot, so settings land on a copy
			// that is swapped in whole.
			next := *a.server.Config()
			if a.settings != nil {
				a.settings.ApplyTo(&next)
			}
			a.server.Reconfigure(&next)
			if err := a.bus.Graceful(); err != nil {
				log.Printf("Graceful restart: %v", err)
			}
			continue
		}

		log.Printf("Signal received: %v. Shutting down...", sig)
		if err := a.bus.Exit(); err != nil {
			log.Printf("Shutdown: %v", err)
		}
		return
	}
}
