/*
Package stoker provides a threaded HTTP/1.x connection-acceptance and
request-dispatch core for Go.

Stoker is the engine room of an HTTP server: a listening-socket manager, a
bounded pool of long-lived worker goroutines, a per-connection keep-alive
state machine, and a publish/subscribe lifecycle bus that coordinates
start/stop/graceful/exit across every subsystem. Application semantics
(routing, sessions, templating) stay outside the core and plug in through a
single gateway seam, so any net/http.Handler - or a handcrafted native
gateway - can ride on top.

Features

  - Blocking accept loop feeding a bounded worker pool with real backpressure
  - HTTP/1.0 and HTTP/1.1 keep-alive, chunked request bodies, 100-continue
  - Strict request parsing with precise diagnostic responses
  - TCP, Unix-domain, and TLS listeners with tunable socket options
  - Lifecycle bus: priority-ordered subscribers on start/stop/graceful/exit
  - Graceful shutdown that lets in-flight requests finish within a deadline
  - Prometheus metrics and optional OpenTelemetry dispatch spans

Quick Start

Basic usage example:

	package main

	import (
	    "github.com/stokehttp/stoker/app"
	    "github.com/stokehttp/stoker/config"
	    "github.com/stokehttp/stoker/core/gateway"
	    "github.com/stokehttp/stoker/core/http"
	)

	func main() {
	    cfg := config.Default()
	    cfg.BindAddr = ":8080"

	    gw := gateway.NewNative()
	    gw.Register("GET", "/hello", func(req *http.Request) *http.Response {
	        return http.NewTextResponse(200, "Hello world!")
	    })

	    application := app.New(cfg, gw)
	    application.Run()
	}

Modules

The engine is organized into several modules:

  - app: application wiring (config + bus + server + signals)
  - config: configuration loading and the watchable settings manager
  - core: server, listener, and connection state machine
  - core/http: request parsing, header multimap, response writing
  - core/gateway: dispatch, outcome handling, native and net/http adapters
  - core/pools: worker pool, buffer pools, GC tuning
  - core/bus: lifecycle publish/subscribe coordinator
  - core/observability: Prometheus collectors fed by the bus

For more information, see https://github.com/stokehttp/stoker
*/
package stoker
