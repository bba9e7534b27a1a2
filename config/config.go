package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Listener settings
	BindAddr   string // TCP address, e.g. ":8080"
	UnixSocket string // Unix-domain socket path; takes precedence over BindAddr
	TCPNoDelay bool
	ProxyMode  bool // accept absolute-URI request targets

	// Maximum concurrently open client connections (0 = unlimited)
	MaxConnections int

	// TLS settings (empty cert path disables TLS)
	TLSCert    string
	TLSKey     string
	TLSChain   string
	TLSCiphers []string

	// Worker pool sizing
	MinThreads       int
	MaxThreads       int
	RequestQueueSize int

	// Parse limits
	MaxRequestLineSize   int
	MaxRequestHeaderSize int
	MaxRequestBodySize   int64

	// Timeouts
	SocketTimeout    time.Duration // per read/write while inside a request
	KeepAliveTimeout time.Duration // idle window between requests
	ShutdownTimeout  time.Duration // grace period for in-flight requests on stop

	// Protocol version to advertise in responses
	Protocol string

	Env string
}

// Default returns the baseline configuration used by tests and embedders.
func Default() *Config {
	return &Config{
		BindAddr:             ":8080",
		TCPNoDelay:           true,
		MinThreads:           10,
		MaxThreads:           40,
		RequestQueueSize:     128,
		MaxRequestLineSize:   8192,
		MaxRequestHeaderSize: 65536,
		MaxRequestBodySize:   100 << 20,
		SocketTimeout:        10 * time.Second,
		KeepAliveTimeout:     5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		Protocol:             "HTTP/1.1",
		Env:                  "development",
	}
}

// New loads configuration from flags (and potentially env vars).
func New() *Config {
	cfg := Default()

	flag.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "TCP bind address")
	flag.StringVar(&cfg.UnixSocket, "unix-socket", "", "Unix-domain socket path (overrides -bind)")
	flag.BoolVar(&cfg.TCPNoDelay, "tcp-nodelay", cfg.TCPNoDelay, "set TCP_NODELAY on accepted connections")
	flag.StringVar(&cfg.TLSCert, "tls-cert", "", "TLS certificate file")
	flag.StringVar(&cfg.TLSKey, "tls-key", "", "TLS private key file")
	flag.StringVar(&cfg.TLSChain, "tls-chain", "", "TLS certificate chain file")
	flag.IntVar(&cfg.MinThreads, "min-threads", cfg.MinThreads, "minimum worker threads")
	flag.IntVar(&cfg.MaxThreads, "max-threads", cfg.MaxThreads, "maximum worker threads")
	flag.IntVar(&cfg.RequestQueueSize, "request-queue-size", cfg.RequestQueueSize, "pending connection queue depth")
	flag.IntVar(&cfg.MaxRequestLineSize, "max-request-line", cfg.MaxRequestLineSize, "maximum request line bytes")
	flag.IntVar(&cfg.MaxRequestHeaderSize, "max-header-size", cfg.MaxRequestHeaderSize, "maximum header section bytes")
	flag.Int64Var(&cfg.MaxRequestBodySize, "max-body-size", cfg.MaxRequestBodySize, "maximum request body bytes")
	flag.DurationVar(&cfg.SocketTimeout, "socket-timeout", cfg.SocketTimeout, "per-socket read/write timeout")
	flag.DurationVar(&cfg.KeepAliveTimeout, "keepalive-timeout", cfg.KeepAliveTimeout, "idle keep-alive window")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown grace period")
	flag.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")

	flag.Parse()

	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			cfg.BindAddr = ":" + port
		}
	}

	return cfg
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.BindAddr == "" && c.UnixSocket == "" {
		return fmt.Errorf("config: no bind address or unix socket")
	}
	if c.MinThreads < 1 {
		return fmt.Errorf("config: min-threads must be >= 1, got %d", c.MinThreads)
	}
	if c.MaxThreads < c.MinThreads {
		return fmt.Errorf("config: max-threads %d below min-threads %d", c.MaxThreads, c.MinThreads)
	}
	if c.RequestQueueSize < 1 {
		return fmt.Errorf("config: request-queue-size must be >= 1, got %d", c.RequestQueueSize)
	}
	if c.MaxRequestLineSize < 256 {
		// 256 bytes is the floor clients may rely on for the request line.
		return fmt.Errorf("config: max-request-line must be >= 256, got %d", c.MaxRequestLineSize)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("config: TLS requires both certificate and key")
	}
	if c.Protocol != "HTTP/1.0" && c.Protocol != "HTTP/1.1" {
		return fmt.Errorf("config: unsupported protocol %q", c.Protocol)
	}
	return nil
}
