package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config must validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no address", func(c *Config) { c.BindAddr = ""; c.UnixSocket = "" }},
		{"zero min threads", func(c *Config) { c.MinThreads = 0 }},
		{"max below min", func(c *Config) { c.MinThreads = 8; c.MaxThreads = 4 }},
		{"zero queue", func(c *Config) { c.RequestQueueSize = 0 }},
		{"request line below floor", func(c *Config) { c.MaxRequestLineSize = 128 }},
		{"tls cert without key", func(c *Config) { c.TLSCert = "/tmp/cert.pem" }},
		{"tls key without cert", func(c *Config) { c.TLSKey = "/tmp/key.pem" }},
		{"bad protocol", func(c *Config) { c.Protocol = "HTTP/2.0" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestValidateAcceptsUnixSocketOnly(t *testing.T) {
	cfg := Default()
	cfg.BindAddr = ""
	cfg.UnixSocket = "/tmp/stoker.sock"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Unix socket alone should validate: %v", err)
	}
}

func TestManagerTypedGetters(t *testing.T) {
	m := NewManager()
	m.Set("pool.min_threads", 4)
	m.Set("server.bind", ":9090")
	m.Set("server.tcp_nodelay", "true")
	m.Set("timeouts.socket", "30s")
	m.Set("limits.max_body_size", "1048576")

	if got := m.GetInt("pool.min_threads"); got != 4 {
		t.Errorf("Expected 4, got %d", got)
	}
	if got := m.GetString("server.bind"); got != ":9090" {
		t.Errorf("Expected :9090, got %s", got)
	}
	if !m.GetBool("server.tcp_nodelay") {
		t.Error("Expected true for string 'true'")
	}
	if got := m.GetDuration("timeouts.socket"); got != 30*time.Second {
		t.Errorf("Expected 30s, got %s", got)
	}
	if got := m.GetInt64("limits.max_body_size"); got != 1048576 {
		t.Errorf("Expected 1048576, got %d", got)
	}

	if got := m.GetInt("missing", 7); got != 7 {
		t.Errorf("Expected default 7, got %d", got)
	}
}

func TestManagerApplyToPartialReload(t *testing.T) {
	cfg := Default()
	m := NewManager()
	m.Set("pool.min_threads", 20)
	m.Set("pool.max_threads", 80)
	m.Set("timeouts.keepalive", "15s")

	m.ApplyTo(cfg)

	if cfg.MinThreads != 20 || cfg.MaxThreads != 80 {
		t.Errorf("Expected pool resized to 20..80, got %d..%d", cfg.MinThreads, cfg.MaxThreads)
	}
	if cfg.KeepAliveTimeout != 15*time.Second {
		t.Errorf("Expected keepalive 15s, got %s", cfg.KeepAliveTimeout)
	}
	// Untouched keys keep their previous values.
	if cfg.BindAddr != ":8080" {
		t.Errorf("Unset key must not change, got %s", cfg.BindAddr)
	}
	if cfg.SocketTimeout != 10*time.Second {
		t.Errorf("Unset timeout must not change, got %s", cfg.SocketTimeout)
	}
}

func TestManagerLoadFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"server": {"bind": ":3000", "tcp_nodelay": true},
		"pool": {"min_threads": 2}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m := NewManager()
	if err := m.LoadFromJSON(path); err != nil {
		t.Fatalf("LoadFromJSON failed: %v", err)
	}

	if got := m.GetString("server.bind"); got != ":3000" {
		t.Errorf("Expected :3000, got %s", got)
	}
	if !m.GetBool("server.tcp_nodelay") {
		t.Error("Expected nested bool loaded")
	}
	if got := m.GetInt("pool.min_threads"); got != 2 {
		t.Errorf("Expected 2, got %d", got)
	}
}

func TestManagerLoadFromEnv(t *testing.T) {
	t.Setenv("STOKERTEST_POOL_MIN_THREADS", "6")
	t.Setenv("STOKERTEST_SERVER_BIND", ":4000")

	m := NewManager()
	m.LoadFromEnv("STOKERTEST")

	if got := m.GetInt("pool.min_threads"); got != 6 {
		t.Errorf("Expected 6, got %d", got)
	}
	if got := m.GetString("server.bind"); got != ":4000" {
		t.Errorf("Expected :4000, got %s", got)
	}
}

func TestManagerWatch(t *testing.T) {
	m := NewManager()
	notified := make(chan interface{}, 1)
	m.Watch("pool.min_threads", func(key string, value interface{}) {
		notified <- value
	})

	m.Set("pool.min_threads", 12)

	select {
	case v := <-notified:
		if v != 12 {
			t.Errorf("Expected 12, got %v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watcher was not notified")
	}
}
