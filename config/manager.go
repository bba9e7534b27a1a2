package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager is a watchable key/value store for server settings. Keys are
// dotted, lower-case paths ("server.bind", "pool.min_threads", "tls.cert").
// A graceful reload reads the current values back into a Config via ApplyTo.
type Manager struct {
	values map[string]interface{}
	mu     sync.RWMutex

	// Watchers for configuration changes
	watchers map[string][]func(string, interface{})
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		values:   make(map[string]interface{}),
		watchers: make(map[string][]func(string, interface{})),
	}
}

// Set sets a configuration value and notifies watchers of the key.
func (m *Manager) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value

	if watchers, exists := m.watchers[key]; exists {
		for _, watcher := range watchers {
			go watcher(key, value)
		}
	}
}

// Get gets a configuration value
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	return value, exists
}

// GetString gets a string configuration value
func (m *Manager) GetString(key string, defaultValue ...string) string {
	if value, exists := m.Get(key); exists {
		if str, ok := value.(string); ok {
			return str
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// GetInt gets an integer configuration value
func (m *Manager) GetInt(key string, defaultValue ...int) int {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetInt64 gets a 64-bit integer configuration value
func (m *Manager) GetInt64(key string, defaultValue ...int64) int64 {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		case string:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				return i
			}
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetBool gets a boolean configuration value
func (m *Manager) GetBool(key string, defaultValue ...bool) bool {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case bool:
			return v
		case string:
			return v == "true" || v == "yes" || v == "1"
		case int:
			return v != 0
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return false
}

// GetDuration gets a duration configuration value
func (m *Manager) GetDuration(key string, defaultValue ...time.Duration) time.Duration {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case time.Duration:
			return v
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		case int64:
			return time.Duration(v)
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// Watch watches for configuration changes on a key.
func (m *Manager) Watch(key string, callback func(string, interface{})) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watchers[key] = append(m.watchers[key], callback)
}

// LoadFromEnv loads configuration from environment variables. STOKER_POOL_MIN_THREADS
// becomes pool.min_threads under the "STOKER" prefix.
func (m *Manager) LoadFromEnv(prefix string) {
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := parts[0]
		value := parts[1]

		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}

		if prefix != "" {
			key = strings.TrimPrefix(key, prefix)
			key = strings.TrimPrefix(key, "_")
		}

		key = strings.ToLower(key)
		if idx := strings.Index(key, "_"); idx != -1 {
			// First underscore separates the section from the setting name.
			key = key[:idx] + "." + key[idx+1:]
		}

		m.Set(key, value)
	}
}

// LoadFromJSON loads configuration from a JSON file.
func (m *Manager) LoadFromJSON(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse JSON config: %w", err)
	}

	m.loadFromMap("", values)
	return nil
}

// loadFromMap recursively loads configuration from a map
func (m *Manager) loadFromMap(prefix string, values map[string]interface{}) {
	for key, value := range values {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			m.loadFromMap(fullKey, nested)
		} else {
			m.Set(fullKey, value)
		}
	}
}

// ApplyTo copies the well-known server keys onto cfg. Unset keys leave the
// existing value in place, so a partial reload touches only what changed.
// cfg must not be shared with running workers; apply to a private copy and
// swap it in via the server's Reconfigure.
func (m *Manager) ApplyTo(cfg *Config) {
	cfg.BindAddr = m.GetString("server.bind", cfg.BindAddr)
	cfg.UnixSocket = m.GetString("server.unix_socket", cfg.UnixSocket)
	cfg.TCPNoDelay = m.GetBool("server.tcp_nodelay", cfg.TCPNoDelay)
	cfg.ProxyMode = m.GetBool("server.proxy_mode", cfg.ProxyMode)
	cfg.MaxConnections = m.GetInt("server.max_connections", cfg.MaxConnections)
	cfg.Protocol = m.GetString("server.protocol", cfg.Protocol)

	cfg.TLSCert = m.GetString("tls.cert", cfg.TLSCert)
	cfg.TLSKey = m.GetString("tls.key", cfg.TLSKey)
	cfg.TLSChain = m.GetString("tls.chain", cfg.TLSChain)

	cfg.MinThreads = m.GetInt("pool.min_threads", cfg.MinThreads)
	cfg.MaxThreads = m.GetInt("pool.max_threads", cfg.MaxThreads)
	cfg.RequestQueueSize = m.GetInt("pool.request_queue_size", cfg.RequestQueueSize)

	cfg.MaxRequestLineSize = m.GetInt("limits.max_request_line", cfg.MaxRequestLineSize)
	cfg.MaxRequestHeaderSize = m.GetInt("limits.max_header_size", cfg.MaxRequestHeaderSize)
	cfg.MaxRequestBodySize = m.GetInt64("limits.max_body_size", cfg.MaxRequestBodySize)

	cfg.SocketTimeout = m.GetDuration("timeouts.socket", cfg.SocketTimeout)
	cfg.KeepAliveTimeout = m.GetDuration("timeouts.keepalive", cfg.KeepAliveTimeout)
	cfg.ShutdownTimeout = m.GetDuration("timeouts.shutdown", cfg.ShutdownTimeout)
}

// GetAll returns a copy of all configuration values.
func (m *Manager) GetAll() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}

	return result
}

// Delete deletes a configuration value
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
}
