package core

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/net/netutil"

	"github.com/stokehttp/stoker/config"
)

// Listen binds the configured TCP or Unix-domain socket, applies socket
// options, optionally wraps it in TLS, and caps concurrent connections.
// Any error here is fatal at startup: it is returned to the caller before
// a single worker starts.
func Listen(cfg *config.Config) (net.Listener, error) {
	var ln net.Listener
	var err error

	if cfg.UnixSocket != "" {
		// A stale socket file from a previous run would fail the bind.
		_ = os.Remove(cfg.UnixSocket)
		ln, err = net.Listen("unix", cfg.UnixSocket)
		if err != nil {
			return nil, fmt.Errorf("bind unix %s: %w", cfg.UnixSocket, err)
		}
	} else {
		lc := net.ListenConfig{Control: controlSocket}
		ln, err = lc.Listen(context.Background(), "tcp", cfg.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", cfg.BindAddr, err)
		}
	}

	if cfg.TLSCert != "" {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			ln.Close()
			return nil, err
		}
		ln = tls.NewListener(ln, tlsCfg)
	}

	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	return ln, nil
}

func loadTLSConfig(cfg *config.Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}

	if cfg.TLSChain != "" {
		chain, err := os.ReadFile(cfg.TLSChain)
		if err != nil {
			return nil, fmt.Errorf("load TLS chain: %w", err)
		}
		for {
			var block *pem.Block
			block, chain = pem.Decode(chain)
			if block == nil {
				break
			}
			if block.Type == "CERTIFICATE" {
				cert.Certificate = append(cert.Certificate, block.Bytes)
			}
		}
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if len(cfg.TLSCiphers) > 0 {
		suites, err := cipherSuitesByName(cfg.TLSCiphers)
		if err != nil {
			return nil, err
		}
		tlsCfg.CipherSuites = suites
	}

	return tlsCfg, nil
}

func cipherSuitesByName(names []string) ([]uint16, error) {
	byName := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		byName[s.Name] = s.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown TLS cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
