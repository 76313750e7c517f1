package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/cpdlc/cpdlcd/internal/blocklist"
	"github.com/cpdlc/cpdlcd/internal/config"
	"github.com/cpdlc/cpdlcd/internal/daemon"
)

// bootstrap loads the configuration at confPath, builds the TLS and
// blocklist collaborators it names, and starts the daemon core
// listening. A config load failure is returned at once. Certificate and
// blocklist failures are collected into one multierror rather than
// aborting on the first; only when both succeed are the listen
// addresses opened, and ListenAndServe aggregates their failures into a
// separate multierror of its own.
func bootstrap(confPath string, portOverride int) (*daemon.Core, error) {
	cfg, err := config.Load(confPath)
	if err != nil {
		return nil, fmt.Errorf("cpdlcd: %w", err)
	}

	if portOverride != 0 {
		cfg.ListenAddrs = overridePorts(cfg.ListenAddrs, portOverride)
	}

	var result error

	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		result = multierror.Append(result, err)
	}

	var bl blocklist.Oracle = blocklist.Allow{}
	if cfg.BlocklistFile != "" {
		fo, err := blocklist.NewFileOracle(cfg.BlocklistFile)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("blocklist: %w", err))
		} else {
			bl = fo
		}
	}

	if result != nil {
		return nil, result
	}

	log.WithFields(log.Fields{
		"atc_names": cfg.ATCNames,
		"listen":    cfg.ListenAddrs,
	}).Info("cpdlcd: starting")

	core := daemon.NewCore(cfg, tlsConfig, bl)
	if err := core.ListenAndServe(cfg.ListenAddrs); err != nil {
		core.Close()
		return nil, err
	}

	return core, nil
}

// buildTLSConfig loads the key/cert pair and, if configured, a CA bundle
// used to verify client certificates (spec section 6.2's keyfile/
// certfile/cafile keys).
func buildTLSConfig(cfg *config.Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tls: load keypair: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("tls: read cafile: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls: cafile %s contains no usable certificates", cfg.CAFile)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return tlsConfig, nil
}

// overridePorts rewrites every address's port to port, keeping each
// address's original host.
func overridePorts(addrs []string, port int) []string {
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		out[i] = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return out
}
