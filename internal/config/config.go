// Package config parses the daemon's key/value configuration file (spec
// section 6.2). The format is a flat "key = value" line file with
// slash-segmented keys, the format the original daemon reads through
// acfutils' conf_t reader. It is not TOML-shaped (TOML bare keys forbid
// "/", and the format carries no tables/nesting), so unlike the rest of
// this module's ambient stack it is hand-rolled rather than delegated to
// a third-party decoder — see DESIGN.md.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultListenAddr is used when no listen/* key is present.
const DefaultListenAddr = "localhost:17622"

// DefaultATCName is registered when no atc/name/* key is present.
const DefaultATCName = "TEST"

// DefaultKeyFile and DefaultCertFile name the PEM files read from the
// working directory when keyfile/certfile are not given.
const (
	DefaultKeyFile  = "cpdlcd_key.pem"
	DefaultCertFile = "cpdlcd_cert.pem"
)

// Config is the parsed daemon configuration.
type Config struct {
	ATCNames      []string
	ListenAddrs   []string
	KeyFile       string
	CertFile      string
	CAFile        string
	BlocklistFile string
}

// Load reads and parses the configuration file at path. An empty path
// yields the documented defaults (spec section 6.2).
func Load(path string) (*Config, error) {
	if path == "" {
		return defaults(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

func defaults() *Config {
	return &Config{
		ATCNames:    []string{DefaultATCName},
		ListenAddrs: []string{DefaultListenAddr},
		KeyFile:     DefaultKeyFile,
		CertFile:    DefaultCertFile,
	}
}

// Parse reads a configuration document from r. Keys not recognized by
// spec section 6.2's table are ignored rather than rejected, matching a
// forward-compatible config reader.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := splitKV(line)
		if err != nil {
			return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
		}

		switch {
		case strings.HasPrefix(key, "atc/name/"):
			cfg.ATCNames = append(cfg.ATCNames, value)
		case strings.HasPrefix(key, "listen/"):
			cfg.ListenAddrs = append(cfg.ListenAddrs, normalizeListenAddr(value))
		case key == "keyfile":
			cfg.KeyFile = value
		case key == "certfile":
			cfg.CertFile = value
		case key == "cafile":
			cfg.CAFile = value
		case key == "blocklist":
			cfg.BlocklistFile = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if len(cfg.ATCNames) == 0 {
		cfg.ATCNames = []string{DefaultATCName}
	}
	if len(cfg.ListenAddrs) == 0 {
		cfg.ListenAddrs = []string{DefaultListenAddr}
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = DefaultKeyFile
	}
	if cfg.CertFile == "" {
		cfg.CertFile = DefaultCertFile
	}

	return cfg, nil
}

func splitKV(line string) (key, value string, err error) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", fmt.Errorf("missing '=' in %q", line)
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if key == "" {
		return "", "", fmt.Errorf("empty key in %q", line)
	}
	return key, value, nil
}

// normalizeListenAddr appends the default CPDLC port when the listen
// value names a bare host.
func normalizeListenAddr(v string) string {
	if v == "" {
		return v
	}
	if strings.Contains(v, ":") {
		return v
	}
	return v + ":17622"
}
