package config

import (
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.ATCNames) != 1 || cfg.ATCNames[0] != DefaultATCName {
		t.Fatalf("expected default ATC name, got %v", cfg.ATCNames)
	}
	if len(cfg.ListenAddrs) != 1 || cfg.ListenAddrs[0] != DefaultListenAddr {
		t.Fatalf("expected default listen addr, got %v", cfg.ListenAddrs)
	}
}

func TestParseKeys(t *testing.T) {
	doc := `
# comment
atc/name/1 = TEST
atc/name/2 = CTR2
listen/0 = localhost
listen/1 = 0.0.0.0:9000
keyfile = /etc/cpdlcd/key.pem
certfile = /etc/cpdlcd/cert.pem
cafile = /etc/cpdlcd/ca.pem
blocklist = /etc/cpdlcd/blocklist.conf
`
	cfg, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.ATCNames) != 2 || cfg.ATCNames[0] != "TEST" || cfg.ATCNames[1] != "CTR2" {
		t.Fatalf("unexpected ATC names: %v", cfg.ATCNames)
	}
	if len(cfg.ListenAddrs) != 2 || cfg.ListenAddrs[0] != "localhost:17622" || cfg.ListenAddrs[1] != "0.0.0.0:9000" {
		t.Fatalf("unexpected listen addrs: %v", cfg.ListenAddrs)
	}
	if cfg.KeyFile != "/etc/cpdlcd/key.pem" || cfg.CertFile != "/etc/cpdlcd/cert.pem" {
		t.Fatalf("unexpected cert/key files: %+v", cfg)
	}
	if cfg.CAFile != "/etc/cpdlcd/ca.pem" || cfg.BlocklistFile != "/etc/cpdlcd/blocklist.conf" {
		t.Fatalf("unexpected ca/blocklist files: %+v", cfg)
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("not-a-kv-line"))
	if err == nil {
		t.Fatalf("expected error for malformed line")
	}
}
