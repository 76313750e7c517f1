package blocklist

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileOracleCheckAndRefresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.conf")
	if err := os.WriteFile(path, []byte("10.0.0.0/8\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	o, err := NewFileOracle(path)
	if err != nil {
		t.Fatalf("NewFileOracle: %v", err)
	}
	defer o.Close()

	blocked := &net.TCPAddr{IP: net.ParseIP("10.1.2.3")}
	allowed := &net.TCPAddr{IP: net.ParseIP("192.168.1.1")}

	if o.Check(blocked) {
		t.Fatalf("expected 10.1.2.3 to be blocked")
	}
	if !o.Check(allowed) {
		t.Fatalf("expected 192.168.1.1 to be allowed")
	}

	if err := os.WriteFile(path, []byte("192.168.1.1/32\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var changed bool
	for time.Now().Before(deadline) {
		if o.Refresh() {
			changed = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !changed {
		t.Fatalf("expected Refresh to observe the file change")
	}
	if !o.Check(blocked) {
		t.Fatalf("expected 10.1.2.3 to be allowed after reload")
	}
	if o.Check(allowed) {
		t.Fatalf("expected 192.168.1.1 to be blocked after reload")
	}
}

func TestAllowOracle(t *testing.T) {
	var o Allow
	if !o.Check(&net.TCPAddr{IP: net.ParseIP("1.2.3.4")}) {
		t.Fatalf("Allow oracle must allow everything")
	}
	if o.Refresh() {
		t.Fatalf("Allow oracle never reports change")
	}
}
