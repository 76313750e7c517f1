// Package blocklist implements the "is address allowed?" oracle
// consumed by the router daemon (spec section 6.4). The canonical
// blocklist-refresh utility that maintains the rule file's contents is
// an external collaborator; this package only implements the oracle
// interface the daemon polls once per event-loop iteration
// (spec section 4.1, step 6; section 9 "Open question: blocklist race").
package blocklist

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Oracle answers "is this address allowed?" and reports rule-set changes
// since the last call to Refresh.
type Oracle interface {
	// Check reports whether addr is allowed to remain connected.
	Check(addr net.Addr) bool
	// Refresh reports whether the rule set changed since the previous
	// call. It must be safe to call once per event-loop iteration.
	Refresh() bool
	// Close releases any resources (file watches) held by the oracle.
	Close()
}

// Allow is an Oracle that allows every address. It is used when no
// blocklist file is configured.
type Allow struct{}

func (Allow) Check(net.Addr) bool { return true }
func (Allow) Refresh() bool       { return false }
func (Allow) Close()              {}

// FileOracle reads a newline-delimited list of blocked IPs/CIDRs from a
// file and uses fsnotify to detect writes to that file, latching a dirty
// flag that Refresh drains. This gives OS-level change detection while
// preserving the daemon's own "poll once per iteration" semantics: a
// rename/write racing with an in-progress loop iteration is only
// observed on the next call to Refresh, matching the original's
// behavior of closing newly-blocked connections one iteration late.
type FileOracle struct {
	path string

	mu      sync.Mutex
	blocked []*net.IPNet
	dirty   bool

	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// NewFileOracle creates a FileOracle watching path. The file is loaded
// immediately; a missing file is treated as "no rules yet" rather than
// an error, since the daemon may start before the file is provisioned.
// If the file cannot be watched (for example because it does not exist
// yet), Refresh never reloads it, so later changes are not observed.
func NewFileOracle(path string) (*FileOracle, error) {
	o := &FileOracle{
		path: path,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if err := o.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		log.WithFields(log.Fields{
			"path":  path,
			"error": err,
		}).Warn("blocklist: could not watch file, later changes to it will not be picked up")
	}
	o.watcher = watcher

	go o.watch()

	return o, nil
}

func (o *FileOracle) watch() {
	defer close(o.done)
	for {
		select {
		case <-o.stop:
			return
		case ev, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				o.mu.Lock()
				o.dirty = true
				o.mu.Unlock()
			}
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			log.WithFields(log.Fields{"error": err}).Warn("blocklist: watch error")
		}
	}
}

func (o *FileOracle) load() error {
	f, err := os.Open(o.path)
	if err != nil {
		return err
	}
	defer f.Close()

	var nets []*net.IPNet
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "/") {
			if ip := net.ParseIP(line); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				line = ip.String() + "/" + strconv.Itoa(bits)
			}
		}
		_, ipnet, err := net.ParseCIDR(line)
		if err != nil {
			log.WithFields(log.Fields{
				"line":  line,
				"error": err,
			}).Warn("blocklist: skipping unparsable rule")
			continue
		}
		nets = append(nets, ipnet)
	}

	o.mu.Lock()
	o.blocked = nets
	o.mu.Unlock()

	return scanner.Err()
}

// Check reports whether addr is allowed, i.e. it matches none of the
// loaded blocklist entries.
func (o *FileOracle) Check(addr net.Addr) bool {
	host := addrHost(addr)
	if host == nil {
		return true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, n := range o.blocked {
		if n.Contains(host) {
			return false
		}
	}
	return true
}

// Refresh reloads the file if fsnotify observed a change since the last
// call, and reports whether the rule set changed.
func (o *FileOracle) Refresh() bool {
	o.mu.Lock()
	dirty := o.dirty
	o.dirty = false
	o.mu.Unlock()

	if !dirty {
		return false
	}

	if err := o.load(); err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("blocklist: reload failed")
		return false
	}
	return true
}

// Close stops the underlying file watch.
func (o *FileOracle) Close() {
	close(o.stop)
	if o.watcher != nil {
		o.watcher.Close()
	}
	<-o.done
}

func addrHost(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}
