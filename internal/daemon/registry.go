package daemon

import "sync"

// registry is the callsign multi-map (spec section 4.1, "The callsign
// index is a multi-map (one callsign may have multiple live connections
// ...)"). One callsign binds to zero or more live, logged-on connections;
// delivery to a callsign fans out to every bound connection.
type registry struct {
	mu   sync.Mutex
	byCS map[string][]*Connection

	atcNames map[string]struct{}
}

func newRegistry(atcNames []string) *registry {
	r := &registry{
		byCS:     make(map[string][]*Connection),
		atcNames: make(map[string]struct{}, len(atcNames)),
	}
	for _, n := range atcNames {
		r.atcNames[n] = struct{}{}
	}
	return r
}

// bind adds c to the callsign's connection set. Callers must have already
// removed c from any prior binding via unbind.
func (r *registry) bind(callsign string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCS[callsign] = append(r.byCS[callsign], c)
}

// unbind removes c from callsign's connection set, if present.
func (r *registry) unbind(callsign string, c *Connection) {
	if callsign == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.byCS[callsign]
	for i, o := range conns {
		if o == c {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.byCS, callsign)
	} else {
		r.byCS[callsign] = conns
	}
}

// lookup returns the live connections currently bound to callsign. The
// returned slice is a copy, safe to iterate without holding the registry
// lock.
func (r *registry) lookup(callsign string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.byCS[callsign]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Connection, len(conns))
	copy(out, conns)
	return out
}

// all returns every currently bound connection, used by the blocklist
// sweep (spec section 4.1 step 6).
func (r *registry) all() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Connection
	for _, conns := range r.byCS {
		out = append(out, conns...)
	}
	return out
}

// isATC reports whether callsign was registered via an atc/name/* config
// key. Informational only: it does not gate the logon (spec section 1
// Non-goals excludes credential authentication).
func (r *registry) isATC(callsign string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.atcNames[callsign]
	return ok
}
