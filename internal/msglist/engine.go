package msglist

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cpdlc/cpdlcd/internal/catalog"
	"github.com/cpdlc/cpdlcd/internal/transport"
	"github.com/cpdlc/cpdlcd/internal/wire"
)

// TimeFunc returns the local wall-clock hour and minute used to stamp a
// bucket for display, per the pluggable time function in spec
// section 6.4.
type TimeFunc func() (hour, min int)

// UpdateCallback is invoked after the engine's lock has been released,
// with the ids of the threads affected by the triggering event. The list
// passed by Update also includes every thread whose dirty flag is still
// set, whether or not it changed during that call.
type UpdateCallback func(ids []ThreadID)

// Engine is the per-station message-list engine (spec section 4.2). All
// exported operations serialize on a single mutex. The mutex is a plain
// (non-reentrant) sync.Mutex: unlike the original's recursive lock, the
// reply-timeout side effect is implemented as a same-goroutine call to
// an unexported "Locked" helper rather than a second call to Lock, so no
// recursive locking discipline is needed (spec section 9, "Recursive
// lock on the engine").
type Engine struct {
	mu sync.Mutex

	transport transport.Transport
	timeFunc  TimeFunc

	threads  []*Thread
	nextID   ThreadID
	nextMIN  uint32
	updateCb UpdateCallback
}

// New creates an Engine bound to a transport and a display-time
// function. now defaults to time.Now's local hour/minute if nil.
func New(t transport.Transport, now TimeFunc) *Engine {
	if now == nil {
		now = func() (int, int) {
			n := time.Now()
			return n.Hour(), n.Minute()
		}
	}
	e := &Engine{
		transport: t,
		timeFunc:  now,
		nextID:    1,
	}
	t.SetRecvCallback(e.onReceive)
	return e
}

// SetUpdateCallback registers the function invoked after lock release
// whenever threads change.
func (e *Engine) SetUpdateCallback(cb UpdateCallback) {
	e.mu.Lock()
	e.updateCb = cb
	e.mu.Unlock()
}

// Send assigns MIN/MRN to msg, hands it to the transport, and appends it
// to the named thread (or a new one if threadID == NewThread). It
// returns the thread id the message was filed under.
func (e *Engine) Send(msg *wire.Message, threadID ThreadID) (ThreadID, error) {
	e.mu.Lock()

	var t *Thread
	if threadID != NewThread {
		t = e.findByID(threadID)
	}
	if t == nil {
		t = &Thread{ID: e.nextID, Status: Open}
		e.nextID++
		e.threads = append(e.threads, t)
	}

	if err := e.sendLocked(t, msg); err != nil {
		e.mu.Unlock()
		return t.ID, err
	}

	e.recomputeStatusLocked(t)
	id := t.ID
	dirty := t.Dirty
	cb := e.updateCb
	e.mu.Unlock()

	if dirty && cb != nil {
		cb([]ThreadID{id})
	}
	return id, nil
}

// sendLocked assigns MIN/MRN per the rule in spec section 4.2 "MRN
// assignment on send", hands msg to the transport, and appends the
// resulting bucket. Callers must hold e.mu.
func (e *Engine) sendLocked(t *Thread, msg *wire.Message) error {
	dir, haveDir := msg.Direction()

	msg.MRN = wire.InvalidSeqNr
	if haveDir {
		for i := len(t.Buckets) - 1; i >= 0; i-- {
			b := t.Buckets[i]
			bdir, ok := b.Msg.Direction()
			if ok && bdir != dir {
				msg.MRN = b.Msg.MIN
				break
			}
		}
	}

	msg.MIN = e.nextMIN
	e.nextMIN++

	tok, err := e.transport.Send(msg)
	if err != nil {
		log.WithFields(log.Fields{
			"thread": t.ID,
			"min":    msg.MIN,
			"error":  err,
		}).Warn("msglist: send failed")
	}

	hour, min := e.timeFunc()
	t.Buckets = append(t.Buckets, Bucket{
		Msg:       msg,
		Token:     tok,
		Sent:      true,
		Timestamp: time.Now(),
		Hour:      hour,
		Min:       min,
	})
	t.Dirty = true

	return err
}

// onReceive is registered with the transport and implements "Thread
// correlation on receive" (spec section 4.2).
func (e *Engine) onReceive(msg *wire.Message) {
	e.mu.Lock()

	var t *Thread
	if msg.HasMRN() {
		t = e.findByMRN(msg)
	}
	if t == nil {
		t = &Thread{ID: e.nextID, Status: Open}
		e.nextID++
		e.threads = append(e.threads, t)
	}

	hour, min := e.timeFunc()
	t.Buckets = append(t.Buckets, Bucket{
		Msg:       msg,
		Sent:      false,
		Timestamp: time.Now(),
		Hour:      hour,
		Min:       min,
	})
	t.Dirty = true

	e.recomputeStatusLocked(t)

	id := t.ID
	cb := e.updateCb
	e.mu.Unlock()

	if cb != nil {
		cb([]ThreadID{id})
	}
}

// findByMRN walks threads newest->oldest and, within each, buckets
// newest->oldest, matching per the correlation rule: the match succeeds
// when bucket.Msg.MIN == msg.MRN and either (msg is DISREGARD and bucket
// is not-sent) or (bucket is sent). Threads whose status is Closed are
// skipped, letting the front-end force a new thread by closing the
// current one.
func (e *Engine) findByMRN(msg *wire.Message) *Thread {
	isDisregard := false
	if len(msg.Segments) > 0 {
		isDisregard = catalog.IsDisregard(msg.Segments[0].Type)
	}

	for i := len(e.threads) - 1; i >= 0; i-- {
		t := e.threads[i]
		if t.Status == Closed {
			continue
		}
		for j := len(t.Buckets) - 1; j >= 0; j-- {
			b := t.Buckets[j]
			if b.Msg.MIN != msg.MRN {
				continue
			}
			if (isDisregard && !b.Sent) || b.Sent {
				return t
			}
		}
	}
	return nil
}

// Update recomputes the status of every thread, used to pick up
// reply timeouts without incoming traffic.
func (e *Engine) Update() {
	e.mu.Lock()
	var changed []ThreadID
	for _, t := range e.threads {
		before := t.Status
		e.recomputeStatusLocked(t)
		if t.Status != before || t.Dirty {
			changed = append(changed, t.ID)
		}
	}
	cb := e.updateCb
	e.mu.Unlock()

	if len(changed) > 0 && cb != nil {
		cb(changed)
	}
}

func (e *Engine) findByID(id ThreadID) *Thread {
	for _, t := range e.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func catalogLookup(seg wire.Segment) (int, bool) {
	entry, ok := catalog.Lookup(seg.Type)
	if !ok {
		return 0, false
	}
	return entry.TimeoutSeconds, true
}
