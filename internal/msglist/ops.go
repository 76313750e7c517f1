package msglist

import "fmt"

// ErrNoSuchThread is returned by operations given an unknown thread id.
var ErrNoSuchThread = fmt.Errorf("msglist: no such thread")

// GetThrIDs enumerates thread ids in insertion order. When ignoreClosed
// is true, threads that are both final-status and not dirty are omitted.
func (e *Engine) GetThrIDs(ignoreClosed bool) []ThreadID {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]ThreadID, 0, len(e.threads))
	for _, t := range e.threads {
		if ignoreClosed && t.Status.IsFinal() && !t.Dirty {
			continue
		}
		ids = append(ids, t.ID)
	}
	return ids
}

// GetThrStatus returns a thread's status and dirty flag.
func (e *Engine) GetThrStatus(id ThreadID) (Status, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.findByID(id)
	if t == nil {
		return 0, false, ErrNoSuchThread
	}
	return t.Status, t.Dirty, nil
}

// ThrMarkSeen clears a thread's dirty flag.
func (e *Engine) ThrMarkSeen(id ThreadID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.findByID(id)
	if t == nil {
		return ErrNoSuchThread
	}
	t.Dirty = false
	return nil
}

// GetThrMsgCount returns the number of buckets in a thread.
func (e *Engine) GetThrMsgCount(id ThreadID) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.findByID(id)
	if t == nil {
		return 0, ErrNoSuchThread
	}
	return len(t.Buckets), nil
}

// GetThrMsg returns the n-th bucket of a thread.
func (e *Engine) GetThrMsg(id ThreadID, n int) (Bucket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.findByID(id)
	if t == nil {
		return Bucket{}, ErrNoSuchThread
	}
	if n < 0 || n >= len(t.Buckets) {
		return Bucket{}, fmt.Errorf("msglist: bucket index %d out of range for thread %d", n, id)
	}
	return t.Buckets[n], nil
}

// ThrClose forces a thread into the Closed status if it is not already
// final. A subsequent reply correlating by MRN to a bucket in this
// thread will start a new thread instead of reopening it (spec section
// 3.4, "closed-thread forces new thread").
func (e *Engine) ThrClose(id ThreadID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.findByID(id)
	if t == nil {
		return ErrNoSuchThread
	}
	if !t.Status.IsFinal() {
		t.Status = Closed
		t.Dirty = true
	}
	return nil
}

// RemoveThr detaches and frees a thread.
func (e *Engine) RemoveThr(id ThreadID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, t := range e.threads {
		if t.ID == id {
			e.threads = append(e.threads[:i], e.threads[i+1:]...)
			return nil
		}
	}
	return ErrNoSuchThread
}
