// Package reqtable implements C2, the correlated request table
// described in spec.md §4.2: it maps an outbound stanza id to the
// state needed to unblock its caller, and bounds how many requests may
// be in flight at once.
package reqtable

import (
	"errors"
	"sync"

	"github.com/nugget/miopubsub/internal/model"
)

// ErrDuplicateID is returned by Add when id is already registered.
// Per spec.md §4.2, the insertion is a no-op and the existing request
// is preserved.
var ErrDuplicateID = errors.New("reqtable: duplicate request id")

// ErrTooManyOpen is returned by Add when the open-request semaphore
// has no permits left.
var ErrTooManyOpen = errors.New("reqtable: too many open requests")

// ErrNotFound is returned by Remove when id is not registered.
var ErrNotFound = errors.New("reqtable: request not found")

// Kind discriminates how a request expects to be matched and
// completed (spec.md §3 "Request").
type Kind int

const (
	ByID Kind = iota
	ByMatch
	Timed
)

// Request is the per-id bookkeeping spec.md §3 describes: a
// completion signal, an optional decoder, and a result slot the
// decoder populates before signalling.
type Request struct {
	ID   string
	Kind Kind

	mu     sync.Mutex
	cond   *sync.Cond
	done   bool
	Result *model.Response
}

// newRequest builds a Request with its condvar wired to its own mutex.
func newRequest(id string, kind Kind) *Request {
	r := &Request{ID: id, Kind: kind}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Signal marks the request complete and wakes any waiter. Safe to call
// more than once; only the first call has effect.
func (r *Request) Signal(result *model.Response) {
	r.mu.Lock()
	if !r.done {
		r.Result = result
		r.done = true
	}
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Wait blocks until Signal has been called or timeoutC fires, whichever
// comes first. It re-checks the predicate on every wake, so it is
// lost-wakeup safe per spec.md §4.2.
func (r *Request) Wait(timeoutC <-chan struct{}) (completed bool) {
	woken := make(chan struct{})
	abandoned := false // guarded by r.mu
	go func() {
		r.mu.Lock()
		for !r.done && !abandoned {
			r.cond.Wait()
		}
		r.mu.Unlock()
		close(woken)
	}()

	select {
	case <-woken:
		return true
	case <-timeoutC:
		// Wake the helper goroutine so it doesn't leak: it re-checks
		// its predicate, sees abandoned, and exits.
		r.mu.Lock()
		abandoned = true
		r.mu.Unlock()
		r.cond.Broadcast()
		return false
	}
}

// Table correlates request ids with their [Request] state and bounds
// concurrent in-flight requests with a counting semaphore, per spec.md
// §4.2 and invariant I2.
type Table struct {
	mu       sync.RWMutex
	entries  map[string]*Request
	sem      chan struct{}
	maxOpen  int
}

// New creates a Table that admits at most maxOpen concurrent requests.
func New(maxOpen int) *Table {
	if maxOpen < 1 {
		maxOpen = 1
	}
	return &Table{
		entries: make(map[string]*Request),
		sem:     make(chan struct{}, maxOpen),
		maxOpen: maxOpen,
	}
}

// Add reserves a permit from the open-request semaphore and inserts a
// new Request under the id, unless id is already present (in which
// case the existing request is preserved and ErrDuplicateID is
// returned, per spec.md §4.2).
func (t *Table) Add(id string, kind Kind) (*Request, error) {
	t.mu.Lock()
	if existing, ok := t.entries[id]; ok {
		t.mu.Unlock()
		return existing, ErrDuplicateID
	}
	t.mu.Unlock()

	select {
	case t.sem <- struct{}{}:
	default:
		return nil, ErrTooManyOpen
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[id]; ok {
		// Lost the race with a concurrent Add for the same id; give
		// back the permit we just reserved.
		<-t.sem
		return existing, ErrDuplicateID
	}
	req := newRequest(id, kind)
	t.entries[id] = req
	return req, nil
}

// AddBlocking is like Add but blocks until a permit is available
// instead of returning ErrTooManyOpen, matching spec.md §8's boundary
// behaviour: "never drops the request silently."
func (t *Table) AddBlocking(id string, kind Kind) (*Request, error) {
	t.mu.Lock()
	if existing, ok := t.entries[id]; ok {
		t.mu.Unlock()
		return existing, ErrDuplicateID
	}
	t.mu.Unlock()

	t.sem <- struct{}{}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[id]; ok {
		<-t.sem
		return existing, ErrDuplicateID
	}
	req := newRequest(id, kind)
	t.entries[id] = req
	return req, nil
}

// Get returns the request registered under id, if any.
func (t *Table) Get(id string) (*Request, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.entries[id]
	return r, ok
}

// Remove deletes the entry under id and releases its semaphore permit.
func (t *Table) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return ErrNotFound
	}
	delete(t.entries, id)
	<-t.sem
	return nil
}

// Signal looks up id and signals it, if present. It is a convenience
// wrapper used by the decode/dispatch path; it does not remove the
// entry (callers remove once they've consumed the result).
func (t *Table) Signal(id string, result *model.Response) bool {
	r, ok := t.Get(id)
	if !ok {
		return false
	}
	r.Signal(result)
	return true
}

// Len reports how many requests are currently open, for tests that
// assert invariant I2 (open permits = maxOpen - len).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// OpenPermits reports how many additional requests may be admitted
// right now.
func (t *Table) OpenPermits() int {
	return t.maxOpen - t.Len()
}

// Ids returns every currently registered request id. The reconnect
// path in internal/connloop does not call it: pending requests stay in
// the table across a reconnect and are neither signalled nor removed
// there.
func (t *Table) Ids() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	return ids
}
