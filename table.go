package cmap

// Table is the fixed-size bucket array plus the table-wide state, adapted
// from CallEntryHash (calltr/callentry_lst.go) and hashtable_create/_put/
// _get/_rm/_destroy (original_source/lib/hashtable.c): same bucket sizing
// rule (order = max(3, ceil(log2(max_size)))), same per-bucket-lock-then-
// brief-table-lock discipline, generalized from SIP call entries to
// arbitrary key/value pairs plus the notifier machinery in notify.go.

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errDestroyRetry signals that a bucket still has entries pinned by a
// concurrent iterator (a precondition violation -- Destroy requires no
// outstanding iterators) and the sweep should be retried.
var errDestroyRetry = errors.New("cmap: bucket still has pinned entries")

// Table is a concurrent, observable associative map. The zero value is
// not usable; construct one with Create.
type Table struct {
	buckets []bucket
	order   uint
	ci      bool

	mu    sync.Mutex // table lock: guards count and the table-wide notifier list
	count uint

	notifiers *notifier // table-wide observer list

	stats AllocStats
	cfg   Config

	errno int32 // last allocation-class error, see Errno()

	// allocFailHook, when non-nil, lets tests force a notifier-dispatch
	// snapshot allocation failure without exhausting real memory. Dropping
	// a snapshot is best-effort: the triggering mutation still stands, it
	// just goes unobserved.
	allocFailHook func() bool

	// entryAllocFailHook and notifierAllocFailHook let tests force an
	// out-of-memory condition for Put's entry allocation and NotifyAdd's
	// notifier allocation respectively. Unlike allocFailHook, a failure
	// here aborts the operation and is reported through Errno.
	entryAllocFailHook    func() bool
	notifierAllocFailHook func() bool
}

// Map names the operation set an external map facade would dispatch to;
// it documents the public contract without this package depending on any
// particular dispatcher.
type Map interface {
	Put(key []byte, value interface{})
	Get(key []byte) (interface{}, bool)
	Rm(key []byte) bool
	Count() uint
	Destroy()
}

var _ Map = (*Table)(nil)

// order computes max(3, ceil(log2(maxSize))) by counting the bits of
// maxSize-1.
func order(maxSize int) uint {
	var o uint
	for n := maxSize - 1; n > 0; n >>= 1 {
		o++
	}
	if o < 3 {
		o = 3
	}
	return o
}

// Create allocates a table sized from maxSize (a hint, not a hard cap:
// order = max(3, ceil(log2(maxSize))), bucket count = 2^order). cfg may be
// nil, in which case DefaultConfig is used.
func Create(maxSize int, cfg *Config) *Table {
	o := order(maxSize)
	t := &Table{
		order: o,
		ci:    false,
	}
	if cfg != nil {
		t.cfg = *cfg
	} else {
		t.cfg = DefaultConfig
	}
	t.ci = t.cfg.CaseInsensitiveKeys
	t.buckets = make([]bucket, uint(1)<<o)
	for i := range t.buckets {
		t.buckets[i].init()
	}
	return t
}

func (t *Table) setErrno(e Errno) { atomic.StoreInt32(&t.errno, int32(e)) }

// Errno returns the last allocation-class error recorded by Put or
// NotifyAdd. It is cleared by the next successful Put or NotifyAdd.
func (t *Table) Errno() Errno { return Errno(atomic.LoadInt32(&t.errno)) }

func (t *Table) bucketFor(key []byte) *bucket {
	return &t.buckets[keyHash(key, t.order, t.ci)]
}

func (t *Table) incCount() {
	t.mu.Lock()
	t.count++
	t.mu.Unlock()
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.EntriesChanged(1)
	}
}

func (t *Table) decCount() {
	t.mu.Lock()
	t.count--
	t.mu.Unlock()
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.EntriesChanged(-1)
	}
}

// buildSnapshotLocked takes the table lock briefly to read the table-wide
// notifier list consistently with concurrent NotifyAdd/NotifyDel, and
// builds the dispatch snapshot for `event`. Must be called with the
// entry's bucket lock already held (bucket-then-table lock ordering).
func (t *Table) buildSnapshotLocked(entryHead *notifier, event EventType) *notifyCopy {
	t.mu.Lock()
	failed := t.allocFailHook != nil && t.allocFailHook()
	var snap *notifyCopy
	if !failed {
		snap = buildNotifySnapshot(entryHead, t.notifiers, event, nil)
	}
	t.mu.Unlock()
	if failed && t.cfg.Metrics != nil {
		t.cfg.Metrics.NotifyAllocFailed()
	}
	return snap
}

func (t *Table) notifyMetrics(snap *notifyCopy) {
	if t.cfg.Metrics == nil {
		return
	}
	for c := snap; c != nil; c = c.next {
		t.cfg.Metrics.NotifyDispatched(c.events)
	}
}

// Put inserts or replaces the value for key. On replace, the key/value
// pointers are swapped in place and the caller is responsible for
// reclaiming the old ones via FREE notifiers -- this table never frees
// them itself. If the new entry cannot be allocated, Put leaves the table
// unchanged and records ENOMEM, retrievable via Errno.
func (t *Table) Put(key []byte, value interface{}) {
	b := t.bucketFor(key)
	b.lock()
	e := b.find(key, t.ci)
	if e != nil {
		oldKey, oldValue := e.key, e.value
		e.key = key
		e.value = value
		snap := t.buildSnapshotLocked(e.notifiers, EvReplaced)
		b.unlock()
		t.setErrno(ESUCCESS)
		t.notifyMetrics(snap)
		dispatchNotifySnapshot(snap, oldKey, oldValue, value)
		return
	}
	if t.entryAllocFailHook != nil && t.entryAllocFailHook() {
		b.unlock()
		t.setErrno(ENOMEM)
		ERR("Put: failed to allocate entry for key %q\n", key)
		return
	}
	e = &Entry{key: key, value: value, refCnt: 1}
	b.insertTail(e)
	t.incCount()
	snap := t.buildSnapshotLocked(e.notifiers, EvInserted)
	b.unlock()
	t.setErrno(ESUCCESS)
	t.stats.NewCalls.Inc(1)
	t.notifyMetrics(snap)
	dispatchNotifySnapshot(snap, key, nil, value)
}

// Get looks up key and returns its value by copy, so the caller never
// needs to hold the bucket lock while reading it.
func (t *Table) Get(key []byte) (interface{}, bool) {
	b := t.bucketFor(key)
	b.lock()
	e := b.find(key, t.ci)
	var v interface{}
	ok := e != nil
	if ok {
		v = e.value
	}
	b.unlock()
	return v, ok
}

// Rm removes key if present, dispatching DELETED/FREE notifications
// (deref() may destroy the entry immediately, if it isn't pinned by an
// iterator). Returns true if key was present.
func (t *Table) Rm(key []byte) bool {
	b := t.bucketFor(key)
	b.lock()
	e := b.find(key, t.ci)
	if e == nil {
		b.unlock()
		return false
	}
	t.deref(b, e)
	b.unlock()
	t.decCount()
	return true
}

// deref decrements e's refcount under the bucket lock; on reaching zero,
// it snapshots DELETED (+ synthesized FREE) observers, drops the entry's
// own notifier list, unlinks it from the chain and then dispatches the
// snapshot. Must be called with b locked; b stays locked while the
// callbacks run.
func (t *Table) deref(b *bucket, e *Entry) {
	if e.detached() {
		BUG("deref called on an already-detached entry %p (key %q)\n", e, e.key)
		return
	}
	if e.unrefLocked() > 0 {
		return
	}
	snap := t.buildSnapshotLocked(e.notifiers, EvDeleted)
	key, value := e.key, e.value
	e.notifiers = nil // per-entry notifier copies already captured in snap
	b.unlink(e)
	t.notifyMetrics(snap)
	dispatchNotifySnapshot(snap, key, value, nil)
	t.stats.FreeCalls.Inc(1)
}

// Count returns the current live-entry count.
func (t *Table) Count() uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Destroy tears the table down: every entry is dereffed (firing DELETED/
// FREE notifications), then the table-wide notifier list and bucket array
// are dropped. Requires that no iterator is outstanding. Adapted from
// CallEntryHash.Destroy's retry-the-sweep loop (calltr/callentry_lst.go),
// which re-scans a bucket if an entry can't yet be destroyed; here that
// becomes a bounded exponential backoff instead of a tight spin, and a
// bucket is swept again while entries (e.g. pinned ones) remain linked in
// it after a sweep.
func (t *Table) Destroy() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = time.Second

	for i := range t.buckets {
		b := &t.buckets[i]
		op := func() error {
			b.lock()
			e := b.head.next
			for e != &b.head {
				next := e.next
				t.deref(b, e)
				t.decCount()
				e = next
			}
			remaining := b.head.next != &b.head
			b.unlock()
			if remaining {
				return errDestroyRetry
			}
			return nil
		}
		// best-effort: re-sweep the bucket within a bounded window while
		// entries remain linked in it, then give up on it.
		if err := backoff.Retry(op, bo); err != nil {
			WARN("Destroy: bucket %d still has pinned entries after"+
				" retrying, abandoning\n", i)
		}
	}
	t.mu.Lock()
	t.notifiers = nil
	t.mu.Unlock()
	t.buckets = nil
}
