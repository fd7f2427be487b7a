package cmap

// notifier registry and snapshot-then-invoke dispatcher, ported from
// libqb's hashtable_notify_add/hashtable_notify_del/copy_notify_list/
// hashtable_notify (original_source/lib/hashtable.c), generalized the way
// calltr/events.go generalizes a fixed SIP event set into a bitmask API.

import "reflect"

// NotifyFunc is the callback signature observers register. INSERTED and
// REPLACED callbacks run after Put has released the bucket lock, so they may
// re-enter the table (Put/Rm/NotifyAdd/NotifyDel). DELETED and FREE
// callbacks fired by an entry's destruction run from deref with that
// entry's bucket lock still held: re-entering the table on a key in the
// same bucket from one of them deadlocks.
type NotifyFunc func(events EventType, key []byte, oldValue, newValue interface{}, userData interface{})

// notifier is one registration, held on an intrusive singly-linked list
// (either an Entry's per-key list or the Table's table-wide list).
type notifier struct {
	events   EventType
	callback NotifyFunc
	userData interface{}
	next     *notifier
}

// funcIdentity returns a comparable identity for a func value. Go func
// values aren't comparable with ==, so registration dedup and removal use
// the underlying code pointer instead, the same trick reflect-based
// equality helpers across the ecosystem use for "is this the same callback".
func funcIdentity(f NotifyFunc) uintptr {
	return reflect.ValueOf(f).Pointer()
}

// notifierListFind reports whether a registration matching (events,
// callback, userData) already exists on head.
func notifierListFind(head *notifier, events EventType, callback NotifyFunc, userData interface{}) bool {
	id := funcIdentity(callback)
	for n := head; n != nil; n = n.next {
		if n.events == events && funcIdentity(n.callback) == id &&
			reflect.DeepEqual(n.userData, userData) {
			return true
		}
	}
	return false
}

// notifierListFindFree reports whether head already carries a FREE-only
// registration (FREE notifiers must be unique per list).
func notifierListFindFree(head *notifier) bool {
	for n := head; n != nil; n = n.next {
		if n.events == EvFree {
			return true
		}
	}
	return false
}

// notifierListPrepend adds n at the head of *head.
func notifierListPrepend(head **notifier, n *notifier) {
	n.next = *head
	*head = n
}

// notifierListAppend adds n at the tail of *head, so FREE notifiers fire
// after every other observer on the same list.
func notifierListAppend(head **notifier, n *notifier) {
	if *head == nil {
		*head = n
		return
	}
	last := *head
	for last.next != nil {
		last = last.next
	}
	last.next = n
}

// notifierListRemove removes every registration matching (events,
// callback), additionally filtered by userData when cmpUserData is set.
// Returns the number removed.
func notifierListRemove(head **notifier, events EventType, callback NotifyFunc, cmpUserData bool, userData interface{}) int {
	id := funcIdentity(callback)
	removed := 0
	var prev *notifier
	n := *head
	for n != nil {
		match := n.events == events && funcIdentity(n.callback) == id &&
			(!cmpUserData || reflect.DeepEqual(n.userData, userData))
		if match {
			removed++
			if prev == nil {
				*head = n.next
			} else {
				prev.next = n.next
			}
			n = n.next
			continue
		}
		prev = n
		n = n.next
	}
	return removed
}

// notifyCopy is one owned, heap-allocated copy in a dispatch snapshot: the
// Go analogue of libqb's malloc'd struct qb_map_notifier copies in
// copy_notify_list/hashtable_notify. Each copy is consumed (its callback
// invoked) exactly once and then dropped.
type notifyCopy struct {
	events   EventType
	callback NotifyFunc
	userData interface{}
	next     *notifyCopy
}

// buildNotifySnapshot walks both the per-entry list and the table-wide
// list and returns a fresh, owned list of copies tagged with `event`. For
// DELETED/REPLACED it additionally synthesizes a FREE-tagged copy for any
// *table-wide* FREE observer. A per-entry FREE observer gets a FREE-tagged
// copy only for DELETED, the event deref() snapshots when it destroys the
// entry; it never fires on REPLACED.
//
// Returns nil (no observers, or the injected allocation-failure hook
// fired) without touching the mutation that triggered it: notifiers are
// advisory and a failed snapshot must never unwind an already-applied
// mutation.
func buildNotifySnapshot(entryHead, tableHead *notifier, event EventType, failAlloc func() bool) *notifyCopy {
	if failAlloc != nil && failAlloc() {
		return nil
	}
	var head, tail *notifyCopy
	app := func(ev EventType, n *notifier) {
		c := &notifyCopy{events: ev, callback: n.callback, userData: n.userData}
		if head == nil {
			head = c
		} else {
			tail.next = c
		}
		tail = c
	}
	for n := entryHead; n != nil; n = n.next {
		if n.events&event != 0 {
			app(event, n)
		}
		// A per-entry FREE registration only ever fires when the entry
		// itself is actually destroyed (DELETED), never on REPLACED: a
		// replace mutates the same Entry in place without dereffing it.
		if event == EvDeleted && n.events&EvFree != 0 {
			app(EvFree, n)
		}
	}
	for n := tableHead; n != nil; n = n.next {
		if n.events&event != 0 {
			app(event, n)
		}
		if event.Test(EvDeleted, EvReplaced) && n.events&EvFree != 0 {
			app(EvFree, n)
		}
	}
	return head
}

// dispatchNotifySnapshot invokes and frees each copy in order. Put calls it
// after releasing the bucket lock; Table.deref calls it with the destroyed
// entry's bucket lock still held. No table lock is held in either case. A
// callback that panics is recovered at this boundary and logged, so one
// misbehaving observer cannot take down the rest of the snapshot.
func dispatchNotifySnapshot(head *notifyCopy, key []byte, oldValue, newValue interface{}) {
	for c := head; c != nil; {
		next := c.next
		invokeNotifyCallback(c, key, oldValue, newValue)
		c = next
	}
}

func invokeNotifyCallback(c *notifyCopy, key []byte, oldValue, newValue interface{}) {
	defer func() {
		if r := recover(); r != nil {
			ERR("notifier callback for event %v panicked: %v\n", c.events, r)
		}
	}()
	c.callback(c.events, key, oldValue, newValue, c.userData)
}

// NotifyAdd registers a callback for events on key (or table-wide if key
// is nil): rejects a duplicate (events, callback, userData) tuple or a
// second FREE registration on the same list with EEXIST, a key absent at
// registration time with ENOENT, and a failed notifier allocation with
// ENOMEM (see Table.setErrno).
func (t *Table) NotifyAdd(key []byte, events EventType, callback NotifyFunc, userData interface{}) Errno {
	if key != nil {
		b, e := t.lockEntryBucket(key)
		if e == nil {
			if b != nil {
				b.unlock()
			}
			return ENOENT
		}
		defer b.unlock()
		return t.addNotifier(&e.notifiers, events, callback, userData)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addNotifier(&t.notifiers, events, callback, userData)
}

func (t *Table) addNotifier(head **notifier, events EventType, callback NotifyFunc, userData interface{}) Errno {
	if events&EvFree != 0 {
		if notifierListFindFree(*head) {
			return EEXIST
		}
	}
	if notifierListFind(*head, events, callback, userData) {
		return EEXIST
	}
	if t.notifierAllocFailHook != nil && t.notifierAllocFailHook() {
		t.setErrno(ENOMEM)
		ERR("NotifyAdd: failed to allocate notifier registration\n")
		return ENOMEM
	}
	n := &notifier{events: events, callback: callback, userData: userData}
	if events&EvFree != 0 {
		notifierListAppend(head, n)
	} else {
		notifierListPrepend(head, n)
	}
	t.setErrno(ESUCCESS)
	return ESUCCESS
}

// NotifyDel deregisters every (events, callback) match on key's list (or
// the table-wide list if key is nil), filtered by userData equality when
// cmpUserData is set.
func (t *Table) NotifyDel(key []byte, events EventType, callback NotifyFunc, cmpUserData bool, userData interface{}) Errno {
	if key != nil {
		b, e := t.lockEntryBucket(key)
		if e == nil {
			if b != nil {
				b.unlock()
			}
			return ENOENT
		}
		defer b.unlock()
		if notifierListRemove(&e.notifiers, events, callback, cmpUserData, userData) == 0 {
			return ENOENT
		}
		return ESUCCESS
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if notifierListRemove(&t.notifiers, events, callback, cmpUserData, userData) == 0 {
		return ENOENT
	}
	return ESUCCESS
}

// lockEntryBucket hashes key, locks its bucket and looks the entry up.
// It always returns the locked bucket, which the caller must unlock; the
// entry is nil on a miss.
func (t *Table) lockEntryBucket(key []byte) (*bucket, *Entry) {
	b := &t.buckets[keyHash(key, t.order, t.ci)]
	b.lock()
	e := b.find(key, t.ci)
	if e == nil {
		return b, nil
	}
	return b, e
}
