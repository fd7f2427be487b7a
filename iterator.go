package cmap

// Iterator is a pinned-cursor traversal adapted from libqb's
// hashtable_iter_create/_iter_next/_iter_free (original_source/lib/
// hashtable.c): refcount handoff across buckets, one entry pinned at a
// time, notifications for any entry that was concurrently removed fire
// only once the cursor advances past it.
type Iterator struct {
	table  *Table
	bucket int // next bucket to resume scanning from
	pinned *Entry
	pinBkt int // bucket index pinned belongs to
	done   bool
}

// IterCreate returns a cursor starting at bucket 0 with nothing pinned.
// prefix is accepted but not honored, exactly like the original's
// hashtable_iter_create: this implementation has no trie-backed sibling to
// share the signature with, but keeps the parameter since the facade
// contract names it.
func (t *Table) IterCreate(prefix []byte) *Iterator {
	return &Iterator{table: t, bucket: 0}
}

// Next advances the cursor and returns the next key/value, or ok=false at
// end of iteration. It pins the next live entry before releasing the pin
// on the previous one, so a concurrent destruction of the previous entry
// can never drop the cursor's place in the chain.
func (it *Iterator) Next() (key []byte, value interface{}, ok bool) {
	if it.done {
		return nil, nil, false
	}
	t := it.table
	prevPinned := it.pinned
	prevBkt := it.pinBkt

	var found *Entry
	foundBkt := -1
	for b := it.bucket; b < len(t.buckets); b++ {
		bk := &t.buckets[b]
		var resume *Entry
		if prevPinned != nil && b == prevBkt {
			resume = prevPinned.next
		}
		bk.lock()
		e := bk.firstFrom(resume)
		if e != nil {
			e.ref()
		}
		bk.unlock()
		if e != nil {
			found = e
			foundBkt = b
			break
		}
	}

	// step 3: release the previous pin now that the new one (if any) is
	// published, outside of holding two bucket locks at once.
	if prevPinned != nil {
		pb := &t.buckets[prevBkt]
		pb.lock()
		t.deref(pb, prevPinned)
		pb.unlock()
	}

	if found == nil {
		it.pinned = nil
		it.done = true
		return nil, nil, false
	}
	it.pinned = found
	it.pinBkt = foundBkt
	it.bucket = foundBkt
	return found.key, found.value, true
}

// Free releases the cursor, dereffing any still-pinned entry first so a
// cursor abandoned mid-iteration never leaks a pin.
func (it *Iterator) Free() {
	if it.pinned != nil {
		b := &it.table.buckets[it.pinBkt]
		b.lock()
		it.table.deref(b, it.pinned)
		b.unlock()
		it.pinned = nil
	}
	it.done = true
	it.table = nil
}
