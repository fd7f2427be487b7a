package cmap

import "testing"

func TestBucketInsertFindUnlink(t *testing.T) {
	var b bucket
	b.init()

	e1 := &Entry{key: []byte("a"), value: 1, refCnt: 1}
	e2 := &Entry{key: []byte("b"), value: 2, refCnt: 1}
	b.insertTail(e1)
	b.insertTail(e2)

	if got := b.find([]byte("a"), false); got != e1 {
		t.Errorf("find(a) = %v, want e1", got)
	}
	if got := b.find([]byte("b"), false); got != e2 {
		t.Errorf("find(b) = %v, want e2", got)
	}
	if got := b.find([]byte("missing"), false); got != nil {
		t.Errorf("find(missing) = %v, want nil", got)
	}

	b.unlink(e1)
	if got := b.find([]byte("a"), false); got != nil {
		t.Errorf("find(a) after unlink = %v, want nil", got)
	}
	if got := b.find([]byte("b"), false); got != e2 {
		t.Errorf("find(b) after unlinking a = %v, want e2", got)
	}
}

func TestBucketInsertOrderIsTail(t *testing.T) {
	var b bucket
	b.init()
	e1 := &Entry{key: []byte("1"), refCnt: 1}
	e2 := &Entry{key: []byte("2"), refCnt: 1}
	e3 := &Entry{key: []byte("3"), refCnt: 1}
	b.insertTail(e1)
	b.insertTail(e2)
	b.insertTail(e3)

	var order []string
	for e := b.head.next; e != &b.head; e = e.next {
		order = append(order, string(e.key))
	}
	want := []string{"1", "2", "3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("chain order = %v, want %v", order, want)
		}
	}
}

func TestBucketFirstFromSkipsDead(t *testing.T) {
	var b bucket
	b.init()
	live := &Entry{key: []byte("live"), refCnt: 1}
	dead := &Entry{key: []byte("dead"), refCnt: 0}
	b.insertTail(dead)
	b.insertTail(live)

	got := b.firstFrom(nil)
	if got != live {
		t.Fatalf("firstFrom(nil) = %v, want live entry", got)
	}
}

func TestBucketFirstFromResume(t *testing.T) {
	var b bucket
	b.init()
	e1 := &Entry{key: []byte("1"), refCnt: 1}
	e2 := &Entry{key: []byte("2"), refCnt: 1}
	b.insertTail(e1)
	b.insertTail(e2)

	got := b.firstFrom(e1.next)
	if got != e2 {
		t.Fatalf("firstFrom(e1.next) = %v, want e2", got)
	}
}
