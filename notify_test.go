package cmap

import "testing"

func TestNotifyAddDel(t *testing.T) {
	tbl := Create(64, nil)
	tbl.Put([]byte("a"), 1)

	cb := func(ev EventType, key []byte, old, new interface{}, ud interface{}) {}
	if errno := tbl.NotifyAdd([]byte("a"), EvReplaced, cb, nil); errno != ESUCCESS {
		t.Fatalf("NotifyAdd = %v, want success", errno)
	}
	if errno := tbl.NotifyAdd([]byte("a"), EvReplaced, cb, nil); errno != EEXIST {
		t.Fatalf("duplicate NotifyAdd = %v, want EEXIST", errno)
	}
	if errno := tbl.NotifyDel([]byte("a"), EvReplaced, cb, false, nil); errno != ESUCCESS {
		t.Fatalf("NotifyDel = %v, want success", errno)
	}
	if errno := tbl.NotifyDel([]byte("a"), EvReplaced, cb, false, nil); errno != ENOENT {
		t.Fatalf("NotifyDel again = %v, want ENOENT", errno)
	}
}

func TestNotifyAddMissingKey(t *testing.T) {
	tbl := Create(64, nil)
	cb := func(ev EventType, key []byte, old, new interface{}, ud interface{}) {}
	if errno := tbl.NotifyAdd([]byte("missing"), EvReplaced, cb, nil); errno != ENOENT {
		t.Fatalf("NotifyAdd on missing key = %v, want ENOENT", errno)
	}
}

func TestNotifyReplacedDeliversOldAndNew(t *testing.T) {
	tbl := Create(64, nil)
	tbl.Put([]byte("a"), "v1")

	var gotOld, gotNew interface{}
	var gotEvents EventType
	tbl.NotifyAdd([]byte("a"), EvReplaced, func(ev EventType, key []byte, old, new interface{}, ud interface{}) {
		gotEvents = ev
		gotOld = old
		gotNew = new
	}, nil)

	tbl.Put([]byte("a"), "v2")
	if gotEvents != EvReplaced {
		t.Fatalf("events = %v, want EvReplaced", gotEvents)
	}
	if gotOld != "v1" || gotNew != "v2" {
		t.Fatalf("old/new = %v/%v, want v1/v2", gotOld, gotNew)
	}
}

func TestNotifyFreeOnlyFromTableWide(t *testing.T) {
	tbl := Create(64, nil)
	tbl.Put([]byte("a"), "v1")

	perEntryFreeCalled := false
	tbl.NotifyAdd([]byte("a"), EvFree, func(ev EventType, key []byte, old, new interface{}, ud interface{}) {
		perEntryFreeCalled = true
	}, nil)

	tableWideFreeCalled := false
	tbl.NotifyAdd(nil, EvFree, func(ev EventType, key []byte, old, new interface{}, ud interface{}) {
		tableWideFreeCalled = true
	}, nil)

	tbl.Put([]byte("a"), "v2") // REPLACED: should synthesize FREE from table-wide only
	if perEntryFreeCalled {
		t.Error("per-entry FREE observer fired on REPLACED, want it silent")
	}
	if !tableWideFreeCalled {
		t.Error("table-wide FREE observer did not fire on REPLACED")
	}
}

func TestNotifyPerEntryFreeFiresOnDestruction(t *testing.T) {
	tbl := Create(64, nil)
	tbl.Put([]byte("a"), "v1")

	freeCalled := false
	tbl.NotifyAdd([]byte("a"), EvFree, func(ev EventType, key []byte, old, new interface{}, ud interface{}) {
		freeCalled = true
	}, nil)

	tbl.Put([]byte("a"), "v2") // REPLACED never derefs the entry
	if freeCalled {
		t.Error("per-entry FREE observer fired on REPLACED, want it silent")
	}

	tbl.Rm([]byte("a")) // actual destruction
	if !freeCalled {
		t.Error("per-entry FREE observer did not fire on destruction")
	}
}

func TestNotifyDedupByUserData(t *testing.T) {
	tbl := Create(64, nil)
	tbl.Put([]byte("a"), 1)
	cb := func(ev EventType, key []byte, old, new interface{}, ud interface{}) {}

	if errno := tbl.NotifyAdd([]byte("a"), EvDeleted, cb, "tag1"); errno != ESUCCESS {
		t.Fatalf("NotifyAdd tag1 = %v, want success", errno)
	}
	if errno := tbl.NotifyAdd([]byte("a"), EvDeleted, cb, "tag2"); errno != ESUCCESS {
		t.Fatalf("NotifyAdd tag2 = %v, want success (different userData)", errno)
	}
	if errno := tbl.NotifyDel([]byte("a"), EvDeleted, cb, true, "tag1"); errno != ESUCCESS {
		t.Fatalf("NotifyDel tag1 = %v, want success", errno)
	}
	// tag2's registration should survive.
	if errno := tbl.NotifyDel([]byte("a"), EvDeleted, cb, true, "tag2"); errno != ESUCCESS {
		t.Fatalf("NotifyDel tag2 = %v, want success", errno)
	}
}

func TestFuncIdentityStable(t *testing.T) {
	cb := func(ev EventType, key []byte, old, new interface{}, ud interface{}) {}
	if funcIdentity(cb) != funcIdentity(cb) {
		t.Error("funcIdentity not stable for the same func value")
	}
}
