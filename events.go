package cmap

// notifier event bitmask, following the EventFlags bit-test/bit-set style
// of calltr/events.go, generalized from SIP call-lifecycle events to the
// map's insert/delete/replace/free event set named in the facade contract.

import "fmt"

// EventType is a bitmask of notifier events. The numeric assignments are
// fixed by the facade contract this map implements and must be preserved
// verbatim through notifier snapshots.
type EventType uint8

const (
	EvInserted EventType = 1 << iota // INSERTED
	EvDeleted                        // DELETED
	EvReplaced                       // REPLACED
	EvFree                           // FREE
	EvRecursive                      // RECURSIVE, forwarded as-is
	evLast
)

var evTypeName = [...]string{
	"inserted",
	"deleted",
	"replaced",
	"free",
	"recursive",
}

// Test returns true if any of the given events is set in f.
func (f EventType) Test(events ...EventType) bool {
	for _, e := range events {
		if f&e != 0 {
			return true
		}
	}
	return false
}

// Set returns a copy of f with e added.
func (f EventType) Set(e EventType) EventType {
	return f | e
}

// Clear returns a copy of f with e removed.
func (f EventType) Clear(e EventType) EventType {
	return f &^ e
}

// String renders the set bits as a "|"-joined list, e.g. "inserted|free".
func (f EventType) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	for i, name := range evTypeName {
		e := EventType(1 << uint(i))
		if f&e == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	if s == "" {
		return fmt.Sprintf("unknown(%#x)", uint8(f))
	}
	return s
}
