// Package cmaptest holds stress-test helpers shared by cmap's concurrency
// tests: a goroutine-leak-checked TestMain wrapper and a small worker-pool
// runner for hammering a *cmap.Table from many goroutines at once.
package cmaptest

import (
	"sync"
	"testing"

	"go.uber.org/goleak"
)

// VerifyMain runs m and then fails the whole test binary (via os.Exit,
// inside goleak) if any goroutine is still running afterwards -- a bucket
// lock never released or a notifier callback that blocked forever would
// otherwise pass silently.
func VerifyMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Hammer runs fn in n concurrent goroutines, each iterating count times,
// and waits for all of them to finish. It is the generic shape behind every
// concurrency property test for cmap: many writers/readers/iterators
// racing against the same table.
func Hammer(n, count int, fn func(worker, i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < count; i++ {
				fn(w, i)
			}
		}(w)
	}
	wg.Wait()
}
