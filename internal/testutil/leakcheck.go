// Package testutil provides testing utilities for the GoTune application.
package testutil

import (
	"testing"

	"go.uber.org/goleak"
)

// VerifyNoLeaks should be deferred at the start of tests that spawn goroutines.
// It verifies that no goroutines were leaked during the test.
func VerifyNoLeaks(t *testing.T, opts ...goleak.Option) {
	t.Helper()
	goleak.VerifyNone(t, opts...)
}

// IgnoreBadgerGoroutines returns goleak options to ignore badger's background
// value-log GC and compaction goroutines, which outlive a single DB.Close in
// some badger versions during fast test teardown.
func IgnoreBadgerGoroutines() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("github.com/dgraph-io/badger/v4.(*levelsController).runCompactor"),
		goleak.IgnoreTopFunction("github.com/dgraph-io/badger/v4.(*DB).runFlushMemtable"),
		goleak.IgnoreAnyFunction("github.com/dgraph-io/badger/v4.(*DB).updateSize"),
	}
}
