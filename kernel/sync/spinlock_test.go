package sync

import (
	"runtime"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestSpinlock(t *testing.T) {
	// Substitute the yieldFn with runtime.Gosched to avoid deadlocks while testing
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		sl         Spinlock
		g          errgroup.Group
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			sl.Acquire()
			sl.Release()
			return nil
		})
	}

	<-time.After(100 * time.Millisecond)
	sl.Release()
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if !sl.TryToAcquire() {
		t.Error("expected TryToAcquire to return true when lock is free")
	}
	sl.Release()
}

func TestGuard(t *testing.T) {
	var (
		sl      Spinlock
		counter int
		g       errgroup.Group
	)

	critical := func(fail bool) (err error) {
		defer sl.AcquireGuard().Release()

		counter++
		if fail {
			// early return must still release the lock
			return errTest
		}
		return nil
	}

	for i := 0; i < 100; i++ {
		fail := i%2 == 0
		g.Go(func() error {
			if err := critical(fail); err != nil && err != errTest {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if exp := 100; counter != exp {
		t.Fatalf("expected counter to be %d; got %d", exp, counter)
	}

	if !sl.TryToAcquire() {
		t.Fatal("expected lock to be released by all guards")
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("early return")
