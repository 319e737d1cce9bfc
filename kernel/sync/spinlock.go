// Package sync provides synchronization primitive implementations for spinlocks
// and the scoped guards used to hold them.
package sync

import (
	"runtime"
	"sync/atomic"
)

// attemptsBeforeYielding is the number of failed acquisition attempts after
// which a spinning task yields its time slice.
const attemptsBeforeYielding = 64

var (
	// yieldFn is invoked by Acquire while spinning. It is mocked by tests.
	yieldFn = runtime.Gosched
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. The zero value is an unlocked spinlock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for attempts := uint32(0); !atomic.CompareAndSwapUint32(&l.state, 0, 1); attempts++ {
		if attempts == attemptsBeforeYielding {
			yieldFn()
			attempts = 0
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// AcquireGuard acquires the lock and returns a Guard that releases it. The
// intended use is:
//
//	defer lock.AcquireGuard().Release()
//
// which ties the critical section to the enclosing function so that every
// return path releases the lock.
func (l *Spinlock) AcquireGuard() Guard {
	l.Acquire()
	return Guard{lock: l}
}

// Guard represents a held Spinlock.
type Guard struct {
	lock *Spinlock
}

// Release relinquishes the lock held by the guard. A guard must be released
// exactly once.
func (g Guard) Release() {
	g.lock.Release()
}
