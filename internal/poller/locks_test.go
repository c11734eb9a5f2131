package poller

import (
	"testing"
	"time"
)

func TestOLTLockManagerExclusion(t *testing.T) {
	m := newOLTLockManager()
	if !m.TryAcquire("olt-1", time.Second) {
		t.Fatal("first TryAcquire should succeed")
	}

	acquired := make(chan bool, 1)
	go func() {
		acquired <- m.TryAcquire("olt-1", 50*time.Millisecond)
	}()

	select {
	case got := <-acquired:
		if got {
			t.Fatal("second TryAcquire should time out while the lock is held")
		}
	case <-time.After(time.Second):
		t.Fatal("TryAcquire did not return within its timeout")
	}

	m.Release("olt-1")
	if !m.TryAcquire("olt-1", time.Second) {
		t.Fatal("TryAcquire should succeed after Release")
	}
}

func TestOLTLockManagerIndependentKeys(t *testing.T) {
	m := newOLTLockManager()
	if !m.TryAcquire("olt-1", time.Second) {
		t.Fatal("TryAcquire olt-1 should succeed")
	}
	if !m.TryAcquire("olt-2", time.Second) {
		t.Fatal("TryAcquire olt-2 should succeed independently of olt-1's lock")
	}
}

func TestOLTLockManagerDoubleReleaseDoesNotBlock(t *testing.T) {
	m := newOLTLockManager()
	m.TryAcquire("olt-1", time.Second)
	m.Release("olt-1")
	m.Release("olt-1") // must not panic or block
	if !m.TryAcquire("olt-1", time.Second) {
		t.Fatal("lock should still be acquirable after a double release")
	}
}
