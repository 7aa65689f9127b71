package statemanager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstanceLocks_SameInstanceSerializesAcquirers(t *testing.T) {
	locks := newInstanceLocks()
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			unlock := locks.acquire("inst-1")
			defer unlock()

			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}(i)
	}
	wg.Wait()

	assert.Len(t, order, 5)
}

func TestInstanceLocks_DifferentInstancesDoNotBlockEachOther(t *testing.T) {
	locks := newInstanceLocks()

	unlockA := locks.acquire("inst-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := locks.acquire("inst-b")
		defer unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different instance's lock should not block")
	}
}
