package call

import (
	"sync"
	"testing"
	"time"
)

func TestDispatcherRunsInOrder(t *testing.T) {
	d := newDispatcher()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		d.enqueue(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.close()

	select {
	case <-d.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	if len(got) != 100 {
		t.Fatalf("expected 100 callbacks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}
}

func TestDispatcherSurvivesPanic(t *testing.T) {
	d := newDispatcher()
	ran := make(chan struct{})

	d.enqueue(func() { panic("boom") })
	d.enqueue(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("callback after panic did not run")
	}
	d.close()
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	d := newDispatcher()
	d.close()
	<-d.stopped

	called := false
	d.enqueue(func() { called = true })
	time.Sleep(10 * time.Millisecond)
	if called {
		t.Error("callback enqueued after close should not run")
	}
}
