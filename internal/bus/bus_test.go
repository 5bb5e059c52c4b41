package bus

import (
	"testing"
	"time"
)

func TestLatchFiresOnce(t *testing.T) {
	b := New()
	b.FireEnded("A", 7)
	b.FireEnded("A", 9) // second call must not change the latched code

	done := make(chan struct{})
	code, ok := b.Await(done, "A", Ended)
	if !ok || code != 7 {
		t.Fatalf("code=%d ok=%v, want 7,true", code, ok)
	}
}

func TestAwaitBeforeFire(t *testing.T) {
	b := New()
	done := make(chan struct{})
	result := make(chan int, 1)
	go func() {
		code, ok := b.Await(done, "B", Started)
		if !ok {
			result <- -1
			return
		}
		result <- code
	}()

	select {
	case <-result:
		t.Fatal("Await returned before fire")
	case <-time.After(20 * time.Millisecond):
	}

	b.FireStarted("B")

	select {
	case <-result:
	case <-time.After(time.Second):
		t.Fatal("Await did not unblock after fire")
	}
}

func TestAwaitCancelled(t *testing.T) {
	b := New()
	done := make(chan struct{})
	close(done)
	_, ok := b.Await(done, "C", Started)
	if ok {
		t.Fatal("expected ok=false on cancelled await")
	}
}
