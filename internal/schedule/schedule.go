// Package schedule computes each channel's start readiness from its
// Formula: the conjunction of every dependency's "wait for target, then
// wait the trailing delays" clause, run concurrently with the formula's
// own top-level start delay. All blocking operations honor a shutdown
// cancellation channel so the run controller can unwind deterministically.
package schedule

import (
	"sync"
	"time"

	"multiplex/internal/bus"
	"multiplex/internal/formula"
)

// Scheduler resolves start conditions against a shared event bus.
type Scheduler struct {
	bus *bus.Bus
}

// New returns a Scheduler backed by b.
func New(b *bus.Bus) *Scheduler {
	return &Scheduler{bus: b}
}

// Await blocks until f's start condition is satisfied, or cancel closes,
// whichever comes first. It returns false iff cancel closed before every
// clause resolved, in which case the caller must not spawn the child.
func (s *Scheduler) Await(cancel <-chan struct{}, f *formula.Formula) bool {
	clauses := 1 + len(f.Deps)
	results := make(chan bool, clauses)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d, err := f.StartDelaySum()
		if err != nil {
			results <- false
			return
		}
		results <- sleepCancelable(cancel, d)
	}()

	for _, dep := range f.Deps {
		wg.Add(1)
		go func(dep formula.Dep) {
			defer wg.Done()
			if dep.Target != "" {
				if _, ok := s.bus.Await(cancel, dep.Target, onFor(dep.On)); !ok {
					results <- false
					return
				}
			}
			after, err := dep.AfterSum()
			if err != nil {
				results <- false
				return
			}
			results <- sleepCancelable(cancel, after)
		}(dep)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	ready := true
	for ok := range results {
		if !ok {
			ready = false
		}
	}
	return ready
}

func onFor(o formula.On) bus.On {
	if o == formula.Start {
		return bus.Started
	}
	return bus.Ended
}

// sleepCancelable sleeps d, returning false early if cancel closes first.
func sleepCancelable(cancel <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-cancel:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-cancel:
		return false
	}
}
