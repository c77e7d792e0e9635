// Package testutil provides helpers for tests that spawn goroutines.
//
// t.Fatal and t.FailNow must not be called off the test goroutine:
// they call runtime.Goexit, which stops only the calling goroutine and
// leaves the test hanging. Group collects goroutine errors over a
// channel and reports them from Wait on the test goroutine instead.
package testutil

import (
	"sync"
	"testing"
)

// Group runs test goroutines and gathers their errors.
//
// Usage:
//
//	g := testutil.NewGroup(t)
//	defer g.Wait()
//
//	g.Go(func() error {
//		rep, err := doWork()
//		if err != nil {
//			return fmt.Errorf("work: %w", err)
//		}
//		if rep.Rows == 0 {
//			return fmt.Errorf("no rows written")
//		}
//		return nil
//	})
type Group struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
}

// NewGroup creates a Group reporting against t.
func NewGroup(t *testing.T) *Group {
	return &Group{t: t, errors: make(chan error, 64)}
}

// Go runs fn in a goroutine. A non-nil return is recorded and fails
// the test once Wait runs; fn must return errors instead of calling
// t.Fatal.
func (g *Group) Go(fn func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			select {
			case g.errors <- err:
			default:
				g.t.Logf("error channel full, dropping: %v", err)
			}
		}
	}()
}

// Wait blocks until every goroutine started with Go has returned and
// fails the test if any of them reported an error. Defer it right
// after NewGroup.
func (g *Group) Wait() {
	g.wg.Wait()
	close(g.errors)
	for err := range g.errors {
		g.t.Errorf("goroutine: %v", err)
	}
}
