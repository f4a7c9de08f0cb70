package segment

import (
	"sync"
	"testing"
)

func TestGuard_TryWithFailsWhileHeld(t *testing.T) {
	g := NewGuard(0)

	g.With(func(v *int) {
		*v = 1
		if g.TryWith(func(*int) { t.Error("TryWith ran while the lock was held") }) {
			t.Error("Expected TryWith to report contention")
		}
	})

	if !g.TryWith(func(v *int) { *v++ }) {
		t.Error("Expected TryWith to succeed on a free lock")
	}
	g.With(func(v *int) {
		if *v != 2 {
			t.Errorf("Expected 2, got %d", *v)
		}
	})
}

func TestGuard_WithAlwaysRuns(t *testing.T) {
	g := NewGuard(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.With(func(v *int) { *v++ })
		}()
	}
	wg.Wait()

	g.With(func(v *int) {
		if *v != 50 {
			t.Errorf("Expected 50 increments, got %d", *v)
		}
	})
}
