package segment

import "sync"

// Guard protects a value that is written from the device callback and torn
// down by the controller. The callback side never waits: TryWith gives up
// when the lock is held. The controller side uses With and always runs.
type Guard[T any] struct {
	mu    sync.Mutex
	value T
}

// NewGuard wraps an initial value
func NewGuard[T any](value T) *Guard[T] {
	return &Guard[T]{value: value}
}

// TryWith runs fn with the value if the lock is free and reports whether it ran
func (g *Guard[T]) TryWith(fn func(*T)) bool {
	if !g.mu.TryLock() {
		return false
	}
	defer g.mu.Unlock()
	fn(&g.value)
	return true
}

// With blocks until the lock is available and runs fn with the value
func (g *Guard[T]) With(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}
