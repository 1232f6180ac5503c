package transitions

import (
	"sync"
	"sync/atomic"
)

// modelGuard serializes trigger invocations on one model. The guard records
// the goroutine that holds it so a hook triggering on its own model runs as a
// nested invocation instead of deadlocking, matching re-entrant lock
// semantics.
//
// A guard is never shared between models: duplicating a model allocates a
// fresh guard, so duplicates synchronize independently of their source.
type modelGuard struct {
	mu    sync.Mutex
	owner atomic.Uint64
}

// acquire locks the guard unless the calling goroutine already holds it.
// It reports whether this call took ownership; nested invocations must not
// release and must not re-enter scopes.
func (g *modelGuard) acquire() bool {
	gid := goroutineID()
	if g.owner.Load() == gid {
		return false
	}
	g.mu.Lock()
	g.owner.Store(gid)
	return true
}

// release clears ownership before unlocking so a waiter never observes a
// stale owner.
func (g *modelGuard) release() {
	g.owner.Store(0)
	g.mu.Unlock()
}

// scopeStack tracks entered scopes so they exit in reverse on every control
// path. Callers defer exit before calling enter; a panic inside a scope's
// Enter still unwinds whatever was entered up to that point.
type scopeStack struct {
	entered []Scope
}

func (s *scopeStack) enter(scopes []Scope) {
	for _, sc := range scopes {
		if sc == nil {
			continue
		}
		sc.Enter()
		s.entered = append(s.entered, sc)
	}
}

func (s *scopeStack) exit() {
	for i := len(s.entered) - 1; i >= 0; i-- {
		s.entered[i].Exit()
	}
	s.entered = s.entered[:0]
}
