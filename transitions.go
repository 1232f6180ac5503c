// Package transitions implements a hierarchical, thread-safe finite state
// machine. States form a tree addressed by canonical dotted paths, transitions
// may cross subtree boundaries, and any number of independent model handles can
// bind to one machine. Trigger invocations on the same model are strictly
// serialized through a per-model lock plus optional user scoped resources;
// invocations on different models proceed in parallel.
package transitions

import (
	"context"
	"strings"
	"sync"
)

// Callback is a user lifecycle hook. Hooks run inline, under the invoking
// model's lock. A non-nil error aborts the invocation; errors after the state
// commit propagate without rolling the state back.
type Callback func(ctx context.Context, evt *EventData) error

// Condition is a guard evaluated before a candidate transition executes.
// All Conditions of a candidate must return true and all Unless conditions
// must return false for the candidate to win.
type Condition func(ctx context.Context, evt *EventData) bool

// EventData carries one trigger invocation through guards and callbacks.
// The dispatcher mutates it as the invocation progresses: Transition and Dest
// track the candidate under evaluation, Error is populated before finalize
// callbacks run.
type EventData struct {
	Machine *Machine
	Model   *Model
	Trigger string
	Args    []any

	// Source is the model's state when dispatch began.
	Source *State
	// Dest is the resolved destination of the candidate; nil while resolving
	// and for hook-only transitions.
	Dest *State
	// Transition is the candidate currently under evaluation, then the winner.
	Transition *Transition
	// Error holds the invocation outcome for finalize callbacks.
	Error error
}

// Scope is a paired enter/exit resource wrapped around a trigger invocation.
// Machine scopes enter before model scopes, exits run in strict reverse order,
// and every entered scope exits on every control path. Enter may block.
type Scope interface {
	Enter()
	Exit()
}

type lockerScope struct {
	l sync.Locker
}

func (s lockerScope) Enter() { s.l.Lock() }
func (s lockerScope) Exit()  { s.l.Unlock() }

// LockerScope adapts a sync.Locker into a Scope.
func LockerScope(l sync.Locker) Scope {
	return lockerScope{l: l}
}

// ScopeFunc builds a Scope from a pair of functions. Either may be nil.
type ScopeFunc struct {
	OnEnter func()
	OnExit  func()
}

func (s ScopeFunc) Enter() {
	if s.OnEnter != nil {
		s.OnEnter()
	}
}

func (s ScopeFunc) Exit() {
	if s.OnExit != nil {
		s.OnExit()
	}
}

// normalizeName trims surrounding whitespace. State and trigger names stay
// case-sensitive: nested trees routinely hold both "A" and "a".
func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

func normalizeTrigger(trigger string) string {
	return strings.TrimSpace(trigger)
}
