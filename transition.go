package transitions

// WildcardSource matches any current state in a transition definition.
// Wildcard candidates are consulted only after every exact-source candidate
// for the same trigger has been tried.
const WildcardSource = "*"

// Transition is one compiled transition candidate. Candidates for the same
// (trigger, source) pair are tried in registration order; the first whose
// conditions pass wins.
type Transition struct {
	// Trigger is the event name the transition answers to.
	Trigger string
	// Source is a canonical state path or WildcardSource.
	Source string
	// Dest is the canonical destination path. Empty means the transition runs
	// its hooks without changing state.
	Dest string
	// Reenter forces the exit and enter hooks of Dest to run when Dest equals
	// Source. Without it a self-transition changes nothing but still runs its
	// prepare/before/after hooks.
	Reenter bool

	// Conditions must all return true for the candidate to win.
	Conditions []Condition
	// Unless must all return false for the candidate to win.
	Unless []Condition
	// Prepare runs for every candidate attempt, before its guards.
	Prepare []Callback
	// Before runs for the winning candidate, before any state change.
	Before []Callback
	// After runs for the winning candidate, after enter hooks complete.
	After []Callback

	dest *State
}

// Internal reports whether the transition runs hooks without changing state.
func (t *Transition) Internal() bool { return t.Dest == "" }

// event buckets the registered candidates for one trigger name. Exact-source
// candidates are consulted before wildcard ones.
type event struct {
	name     string
	sources  map[string][]*Transition
	wildcard []*Transition
}

func newEvent(name string) *event {
	return &event{
		name:    name,
		sources: make(map[string][]*Transition),
	}
}

func (e *event) add(t *Transition) {
	if t.Source == WildcardSource {
		e.wildcard = append(e.wildcard, t)
		return
	}
	e.sources[t.Source] = append(e.sources[t.Source], t)
}

// candidates returns the transitions eligible for the given source path,
// exact bucket first, wildcard bucket second, registration order preserved
// inside each.
func (e *event) candidates(sourcePath string) []*Transition {
	exact := e.sources[sourcePath]
	if len(e.wildcard) == 0 {
		return exact
	}
	out := make([]*Transition, 0, len(exact)+len(e.wildcard))
	out = append(out, exact...)
	out = append(out, e.wildcard...)
	return out
}
