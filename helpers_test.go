package transitions

import (
	"context"
	"fmt"
	"sync"
)

// recorder collects ordered event strings from hooks and scopes across
// goroutines.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) callback(name string) Callback {
	return func(ctx context.Context, evt *EventData) error {
		r.add(name)
		return nil
	}
}

func (r *recorder) scope(name string) Scope {
	return ScopeFunc{
		OnEnter: func() { r.add(name + ".enter") },
		OnExit:  func() { r.add(name + ".exit") },
	}
}

// index returns the position of s in events, -1 when absent.
func (r *recorder) index(s string) int {
	for i, e := range r.list() {
		if e == s {
			return i
		}
	}
	return -1
}

// treeConfig builds the nested fixture used across the package:
// A, B, C{1, 2, 3{a, b, c}}, D, E, F with initial state A.
func treeConfig(sep string) MachineConfig {
	return MachineConfig{
		Name:      "matryoshka",
		Initial:   "A",
		Separator: sep,
		States: []StateConfig{
			{Name: "A"},
			{Name: "B"},
			{Name: "C", Children: []StateConfig{
				{Name: "1"},
				{Name: "2"},
				{Name: "3", Children: []StateConfig{
					{Name: "a"},
					{Name: "b"},
					{Name: "c"},
				}},
			}},
			{Name: "D"},
			{Name: "E"},
			{Name: "F"},
		},
	}
}

// instrumentedTree attaches enter/exit hooks to every state of treeConfig,
// recording "enter <path>" and "exit <path>" events.
func instrumentedTree(sep string, rec *recorder) (MachineConfig, *CallbackRegistry) {
	cfg := treeConfig(sep)
	cbs := NewCallbackRegistry()

	var walk func(prefix string, states []StateConfig) []StateConfig
	walk = func(prefix string, states []StateConfig) []StateConfig {
		out := make([]StateConfig, len(states))
		for i, st := range states {
			path := st.Name
			if prefix != "" {
				path = prefix + sep + st.Name
			}
			enterName := fmt.Sprintf("enter_%s", path)
			exitName := fmt.Sprintf("exit_%s", path)
			if err := cbs.Register(enterName, rec.callback("enter "+path)); err != nil {
				panic(err)
			}
			if err := cbs.Register(exitName, rec.callback("exit "+path)); err != nil {
				panic(err)
			}
			st.OnEnter = []string{enterName}
			st.OnExit = []string{exitName}
			st.Children = walk(path, st.Children)
			out[i] = st
		}
		return out
	}
	cfg.States = walk("", cfg.States)
	return cfg, cbs
}
