package transitions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// AutoTransitionPrefix prefixes the generated to_<path> convenience triggers.
const AutoTransitionPrefix = "to_"

// Machine is a compiled hierarchical state machine. Construction resolves
// every state path and callback name; afterwards the machine is immutable and
// safe for concurrent use by any number of bound models.
type Machine struct {
	name            string
	tree            *StateTree
	events          map[string]*event
	initial         *State
	strict          bool
	autoTransitions bool
	machineScopes   []Scope

	prepareEvent      []Callback
	beforeStateChange []Callback
	afterStateChange  []Callback
	finalizeEvent     []Callback

	listeners           []TransitionListener
	listenerFailureMode ListenerFailureMode
	metrics             MetricsRecorder
	logger              Logger

	mu       sync.RWMutex
	bindings map[*Model]*modelBinding
}

type modelBinding struct {
	scopes []Scope
}

// NewMachine compiles cfg into a runnable machine. conditions and callbacks
// resolve the names cfg references; either registry may be nil when cfg
// references none of its kind.
func NewMachine(cfg MachineConfig, conditions *ConditionRegistry, callbacks *CallbackRegistry, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, cloneMachineError(ErrInvalidConfig, "", err, map[string]any{
			"machine": strings.TrimSpace(cfg.Name),
		})
	}

	m := &Machine{
		name:                strings.TrimSpace(cfg.Name),
		autoTransitions:     true,
		listenerFailureMode: ListenerFailureModeFailOpen,
		bindings:            make(map[*Model]*modelBinding),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = normalizeLogger(m.logger)

	if err := m.compile(cfg, conditions, callbacks); err != nil {
		return nil, cloneMachineError(ErrInvalidConfig, "", err, map[string]any{
			"machine": m.name,
		})
	}
	return m, nil
}

// compile builds the state tree and the transition table, resolving every
// referenced callback and condition name exactly once.
func (m *Machine) compile(cfg MachineConfig, conditions *ConditionRegistry, callbacks *CallbackRegistry) error {
	tree := newStateTree(cfg.separator())

	var add func(parent *State, states []StateConfig) error
	add = func(parent *State, states []StateConfig) error {
		for _, sc := range states {
			st, err := tree.add(parent, sc.Name)
			if err != nil {
				return err
			}
			st.onEnter, err = resolveCallbacks(callbacks, sc.OnEnter, "state "+st.Path()+" on_enter")
			if err != nil {
				return err
			}
			st.onExit, err = resolveCallbacks(callbacks, sc.OnExit, "state "+st.Path()+" on_exit")
			if err != nil {
				return err
			}
			if err := add(st, sc.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(nil, cfg.States); err != nil {
		return err
	}

	initial, err := tree.Resolve(cfg.Initial)
	if err != nil {
		return err
	}

	events := make(map[string]*event)
	register := func(t *Transition) {
		ev, ok := events[t.Trigger]
		if !ok {
			ev = newEvent(t.Trigger)
			events[t.Trigger] = ev
		}
		ev.add(t)
	}

	for _, tc := range cfg.Transitions {
		t := &Transition{
			Trigger: normalizeTrigger(tc.Trigger),
			Source:  normalizeName(tc.Source),
			Dest:    normalizeName(tc.Dest),
			Reenter: tc.Reenter,
		}
		where := "transition " + t.Trigger
		if t.Dest != "" {
			if t.dest, err = tree.Resolve(t.Dest); err != nil {
				return err
			}
		}
		if t.Conditions, err = resolveConditions(conditions, tc.Conditions, where+" conditions"); err != nil {
			return err
		}
		if t.Unless, err = resolveConditions(conditions, tc.Unless, where+" unless"); err != nil {
			return err
		}
		if t.Prepare, err = resolveCallbacks(callbacks, tc.Prepare, where+" prepare"); err != nil {
			return err
		}
		if t.Before, err = resolveCallbacks(callbacks, tc.Before, where+" before"); err != nil {
			return err
		}
		if t.After, err = resolveCallbacks(callbacks, tc.After, where+" after"); err != nil {
			return err
		}
		register(t)
	}

	// Auto transitions come after user transitions so explicit candidates for
	// the same trigger keep priority.
	if m.autoTransitions {
		tree.Walk(func(st *State) {
			register(&Transition{
				Trigger: AutoTransitionPrefix + st.Path(),
				Source:  WildcardSource,
				Dest:    st.Path(),
				dest:    st,
			})
		})
	}

	if m.prepareEvent, err = appendResolved(m.prepareEvent, callbacks, cfg.PrepareEvent, "prepare_event"); err != nil {
		return err
	}
	if m.beforeStateChange, err = appendResolved(m.beforeStateChange, callbacks, cfg.BeforeStateChange, "before_state_change"); err != nil {
		return err
	}
	if m.afterStateChange, err = appendResolved(m.afterStateChange, callbacks, cfg.AfterStateChange, "after_state_change"); err != nil {
		return err
	}
	if m.finalizeEvent, err = appendResolved(m.finalizeEvent, callbacks, cfg.FinalizeEvent, "finalize_event"); err != nil {
		return err
	}

	m.tree = tree
	m.events = events
	m.initial = initial
	return nil
}

func resolveCallbacks(reg *CallbackRegistry, names []string, where string) ([]Callback, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]Callback, 0, len(names))
	for _, n := range names {
		cb, ok := reg.Lookup(strings.TrimSpace(n))
		if !ok {
			return nil, fmt.Errorf("%s references unknown callback %q", where, n)
		}
		out = append(out, cb)
	}
	return out, nil
}

func resolveConditions(reg *ConditionRegistry, names []string, where string) ([]Condition, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]Condition, 0, len(names))
	for _, n := range names {
		c, ok := reg.Lookup(strings.TrimSpace(n))
		if !ok {
			return nil, fmt.Errorf("%s references unknown condition %q", where, n)
		}
		out = append(out, c)
	}
	return out, nil
}

func appendResolved(dst []Callback, reg *CallbackRegistry, names []string, where string) ([]Callback, error) {
	resolved, err := resolveCallbacks(reg, names, where)
	if err != nil {
		return dst, err
	}
	return append(dst, resolved...), nil
}

// Name returns the configured machine name.
func (m *Machine) Name() string { return m.name }

// Tree returns the compiled state tree.
func (m *Machine) Tree() *StateTree { return m.tree }

// Initial returns the machine's initial state.
func (m *Machine) Initial() *State { return m.initial }

// Bind registers model with the machine and places it in its starting state.
// Order of precedence: the WithInitialState option, then a state the model
// already carries (restored by deserialization or a previous binding), then
// the machine's initial state. Enter hooks do not run for the starting state.
//
// Bind the model before sharing it between goroutines.
func (m *Machine) Bind(model *Model, opts ...BindOption) error {
	if model == nil {
		return cloneMachineError(ErrPreconditionFailed, "model is required", nil, map[string]any{
			"machine": m.name,
		})
	}
	var bc bindConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&bc)
		}
	}

	start := normalizeName(bc.initial)
	if start == "" {
		start = model.State()
	}
	st := m.initial
	if start != "" {
		resolved, err := m.tree.Resolve(start)
		if err != nil {
			return err
		}
		st = resolved
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bindings[model]; exists {
		return cloneMachineError(ErrAlreadyBound, "", nil, map[string]any{
			"machine": m.name,
			"state":   model.State(),
		})
	}
	model.current.Store(st)
	model.pending = ""
	m.bindings[model] = &modelBinding{scopes: bc.scopes}
	m.logger.Debug("model bound machine=%s state=%s", m.name, st.Path())
	return nil
}

// Unbind removes the model's binding and scope registrations. The model
// keeps its current state and may be bound again, here or elsewhere.
func (m *Machine) Unbind(model *Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bindings[model]; !exists {
		return cloneMachineError(ErrNotBound, "", nil, map[string]any{
			"machine": m.name,
		})
	}
	delete(m.bindings, model)
	return nil
}

// IsBound reports whether model is currently bound to the machine.
func (m *Machine) IsBound(model *Model) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bindings[model]
	return ok
}

// Trigger fires the named event on model and reports whether a transition
// executed. A trigger with no candidate for the current state, or whose every
// candidate was rejected by its conditions, is a no-op reporting
// (false, nil); strict mode turns the no-candidate case into
// ErrNoMatchingTransition.
//
// The invocation holds the model's guard end to end: machine scopes enter
// first, then model scopes, and every entered scope exits in reverse order on
// every control path. A hook calling Trigger on the same model from the same
// goroutine runs nested, without re-acquiring.
func (m *Machine) Trigger(ctx context.Context, model *Model, trigger string, args ...any) (bool, error) {
	trigger = normalizeTrigger(trigger)
	if trigger == "" {
		return false, cloneMachineError(ErrPreconditionFailed, "trigger name is required", nil, map[string]any{
			"machine": m.name,
		})
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.RLock()
	binding, bound := m.bindings[model]
	var modelScopes []Scope
	if bound {
		modelScopes = binding.scopes
	}
	m.mu.RUnlock()
	if !bound {
		return false, cloneMachineError(ErrNotBound, "", nil, map[string]any{
			"machine": m.name,
			"trigger": trigger,
		})
	}

	evt := &EventData{Machine: m, Model: model, Trigger: trigger, Args: args}

	if owned := model.guard.acquire(); owned {
		var stack scopeStack
		defer func() {
			stack.exit()
			model.guard.release()
		}()
		stack.enter(m.machineScopes)
		stack.enter(modelScopes)
	}

	start := time.Now()
	executed, err := m.dispatch(ctx, evt)
	evt.Error = err
	m.finalize(ctx, evt)
	m.record(trigger, time.Since(start), err)
	return executed, err
}

// MustTrigger is Trigger for call sites that treat a no-op as a failure.
// It returns ErrConditionsNotMet when the trigger resolved but no candidate
// passed its conditions, and ErrNoMatchingTransition when nothing resolved.
func (m *Machine) MustTrigger(ctx context.Context, model *Model, trigger string, args ...any) error {
	executed, err := m.Trigger(ctx, model, trigger, args...)
	if err != nil {
		return err
	}
	if executed {
		return nil
	}
	state := model.State()
	fields := map[string]any{
		"machine": m.name,
		"trigger": normalizeTrigger(trigger),
		"state":   state,
	}
	if ev, ok := m.events[normalizeTrigger(trigger)]; ok && len(ev.candidates(state)) > 0 {
		return cloneMachineError(ErrConditionsNotMet, "", nil, fields)
	}
	return cloneMachineError(ErrNoMatchingTransition, "", nil, fields)
}

// CurrentState returns the canonical path of the model's current state.
func (m *Machine) CurrentState(model *Model) (string, error) {
	st, err := m.boundState(model)
	if err != nil {
		return "", err
	}
	return st.Path(), nil
}

// IsIn reports whether the model's current state is the given state or any
// descendant of it.
func (m *Machine) IsIn(model *Model, path string) (bool, error) {
	st, err := m.boundState(model)
	if err != nil {
		return false, err
	}
	target, err := m.tree.Resolve(path)
	if err != nil {
		return false, err
	}
	return st == target || st.IsDescendantOf(target), nil
}

// Triggers returns the trigger names with at least one candidate for the
// model's current state, sorted.
func (m *Machine) Triggers(model *Model) ([]string, error) {
	st, err := m.boundState(model)
	if err != nil {
		return nil, err
	}
	var out []string
	for name, ev := range m.events {
		if len(ev.candidates(st.Path())) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Machine) boundState(model *Model) (*State, error) {
	m.mu.RLock()
	_, bound := m.bindings[model]
	m.mu.RUnlock()
	if !bound {
		return nil, cloneMachineError(ErrNotBound, "", nil, map[string]any{
			"machine": m.name,
		})
	}
	st := model.current.Load()
	if st == nil {
		return nil, cloneMachineError(ErrNotBound, "model has no current state", nil, map[string]any{
			"machine": m.name,
		})
	}
	return st, nil
}

// finalize runs the finalize callbacks on every exit path. Their failures are
// logged and never override the invocation outcome.
func (m *Machine) finalize(ctx context.Context, evt *EventData) {
	if len(m.finalizeEvent) == 0 {
		return
	}
	if err := runCallbacks(ctx, m.finalizeEvent, evt); err != nil {
		withLoggerFields(m.logger.WithContext(ctx), map[string]any{
			"machine": m.name,
			"trigger": evt.Trigger,
		}).Warn("finalize callback failed: %v", err)
	}
}

func (m *Machine) record(trigger string, elapsed time.Duration, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordDuration(trigger, elapsed)
	if err != nil {
		m.metrics.RecordError(trigger)
		return
	}
	m.metrics.RecordSuccess(trigger)
}
