package transitions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walkConfig() MachineConfig {
	cfg := treeConfig(".")
	cfg.Transitions = []TransitionConfig{
		{Trigger: "advance", Source: "A", Dest: "B"},
		{Trigger: "advance", Source: "B", Dest: "C"},
		{Trigger: "descend", Source: "C", Dest: "C.3.a"},
		{Trigger: "escape", Source: "C.3.a", Dest: "B"},
		{Trigger: "reset", Source: "*", Dest: "A"},
	}
	return cfg
}

func TestNewMachineValidatesConfig(t *testing.T) {
	_, err := NewMachine(MachineConfig{Name: "empty"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))
	assert.Contains(t, err.Error(), "requires at least one state")

	cfg := treeConfig(".")
	cfg.Initial = "Z"
	_, err = NewMachine(cfg, nil, nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))
	assert.Contains(t, err.Error(), "initial state Z is not declared")
}

func TestNewMachineRejectsUnknownCallbackNames(t *testing.T) {
	cfg := treeConfig(".")
	cfg.Transitions = []TransitionConfig{
		{Trigger: "advance", Source: "A", Dest: "B", Before: []string{"missing"}},
	}
	_, err := NewMachine(cfg, nil, NewCallbackRegistry())
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))
	assert.Contains(t, err.Error(), `references unknown callback "missing"`)
}

func TestBindPlacesModelInInitialState(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))
	assert.True(t, m.IsBound(model))

	state, err := m.CurrentState(model)
	require.NoError(t, err)
	assert.Equal(t, "A", state)
	assert.Equal(t, "A", model.State())
}

func TestBindHonorsInitialStateOption(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model, WithInitialState("C.3.b")))

	state, err := m.CurrentState(model)
	require.NoError(t, err)
	assert.Equal(t, "C.3.b", state)

	other := NewModel()
	err = m.Bind(other, WithInitialState("nope"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnknownState, ErrorCode(err))
	assert.False(t, m.IsBound(other))
}

func TestBindTwiceFails(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))
	err = m.Bind(model)
	require.Error(t, err)
	assert.Equal(t, ErrCodeAlreadyBound, ErrorCode(err))
}

func TestUnbindKeepsModelState(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))
	executed, err := m.Trigger(context.Background(), model, "advance")
	require.NoError(t, err)
	require.True(t, executed)

	require.NoError(t, m.Unbind(model))
	assert.False(t, m.IsBound(model))
	assert.Equal(t, "B", model.State())

	// Rebinding picks the state back up.
	require.NoError(t, m.Bind(model))
	state, err := m.CurrentState(model)
	require.NoError(t, err)
	assert.Equal(t, "B", state)

	err = m.Unbind(NewModel())
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotBound, ErrorCode(err))
}

func TestTriggerOnUnboundModel(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	_, err = m.Trigger(context.Background(), NewModel(), "advance")
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotBound, ErrorCode(err))

	_, err = m.CurrentState(NewModel())
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotBound, ErrorCode(err))
}

func TestTriggerRequiresName(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))
	_, err = m.Trigger(context.Background(), model, "  ")
	require.Error(t, err)
	assert.Equal(t, ErrCodePreconditionFailed, ErrorCode(err))
}

func TestTriggerMovesBetweenStates(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))

	for _, step := range []struct {
		trigger string
		state   string
	}{
		{"advance", "B"},
		{"advance", "C"},
		{"descend", "C.3.a"},
		{"escape", "B"},
		{"reset", "A"},
	} {
		executed, err := m.Trigger(context.Background(), model, step.trigger)
		require.NoError(t, err, step.trigger)
		require.True(t, executed, step.trigger)
		state, err := m.CurrentState(model)
		require.NoError(t, err)
		assert.Equal(t, step.state, state, step.trigger)
	}
}

func TestTriggerPassesArguments(t *testing.T) {
	var got []any
	cbs := NewCallbackRegistry()
	require.NoError(t, cbs.Register("capture", func(ctx context.Context, evt *EventData) error {
		got = append([]any(nil), evt.Args...)
		return nil
	}))

	cfg := treeConfig(".")
	cfg.Transitions = []TransitionConfig{
		{Trigger: "advance", Source: "A", Dest: "B", Before: []string{"capture"}},
	}
	m, err := NewMachine(cfg, nil, cbs)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))
	executed, err := m.Trigger(context.Background(), model, "advance", 42, "payload")
	require.NoError(t, err)
	require.True(t, executed)
	assert.Equal(t, []any{42, "payload"}, got)
}

func TestAutoTransitionsJumpAnywhere(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))

	executed, err := m.Trigger(context.Background(), model, "to_C.3.b")
	require.NoError(t, err)
	require.True(t, executed)
	state, err := m.CurrentState(model)
	require.NoError(t, err)
	assert.Equal(t, "C.3.b", state)
}

func TestAutoTransitionsDisabled(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil, WithAutoTransitions(false))
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))

	executed, err := m.Trigger(context.Background(), model, "to_B")
	require.NoError(t, err)
	assert.False(t, executed)
	state, err := m.CurrentState(model)
	require.NoError(t, err)
	assert.Equal(t, "A", state)
}

func TestUserTransitionOutranksAutoTransition(t *testing.T) {
	cfg := treeConfig(".")
	cfg.Transitions = []TransitionConfig{
		// Deliberately shadows the generated to_B trigger from state A.
		{Trigger: "to_B", Source: "A", Dest: "C"},
	}
	m, err := NewMachine(cfg, nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))

	executed, err := m.Trigger(context.Background(), model, "to_B")
	require.NoError(t, err)
	require.True(t, executed)
	state, err := m.CurrentState(model)
	require.NoError(t, err)
	assert.Equal(t, "C", state, "explicit transition wins over the generated one")

	// From a state the explicit transition does not cover, the generated
	// wildcard still applies.
	executed, err = m.Trigger(context.Background(), model, "to_B")
	require.NoError(t, err)
	require.True(t, executed)
	state, err = m.CurrentState(model)
	require.NoError(t, err)
	assert.Equal(t, "B", state)
}

func TestMustTriggerReportsWhyNothingHappened(t *testing.T) {
	conds := NewConditionRegistry()
	require.NoError(t, conds.Register("never", func(ctx context.Context, evt *EventData) bool {
		return false
	}))

	cfg := treeConfig(".")
	cfg.Transitions = []TransitionConfig{
		{Trigger: "advance", Source: "A", Dest: "B", Conditions: []string{"never"}},
		{Trigger: "retreat", Source: "*", Dest: "A"},
	}
	m, err := NewMachine(cfg, conds, nil, WithAutoTransitions(false))
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))

	err = m.MustTrigger(context.Background(), model, "advance")
	require.Error(t, err)
	assert.Equal(t, ErrCodeConditionsNotMet, ErrorCode(err))

	err = m.MustTrigger(context.Background(), model, "fly")
	require.Error(t, err)
	assert.Equal(t, ErrCodeNoTransition, ErrorCode(err))

	assert.NoError(t, m.MustTrigger(context.Background(), model, "retreat"))
}

func TestStrictTriggersTurnNoMatchIntoError(t *testing.T) {
	conds := NewConditionRegistry()
	require.NoError(t, conds.Register("never", func(ctx context.Context, evt *EventData) bool {
		return false
	}))

	cfg := treeConfig(".")
	cfg.Transitions = []TransitionConfig{
		{Trigger: "advance", Source: "A", Dest: "B", Conditions: []string{"never"}},
	}
	m, err := NewMachine(cfg, conds, nil, WithAutoTransitions(false), WithStrictTriggers(true))
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))

	// Unknown trigger is an error in strict mode.
	executed, err := m.Trigger(context.Background(), model, "fly")
	assert.False(t, executed)
	require.Error(t, err)
	assert.Equal(t, ErrCodeNoTransition, ErrorCode(err))

	// A resolved trigger whose conditions reject stays a quiet no-op.
	executed, err = m.Trigger(context.Background(), model, "advance")
	assert.False(t, executed)
	assert.NoError(t, err)
}

func TestTriggersListsCandidatesForCurrentState(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil, WithAutoTransitions(false))
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))

	triggers, err := m.Triggers(model)
	require.NoError(t, err)
	assert.Equal(t, []string{"advance", "reset"}, triggers)

	auto, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)
	model2 := NewModel()
	require.NoError(t, auto.Bind(model2))
	triggers, err = auto.Triggers(model2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"advance", "reset",
		"to_A", "to_B", "to_C",
		"to_C.1", "to_C.2", "to_C.3",
		"to_C.3.a", "to_C.3.b", "to_C.3.c",
		"to_D", "to_E", "to_F",
	}, triggers)
}

func TestIsInWalksTheHierarchy(t *testing.T) {
	m, err := NewMachine(walkConfig(), nil, nil)
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model, WithInitialState("C.3.a")))

	for path, want := range map[string]bool{
		"C.3.a": true,
		"C.3":   true,
		"C":     true,
		"C.1":   false,
		"B":     false,
	} {
		got, err := m.IsIn(model, path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err = m.IsIn(model, "Z")
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnknownState, ErrorCode(err))
}

func TestMetricsRecorderSeesEveryInvocation(t *testing.T) {
	cbs := NewCallbackRegistry()
	require.NoError(t, cbs.Register("boom", func(ctx context.Context, evt *EventData) error {
		return fmt.Errorf("hook exploded")
	}))

	cfg := treeConfig(".")
	cfg.Transitions = []TransitionConfig{
		{Trigger: "advance", Source: "A", Dest: "B"},
		{Trigger: "detonate", Source: "*", Dest: "D", Before: []string{"boom"}},
	}
	recorder := NewInMemoryMetricsRecorder()
	m, err := NewMachine(cfg, nil, cbs, WithMetrics(recorder))
	require.NoError(t, err)

	model := NewModel()
	require.NoError(t, m.Bind(model))

	executed, err := m.Trigger(context.Background(), model, "advance")
	require.NoError(t, err)
	require.True(t, executed)

	_, err = m.Trigger(context.Background(), model, "detonate")
	require.Error(t, err)

	assert.Equal(t, int64(1), recorder.Successes("advance"))
	assert.Equal(t, int64(0), recorder.Errors("advance"))
	assert.Equal(t, int64(1), recorder.Errors("detonate"))
	assert.Equal(t, int64(0), recorder.Successes("detonate"))
	assert.Greater(t, recorder.TotalDuration("advance"), time.Duration(0))
}
