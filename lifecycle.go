package transitions

import (
	"context"
	"strings"
)

// Phase identifies where a trigger invocation stands in the dispatch
// protocol. Every invocation moves resolving -> guard_checking and ends in
// exactly one of rejected or done; state-changing invocations pass through
// executing and committing on the way.
type Phase string

const (
	PhaseResolving     Phase = "resolving"
	PhaseGuardChecking Phase = "guard_checking"
	PhaseRejected      Phase = "rejected"
	PhaseExecuting     Phase = "executing"
	PhaseCommitting    Phase = "committing"
	PhaseDone          Phase = "done"
)

// ListenerFailureMode controls transition-listener error behavior.
type ListenerFailureMode string

const (
	ListenerFailureModeFailOpen   ListenerFailureMode = "fail_open"
	ListenerFailureModeFailClosed ListenerFailureMode = "fail_closed"
)

// TransitionListener observes dispatch phase changes. Listeners run inside
// the invocation, under the model's lock; a failing listener aborts the
// invocation only in fail_closed mode.
type TransitionListener interface {
	Notify(ctx context.Context, phase Phase, evt *EventData) error
}

// ListenerFunc adapts a function to TransitionListener.
type ListenerFunc func(ctx context.Context, phase Phase, evt *EventData) error

func (f ListenerFunc) Notify(ctx context.Context, phase Phase, evt *EventData) error {
	return f(ctx, phase, evt)
}

func normalizeListenerFailureMode(mode ListenerFailureMode) ListenerFailureMode {
	switch ListenerFailureMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case ListenerFailureModeFailClosed:
		return ListenerFailureModeFailClosed
	case ListenerFailureModeFailOpen:
		return ListenerFailureModeFailOpen
	default:
		return ListenerFailureModeFailOpen
	}
}

func fanoutListeners(
	ctx context.Context,
	listeners []TransitionListener,
	phase Phase,
	evt *EventData,
	mode ListenerFailureMode,
	logger Logger,
) error {
	if len(listeners) == 0 {
		return nil
	}
	mode = normalizeListenerFailureMode(mode)
	fields := map[string]any{
		"trigger": evt.Trigger,
		"phase":   string(phase),
	}
	if evt.Machine != nil {
		fields["machine"] = evt.Machine.Name()
	}
	if evt.Source != nil {
		fields["source"] = evt.Source.Path()
	}
	logger = withLoggerFields(normalizeLogger(logger).WithContext(ctx), fields)

	for idx, l := range listeners {
		if l == nil {
			continue
		}
		if err := l.Notify(ctx, phase, evt); err != nil {
			if mode == ListenerFailureModeFailClosed {
				return cloneMachineError(
					ErrPreconditionFailed,
					"transition listener failed",
					err,
					fields,
				)
			}
			logger.Warn("transition listener failed at index=%d: %v", idx, err)
		}
	}
	return nil
}

// runCallbacks executes cbs in order, stopping at the first failure.
func runCallbacks(ctx context.Context, cbs []Callback, evt *EventData) error {
	for _, cb := range cbs {
		if err := safeCallback(ctx, cb, evt); err != nil {
			return err
		}
	}
	return nil
}
