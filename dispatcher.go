package transitions

import (
	"context"
	"fmt"
)

// dispatch drives one trigger invocation through the protocol phases:
// resolving -> guard_checking per candidate -> rejected, or executing ->
// committing -> done for the winning candidate. The caller already holds the
// model's guard.
func (m *Machine) dispatch(ctx context.Context, evt *EventData) (bool, error) {
	source := evt.Model.current.Load()
	if source == nil {
		return false, cloneMachineError(ErrNotBound, "model has no current state", nil, map[string]any{
			"machine": m.name,
			"trigger": evt.Trigger,
		})
	}
	evt.Source = source

	fields := map[string]any{
		"machine": m.name,
		"trigger": evt.Trigger,
		"source":  source.Path(),
	}
	logger := withLoggerFields(m.logger.WithContext(ctx), fields)
	logger.Debug("trigger requested")

	if err := m.notify(ctx, PhaseResolving, evt); err != nil {
		return false, err
	}
	if err := runCallbacks(ctx, m.prepareEvent, evt); err != nil {
		logger.Error("prepare event callback failed: %v", err)
		return false, m.hookFailure("prepare event callback failed", err, fields)
	}

	var candidates []*Transition
	if ev, ok := m.events[evt.Trigger]; ok {
		candidates = ev.candidates(source.Path())
	}
	if len(candidates) == 0 {
		logger.Debug("no transition candidates")
		if err := m.notify(ctx, PhaseRejected, evt); err != nil {
			return false, err
		}
		if m.strict {
			return false, cloneMachineError(
				ErrNoMatchingTransition,
				fmt.Sprintf("no transition for trigger=%s state=%s", evt.Trigger, source.Path()),
				nil,
				fields,
			)
		}
		return false, nil
	}

	for idx, tr := range candidates {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		evt.Transition = tr
		evt.Dest = tr.dest

		// Prepare hooks run for every attempt, even when the guards below
		// reject the candidate.
		if err := runCallbacks(ctx, tr.Prepare, evt); err != nil {
			logger.Error("prepare hook failed: %v", err)
			return false, m.hookFailure("prepare hook failed", err, fields)
		}
		if err := m.notify(ctx, PhaseGuardChecking, evt); err != nil {
			return false, err
		}
		pass, err := m.evaluateConditions(ctx, tr, evt, logger)
		if err != nil {
			return false, err
		}
		if !pass {
			logger.Debug("candidate[%d] rejected by conditions", idx)
			continue
		}
		return m.execute(ctx, tr, evt, logger, fields)
	}

	evt.Transition = nil
	evt.Dest = nil
	logger.Debug("all candidates rejected by conditions")
	if err := m.notify(ctx, PhaseRejected, evt); err != nil {
		return false, err
	}
	return false, nil
}

// evaluateConditions applies the candidate's guards in declaration order.
// Every Conditions entry must hold and every Unless entry must fail. A guard
// already running is never preempted; rejection only moves dispatch to the
// next candidate.
func (m *Machine) evaluateConditions(ctx context.Context, tr *Transition, evt *EventData, logger Logger) (bool, error) {
	for i, cond := range tr.Conditions {
		ok, err := safeCondition(ctx, cond, evt)
		if err != nil {
			return false, err
		}
		if !ok {
			logger.Debug("condition[%d] rejected transition", i)
			return false, nil
		}
	}
	for i, cond := range tr.Unless {
		ok, err := safeCondition(ctx, cond, evt)
		if err != nil {
			return false, err
		}
		if ok {
			logger.Debug("unless[%d] rejected transition", i)
			return false, nil
		}
	}
	return true, nil
}

// execute runs the winning candidate. Any failure before the state write
// leaves the model untouched; failures after it propagate with the new state
// kept.
func (m *Machine) execute(ctx context.Context, tr *Transition, evt *EventData, logger Logger, fields map[string]any) (bool, error) {
	if err := m.notify(ctx, PhaseExecuting, evt); err != nil {
		return false, err
	}
	if err := runCallbacks(ctx, tr.Before, evt); err != nil {
		logger.Error("before hook failed: %v", err)
		return false, m.hookFailure("before hook failed", err, fields)
	}

	// A hook-only candidate and a self-transition without reenter change no
	// state: the commit block is skipped entirely.
	commits := tr.dest != nil && (tr.dest != evt.Source || tr.Reenter)
	if commits {
		plan := planTransition(evt.Source, tr.dest, tr.Reenter)

		if err := runCallbacks(ctx, m.beforeStateChange, evt); err != nil {
			logger.Error("before state change callback failed: %v", err)
			return false, m.hookFailure("before state change callback failed", err, fields)
		}
		for _, st := range plan.exit {
			if err := runCallbacks(ctx, st.onExit, evt); err != nil {
				logger.Error("exit hook failed state=%s: %v", st.Path(), err)
				return false, m.hookFailure(fmt.Sprintf("exit hook failed for %s", st.Path()), err, fields)
			}
		}

		evt.Model.current.Store(tr.dest)

		if err := m.notify(ctx, PhaseCommitting, evt); err != nil {
			return true, err
		}
		logger.Info("transition committed source=%s dest=%s", evt.Source.Path(), tr.dest.Path())

		for _, st := range plan.enter {
			if err := runCallbacks(ctx, st.onEnter, evt); err != nil {
				logger.Error("enter hook failed state=%s: %v", st.Path(), err)
				return true, m.hookFailure(fmt.Sprintf("enter hook failed for %s", st.Path()), err, fields)
			}
		}
		if err := runCallbacks(ctx, m.afterStateChange, evt); err != nil {
			logger.Error("after state change callback failed: %v", err)
			return true, m.hookFailure("after state change callback failed", err, fields)
		}
	}

	if err := runCallbacks(ctx, tr.After, evt); err != nil {
		logger.Error("after hook failed: %v", err)
		return true, m.hookFailure("after hook failed", err, fields)
	}
	if err := m.notify(ctx, PhaseDone, evt); err != nil {
		return true, err
	}
	return true, nil
}

func (m *Machine) notify(ctx context.Context, phase Phase, evt *EventData) error {
	return fanoutListeners(ctx, m.listeners, phase, evt, m.listenerFailureMode, m.logger)
}

func (m *Machine) hookFailure(message string, err error, fields map[string]any) error {
	return cloneMachineError(ErrHookFailed, message, err, fields)
}
