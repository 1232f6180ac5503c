package transitions

// transitionPlan is the ordered exit/enter work for one state change.
type transitionPlan struct {
	// exit runs innermost-first: the departing state, then its ancestors up
	// to but excluding the ancestor shared with the destination.
	exit []*State
	// enter runs outermost-first, ending on the destination itself.
	enter []*State
}

// planTransition computes which states a transition leaves and enters.
// Exits stop below the deepest ancestor shared by both ends, so a transition
// within a subtree never exits or re-enters the subtree root. A transition to
// the current state plans no work unless reenter is set, in which case the
// state is exited and entered once.
func planTransition(from, to *State, reenter bool) transitionPlan {
	var plan transitionPlan
	if from == to {
		if reenter {
			plan.exit = []*State{from}
			plan.enter = []*State{to}
		}
		return plan
	}
	lcca := commonAncestor(from, to)
	for st := from; st != lcca; st = st.parent {
		plan.exit = append(plan.exit, st)
	}
	for st := to; st != lcca; st = st.parent {
		plan.enter = append(plan.enter, st)
	}
	for i, j := 0, len(plan.enter)-1; i < j; i, j = i+1, j-1 {
		plan.enter[i], plan.enter[j] = plan.enter[j], plan.enter[i]
	}
	return plan
}
