package sponsorship

// =============================================================================
// DEAL WORKFLOW
// =============================================================================

// transitions lists the statuses each status may move to.
//
//	draft -> pending -> active -> completed
//	  ^        |          |
//	  +--------+          +-> cancelled (also from draft, pending)
var transitions = map[DealStatus][]DealStatus{
	DealDraft:   {DealPending, DealCancelled},
	DealPending: {DealDraft, DealActive, DealCancelled},
	DealActive:  {DealCompleted, DealCancelled},
}

// CanTransition reports whether a deal may move from one status to another.
// Completed and cancelled are terminal.
func CanTransition(from, to DealStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns the deal with its status changed, or a
// *TransitionError if the move is not allowed.
func Transition(deal Deal, to DealStatus) (Deal, error) {
	if !CanTransition(deal.Status, to) {
		return deal, &TransitionError{DealID: deal.ID, From: deal.Status, To: to}
	}
	deal.Status = to
	return deal, nil
}

func (s DealStatus) IsValid() bool {
	switch s {
	case DealDraft, DealPending, DealActive, DealCompleted, DealCancelled:
		return true
	}
	return false
}

func (s DealStatus) IsTerminal() bool {
	return s == DealCompleted || s == DealCancelled
}
