package session

import "fmt"

// Phase represents the lifecycle phase of a selection session.
type Phase int32

const (
	// PhaseUninitialized indicates no occurrence load has been requested.
	PhaseUninitialized Phase = iota

	// PhaseLoading indicates the occurrence fetch is in flight.
	PhaseLoading

	// PhaseReady indicates an active week is selected.
	PhaseReady

	// PhaseEmpty indicates no valid occurrence exists. Terminal.
	PhaseEmpty
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseEmpty:
		return "empty"
	default:
		return fmt.Sprintf("phase(%d)", p)
	}
}

// ValidPhaseTransitions defines allowed phase transitions. Ready loops on
// itself for week switches; Empty is terminal.
var ValidPhaseTransitions = map[Phase][]Phase{
	PhaseUninitialized: {PhaseLoading},
	PhaseLoading:       {PhaseReady, PhaseEmpty, PhaseLoading},
	PhaseReady:         {PhaseReady, PhaseLoading},
	PhaseEmpty:         {},
}

// CanTransitionPhase returns true if the transition from -> to is valid.
func CanTransitionPhase(from, to Phase) bool {
	for _, p := range ValidPhaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// PhaseTransitionError represents an invalid phase transition.
type PhaseTransitionError struct {
	From Phase
	To   Phase
}

// Error implements error.
func (e PhaseTransitionError) Error() string {
	return fmt.Sprintf("invalid session phase transition: %s -> %s", e.From, e.To)
}

// CartUIState is the transient save indicator for the active cart.
type CartUIState int32

const (
	// CartIdle indicates no mutation has run yet this week.
	CartIdle CartUIState = iota

	// CartSaving indicates a mutation is in flight.
	CartSaving

	// CartSaved indicates the last mutation completed.
	CartSaved

	// CartError indicates the last mutation failed.
	CartError
)

// String returns the string representation of the cart UI state.
func (s CartUIState) String() string {
	switch s {
	case CartIdle:
		return "idle"
	case CartSaving:
		return "saving"
	case CartSaved:
		return "saved"
	case CartError:
		return "error"
	default:
		return fmt.Sprintf("cart-state(%d)", s)
	}
}
