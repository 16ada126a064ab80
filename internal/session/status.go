package session

import "gamesmith/internal/types"

// Status is the lifecycle position of a session. Transitions are restricted
// to the edges in legalTransitions; anything else is rejected.
type Status string

const (
	// StatusInitial is a freshly created session with no plan yet.
	StatusInitial Status = "initial"
	// StatusPlanningComplete means a plan exists and the first cycle may run.
	StatusPlanningComplete Status = "planning_complete"
	// StatusOrchestrating marks a cycle in flight. The executor is the only
	// component that moves a session out of this status.
	StatusOrchestrating Status = "orchestrating"
	// StatusCodingComplete means the last cycle committed and the session is
	// ready for the next instruction or error report.
	StatusCodingComplete Status = "coding_complete"
)

var legalTransitions = map[Status][]Status{
	StatusInitial:          {StatusPlanningComplete},
	StatusPlanningComplete: {StatusOrchestrating},
	StatusOrchestrating:    {StatusCodingComplete},
	StatusCodingComplete:   {StatusOrchestrating},
}

// CanTransition reports whether moving to the given status is legal.
func (s Status) CanTransition(to Status) bool {
	for _, next := range legalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the session to the given status or returns an invalid
// fault naming both ends of the rejected edge.
func (s *Session) Transition(to Status) error {
	if !s.Status.CanTransition(to) {
		return types.Faultf(types.ClassInvalid, "session %s cannot move from %s to %s", s.ID, s.Status, to)
	}
	s.Status = to
	return nil
}

// Reinitialize installs a new plan and returns the session to the
// planning-complete status. This is the one path that bypasses the cycle
// state machine: fragments, assets, and history survive, the plan is
// replaced. Rejected while a cycle is in flight.
func (s *Session) Reinitialize(plan *Plan) error {
	if s.Status == StatusOrchestrating {
		return types.Faultf(types.ClassConflict, "session %s has a cycle in flight", s.ID)
	}
	s.Plan = plan
	s.Status = StatusPlanningComplete
	return nil
}
