package assignment

import "laundry-dispatch/internal/domain"

// Outcome is the result kind of one engine run.
type Outcome string

const (
	// OutcomeAssigned means the order was bound.
	OutcomeAssigned Outcome = "assigned"
	// OutcomeNoCandidate means nobody was in reach; the order waits for the sweep.
	OutcomeNoCandidate Outcome = "no_candidate"
	// OutcomeCapacityLost means every candidate was taken by racing binders.
	OutcomeCapacityLost Outcome = "capacity_lost"
	// OutcomeSkipped means the order is not in a state this phase handles.
	OutcomeSkipped Outcome = "skipped"
)

// Result describes what a phase did to an order.
type Result struct {
	Outcome    Outcome
	Order      *domain.Order
	DistanceKm float64
}
