package domain

import (
	"fmt"
	"time"

	"laundry-dispatch/internal/apperr"
)

// OrderStatus is a state of the order life-cycle.
type OrderStatus string

// List of order statuses
const (
	OrderPending        OrderStatus = "PENDING"
	OrderAssigned       OrderStatus = "ASSIGNED"
	OrderAccepted       OrderStatus = "ACCEPTED"
	OrderRejected       OrderStatus = "REJECTED"
	OrderInProgress     OrderStatus = "IN_PROGRESS"
	OrderReadyForPickup OrderStatus = "READY_FOR_PICKUP"
	OrderOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderDelivered      OrderStatus = "DELIVERED"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderCancelled      OrderStatus = "CANCELLED"
)

// allowedTransitions lists legal destinations per source status.
// REJECTED is transient: the engine moves it back to PENDING right away.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderAssigned, OrderCancelled},
	OrderAssigned:       {OrderAccepted, OrderRejected, OrderCancelled},
	OrderRejected:       {OrderPending, OrderCancelled},
	OrderAccepted:       {OrderInProgress, OrderCancelled},
	OrderInProgress:     {OrderReadyForPickup, OrderCancelled},
	OrderReadyForPickup: {OrderOutForDelivery, OrderCancelled},
	OrderOutForDelivery: {OrderDelivered, OrderCancelled},
	OrderDelivered:      {OrderCompleted, OrderCancelled},
}

// Valid checks if the OrderStatus is known.
func (s OrderStatus) Valid() bool {
	if s.Terminal() {
		return true
	}
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (o *Order) stampFor(to OrderStatus) **time.Time {
	switch to {
	case OrderAssigned:
		return &o.AssignedAt
	case OrderAccepted:
		return &o.AcceptedAt
	case OrderReadyForPickup:
		return &o.ReadyAt
	case OrderOutForDelivery:
		return &o.OutForDeliveryAt
	case OrderDelivered:
		return &o.DeliveredAt
	case OrderCompleted:
		return &o.CompletedAt
	case OrderCancelled:
		return &o.CancelledAt
	}
	return nil
}

// Advance applies the transition to `to`, stamping its timestamp once.
// It leaves the order untouched and returns apperr.ErrIllegalTransition when
// the edge is not allowed or the timestamp is already set.
func (o *Order) Advance(to OrderStatus, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrIllegalTransition, o.Status, to)
	}
	stamp := o.stampFor(to)
	if stamp != nil && *stamp != nil {
		return fmt.Errorf("%w: %s already stamped", apperr.ErrIllegalTransition, to)
	}
	// время не откатываем назад относительно прошлого перехода
	if now.Before(o.UpdatedAt) {
		now = o.UpdatedAt
	}

	if to == OrderPending {
		// rejection voids the provider binding and its stamps
		o.ProviderID = 0
		o.AssignedAt = nil
		o.ETAReady = nil
	}
	if stamp != nil {
		t := now
		*stamp = &t
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}
