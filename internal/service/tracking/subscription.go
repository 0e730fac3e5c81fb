package tracking

import (
	"fmt"
	"sync"

	"laundry-dispatch/internal/apperr"
)

// SubscriberKind selects which events a subscription receives.
type SubscriberKind string

const (
	SubscriberCustomer SubscriberKind = "customer"
	SubscriberCourier  SubscriberKind = "courier"
	SubscriberAdmin    SubscriberKind = "admin"
)

// ParseSubscriberKind validates a kind coming from a transport.
func ParseSubscriberKind(s string) (SubscriberKind, error) {
	switch k := SubscriberKind(s); k {
	case SubscriberCustomer, SubscriberCourier, SubscriberAdmin:
		return k, nil
	default:
		return "", fmt.Errorf("subscriber kind %q: %w", s, apperr.ErrInvalid)
	}
}

// Subscription is a handle on the live stream. Events arrive in production order.
type Subscription struct {
	kind SubscriberKind
	id   int64
	ch   chan Event
	reg  *Registry
	once sync.Once
}

// Events returns the receive side. It is closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Kind returns the subscriber kind.
func (s *Subscription) Kind() SubscriberKind { return s.kind }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.reg.unsubscribe(s) })
}

type audience struct {
	customerID int64
	courierID  int64
}

func (s *Subscription) wants(a audience) bool {
	switch s.kind {
	case SubscriberAdmin:
		return true
	case SubscriberCustomer:
		return a.customerID != 0 && s.id == a.customerID
	case SubscriberCourier:
		return a.courierID != 0 && s.id == a.courierID
	}
	return false
}
