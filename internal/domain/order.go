package domain

import (
	"time"

	"laundry-dispatch/internal/geo"
)

// Priority orders pending work in the background sweep.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank is higher for more urgent priorities.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 2
	case PriorityHigh:
		return 1
	default:
		return 0
	}
}

// Valid checks if the Priority is known.
func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityHigh || p == PriorityUrgent
}

// PaymentMethod is how the customer pays for the order.
type PaymentMethod string

const (
	PaymentOnline         PaymentMethod = "ONLINE"
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
)

// Valid checks if the PaymentMethod is known.
func (m PaymentMethod) Valid() bool {
	return m == PaymentOnline || m == PaymentCashOnDelivery
}

// Location is a geocoded address.
type Location struct {
	geo.Point
	Address string `json:"address"`
}

// Order is a customer laundry order. Provider and courier are referenced by id only.
type Order struct {
	ID                  string
	CustomerID          int64
	ProviderID          int64
	CourierID           int64
	PreferredProviderID int64

	Pickup   *Location
	Delivery *Location
	Items    []LineItem

	Subtotal       Money
	DeliveryKm     float64
	DeliveryCharge Money
	GrandTotal     Money
	PaymentMethod  PaymentMethod

	AssignmentAttempts int
	MaxRadiusKm        float64
	Priority           Priority

	Status       OrderStatus
	DelayFlagged bool
	CancelReason string

	CreatedAt        time.Time
	UpdatedAt        time.Time
	AssignedAt       *time.Time
	AcceptedAt       *time.Time
	ReadyAt          *time.Time
	OutForDeliveryAt *time.Time
	DeliveredAt      *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time

	ETAPickup   *time.Time
	ETAReady    *time.Time
	ETADelivery *time.Time
}

// HasProvider reports whether a provider is bound.
func (o *Order) HasProvider() bool { return o.ProviderID != 0 }

// HasCourier reports whether a courier is bound.
func (o *Order) HasCourier() bool { return o.CourierID != 0 }

// SourcePoint is where the provider picks the laundry up: pickup, or delivery when pickup is absent.
func (o *Order) SourcePoint() (geo.Point, bool) {
	switch {
	case o.Pickup != nil:
		return o.Pickup.Point, true
	case o.Delivery != nil:
		return o.Delivery.Point, true
	}
	return geo.Point{}, false
}

// DropPoint is where the courier brings the order: delivery, or pickup when delivery is absent.
func (o *Order) DropPoint() (geo.Point, bool) {
	switch {
	case o.Delivery != nil:
		return o.Delivery.Point, true
	case o.Pickup != nil:
		return o.Pickup.Point, true
	}
	return geo.Point{}, false
}

// RequiresMachine reports whether any line item needs machine processing.
func (o *Order) RequiresMachine() bool {
	for _, it := range o.Items {
		if it.ServiceKind.RequiresMachine() {
			return true
		}
	}
	return false
}

// HoldsProviderLoad reports whether the order counts towards its provider's current_load.
func (o *Order) HoldsProviderLoad() bool {
	if !o.HasProvider() {
		return false
	}
	switch o.Status {
	case OrderAssigned, OrderAccepted, OrderInProgress, OrderReadyForPickup,
		OrderOutForDelivery, OrderDelivered:
		return true
	}
	return false
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]LineItem(nil), o.Items...)
	if o.Pickup != nil {
		p := *o.Pickup
		cp.Pickup = &p
	}
	if o.Delivery != nil {
		d := *o.Delivery
		cp.Delivery = &d
	}
	for _, ts := range []**time.Time{
		&cp.AssignedAt, &cp.AcceptedAt, &cp.ReadyAt, &cp.OutForDeliveryAt, &cp.DeliveredAt,
		&cp.CompletedAt, &cp.CancelledAt, &cp.ETAPickup, &cp.ETAReady, &cp.ETADelivery,
	} {
		if *ts != nil {
			v := **ts
			*ts = &v
		}
	}
	return &cp
}
