package domain

import (
	"time"

	"laundry-dispatch/internal/geo"
)

// CourierStatus represents the status of a courier.
type CourierStatus string

// List of possible courier statuses
const (
	CourierAvailable  CourierStatus = "AVAILABLE"
	CourierBusy       CourierStatus = "BUSY"
	CourierOnDelivery CourierStatus = "ON_DELIVERY"
	CourierOffline    CourierStatus = "OFFLINE"
	CourierSuspended  CourierStatus = "SUSPENDED"
)

var allowedCourierStatuses = [...]CourierStatus{
	CourierAvailable, CourierBusy, CourierOnDelivery, CourierOffline, CourierSuspended,
}

// Valid checks if the CourierStatus is valid
func (s CourierStatus) Valid() bool {
	for _, v := range allowedCourierStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Engaged reports whether the courier is carrying an order.
func (s CourierStatus) Engaged() bool {
	return s == CourierBusy || s == CourierOnDelivery
}

// Courier represents a delivery courier.
type Courier struct {
	ID                   int64
	Name                 string
	Phone                string
	VehicleInfo          string
	Location             *geo.Point
	LastPingAt           *time.Time
	Base                 geo.Point
	ServiceRadiusKm      float64
	Rating               float64
	Status               CourierStatus
	CurrentOrderID       string
	SuccessfulDeliveries int
	TotalDeliveries      int
}

// Selectable reports whether the courier may be bound to a new order.
func (c Courier) Selectable() bool {
	return c.Status == CourierAvailable && c.Location != nil
}
