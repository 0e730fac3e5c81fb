package domain

import (
	"time"

	"laundry-dispatch/internal/geo"
)

// TrackingEntry is the last known position of one courier.
type TrackingEntry struct {
	CourierID    int64
	Location     geo.Point
	Heading      *float64
	Speed        *float64
	LastUpdateAt time.Time
	Status       CourierStatus
	OrderID      string
}

// DeliveryTrack is the live ETA of one in-flight delivery.
type DeliveryTrack struct {
	OrderID             string
	CourierID           int64
	CustomerID          int64
	Destination         geo.Point
	ETADelivery         time.Time
	DistanceRemainingKm float64
}
