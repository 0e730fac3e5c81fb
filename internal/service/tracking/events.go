package tracking

import "time"

// Event types of the live stream.
const (
	EventDriverLocation    = "driver_location_update"
	EventDeliveryLocation  = "delivery_location_update"
	EventDeliveryStarted   = "delivery_started"
	EventDeliveryCompleted = "delivery_completed"
)

// Event is one message of the live stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DriverLocation is the payload of driver_location_update.
type DriverLocation struct {
	DriverID  int64     `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Heading   *float64  `json:"heading"`
	Speed     *float64  `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// DeliveryLocation is the payload of delivery_location_update.
type DeliveryLocation struct {
	OrderID             string         `json:"order_id"`
	DriverLocation      DriverLocation `json:"driver_location"`
	EstimatedArrival    time.Time      `json:"estimated_arrival"`
	DistanceRemainingKm float64        `json:"distance_remaining_km"`
}

// DeliveryStarted is the payload of delivery_started.
type DeliveryStarted struct {
	OrderID     string `json:"order_id"`
	DriverID    int64  `json:"driver_id"`
	DriverName  string `json:"driver_name"`
	VehicleInfo string `json:"vehicle_info"`
}

// DeliveryCompleted is the payload of delivery_completed.
type DeliveryCompleted struct {
	OrderID     string    `json:"order_id"`
	CompletedAt time.Time `json:"completed_at"`
}
