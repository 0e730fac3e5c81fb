package kafka

import (
	"fmt"
	"strings"
	"time"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/service/tracking"
)

// Inbound message types.
const (
	TypeCourierLocation = "courier_location"
	TypePaymentSettled  = "payment_settled"
)

// MessageDTO is one message of the inbound dispatch topic.
type MessageDTO struct {
	Type      string    `json:"type"`
	CourierID int64     `json:"courier_id,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
}

// Validate checks the fields required by the message type.
func (m MessageDTO) Validate() error {
	switch strings.TrimSpace(m.Type) {
	case TypeCourierLocation:
		if m.CourierID <= 0 || m.Latitude == nil || m.Longitude == nil {
			return fmt.Errorf("%s: courier_id, latitude and longitude are required: %w", m.Type, apperr.ErrInvalid)
		}
	case TypePaymentSettled:
		if strings.TrimSpace(m.OrderID) == "" {
			return fmt.Errorf("%s: empty order_id: %w", m.Type, apperr.ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown message type %q: %w", m.Type, apperr.ErrInvalid)
	}
	return nil
}

// ToPing converts a validated courier_location message.
func ToPing(m MessageDTO) tracking.Ping {
	p := tracking.Ping{
		CourierID: m.CourierID,
		Heading:   m.Heading,
		Speed:     m.Speed,
		At:        m.Timestamp,
	}
	if m.Latitude != nil && m.Longitude != nil {
		p.Point = geo.Point{Lat: *m.Latitude, Lon: *m.Longitude}
	}
	return p
}
