package handlers

import (
	"time"

	"laundry-dispatch/internal/domain"
)

type locationPushRequest struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Heading   *float64   `json:"heading,omitempty"`
	Speed     *float64   `json:"speed,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type trackingEntryResponse struct {
	CourierID    int64     `json:"courier_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Heading      *float64  `json:"heading"`
	Speed        *float64  `json:"speed"`
	LastUpdateAt time.Time `json:"last_update_at"`
	Status       string    `json:"status"`
	OrderID      string    `json:"order_id,omitempty"`
}

type deliveryTrackResponse struct {
	OrderID             string      `json:"order_id"`
	CourierID           int64       `json:"courier_id"`
	Destination         locationDTO `json:"destination"`
	ETADelivery         time.Time   `json:"eta_delivery"`
	DistanceRemainingKm float64     `json:"distance_remaining_km"`
}

func entryToResponse(e domain.TrackingEntry) trackingEntryResponse {
	return trackingEntryResponse{
		CourierID:    e.CourierID,
		Latitude:     e.Location.Lat,
		Longitude:    e.Location.Lon,
		Heading:      e.Heading,
		Speed:        e.Speed,
		LastUpdateAt: e.LastUpdateAt,
		Status:       string(e.Status),
		OrderID:      e.OrderID,
	}
}

func trackToResponse(t domain.DeliveryTrack) deliveryTrackResponse {
	return deliveryTrackResponse{
		OrderID:             t.OrderID,
		CourierID:           t.CourierID,
		Destination:         locationDTO{Latitude: t.Destination.Lat, Longitude: t.Destination.Lon},
		ETADelivery:         t.ETADelivery,
		DistanceRemainingKm: t.DistanceRemainingKm,
	}
}

type notificationResponse struct {
	ID        int64          `json:"id"`
	Channel   string         `json:"channel"`
	Category  string         `json:"category"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func notificationToResponse(n domain.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Channel:   string(n.Channel),
		Category:  string(n.Category),
		Payload:   n.Payload,
		CreatedAt: n.CreatedAt,
	}
}
