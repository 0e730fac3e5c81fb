package handlers

import "time"

type locationDTO struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

type itemRequestDTO struct {
	ProductKey  string `json:"product_key"`
	CategoryKey string `json:"category_key"`
	Quantity    int    `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID          int64            `json:"customer_id"`
	Pickup              *locationDTO     `json:"pickup,omitempty"`
	Delivery            *locationDTO     `json:"delivery,omitempty"`
	Items               []itemRequestDTO `json:"items"`
	PaymentMethod       string           `json:"payment_method,omitempty"`
	PreferredProviderID int64            `json:"preferred_provider_id,omitempty"`
	Priority            string           `json:"priority,omitempty"`
}

type cancelOrderRequest struct {
	ActorID   int64  `json:"actor_id"`
	ActorRole string `json:"actor_role"`
	Reason    string `json:"reason"`
}

type lineItemDTO struct {
	ProductKey  string  `json:"product_key"`
	CategoryKey string  `json:"category_key"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	ServiceKind string  `json:"service_kind"`
}

type orderResponse struct {
	ID                  string        `json:"id"`
	CustomerID          int64         `json:"customer_id"`
	ProviderID          int64         `json:"provider_id,omitempty"`
	CourierID           int64         `json:"courier_id,omitempty"`
	PreferredProviderID int64         `json:"preferred_provider_id,omitempty"`
	Pickup              *locationDTO  `json:"pickup,omitempty"`
	Delivery            *locationDTO  `json:"delivery,omitempty"`
	Items               []lineItemDTO `json:"items"`
	Subtotal            float64       `json:"subtotal"`
	DeliveryKm          float64       `json:"delivery_km"`
	DeliveryCharge      float64       `json:"delivery_charge"`
	GrandTotal          float64       `json:"grand_total"`
	PaymentMethod       string        `json:"payment_method"`
	AssignmentAttempts  int           `json:"assignment_attempts"`
	MaxRadiusKm         float64       `json:"max_radius_km"`
	Priority            string        `json:"priority"`
	Status              string        `json:"status"`
	DelayFlagged        bool          `json:"delay_flagged"`
	CancelReason        string        `json:"cancel_reason,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	AssignedAt          *time.Time    `json:"assigned_at,omitempty"`
	AcceptedAt          *time.Time    `json:"accepted_at,omitempty"`
	ReadyAt             *time.Time    `json:"ready_at,omitempty"`
	OutForDeliveryAt    *time.Time    `json:"out_for_delivery_at,omitempty"`
	DeliveredAt         *time.Time    `json:"delivered_at,omitempty"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
	CancelledAt         *time.Time    `json:"cancelled_at,omitempty"`
	ETAPickup           *time.Time    `json:"eta_pickup,omitempty"`
	ETAReady            *time.Time    `json:"eta_ready,omitempty"`
	ETADelivery         *time.Time    `json:"eta_delivery,omitempty"`
}
