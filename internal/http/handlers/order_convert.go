package handlers

import (
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/service/intake"
)

func (l *locationDTO) toModel() *domain.Location {
	if l == nil {
		return nil
	}
	return &domain.Location{
		Point:   geo.Point{Lat: l.Latitude, Lon: l.Longitude},
		Address: l.Address,
	}
}

func locationToDTO(l *domain.Location) *locationDTO {
	if l == nil {
		return nil
	}
	return &locationDTO{Latitude: l.Lat, Longitude: l.Lon, Address: l.Address}
}

func (req createOrderRequest) toModel() intake.Request {
	items := make([]intake.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, intake.ItemRequest{
			ProductKey:  it.ProductKey,
			CategoryKey: it.CategoryKey,
			Quantity:    it.Quantity,
		})
	}
	return intake.Request{
		CustomerID:          req.CustomerID,
		Pickup:              req.Pickup.toModel(),
		Delivery:            req.Delivery.toModel(),
		Items:               items,
		PaymentMethod:       domain.PaymentMethod(req.PaymentMethod),
		PreferredProviderID: req.PreferredProviderID,
		Priority:            domain.Priority(req.Priority),
	}
}

func orderToResponse(o *domain.Order) orderResponse {
	items := make([]lineItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemDTO{
			ProductKey:  it.ProductKey,
			CategoryKey: it.CategoryKey,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.Units(),
			ServiceKind: string(it.ServiceKind),
		})
	}
	return orderResponse{
		ID:                  o.ID,
		CustomerID:          o.CustomerID,
		ProviderID:          o.ProviderID,
		CourierID:           o.CourierID,
		PreferredProviderID: o.PreferredProviderID,
		Pickup:              locationToDTO(o.Pickup),
		Delivery:            locationToDTO(o.Delivery),
		Items:               items,
		Subtotal:            o.Subtotal.Units(),
		DeliveryKm:          o.DeliveryKm,
		DeliveryCharge:      o.DeliveryCharge.Units(),
		GrandTotal:          o.GrandTotal.Units(),
		PaymentMethod:       string(o.PaymentMethod),
		AssignmentAttempts:  o.AssignmentAttempts,
		MaxRadiusKm:         o.MaxRadiusKm,
		Priority:            string(o.Priority),
		Status:              string(o.Status),
		DelayFlagged:        o.DelayFlagged,
		CancelReason:        o.CancelReason,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
		AssignedAt:          o.AssignedAt,
		AcceptedAt:          o.AcceptedAt,
		ReadyAt:             o.ReadyAt,
		OutForDeliveryAt:    o.OutForDeliveryAt,
		DeliveredAt:         o.DeliveredAt,
		CompletedAt:         o.CompletedAt,
		CancelledAt:         o.CancelledAt,
		ETAPickup:           o.ETAPickup,
		ETAReady:            o.ETAReady,
		ETADelivery:         o.ETADelivery,
	}
}
