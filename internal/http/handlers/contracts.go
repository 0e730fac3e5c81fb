package handlers

import (
	"context"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/service/intake"
	"laundry-dispatch/internal/service/lifecycle"
	"laundry-dispatch/internal/service/tracking"
)

type orderIntake interface {
	Create(ctx context.Context, r intake.Request) (*domain.Order, error)
}

type orderLifecycle interface {
	Order(ctx context.Context, id string) (*domain.Order, error)
	Accept(ctx context.Context, orderID string, providerID int64) (*domain.Order, error)
	Reject(ctx context.Context, orderID string, providerID int64) (*domain.Order, error)
	Start(ctx context.Context, orderID string, providerID int64) (*domain.Order, error)
	MarkReady(ctx context.Context, orderID string, providerID int64) (*domain.Order, error)
	ConfirmPickup(ctx context.Context, orderID string, courierID int64) (*domain.Order, error)
	Deliver(ctx context.Context, orderID string, courierID int64) (*domain.Order, error)
	ConfirmCash(ctx context.Context, orderID string, courierID int64) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, orderID string) (*domain.Order, error)
	Cancel(ctx context.Context, orderID string, actor lifecycle.Actor, reason string) (*domain.Order, error)
}

type trackingRegistry interface {
	PushLocation(ctx context.Context, p tracking.Ping) error
	Get(courierID int64) (domain.TrackingEntry, bool)
	GetAll() []domain.TrackingEntry
	GetOrderTrack(orderID string) (domain.DeliveryTrack, bool)
	Subscribe(kind tracking.SubscriberKind, id int64) (*tracking.Subscription, error)
}

type notificationInbox interface {
	ListNotifications(ctx context.Context, r domain.Recipient, limit int) ([]domain.Notification, error)
}
