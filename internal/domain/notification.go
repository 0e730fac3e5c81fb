package domain

import "time"

// NotificationCategory classifies outbound user-facing messages.
type NotificationCategory string

const (
	NotifyOrderReceived       NotificationCategory = "ORDER_RECEIVED"
	NotifyOrderAccepted       NotificationCategory = "ORDER_ACCEPTED"
	NotifyOrderReady          NotificationCategory = "ORDER_READY"
	NotifyOrderOutForDelivery NotificationCategory = "ORDER_OUT_FOR_DELIVERY"
	NotifyOrderDelivered      NotificationCategory = "ORDER_DELIVERED"
	NotifyOrderDelayed        NotificationCategory = "ORDER_DELAYED"
	NotifyOrderCancelled      NotificationCategory = "ORDER_CANCELLED"
	NotifyCourierAssigned     NotificationCategory = "COURIER_ASSIGNED"
	NotifyProviderAssigned    NotificationCategory = "PROVIDER_ASSIGNED"
)

// Channel is the transport used to reach the recipient.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInbox Channel = "inbox"
)

// RecipientKind separates the id spaces of customers, providers and couriers.
type RecipientKind string

const (
	RecipientCustomer RecipientKind = "customer"
	RecipientProvider RecipientKind = "provider"
	RecipientCourier  RecipientKind = "courier"
)

// Recipient identifies who receives a notification.
type Recipient struct {
	Kind RecipientKind
	ID   int64
}

// Notification is a stored outbound message.
type Notification struct {
	ID        int64
	Recipient Recipient
	Channel   Channel
	Category  NotificationCategory
	Payload   map[string]any
	CreatedAt time.Time
}
