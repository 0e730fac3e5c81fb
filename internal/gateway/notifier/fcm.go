package notifier

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"laundry-dispatch/internal/ports/notify"
)

type messageSender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// FCM sends data messages to the per-recipient topic "<kind>_<id>".
type FCM struct {
	client messageSender
}

// NewFCM wraps a messaging client.
func NewFCM(client messageSender) *FCM {
	return &FCM{client: client}
}

// DialFCM initialises the Firebase app from a service-account file.
func DialFCM(ctx context.Context, credentialsFile string) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return NewFCM(client), nil
}

// Notify implements notify.Notifier.
func (f *FCM) Notify(ctx context.Context, msg notify.Message) error {
	data := map[string]string{
		"category": string(msg.Category),
		"channel":  string(msg.Channel),
	}
	for k, v := range msg.Payload {
		data[k] = fmt.Sprint(v)
	}
	m := &messaging.Message{
		Topic: Topic(msg),
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := f.client.Send(ctx, m); err != nil {
		return fmt.Errorf("fcm notify %s: %w", msg.Category, err)
	}
	return nil
}

// Topic is the FCM topic a recipient's devices subscribe to.
func Topic(msg notify.Message) string {
	return fmt.Sprintf("%s_%d", msg.Recipient.Kind, msg.Recipient.ID)
}
