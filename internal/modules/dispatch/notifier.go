// README: Push notification of delivery offers through Firebase Cloud Messaging.
package dispatch

import (
	"context"
	"strconv"

	"firebase.google.com/go/v4/messaging"
)

type Notifier interface {
	NotifyOffer(ctx context.Context, deviceToken string, r *DeliveryRequest) error
}

type FCMNotifier struct {
	client *messaging.Client
}

func NewFCMNotifier(client *messaging.Client) *FCMNotifier {
	return &FCMNotifier{client: client}
}

func (n *FCMNotifier) NotifyOffer(ctx context.Context, deviceToken string, r *DeliveryRequest) error {
	_, err := n.client.Send(ctx, &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: "New delivery request",
			Body:  "An order is waiting for pickup",
		},
		Data: map[string]string{
			"type":        "delivery_offer",
			"request_id":  string(r.ID),
			"order_id":    string(r.OrderID),
			"provider_id": string(r.ProviderID),
			"attempt":     strconv.Itoa(r.Attempt),
			"expires_at":  strconv.FormatInt(r.ExpiresAt.Unix(), 10),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	return err
}

type noopNotifier struct{}

func (noopNotifier) NotifyOffer(context.Context, string, *DeliveryRequest) error { return nil }
