package display

import (
	"context"
	"time"

	mqcontracts "concretesync/contracts/mq"
	"concretesync/pkg/circuitbreaker"
)

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	IsConnected() bool
}

// PushDisplay forwards notifications to the push worker over MQ, guarded by a circuit breaker.
type PushDisplay struct {
	publisher Publisher
	breaker   *circuitbreaker.CircuitBreaker
	origin    string
}

func NewPushDisplay(publisher Publisher, breaker *circuitbreaker.CircuitBreaker, origin string) *PushDisplay {
	return &PushDisplay{publisher: publisher, breaker: breaker, origin: origin}
}

// RequestPermission 连接断开或熔断打开时视为 denied
func (d *PushDisplay) RequestPermission(context.Context) (Permission, error) {
	if !d.publisher.IsConnected() || d.breaker.State() == circuitbreaker.StateOpen {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (d *PushDisplay) Show(ctx context.Context, title string, opts Options) (Handle, error) {
	payload := mqcontracts.NotificationPushPayload{
		ID:                 opts.RecordID.String(),
		Title:              title,
		Body:               opts.Body,
		Category:           string(opts.Category),
		Tag:                opts.Tag,
		RequireInteraction: opts.RequireInteraction,
		Data:               opts.Data,
		Origin:             d.origin,
		CreatedAt:          time.Now(),
	}
	err := d.breaker.Execute(func() error {
		return d.publisher.Publish(ctx, mqcontracts.RoutingKeyNotificationPush, payload)
	})
	if err != nil {
		return nil, err
	}
	return &pushHandle{display: d, id: payload.ID, tag: opts.Tag}, nil
}

type pushHandle struct {
	display *PushDisplay
	id      string
	tag     string
}

func (h *pushHandle) Close(ctx context.Context) error {
	payload := mqcontracts.NotificationClosePayload{
		ID:       h.id,
		Tag:      h.tag,
		Origin:   h.display.origin,
		ClosedAt: time.Now(),
	}
	return h.display.breaker.Execute(func() error {
		return h.display.publisher.Publish(ctx, mqcontracts.RoutingKeyNotificationClose, payload)
	})
}
