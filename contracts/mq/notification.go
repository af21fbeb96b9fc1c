package mq

import "time"

const (
	RoutingKeyNotificationPush  = "notification.push"
	RoutingKeyNotificationClose = "notification.close"
)

// NotificationPushPayload 推送给下游推送 worker 的通知
type NotificationPushPayload struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Category           string         `json:"category"`
	Tag                string         `json:"tag,omitempty"`
	RequireInteraction bool           `json:"require_interaction"`
	Data               map[string]any `json:"data,omitempty"`
	Origin             string         `json:"origin"`
	CreatedAt          time.Time      `json:"created_at"`
}

type NotificationClosePayload struct {
	ID       string    `json:"id"`
	Tag      string    `json:"tag,omitempty"`
	Origin   string    `json:"origin"`
	ClosedAt time.Time `json:"closed_at"`
}
