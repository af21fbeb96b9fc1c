package display

import (
	"context"
	"time"

	"concretesync/internal/realtime"
)

// ShowPayload is the body of a notification.show event.
type ShowPayload struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Tag                string         `json:"tag,omitempty"`
	Category           string         `json:"category"`
	RequireInteraction bool           `json:"require_interaction"`
	Data               map[string]any `json:"data,omitempty"`
	ShownAt            time.Time      `json:"shown_at"`
}

type ClosePayload struct {
	ID  string `json:"id"`
	Tag string `json:"tag,omitempty"`
}

// SSEDisplay shows notifications on the dashboards connected to this instance.
// Dashboards replace a visible notification that carries the same tag.
type SSEDisplay struct {
	hub *realtime.Hub
}

func NewSSEDisplay(hub *realtime.Hub) *SSEDisplay {
	return &SSEDisplay{hub: hub}
}

// RequestPermission 没有已连接的看板时无法询问，返回 default
func (d *SSEDisplay) RequestPermission(context.Context) (Permission, error) {
	if d.hub.Subscribers() == 0 {
		return PermissionDefault, nil
	}
	return PermissionGranted, nil
}

func (d *SSEDisplay) Show(_ context.Context, title string, opts Options) (Handle, error) {
	id := opts.RecordID.String()
	d.hub.Publish(realtime.Event{
		Event: realtime.EventNotificationShow,
		Data: ShowPayload{
			ID:                 id,
			Title:              title,
			Body:               opts.Body,
			Tag:                opts.Tag,
			Category:           string(opts.Category),
			RequireInteraction: opts.RequireInteraction,
			Data:               opts.Data,
			ShownAt:            time.Now(),
		},
	})
	return &sseHandle{hub: d.hub, payload: ClosePayload{ID: id, Tag: opts.Tag}}, nil
}

type sseHandle struct {
	hub     *realtime.Hub
	payload ClosePayload
}

func (h *sseHandle) Close(context.Context) error {
	h.hub.Publish(realtime.Event{Event: realtime.EventNotificationClose, Data: h.payload})
	return nil
}
