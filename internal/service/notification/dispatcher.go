package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"concretesync/internal/display"
	"concretesync/internal/model"
	"concretesync/pkg/logger"
	"concretesync/pkg/metrics"
	"concretesync/pkg/trace"
)

const DefaultAutoDismiss = 10 * time.Second

type Decision string

const (
	DecisionEmit            Decision = "emit"
	DecisionGlobalDisabled  Decision = "suppressed_disabled"
	DecisionCategoryOff     Decision = "suppressed_category"
	DecisionQuietHours      Decision = "suppressed_quiet_hours"
	DecisionDispatcherClose Decision = "dispatcher_closed"
)

// ConfigSource is satisfied by *ConfigStore.
type ConfigSource interface {
	Get() model.NotificationConfig
}

// RecordAppender is satisfied by *Service.
type RecordAppender interface {
	Append(ctx context.Context, rec model.Record) bool
}

type DispatcherOptions struct {
	Location    *time.Location
	AutoDismiss time.Duration
}

// Dispatcher decides whether a domain event becomes a notification. The decision and the
// record append run in the caller; display work runs in the background and never reports back.
type Dispatcher struct {
	configs     ConfigSource
	records     RecordAppender
	display     display.Display
	location    *time.Location
	autoDismiss time.Duration
	now         func() time.Time
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewDispatcher(configs ConfigSource, records RecordAppender, d display.Display, opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.AutoDismiss <= 0 {
		opts.AutoDismiss = DefaultAutoDismiss
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		configs:     configs,
		records:     records,
		display:     d,
		location:    opts.Location,
		autoDismiss: opts.AutoDismiss,
		now:         time.Now,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Decide applies, in order: global switch, category switch, quiet hours.
func Decide(cfg model.NotificationConfig, category model.Category, now time.Time, categoryExempt bool) Decision {
	if !cfg.Enabled {
		return DecisionGlobalDisabled
	}
	if !categoryExempt && !cfg.CategoryEnabled(category) {
		return DecisionCategoryOff
	}
	if InQuietHours(cfg.QuietHours, now) {
		return DecisionQuietHours
	}
	return DecisionEmit
}

// Dispatch evaluates n against the current configuration and emits it when allowed.
func (d *Dispatcher) Dispatch(ctx context.Context, n model.Notification) Decision {
	return d.dispatch(ctx, n, false)
}

func (d *Dispatcher) dispatch(ctx context.Context, n model.Notification, categoryExempt bool) Decision {
	log := logger.WithTrace(ctx, d.logger)
	now := d.now()

	decision := Decide(d.configs.Get(), n.Category, now.In(d.location), categoryExempt)
	metrics.RecordDispatchDecision(string(n.Category), string(decision))
	if decision != DecisionEmit {
		log.Debug("Notification suppressed",
			zap.String("category", string(n.Category)),
			zap.String("tag", n.Tag),
			zap.String("decision", string(decision)),
		)
		return decision
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return DecisionDispatcherClose
	}
	d.wg.Add(1)
	d.mu.Unlock()

	id := n.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	rec := model.Record{
		ID:        id,
		Title:     n.Title,
		Body:      n.Body,
		Category:  n.Category,
		Tag:       n.Tag,
		CreatedAt: now,
		Data:      n.Data,
	}
	d.records.Append(ctx, rec)

	opts := display.Options{
		RecordID:           id,
		Body:               n.Body,
		Tag:                n.Tag,
		Category:           n.Category,
		RequireInteraction: n.RequireInteraction,
		Data:               n.Data,
	}
	displayCtx := trace.WithContext(d.ctx, trace.FromContext(ctx))
	go d.show(displayCtx, n.Title, opts)

	log.Info("Notification dispatched",
		zap.String("id", id.String()),
		zap.String("category", string(n.Category)),
		zap.String("tag", n.Tag),
	)
	return DecisionEmit
}

func (d *Dispatcher) show(ctx context.Context, title string, opts display.Options) {
	defer d.wg.Done()
	log := logger.WithTrace(ctx, d.logger)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDisplayFailure("panic")
			log.Error("Notification display panic recovered", zap.Any("panic", r))
		}
	}()

	perm, err := d.display.RequestPermission(ctx)
	if err != nil {
		metrics.RecordDisplayFailure("permission")
		log.Warn("Notification permission request failed", zap.Error(err))
		return
	}
	if perm != display.PermissionGranted {
		log.Debug("Notification display not permitted", zap.String("permission", string(perm)))
		return
	}

	handle, err := d.display.Show(ctx, title, opts)
	if err != nil {
		metrics.RecordDisplayFailure("show")
		log.Warn("Failed to show notification",
			zap.String("tag", opts.Tag),
			zap.Error(err),
		)
	}
	if handle == nil || opts.RequireInteraction {
		return
	}

	timer := time.NewTimer(d.autoDismiss)
	defer timer.Stop()
	select {
	case <-timer.C:
		if err := handle.Close(ctx); err != nil {
			log.Debug("Failed to auto-dismiss notification", zap.Error(err))
		}
	case <-ctx.Done():
	}
}

// Close cancels pending auto-dismiss timers and waits for in-flight display work. Idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// OrderEvent describes an order for the order helpers.
type OrderEvent struct {
	RecordID   uuid.UUID
	OrderID    string
	Status     string
	PrevStatus string
	Volume     string
	Site       string
}

type DeliveryEvent struct {
	RecordID   uuid.UUID
	DeliveryID string
	OrderID    string
	Truck      string
	Site       string
	ETAMinutes int64
}

type WeatherAlert struct {
	RecordID  uuid.UUID
	Site      string
	Condition string
	Message   string
}

func (d *Dispatcher) NotifyNewOrder(ctx context.Context, o OrderEvent) Decision {
	body := fmt.Sprintf("Order %s", o.OrderID)
	if o.Volume != "" {
		body += fmt.Sprintf(": %s m³", o.Volume)
	}
	if o.Site != "" {
		body += " for " + o.Site
	}
	return d.Dispatch(ctx, model.Notification{
		ID:       o.RecordID,
		Category: model.CategoryOrderUpdate,
		Title:    "New order received",
		Body:     body,
		Tag:      "order-" + o.OrderID,
		Data:     map[string]any{"type": "order", "order_id": o.OrderID, "url": "/orders/" + o.OrderID},
	})
}

func (d *Dispatcher) NotifyOrderStatus(ctx context.Context, o OrderEvent) Decision {
	return d.Dispatch(ctx, model.Notification{
		ID:       o.RecordID,
		Category: model.CategoryOrderUpdate,
		Title:    "Order status changed",
		Body:     fmt.Sprintf("Order %s is now %s", o.OrderID, o.Status),
		Tag:      "order-" + o.OrderID,
		Data: map[string]any{
			"type":            "order",
			"order_id":        o.OrderID,
			"status":          o.Status,
			"previous_status": o.PrevStatus,
			"url":             "/orders/" + o.OrderID,
		},
	})
}

// NotifyDeliveryImminent always requires interaction.
func (d *Dispatcher) NotifyDeliveryImminent(ctx context.Context, e DeliveryEvent) Decision {
	body := fmt.Sprintf("Delivery %s arrives in %d min", e.DeliveryID, e.ETAMinutes)
	if e.Truck != "" {
		body = fmt.Sprintf("Truck %s arrives in %d min", e.Truck, e.ETAMinutes)
	}
	if e.Site != "" {
		body += " at " + e.Site
	}
	return d.Dispatch(ctx, model.Notification{
		ID:                 e.RecordID,
		Category:           model.CategoryUrgentDelivery,
		Title:              "Delivery arriving soon",
		Body:               body,
		Tag:                "delivery-" + e.DeliveryID,
		RequireInteraction: true,
		Data: map[string]any{
			"type":        "delivery",
			"delivery_id": e.DeliveryID,
			"order_id":    e.OrderID,
			"eta_minutes": e.ETAMinutes,
			"url":         "/deliveries/" + e.DeliveryID,
		},
	})
}

func (d *Dispatcher) NotifyWeatherAlert(ctx context.Context, w WeatherAlert) Decision {
	tag := "weather"
	if w.Site != "" {
		tag = "weather-" + w.Site
	}
	return d.Dispatch(ctx, model.Notification{
		ID:       w.RecordID,
		Category: model.CategoryWeatherAlert,
		Title:    "Weather alert: " + w.Condition,
		Body:     w.Message,
		Tag:      tag,
		Data:     map[string]any{"type": "weather", "site": w.Site, "condition": w.Condition, "url": "/weather"},
	})
}

func (d *Dispatcher) NotifySystem(ctx context.Context, id uuid.UUID, title, body, tag string, data map[string]any) Decision {
	return d.Dispatch(ctx, model.Notification{
		ID:       id,
		Category: model.CategorySystem,
		Title:    title,
		Body:     body,
		Tag:      tag,
		Data:     data,
	})
}

// SendTest skips the category switch but still honours the global switch and quiet hours.
func (d *Dispatcher) SendTest(ctx context.Context) Decision {
	return d.dispatch(ctx, model.Notification{
		Category: model.CategorySystem,
		Title:    "Test notification",
		Body:     "Notifications are working",
		Tag:      "test",
		Data:     map[string]any{"type": "test"},
	}, true)
}
