package syncer

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	mqcontracts "concretesync/contracts/mq"
	"concretesync/internal/model"
	"concretesync/internal/service/notification"
)

// ImminentETAMinutes is the delivery ETA at or below which the site is alerted.
const ImminentETAMinutes = 15

var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("concretesync/notification-record"))

// recordID derives the same id on every instance for the same feed event. Without an
// event id the key needs the commit timestamp and the row images; an event carrying
// neither id nor timestamp cannot be told apart from a later identical change and gets a
// random id.
func recordID(ev mqcontracts.ChangeEvent, rowID string) uuid.UUID {
	if ev.EventID != "" {
		return uuid.NewSHA1(recordNamespace, []byte(ev.EventID))
	}
	if ev.CommitTimestamp.IsZero() {
		return uuid.New()
	}
	// map 按 key 排序编码，各实例结果一致
	before, _ := json.Marshal(ev.Before)
	after, _ := json.Marshal(ev.After)
	key := strings.Join([]string{
		ev.Table,
		rowID,
		string(ev.EventType),
		strconv.FormatInt(ev.CommitTimestamp.UnixNano(), 10),
		string(before),
		string(after),
	}, "|")
	return uuid.NewSHA1(recordNamespace, []byte(key))
}

func (r *Reconciler) notify(ctx context.Context, ev mqcontracts.ChangeEvent) {
	switch ev.Table {
	case "orders":
		r.notifyOrder(ctx, ev)
	case "deliveries":
		r.notifyDelivery(ctx, ev)
	case "notifications":
		r.notifyInbox(ctx, ev)
	}
}

func (r *Reconciler) notifyOrder(ctx context.Context, ev mqcontracts.ChangeEvent) {
	row := ev.Record()
	id := row.String("id")
	if id == "" {
		return
	}
	o := notification.OrderEvent{
		RecordID: recordID(ev, id),
		OrderID:  id,
		Status:   row.String("status"),
		Volume:   row.String("volume"),
		Site:     firstNonEmpty(row.String("site_name"), row.String("site_id")),
	}

	switch ev.EventType {
	case mqcontracts.EventInsert:
		r.dispatcher.NotifyNewOrder(ctx, o)
	case mqcontracts.EventUpdate:
		o.PrevStatus = ev.Before.String("status")
		if o.Status != o.PrevStatus {
			r.dispatcher.NotifyOrderStatus(ctx, o)
		}
	}
}

func (r *Reconciler) notifyDelivery(ctx context.Context, ev mqcontracts.ChangeEvent) {
	if ev.EventType == mqcontracts.EventDelete {
		return
	}
	row := ev.After
	id := row.String("id")
	eta, ok := row.Int("eta_minutes")
	if id == "" || !ok || eta < 0 || eta > ImminentETAMinutes {
		return
	}
	if strings.EqualFold(row.String("status"), "delivered") {
		return
	}
	// 已经提醒过（之前的 ETA 已在阈值内）则不重复提醒
	if prev, ok := ev.Before.Int("eta_minutes"); ev.EventType == mqcontracts.EventUpdate && ok && prev >= 0 && prev <= ImminentETAMinutes {
		return
	}

	r.dispatcher.NotifyDeliveryImminent(ctx, notification.DeliveryEvent{
		RecordID:   recordID(ev, id),
		DeliveryID: id,
		OrderID:    row.String("order_id"),
		Truck:      firstNonEmpty(row.String("truck_name"), row.String("truck_id")),
		Site:       firstNonEmpty(row.String("site_name"), row.String("site_id")),
		ETAMinutes: eta,
	})
}

func (r *Reconciler) notifyInbox(ctx context.Context, ev mqcontracts.ChangeEvent) {
	if ev.EventType != mqcontracts.EventInsert {
		return
	}
	row := ev.After
	id := row.String("id")
	category := model.Category(row.String("category"))
	if !category.Valid() {
		category = model.CategorySystem
	}

	data := map[string]any{"type": "notification", "notification_id": id}
	if url := row.String("url"); url != "" {
		data["url"] = url
	}
	r.dispatcher.Dispatch(ctx, model.Notification{
		ID:                 recordID(ev, id),
		Category:           category,
		Title:              firstNonEmpty(row.String("title"), "Notification"),
		Body:               firstNonEmpty(row.String("message"), row.String("body")),
		Tag:                "notification-" + id,
		RequireInteraction: category == model.CategoryUrgentDelivery,
		Data:               data,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
