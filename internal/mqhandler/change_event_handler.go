package mqhandler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "concretesync/contracts/mq"
	"concretesync/pkg/logger"
	"concretesync/pkg/metrics"
	"concretesync/pkg/mq"
)

// ApplyFunc consumes a decoded event of a watched table.
type ApplyFunc func(ctx context.Context, ev mqcontracts.ChangeEvent)

// ChangeEventHandler decodes raw feed payloads. Malformed payloads are logged and dropped
// and never reach apply.
type ChangeEventHandler struct {
	tables map[string]struct{}
	apply  ApplyFunc
	logger *zap.Logger
}

func NewChangeEventHandler(tables []string, apply ApplyFunc, logger *zap.Logger) *ChangeEventHandler {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}
	return &ChangeEventHandler{
		tables: set,
		apply:  apply,
		logger: logger,
	}
}

// Handle returns an mq.ErrUnprocessable error for malformed payloads so the AMQP consumer
// dead-letters them; other feeds only log it.
func (h *ChangeEventHandler) Handle(ctx context.Context, raw []byte) error {
	log := logger.WithTrace(ctx, h.logger)

	ev, err := mqcontracts.DecodeChangeEvent(raw)
	if err != nil {
		metrics.RecordFeedDropped("malformed")
		log.Warn("Dropping malformed change event",
			zap.Int("size", len(raw)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", mq.ErrUnprocessable, err)
	}

	if _, ok := h.tables[ev.Table]; !ok {
		metrics.RecordFeedDropped("unwatched")
		log.Debug("Ignoring change event for unwatched table", zap.String("table", ev.Table))
		return nil
	}

	metrics.RecordFeedEvent(ev.Table, string(ev.EventType))
	log.Debug("Handling change event",
		zap.String("table", ev.Table),
		zap.String("event_type", string(ev.EventType)),
		zap.String("event_id", ev.EventID),
	)
	h.apply(ctx, ev)
	return nil
}
