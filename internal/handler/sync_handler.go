package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"concretesync/internal/model"
	"concretesync/internal/realtime"
	"concretesync/internal/service/syncer"
	"concretesync/pkg/logger"
)

const defaultKeepalive = 30 * time.Second

type StatusSource interface {
	Snapshot() model.SyncStatus
}

type GenerationSource interface {
	Generations(ctx context.Context, queryKeys []string) (map[string]int64, error)
}

type SyncHandler struct {
	status      StatusSource
	generations GenerationSource
	hub         *realtime.Hub
	keepalive   time.Duration
	logger      *zap.Logger
}

func NewSyncHandler(status StatusSource, generations GenerationSource, hub *realtime.Hub, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		status:      status,
		generations: generations,
		hub:         hub,
		keepalive:   defaultKeepalive,
		logger:      logger,
	}
}

// GetStatus handles GET /api/sync/status
func (h *SyncHandler) GetStatus(c *gin.Context) {
	resp := gin.H{"status": h.status.Snapshot()}

	if h.generations != nil {
		gens, err := h.generations.Generations(c.Request.Context(), syncer.WatchedTables)
		if err != nil {
			// 代际号仅用于客户端比对缓存，读取失败不影响状态返回
			logger.WithTrace(c.Request.Context(), h.logger).Warn("Failed to read query generations", zap.Error(err))
		} else {
			resp["generations"] = gens
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Stream handles GET /api/sync/stream: every realtime event as SSE.
func (h *SyncHandler) Stream(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events, cleanup := h.hub.Subscribe()
	defer cleanup()

	// 先推送当前状态，客户端无需再单独请求 /status
	writeEvent(w, realtime.EventSyncStatus, h.status.Snapshot())
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, event.Event, event.Data); err != nil {
				h.logger.Warn("Failed to encode SSE event", zap.String("event", event.Event), zap.Error(err))
				continue
			}
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
