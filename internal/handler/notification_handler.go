package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"concretesync/internal/service/notification"
	"concretesync/pkg/logger"
)

type NotificationHandler struct {
	service    *notification.Service
	configs    *notification.ConfigStore
	dispatcher *notification.Dispatcher
	logger     *zap.Logger
}

func NewNotificationHandler(
	service *notification.Service,
	configs *notification.ConfigStore,
	dispatcher *notification.Dispatcher,
	logger *zap.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		service:    service,
		configs:    configs,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": h.service.List(),
		"unread_count":  h.service.UnreadCount(),
	})
}

// MarkRead handles POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id parameter"})
		return
	}

	// 不存在或已读都视为成功，updated 标明是否真正发生变化
	updated := h.service.MarkRead(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{
		"updated":      updated,
		"unread_count": h.service.UnreadCount(),
	})
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	changed := h.service.MarkAllRead(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"updated":      changed,
		"unread_count": h.service.UnreadCount(),
	})
}

// GetConfig handles GET /api/notifications/config
func (h *NotificationHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.configs.Get())
}

// UpdateConfig handles PUT /api/notifications/config; the body may be partial.
func (h *NotificationHandler) UpdateConfig(c *gin.Context) {
	// 未出现的字段沿用当前配置
	req := h.configs.Get()
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	saved, err := h.configs.Save(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, notification.ErrInvalidTimeOfDay) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to save notification config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	c.JSON(http.StatusOK, saved)
}

// SendTest handles POST /api/notifications/test
func (h *NotificationHandler) SendTest(c *gin.Context) {
	decision := h.dispatcher.SendTest(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"decision": decision})
}
