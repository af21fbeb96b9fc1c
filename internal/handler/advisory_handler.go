package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"concretesync/internal/broadcast"
	"concretesync/internal/service/notification"
)

type AdvisoryHandler struct {
	bus    *broadcast.Bus
	logger *zap.Logger
}

func NewAdvisoryHandler(bus *broadcast.Bus, logger *zap.Logger) *AdvisoryHandler {
	return &AdvisoryHandler{bus: bus, logger: logger}
}

// PublishWeather 发布天气预警，所有实例以同一 id 分发
// POST /api/advisories/weather
func (h *AdvisoryHandler) PublishWeather(c *gin.Context) {
	var req notification.WeatherAdvisory
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	adv, err := notification.PublishWeatherAdvisory(c.Request.Context(), h.bus, req)
	if err != nil {
		if errors.Is(err, notification.ErrEmptyAdvisory) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish advisory"})
		return
	}

	h.logger.Info("Weather advisory published",
		zap.String("id", adv.ID.String()),
		zap.String("site", adv.Site),
		zap.String("condition", adv.Condition),
	)
	c.JSON(http.StatusAccepted, adv)
}
