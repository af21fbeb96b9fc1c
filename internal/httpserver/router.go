package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"concretesync/internal/handler"
	"concretesync/pkg/rbac"
)

// ReadinessCheck 就绪探针依赖项
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	syncHandler *handler.SyncHandler,
	notificationHandler *handler.NotificationHandler,
	advisoryHandler *handler.AdvisoryHandler,
	checks []ReadinessCheck,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware(), MetricsMiddleware())

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				c.JSON(500, gin.H{"status": check.Name + "_not_ready", "error": err.Error()})
				return
			}
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	api := r.Group("/api")
	api.Use(AuthMiddleware(jwtSecret))
	{
		api.GET("/sync/status", RequirePermission(rbac.PermissionReadSyncStatus), syncHandler.GetStatus)
		api.GET("/sync/stream", RequirePermission(rbac.PermissionReadSyncStatus), syncHandler.Stream)

		notifications := api.Group("/notifications")
		notifications.GET("", RequirePermission(rbac.PermissionReadNotifications), notificationHandler.List)
		notifications.POST("/:id/read", RequirePermission(rbac.PermissionReadNotifications), notificationHandler.MarkRead)
		notifications.POST("/read-all", RequirePermission(rbac.PermissionReadNotifications), notificationHandler.MarkAllRead)
		notifications.GET("/config", RequirePermission(rbac.PermissionReadNotifications), notificationHandler.GetConfig)
		notifications.PUT("/config", RequirePermission(rbac.PermissionConfigureNotification), notificationHandler.UpdateConfig)
		notifications.POST("/test", RequirePermission(rbac.PermissionSendTestNotification), notificationHandler.SendTest)

		api.POST("/advisories/weather", RequirePermission(rbac.PermissionPublishAdvisory), advisoryHandler.PublishWeather)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
