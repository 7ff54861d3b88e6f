package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"whatsapp-session-service/src/controller"
	"whatsapp-session-service/src/db"
	"whatsapp-session-service/src/service"
)

// NewRouter wires the gin engine, controllers, and routes.
func NewRouter(manager *service.Manager, database *db.DB, logger *logrus.Logger) *gin.Engine {
	router := gin.Default()

	sessions := controller.NewSessionController(manager, logger)
	messages := controller.NewMessageController(manager, logger)
	admin := controller.NewAdminController(manager, logger)

	router.POST("/sessions", sessions.CreateSession)
	router.GET("/sessions", sessions.ListActiveSessions)
	router.GET("/sessions/:session_id", sessions.GetSession)
	router.DELETE("/sessions/:session_id", sessions.DeleteSession)
	router.GET("/sessions/:session_id/qr", sessions.GetQRCode)
	router.GET("/sessions/:session_id/active", sessions.IsSessionActive)
	router.POST("/sessions/:session_id/restart", sessions.RestartSession)
	router.GET("/users/:user_id/session", sessions.GetUserSession)
	router.GET("/users/:user_id/sessions", sessions.GetUserSessions)

	router.POST("/sessions/:session_id/messages", messages.SendMessage)
	router.POST("/sessions/:session_id/messages/bulk", messages.SendBulkMessages)

	router.POST("/admin/recovery", admin.RunRecovery)
	router.GET("/sessions/:session_id/diagnostics", admin.Diagnose)
	router.POST("/sessions/:session_id/sync", admin.ValidateAndSync)
	router.POST("/sessions/:session_id/force-init", admin.ForceInitialize)
	router.POST("/sessions/:session_id/clear", admin.ClearAndReinitialize)

	router.GET("/healthz", func(ctx *gin.Context) {
		if err := database.Ping(); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"live_clients": manager.Registry().Len(),
		})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}
