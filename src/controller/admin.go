package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"whatsapp-session-service/src/schemas"
	"whatsapp-session-service/src/service"
)

// AdminController exposes the operational surface: recovery runs,
// diagnostics, and the repair escape hatches.
type AdminController struct {
	Manager *service.Manager
	Logger  *logrus.Logger
}

func NewAdminController(manager *service.Manager, logger *logrus.Logger) *AdminController {
	return &AdminController{
		Manager: manager,
		Logger:  logger,
	}
}

// @Summary Run session recovery
// @Description Walks every session left in a live state and restores, reschedules, or demotes it. Normally runs at startup; this endpoint repeats it on demand.
// @Tags admin
// @Produce json
// @Success 200 {object} models.RecoveryReport
// @Failure 500 {object} schemas.ErrorResponse
// @Router /admin/recovery [post]
func (ac *AdminController) RunRecovery(ctx *gin.Context) {
	report, err := ac.Manager.RunStartupRecovery(ctx.Request.Context())
	if err != nil {
		sendError(ctx, ac.Logger, mapDomainError(err, "/admin/recovery"))
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// @Summary Diagnose a session
// @Description Compares the durable record, the remote backup, local credentials, and the in-memory connection, and recommends a repair.
// @Tags admin
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} models.SessionDiagnostics
// @Failure 404 {object} schemas.ErrorResponse
// @Router /sessions/{session_id}/diagnostics [get]
func (ac *AdminController) Diagnose(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	d, err := ac.Manager.Diagnose(ctx.Request.Context(), sessionID)
	if err != nil {
		sendError(ctx, ac.Logger, mapDomainError(err, "/sessions/"+sessionID+"/diagnostics"))
		return
	}
	ctx.JSON(http.StatusOK, d)
}

// @Summary Validate and sync a session
// @Description Diagnoses a session and applies the cheap repairs: credentials are copied in whichever direction is missing.
// @Tags admin
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} models.SessionDiagnostics
// @Failure 404 {object} schemas.ErrorResponse
// @Router /sessions/{session_id}/sync [post]
func (ac *AdminController) ValidateAndSync(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	d, err := ac.Manager.ValidateAndSync(ctx.Request.Context(), sessionID)
	if err != nil {
		sendError(ctx, ac.Logger, mapDomainError(err, "/sessions/"+sessionID+"/sync"))
		return
	}
	ctx.JSON(http.StatusOK, d)
}

// @Summary Force a synchronous initialization
// @Description Tears down whatever runtime the session has and reinitializes it, waiting for the result. The operator's remedy for a wedged session.
// @Tags admin
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} schemas.SessionResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 502 {object} schemas.ErrorResponse
// @Router /sessions/{session_id}/force-init [post]
func (ac *AdminController) ForceInitialize(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	rec, err := ac.Manager.ForceInitialize(ctx.Request.Context(), sessionID)
	if err != nil {
		sendError(ctx, ac.Logger, mapDomainError(err, "/sessions/"+sessionID+"/force-init"))
		return
	}
	ctx.JSON(http.StatusOK, schemas.SessionFromRecord(rec))
}

// @Summary Clear credentials and reinitialize
// @Description Wipes the session's credentials locally and from the remote backup, then starts over with a fresh QR scan. The remedy for corrupted credentials.
// @Tags admin
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 202 {object} schemas.SessionResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Router /sessions/{session_id}/clear [post]
func (ac *AdminController) ClearAndReinitialize(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	rec, err := ac.Manager.ClearAndReinitialize(ctx.Request.Context(), sessionID)
	if err != nil {
		sendError(ctx, ac.Logger, mapDomainError(err, "/sessions/"+sessionID+"/clear"))
		return
	}
	ctx.JSON(http.StatusAccepted, schemas.SessionFromRecord(rec))
}
