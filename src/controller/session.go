package controller

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"whatsapp-session-service/src/schemas"
	"whatsapp-session-service/src/service"
)

type SessionController struct {
	Manager *service.Manager
	Logger  *logrus.Logger
}

func NewSessionController(manager *service.Manager, logger *logrus.Logger) *SessionController {
	return &SessionController{
		Manager: manager,
		Logger:  logger,
	}
}

// @Summary Create or revive a session
// @Description Returns the user's current session, reviving it if stale, or creates a new one. Initialization runs in the background; poll the session until it reaches QR_READY.
// @Tags sessions
// @Accept json
// @Produce json
// @Param CreateSessionRequest body schemas.CreateSessionRequest true "Create Session Request"
// @Success 201 {object} schemas.SessionResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /sessions [post]
func (sc *SessionController) CreateSession(ctx *gin.Context) {
	var req schemas.CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		sendError(ctx, sc.Logger, schemas.NewBadRequestError(
			"Invalid JSON format: "+err.Error(), "/sessions"))
		return
	}

	rec, err := sc.Manager.CreateSession(ctx.Request.Context(), req.UserID)
	if err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, "/sessions"))
		return
	}

	slog.Info("Session create handled",
		"session_id", rec.SessionID, "user_id", req.UserID, "status", rec.Status)
	ctx.JSON(http.StatusCreated, schemas.SessionFromRecord(rec))
}

// @Summary List active sessions
// @Description Lists every session currently in a live state.
// @Tags sessions
// @Produce json
// @Success 200 {object} schemas.SessionListResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /sessions [get]
func (sc *SessionController) ListActiveSessions(ctx *gin.Context) {
	records, err := sc.Manager.GetActiveSessions(ctx.Request.Context())
	if err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, "/sessions"))
		return
	}

	resp := schemas.SessionListResponse{Total: len(records)}
	for i := range records {
		resp.Sessions = append(resp.Sessions, schemas.SessionFromRecord(&records[i]))
	}
	ctx.JSON(http.StatusOK, resp)
}

// @Summary Get session status
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} schemas.SessionResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Router /sessions/{session_id} [get]
func (sc *SessionController) GetSession(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	rec, err := sc.Manager.GetSessionStatus(ctx.Request.Context(), sessionID)
	if err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, "/sessions/"+sessionID))
		return
	}
	ctx.JSON(http.StatusOK, schemas.SessionFromRecord(rec))
}

// @Summary Get a QR code for authentication
// @Description Serves the current QR code while it is fresh. Conflicts describe why no code can be served: still pending, already authenticated, or expired.
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} schemas.QRCodeResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 409 {object} schemas.ErrorResponse
// @Router /sessions/{session_id}/qr [get]
func (sc *SessionController) GetQRCode(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")
	instance := "/sessions/" + sessionID + "/qr"

	code, err := sc.Manager.GetQRCode(ctx.Request.Context(), sessionID)
	if err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, instance))
		return
	}

	rec, err := sc.Manager.GetSessionStatus(ctx.Request.Context(), sessionID)
	if err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, instance))
		return
	}

	expires := 0
	if age, ok := rec.QRCodeAge(time.Now()); ok {
		if remaining := sc.Manager.QRCodeTTL() - age; remaining > 0 {
			expires = int(remaining.Seconds())
		}
	}
	ctx.JSON(http.StatusOK, schemas.QRCodeResponse{
		SessionID:        sessionID,
		QRCode:           code,
		ExpiresInSeconds: expires,
	})
}

// @Summary Get the session of a user
// @Tags sessions
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} schemas.SessionResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Router /users/{user_id}/session [get]
func (sc *SessionController) GetUserSession(ctx *gin.Context) {
	userID := ctx.Param("user_id")

	rec, err := sc.Manager.GetUserSession(ctx.Request.Context(), userID)
	if err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, "/users/"+userID+"/session"))
		return
	}
	ctx.JSON(http.StatusOK, schemas.SessionFromRecord(rec))
}

// @Summary List all sessions of a user
// @Description Lists every session recorded for a user, destroyed ones included.
// @Tags sessions
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} schemas.SessionListResponse
// @Router /users/{user_id}/sessions [get]
func (sc *SessionController) GetUserSessions(ctx *gin.Context) {
	userID := ctx.Param("user_id")

	records, err := sc.Manager.GetUserSessions(ctx.Request.Context(), userID)
	if err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, "/users/"+userID+"/sessions"))
		return
	}

	resp := schemas.SessionListResponse{Total: len(records)}
	for i := range records {
		resp.Sessions = append(resp.Sessions, schemas.SessionFromRecord(&records[i]))
	}
	ctx.JSON(http.StatusOK, resp)
}

// @Summary Check whether a session has a live connection
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} schemas.SessionActiveResponse
// @Router /sessions/{session_id}/active [get]
func (sc *SessionController) IsSessionActive(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")
	ctx.JSON(http.StatusOK, schemas.SessionActiveResponse{
		SessionID: sessionID,
		Active:    sc.Manager.IsSessionActive(sessionID),
	})
}

// @Summary Restart a session
// @Description Tears the session down and reinitializes it, restoring saved credentials when possible.
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 202 {object} schemas.SessionResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Router /sessions/{session_id}/restart [post]
func (sc *SessionController) RestartSession(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	rec, err := sc.Manager.RestartSession(ctx.Request.Context(), sessionID)
	if err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, "/sessions/"+sessionID+"/restart"))
		return
	}
	ctx.JSON(http.StatusAccepted, schemas.SessionFromRecord(rec))
}

// @Summary Delete a session
// @Description Destroys the live connection and removes credentials locally and from the remote backup. The record is kept with status DESTROYED.
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} schemas.DeleteSessionResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /sessions/{session_id} [delete]
func (sc *SessionController) DeleteSession(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")

	if err := sc.Manager.DeleteSession(ctx.Request.Context(), sessionID); err != nil {
		sendError(ctx, sc.Logger, mapDomainError(err, "/sessions/"+sessionID))
		return
	}
	ctx.JSON(http.StatusOK, schemas.DeleteSessionResponse{
		Message:   "Session deleted successfully",
		SessionID: sessionID,
	})
}
