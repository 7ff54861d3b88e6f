package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"whatsapp-session-service/src/models"
	"whatsapp-session-service/src/schemas"
)

// sendError writes an RFC 7807 error response and logs it.
func sendError(ctx *gin.Context, logger *logrus.Logger, resp *schemas.ErrorResponse) {
	ctx.JSON(resp.Status, resp)
	logger.WithFields(logrus.Fields{
		"status":   resp.Status,
		"instance": resp.Instance,
	}).Error(resp.Title + ": " + resp.Detail)
}

// mapDomainError translates a service-layer error into its API shape. The
// fallback for unrecognized errors is a plain 500.
func mapDomainError(err error, instance string) *schemas.ErrorResponse {
	var notReady *models.NotReadyError
	var initErr *models.InitError

	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		return schemas.NewNotFoundError("session not found", instance)

	case errors.Is(err, models.ErrUserNotFound):
		return schemas.NewNotFoundError("user not found", instance)

	case errors.Is(err, models.ErrAlreadyInitializing):
		return schemas.NewConflictError("session is already initializing", instance)

	case errors.Is(err, models.ErrAlreadyAuthenticated):
		return schemas.NewConflictError("session is already authenticated; no QR code to serve", instance)

	case errors.As(err, &notReady):
		return schemas.SessionNotReadyError(notReady.Message, instance, string(notReady.Reason))

	case errors.As(err, &initErr):
		return schemas.InitializationFailedError(initErr.Error(), instance, string(initErr.Hint))

	case errors.Is(err, models.ErrRestorationCorrupted):
		return schemas.NewConflictError(err.Error(), instance)

	case errors.Is(err, models.ErrNetworkUnavailable):
		return schemas.NewBadGatewayError(err.Error(), instance)

	default:
		return schemas.NewInternalError(err.Error(), instance)
	}
}
