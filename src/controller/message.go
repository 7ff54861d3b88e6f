package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"whatsapp-session-service/src/models"
	"whatsapp-session-service/src/schemas"
	"whatsapp-session-service/src/service"
	"whatsapp-session-service/src/waclient"
)

type MessageController struct {
	Manager *service.Manager
	Logger  *logrus.Logger
}

func NewMessageController(manager *service.Manager, logger *logrus.Logger) *MessageController {
	return &MessageController{
		Manager: manager,
		Logger:  logger,
	}
}

// @Summary Send a message
// @Description Delivers one message through a ready session. A 409 carries a machine-readable reason when the session cannot send yet.
// @Tags messages
// @Accept json
// @Produce json
// @Param session_id path string true "Session ID"
// @Param SendMessageRequest body schemas.SendMessageRequest true "Send Message Request"
// @Success 200 {object} schemas.SendMessageResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 409 {object} schemas.ErrorResponse
// @Router /sessions/{session_id}/messages [post]
func (mc *MessageController) SendMessage(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")
	instance := "/sessions/" + sessionID + "/messages"

	var req schemas.SendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		sendError(ctx, mc.Logger, schemas.NewBadRequestError(
			"Invalid JSON format: "+err.Error(), instance))
		return
	}

	var media *waclient.Media
	if req.MediaURL != "" {
		media = &waclient.Media{
			URL:      req.MediaURL,
			MimeType: req.MimeType,
			Caption:  req.Caption,
		}
	}

	msgID, err := mc.Manager.SendMessage(ctx.Request.Context(), sessionID, req.To, req.Body, media)
	if err != nil {
		sendError(ctx, mc.Logger, mapDomainError(err, instance))
		return
	}

	ctx.JSON(http.StatusOK, schemas.SendMessageResponse{
		SessionID: sessionID,
		MessageID: msgID,
	})
}

// @Summary Send messages in bulk
// @Description Delivers up to 50 messages sequentially with a randomized pause between items. Items fail independently; the response carries one result per item.
// @Tags messages
// @Accept json
// @Produce json
// @Param session_id path string true "Session ID"
// @Param BulkSendRequest body schemas.BulkSendRequest true "Bulk Send Request"
// @Success 200 {object} models.BulkResult
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 409 {object} schemas.ErrorResponse
// @Router /sessions/{session_id}/messages/bulk [post]
func (mc *MessageController) SendBulkMessages(ctx *gin.Context) {
	sessionID := ctx.Param("session_id")
	instance := "/sessions/" + sessionID + "/messages/bulk"

	var req schemas.BulkSendRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		sendError(ctx, mc.Logger, schemas.NewBadRequestError(
			"Invalid JSON format: "+err.Error(), instance))
		return
	}

	items := make([]models.BulkItem, 0, len(req.Messages))
	for _, msg := range req.Messages {
		items = append(items, models.BulkItem{
			To:       msg.To,
			Body:     msg.Body,
			MediaURL: msg.MediaURL,
		})
	}

	result, err := mc.Manager.SendBulkMessages(ctx.Request.Context(), sessionID, items)
	if err != nil {
		sendError(ctx, mc.Logger, mapDomainError(err, instance))
		return
	}
	ctx.JSON(http.StatusOK, result)
}
