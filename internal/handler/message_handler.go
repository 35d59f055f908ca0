package handler

import (
	"errors"
	"net/http"

	"ripple/internal/services"
	"ripple/internal/transport/httpdto"
	ripple_errors "ripple/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	service *services.MessagingService
}

func NewMessageHandler(service *services.MessagingService) *MessageHandler {
	return &MessageHandler{service: service}
}

// Send handles POST /api/messages. The body names exactly one target:
// conversation_id, recipient_id, or participant_ids + group_name.
func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	senderID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	target, err := targetFromRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
		return
	}

	msg, conv, err := h.service.SendMessage(c.Request.Context(), senderID, req.Text, target)
	if err != nil {
		status, code := statusForError(err)
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.SendMessageResponse{
		Message:        httpdto.FromMessage(msg),
		ConversationID: conv.ID.String(),
	}))
}

// ListConversations handles GET /api/conversations.
func (h *MessageHandler) ListConversations(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	views, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		status, code := statusForError(err)
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListConversationsResponse{
		Conversations: httpdto.FromConversationViewSlice(views),
	}))
}

// ListMessages handles GET /api/conversations/:id.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	messages, err := h.service.ListMessages(c.Request.Context(), userID, conversationID)
	if err != nil {
		status, code := statusForError(err)
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListMessagesResponse{
		Messages: httpdto.FromMessageSlice(messages),
	}))
}

func targetFromRequest(req httpdto.SendMessageRequest) (services.SendTarget, error) {
	hasConversation := req.ConversationID != ""
	hasRecipient := req.RecipientID != ""
	hasGroup := len(req.ParticipantIDs) > 0 || req.GroupName != ""

	switch {
	case hasConversation && !hasRecipient && !hasGroup:
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			return nil, errors.New("invalid conversation id")
		}
		return services.ByConversation{ConversationID: id}, nil

	case hasRecipient && !hasConversation && !hasGroup:
		id, err := uuid.Parse(req.RecipientID)
		if err != nil {
			return nil, errors.New("invalid recipient id")
		}
		return services.ByRecipient{RecipientID: id}, nil

	case hasGroup && !hasConversation && !hasRecipient:
		ids := make([]uuid.UUID, 0, len(req.ParticipantIDs))
		for _, raw := range req.ParticipantIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, errors.New("invalid participant id")
			}
			ids = append(ids, id)
		}
		return services.ByGroup{ParticipantIDs: ids, GroupName: req.GroupName}, nil

	default:
		return nil, errors.New("provide exactly one of conversation_id, recipient_id, or participant_ids with group_name")
	}
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, ripple_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, ripple_errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ripple_errors.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, ripple_errors.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, ripple_errors.ErrAlreadyExists):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, ripple_errors.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, ripple_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
