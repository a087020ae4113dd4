package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"condo-chat/internal/chat"
	"condo-chat/internal/models"
	"condo-chat/internal/telemetry"
)

// ChatService is the chat core as seen by the HTTP layer.
type ChatService interface {
	Send(ctx context.Context, req chat.SendRequest) (models.Message, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, skip, take int) ([]models.Message, error)
	IsParticipant(ctx context.Context, userID, conversationID uuid.UUID) (bool, error)
	ListUserMessages(ctx context.Context, userID uuid.UUID) ([]models.Message, error)
	ListApartmentMessages(ctx context.Context, userID, apartmentID uuid.UUID) ([]models.Message, error)
	CreateApartmentConversation(ctx context.Context, creatorID, apartmentID uuid.UUID, name string, memberIDs []uuid.UUID) (models.Conversation, error)
	AddParticipant(ctx context.Context, actorID, conversationID, userID uuid.UUID) (models.ConversationParticipant, error)
	RemoveParticipant(ctx context.Context, actorID, conversationID, userID uuid.UUID) error
}

// ChatHandler serves the /api/chat endpoints.
type ChatHandler struct {
	service ChatService
	audit   *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(service ChatService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{service: service, audit: audit}
}

// Register mounts the chat routes. The group must be authenticated.
func (h *ChatHandler) Register(r gin.IRouter) {
	r.POST("/send", h.SendMessage)
	r.GET("/user/conversations", h.ListConversations)
	r.GET("/conversation/:conversation_id/messages", h.GetConversationMessages)
	r.GET("/user/messages", h.ListUserMessages)
	r.GET("/messages", h.ListApartmentMessages)
	r.POST("/apartments/:apartment_id/conversation", h.CreateApartmentConversation)
	r.POST("/conversation/:conversation_id/participants", h.AddParticipant)
	r.DELETE("/conversation/:conversation_id/participants/:user_id", h.RemoveParticipant)
}

type sendMessageRequest struct {
	RecipientID    *uuid.UUID `json:"recipient_id"`
	ApartmentID    *uuid.UUID `json:"apartment_id"`
	ConversationID *uuid.UUID `json:"conversation_id"`
	Content        string     `json:"content" binding:"required,max=1000"`
	IsAnnouncement bool       `json:"is_announcement"`
}

// SendMessage stores a message from the caller and publishes it.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err.Error())
		return
	}

	msg, err := h.service.Send(c.Request.Context(), chat.SendRequest{
		SenderID:       userIDFromContext(c),
		RecipientID:    req.RecipientID,
		ApartmentID:    req.ApartmentID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		IsAnnouncement: req.IsAnnouncement,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if msg.IsAnnouncement() {
		h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "message.announcement",
			"announcement sent to conversation "+msg.ConversationID.String(), requestIDFromContext(c), msg.SenderID)
	}
	c.JSON(http.StatusCreated, msg.Response())
}

// ListConversations returns the caller's conversations, most recent first.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	summaries, err := h.service.ListConversationsForUser(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// GetConversationMessages pages through a conversation the caller belongs to.
func (h *ChatHandler) GetConversationMessages(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	skip, ok := intQuery(c, "skip", 0)
	if !ok {
		return
	}
	take, ok := intQuery(c, "take", chat.DefaultPageSize)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	member, err := h.service.IsParticipant(c.Request.Context(), userID, conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !member {
		h.audit.Emit(c.Request.Context(), telemetry.LevelWarning, "conversation.forbidden",
			"read attempt on conversation "+conversationID.String(), requestIDFromContext(c), userID)
		respondForbidden(c, "not a participant of the conversation")
		return
	}

	msgs, err := h.service.ListMessages(c.Request.Context(), conversationID, skip, take)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": responses(msgs), "skip": skip, "take": take})
}

// ListUserMessages returns the messages the caller sent.
func (h *ChatHandler) ListUserMessages(c *gin.Context) {
	msgs, err := h.service.ListUserMessages(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": responses(msgs)})
}

// ListApartmentMessages returns the group messages of an apartment.
func (h *ChatHandler) ListApartmentMessages(c *gin.Context) {
	raw := c.Query("apartment_id")
	if raw == "" {
		writeValidation(c, "apartment_id is required")
		return
	}
	apartmentID, err := uuid.Parse(raw)
	if err != nil {
		writeValidation(c, "invalid apartment_id")
		return
	}

	msgs, err := h.service.ListApartmentMessages(c.Request.Context(), userIDFromContext(c), apartmentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": responses(msgs)})
}

type createConversationRequest struct {
	Name      string      `json:"name" binding:"max=200"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

// CreateApartmentConversation opens the apartment's group conversation with
// the caller as admin.
func (h *ChatHandler) CreateApartmentConversation(c *gin.Context) {
	apartmentID, ok := uuidParam(c, "apartment_id")
	if !ok {
		return
	}
	var req createConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeValidation(c, err.Error())
			return
		}
	}

	userID := userIDFromContext(c)
	conv, err := h.service.CreateApartmentConversation(c.Request.Context(), userID, apartmentID, req.Name, req.MemberIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "conversation.created",
		"apartment conversation "+conv.ID.String()+" created", requestIDFromContext(c), userID)
	c.JSON(http.StatusCreated, conv)
}

type addParticipantRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// AddParticipant adds a member to a group conversation.
func (h *ChatHandler) AddParticipant(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	var req addParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err.Error())
		return
	}

	actorID := userIDFromContext(c)
	participant, err := h.service.AddParticipant(c.Request.Context(), actorID, conversationID, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "participant.added",
		"user "+req.UserID.String()+" added to conversation "+conversationID.String(), requestIDFromContext(c), actorID)
	c.JSON(http.StatusCreated, participant)
}

// RemoveParticipant deactivates a member of a group conversation.
func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	conversationID, ok := uuidParam(c, "conversation_id")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	actorID := userIDFromContext(c)
	if err := h.service.RemoveParticipant(c.Request.Context(), actorID, conversationID, userID); err != nil {
		writeError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "participant.removed",
		"user "+userID.String()+" removed from conversation "+conversationID.String(), requestIDFromContext(c), actorID)
	c.Status(http.StatusNoContent)
}

func responses(msgs []models.Message) []models.MessageResponse {
	return lo.Map(msgs, func(m models.Message, _ int) models.MessageResponse { return m.Response() })
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		writeValidation(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeValidation(c, "invalid "+name)
		return 0, false
	}
	return n, true
}
