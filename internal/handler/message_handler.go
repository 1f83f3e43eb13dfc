package handler

import (
	"net/http"
	"taskmate/backend/internal/database"
	"taskmate/backend/internal/models"
	"time"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// AttachmentInput is a typed reference carried by a message.
type AttachmentInput struct {
	Type string `json:"type" binding:"required"`
	ID   uint   `json:"id" binding:"required"`
}

// MessageInput posts a message into a channel.
type MessageInput struct {
	ChannelID   string            `json:"channel_id" binding:"required"`
	CustomType  string            `json:"custom_type"`
	Content     string            `json:"content"`
	Attachments []AttachmentInput `json:"attachments" binding:"dive"`
}

// AttachmentResponse mirrors AttachmentInput on the way out.
type AttachmentResponse struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}

// MessageResponse is the row shape of a channel message.
type MessageResponse struct {
	ID          uint                 `json:"id"`
	ChannelID   string               `json:"channel_id"`
	SenderID    uint                 `json:"sender_id"`
	CustomType  string               `json:"custom_type"`
	Content     string               `json:"content"`
	Attachments []AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"created_at"`
}

func newMessageResponse(m models.Message) MessageResponse {
	attachments := make([]AttachmentResponse, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, AttachmentResponse{Type: a.Type, ID: a.RefID})
	}
	return MessageResponse{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		SenderID:    m.SenderID,
		CustomType:  m.CustomType,
		Content:     m.Content,
		Attachments: attachments,
		CreatedAt:   m.CreatedAt,
	}
}

// endregion

// PostMessage godoc
// @Summary      Post a message into a channel
// @Description  Stores a channel message with an optional custom type and typed attachments (e.g. a task reference).
// @Tags         messages
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body MessageInput true "Message"
// @Success      201  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /messages [post]
func PostMessage(c *gin.Context) {
	viewerID, _ := c.Get("userID")

	var input MessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customType := input.CustomType
	if customType == "" {
		customType = "text"
	}

	message := models.Message{
		ChannelID:  input.ChannelID,
		SenderID:   viewerID.(uint),
		CustomType: customType,
		Content:    input.Content,
	}
	for _, a := range input.Attachments {
		message.Attachments = append(message.Attachments, models.MessageAttachment{Type: a.Type, RefID: a.ID})
	}

	if err := database.DB.Create(&message).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create message"})
		return
	}

	c.JSON(http.StatusCreated, newMessageResponse(message))
}

// GetMessages godoc
// @Summary      List messages in a channel
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        channel_id  query     string  true  "Channel ID"
// @Success      200         {array}   MessageResponse
// @Failure      400         {object}  ErrorResponse
// @Router       /messages [get]
func GetMessages(c *gin.Context) {
	channelID := c.Query("channel_id")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A 'channel_id' query parameter is required"})
		return
	}

	var messages []models.Message
	if err := database.DB.Preload("Attachments").Where("channel_id = ?", channelID).Order("created_at").Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	responses := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		responses = append(responses, newMessageResponse(m))
	}

	c.JSON(http.StatusOK, responses)
}
