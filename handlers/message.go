package handlers

import (
	"github.com/gin-gonic/gin"
	"vibeconnect/chat"
	"vibeconnect/middleware"
	"vibeconnect/utils"
)

// SendMessageRequest matches the sendMessage websocket payload; the sender is
// always the authenticated user.
type SendMessageRequest struct {
	Recipient string `json:"recipient" binding:"required,notblank"`
	Content   string `json:"content" binding:"required,notblank"`
	ClientID  string `json:"clientId" binding:"max=128"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.Fail(c, err)
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), chat.SendInput{
		SenderID:    middleware.GetUserID(c),
		RecipientID: req.Recipient,
		Content:     req.Content,
		ClientID:    req.ClientID,
	})
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Created(c, msg)
}

func (h *Handler) GetConversations(c *gin.Context) {
	convs, err := h.chat.Conversations(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, convs)
}

func (h *Handler) GetHistory(c *gin.Context) {
	msgs, err := h.chat.History(c.Request.Context(), middleware.GetUserID(c), c.Param("userId"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, msgs)
}

func (h *Handler) MarkRead(c *gin.Context) {
	n, err := h.chat.MarkRead(c.Request.Context(), middleware.GetUserID(c), c.Param("userId"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"updated": n})
}
