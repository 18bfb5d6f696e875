package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"vibeconnect/middleware"
	"vibeconnect/models"
	"vibeconnect/utils"
)

func (h *Handler) GetFriends(c *gin.Context) {
	h.listUsers(c, h.graph.Friends)
}

func (h *Handler) GetSuggestions(c *gin.Context) {
	h.listUsers(c, h.graph.Suggestions)
}

func (h *Handler) GetReceivedRequests(c *gin.Context) {
	h.listUsers(c, h.graph.ReceivedRequests)
}

func (h *Handler) GetSentRequests(c *gin.Context) {
	h.listUsers(c, h.graph.SentRequests)
}

func (h *Handler) listUsers(c *gin.Context, list func(context.Context, string) ([]models.UserSummary, error)) {
	out, err := list(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, out)
}

func (h *Handler) GetFriendStatus(c *gin.Context) {
	status, err := h.graph.Status(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"status": status})
}

func (h *Handler) SendFriendRequest(c *gin.Context) {
	h.transition(c, h.graph.SendRequest, "friend request sent")
}

func (h *Handler) AcceptFriendRequest(c *gin.Context) {
	h.transition(c, h.graph.AcceptRequest, "friend request accepted")
}

func (h *Handler) RejectFriendRequest(c *gin.Context) {
	h.transition(c, h.graph.RejectRequest, "friend request rejected")
}

func (h *Handler) CancelFriendRequest(c *gin.Context) {
	h.transition(c, h.graph.CancelRequest, "friend request cancelled")
}

func (h *Handler) Unfriend(c *gin.Context) {
	h.transition(c, h.graph.Unfriend, "friend removed")
}

// transition runs one state-machine operation and answers with the resulting status.
func (h *Handler) transition(c *gin.Context, op func(context.Context, string, string) error, message string) {
	ctx := c.Request.Context()
	actorID, targetID := middleware.GetUserID(c), c.Param("id")
	if err := op(ctx, actorID, targetID); err != nil {
		utils.Fail(c, err)
		return
	}
	status, err := h.graph.Status(ctx, actorID, targetID)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"message": message, "status": status})
}
