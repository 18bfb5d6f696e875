package handlers

import (
	"github.com/gin-gonic/gin"
	"vibeconnect/middleware"
	"vibeconnect/users"
	"vibeconnect/utils"
)

func (h *Handler) GetCurrentUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, user)
}

// UpdateCurrentUser upserts the caller's profile record.
func (h *Handler) UpdateCurrentUser(c *gin.Context) {
	var req users.ProfileInput
	if err := utils.BindJSON(c, &req); err != nil {
		utils.Fail(c, err)
		return
	}

	user, err := h.users.Save(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, user.ToSummary())
}
