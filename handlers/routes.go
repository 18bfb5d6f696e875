package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register mounts the API. auth guards everything under /api; ws is the
// realtime upgrade endpoint, which authenticates through its query token.
func (h *Handler) Register(r gin.IRouter, auth gin.HandlerFunc, ws gin.HandlerFunc, metricsHandler http.Handler) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}
	r.GET("/files/:filename", h.ServeFile)
	if ws != nil {
		r.GET("/ws", ws)
	}

	api := r.Group("/api", auth)

	users := api.Group("/users")
	{
		users.GET("/me", h.GetCurrentUser)
		users.PUT("/me", h.UpdateCurrentUser)
		users.GET("/:id", h.GetUser)
	}

	friends := api.Group("/friends")
	{
		friends.GET("", h.GetFriends)
		friends.GET("/suggestions", h.GetSuggestions)
		friends.GET("/requests/received", h.GetReceivedRequests)
		friends.GET("/requests/sent", h.GetSentRequests)
		friends.GET("/:id/status", h.GetFriendStatus)
		friends.POST("/:id/request", h.SendFriendRequest)
		friends.POST("/:id/accept", h.AcceptFriendRequest)
		friends.POST("/:id/reject", h.RejectFriendRequest)
		friends.DELETE("/:id/cancel", h.CancelFriendRequest)
		friends.DELETE("/:id/unfriend", h.Unfriend)
	}

	messages := api.Group("/messages")
	{
		messages.POST("", h.SendMessage)
		messages.GET("/conversations", h.GetConversations)
		messages.GET("/:userId", h.GetHistory)
		messages.POST("/:userId/read", h.MarkRead)
	}

	posts := api.Group("/posts")
	{
		posts.GET("/feed", h.GetFeed)
		posts.POST("", h.CreatePost)
		posts.PUT("/:id", h.UpdatePost)
		posts.DELETE("/:id", h.DeletePost)
		posts.POST("/:id/like", h.ToggleLike)
		posts.POST("/:id/comments", h.AddComment)
		posts.DELETE("/:id/comments/:cid", h.DeleteComment)
		posts.GET("/user/:id", h.GetUserPosts)
	}

	files := api.Group("/files")
	{
		files.POST("/upload", h.UploadFile)
	}
}
