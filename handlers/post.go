package handlers

import (
	"github.com/gin-gonic/gin"
	"vibeconnect/feed"
	"vibeconnect/middleware"
	"vibeconnect/storage"
	"vibeconnect/utils"
)

type CreatePostRequest struct {
	Content  string `json:"content" form:"content" binding:"max=5000"`
	ImageURL string `json:"imageUrl" form:"imageUrl" binding:"max=512"`
}

type UpdatePostRequest struct {
	Content string `json:"content" binding:"required,notblank,max=5000"`
}

type CommentRequest struct {
	Text string `json:"text" binding:"required,notblank,max=1000"`
}

func (h *Handler) GetFeed(c *gin.Context) {
	posts, err := h.feed.Feed(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, posts)
}

func (h *Handler) GetUserPosts(c *gin.Context) {
	posts, err := h.feed.PostsByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, posts)
}

// CreatePost accepts JSON, or multipart form data with an optional "image" file.
func (h *Handler) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if c.ContentType() == "multipart/form-data" {
		if err := c.ShouldBind(&req); err != nil {
			utils.BadRequest(c, "malformed form")
			return
		}
		if header, err := c.FormFile("image"); err == nil {
			if header.Size > storage.MaxFileSize {
				utils.BadRequest(c, "file too large (max 50MB)")
				return
			}
			file, err := header.Open()
			if err != nil {
				utils.BadRequest(c, "unreadable image")
				return
			}
			defer file.Close()
			blob, err := h.files.Save(file, header.Filename, header.Header.Get("Content-Type"))
			if err != nil {
				utils.Fail(c, err)
				return
			}
			req.ImageURL = blob.URL
		}
	} else if err := utils.BindJSON(c, &req); err != nil {
		utils.Fail(c, err)
		return
	}

	post, err := h.feed.CreatePost(c.Request.Context(), feed.CreatePostInput{
		AuthorID: middleware.GetUserID(c),
		Content:  req.Content,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Created(c, post)
}

func (h *Handler) UpdatePost(c *gin.Context) {
	var req UpdatePostRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.Fail(c, err)
		return
	}
	post, err := h.feed.UpdatePost(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Content)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, post)
}

func (h *Handler) DeletePost(c *gin.Context) {
	if err := h.feed.DeletePost(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"message": "post deleted"})
}

func (h *Handler) ToggleLike(c *gin.Context) {
	post, err := h.feed.ToggleLike(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, post)
}

func (h *Handler) AddComment(c *gin.Context) {
	var req CommentRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.Fail(c, err)
		return
	}
	post, err := h.feed.AddComment(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Text)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Created(c, post)
}

func (h *Handler) DeleteComment(c *gin.Context) {
	err := h.feed.DeleteComment(c.Request.Context(), c.Param("id"), c.Param("cid"), middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"message": "comment deleted"})
}
