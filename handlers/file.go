package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"vibeconnect/storage"
	"vibeconnect/utils"
)

func (h *Handler) UploadFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "no file uploaded")
		return
	}
	defer file.Close()

	if header.Size > storage.MaxFileSize {
		utils.BadRequest(c, "file too large (max 50MB)")
		return
	}

	blob, err := h.files.Save(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	h.logger.Debug("file uploaded", zap.String("url", blob.URL), zap.Int64("size", blob.Size))
	utils.Created(c, blob)
}

func (h *Handler) ServeFile(c *gin.Context) {
	path, err := h.files.Path(c.Param("filename"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	c.File(path)
}
