package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"aichat-backend/internal/app"
	"aichat-backend/internal/transport/http/middleware"
	"aichat-backend/internal/transport/http/response"
)

type FileHandler struct {
	uploadService *app.UploadService
}

func NewFileHandler(uploadService *app.UploadService) *FileHandler {
	return &FileHandler{uploadService: uploadService}
}

// Upload accepts a multipart form with "file" and stores it under the
// upload root. The returned url is usable as an attachment marker in a
// later chat message.
func (h *FileHandler) Upload(c *gin.Context) {
	if _, ok := c.Get(middleware.ContextUserIDKey); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file (form field 'file')")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer src.Close()

	stored, err := h.uploadService.Save(file.Filename, file.Header.Get("Content-Type"), file.Size, src)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrFileEmpty), errors.Is(err, app.ErrFileTooLarge), errors.Is(err, app.ErrFileType):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to upload file")
		}
		return
	}

	response.OK(c, stored)
}
