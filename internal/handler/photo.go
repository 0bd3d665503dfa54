package handler

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stylist-backend/internal/model"
	"stylist-backend/internal/service"
	"stylist-backend/internal/storage"
	"stylist-backend/pkg/logger"
)

// 允许上传的图片扩展名
var allowedPhotoExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

type PhotoHandler struct {
	store      storage.PhotoStore
	uploadsDir string
}

func NewPhotoHandler(store storage.PhotoStore, uploadsDir string) *PhotoHandler {
	return &PhotoHandler{store: store, uploadsDir: uploadsDir}
}

// Upload 接收模特照片,落盘后登记为待审核
func (h *PhotoHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedPhotoExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
		return
	}

	photoID := uuid.New().String()
	fileName := "photo_" + photoID + ext
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploadsDir, fileName)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	photo := &model.ModelPhoto{
		ID:        photoID,
		FileName:  fileName,
		URL:       service.UploadPathPrefix + fileName,
		Approved:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.SavePhoto(photo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.Infof("模特照片已上传: id=%s file=%s", photo.ID, fileName)
	c.JSON(http.StatusCreated, photo)
}

// List 列出全部模特照片
func (h *PhotoHandler) List(c *gin.Context) {
	photos, err := h.store.ListPhotos()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

// SetApproval 审核开关,只有已审核照片会被试穿选用
func (h *PhotoHandler) SetApproval(c *gin.Context) {
	var req struct {
		Approved *bool `json:"approved" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approved field is required"})
		return
	}

	photoID := c.Param("id")
	if err := h.store.SetPhotoApproval(photoID, *req.Approved); err != nil {
		status := http.StatusInternalServerError
		if err == storage.ErrPhotoNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}
