package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stylist-backend/internal/model"
	"stylist-backend/internal/service"
	"stylist-backend/internal/storage"
	"stylist-backend/pkg/logger"
)

type MoodboardHandler struct {
	moodboardService *service.MoodboardService
	proactiveService *service.ProactiveService
	store            storage.BoardStore
}

func NewMoodboardHandler(moodboardService *service.MoodboardService, proactiveService *service.ProactiveService, store storage.BoardStore) *MoodboardHandler {
	return &MoodboardHandler{
		moodboardService: moodboardService,
		proactiveService: proactiveService,
		store:            store,
	}
}

// Generate 同步返回归类结果,试穿装配转入后台
func (h *MoodboardHandler) Generate(c *gin.Context) {
	var req model.GenerateMoodboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.SelectedProducts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "selectedProducts must not be empty"})
		return
	}

	cat, err := h.moodboardService.Categorize(c.Request.Context(), req.SelectedProducts, req.ExistingMoodboards)
	if err != nil {
		logger.Errorf("画板归类失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// 后台装配不持有请求上下文,客户端断开不影响任务
	go h.moodboardService.AssembleBoard(req.BoardID, req.SelectedProducts, cat, req.TryOnMode)

	logger.Infof("画板生成已受理: boardId=%s products=%d", req.BoardID, len(req.SelectedProducts))
	c.JSON(http.StatusAccepted, gin.H{"categorization": cat})
}

// Proactive 受理主动式穿搭任务,立即返回 boardId 供轮询
func (h *MoodboardHandler) Proactive(c *gin.Context) {
	var req model.ProactiveStylingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AdviceText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "adviceText is required"})
		return
	}

	boardID := req.BoardID
	if boardID == "" {
		boardID = uuid.New().String()
	}

	go h.proactiveService.Run(boardID, req.AdviceText, req.TryOnMode)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "proactive styling started",
		"boardId": boardID,
	})
}

// ListBoards 列出全部画板
func (h *MoodboardHandler) ListBoards(c *gin.Context) {
	boards, err := h.store.ListBoards()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"moodboards": boards})
}

// GetBoard 按 ID 取单个画板
func (h *MoodboardHandler) GetBoard(c *gin.Context) {
	board, err := h.store.GetBoard(c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if err == storage.ErrBoardNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, board)
}

// CreateBoard 手动创建画板
func (h *MoodboardHandler) CreateBoard(c *gin.Context) {
	var req model.CreateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	board := service.NewBoard(req.Title, req.Description, req.Items)
	if err := h.store.SaveBoard(board); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, board)
}

// DeleteBoard 删除画板
func (h *MoodboardHandler) DeleteBoard(c *gin.Context) {
	if err := h.store.DeleteBoard(c.Param("id")); err != nil {
		status := http.StatusInternalServerError
		if err == storage.ErrBoardNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
