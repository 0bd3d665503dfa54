package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stylist-backend/internal/model"
	"stylist-backend/internal/storage"
	"stylist-backend/pkg/logger"
)

type NotifyHandler struct {
	broker *storage.Broker
}

func NewNotifyHandler(broker *storage.Broker) *NotifyHandler {
	return &NotifyHandler{broker: broker}
}

// Poll 消费式轮询:有记录即取走返回 completed,否则 processing
func (h *NotifyHandler) Poll(c *gin.Context) {
	boardID := c.Query("boardId")
	if boardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boardId query parameter is required"})
		return
	}

	record, ok := h.broker.Take(boardID)
	if !ok {
		c.JSON(http.StatusOK, model.NotifyResponse{Status: "processing"})
		return
	}

	c.JSON(http.StatusOK, model.NotifyResponse{
		Status:         "completed",
		TryOnURLMap:    record.TryOnURLMap,
		Categorization: record.Categorization,
		NewBoard:       record.NewBoard,
	})
}

// Publish 后台生产者投递完成记录
func (h *NotifyHandler) Publish(c *gin.Context) {
	var req model.NotifyPublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.BoardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boardId is required"})
		return
	}

	record := model.CompletionRecord{
		TryOnURLMap:    req.TryOnURLMap,
		Categorization: req.Categorization,
		NewBoard:       req.NewBoard,
	}
	if record.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record payload must not be empty"})
		return
	}

	h.broker.Put(req.BoardID, record)
	logger.Infof("完成记录已投递: boardId=%s", req.BoardID)
	c.JSON(http.StatusOK, gin.H{"message": "published"})
}
