package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"stylist-backend/internal/model"
	"stylist-backend/internal/service"
	"stylist-backend/internal/utils"
	"stylist-backend/pkg/logger"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// StreamChat 造型师对话,以标准 chat-completion-chunk SSE 返回
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages must not be empty"})
		return
	}

	ctx := c.Request.Context()
	events, errs := h.chatService.StreamChat(ctx, req.Messages)

	// SSE 头推迟到首个事件到达再写:首个输出前失败的请求仍可返回 500 JSON
	var sseWriter *utils.SSEWriter

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// 事件通道关闭时错误通道必已关闭,此处读取不阻塞
				if err := <-errs; err != nil {
					writeChatError(c, sseWriter, err)
					return
				}
				if sseWriter != nil {
					sseWriter.Close()
				}
				return
			}
			if sseWriter == nil {
				sseWriter = utils.NewSSEWriter(c.Writer)
			}
			if err := writeChatEvent(sseWriter, event); err != nil {
				logger.Warnf("SSE 写入失败,客户端可能已断开: %v", err)
				return
			}

		case <-ctx.Done():
			// 客户端断开,停止消费上游流
			return
		}
	}
}

// writeChatError 未开流时按 500 JSON 返回,已开流时追加 error 事件
func writeChatError(c *gin.Context, sseWriter *utils.SSEWriter, err error) {
	logger.Errorf("对话编排失败: %v", err)

	if sseWriter == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, _ := json.Marshal(gin.H{"error": err.Error()})
	sseWriter.Write("error", string(data))
	sseWriter.Close()
}

func writeChatEvent(w *utils.SSEWriter, event model.ChatStreamEvent) error {
	switch event.Type {
	case model.StreamEventToolResult:
		data, err := json.Marshal(event.ToolResult)
		if err != nil {
			return err
		}
		return w.Write("tool_result", string(data))
	default:
		data, err := json.Marshal(event.Chunk)
		if err != nil {
			return err
		}
		return w.WriteData(string(data))
	}
}
