package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"stylist-backend/internal/service"
	"stylist-backend/internal/utils"
	"stylist-backend/pkg/logger"
)

type ProxyHandler struct {
	proxyService *service.ProxyService
}

func NewProxyHandler(proxyService *service.ProxyService) *ProxyHandler {
	return &ProxyHandler{proxyService: proxyService}
}

// ChatCompletions OpenAI 形状请求透传,按 body 的 stream 标志分流
func (h *ProxyHandler) ChatCompletions(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var fields struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}

	resp, err := h.proxyService.Forward(c.Request.Context(), raw, fields.Stream)
	if err != nil {
		logger.Errorf("上游转发失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	// 上游非 2xx 时原样透传状态码与响应体
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), payload)
		return
	}

	if !fields.Stream {
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(resp.StatusCode, "application/json", payload)
		return
	}

	sseWriter := utils.NewSSEWriter(c.Writer)
	if err := h.proxyService.PipeStream(resp.Body, sseWriter); err != nil {
		if errors.Is(err, service.ErrEmptyStream) {
			logger.Errorf("上游返回空流")
		} else {
			logger.Errorf("流式透传中断: %v", err)
		}
	}
}
