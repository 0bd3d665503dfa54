package model

import (
	openai "github.com/sashabaranov/go-openai"
)

// 流事件类型
const (
	StreamEventChunk      = "chunk"
	StreamEventToolResult = "tool_result"
)

// ChatStreamEvent 编排器向 SSE 层转发的单个流事件
type ChatStreamEvent struct {
	Type       string                               `json:"type"`
	Chunk      *openai.ChatCompletionStreamResponse `json:"chunk,omitempty"`
	ToolResult *ToolResultEvent                     `json:"tool_result,omitempty"`
}

// ToolResultEvent 工具调用的解析结果，按原始顺序插入流中
type ToolResultEvent struct {
	ToolCallID string    `json:"tool_call_id"`
	Name       string    `json:"name"`
	Products   []Product `json:"products"`
}

// NotifyResponse 轮询接口响应
type NotifyResponse struct {
	Status         string            `json:"status"` // completed | processing
	TryOnURLMap    map[string]string `json:"tryOnUrlMap,omitempty"`
	Categorization *Categorization   `json:"categorization,omitempty"`
	NewBoard       *Moodboard        `json:"newBoard,omitempty"`
}
