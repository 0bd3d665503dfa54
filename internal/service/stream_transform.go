package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"stylist-backend/internal/utils"
	"stylist-backend/pkg/logger"
)

// vendorStreamEvent 厂商私有 SSE 事件
type vendorStreamEvent struct {
	Event      string          `json:"event"`
	Text       string          `json:"text,omitempty"`
	StopReason string          `json:"stop_reason,omitempty"`
	ToolUses   []vendorToolUse `json:"tool_uses,omitempty"`
}

type vendorToolUse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// StreamTransformer 把厂商私有补全流转换为标准 chat-completion-chunk 流。
// 事件可能在任意字节边界被底层分块截断，必须攒够完整的 \n\n 结尾事件再解析。
type StreamTransformer struct {
	model string
}

func NewStreamTransformer(model string) *StreamTransformer {
	return &StreamTransformer{model: model}
}

// Transform 逐事件转换直到上游流结束。不改变事件顺序。
// 单个事件 JSON 非法时丢弃该事件继续，流尾残留的不完整缓冲只记日志。
func (t *StreamTransformer) Transform(r io.Reader, sse *utils.SSEWriter) error {
	streamID := "chatcmpl-" + uuid.New().String()
	created := time.Now().Unix()

	var buf bytes.Buffer
	chunk := make([]byte, 4096)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])

			for {
				raw := buf.Bytes()
				idx := bytes.Index(raw, []byte("\n\n"))
				if idx < 0 {
					break
				}

				event := make([]byte, idx)
				copy(event, raw[:idx])
				buf.Next(idx + 2)

				if writeErr := t.emitEvent(event, streamID, created, sse); writeErr != nil {
					return writeErr
				}
			}
		}

		if err == io.EOF {
			if buf.Len() > 0 {
				logger.Warnf("Discarding %d bytes of incomplete trailing SSE data", buf.Len())
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read upstream stream: %w", err)
		}
	}
}

// emitEvent 解析单个完整事件并写出对应的归一化 chunk
func (t *StreamTransformer) emitEvent(event []byte, streamID string, created int64, sse *utils.SSEWriter) error {
	data, ok := extractEventData(event)
	if !ok || data == "[DONE]" {
		return nil
	}

	var vendor vendorStreamEvent
	if err := json.Unmarshal([]byte(data), &vendor); err != nil {
		logger.Warnf("Dropping malformed vendor event: %v", err)
		return nil
	}

	out, err := json.Marshal(t.normalize(vendor, streamID, created))
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	return sse.WriteData(string(out))
}

// extractEventData 拼接事件块内的 data 行，忽略 event/id/注释行
func extractEventData(event []byte) (string, bool) {
	var lines []string

	for _, line := range strings.Split(string(event), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		lines = append(lines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
	}

	if len(lines) == 0 {
		return "", false
	}

	return strings.Join(lines, "\n"), true
}

// normalize 厂商事件到标准 chunk 的映射：
// 工具调用完成 -> 带索引的 tool_calls 增量 + finish_reason=tool_calls；
// 增量文本 -> content 增量，原样透传厂商的 stop reason；
// 其余（心跳、未知）-> 结构合法的空增量，保证下游解析器不中断。
func (t *StreamTransformer) normalize(vendor vendorStreamEvent, streamID string, created int64) openai.ChatCompletionStreamResponse {
	chunk := openai.ChatCompletionStreamResponse{
		ID:      streamID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   t.model,
		Choices: []openai.ChatCompletionStreamChoice{{Index: 0}},
	}

	switch {
	case len(vendor.ToolUses) > 0:
		calls := make([]openai.ToolCall, len(vendor.ToolUses))
		for i, use := range vendor.ToolUses {
			index := i
			callID := use.ID
			if callID == "" {
				callID = fmt.Sprintf("call_%d", i)
			}
			calls[i] = openai.ToolCall{
				Index: &index,
				ID:    callID,
				Type:  openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      use.Name,
					Arguments: use.Arguments,
				},
			}
		}
		chunk.Choices[0].Delta.ToolCalls = calls
		chunk.Choices[0].FinishReason = openai.FinishReasonToolCalls

	case vendor.Text != "":
		chunk.Choices[0].Delta.Content = vendor.Text
		chunk.Choices[0].FinishReason = openai.FinishReason(vendor.StopReason)
	}

	return chunk
}
