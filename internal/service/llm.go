package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"stylist-backend/internal/config"
)

// newOpenAIClient 按上游配置构造 OpenAI 兼容客户端
func newOpenAIClient(cfg config.UpstreamConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return openai.NewClientWithConfig(clientConfig)
}

// newChatClient 编排层客户端。上游输出厂商私有流格式时改为自寻址本机透传端点,
// 由透传层经流转换归一化为标准 chat-completion-chunk 后再消费。
func newChatClient(cfg *config.Config) *openai.Client {
	if !cfg.Upstream.VendorFormat {
		return newOpenAIClient(cfg.Upstream)
	}

	clientConfig := openai.DefaultConfig(cfg.Upstream.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.Host, "/") + "/api"

	return openai.NewClientWithConfig(clientConfig)
}

// completeJSON 发起一次非流式 JSON 模式调用并把结果解析到 out
func completeJSON(ctx context.Context, client *openai.Client, model, systemPrompt, userPrompt string, out interface{}) error {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return fmt.Errorf("completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices in completion response")
	}

	content := stripJSONFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse structured response: %w", err)
	}

	return nil
}

// stripJSONFences 去掉部分模型习惯性包裹的 markdown 代码栅栏
func stripJSONFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
