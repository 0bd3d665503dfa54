package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"stylist-backend/internal/config"
	"stylist-backend/internal/model"
	"stylist-backend/internal/tools"
	"stylist-backend/pkg/logger"
)

// stylistSystemPrompt 固定的造型师人设与工具使用策略
const stylistSystemPrompt = `You are an expert AI fashion stylist. You help users discover clothing and build outfits that suit them.

Guidelines:
- When the user asks for a specific, searchable item (e.g. "black linen blazer"), call the searchProducts tool immediately with a concise query.
- When the request is vague ("I need something for a wedding"), ask one or two short clarifying questions before searching.
- When a search returns no results, tell the user plainly and suggest an alternative phrasing.
- Keep answers warm, concise, and practical. Reference the user's known features (skin tone, body shape, current outfit) when an image analysis is available.`

// imageAnalysisPrompt 视觉模型的形象分析指令
const imageAnalysisPrompt = `You are a professional fashion stylist. Analyze the person in this photo: describe their skin tone, body shape, and the outfit they are currently wearing. Be specific and concise, in under 120 words.`

// ChatService 造型师对话编排:图像分析、流式续写与工具循环
type ChatService struct {
	cfg      *config.Config
	client   *openai.Client
	pre      *Preprocessor
	searcher *tools.ProductSearcher
}

func NewChatService(cfg *config.Config, searcher *tools.ProductSearcher) *ChatService {
	return &ChatService{
		cfg:      cfg,
		client:   newChatClient(cfg),
		pre:      NewPreprocessor(cfg.Storage.UploadsDir),
		searcher: searcher,
	}
}

// StreamChat 启动一轮对话编排,事件与错误经由通道异步返回
func (s *ChatService) StreamChat(ctx context.Context, messages []model.ChatMessage) (<-chan model.ChatStreamEvent, <-chan error) {
	events := make(chan model.ChatStreamEvent, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		resolved := s.pre.ResolveLocalImages(messages)

		var history []openai.ChatCompletionMessage
		if imageRef, text, ok := LatestMessageImage(resolved); ok {
			// 最新消息带图:先做非流式形象分析,再折叠历史
			flattened, err := s.analyzeAndFlatten(ctx, resolved, imageRef, text)
			if err != nil {
				errs <- err
				return
			}
			history = flattened
		} else {
			history = toOpenAIMessages(resolved, stylistSystemPrompt)
		}

		if err := s.streamWithTools(ctx, history, events); err != nil {
			errs <- err
		}
	}()

	return events, errs
}

// analyzeAndFlatten 视觉分析后把多模态历史折叠为纯文本历史
func (s *ChatService) analyzeAndFlatten(ctx context.Context, messages []model.ChatMessage, imageRef, text string) ([]openai.ChatCompletionMessage, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Upstream.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageRef},
					},
					{Type: openai.ChatMessagePartTypeText, Text: imageAnalysisPrompt},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("image analysis failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("image analysis returned no choices")
	}
	analysis := resp.Choices[0].Message.Content

	history := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	history = append(history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: stylistSystemPrompt,
	})

	// 历史多模态消息折叠为文本部件;只有既无文本又确实带图的才用占位符
	for _, msg := range messages[:len(messages)-1] {
		content := msg.Content.PlainText()
		if content == "" && msg.Content.FirstImage() != "" {
			content = "[Previous message contained an image]"
		}
		history = append(history, openai.ChatCompletionMessage{Role: msg.Role, Content: content})
	}

	// 合成最终用户消息:原始文本 + 形象分析结果
	history = append(history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("%s\n\n[Image Analysis: %s]", text, analysis),
	})

	return history, nil
}

// streamWithTools 流式续写主循环,工具调用后带结果进入下一轮
func (s *ChatService) streamWithTools(ctx context.Context, history []openai.ChatCompletionMessage, events chan<- model.ChatStreamEvent) error {
	for {
		stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    s.cfg.Upstream.ChatModel,
			Messages: history,
			Tools:    []openai.Tool{tools.SearchProductsTool()},
			Stream:   true,
		})
		if err != nil {
			return fmt.Errorf("chat completion stream failed: %w", err)
		}

		var content strings.Builder
		calls := make(map[int]*openai.ToolCall)

		for {
			chunk, recvErr := stream.Recv()
			if recvErr == io.EOF {
				break
			}
			if recvErr != nil {
				stream.Close()
				return fmt.Errorf("stream receive failed: %w", recvErr)
			}

			forwarded := chunk
			if err := sendEvent(ctx, events, model.ChatStreamEvent{Type: model.StreamEventChunk, Chunk: &forwarded}); err != nil {
				stream.Close()
				return err
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			content.WriteString(delta.Content)

			// 工具调用增量按 index 聚合
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := calls[idx]
				if !ok {
					cp := tc
					calls[idx] = &cp
					continue
				}
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				if tc.Function.Name != "" {
					acc.Function.Name = tc.Function.Name
				}
				acc.Function.Arguments += tc.Function.Arguments
			}
		}
		stream.Close()

		if len(calls) == 0 {
			return nil
		}

		order := make([]int, 0, len(calls))
		for idx := range calls {
			order = append(order, idx)
		}
		sort.Ints(order)

		assistant := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: content.String(),
		}
		for _, idx := range order {
			assistant.ToolCalls = append(assistant.ToolCalls, *calls[idx])
		}
		history = append(history, assistant)

		for _, idx := range order {
			call := calls[idx]
			logger.Infof("执行工具调用: %s args=%s", call.Function.Name, call.Function.Arguments)

			products, resultJSON, execErr := s.searcher.Execute(ctx, call.Function.Arguments)
			if execErr != nil {
				return fmt.Errorf("tool %s failed: %w", call.Function.Name, execErr)
			}

			toolEvent := model.ChatStreamEvent{
				Type: model.StreamEventToolResult,
				ToolResult: &model.ToolResultEvent{
					ToolCallID: call.ID,
					Name:       call.Function.Name,
					Products:   products,
				},
			}
			if err := sendEvent(ctx, events, toolEvent); err != nil {
				return err
			}

			history = append(history, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    resultJSON,
				ToolCallID: call.ID,
			})
		}
	}
}

// sendEvent 客户端断开后不再阻塞投递
func sendEvent(ctx context.Context, events chan<- model.ChatStreamEvent, event model.ChatStreamEvent) error {
	select {
	case events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// toOpenAIMessages 把内部消息转成上游请求消息,多模态内容保留为 MultiContent
func toOpenAIMessages(messages []model.ChatMessage, systemPrompt string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	result = append(result, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	for _, msg := range messages {
		if !msg.Content.IsMultimodal() {
			result = append(result, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content.Text})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(msg.Content.Parts))
		for _, part := range msg.Content.Parts {
			switch part.Type {
			case model.PartTypeText:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			case model.PartTypeImage:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL},
				})
			}
		}
		result = append(result, openai.ChatCompletionMessage{Role: msg.Role, MultiContent: parts})
	}

	return result
}
