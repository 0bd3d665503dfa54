package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"stylist-backend/internal/config"
	"stylist-backend/internal/utils"
)

// ErrEmptyStream 上游在流式模式下返回了空响应体
var ErrEmptyStream = errors.New("empty streaming response from upstream")

// ProxyService 把 OpenAI 形态的补全请求原样转发到配置的上游，
// 统一补齐鉴权头。编排层因此只需面向一个稳定的本地端点，
// 不感知底层厂商格式的差异。
type ProxyService struct {
	cfg          *config.Config
	client       *http.Client
	streamClient *http.Client
	transformer  *StreamTransformer
}

func NewProxyService(cfg *config.Config) *ProxyService {
	return &ProxyService{
		cfg:    cfg,
		client: utils.NewHTTPClient(cfg.Upstream.Timeout),
		// 流式响应持续时间不可预估，不设整体超时
		streamClient: utils.NewHTTPClient(0),
		transformer:  NewStreamTransformer(cfg.Upstream.ChatModel),
	}
}

// Forward 转发请求体。stream 为 true 时强制上游开启流式。
// 调用方负责关闭返回的响应体。
func (s *ProxyService) Forward(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	payload := body

	if stream {
		var fields map[string]interface{}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("failed to parse request body: %w", err)
		}
		fields["stream"] = true

		var err error
		payload, err = json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.Upstream.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Upstream.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	client := s.client
	if stream {
		client = s.streamClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	return resp, nil
}

// PipeStream 把上游流式响应体写给客户端：厂商格式先经流转换器归一化，
// 否则逐块透传。空响应体报 ErrEmptyStream。
func (s *ProxyService) PipeStream(body io.Reader, sse *utils.SSEWriter) error {
	buf := make([]byte, 4096)
	var first []byte
	for {
		n, err := body.Read(buf)
		if n > 0 {
			first = buf[:n]
			break
		}
		if err == io.EOF {
			return ErrEmptyStream
		}
		if err != nil {
			return fmt.Errorf("failed to read upstream stream: %w", err)
		}
	}

	prefixed := io.MultiReader(bytes.NewReader(first), body)

	if s.cfg.Upstream.VendorFormat {
		if err := s.transformer.Transform(prefixed, sse); err != nil {
			return err
		}
		return sse.Close()
	}

	for {
		n, err := prefixed.Read(buf)
		if n > 0 {
			if writeErr := sse.WriteRaw(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read upstream stream: %w", err)
		}
	}
}
