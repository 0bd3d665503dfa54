package utils

import (
	"fmt"
	"net/http"
)

type SSEWriter struct {
	w http.ResponseWriter
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w}
}

func (s *SSEWriter) Write(event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}

	s.Flush()

	return nil
}

// WriteData 写无事件名的标准 data 行（chat-completion-chunk 流走这里）
func (s *SSEWriter) WriteData(data string) error {
	return s.Write("", data)
}

// WriteRaw 透传已是 SSE 线格式的原始字节
func (s *SSEWriter) WriteRaw(p []byte) error {
	if _, err := s.w.Write(p); err != nil {
		return err
	}

	s.Flush()

	return nil
}

func (s *SSEWriter) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *SSEWriter) Close() error {
	return s.Write("", "[DONE]")
}
