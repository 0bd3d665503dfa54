package service

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylist-backend/internal/utils"
)

// chunkReader 按固定大小切片返回数据,模拟任意字节边界的底层分块
type chunkReader struct {
	data []byte
	size int
	pos  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func transform(t *testing.T, input string, chunkSize int) string {
	t.Helper()

	rec := httptest.NewRecorder()
	sse := utils.NewSSEWriter(rec)

	tr := NewStreamTransformer("test-model")
	err := tr.Transform(&chunkReader{data: []byte(input), size: chunkSize}, sse)
	require.NoError(t, err)

	return rec.Body.String()
}

func decodeChunks(t *testing.T, output string) []openai.ChatCompletionStreamResponse {
	t.Helper()

	var chunks []openai.ChatCompletionStreamResponse
	for _, block := range strings.Split(output, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		data := strings.TrimPrefix(block, "data: ")

		var chunk openai.ChatCompletionStreamResponse
		require.NoError(t, json.Unmarshal([]byte(data), &chunk), "chunk: %s", data)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestTransformTextEvents(t *testing.T) {
	input := "data: {\"event\":\"delta\",\"text\":\"Hello\"}\n\n" +
		"data: {\"event\":\"delta\",\"text\":\" world\",\"stop_reason\":\"stop\"}\n\n"

	chunks := decodeChunks(t, transform(t, input, 4096))
	require.Len(t, chunks, 2)

	assert.Equal(t, "chat.completion.chunk", chunks[0].Object)
	assert.Equal(t, "test-model", chunks[0].Model)
	assert.Equal(t, "Hello", chunks[0].Choices[0].Delta.Content)
	assert.Empty(t, chunks[0].Choices[0].FinishReason)

	assert.Equal(t, " world", chunks[1].Choices[0].Delta.Content)
	assert.Equal(t, openai.FinishReason("stop"), chunks[1].Choices[0].FinishReason)
}

func TestTransformSplitAcrossChunkBoundaries(t *testing.T) {
	input := "data: {\"event\":\"delta\",\"text\":\"第一段\"}\n\n" +
		"data: {\"event\":\"ping\"}\n\n" +
		"data: {\"event\":\"delta\",\"text\":\"第二段\",\"stop_reason\":\"stop\"}\n\n"

	want := normalizeIDs(t, decodeChunks(t, transform(t, input, 4096)))

	// 任意切分粒度下解码结果必须完全一致(流 ID 每次生成,比较前抹平)
	for _, size := range []int{1, 2, 3, 5, 7, 16, 64} {
		got := normalizeIDs(t, decodeChunks(t, transform(t, input, size)))
		assert.Equal(t, want, got, "chunk size %d", size)
	}
}

// normalizeIDs 校验整条流共享同一 ID 后抹平每次调用随机的 ID 与时间戳,便于跨次比较
func normalizeIDs(t *testing.T, chunks []openai.ChatCompletionStreamResponse) []openai.ChatCompletionStreamResponse {
	t.Helper()

	require.NotEmpty(t, chunks)
	streamID := chunks[0].ID
	assert.True(t, strings.HasPrefix(streamID, "chatcmpl-"))
	for i := range chunks {
		assert.Equal(t, streamID, chunks[i].ID)
		chunks[i].ID = ""
		chunks[i].Created = 0
	}
	return chunks
}

func TestTransformToolUseEvent(t *testing.T) {
	input := "data: {\"event\":\"tool_use\",\"tool_uses\":[" +
		"{\"id\":\"call_abc\",\"name\":\"searchProducts\",\"arguments\":\"{\\\"query\\\":\\\"linen shirt\\\"}\"}," +
		"{\"name\":\"searchProducts\",\"arguments\":\"{}\"}]}\n\n"

	chunks := decodeChunks(t, transform(t, input, 4096))
	require.Len(t, chunks, 1)

	choice := chunks[0].Choices[0]
	assert.Equal(t, openai.FinishReasonToolCalls, choice.FinishReason)
	require.Len(t, choice.Delta.ToolCalls, 2)

	first := choice.Delta.ToolCalls[0]
	require.NotNil(t, first.Index)
	assert.Equal(t, 0, *first.Index)
	assert.Equal(t, "call_abc", first.ID)
	assert.Equal(t, "searchProducts", first.Function.Name)
	assert.Equal(t, `{"query":"linen shirt"}`, first.Function.Arguments)

	second := choice.Delta.ToolCalls[1]
	require.NotNil(t, second.Index)
	assert.Equal(t, 1, *second.Index)
	assert.NotEmpty(t, second.ID)
}

func TestTransformHeartbeatEmitsEmptyDelta(t *testing.T) {
	chunks := decodeChunks(t, transform(t, "data: {\"event\":\"ping\"}\n\n", 4096))
	require.Len(t, chunks, 1)

	choice := chunks[0].Choices[0]
	assert.Empty(t, choice.Delta.Content)
	assert.Empty(t, choice.Delta.ToolCalls)
	assert.Empty(t, choice.FinishReason)
}

func TestTransformDropsMalformedEvent(t *testing.T) {
	input := "data: {not valid json\n\n" +
		"data: {\"event\":\"delta\",\"text\":\"survived\"}\n\n"

	chunks := decodeChunks(t, transform(t, input, 4096))
	require.Len(t, chunks, 1)
	assert.Equal(t, "survived", chunks[0].Choices[0].Delta.Content)
}

func TestTransformDiscardsTrailingPartial(t *testing.T) {
	input := "data: {\"event\":\"delta\",\"text\":\"done\"}\n\n" +
		"data: {\"event\":\"delta\",\"te"

	chunks := decodeChunks(t, transform(t, input, 4096))
	require.Len(t, chunks, 1)
	assert.Equal(t, "done", chunks[0].Choices[0].Delta.Content)
}

func TestTransformSkipsDoneAndNonDataLines(t *testing.T) {
	input := "event: message\ndata: {\"event\":\"delta\",\"text\":\"hi\"}\n\n" +
		": keep-alive\n\n" +
		"data: [DONE]\n\n"

	chunks := decodeChunks(t, transform(t, input, 4096))
	require.Len(t, chunks, 1)
	assert.Equal(t, "hi", chunks[0].Choices[0].Delta.Content)
}
