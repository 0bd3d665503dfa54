package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylist-backend/internal/config"
	"stylist-backend/internal/model"
	"stylist-backend/internal/service"
	"stylist-backend/internal/storage"
	"stylist-backend/internal/tools"
)

type moodboardFixture struct {
	router *gin.Engine
	broker *storage.Broker
	store  storage.Storage
}

// newLLMJSONStub 对每个补全请求返回固定 JSON 内容
func newLLMJSONStub(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: content}},
			},
		})
	}))
}

// newInstantTryOnStub 提交即完成的试穿桩,结果图由同一服务托管
func newInstantTryOnStub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var server *httptest.Server
	var jobs atomic.Int64

	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("pred-%d", jobs.Add(1))})
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred",
			"status": "completed",
			"output": []string{server.URL + "/result.jpg"},
		})
	})
	mux.HandleFunc("/result.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	})

	server = httptest.NewServer(mux)
	return server
}

func newSearchStub(t *testing.T, products []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"products": products})
	}))
}

func newMoodboardFixture(t *testing.T, llmURL, tryOnURL, searchURL string) *moodboardFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Upstream = config.UpstreamConfig{BaseURL: llmURL, APIKey: "k", ChatModel: "m", VisionModel: "v"}
	cfg.Search = config.SearchConfig{Endpoint: searchURL, Limit: 10}
	cfg.TryOn = config.TryOnConfig{
		BaseURL:         tryOnURL,
		PollInterval:    time.Millisecond,
		PollDeadline:    time.Second,
		DownloadTimeout: time.Second,
	}
	cfg.Storage.UploadsDir = t.TempDir()

	store := storage.NewMemoryStorage()
	require.NoError(t, store.Init())

	broker := storage.NewBroker(time.Minute)
	t.Cleanup(func() { broker.Close() })

	searcher := tools.NewProductSearcher(cfg.Search)
	runner := service.NewTryOnRunner(cfg.TryOn, cfg.Storage.UploadsDir)
	moodboardService := service.NewMoodboardService(cfg, runner, store, broker)
	proactiveService := service.NewProactiveService(cfg, searcher, runner, store, broker)

	h := NewMoodboardHandler(moodboardService, proactiveService, store)
	notifyHandler := NewNotifyHandler(broker)

	router := gin.New()
	router.POST("/api/moodboard/generate", h.Generate)
	router.POST("/api/styling/proactive", h.Proactive)
	router.GET("/api/notify", notifyHandler.Poll)
	router.GET("/api/moodboard", h.ListBoards)
	router.POST("/api/moodboard", h.CreateBoard)
	router.GET("/api/moodboard/:id", h.GetBoard)
	router.DELETE("/api/moodboard/:id", h.DeleteBoard)

	return &moodboardFixture{router: router, broker: broker, store: store}
}

// pollNotify 轮询直到 completed 或超时,返回最后一次响应体
func pollNotify(t *testing.T, router *gin.Engine, boardID string, timeout time.Duration) (model.NotifyResponse, bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		rec := doJSON(router, http.MethodGet, "/api/notify?boardId="+boardID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp model.NotifyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		if resp.Status == "completed" {
			return resp, true
		}
		if time.Now().After(deadline) {
			return resp, false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGenerateMoodboardEndToEnd(t *testing.T) {
	llm := newLLMJSONStub(t, `{"action":"CREATE_NEW","boardTitle":"Crisp Summer","boardDescription":"Light layers"}`)
	defer llm.Close()
	tryOn := newInstantTryOnStub(t)
	defer tryOn.Close()
	search := newSearchStub(t, nil)
	defer search.Close()

	fx := newMoodboardFixture(t, llm.URL, tryOn.URL, search.URL)

	body := `{
		"selectedProducts": [
			{"id":"A","name":"Shirt","imageUrl":"https://cdn.example.com/a.jpg","link":"https://shop/a"},
			{"id":"B","name":"Trousers","imageUrl":"https://cdn.example.com/b.jpg","link":"https://shop/b"}
		],
		"existingMoodboards": [],
		"boardId": "b1"
	}`
	rec := doJSON(fx.router, http.MethodPost, "/api/moodboard/generate", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		Categorization model.Categorization `json:"categorization"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Contains(t, []string{model.ActionCreateNew, model.ActionAddToExisting}, accepted.Categorization.Action)

	resp, done := pollNotify(t, fx.router, "b1", 2*time.Second)
	require.True(t, done, "board b1 never completed")

	require.Len(t, resp.TryOnURLMap, 2)
	assert.Contains(t, resp.TryOnURLMap, "A")
	assert.Contains(t, resp.TryOnURLMap, "B")
	require.NotNil(t, resp.Categorization)
}

func TestGenerateMoodboardValidation(t *testing.T) {
	llm := newLLMJSONStub(t, `{}`)
	defer llm.Close()
	tryOn := newInstantTryOnStub(t)
	defer tryOn.Close()
	search := newSearchStub(t, nil)
	defer search.Close()

	fx := newMoodboardFixture(t, llm.URL, tryOn.URL, search.URL)

	rec := doJSON(fx.router, http.MethodPost, "/api/moodboard/generate", `{"boardId":"b1","selectedProducts":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(fx.router, http.MethodPost, "/api/moodboard/generate", `{"selectedProducts":[{"id":"A"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateMoodboardCategorizationFailureReturns500(t *testing.T) {
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer llm.Close()
	tryOn := newInstantTryOnStub(t)
	defer tryOn.Close()
	search := newSearchStub(t, nil)
	defer search.Close()

	fx := newMoodboardFixture(t, llm.URL, tryOn.URL, search.URL)

	rec := doJSON(fx.router, http.MethodPost, "/api/moodboard/generate",
		`{"boardId":"b1","selectedProducts":[{"id":"A","imageUrl":"http://example.com/a.jpg"}]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])

	// 归类失败即终止,不应有完成记录可取
	_, ok := fx.broker.Take("b1")
	assert.False(t, ok)
}

func TestProactiveZeroResultsSilentAbort(t *testing.T) {
	llm := newLLMJSONStub(t, `{"queries":["white linen shirt"],"gender":"men"}`)
	defer llm.Close()
	tryOn := newInstantTryOnStub(t)
	defer tryOn.Close()
	search := newSearchStub(t, nil) // 搜索永远零结果
	defer search.Close()

	fx := newMoodboardFixture(t, llm.URL, tryOn.URL, search.URL)

	rec := doJSON(fx.router, http.MethodPost, "/api/styling/proactive",
		`{"adviceText":"Try a white linen shirt with tailored trousers"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		BoardID string `json:"boardId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.BoardID)

	// 静默终止:轮询始终 processing,永不完成
	resp, done := pollNotify(t, fx.router, accepted.BoardID, 300*time.Millisecond)
	assert.False(t, done)
	assert.Equal(t, "processing", resp.Status)
}

func TestProactiveEndToEnd(t *testing.T) {
	llm := newLLMJSONStub(t, `{"queries":["silk slip dress"],"gender":"women","boardTitle":"Evening Silk","boardDescription":"After dark"}`)
	defer llm.Close()
	tryOn := newInstantTryOnStub(t)
	defer tryOn.Close()
	search := newSearchStub(t, []map[string]interface{}{
		{"sku": "S1", "title": "Silk Dress", "image": "https://cdn.example.com/s1.jpg", "url": "https://shop/s1"},
		{"sku": "S2", "title": "Slip Dress", "image": "https://cdn.example.com/s2.jpg", "url": "https://shop/s2"},
		{"sku": "S3", "title": "Extra Dress", "image": "https://cdn.example.com/s3.jpg", "url": "https://shop/s3"},
	})
	defer search.Close()

	fx := newMoodboardFixture(t, llm.URL, tryOn.URL, search.URL)

	rec := doJSON(fx.router, http.MethodPost, "/api/styling/proactive",
		`{"adviceText":"A silk slip dress would suit you","boardId":"p1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp, done := pollNotify(t, fx.router, "p1", 2*time.Second)
	require.True(t, done, "board p1 never completed")

	require.NotNil(t, resp.NewBoard)
	// 只取前两个搜索结果
	assert.Len(t, resp.NewBoard.Items, 2)
	assert.NotEmpty(t, resp.NewBoard.Title)
}

func TestProactiveRequiresAdviceText(t *testing.T) {
	llm := newLLMJSONStub(t, `{}`)
	defer llm.Close()
	tryOn := newInstantTryOnStub(t)
	defer tryOn.Close()
	search := newSearchStub(t, nil)
	defer search.Close()

	fx := newMoodboardFixture(t, llm.URL, tryOn.URL, search.URL)

	rec := doJSON(fx.router, http.MethodPost, "/api/styling/proactive", `{"tryOnMode":"quality"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBoardCRUD(t *testing.T) {
	llm := newLLMJSONStub(t, `{}`)
	defer llm.Close()
	tryOn := newInstantTryOnStub(t)
	defer tryOn.Close()
	search := newSearchStub(t, nil)
	defer search.Close()

	fx := newMoodboardFixture(t, llm.URL, tryOn.URL, search.URL)

	rec := doJSON(fx.router, http.MethodPost, "/api/moodboard", `{"title":"Manual Board","description":"hand made"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var board model.Moodboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	require.NotEmpty(t, board.ID)

	rec = doJSON(fx.router, http.MethodGet, "/api/moodboard/"+board.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(fx.router, http.MethodGet, "/api/moodboard", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Manual Board")

	rec = doJSON(fx.router, http.MethodDelete, "/api/moodboard/"+board.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(fx.router, http.MethodGet, "/api/moodboard/"+board.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
