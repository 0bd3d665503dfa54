package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"stylist-backend/internal/config"
	"stylist-backend/internal/model"
	"stylist-backend/internal/storage"
	"stylist-backend/pkg/logger"
)

// 单画板内试穿任务的并发上限
const tryOnConcurrency = 3

const categorizePrompt = `You are organizing a fashion moodboard collection. Given a set of newly selected products and the user's existing moodboards, decide whether the products belong on one of the existing boards or deserve a new one.

Respond with a JSON object:
{"action": "CREATE_NEW" or "ADD_TO_EXISTING", "boardTitle": "...", "boardDescription": "..."}

Rules:
- Use ADD_TO_EXISTING only when an existing board's title and description clearly match the style of the new products; boardTitle must then be the exact title of that board.
- Otherwise use CREATE_NEW with a short evocative title (max 4 words) and a one-sentence description.`

// MoodboardService 画板装配:归类、并发试穿、落盘与完成投递
type MoodboardService struct {
	cfg    *config.Config
	client *openai.Client
	tryOn  *TryOnRunner
	store  storage.Storage
	broker *storage.Broker
}

func NewMoodboardService(cfg *config.Config, tryOn *TryOnRunner, store storage.Storage, broker *storage.Broker) *MoodboardService {
	return &MoodboardService{
		cfg:    cfg,
		client: newOpenAIClient(cfg.Upstream),
		tryOn:  tryOn,
		store:  store,
		broker: broker,
	}
}

// Categorize 同步归类。上游调用失败直接返回错误,由调用方决定响应;
// 模型返回内容不合法时在本地修正。
func (s *MoodboardService) Categorize(ctx context.Context, products []model.Product, existing []model.BoardSummary) (model.Categorization, error) {
	payload := struct {
		Products []model.Product      `json:"selectedProducts"`
		Boards   []model.BoardSummary `json:"existingMoodboards"`
	}{Products: products, Boards: existing}

	data, err := json.Marshal(payload)
	if err != nil {
		return model.Categorization{}, fmt.Errorf("failed to marshal categorization input: %w", err)
	}

	var result model.Categorization
	if err := completeJSON(ctx, s.client, s.cfg.Upstream.ChatModel, categorizePrompt, string(data), &result); err != nil {
		return model.Categorization{}, fmt.Errorf("categorization call failed: %w", err)
	}

	if result.Action != model.ActionCreateNew && result.Action != model.ActionAddToExisting {
		logger.Warnf("归类动作非法: %q,回落到新建", result.Action)
		result.Action = model.ActionCreateNew
	}
	if result.BoardTitle == "" {
		result.BoardTitle = defaultCategorization().BoardTitle
	}

	// 目标画板不存在时并入退化为新建
	if result.Action == model.ActionAddToExisting {
		if _, err := s.store.GetBoardByTitle(result.BoardTitle); err != nil {
			logger.Warnf("并入目标画板 %q 不存在,改为新建", result.BoardTitle)
			result.Action = model.ActionCreateNew
		}
	}

	return result, nil
}

func defaultCategorization() model.Categorization {
	return model.Categorization{
		Action:     model.ActionCreateNew,
		BoardTitle: "New Moodboard",
	}
}

// AssembleBoard 后台装配:并发试穿全部商品、持久化画板、投递完成记录。
// 在独立 goroutine 中运行,不向调用方返回错误。
func (s *MoodboardService) AssembleBoard(boardID string, products []model.Product, cat model.Categorization, tryOnMode string) {
	ctx := context.Background()

	tryOnURLMap := s.runTryOns(ctx, products, tryOnMode)

	items := make([]model.MoodboardItem, 0, len(products))
	for _, p := range products {
		items = append(items, model.MoodboardItem{Product: p, TryOnURL: tryOnURLMap[p.ID]})
	}

	if _, err := s.persistBoard(cat, items); err != nil {
		logger.Errorf("画板持久化失败: %v", err)
	}

	// 聚合结果单次投递,覆盖同 boardId 的旧记录
	s.broker.Put(boardID, model.CompletionRecord{
		TryOnURLMap:    tryOnURLMap,
		Categorization: &cat,
	})
	logger.Infof("画板装配完成: boardId=%s items=%d action=%s", boardID, len(items), cat.Action)
}

// runTryOns 并发跑全部试穿,结果映射对每个商品都有值。
// 每个条目独立随机选模特照,单条失败不影响其余条目。
func (s *MoodboardService) runTryOns(ctx context.Context, products []model.Product, tryOnMode string) map[string]string {
	var mu sync.Mutex
	tryOnURLMap := make(map[string]string, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tryOnConcurrency)

	for _, p := range products {
		product := p
		g.Go(func() error {
			modelImage := pickModelImage(s.store, product)
			url := s.tryOn.Generate(gctx, modelImage, product.ImageURL, tryOnMode)
			mu.Lock()
			tryOnURLMap[product.ID] = url
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return tryOnURLMap
}

// pickModelImage 随机取一张已审核模特照,没有则用商品原图兜底
func pickModelImage(photos storage.PhotoStore, product model.Product) string {
	photo, err := photos.RandomApprovedPhoto()
	if err == nil {
		return photo.URL
	}

	logger.Warnf("无可用模特照片,使用商品原图兜底: %v", err)
	return product.ImageURL
}

// persistBoard 按归类结果新建画板或并入已有画板
func (s *MoodboardService) persistBoard(cat model.Categorization, items []model.MoodboardItem) (*model.Moodboard, error) {
	if cat.Action == model.ActionAddToExisting {
		board, err := s.store.GetBoardByTitle(cat.BoardTitle)
		if err == nil {
			board.Items = append(board.Items, items...)
			board.UpdatedAt = time.Now()
			if err := s.store.SaveBoard(board); err != nil {
				return nil, fmt.Errorf("failed to update board %s: %w", board.ID, err)
			}
			return board, nil
		}
		logger.Warnf("并入目标画板 %q 已不存在,改为新建", cat.BoardTitle)
	}

	board := NewBoard(cat.BoardTitle, cat.BoardDescription, items)
	if err := s.store.SaveBoard(board); err != nil {
		return nil, fmt.Errorf("failed to save board %s: %w", board.ID, err)
	}
	return board, nil
}

// NewBoard 构造一块新画板
func NewBoard(title, description string, items []model.MoodboardItem) *model.Moodboard {
	if items == nil {
		items = []model.MoodboardItem{}
	}
	now := time.Now()
	return &model.Moodboard{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
