package service

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"stylist-backend/internal/config"
	"stylist-backend/internal/model"
	"stylist-backend/internal/storage"
	"stylist-backend/internal/tools"
	"stylist-backend/pkg/logger"
)

// 主动式穿搭每次最多处理的商品数
const proactiveProductLimit = 2

const extractQueriesPrompt = `You are a fashion stylist's assistant. Given a piece of styling advice, extract one or two concrete product search queries that would find the recommended items, plus the target gender if it can be inferred.

Respond with a JSON object:
{"queries": ["...", "..."], "gender": "women" or "men" or "unisex"}

Queries must be short marketplace-style phrases (e.g. "beige wide-leg trousers"). Return at most two.`

const boardMetaPrompt = `You are naming a fashion moodboard built from styling advice. Given the advice and the selected products, produce a short evocative board title (max 4 words) and a one-sentence description.

Respond with a JSON object:
{"boardTitle": "...", "boardDescription": "..."}`

type extractedQueries struct {
	Queries []string `json:"queries"`
	Gender  string   `json:"gender"`
}

type boardMeta struct {
	BoardTitle       string `json:"boardTitle"`
	BoardDescription string `json:"boardDescription"`
}

// ProactiveService 主动式穿搭:从建议文本出发自动选品、试穿并建板
type ProactiveService struct {
	cfg      *config.Config
	client   *openai.Client
	searcher *tools.ProductSearcher
	tryOn    *TryOnRunner
	store    storage.Storage
	broker   *storage.Broker
}

func NewProactiveService(cfg *config.Config, searcher *tools.ProductSearcher, tryOn *TryOnRunner, store storage.Storage, broker *storage.Broker) *ProactiveService {
	return &ProactiveService{
		cfg:      cfg,
		client:   newOpenAIClient(cfg.Upstream),
		searcher: searcher,
		tryOn:    tryOn,
		store:    store,
		broker:   broker,
	}
}

// Run 在后台执行整条管线。失败或无结果时静默终止,不投递任何记录。
func (s *ProactiveService) Run(boardID, adviceText, tryOnMode string) {
	ctx := context.Background()

	extracted, err := s.extractQueries(ctx, adviceText)
	if err != nil {
		logger.Warnf("主动式穿搭: 查询提取失败,终止: %v", err)
		return
	}
	if len(extracted.Queries) == 0 {
		logger.Infof("主动式穿搭: 建议文本未产出查询,终止")
		return
	}

	query := extracted.Queries[0]
	if extracted.Gender != "" && extracted.Gender != "unisex" {
		query = extracted.Gender + " " + query
	}

	products, err := s.searcher.Search(ctx, tools.SearchProductsArgs{Query: query})
	if err != nil {
		logger.Warnf("主动式穿搭: 商品搜索失败,终止: %v", err)
		return
	}
	if len(products) == 0 {
		// 零结果静默终止,不打扰用户
		logger.Infof("主动式穿搭: 查询 %q 无结果,终止", query)
		return
	}
	if len(products) > proactiveProductLimit {
		products = products[:proactiveProductLimit]
	}

	meta := s.boardMeta(ctx, adviceText, extracted.Gender, products)

	// 串行试穿,每个条目独立随机选模特照
	items := make([]model.MoodboardItem, 0, len(products))
	for _, p := range products {
		modelImage := pickModelImage(s.store, p)
		url := s.tryOn.Generate(ctx, modelImage, p.ImageURL, tryOnMode)
		items = append(items, model.MoodboardItem{Product: p, TryOnURL: url})
	}

	board := NewBoard(meta.BoardTitle, meta.BoardDescription, items)
	if err := s.store.SaveBoard(board); err != nil {
		logger.Errorf("主动式穿搭: 画板保存失败: %v", err)
		return
	}

	s.broker.Put(boardID, model.CompletionRecord{NewBoard: board})
	logger.Infof("主动式穿搭完成: boardId=%s board=%q items=%d", boardID, board.Title, len(items))
}

func (s *ProactiveService) extractQueries(ctx context.Context, adviceText string) (*extractedQueries, error) {
	var result extractedQueries
	if err := completeJSON(ctx, s.client, s.cfg.Upstream.ChatModel, extractQueriesPrompt, adviceText, &result); err != nil {
		return nil, err
	}
	if len(result.Queries) > 2 {
		result.Queries = result.Queries[:2]
	}
	return &result, nil
}

// boardMeta 按检出的性别语境生成画板标题与描述,失败时给出兜底命名
func (s *ProactiveService) boardMeta(ctx context.Context, adviceText, gender string, products []model.Product) boardMeta {
	payload := struct {
		Advice   string          `json:"advice"`
		Gender   string          `json:"gender,omitempty"`
		Products []model.Product `json:"products"`
	}{Advice: adviceText, Gender: gender, Products: products}

	var meta boardMeta
	data, err := json.Marshal(payload)
	if err == nil {
		err = completeJSON(ctx, s.client, s.cfg.Upstream.ChatModel, boardMetaPrompt, string(data), &meta)
	}
	if err != nil || meta.BoardTitle == "" {
		logger.Warnf("画板命名失败,使用兜底标题: %v", err)
		meta.BoardTitle = "Styled For You"
		meta.BoardDescription = "Looks picked from your stylist's advice."
	}
	return meta
}
