package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"stylist-backend/internal/config"
	"stylist-backend/internal/model"
	"stylist-backend/internal/utils"
	"stylist-backend/pkg/logger"
)

const SearchProductsToolName = "searchProducts"

// SearchProductsArgs 模型传入的工具参数
type SearchProductsArgs struct {
	Query    string `json:"query"`
	ItemType string `json:"itemType,omitempty"`
}

// SearchProductsTool 返回注册给模型的工具定义
func SearchProductsTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        SearchProductsToolName,
			Description: "搜索商品目录。当用户的穿搭需求足够具体时调用，返回可购买的商品列表。",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": {
						Type:        jsonschema.String,
						Description: "搜索关键词，例如 \"白色亚麻衬衫\"",
					},
					"itemType": {
						Type:        jsonschema.String,
						Description: "可选的品类限定，例如 top、bottom、shoes",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

// ProductSearcher 调用外部商品目录搜索接口并转换响应形态
type ProductSearcher struct {
	endpoint string
	apiKey   string
	limit    int
	client   *http.Client
}

func NewProductSearcher(cfg config.SearchConfig) *ProductSearcher {
	return &ProductSearcher{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		limit:    cfg.Limit,
		client:   utils.NewHTTPClient(30 * time.Second),
	}
}

type searchRequest struct {
	Query    string `json:"query"`
	ItemType string `json:"itemType,omitempty"`
	Limit    int    `json:"limit"`
}

type searchResponse struct {
	Products []searchProduct `json:"products"`
}

type searchProduct struct {
	SKU           string  `json:"sku"`
	Title         string  `json:"title"`
	Image         string  `json:"image"`
	URL           string  `json:"url"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price"`
	Rating        float64 `json:"rating"`
	RatingCount   int     `json:"rating_count"`
	Expedited     bool    `json:"expedited_shipping"`
}

// Search 执行目录搜索。空结果是合法结果，不视为错误
func (s *ProductSearcher) Search(ctx context.Context, args SearchProductsArgs) ([]model.Product, error) {
	var resp searchResponse
	req := searchRequest{
		Query:    args.Query,
		ItemType: args.ItemType,
		Limit:    s.limit,
	}

	if err := postJSON(ctx, s.client, s.endpoint, s.apiKey, req, &resp); err != nil {
		return nil, fmt.Errorf("product search failed: %w", err)
	}

	products := make([]model.Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		products = append(products, model.Product{
			ID:            p.SKU,
			Name:          p.Title,
			ImageURL:      p.Image,
			Link:          p.URL,
			Price:         p.Price,
			OriginalPrice: p.OriginalPrice,
			Rating:        p.Rating,
			RatingCount:   p.RatingCount,
			FastShipping:  p.Expedited,
		})
	}

	logger.Infof("Product search %q returned %d results", args.Query, len(products))
	return products, nil
}

// Execute 按原始参数串执行工具调用，返回供模型消费的 JSON 结果
func (s *ProductSearcher) Execute(ctx context.Context, argumentsInJSON string) ([]model.Product, string, error) {
	var args SearchProductsArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return nil, "", fmt.Errorf("failed to parse arguments: %w", err)
	}

	products, err := s.Search(ctx, args)
	if err != nil {
		return nil, "", err
	}

	resultBytes, err := json.Marshal(products)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal tool result: %w", err)
	}

	return products, string(resultBytes), nil
}
