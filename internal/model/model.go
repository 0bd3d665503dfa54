package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// 消息内容的两种形态：纯文本，或有序的多模态片段序列
const (
	PartTypeText  = "text"
	PartTypeImage = "image_reference"
)

// MessagePart 多模态消息片段
type MessagePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// MessageContent 消息内容的标签联合：Parts 为 nil 时表示纯文本
type MessageContent struct {
	Text  string
	Parts []MessagePart
}

// IsMultimodal 是否为片段序列形态
func (c MessageContent) IsMultimodal() bool {
	return c.Parts != nil
}

// PlainText 提取内容的文本部分：纯文本直接返回，片段序列拼接其中的文本片段
func (c MessageContent) PlainText() string {
	if !c.IsMultimodal() {
		return c.Text
	}
	text := ""
	for _, part := range c.Parts {
		if part.Type == PartTypeText && part.Text != "" {
			if text != "" {
				text += "\n"
			}
			text += part.Text
		}
	}
	return text
}

// FirstImage 返回第一个图片片段的引用，没有则返回空串
func (c MessageContent) FirstImage() string {
	for _, part := range c.Parts {
		if part.Type == PartTypeImage && part.ImageURL != "" {
			return part.ImageURL
		}
	}
	return ""
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsMultimodal() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Parts = nil
		return nil
	}

	var parts []MessagePart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content must be a string or a part array: %w", err)
	}
	if parts == nil {
		parts = []MessagePart{}
	}
	c.Text = ""
	c.Parts = parts
	return nil
}

// ChatMessage 会话消息
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// Product 商品，搜索返回后不可变
type Product struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ImageURL      string  `json:"imageUrl"`
	Link          string  `json:"link"`
	Price         float64 `json:"price,omitempty"`
	OriginalPrice float64 `json:"originalPrice,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	RatingCount   int     `json:"ratingCount,omitempty"`
	FastShipping  bool    `json:"fastShipping"`
}

// MoodboardItem 画板条目：商品加上试穿合成图引用（失败时回退为商品原图）
type MoodboardItem struct {
	Product
	TryOnURL string `json:"tryOnUrl"`
}

// Moodboard 情绪板
type Moodboard struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Items       []MoodboardItem `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BoardSummary 已有画板的摘要，分类决策时作为上下文
type BoardSummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// 画板分类动作
const (
	ActionCreateNew     = "CREATE_NEW"
	ActionAddToExisting = "ADD_TO_EXISTING"
)

// Categorization 画板归类结果：新建或按标题并入已有画板
type Categorization struct {
	Action           string `json:"action"`
	BoardTitle       string `json:"boardTitle"`
	BoardDescription string `json:"boardDescription"`
}

// ModelPhoto 用户上传的模特照片
type ModelPhoto struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompletionRecord 后台任务完成后投递给客户端的载荷，按 boardId 键控、一次性消费
type CompletionRecord struct {
	TryOnURLMap    map[string]string `json:"tryOnUrlMap,omitempty"`
	Categorization *Categorization   `json:"categorization,omitempty"`
	NewBoard       *Moodboard        `json:"newBoard,omitempty"`
}

// Empty 载荷是否为空（发布时校验用）
func (r CompletionRecord) Empty() bool {
	return len(r.TryOnURLMap) == 0 && r.Categorization == nil && r.NewBoard == nil
}
