package model

// ChatRequest 聊天请求体
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" binding:"required"`
}

// GenerateMoodboardRequest 画板生成请求
type GenerateMoodboardRequest struct {
	SelectedProducts   []Product      `json:"selectedProducts" binding:"required"`
	ExistingMoodboards []BoardSummary `json:"existingMoodboards"`
	BoardID            string         `json:"boardId" binding:"required"`
	TryOnMode          string         `json:"tryOnMode"`
}

// ProactiveStylingRequest 主动式穿搭请求,boardId 缺省时由服务端生成
type ProactiveStylingRequest struct {
	AdviceText string `json:"adviceText"`
	BoardID    string `json:"boardId"`
	TryOnMode  string `json:"tryOnMode"`
}

// NotifyPublishRequest 后台任务完成记录的发布请求
type NotifyPublishRequest struct {
	BoardID        string            `json:"boardId"`
	TryOnURLMap    map[string]string `json:"tryOnUrlMap,omitempty"`
	Categorization *Categorization   `json:"categorization,omitempty"`
	NewBoard       *Moodboard        `json:"newBoard,omitempty"`
}

// CreateBoardRequest 手动创建画板请求
type CreateBoardRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Items       []MoodboardItem `json:"items"`
}
