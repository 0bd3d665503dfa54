package service

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stylist-backend/internal/model"
	"stylist-backend/pkg/logger"
)

// UploadPathPrefix 本地上传图片的引用前缀
const UploadPathPrefix = "/uploads/"

// Preprocessor 多模态预处理：消息离开这里之后不允许再引用本地上传路径，
// 本地图片要么内联为 data URI，要么原样保留（读取失败时）由下游忽略。
type Preprocessor struct {
	uploadsDir string
}

func NewPreprocessor(uploadsDir string) *Preprocessor {
	return &Preprocessor{uploadsDir: uploadsDir}
}

// ResolveLocalImages 将用户消息中引用本地上传路径的图片片段替换为内联编码。
// 文件读不到时保留原片段并记日志，本轮对话继续（尽力而为，不阻断请求）。
func (p *Preprocessor) ResolveLocalImages(messages []model.ChatMessage) []model.ChatMessage {
	result := make([]model.ChatMessage, len(messages))

	for i, msg := range messages {
		result[i] = msg

		if msg.Role != "user" || !msg.Content.IsMultimodal() {
			continue
		}

		parts := make([]model.MessagePart, len(msg.Content.Parts))
		copy(parts, msg.Content.Parts)

		for j, part := range parts {
			if part.Type != model.PartTypeImage || !strings.HasPrefix(part.ImageURL, UploadPathPrefix) {
				continue
			}

			dataURI, err := p.EncodeLocalImage(part.ImageURL)
			if err != nil {
				logger.Warnf("Failed to inline local image %s: %v", part.ImageURL, err)
				continue
			}

			parts[j].ImageURL = dataURI
		}

		result[i].Content = model.MessageContent{Parts: parts}
	}

	return result
}

// EncodeLocalImage 读取本地上传文件并编码为自包含的 data URI
func (p *Preprocessor) EncodeLocalImage(imageRef string) (string, error) {
	name := filepath.Base(strings.TrimPrefix(imageRef, UploadPathPrefix))
	path := filepath.Join(p.uploadsDir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image file: %w", err)
	}

	return fmt.Sprintf("data:%s;base64,%s", mimeTypeForImage(name), base64.StdEncoding.EncodeToString(data)), nil
}

func mimeTypeForImage(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// LatestMessageImage 检测最后一条消息是否带图片片段，决定走哪条编排分支
func LatestMessageImage(messages []model.ChatMessage) (imageRef, text string, ok bool) {
	if len(messages) == 0 {
		return "", "", false
	}

	last := messages[len(messages)-1]
	if !last.Content.IsMultimodal() {
		return "", "", false
	}

	imageRef = last.Content.FirstImage()
	if imageRef == "" {
		return "", "", false
	}

	return imageRef, last.Content.PlainText(), true
}
