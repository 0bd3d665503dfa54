package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"stylist-backend/internal/config"
	"stylist-backend/internal/utils"
	"stylist-backend/pkg/logger"
)

// 试穿质量档位
const (
	TryOnModePerformance = "performance"
	TryOnModeBalanced    = "balanced"
	TryOnModeQuality     = "quality"
)

// ErrTryOnTimeout 轮询超出截止时间,区别于供应商返回的失败
var ErrTryOnTimeout = errors.New("try-on polling deadline exceeded")

// ParseTryOnMode 非法档位回落到 balanced
func ParseTryOnMode(mode string) string {
	switch mode {
	case TryOnModePerformance, TryOnModeBalanced, TryOnModeQuality:
		return mode
	default:
		return TryOnModeBalanced
	}
}

type tryOnSubmitRequest struct {
	ModelName string      `json:"model_name"`
	Inputs    tryOnInputs `json:"inputs"`
}

type tryOnInputs struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
	Mode         string `json:"mode"`
}

type tryOnSubmitResponse struct {
	ID    string      `json:"id"`
	Error *tryOnError `json:"error"`
}

type tryOnStatusResponse struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Output []string    `json:"output"`
	Error  *tryOnError `json:"error"`
}

type tryOnError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// TryOnRunner 虚拟试穿任务:提交、轮询、下载结果
type TryOnRunner struct {
	cfg        config.TryOnConfig
	uploadsDir string
	pre        *Preprocessor
	client     *http.Client
	downloader *http.Client
}

func NewTryOnRunner(cfg config.TryOnConfig, uploadsDir string) *TryOnRunner {
	return &TryOnRunner{
		cfg:        cfg,
		uploadsDir: uploadsDir,
		pre:        NewPreprocessor(uploadsDir),
		client:     utils.NewHTTPClient(30 * time.Second),
		downloader: utils.NewHTTPClient(cfg.DownloadTimeout),
	}
}

// Generate 执行一次试穿,任何失败都回落到服装原图,绝不向上抛错
func (r *TryOnRunner) Generate(ctx context.Context, modelImageRef, garmentImageRef, mode string) string {
	result, err := r.generate(ctx, modelImageRef, garmentImageRef, ParseTryOnMode(mode))
	if err != nil {
		logger.Warnf("试穿生成失败,回落到服装原图: %v", err)
		return garmentImageRef
	}
	return result
}

func (r *TryOnRunner) generate(ctx context.Context, modelImageRef, garmentImageRef, mode string) (string, error) {
	modelImage, err := r.resolveImage(modelImageRef)
	if err != nil {
		return "", fmt.Errorf("failed to resolve model image: %w", err)
	}
	garmentImage, err := r.resolveImage(garmentImageRef)
	if err != nil {
		return "", fmt.Errorf("failed to resolve garment image: %w", err)
	}

	predictionID, err := r.submit(ctx, modelImage, garmentImage, mode)
	if err != nil {
		return "", err
	}

	outputURL, err := r.poll(ctx, predictionID)
	if err != nil {
		return "", err
	}

	return r.download(ctx, outputURL)
}

// resolveImage 本地上传引用内联为 data URI,外部 URL 原样送出
func (r *TryOnRunner) resolveImage(imageRef string) (string, error) {
	if strings.HasPrefix(imageRef, UploadPathPrefix) {
		return r.pre.EncodeLocalImage(imageRef)
	}
	return imageRef, nil
}

func (r *TryOnRunner) submit(ctx context.Context, modelImage, garmentImage, mode string) (string, error) {
	payload := tryOnSubmitRequest{
		ModelName: "tryon-v1.6",
		Inputs: tryOnInputs{
			ModelImage:   modelImage,
			GarmentImage: garmentImage,
			Mode:         mode,
		},
	}

	var resp tryOnSubmitResponse
	if err := r.postJSON(ctx, r.cfg.BaseURL+"/run", payload, &resp); err != nil {
		return "", fmt.Errorf("try-on submit failed: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("try-on submit rejected: %s: %s", resp.Error.Name, resp.Error.Message)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("try-on submit returned empty prediction id")
	}

	logger.Infof("试穿任务已提交: id=%s mode=%s", resp.ID, mode)
	return resp.ID, nil
}

// poll 在截止时间内按固定间隔查询任务状态
func (r *TryOnRunner) poll(ctx context.Context, predictionID string) (string, error) {
	deadline := time.Now().Add(r.cfg.PollDeadline)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := r.fetchStatus(ctx, predictionID)
		if err != nil {
			return "", err
		}

		switch status.Status {
		case "completed":
			if len(status.Output) == 0 || status.Output[0] == "" {
				return "", fmt.Errorf("try-on %s completed without output", predictionID)
			}
			return status.Output[0], nil
		case "failed", "canceled":
			if status.Error != nil {
				return "", fmt.Errorf("try-on %s failed: %s: %s", predictionID, status.Error.Name, status.Error.Message)
			}
			return "", fmt.Errorf("try-on %s failed", predictionID)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("try-on %s: %w", predictionID, ErrTryOnTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *TryOnRunner) fetchStatus(ctx context.Context, predictionID string) (*tryOnStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/status/"+predictionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("status request returned %d: %s", resp.StatusCode, string(body))
	}

	var status tryOnStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}

// download 拉取结果图并落盘到上传目录,返回本地引用路径
func (r *TryOnRunner) download(ctx context.Context, outputURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := r.downloader.Do(req)
	if err != nil {
		return "", fmt.Errorf("result download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("result download returned %d", resp.StatusCode)
	}

	ext := filepath.Ext(strings.SplitN(filepath.Base(outputURL), "?", 2)[0])
	if ext == "" {
		ext = ".jpg"
	}
	fileName := "tryon_" + uuid.New().String() + ext

	if err := os.MkdirAll(r.uploadsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create uploads dir: %w", err)
	}

	filePath := filepath.Join(r.uploadsDir, fileName)
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create result file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write result file: %w", err)
	}

	return UploadPathPrefix + fileName, nil
}

func (r *TryOnRunner) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("request returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
