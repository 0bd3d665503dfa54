package storage

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"stylist-backend/internal/model"
	"stylist-backend/pkg/logger"
)

// DiskStorage 画板按 {dataDir}/boards/{id}.json 逐个落盘并维护索引文件，
// 照片元数据集中存于 {dataDir}/photos.json。写穿缓存，容量受 cacheSize 限制。
type DiskStorage struct {
	dataDir   string
	cache     map[string]*model.Moodboard
	photos    map[string]*model.ModelPhoto
	cacheSize int
	mu        sync.RWMutex
}

type BoardIndex struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]*model.Moodboard),
		photos:    make(map[string]*model.ModelPhoto),
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	if err := os.MkdirAll(filepath.Join(d.dataDir, "boards"), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadBoards(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadPhotos(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Disk storage initialized successfully")
	return nil
}

func (d *DiskStorage) Close() error {
	return nil
}

func (d *DiskStorage) loadBoards() error {
	indexes, err := d.readBoardIndex()
	if err != nil {
		return err
	}

	for _, index := range indexes {
		if len(d.cache) >= d.cacheSize {
			break
		}

		board, err := d.loadBoardFromFile(index.ID)
		if err != nil {
			logger.Errorf("Failed to load board %s: %v", index.ID, err)
			continue
		}

		d.cache[index.ID] = board
	}

	return nil
}

func (d *DiskStorage) loadPhotos() error {
	photosPath := filepath.Join(d.dataDir, "photos.json")

	if _, err := os.Stat(photosPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(photosPath)
	if err != nil {
		return err
	}

	var photos []*model.ModelPhoto
	if err := json.Unmarshal(data, &photos); err != nil {
		return err
	}

	for _, photo := range photos {
		d.photos[photo.ID] = photo
	}

	return nil
}

func (d *DiskStorage) readBoardIndex() ([]*BoardIndex, error) {
	indexPath := filepath.Join(d.dataDir, "boards.json")

	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return []*BoardIndex{}, d.writeJSONFile(indexPath, []*BoardIndex{})
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, err
	}

	var indexes []*BoardIndex
	if err := json.Unmarshal(data, &indexes); err != nil {
		return nil, err
	}

	return indexes, nil
}

func (d *DiskStorage) loadBoardFromFile(boardID string) (*model.Moodboard, error) {
	data, err := os.ReadFile(filepath.Join(d.dataDir, "boards", boardID+".json"))
	if err != nil {
		return nil, err
	}

	var board model.Moodboard
	if err := json.Unmarshal(data, &board); err != nil {
		return nil, err
	}

	return &board, nil
}

// writeJSONFile 先写临时文件再改名，避免半写文件
func (d *DiskStorage) writeJSONFile(path string, v interface{}) error {
	tempPath := path + ".tmp"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// updateBoardIndex 重建索引文件，要求调用方已持有写锁
func (d *DiskStorage) updateBoardIndex() error {
	indexes, err := d.readBoardIndex()
	if err != nil {
		return err
	}

	byID := make(map[string]*BoardIndex, len(indexes))
	for _, index := range indexes {
		byID[index.ID] = index
	}
	for _, board := range d.cache {
		byID[board.ID] = &BoardIndex{
			ID:        board.ID,
			Title:     board.Title,
			CreatedAt: board.CreatedAt,
			UpdatedAt: board.UpdatedAt,
		}
	}

	merged := make([]*BoardIndex, 0, len(byID))
	for _, index := range byID {
		merged = append(merged, index)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
	})

	return d.writeJSONFile(filepath.Join(d.dataDir, "boards.json"), merged)
}

func (d *DiskStorage) savePhotos() error {
	photos := make([]*model.ModelPhoto, 0, len(d.photos))
	for _, photo := range d.photos {
		photos = append(photos, photo)
	}
	sort.Slice(photos, func(i, j int) bool {
		return photos[i].CreatedAt.After(photos[j].CreatedAt)
	})

	return d.writeJSONFile(filepath.Join(d.dataDir, "photos.json"), photos)
}

func (d *DiskStorage) evictCache() {
	if len(d.cache) <= d.cacheSize {
		return
	}

	var oldestID string
	var oldest time.Time
	for id, board := range d.cache {
		if oldestID == "" || board.UpdatedAt.Before(oldest) {
			oldestID = id
			oldest = board.UpdatedAt
		}
	}

	delete(d.cache, oldestID)
}

func (d *DiskStorage) SaveBoard(board *model.Moodboard) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeJSONFile(filepath.Join(d.dataDir, "boards", board.ID+".json"), board); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[board.ID] = board

	if err := d.updateBoardIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.evictCache()

	return nil
}

func (d *DiskStorage) GetBoard(boardID string) (*model.Moodboard, error) {
	d.mu.RLock()
	if board, exists := d.cache[boardID]; exists {
		d.mu.RUnlock()
		return board, nil
	}
	d.mu.RUnlock()

	board, err := d.loadBoardFromFile(boardID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBoardNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.mu.Lock()
	d.cache[boardID] = board
	d.evictCache()
	d.mu.Unlock()

	return board, nil
}

func (d *DiskStorage) GetBoardByTitle(title string) (*model.Moodboard, error) {
	d.mu.RLock()
	indexes, err := d.readBoardIndex()
	d.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	for _, index := range indexes {
		if index.Title == title {
			return d.GetBoard(index.ID)
		}
	}

	return nil, ErrBoardNotFound
}

func (d *DiskStorage) ListBoards() ([]*model.Moodboard, error) {
	d.mu.RLock()
	indexes, err := d.readBoardIndex()
	d.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	boards := make([]*model.Moodboard, 0, len(indexes))
	for _, index := range indexes {
		board, err := d.GetBoard(index.ID)
		if err != nil {
			logger.Errorf("Failed to load board %s: %v", index.ID, err)
			continue
		}
		boards = append(boards, board)
	}

	return boards, nil
}

func (d *DiskStorage) DeleteBoard(boardID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	boardPath := filepath.Join(d.dataDir, "boards", boardID+".json")
	if _, err := os.Stat(boardPath); os.IsNotExist(err) {
		if _, cached := d.cache[boardID]; !cached {
			return ErrBoardNotFound
		}
	}

	delete(d.cache, boardID)

	if err := os.Remove(boardPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	indexes, err := d.readBoardIndex()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	kept := make([]*BoardIndex, 0, len(indexes))
	for _, index := range indexes {
		if index.ID != boardID {
			kept = append(kept, index)
		}
	}

	return d.writeJSONFile(filepath.Join(d.dataDir, "boards.json"), kept)
}

func (d *DiskStorage) SavePhoto(photo *model.ModelPhoto) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.photos[photo.ID] = photo

	if err := d.savePhotos(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	return nil
}

func (d *DiskStorage) GetPhoto(photoID string) (*model.ModelPhoto, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	photo, exists := d.photos[photoID]
	if !exists {
		return nil, ErrPhotoNotFound
	}

	return photo, nil
}

func (d *DiskStorage) ListPhotos() ([]*model.ModelPhoto, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	photos := make([]*model.ModelPhoto, 0, len(d.photos))
	for _, photo := range d.photos {
		photos = append(photos, photo)
	}
	sort.Slice(photos, func(i, j int) bool {
		return photos[i].CreatedAt.After(photos[j].CreatedAt)
	})

	return photos, nil
}

func (d *DiskStorage) SetPhotoApproval(photoID string, approved bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	photo, exists := d.photos[photoID]
	if !exists {
		return ErrPhotoNotFound
	}

	photo.Approved = approved
	photo.UpdatedAt = time.Now()

	if err := d.savePhotos(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	return nil
}

func (d *DiskStorage) RandomApprovedPhoto() (*model.ModelPhoto, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	approved := make([]*model.ModelPhoto, 0, len(d.photos))
	for _, photo := range d.photos {
		if photo.Approved {
			approved = append(approved, photo)
		}
	}

	if len(approved) == 0 {
		return nil, ErrNoApprovedPhotos
	}

	return approved[rand.Intn(len(approved))], nil
}
