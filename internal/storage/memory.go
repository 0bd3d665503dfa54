package storage

import (
	"math/rand"
	"sort"
	"sync"

	"stylist-backend/internal/model"
)

type MemoryStorage struct {
	boards map[string]*model.Moodboard
	photos map[string]*model.ModelPhoto
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		boards: make(map[string]*model.Moodboard),
		photos: make(map[string]*model.ModelPhoto),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) SaveBoard(board *model.Moodboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.boards[board.ID] = board
	return nil
}

func (m *MemoryStorage) GetBoard(boardID string) (*model.Moodboard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	board, exists := m.boards[boardID]
	if !exists {
		return nil, ErrBoardNotFound
	}

	return board, nil
}

// GetBoardByTitle 按标题精确匹配画板（ADD_TO_EXISTING 的并入依据）
func (m *MemoryStorage) GetBoardByTitle(title string) (*model.Moodboard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, board := range m.boards {
		if board.Title == title {
			return board, nil
		}
	}

	return nil, ErrBoardNotFound
}

func (m *MemoryStorage) ListBoards() ([]*model.Moodboard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	boards := make([]*model.Moodboard, 0, len(m.boards))
	for _, board := range m.boards {
		boards = append(boards, board)
	}

	sort.Slice(boards, func(i, j int) bool {
		return boards[i].UpdatedAt.After(boards[j].UpdatedAt)
	})

	return boards, nil
}

func (m *MemoryStorage) DeleteBoard(boardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.boards[boardID]; !exists {
		return ErrBoardNotFound
	}

	delete(m.boards, boardID)
	return nil
}

func (m *MemoryStorage) SavePhoto(photo *model.ModelPhoto) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.photos[photo.ID] = photo
	return nil
}

func (m *MemoryStorage) GetPhoto(photoID string) (*model.ModelPhoto, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	photo, exists := m.photos[photoID]
	if !exists {
		return nil, ErrPhotoNotFound
	}

	return photo, nil
}

func (m *MemoryStorage) ListPhotos() ([]*model.ModelPhoto, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	photos := make([]*model.ModelPhoto, 0, len(m.photos))
	for _, photo := range m.photos {
		photos = append(photos, photo)
	}

	sort.Slice(photos, func(i, j int) bool {
		return photos[i].CreatedAt.After(photos[j].CreatedAt)
	})

	return photos, nil
}

func (m *MemoryStorage) SetPhotoApproval(photoID string, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	photo, exists := m.photos[photoID]
	if !exists {
		return ErrPhotoNotFound
	}

	photo.Approved = approved
	return nil
}

// RandomApprovedPhoto 在已审核照片中等概率随机挑选一张
func (m *MemoryStorage) RandomApprovedPhoto() (*model.ModelPhoto, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	approved := make([]*model.ModelPhoto, 0, len(m.photos))
	for _, photo := range m.photos {
		if photo.Approved {
			approved = append(approved, photo)
		}
	}

	if len(approved) == 0 {
		return nil, ErrNoApprovedPhotos
	}

	return approved[rand.Intn(len(approved))], nil
}
