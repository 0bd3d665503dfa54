package storage

import (
	"stylist-backend/internal/model"
)

// PhotoStore 模特照片登记
type PhotoStore interface {
	SavePhoto(photo *model.ModelPhoto) error
	GetPhoto(photoID string) (*model.ModelPhoto, error)
	ListPhotos() ([]*model.ModelPhoto, error)
	SetPhotoApproval(photoID string, approved bool) error
	RandomApprovedPhoto() (*model.ModelPhoto, error)
}

// BoardStore 画板持久化
type BoardStore interface {
	SaveBoard(board *model.Moodboard) error
	GetBoard(boardID string) (*model.Moodboard, error)
	GetBoardByTitle(title string) (*model.Moodboard, error)
	ListBoards() ([]*model.Moodboard, error)
	DeleteBoard(boardID string) error
}

type Storage interface {
	PhotoStore
	BoardStore

	// 存储管理
	Init() error
	Close() error
}
