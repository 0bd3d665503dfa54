package storage

import "errors"

var (
	ErrBoardNotFound    = errors.New("moodboard not found")
	ErrPhotoNotFound    = errors.New("photo not found")
	ErrNoApprovedPhotos = errors.New("no approved photos")
	ErrInvalidData      = errors.New("invalid data")
	ErrStorageInit      = errors.New("storage initialization failed")
	ErrFileOperation    = errors.New("file operation failed")
)
