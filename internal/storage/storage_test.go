package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylist-backend/internal/model"
)

func testBoard(id, title string) *model.Moodboard {
	now := time.Now()
	return &model.Moodboard{
		ID:        id,
		Title:     title,
		Items:     []model.MoodboardItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testPhoto(id string, approved bool) *model.ModelPhoto {
	now := time.Now()
	return &model.ModelPhoto{
		ID:        id,
		FileName:  id + ".jpg",
		URL:       "/uploads/" + id + ".jpg",
		Approved:  approved,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// 对两种实现跑同一组契约测试
func runStorageContract(t *testing.T, newStore func(t *testing.T) Storage) {
	t.Run("board roundtrip", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.SaveBoard(testBoard("b1", "Summer")))

		board, err := s.GetBoard("b1")
		require.NoError(t, err)
		assert.Equal(t, "Summer", board.Title)

		board, err = s.GetBoardByTitle("Summer")
		require.NoError(t, err)
		assert.Equal(t, "b1", board.ID)

		_, err = s.GetBoard("ghost")
		assert.ErrorIs(t, err, ErrBoardNotFound)
		_, err = s.GetBoardByTitle("Ghost")
		assert.ErrorIs(t, err, ErrBoardNotFound)
	})

	t.Run("board delete", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.SaveBoard(testBoard("b1", "Gone Soon")))
		require.NoError(t, s.DeleteBoard("b1"))

		_, err := s.GetBoard("b1")
		assert.ErrorIs(t, err, ErrBoardNotFound)
		assert.ErrorIs(t, s.DeleteBoard("b1"), ErrBoardNotFound)
	})

	t.Run("board listing", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.SaveBoard(testBoard("b1", "One")))
		require.NoError(t, s.SaveBoard(testBoard("b2", "Two")))

		boards, err := s.ListBoards()
		require.NoError(t, err)
		assert.Len(t, boards, 2)
	})

	t.Run("photo approval", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.SavePhoto(testPhoto("p1", false)))

		// 未审核时随机挑选必须落空
		_, err := s.RandomApprovedPhoto()
		assert.ErrorIs(t, err, ErrNoApprovedPhotos)

		require.NoError(t, s.SetPhotoApproval("p1", true))

		photo, err := s.RandomApprovedPhoto()
		require.NoError(t, err)
		assert.Equal(t, "p1", photo.ID)

		assert.ErrorIs(t, s.SetPhotoApproval("ghost", true), ErrPhotoNotFound)
	})

	t.Run("photo listing", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.SavePhoto(testPhoto("p1", true)))
		require.NoError(t, s.SavePhoto(testPhoto("p2", false)))

		photos, err := s.ListPhotos()
		require.NoError(t, err)
		assert.Len(t, photos, 2)
	})
}

func TestMemoryStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		s := NewMemoryStorage()
		require.NoError(t, s.Init())
		return s
	})
}

func TestDiskStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		s := NewDiskStorage(t.TempDir(), 10)
		require.NoError(t, s.Init())
		return s
	})
}

func TestDiskStorageSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s := NewDiskStorage(dir, 10)
	require.NoError(t, s.Init())
	require.NoError(t, s.SaveBoard(testBoard("b1", "Persistent")))
	require.NoError(t, s.SavePhoto(testPhoto("p1", true)))
	require.NoError(t, s.Close())

	// 重新打开同一目录
	s2 := NewDiskStorage(dir, 10)
	require.NoError(t, s2.Init())

	board, err := s2.GetBoard("b1")
	require.NoError(t, err)
	assert.Equal(t, "Persistent", board.Title)

	photo, err := s2.GetPhoto("p1")
	require.NoError(t, err)
	assert.True(t, photo.Approved)
}

func TestDiskStorageCacheEviction(t *testing.T) {
	s := NewDiskStorage(t.TempDir(), 2)
	require.NoError(t, s.Init())

	require.NoError(t, s.SaveBoard(testBoard("b1", "One")))
	require.NoError(t, s.SaveBoard(testBoard("b2", "Two")))
	require.NoError(t, s.SaveBoard(testBoard("b3", "Three")))

	// 被逐出缓存的画板仍可从磁盘读回
	for _, id := range []string{"b1", "b2", "b3"} {
		_, err := s.GetBoard(id)
		assert.NoError(t, err, "board %s", id)
	}
}
