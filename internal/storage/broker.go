package storage

import (
	"sync"
	"time"

	"stylist-backend/internal/model"
	"stylist-backend/pkg/logger"
)

// Broker 进程内完成通知中转站：后台任务按 boardId 投递完成记录，
// 客户端轮询一次性取走。未被取走的记录到期自动清除。
// 作为依赖注入使用，不做跨进程持久化。
type Broker struct {
	ttl     time.Duration
	records map[string]brokerEntry
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
}

type brokerEntry struct {
	record    model.CompletionRecord
	expiresAt time.Time
}

func NewBroker(ttl time.Duration) *Broker {
	b := &Broker{
		ttl:     ttl,
		records: make(map[string]brokerEntry),
		done:    make(chan struct{}),
	}

	go b.sweepExpired()

	return b
}

// Put 投递完成记录，覆盖同键旧记录并重置过期时间
func (b *Broker) Put(boardID string, record model.CompletionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records[boardID] = brokerEntry{
		record:    record,
		expiresAt: time.Now().Add(b.ttl),
	}
}

// Take 取走并删除记录。不存在（含已消费、已过期）时返回 false
func (b *Broker) Take(boardID string) (model.CompletionRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, exists := b.records[boardID]
	if !exists {
		return model.CompletionRecord{}, false
	}

	delete(b.records, boardID)

	if time.Now().After(entry.expiresAt) {
		return model.CompletionRecord{}, false
	}

	return entry.record, true
}

func (b *Broker) Close() {
	b.once.Do(func() {
		close(b.done)
	})
}

func (b *Broker) sweepExpired() {
	interval := b.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			now := time.Now()
			for boardID, entry := range b.records {
				if now.After(entry.expiresAt) {
					delete(b.records, boardID)
					logger.Infof("Expired unclaimed completion record for board %s", boardID)
				}
			}
			b.mu.Unlock()
		case <-b.done:
			return
		}
	}
}
