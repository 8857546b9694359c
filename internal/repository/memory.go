package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
)

// MemoryRepository — потокобезопасное in-memory хранилище записей.
// Наружу отдаются только копии. Не персистентное: для разработки и тестов.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*model.DocumentRecord
}

var _ DocumentRepository = (*MemoryRepository)(nil)

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*model.DocumentRecord)}
}

func (m *MemoryRepository) Save(_ context.Context, rec *model.DocumentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryRepository) Load(_ context.Context, id string) (*model.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", docerr.ErrDocumentNotFound, id)
	}
	return rec.Clone(), nil
}

func (m *MemoryRepository) MarkDeleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", docerr.ErrDocumentNotFound, id)
	}
	rec.IsActive = false
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) IncrementDownloadCount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", docerr.ErrDocumentNotFound, id)
	}
	rec.DownloadCount++
	return nil
}

func (m *MemoryRepository) List(_ context.Context, filter ListFilter, limit, offset int) ([]*model.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []*model.DocumentRecord
	for _, rec := range m.records {
		if filter.matches(rec) {
			filtered = append(filtered, rec.Clone())
		}
	}

	// Новые первыми, при равенстве — по id для стабильного порядка
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if offset >= total {
		return nil, nil
	}

	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return filtered[offset:end], nil
}

// Count возвращает общее количество записей.
func (m *MemoryRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
