package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// Prometheus-метрики кэша записей.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_record_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей документов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_record_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей документов.",
	})
)

// CachedRepository — LRU-кэш с TTL поверх DocumentRepository.
// Кэшируется только Load; любая запись инвалидирует ключ после
// обращения к нижележащему хранилищу.
type CachedRepository struct {
	inner DocumentRepository
	cache *expirable.LRU[string, *model.DocumentRecord]
}

var _ DocumentRepository = (*CachedRepository)(nil)

// NewCachedRepository создаёт кэш размером maxSize записей с временем жизни ttl.
func NewCachedRepository(inner DocumentRepository, maxSize int, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		inner: inner,
		cache: expirable.NewLRU[string, *model.DocumentRecord](maxSize, nil, ttl),
	}
}

func (c *CachedRepository) Save(ctx context.Context, rec *model.DocumentRecord) error {
	defer c.cache.Remove(rec.ID)
	return c.inner.Save(ctx, rec)
}

func (c *CachedRepository) Load(ctx context.Context, id string) (*model.DocumentRecord, error) {
	if rec, ok := c.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return rec.Clone(), nil
	}
	cacheMissesTotal.Inc()

	rec, err := c.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, rec.Clone())
	return rec, nil
}

func (c *CachedRepository) MarkDeleted(ctx context.Context, id string) error {
	defer c.cache.Remove(id)
	return c.inner.MarkDeleted(ctx, id)
}

func (c *CachedRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	defer c.cache.Remove(id)
	return c.inner.IncrementDownloadCount(ctx, id)
}

// List не кэшируется.
func (c *CachedRepository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*model.DocumentRecord, error) {
	return c.inner.List(ctx, filter, limit, offset)
}

// Len возвращает текущее количество записей в кэше.
func (c *CachedRepository) Len() int {
	return c.cache.Len()
}
