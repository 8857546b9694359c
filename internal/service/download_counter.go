// download_counter.go — асинхронное обновление download_count.
//
// Чтение документа не ждёт записи счётчика: Record кладёт id в буферизованную
// очередь, единственная горутина-обработчик выполняет инкремент. При
// переполнении очереди обновление отбрасывается (лог + метрика).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/docstore/internal/repository"
)

// incrementTimeout — лимит одного обновления счётчика.
const incrementTimeout = 5 * time.Second

// DownloadCounter — диспетчер обновлений счётчика скачиваний.
type DownloadCounter struct {
	repo   repository.DocumentRepository
	queue  chan string
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewDownloadCounter создаёт диспетчер с очередью размера queueSize.
func NewDownloadCounter(repo repository.DocumentRepository, queueSize int, logger *slog.Logger) *DownloadCounter {
	if queueSize < 1 {
		queueSize = 1
	}
	return &DownloadCounter{
		repo:   repo,
		queue:  make(chan string, queueSize),
		logger: logger.With(slog.String("component", "download_counter")),
	}
}

// Start запускает горутину-обработчик. Повторный вызов ничего не делает.
func (c *DownloadCounter) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true

	c.wg.Add(1)
	go c.run()
}

// Record ставит инкремент в очередь. Никогда не блокируется.
func (c *DownloadCounter) Record(documentID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stopped {
		downloadCountUpdatesTotal.WithLabelValues("dropped").Inc()
		return
	}

	select {
	case c.queue <- documentID:
	default:
		downloadCountUpdatesTotal.WithLabelValues("dropped").Inc()
		c.logger.Warn("Очередь обновлений download_count переполнена, обновление отброшено",
			slog.String("document_id", documentID),
		)
	}
}

// Stop закрывает очередь и ждёт обработки оставшихся обновлений.
func (c *DownloadCounter) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.queue)
	started := c.started
	c.mu.Unlock()

	if !started {
		// Обработчик не запускался: очередь дренируется синхронно
		c.drain()
		return
	}
	c.wg.Wait()
	c.logger.Info("Обработчик download_count остановлен")
}

func (c *DownloadCounter) run() {
	defer c.wg.Done()
	c.drain()
}

func (c *DownloadCounter) drain() {
	for id := range c.queue {
		c.increment(id)
	}
}

func (c *DownloadCounter) increment(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), incrementTimeout)
	defer cancel()

	if err := c.repo.IncrementDownloadCount(ctx, id); err != nil {
		downloadCountUpdatesTotal.WithLabelValues("error").Inc()
		c.logger.Warn("Не удалось обновить download_count",
			slog.String("document_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	downloadCountUpdatesTotal.WithLabelValues("ok").Inc()
}
