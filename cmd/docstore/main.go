// Точка входа docstore — хранилища документов с контролем целостности.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/docstore/internal/api/generated"
	"github.com/bigkaa/docstore/internal/api/handlers"
	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/database"
	"github.com/bigkaa/docstore/internal/domain/policy"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/server"
	"github.com/bigkaa/docstore/internal/service"
	"github.com/bigkaa/docstore/internal/storage/blob"
	"github.com/bigkaa/docstore/internal/storage/filestore"
	"github.com/bigkaa/docstore/internal/storage/gridfs"
	"github.com/bigkaa/docstore/internal/storage/s3store"
	"github.com/bigkaa/docstore/internal/storage/wal"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("docstore запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("blob_backend", cfg.BlobBackend),
		slog.String("record_backend", cfg.RecordBackend),
		slog.Int64("inline_threshold", cfg.InlineThreshold),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("docstore завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("docstore остановлен")
}

// backends — открытые внешние хранилища и функции их закрытия.
type backends struct {
	blobs    blob.Store
	records  repository.DocumentRepository
	pool     *pgxpool.Pool
	dirs     map[string]string
	checkers map[string]handlers.ReadinessChecker
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Контракт API проверяется до открытия соединений
	if _, err := generated.GetSwagger(); err != nil {
		return err
	}

	b := &backends{
		dirs:     map[string]string{"wal": cfg.WALDir},
		checkers: make(map[string]handlers.ReadinessChecker),
	}
	defer b.close()

	if err := openBlobStore(ctx, cfg, logger, b); err != nil {
		return err
	}
	if err := openRecords(ctx, cfg, logger, b); err != nil {
		return err
	}

	// --- WAL и восстановление ---

	walEngine, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		return fmt.Errorf("ошибка инициализации WAL: %w", err)
	}

	report, err := service.Recover(ctx, walEngine, b.records, b.blobs, logger)
	if err != nil {
		return fmt.Errorf("ошибка восстановления WAL: %w", err)
	}
	logger.Info("Восстановление WAL завершено",
		slog.Int("rolled_forward", report.RolledForward),
		slog.Int("rolled_back", report.RolledBack),
		slog.Int("failed", report.Failed),
		slog.Int("cleaned", report.Cleaned),
	)

	// --- Сервисы ---

	registry := policy.Default()

	downloads := service.NewDownloadCounter(b.records, cfg.DownloadQueueSize, logger)
	downloads.Start()
	defer downloads.Stop()

	router := service.NewStorageRouter(registry, b.records, b.blobs, walEngine, downloads,
		service.RouterOptions{
			Threshold:       cfg.InlineThreshold,
			PutTimeout:      cfg.BlobPutTimeout,
			StrictIntegrity: cfg.StrictIntegrity,
		}, logger)

	docs := service.NewDocumentService(router, b.records,
		service.RetryOptions{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay}, logger)

	audit := service.NewAuditService(router, b.records, cfg.AuditInterval, logger)
	audit.Start(ctx)
	defer audit.Stop()

	if dh := startDephealth(ctx, cfg, logger, b); dh != nil {
		defer dh.Stop()
	}

	// --- HTTP ---

	apiHandler := handlers.NewAPIHandler(
		handlers.NewDocumentsHandler(docs, cfg.MaxUploadSize),
		handlers.NewSystemHandler(registry),
		handlers.NewMaintenanceHandler(audit),
		handlers.NewHealthHandler(b.dirs, b.checkers),
		server.NewMetricsHandler(),
	)

	srv := server.New(cfg, logger, apiHandler)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	// Остановка фоновых процессов выполняется отложенными вызовами:
	// проверка целостности, затем сброс очереди download_count.
	logger.Info("Остановка фоновых процессов...")
	return nil
}

// openBlobStore открывает blob-хранилище выбранного бэкенда.
func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, b *backends) error {
	switch cfg.BlobBackend {
	case config.BlobBackendS3:
		store, err := s3store.New(ctx, s3store.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
		}, logger)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}
		b.blobs = store
		b.checkers["s3"] = store

	case config.BlobBackendGridFS:
		client, err := gridfs.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() {
			_ = client.Disconnect(context.Background())
		})
		store, err := gridfs.New(client.Database(cfg.MongoDatabase), cfg.GridFSBucket, logger)
		if err != nil {
			return err
		}
		b.blobs = store
		b.checkers["mongodb"] = gridfs.NewReadinessChecker(client)

	default:
		store, err := filestore.New(cfg.BlobDir)
		if err != nil {
			return err
		}
		b.blobs = store
		b.dirs["blob_dir"] = cfg.BlobDir
	}

	logger.Info("Blob-хранилище инициализировано", slog.String("backend", cfg.BlobBackend))
	return nil
}

// openRecords открывает хранилище записей и оборачивает его LRU-кэшем.
func openRecords(ctx context.Context, cfg *config.Config, logger *slog.Logger, b *backends) error {
	var records repository.DocumentRepository

	switch cfg.RecordBackend {
	case config.RecordBackendPostgres:
		if err := database.Migrate(cfg, logger); err != nil {
			return err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, pool.Close)
		b.pool = pool
		b.checkers["postgres"] = database.NewReadinessChecker(pool)
		records = repository.NewPostgresRepository(pool)

	default:
		logger.Warn("Записи документов хранятся в памяти и теряются при перезапуске")
		records = repository.NewMemoryRepository()
	}

	if cfg.RecordCacheSize > 0 {
		records = repository.NewCachedRepository(records, cfg.RecordCacheSize, cfg.RecordCacheTTL)
	}
	b.records = records
	return nil
}

// startDephealth запускает мониторинг зависимостей topologymetrics.
// Ошибка не фатальна: сервис работает без мониторинга.
func startDephealth(ctx context.Context, cfg *config.Config, logger *slog.Logger, b *backends) *service.DephealthService {
	var targets service.DependencyTargets
	if b.pool != nil {
		db := stdlib.OpenDBFromPool(b.pool)
		b.closers = append(b.closers, func() { _ = db.Close() })
		targets.DB = db
		targets.PostgresURL = cfg.DatabaseDSN()
	}
	if cfg.BlobBackend == config.BlobBackendS3 {
		targets.S3Endpoint = cfg.S3Endpoint
	}

	dh, err := service.NewDephealthService(
		dephealthName(cfg.DephealthName),
		cfg.DephealthGroup,
		targets,
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := dh.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return dh
}
