package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/dqgate/internal/config"
	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/repository"
	"github.com/JonMunkholm/dqgate/internal/storage"
)

// Backend opens external connections on first use, so commands that need
// neither a database nor S3 never dial them.
type Backend interface {
	Persistence(ctx context.Context) (pipeline.Persistence, error)
	Migrate(ctx context.Context) error
	ObjectStore(ctx context.Context) (storage.S3API, error)
	// Files is the filesystem local dataset paths and --output-dir refer to.
	Files() billy.Filesystem
	Close()
}

// ServiceBackend connects to PostgreSQL and S3 using the loaded config.
type ServiceBackend struct {
	cfg *config.Config

	mu   sync.Mutex
	pool *pgxpool.Pool
	s3   storage.S3API
}

// NewBackend returns a ServiceBackend for cfg.
func NewBackend(cfg *config.Config) *ServiceBackend {
	return &ServiceBackend{cfg: cfg}
}

func (b *ServiceBackend) connect(ctx context.Context) (*pgxpool.Pool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pool != nil {
		return b.pool, nil
	}
	if err := b.cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(b.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(b.cfg.Database.MaxConns)
	poolConfig.MinConns = int32(b.cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = b.cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = b.cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(b.cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	b.pool = pool
	return pool, nil
}

// Persistence returns a repository.Store over the connection pool.
func (b *ServiceBackend) Persistence(ctx context.Context) (pipeline.Persistence, error) {
	pool, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewStore(pool), nil
}

// Migrate applies the embedded schema.
func (b *ServiceBackend) Migrate(ctx context.Context) error {
	pool, err := b.connect(ctx)
	if err != nil {
		return err
	}
	return repository.Migrate(ctx, pool)
}

// ObjectStore returns an S3 client built from the default credential chain.
func (b *ServiceBackend) ObjectStore(ctx context.Context) (storage.S3API, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.s3 != nil {
		return b.s3, nil
	}
	client, err := storage.NewS3Client(ctx, storage.S3Options{
		Region:         b.cfg.Storage.Region,
		Endpoint:       b.cfg.Storage.Endpoint,
		ForcePathStyle: b.cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		return nil, err
	}
	b.s3 = client
	return client, nil
}

// Files returns the host filesystem.
func (b *ServiceBackend) Files() billy.Filesystem {
	return storage.HostFS()
}

// Close releases the connection pool, if one was opened.
func (b *ServiceBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
}
