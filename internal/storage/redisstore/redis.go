// Package redisstore реализует бэкенд хранилища коллекций поверх Redis:
// каждая коллекция лежит целиком под ключом <prefix><family>.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/companion-gate/internal/config"
	"github.com/magabrotheeeer/companion-gate/internal/storage"
)

// Backend хранит коллекции в Redis.
type Backend struct {
	Db     *redis.Client
	prefix string
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection, prefix string) (*Backend, error) {
	const op = "storage.redis.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Backend{Db: db, prefix: prefix}, nil
}

// Key возвращает ключ коллекции.
func (b *Backend) Key(family string) string {
	return b.prefix + family
}

// Read возвращает содержимое коллекции. Любая ошибка, кроме отсутствия
// ключа, считается ошибкой связи.
func (b *Backend) Read(ctx context.Context, family string) ([]byte, error) {
	const op = "storage.redis.Read"
	val, err := b.Db.Get(ctx, b.Key(family)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}
	return val, nil
}

// Write заменяет коллекцию одной командой SET, поэтому читатели видят либо
// старое, либо новое содержимое целиком.
func (b *Backend) Write(ctx context.Context, family string, data []byte) error {
	const op = "storage.redis.Write"
	if err := b.Db.Set(ctx, b.Key(family), data, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Quarantine переименовывает ключ коллекции в <key>:corrupt:<suffix>.
func (b *Backend) Quarantine(ctx context.Context, family, suffix string) (string, error) {
	const op = "storage.redis.Quarantine"
	backup := b.Key(family) + ":corrupt:" + suffix
	if err := b.Db.Rename(ctx, b.Key(family), backup).Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return backup, nil
}

// Close закрывает соединение.
func (b *Backend) Close() error {
	return b.Db.Close()
}
