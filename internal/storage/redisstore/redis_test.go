package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/companion-gate/internal/config"
	"github.com/magabrotheeeer/companion-gate/internal/storage"
)

func setupTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.RedisConnection{AddressRedis: mr.Addr()}

	b, err := InitServer(context.Background(), cfg, "test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestWriteAndRead(t *testing.T) {
	b, mr := setupTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, storage.FamilyTrials, []byte(`{"u":{}}`)))

	data, err := b.Read(ctx, storage.FamilyTrials)
	require.NoError(t, err)
	assert.Equal(t, `{"u":{}}`, string(data))

	raw, err := mr.Get("test:trials")
	require.NoError(t, err)
	assert.Equal(t, `{"u":{}}`, raw)
}

func TestReadNotFound(t *testing.T) {
	b, _ := setupTestBackend(t)

	_, err := b.Read(context.Background(), storage.FamilySubscriptions)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQuarantine(t *testing.T) {
	b, mr := setupTestBackend(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("test:daily_sessions", "not-json"))

	backup, err := b.Quarantine(ctx, storage.FamilyDailySessions, "20260301T100000")
	require.NoError(t, err)
	assert.Equal(t, "test:daily_sessions:corrupt:20260301T100000", backup)
	assert.False(t, mr.Exists("test:daily_sessions"))

	val, err := mr.Get(backup)
	require.NoError(t, err)
	assert.Equal(t, "not-json", val)
}

func TestInitServerInvalidAddr(t *testing.T) {
	cfg := config.RedisConnection{AddressRedis: "127.0.0.1:1"}

	b, err := InitServer(context.Background(), cfg, "")
	assert.Nil(t, b)
	assert.Error(t, err)
}

func TestReadUnavailable(t *testing.T) {
	b, mr := setupTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, storage.FamilySubscriptions, []byte(`{}`)))

	mr.Close()

	_, err := b.Read(ctx, storage.FamilySubscriptions)
	require.ErrorIs(t, err, storage.ErrUnavailable)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

const redisPort nat.Port = "6379/tcp"

func SetupRedisContainer(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{string(redisPort)},
		WaitingFor: wait.ForListeningPort(redisPort).
			WithStartupTimeout(time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, redisPort)
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

// Интеграционный тест против настоящего Redis: внешний из TEST_REDIS_ADDR
// или контейнер.
func TestCollectionOverRealRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	ctx := context.Background()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Log("Using testcontainers for Redis")
		addr = SetupRedisContainer(ctx, t)
	}

	cfg := config.RedisConnection{AddressRedis: addr, DialTimeout: 5 * time.Second, TimeoutRedis: 5 * time.Second}
	b, err := InitServer(ctx, cfg, fmt.Sprintf("companion-test:%d:", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Write(ctx, storage.FamilyTrials, []byte("{not json")))
	backup, err := b.Quarantine(ctx, storage.FamilyTrials, "20260301T100000")
	require.NoError(t, err)

	val, err := b.Db.Get(ctx, backup).Result()
	require.NoError(t, err)
	assert.Equal(t, "{not json", val)

	_, err = b.Read(ctx, storage.FamilyTrials)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
