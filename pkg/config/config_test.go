package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.False(t, cfg.Inventory.AllowNegativeStock)
	assert.Equal(t, 2*time.Second, cfg.Inventory.LockTimeout)
	assert.Equal(t, "local", cfg.Inventory.Locker)
	assert.Equal(t, 4, cfg.Inventory.ResyncConcurrency)
	assert.Zero(t, cfg.Inventory.ResyncInterval)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("ALLOW_NEGATIVE_STOCK", "true")
	v.Set("LOCK_TIMEOUT", "750ms")
	v.Set("RESYNC_INTERVAL", "300000")
	v.Set("LOCKER", "Redis")
	v.Set("STORE_DRIVER", "memory")
	v.Set("RESYNC_CONCURRENCY", "8")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.True(t, cfg.Inventory.AllowNegativeStock)
	assert.Equal(t, 750*time.Millisecond, cfg.Inventory.LockTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Inventory.ResyncInterval)
	assert.Equal(t, "redis", cfg.Inventory.Locker)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Inventory.ResyncConcurrency)
}

func TestFromViper_RejectsUnknownLocker(t *testing.T) {
	v := viper.New()
	v.Set("LOCKER", "zookeeper")

	_, err := fromViper(v)
	assert.ErrorContains(t, err, "LOCKER")
}

func TestFromViper_RedisLockTTLMustExceedLockTimeout(t *testing.T) {
	v := viper.New()
	v.Set("LOCKER", "redis")
	v.Set("LOCK_TIMEOUT", "2s")
	v.Set("REDIS_LOCK_TTL", "2s")

	_, err := fromViper(v)
	assert.ErrorContains(t, err, "REDIS_LOCK_TTL")

	v.Set("REDIS_LOCK_TTL", "3s")
	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Redis.LockTTL)

	// The local locker has no TTL.
	v.Set("LOCKER", "local")
	v.Set("REDIS_LOCK_TTL", "1s")
	_, err = fromViper(v)
	assert.NoError(t, err)
}

func TestDSN_EscapesPassword(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", DBName: "inv", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/inv?sslmode=disable", c.DSN())
	c.DatabaseURL = "postgres://other"
	assert.Equal(t, "postgres://other", c.ConnectionString())
}
