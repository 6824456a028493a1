package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("LOW_STOCK_THRESHOLD", "")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Business.LowStockThreshold)
	assert.Equal(t, 15*time.Second, cfg.Business.CommitTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CART_SESSION_TTL_SECONDS", "90")
	t.Setenv("LOW_STOCK_THRESHOLD", "not-a-number")

	cfg := Load()
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Business.CartSessionTTL)
	assert.Equal(t, 10, cfg.Business.LowStockThreshold)
}
