package redis

import (
	"os"
	"testing"

	"github.com/Layr-Labs/farbook-go/pkg/logger"
	"github.com/Layr-Labs/farbook-go/pkg/persistence"
	"github.com/Layr-Labs/farbook-go/pkg/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test when no Redis server answers. Every store gets its own
// key prefix so tests never see each other's records.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: "test-" + uuid.New().String() + ":",
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}
	return rp
}

func TestRedisPersistence(t *testing.T) {
	persistencetest.RunSuite(t, func(t *testing.T) persistence.IAttemptPersistence {
		return requireRedis(t)
	})
}

func TestNewRedisPersistence_Validation(t *testing.T) {
	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	_, err = NewRedisPersistence(nil, testLogger)
	assert.ErrorContains(t, err, "redis config cannot be nil")

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	assert.ErrorContains(t, err, "redis address cannot be empty")
}
