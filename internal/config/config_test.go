package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.HTTP.Port)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, BrokerAMQP, cfg.Broker.Kind)
	assert.Equal(t, 90*time.Second, cfg.Redis.PresenceTTL)
	assert.Equal(t, 64, cfg.Bus.QueueSize)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("BROKER_KIND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_PRESENCE_TTL", "30s")
	t.Setenv("ENV", "production")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.HTTP.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Redis.PresenceTTL)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("JWT_SECRET", "s3cret")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grpc:\n  port: \"7000\"\nstore:\n  backend: mongo\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.GRPC.Port)
	assert.Equal(t, StoreMongo, cfg.Store.Backend)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=fromfile\nSTORE_BACKEND=memory\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("STORE_BACKEND")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.JWT.Secret)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Store:  StoreConfig{Backend: StoreMemory},
			Broker: BrokerConfig{Kind: BrokerNone},
			JWT:    JWTConfig{Secret: "x"},
			Bus:    BusConfig{QueueSize: 1},
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.JWT.Secret = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Backend = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Broker.Kind = BrokerKafka
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Backend = StorePostgres
	assert.Error(t, cfg.Validate())
}
