package dbmongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocampus/internal/config"
)

// Runs against the MongoDB from docker-compose. Skipped unless MONGO_INTEGRATION=1.
func integrationConfig(t *testing.T) *config.Config {
	if os.Getenv("MONGO_INTEGRATION") != "1" {
		t.Skip("set MONGO_INTEGRATION=1 to run against a live MongoDB")
	}
	return &config.Config{
		MongoDB: config.MongoDBConfig{
			Host:     getEnvOrDefault("MONGO_HOST", "localhost"),
			Port:     getEnvOrDefault("MONGO_PORT", "27017"),
			Username: getEnvOrDefault("MONGO_USERNAME", ""),
			Password: getEnvOrDefault("MONGO_PASSWORD", ""),
			Database: getEnvOrDefault("MONGO_DATABASE", "gocampus_test"),
		},
	}
}

func TestPresenceStore_Integration(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	mc, err := NewMongoConnection(cfg)
	require.NoError(t, err)
	defer mc.Close(ctx)

	store := NewPresenceStore(mc, "presence_test")
	defer store.coll.Drop(ctx)

	seen := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.SaveLastSeen(ctx, 11, seen))
	require.NoError(t, store.SaveLastSeen(ctx, 11, seen.Add(time.Minute)))

	got, err := store.LastSeen(ctx, []uint64{11, 12})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.True(t, got[11].Equal(seen.Add(time.Minute)))
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
