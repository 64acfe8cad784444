package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "societychat", cfg.Database.Database)
	assert.Equal(t, "society_general", cfg.Chat.Room)
	assert.Equal(t, time.Hour, cfg.Chat.DeleteWindow)
	assert.Equal(t, 30*time.Second, cfg.Chat.ReaperInterval)
	assert.Equal(t, 64, cfg.Chat.SendBuffer)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.RateLimit.MessagesPerMinute)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("CHAT_ROOM", "block_b")
	t.Setenv("CHAT_DELETE_WINDOW", "30m")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "block_b", cfg.Chat.Room)
	assert.Equal(t, 30*time.Minute, cfg.Chat.DeleteWindow)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "society",
		Password: "hunter2",
		Database: "societychat",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=society password=hunter2 dbname=societychat sslmode=require",
		cfg.DSN())
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("CHAT_DELETE_WINDOW", "eventually")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Chat.DeleteWindow)
}
