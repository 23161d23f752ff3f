package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"driftboard-relay-server/hub"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "ALLOW_ORIGINS", "REDIS_ADDR", "REDIS_DB",
		"HEARTBEAT_INTERVAL_MS", "HEARTBEAT_TIMEOUT_MS", "SEND_TIMEOUT_MS",
		"SEND_RETRY_DELAY_MS", "SEND_MAX_ATTEMPTS", "HISTORY_LIMIT",
		"MSG_RATE", "MSG_BURST", "STAMP_SENDER",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, hub.DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, hub.DefaultHeartbeatTimeout, cfg.HeartbeatTimeout)
	assert.Equal(t, hub.DefaultSendTimeout, cfg.SendTimeout)
	assert.Equal(t, hub.DefaultSendRetryDelay, cfg.SendRetryDelay)
	assert.Equal(t, hub.DefaultSendMaxAttempts, cfg.SendMaxAttempts)
	assert.Equal(t, hub.DefaultHistoryLimit, cfg.HistoryLimit)
	assert.Zero(t, cfg.MsgRate)
	assert.False(t, cfg.StampSender)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("HEARTBEAT_INTERVAL_MS", "15000")
	t.Setenv("SEND_MAX_ATTEMPTS", "5")
	t.Setenv("MSG_RATE", "2.5")
	t.Setenv("STAMP_SENDER", "true")

	cfg := Load()

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowOrigins)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5, cfg.SendMaxAttempts)
	assert.Equal(t, 2.5, cfg.MsgRate)
	assert.True(t, cfg.StampSender)
}

func TestLoad_IgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEARTBEAT_INTERVAL_MS", "soon")
	t.Setenv("HEARTBEAT_TIMEOUT_MS", "-5")
	t.Setenv("SEND_MAX_ATTEMPTS", "lots")
	t.Setenv("MSG_RATE", "fast")
	t.Setenv("STAMP_SENDER", "yep")

	cfg := Load()

	assert.Equal(t, hub.DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, hub.DefaultHeartbeatTimeout, cfg.HeartbeatTimeout)
	assert.Equal(t, hub.DefaultSendMaxAttempts, cfg.SendMaxAttempts)
	assert.Zero(t, cfg.MsgRate)
	assert.False(t, cfg.StampSender)
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"*", []string{"*"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , ,b ", []string{"a", "b"}},
		{"", nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, splitCSV(tt.in), "input %q", tt.in)
	}
}
