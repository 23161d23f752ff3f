package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"driftboard-relay-server/hub"
	"driftboard-relay-server/protocol"
)

// Config is the process configuration, read once at startup from the
// environment. Timing knobs are expressed in milliseconds on the wire.
type Config struct {
	Port     string
	LogLevel string

	AllowOrigins []string

	// RedisAddr enables the cross-node relay bus when non-empty.
	RedisAddr string
	RedisDB   int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	SendTimeout       time.Duration
	SendRetryDelay    time.Duration
	SendMaxAttempts   int
	HistoryLimit      int

	// MsgRate caps sustained inbound frames per second per connection.
	// Zero disables limiting.
	MsgRate  float64
	MsgBurst int

	// StampSender injects the sender's clientId into relayed events.
	// Off by default: relays travel verbatim.
	StampSender bool
}

func Load() Config {
	return Config{
		Port:     getEnv("PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AllowOrigins: splitCSV(getEnv("ALLOW_ORIGINS", "*")),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		HeartbeatInterval: getEnvMillis("HEARTBEAT_INTERVAL_MS", hub.DefaultHeartbeatInterval),
		HeartbeatTimeout:  getEnvMillis("HEARTBEAT_TIMEOUT_MS", hub.DefaultHeartbeatTimeout),
		SendTimeout:       getEnvMillis("SEND_TIMEOUT_MS", hub.DefaultSendTimeout),
		SendRetryDelay:    getEnvMillis("SEND_RETRY_DELAY_MS", hub.DefaultSendRetryDelay),
		SendMaxAttempts:   getEnvInt("SEND_MAX_ATTEMPTS", hub.DefaultSendMaxAttempts),
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", hub.DefaultHistoryLimit),

		MsgRate:  getEnvFloat("MSG_RATE", 0),
		MsgBurst: getEnvInt("MSG_BURST", protocol.DefaultMsgBurst),

		StampSender: getEnvBool("STAMP_SENDER", false),
	}
}

// getEnv returns the env var or a default.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvMillis(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// splitCSV trims and filters a comma-separated list.
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
