package tools

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment overrides read by the config loader:
// PPCLIENT_SERVER_URL   websocket endpoint
// PPCLIENT_API_URL      CRUD api base url
// PPCLIENT_TOKEN        session token
// PPCLIENT_USER_ID      numeric user id
// PPCLIENT_LOG_LEVEL    debug | info | warn | error
// PPCLIENT_MAX_ATTEMPTS reconnect attempt cap
// PPCLIENT_MIN_INTERVAL minimum interval between connect attempts (duration)
// PPCLIENT_STATUS_REMOTE serve the status endpoint to non-loopback clients

func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func GetEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func GetEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func GetEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
