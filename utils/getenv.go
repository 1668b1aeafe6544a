package utils

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

func GetEnvDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt は整数の環境変数を読み取ります。解析できない場合はデフォルト値を返します。
func GetEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer env, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}

// GetEnvDuration は time.ParseDuration 形式の環境変数を読み取ります。
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		slog.Warn("invalid duration env, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}
