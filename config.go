package grbl

import (
	"os"
	"strconv"
	"time"
)

// Config хранит настройки клиента
type Config struct {
	Addr     string
	Timeout  time.Duration
	LogLevel string
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	addr := os.Getenv("GRBL_SERVER_ADDR")
	if addr == "" {
		addr = "localhost:8888"
	}

	timeoutStr := os.Getenv("GRBL_TIMEOUT_MS")
	timeout, err := strconv.ParseInt(timeoutStr, 10, 32)
	if err != nil || timeout <= 0 {
		timeout = 5000
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		Addr:     addr,
		Timeout:  time.Duration(timeout) * time.Millisecond,
		LogLevel: logLevel,
	}
}
