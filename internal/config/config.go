package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig содержит конфигурацию приложения
type AppConfig struct {
	ServerPort string
	HTTPPort   string
	GinMode    string
	Serial     SerialConfig
	Grbl       GrblConfig
	Kafka      KafkaConfig
	Database   DatabaseConfig
	Logging    LoggerConfig
}

// SerialConfig содержит настройки последовательного канала
type SerialConfig struct {
	Port             string // устройство, "sim" или "tcp://host:port"
	BaudRate         int
	ReconnectBackoff time.Duration
}

// GrblConfig содержит настройки потоковой передачи программ
type GrblConfig struct {
	StatusInterval time.Duration
	RxBufferSize   int
	MacroDir       string
}

// KafkaConfig содержит настройки экспорта событий
type KafkaConfig struct {
	Enable bool
	Broker string
	Topic  string
}

// LoggerConfig содержит настройки логгера
type LoggerConfig struct {
	Enable     bool
	LogsDir    string
	Level      string
	SavingDays int
}

// DatabaseConfig содержит конфигурацию для подключения к базе данных
type DatabaseConfig struct {
	Enable   bool
	Host     string
	Port     string
	Username string
	Password string
	DBName   string
}

// LoadConfiguration загружает конфигурацию из .env файла или переменных окружения
func LoadConfiguration() (*AppConfig, error) {
	_ = godotenv.Load()
	return FromEnv(), nil
}

// FromEnv собирает конфигурацию только из переменных окружения
func FromEnv() *AppConfig {
	return &AppConfig{
		ServerPort: getEnv("APP_PORT", "8888"),
		HTTPPort:   getEnv("HTTP_PORT", "8082"),
		GinMode:    getEnv("GIN_MODE", "release"),
		Serial: SerialConfig{
			Port:             getEnv("SERIAL_PORT", "/dev/ttyACM0"),
			BaudRate:         getEnvAsInt("SERIAL_BAUDRATE", 115200),
			ReconnectBackoff: getEnvAsDuration("SERIAL_RECONNECT_MS", 500*time.Millisecond),
		},
		Grbl: GrblConfig{
			StatusInterval: getEnvAsDuration("GRBL_STATUS_INTERVAL_MS", 200*time.Millisecond),
			RxBufferSize:   getEnvAsInt("GRBL_RX_BUFFER", 128),
			MacroDir:       getEnv("GRBL_MACRO_DIR", "./macros"),
		},
		Kafka: KafkaConfig{
			Enable: getEnvAsBool("KAFKA_ENABLE", false),
			Broker: getEnv("KAFKA_BROKER", "localhost:9092"),
			Topic:  getEnv("KAFKA_TOPIC", "grbl_events"),
		},
		Database: DatabaseConfig{
			Enable:   getEnvAsBool("DB_ENABLE", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Username: getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "root"),
			DBName:   getEnv("DB_NAME", "grbl_db"),
		},
		Logging: LoggerConfig{
			Enable:     getEnvAsBool("LOGGER_ENABLE", true),
			LogsDir:    getEnv("LOGGER_LOGS_DIR", "./logs"),
			Level:      getEnv("LOGGER_LOG_LEVEL", "INFO"),
			SavingDays: getEnvAsInt("LOGGER_SAVING_DAYS", 7),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	val, _ := strconv.ParseBool(value)
	return val
}

// getEnvAsDuration читает значение в миллисекундах
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	ms := getEnvAsInt(key, -1)
	if ms <= 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
