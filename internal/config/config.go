package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	ServerID          string
	ListenAddr        string
	AdminPort         string
	CorpusPath        string
	DBPath            string
	Encoding          string
	LogLevel          string
	MaxSessions       int
	DefaultBufferSize int
	MonitorInterval   time.Duration
	ProducerBackoff   time.Duration
	Governor          GovernorConfig
}

// GovernorConfig tunes the self-adjusting producer pool.
type GovernorConfig struct {
	HighWatermark float64
	LowWatermark  float64
	MaxProducers  int
	Interval      time.Duration
	HistorySize   int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		ServerID:          getEnv("WORDSTREAM_SERVER_ID", "local"),
		ListenAddr:        getEnv("WORDSTREAM_ADDR", ":65535"),
		AdminPort:         getEnv("WORDSTREAM_ADMIN_PORT", "8080"),
		CorpusPath:        getEnv("WORDSTREAM_CORPUS", "assets/corpus.txt"),
		DBPath:            getEnv("WORDSTREAM_DB", "wordstream.db"),
		Encoding:          strings.ToLower(getEnv("WORDSTREAM_ENCODING", "utf16")),
		LogLevel:          getEnv("WORDSTREAM_LOG_LEVEL", "info"),
		MaxSessions:       getEnvInt("WORDSTREAM_MAX_SESSIONS", 1024),
		DefaultBufferSize: getEnvInt("WORDSTREAM_DEFAULT_BUFFER", 20),
		MonitorInterval:   getEnvDuration("WORDSTREAM_MONITOR_INTERVAL", 10*time.Second),
		ProducerBackoff:   getEnvDuration("WORDSTREAM_PRODUCER_BACKOFF", 50*time.Millisecond),
		Governor: GovernorConfig{
			HighWatermark: getEnvFloat("WORDSTREAM_GOVERNOR_HIGH", 80),
			LowWatermark:  getEnvFloat("WORDSTREAM_GOVERNOR_LOW", 20),
			MaxProducers:  getEnvInt("WORDSTREAM_GOVERNOR_MAX", 50),
			Interval:      getEnvDuration("WORDSTREAM_GOVERNOR_INTERVAL", 500*time.Millisecond),
			HistorySize:   getEnvInt("WORDSTREAM_GOVERNOR_HISTORY", 100),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil && v >= 0 {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return fallback
}
