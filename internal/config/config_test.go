package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":65535", cfg.ListenAddr)
	assert.Equal(t, "utf16", cfg.Encoding)
	assert.Equal(t, 20, cfg.DefaultBufferSize)
	assert.Equal(t, 80.0, cfg.Governor.HighWatermark)
	assert.Equal(t, 20.0, cfg.Governor.LowWatermark)
	assert.Equal(t, 50, cfg.Governor.MaxProducers)
	assert.Equal(t, 100, cfg.Governor.HistorySize)
	assert.Equal(t, 500*time.Millisecond, cfg.Governor.Interval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORDSTREAM_ADDR", " 127.0.0.1:9000 ")
	t.Setenv("WORDSTREAM_ENCODING", "UTF8")
	t.Setenv("WORDSTREAM_MAX_SESSIONS", "3")
	t.Setenv("WORDSTREAM_GOVERNOR_INTERVAL", "2s")
	t.Setenv("WORDSTREAM_GOVERNOR_HIGH", "90.5")

	cfg := Load()

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "utf8", cfg.Encoding)
	assert.Equal(t, 3, cfg.MaxSessions)
	assert.Equal(t, 2*time.Second, cfg.Governor.Interval)
	assert.Equal(t, 90.5, cfg.Governor.HighWatermark)
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("WORDSTREAM_MAX_SESSIONS", "-4")
	t.Setenv("WORDSTREAM_DEFAULT_BUFFER", "lots")
	t.Setenv("WORDSTREAM_MONITOR_INTERVAL", "soon")

	cfg := Load()

	assert.Equal(t, 1024, cfg.MaxSessions)
	assert.Equal(t, 20, cfg.DefaultBufferSize)
	assert.Equal(t, 10*time.Second, cfg.MonitorInterval)
}
