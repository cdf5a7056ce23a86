package models

import "time"

// Word is one corpus token handed to a client.
type Word struct {
	Index       int64   `json:"index"`
	Text        string  `json:"text"`
	BufferLevel float64 `json:"bufferLevel"`
}

// EndOfStream is returned once a cursor has handed out every word.
var EndOfStream = Word{Index: -1, Text: "<EOF>"}

// IsEndOfStream reports whether w is the exhaustion marker.
func (w Word) IsEndOfStream() bool {
	return w.Index < 0
}

// PoolStats is a point-in-time view of a producer pool.
type PoolStats struct {
	PoolID          string  `json:"pool_id"`
	Producers       int     `json:"producers"`
	Capacity        int     `json:"capacity"`
	Buffered        int     `json:"buffered"`
	BufferLevel     int     `json:"buffer_level"`
	RunningAverage  float64 `json:"running_average"`
	Transferred     int64   `json:"transferred"`
	Total           int64   `json:"total"`
	PercentComplete int     `json:"percent_complete"`
	TransferStatus  string  `json:"transfer_status"`
	SelfAdjusting   bool    `json:"self_adjusting"`
}

// SessionStatus describes a connected session and the pool it can see.
type SessionStatus struct {
	ID              string    `json:"id"`
	RemoteAddr      string    `json:"remote_addr"`
	LinkTarget      string    `json:"link_target,omitempty"`
	Owner           bool      `json:"owner"`
	HasPool         bool      `json:"has_pool"`
	Producers       int       `json:"producers"`
	Consumers       int       `json:"consumers"`
	BufferLevel     int       `json:"buffer_level"`
	TransferStatus  string    `json:"transfer_status"`
	PercentComplete int       `json:"percent_complete"`
	SelfAdjusting   bool      `json:"self_adjusting"`
	Taken           int64     `json:"taken"`
	ConnectedAt     time.Time `json:"connected_at"`
}

// SessionRecord is a persisted connect/disconnect history entry.
type SessionRecord struct {
	ID             string     `json:"id" db:"id"`
	RemoteAddr     string     `json:"remote_addr" db:"remote_addr"`
	ConnectedAt    time.Time  `json:"connected_at" db:"connected_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty" db:"disconnected_at"`
	WordsTaken     int64      `json:"words_taken" db:"words_taken"`
}

// HostInfo carries host load figures sampled by the monitor.
type HostInfo struct {
	Hostname      string  `json:"hostname"`
	Uptime        uint64  `json:"uptime"`
	CPUCount      int     `json:"cpu_count"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	LoadAverage   float64 `json:"load_average"`
}

// Status aggregates every live session at one instant.
type Status struct {
	Sessions       []SessionStatus `json:"sessions"`
	Pools          int             `json:"pools"`
	Producers      int             `json:"producers"`
	Transferred    int64           `json:"transferred"`
	AvgBufferLevel float64         `json:"avg_buffer_level"`
	Host           HostInfo        `json:"host"`
}

// StatusEvent is published by the monitor on every tick.
type StatusEvent struct {
	ServerID string    `json:"server_id"`
	Status   *Status   `json:"status"`
	Time     time.Time `json:"time"`
}
