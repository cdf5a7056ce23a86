// Package agent samples the server and its host on a fixed interval and
// reports the result as status events.
package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ChronoCoders/wordstream/internal/metrics"
	"github.com/ChronoCoders/wordstream/internal/models"
)

const defaultInterval = 10 * time.Second

// SessionLister returns the status of every live session.
type SessionLister interface {
	Snapshot() []models.SessionStatus
}

// Monitor periodically aggregates session state and host load.
type Monitor struct {
	sessions SessionLister
	reporter Reporter
	serverID string
	interval time.Duration
	hostInfo func(ctx context.Context) models.HostInfo
}

func New(sessions SessionLister, reporter Reporter, serverID string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		sessions: sessions,
		reporter: reporter,
		serverID: serverID,
		interval: interval,
		hostInfo: collectHostInfo,
	}
}

// Run reports once per interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick takes one sample and reports it.
func (m *Monitor) Tick(ctx context.Context) models.StatusEvent {
	status := Aggregate(m.sessions.Snapshot())
	status.Host = m.hostInfo(ctx)

	metrics.BufferLevelAverage.Set(status.AvgBufferLevel)
	metrics.HostCPUPercent.Set(status.Host.CPUPercent)
	metrics.HostMemoryPercent.Set(status.Host.MemoryPercent)
	metrics.HostLoad1.Set(status.Host.LoadAverage)

	event := models.StatusEvent{
		ServerID: m.serverID,
		Status:   status,
		Time:     time.Now(),
	}

	if err := m.reporter.Report(ctx, event); err != nil {
		log.Error().Err(err).Msg("failed to report status")
	} else {
		log.Debug().
			Int("sessions", len(status.Sessions)).
			Int("pools", status.Pools).
			Int("producers", status.Producers).
			Float64("avg", status.AvgBufferLevel).
			Msg("status reported")
	}
	return event
}

// Aggregate folds session statuses into one server status. A pool is
// counted once, through the session that owns it.
func Aggregate(sessions []models.SessionStatus) *models.Status {
	status := &models.Status{Sessions: sessions}
	var levels int
	for _, s := range sessions {
		status.Transferred += s.Taken
		if !s.HasPool || !s.Owner {
			continue
		}
		status.Pools++
		status.Producers += s.Producers
		levels += s.BufferLevel
	}
	if status.Pools > 0 {
		status.AvgBufferLevel = float64(levels) / float64(status.Pools)
	}
	return status
}

func collectHostInfo(ctx context.Context) models.HostInfo {
	var info models.HostInfo

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.Uptime = h.Uptime
	}

	if c, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCount = c
	}

	if p, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(p) > 0 {
		info.CPUPercent = p[0]
	}

	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryPercent = v.UsedPercent
	}

	if l, err := load.AvgWithContext(ctx); err == nil {
		info.LoadAverage = l.Load1
	}

	return info
}
