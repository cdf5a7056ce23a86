package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChronoCoders/wordstream/internal/control"
	"github.com/ChronoCoders/wordstream/internal/models"
)

type staticSessions []models.SessionStatus

func (s staticSessions) Snapshot() []models.SessionStatus { return s }

type failingReporter struct{ calls int }

func (f *failingReporter) Report(context.Context, models.StatusEvent) error {
	f.calls++
	return errors.New("unreachable")
}

func fixedHost(context.Context) models.HostInfo {
	return models.HostInfo{Hostname: "test", CPUCount: 4, CPUPercent: 12.5, MemoryPercent: 40, LoadAverage: 0.5}
}

func TestAggregate(t *testing.T) {
	sessions := []models.SessionStatus{
		{ID: "a", Owner: true, HasPool: true, Producers: 3, BufferLevel: 50, Taken: 10},
		{ID: "b", LinkTarget: "a", HasPool: true, Producers: 3, BufferLevel: 50, Taken: 5},
		{ID: "c", Owner: true, HasPool: true, Producers: 1, BufferLevel: 10, Taken: 1},
		{ID: "d", Owner: true},
	}

	got := Aggregate(sessions)
	want := &models.Status{
		Sessions:       sessions,
		Pools:          2,
		Producers:      4,
		Transferred:    16,
		AvgBufferLevel: 30,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}

	assert.Zero(t, Aggregate(nil).AvgBufferLevel)
}

func TestTickPublishes(t *testing.T) {
	bus := control.NewEventBus()
	ch := bus.Subscribe()

	m := New(staticSessions{{ID: "a", Owner: true, HasPool: true, Producers: 2, BufferLevel: 20}}, NewEventBusReporter(bus), "local", time.Hour)
	m.hostInfo = fixedHost

	ev := m.Tick(context.Background())
	assert.Equal(t, "local", ev.ServerID)

	select {
	case got := <-ch:
		assert.Equal(t, "local", got.ServerID)
		require.NotNil(t, got.Status)
		assert.Equal(t, 2, got.Status.Producers)
		assert.Equal(t, "test", got.Status.Host.Hostname)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	rep := &failingReporter{}
	m := New(staticSessions{}, rep, "local", 5*time.Millisecond)
	m.hostInfo = fixedHost

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Positive(t, rep.calls, "report errors do not stop the loop")
}
