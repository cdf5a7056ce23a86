package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChronoCoders/wordstream/internal/command"
	"github.com/ChronoCoders/wordstream/internal/config"
	"github.com/ChronoCoders/wordstream/internal/corpus"
	"github.com/ChronoCoders/wordstream/internal/models"
	"github.com/ChronoCoders/wordstream/internal/pool"
	"github.com/ChronoCoders/wordstream/internal/session"
	"github.com/ChronoCoders/wordstream/internal/wire"
)

type memRecorder struct {
	mu           sync.Mutex
	connected    map[string]string
	disconnected map[string]int64
}

func newMemRecorder() *memRecorder {
	return &memRecorder{connected: map[string]string{}, disconnected: map[string]int64{}}
}

func (m *memRecorder) RecordConnect(_ context.Context, id, remoteAddr string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected[id] = remoteAddr
	return nil
}

func (m *memRecorder) RecordDisconnect(_ context.Context, id string, _ time.Time, taken int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected[id] = taken
	return nil
}

func (m *memRecorder) remoteOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected[id]
}

func (m *memRecorder) disconnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.disconnected)
}

type harness struct {
	srv      *Server
	registry *session.Registry
	recorder *memRecorder
	addr     string
	cancel   context.CancelFunc
	done     chan error
}

func startServer(t *testing.T, words []string, opts ...session.RegistryOption) *harness {
	t.Helper()

	cfg := config.Load()
	cfg.ListenAddr = "127.0.0.1:0"

	registry := session.NewRegistry(session.NewPoolFactory(corpus.New(words), pool.WithBackoff(time.Millisecond)), opts...)
	recorder := newMemRecorder()
	srv, err := New(cfg, registry, command.NewDispatcher(registry), recorder)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{srv: srv, registry: registry, recorder: recorder, addr: ln.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		h.stop(t)
		registry.Shutdown()
	})
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err, ok := <-h.done:
		if ok {
			assert.NoError(t, err)
			close(h.done)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type client struct {
	conn net.Conn
	r    *wire.Reader
	w    *wire.Writer
}

func (h *harness) dial(t *testing.T) *client {
	t.Helper()
	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, r: wire.NewReader(conn, nil), w: wire.NewWriter(conn, nil)}
}

func (c *client) do(t *testing.T, line string) string {
	t.Helper()
	require.NoError(t, c.conn.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, c.w.WriteMessage(line))
	reply, err := c.r.ReadMessage()
	require.NoError(t, err)
	return reply
}

func corpusWords(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return words
}

func TestHelloAndIdentity(t *testing.T) {
	h := startServer(t, corpusWords(10))
	c := h.dial(t)

	assert.Equal(t, "HELLO "+c.conn.LocalAddr().String(), c.do(t, "hello"))
	id := c.do(t, "id")
	_, ok := h.registry.Get(id)
	assert.True(t, ok)
	assert.Equal(t, "Invalid Command: nope", c.do(t, "nope"))
}

func TestStreamWholeCorpus(t *testing.T) {
	h := startServer(t, corpusWords(5))
	c := h.dial(t)

	assert.Equal(t, "PRODUCER BUFFER = 2", c.do(t, "setbuffer 2"))
	assert.Equal(t, "2 PRODUCERS STARTED | 2 PRODUCERS RUNNING", c.do(t, "startproducers 2"))

	seen := map[int64]string{}
	for {
		var w models.Word
		require.NoError(t, json.Unmarshal([]byte(c.do(t, "getword")), &w))
		if w.IsEndOfStream() {
			break
		}
		seen[w.Index] = w.Text
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, "word3", seen[3])
	assert.Equal(t, "5 / 5", c.do(t, "transferstatus"))
}

func TestDisconnectCommandTearsDownSession(t *testing.T) {
	h := startServer(t, corpusWords(1000))
	c := h.dial(t)

	id := c.do(t, "id")
	c.do(t, "startproducers 3 5")
	sess, ok := h.registry.Get(id)
	require.True(t, ok)
	ctrl := sess.Controller()

	assert.Equal(t, command.ReplyDisconnected, c.do(t, "disconnect"))

	require.Eventually(t, func() bool {
		_, ok := h.registry.Get(id)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, ctrl.Closed())
	assert.Equal(t, 0, ctrl.Size())

	require.Eventually(t, func() bool { return h.recorder.disconnectedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, c.conn.LocalAddr().String(), h.recorder.remoteOf(id))

	_, err := c.r.ReadMessage()
	assert.Error(t, err, "server closed the connection")
}

func TestClientDropDetachesFollowers(t *testing.T) {
	h := startServer(t, corpusWords(1000))
	a := h.dial(t)
	b := h.dial(t)

	aID := a.do(t, "id")
	a.do(t, "startproducers 2 5")
	assert.Equal(t, "LINKED TO CLIENT", b.do(t, "linkto "+aID))

	a.conn.Close()
	require.Eventually(t, func() bool { return h.registry.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, command.ReplyNoProducers, b.do(t, "buffer"))
}

func TestClientDropWhileWaitingForWord(t *testing.T) {
	h := startServer(t, corpusWords(1000))
	c := h.dial(t)

	id := c.do(t, "id")
	c.do(t, "setbuffer 5")
	sess, ok := h.registry.Get(id)
	require.True(t, ok)
	ctrl := sess.Controller()

	// no producers: getword blocks until the client goes away
	require.NoError(t, c.w.WriteMessage("getword"))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.conn.Close())

	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.recorder.disconnectedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, ctrl.Closed())
}

func TestRegistryFullRefusesConnection(t *testing.T) {
	h := startServer(t, corpusWords(10), session.WithMaxSessions(1))
	first := h.dial(t)
	first.do(t, "hello")

	second := h.dial(t)
	require.NoError(t, second.conn.SetDeadline(time.Now().Add(2*time.Second)))
	_ = second.w.WriteMessage("hello")
	_, err := second.r.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 1, h.registry.Len())
}

func TestShutdownUnblocksWaitingClients(t *testing.T) {
	h := startServer(t, corpusWords(1000))
	c := h.dial(t)
	c.do(t, "setbuffer 3")

	// no producers: getword blocks until the server goes away
	require.NoError(t, c.w.WriteMessage("getword"))
	require.Eventually(t, func() bool { return h.registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	h.stop(t)
	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, 1, h.recorder.disconnectedCount())
}

func TestAddr(t *testing.T) {
	h := startServer(t, corpusWords(1))
	require.Eventually(t, func() bool { return h.srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, h.addr, h.srv.Addr().String())
}

func TestUnknownEncoding(t *testing.T) {
	cfg := config.Load()
	cfg.Encoding = "ebcdic"
	_, err := New(cfg, nil, nil, nil)
	assert.ErrorIs(t, err, wire.ErrUnknownEncoding)
}
