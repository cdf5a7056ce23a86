// Package server accepts client connections and runs one command loop per
// connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"

	"github.com/ChronoCoders/wordstream/internal/command"
	"github.com/ChronoCoders/wordstream/internal/config"
	"github.com/ChronoCoders/wordstream/internal/session"
	"github.com/ChronoCoders/wordstream/internal/wire"
)

const (
	recordTimeout  = 2 * time.Second
	acceptBackoff  = 50 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Dispatcher runs a single command line for a session.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *session.Session, line string) command.Result
}

// Recorder keeps connection history. Failures are logged and never end a
// connection.
type Recorder interface {
	RecordConnect(ctx context.Context, id, remoteAddr string, at time.Time) error
	RecordDisconnect(ctx context.Context, id string, at time.Time, wordsTaken int64) error
}

// Server is the client-facing TCP listener.
type Server struct {
	addr       string
	enc        encoding.Encoding
	registry   *session.Registry
	dispatcher Dispatcher
	recorder   Recorder

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a server for cfg.ListenAddr speaking cfg.Encoding. recorder may
// be nil.
func New(cfg *config.Config, registry *session.Registry, dispatcher Dispatcher, recorder Recorder) (*Server, error) {
	enc, err := wire.Encoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return &Server{
		addr:       cfg.ListenAddr,
		enc:        enc,
		registry:   registry,
		dispatcher: dispatcher,
		recorder:   recorder,
	}, nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or accepting fails
// for good. It closes ln and returns only after every connection goroutine
// has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("accepting client connections")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("client listener closed")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = min(max(2*delay, acceptBackoff), maxAcceptDelay)
				log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		delay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()

	sess, err := s.registry.Register(remote)
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("connection refused")
		conn.Close()
		return
	}
	s.recordConnect(sess)

	ctx, cancel := context.WithCancel(ctx)
	msgs := make(chan string)
	readerDone := make(chan struct{})

	defer func() {
		cancel()
		conn.Close()
		<-readerDone
		s.registry.Disconnect(sess.ID())
		s.recordDisconnect(sess)
	}()

	// Reads run apart from dispatch so a dropped client cancels a blocked
	// command.
	go func() {
		defer close(readerDone)
		defer cancel()
		s.readLoop(ctx, conn, sess.ID(), msgs)
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	w := wire.NewWriter(conn, s.enc)
	for {
		var msg string
		select {
		case <-ctx.Done():
			return
		case msg = <-msgs:
		}

		res := s.dispatcher.Dispatch(ctx, sess, msg)
		if err := w.WriteMessage(res.Reply); err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Str("session", sess.ID()).Msg("write failed")
			}
			return
		}
		if res.Close {
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn net.Conn, id string, msgs chan<- string) {
	r := wire.NewReader(conn, s.enc)
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug().Err(err).Str("session", id).Msg("read failed")
			}
			return
		}
		select {
		case msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) recordConnect(sess *session.Session) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.recorder.RecordConnect(ctx, sess.ID(), sess.RemoteAddr(), sess.ConnectedAt()); err != nil {
		log.Error().Err(err).Str("session", sess.ID()).Msg("failed to record connect")
	}
}

func (s *Server) recordDisconnect(sess *session.Session) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.recorder.RecordDisconnect(ctx, sess.ID(), time.Now(), sess.Taken()); err != nil {
		log.Error().Err(err).Str("session", sess.ID()).Msg("failed to record disconnect")
	}
}
