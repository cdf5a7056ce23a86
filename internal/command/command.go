// Package command parses client command lines and runs them against a
// session and the registry it belongs to.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ChronoCoders/wordstream/internal/metrics"
	"github.com/ChronoCoders/wordstream/internal/session"
)

// Command names.
const (
	Hello            = "hello"
	Echo             = "echo"
	ClientID         = "id"
	Clients          = "clients"
	SetBuffer        = "setbuffer"
	StartProducers   = "startproducers"
	StopProducers    = "stopproducers"
	StopAllProducers = "stopallproducers"
	PeekProducers    = "peekproducers"
	GetWord          = "getword"
	Buffer           = "buffer"
	TransferStatus   = "transferstatus"
	Status           = "status"
	Link             = "link"
	LinkTo           = "linkto"
	Unlink           = "unlink"
	Disconnect       = "disconnect"
)

// Replies shared by several commands.
const (
	ReplyNoProducers   = "THERE ARE NO ACTIVE PRODUCERS FOR THIS CLIENT"
	ReplyNoClients     = "THERE ARE NO CLIENTS CONNECTED"
	ReplyInvalidClient = "INVALID CLIENT ID OR CLIENT NOT FOUND"
	ReplyBufferLocked  = "CAN NOT SET BUFFER ONCE PRODUCERS ARE STARTED"
	ReplySelfLink      = "CAN NOT LINK A CLIENT TO ITSELF"
	ReplyAlreadyLinked = "CLIENTS ALREADY SHARE PRODUCERS"
	ReplyNotLinked     = "CLIENT IS NOT LINKED TO THAT CLIENT"
	ReplyDisconnected  = "DISCONNECTED"
	ReplyCancelled     = "REQUEST CANCELLED"
	ReplyInternal      = "INTERNAL ERROR"
)

const invalidCommandLabel = "invalid"

// ErrInvalidArgument marks a malformed or out of range command argument.
var ErrInvalidArgument = errors.New("invalid argument")

// argumentError carries the reply sent back for a bad argument.
type argumentError struct {
	reply string
}

func (e *argumentError) Error() string {
	return "invalid argument: " + strings.ToLower(e.reply)
}

func (e *argumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func invalidArgument(reply string) error {
	return &argumentError{reply: reply}
}

// Result is the outcome of one dispatched line.
type Result struct {
	Reply string
	// Close asks the connection loop to end the session after replying.
	Close bool
}

// Dispatcher runs command lines. It is safe for concurrent use by any
// number of connections.
type Dispatcher struct {
	registry *session.Registry
	handlers map[string]handler
}

type handler func(ctx context.Context, s *session.Session, args []string) (Result, error)

// NewDispatcher returns a dispatcher bound to registry.
func NewDispatcher(registry *session.Registry) *Dispatcher {
	d := &Dispatcher{registry: registry}
	d.handlers = map[string]handler{
		Hello:            d.hello,
		Echo:             d.echo,
		ClientID:         d.id,
		Clients:          d.clients,
		SetBuffer:        d.setBuffer,
		StartProducers:   d.startProducers,
		StopProducers:    d.stopProducers,
		StopAllProducers: d.stopAllProducers,
		PeekProducers:    d.peekProducers,
		GetWord:          d.getWord,
		Buffer:           d.buffer,
		TransferStatus:   d.transferStatus,
		Status:           d.status,
		Link:             d.link,
		LinkTo:           d.linkTo,
		Unlink:           d.unlink,
		Disconnect:       d.disconnect,
	}
	return d
}

// Dispatch runs one command line for s. Errors never escape: every outcome
// is turned into a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, s *session.Session, line string) Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		metrics.CommandsTotal.WithLabelValues(invalidCommandLabel, "invalid").Inc()
		return Result{Reply: "Invalid Command: " + line}
	}

	name := strings.ToLower(fields[0])
	h, ok := d.handlers[name]
	if !ok {
		metrics.CommandsTotal.WithLabelValues(invalidCommandLabel, "invalid").Inc()
		return Result{Reply: "Invalid Command: " + line}
	}

	start := time.Now()
	res, err := h(ctx, s, fields[1:])
	metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CommandsTotal.WithLabelValues(name, "error").Inc()
		log.Debug().Err(err).Str("session", s.ID()).Str("command", name).Msg("command failed")
		return Result{Reply: errorReply(err)}
	}
	metrics.CommandsTotal.WithLabelValues(name, "ok").Inc()
	return res
}

func errorReply(err error) string {
	var argErr *argumentError
	switch {
	case errors.As(err, &argErr):
		return argErr.reply
	case errors.Is(err, session.ErrNoPool):
		return ReplyNoProducers
	case errors.Is(err, session.ErrBufferLocked):
		return ReplyBufferLocked
	case errors.Is(err, session.ErrUnknownSession):
		return ReplyInvalidClient
	case errors.Is(err, session.ErrSelfLink):
		return ReplySelfLink
	case errors.Is(err, session.ErrAlreadyLinked):
		return ReplyAlreadyLinked
	case errors.Is(err, session.ErrNotLinked):
		return ReplyNotLinked
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReplyCancelled
	default:
		log.Error().Err(err).Msg("unexpected command error")
		return ReplyInternal
	}
}

func reply(format string, args ...any) (Result, error) {
	return Result{Reply: fmt.Sprintf(format, args...)}, nil
}

func (d *Dispatcher) hello(_ context.Context, s *session.Session, _ []string) (Result, error) {
	return reply("HELLO %s", s.RemoteAddr())
}

func (d *Dispatcher) echo(_ context.Context, _ *session.Session, args []string) (Result, error) {
	return reply("%s", strings.Join(args, " "))
}

func (d *Dispatcher) id(_ context.Context, s *session.Session, _ []string) (Result, error) {
	return reply("%s", s.ID())
}

// clients renders a comma separated table, one row per session. Linked
// sessions show their target's short id and leave the pool columns empty.
func (d *Dispatcher) clients(_ context.Context, _ *session.Session, _ []string) (Result, error) {
	sessions := d.registry.Snapshot()
	if len(sessions) == 0 {
		return reply(ReplyNoClients)
	}

	var b strings.Builder
	b.WriteString("<FORMAT><COLUMNS>\n")
	b.WriteString("ADDRESS,ID,LINKED,PRODUCERS,CONSUMERS,TAKEN\n")
	for _, st := range sessions {
		linked, producers, consumers := "MASTER", strconv.Itoa(st.Producers), strconv.Itoa(st.Consumers)
		if st.LinkTarget != "" {
			linked, producers, consumers = shortID(st.LinkTarget), "", ""
		}
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%d\n", st.RemoteAddr, shortID(st.ID), linked, producers, consumers, st.Taken)
	}
	return Result{Reply: b.String()}, nil
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}

func (d *Dispatcher) setBuffer(_ context.Context, s *session.Session, args []string) (Result, error) {
	n, ok := positiveArg(args, 0)
	if !ok {
		return Result{}, invalidArgument("INVALID PRODUCER BUFFER ARGUMENTS")
	}
	if err := s.SetBufferSize(n); err != nil {
		return Result{}, err
	}
	return reply("PRODUCER BUFFER = %d", n)
}

// startProducers takes an optional producer count (0 or absent starts a
// self-adjusting pool) and an optional buffer size for a new pool.
func (d *Dispatcher) startProducers(_ context.Context, s *session.Session, args []string) (Result, error) {
	count := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return Result{}, invalidArgument("INVALID PRODUCER ARGUMENTS")
		}
		count = n
	}
	bufferSize := 0
	if len(args) > 1 {
		n, ok := positiveArg(args, 1)
		if !ok {
			return Result{}, invalidArgument("INVALID PRODUCER BUFFER SIZE")
		}
		bufferSize = n
	}

	running, err := s.StartProducers(count, bufferSize)
	if err != nil {
		return Result{}, err
	}
	started := strconv.Itoa(count)
	if count == 0 {
		started = "SELF-ADJUSTING"
	}
	return reply("%s PRODUCERS STARTED | %d PRODUCERS RUNNING", started, running)
}

func (d *Dispatcher) stopProducers(_ context.Context, s *session.Session, args []string) (Result, error) {
	if s.Controller() == nil {
		return Result{}, session.ErrNoPool
	}
	n, err := intArg(args, 0)
	if err != nil || n < 0 {
		return Result{}, invalidArgument("INVALID PRODUCER ARGUMENTS")
	}
	running, err := s.StopProducers(n)
	if err != nil {
		return Result{}, err
	}
	return reply("%d PRODUCERS STOPPED | %d PRODUCERS RUNNING", n, running)
}

func (d *Dispatcher) stopAllProducers(_ context.Context, s *session.Session, _ []string) (Result, error) {
	if err := s.StopAllProducers(); err != nil {
		return Result{}, err
	}
	return reply("PRODUCERS STOPPED")
}

func (d *Dispatcher) peekProducers(_ context.Context, s *session.Session, _ []string) (Result, error) {
	lines, err := s.Peek()
	if err != nil {
		return Result{}, err
	}
	return Result{Reply: strings.Join(lines, "\n")}, nil
}

// getWord blocks until a word is available and replies with it as JSON.
// A drained pool yields the end-of-stream word.
func (d *Dispatcher) getWord(ctx context.Context, s *session.Session, _ []string) (Result, error) {
	w, err := s.TakeWord(ctx)
	if err != nil {
		return Result{}, err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return Result{}, fmt.Errorf("encode word: %w", err)
	}
	return Result{Reply: string(data)}, nil
}

func (d *Dispatcher) buffer(_ context.Context, s *session.Session, _ []string) (Result, error) {
	level, err := s.BufferLevel()
	if err != nil {
		return Result{}, err
	}
	return reply("%d%%", level)
}

func (d *Dispatcher) transferStatus(_ context.Context, s *session.Session, _ []string) (Result, error) {
	status, err := s.TransferStatus()
	if err != nil {
		return Result{}, err
	}
	return reply("%s", status)
}

func (d *Dispatcher) status(_ context.Context, s *session.Session, _ []string) (Result, error) {
	data, err := json.Marshal(s.Status())
	if err != nil {
		return Result{}, fmt.Errorf("encode status: %w", err)
	}
	return Result{Reply: string(data)}, nil
}

func (d *Dispatcher) link(_ context.Context, s *session.Session, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{}, invalidArgument(ReplyInvalidClient)
	}
	if err := d.registry.Link(s, args[0]); err != nil {
		return Result{}, err
	}
	return reply("CLIENT LINKED")
}

func (d *Dispatcher) linkTo(_ context.Context, s *session.Session, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{}, invalidArgument(ReplyInvalidClient)
	}
	if err := d.registry.LinkTo(s, args[0]); err != nil {
		return Result{}, err
	}
	return reply("LINKED TO CLIENT")
}

func (d *Dispatcher) unlink(_ context.Context, s *session.Session, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{}, invalidArgument(ReplyInvalidClient)
	}
	if err := d.registry.Unlink(s, args[0]); err != nil {
		return Result{}, err
	}
	return reply("CLIENT UNLINKED")
}

// disconnect only asks the connection loop to close; teardown happens when
// the loop exits so every exit path shares it.
func (d *Dispatcher) disconnect(_ context.Context, _ *session.Session, _ []string) (Result, error) {
	return Result{Reply: ReplyDisconnected, Close: true}, nil
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, ErrInvalidArgument
	}
	return strconv.Atoi(args[i])
}

func positiveArg(args []string, i int) (int, bool) {
	n, err := intArg(args, i)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
