// Package wire frames client messages on a byte stream. Every message is
// text followed by the <STOP> terminator, encoded as UTF-16LE or UTF-8.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Terminator ends every message.
const Terminator = "<STOP>"

// DefaultMaxMessageSize bounds a single decoded message.
const DefaultMaxMessageSize = 1 << 20

var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrUnknownEncoding = errors.New("unknown wire encoding")
)

var utf16LittleEndian = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encoding resolves a configured encoding name. "utf16" (and its aliases)
// selects UTF-16LE without a byte order mark; "utf8" selects UTF-8.
func Encoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf16", "utf-16", "utf16le", "utf-16le", "unicode":
		return utf16LittleEndian, nil
	case "utf8", "utf-8":
		return unicode.UTF8, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

var terminator = []byte(Terminator)

// Reader splits a stream into messages. Partial frames accumulate across
// reads. A Reader is not safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	pending []byte
	maxSize int
}

// NewReader decodes r with enc. A nil enc means UTF-16LE.
func NewReader(r io.Reader, enc encoding.Encoding) *Reader {
	if enc == nil {
		enc = utf16LittleEndian
	}
	return &Reader{
		r:       bufio.NewReader(transform.NewReader(r, enc.NewDecoder())),
		maxSize: DefaultMaxMessageSize,
	}
}

// SetMaxMessageSize changes the decoded size limit.
func (r *Reader) SetMaxMessageSize(n int) {
	if n > 0 {
		r.maxSize = n
	}
}

// ReadMessage returns the next message without its terminator. At end of
// stream it returns io.EOF, or io.ErrUnexpectedEOF if an unterminated
// fragment was pending. No more than one buffer past the size limit is
// held before ErrMessageTooLarge.
func (r *Reader) ReadMessage() (string, error) {
	limit := r.maxSize + len(terminator)
	for {
		chunk, err := r.r.ReadSlice(terminator[len(terminator)-1])
		r.pending = append(r.pending, chunk...)

		if err == nil && bytes.HasSuffix(r.pending, terminator) {
			msg := string(r.pending[:len(r.pending)-len(terminator)])
			r.pending = r.pending[:0]
			if len(msg) > r.maxSize {
				return "", ErrMessageTooLarge
			}
			return msg, nil
		}
		if len(r.pending) > limit {
			r.pending = nil
			return "", ErrMessageTooLarge
		}

		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(r.pending) > 0:
			r.pending = r.pending[:0]
			return "", io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}
}

// Writer frames and encodes messages. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	enc *encoding.Encoder
}

// NewWriter encodes onto w with enc. A nil enc means UTF-16LE.
func NewWriter(w io.Writer, enc encoding.Encoding) *Writer {
	if enc == nil {
		enc = utf16LittleEndian
	}
	return &Writer{w: w, enc: enc.NewEncoder()}
}

// WriteMessage writes msg followed by the terminator in a single write.
func (w *Writer) WriteMessage(msg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := w.enc.Bytes([]byte(msg + Terminator))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
