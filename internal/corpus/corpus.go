// Package corpus loads the shared word list and hands out words through cursors.
package corpus

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/ChronoCoders/wordstream/internal/models"
)

// Corpus is the tokenized source text. It is read-only after construction
// and shared by every cursor in the process.
type Corpus struct {
	words []string
}

// New builds a corpus from already tokenized words.
func New(words []string) *Corpus {
	w := make([]string, len(words))
	copy(w, words)
	return &Corpus{words: w}
}

// FromText splits text on whitespace.
func FromText(text string) *Corpus {
	return &Corpus{words: strings.Fields(text)}
}

// Load reads and tokenizes the file at path. When the file cannot be read
// it still returns a usable corpus built from the error text, together with
// the error, so the service can start without its book.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to load corpus %s: %w", path, err)
		return FromText(err.Error()), err
	}
	return FromText(string(data)), nil
}

// Len returns the number of words.
func (c *Corpus) Len() int64 {
	return int64(len(c.words))
}

// Word returns the word at index i, or EndOfStream when i is out of range.
func (c *Corpus) Word(i int64) models.Word {
	if i < 0 || i >= int64(len(c.words)) {
		return models.EndOfStream
	}
	return models.Word{Index: i, Text: c.words[i]}
}

// Cursor walks a corpus, issuing each index exactly once across all callers.
type Cursor struct {
	corpus *Corpus
	next   atomic.Int64
}

// NewCursor returns a cursor positioned at the first word.
func (c *Corpus) NewCursor() *Cursor {
	return &Cursor{corpus: c}
}

// HasNext reports whether a word is still available.
func (c *Cursor) HasNext() bool {
	return c.next.Load() <= c.corpus.Len()-1
}

// TakeNext claims the next index. Once the corpus is used up every call
// returns EndOfStream.
func (c *Cursor) TakeNext() models.Word {
	idx := c.next.Add(1) - 1
	return c.corpus.Word(idx)
}

// Position returns how many words have been issued.
func (c *Cursor) Position() int64 {
	n := c.next.Load()
	if total := c.corpus.Len(); n > total {
		return total
	}
	return n
}

// Total returns the corpus length.
func (c *Cursor) Total() int64 {
	return c.corpus.Len()
}
