package corpus

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChronoCoders/wordstream/internal/models"
)

func TestFromText(t *testing.T) {
	c := FromText("  The Comedie\n of\tErrors  ")

	require.Equal(t, int64(4), c.Len())
	assert.Equal(t, models.Word{Index: 0, Text: "The"}, c.Word(0))
	assert.Equal(t, models.Word{Index: 3, Text: "Errors"}, c.Word(3))
	assert.True(t, c.Word(4).IsEndOfStream())
	assert.True(t, c.Word(-1).IsEndOfStream())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	require.NoError(t, os.WriteFile(path, []byte("one two three"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Len())
}

func TestLoadMissingFileDegrades(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.txt"))

	require.Error(t, err)
	require.NotNil(t, c)
	assert.Greater(t, c.Len(), int64(0))
}

func TestCursorSequential(t *testing.T) {
	cur := New([]string{"a", "b", "c"}).NewCursor()

	for i := int64(0); i < 3; i++ {
		require.True(t, cur.HasNext())
		w := cur.TakeNext()
		assert.Equal(t, i, w.Index)
	}

	assert.False(t, cur.HasNext())
	assert.True(t, cur.TakeNext().IsEndOfStream())
	assert.True(t, cur.TakeNext().IsEndOfStream())
	assert.Equal(t, int64(3), cur.Position())
}

func TestCursorConcurrentTakesAreUnique(t *testing.T) {
	const total = 5000
	const callers = 64

	words := make([]string, total)
	for i := range words {
		words[i] = "w"
	}
	cur := New(words).NewCursor()

	var mu sync.Mutex
	var got []int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local []int64
			for {
				w := cur.TakeNext()
				if w.IsEndOfStream() {
					break
				}
				local = append(local, w.Index)
			}
			mu.Lock()
			got = append(got, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, got, total)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, idx := range got {
		require.Equal(t, int64(i), idx)
	}
}

func TestCursorsAreIndependent(t *testing.T) {
	c := New([]string{"x", "y"})
	a, b := c.NewCursor(), c.NewCursor()

	assert.Equal(t, int64(0), a.TakeNext().Index)
	assert.Equal(t, int64(0), b.TakeNext().Index)
	assert.Equal(t, int64(1), a.TakeNext().Index)
}
