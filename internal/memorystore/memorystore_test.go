package memorystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddShortTermEvictsOldest(t *testing.T) {
	store := New(t.TempDir())

	var last Entry
	for i := 0; i < shortTermCap+3; i++ {
		entry, err := store.AddShortTerm("memory")
		require.NoError(t, err)
		last = entry
	}

	entries, err := store.ShortTerm()
	require.NoError(t, err)
	assert.Len(t, entries, shortTermCap)
	assert.Equal(t, last.ID, entries[len(entries)-1].ID)
}

func TestAddLongTermUncapped(t *testing.T) {
	store := New(t.TempDir())

	for i := 0; i < shortTermCap+5; i++ {
		_, err := store.AddLongTerm("memory")
		require.NoError(t, err)
	}

	entries, err := store.LongTerm()
	require.NoError(t, err)
	assert.Len(t, entries, shortTermCap+5)
}

func TestAddShortTermTruncatesLongContent(t *testing.T) {
	store := New(t.TempDir())

	huge := make([]byte, maxEntryChars+500)
	for i := range huge {
		huge[i] = 'x'
	}

	entry, err := store.AddShortTerm(string(huge))
	require.NoError(t, err)
	assert.Len(t, entry.Content, maxEntryChars)
}

func TestShortTermContentsEmptyWhenUnset(t *testing.T) {
	store := New(t.TempDir())
	assert.Empty(t, store.ShortTermContents())
}

func TestIDsAreMonotonic(t *testing.T) {
	store := New(t.TempDir())

	first, err := store.AddLongTerm("a")
	require.NoError(t, err)
	second, err := store.AddLongTerm("b")
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
}
