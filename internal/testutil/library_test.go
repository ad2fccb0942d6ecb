package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryStoreIsSeeded(t *testing.T) {
	s, st := LibraryStore(t)

	author, ok := s.Entity("Author")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, author.IdentityColumns())

	counts := map[string]int{
		"publishers":   2,
		"authors":      4,
		"books":        5,
		"readers":      3,
		"book_readers": 4,
		"author_tags":  3,
	}
	for table, want := range counts {
		var n int
		require.NoError(t, st.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Equal(t, want, n, table)
	}
}

func TestRecordingQuerier(t *testing.T) {
	_, st := LibraryStore(t)
	r := NewRecordingQuerier(st)
	ctx := context.Background()

	rows, err := r.QueryContext(ctx, "SELECT id FROM authors")
	require.NoError(t, err)
	rows.Close()

	r.FailOn("books")
	_, err = r.QueryContext(ctx, "SELECT id FROM books")
	assert.ErrorIs(t, err, ErrInjected)

	assert.Equal(t, []string{"SELECT id FROM authors", "SELECT id FROM books"}, r.Statements())
	r.Reset()
	assert.Zero(t, r.Count())
}
