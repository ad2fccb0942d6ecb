package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/testutil"
)

// authorAssociations plans books{title} and tags of Author.
func authorAssociations(t *testing.T, e *Engine) (books, tags *AssociationPlan) {
	t.Helper()
	plan, err := e.Plan(&queryir.Request{
		Entity: "Author",
		Select: []*queryir.Selection{queryir.Nested("books", queryir.Field("title")), queryir.Field("tags")},
	})
	require.NoError(t, err)
	assocs := plan.Associations()
	require.Len(t, assocs, 2)
	return assocs[0], assocs[1]
}

func TestSchedulerMergesKeysOfOneGroup(t *testing.T) {
	e, rec := newLibraryEngine(t)
	books, _ := authorAssociations(t, e)
	s := NewBatchScheduler(&BatchLoader{exec: e.newExecution("r")}, 1)

	f1 := s.Enqueue(books, []any{int64(1)})
	f2 := s.Enqueue(books, []any{int64(2)})
	f3 := s.Enqueue(books, []any{int64(1)})
	assert.Equal(t, 1, s.Pending())

	_, err := f1.Result()
	assert.ErrorIs(t, err, errNotFlushed)

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, 1, s.Tick())
	assert.Zero(t, s.Pending())

	got, err := f1.Result()
	require.NoError(t, err)
	assert.Equal(t, []any{Row{"title": "Alpha"}, Row{"title": "Beta"}, Row{"title": "Gamma"}}, got)

	got, err = f2.Result()
	require.NoError(t, err)
	assert.Equal(t, []any{Row{"title": "Delta"}}, got)

	got3, err := f3.Result()
	require.NoError(t, err)
	assert.Len(t, got3, 3)
}

func TestSchedulerIsolatesFailingGroups(t *testing.T) {
	e, rec := newLibraryEngine(t)
	rec.FailOn(`"author_tags"`)
	books, tags := authorAssociations(t, e)
	s := NewBatchScheduler(&BatchLoader{exec: e.newExecution("r")}, 2)

	fb := s.Enqueue(books, []any{int64(2)})
	ft := s.Enqueue(tags, []any{int64(2)})
	assert.Equal(t, 2, s.Pending())

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 2, rec.Count())

	got, err := fb.Result()
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = ft.Result()
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, PhaseBatch, ExecutionPhase(err))
}

func TestSchedulerFlushWithoutLoads(t *testing.T) {
	e, rec := newLibraryEngine(t)
	s := NewBatchScheduler(&BatchLoader{exec: e.newExecution("r")}, 0)

	require.NoError(t, s.Flush(context.Background()))
	assert.Zero(t, s.Tick())
	assert.Zero(t, rec.Count())
}

func TestSchedulerFlushCancelled(t *testing.T) {
	e, rec := newLibraryEngine(t)
	books, _ := authorAssociations(t, e)
	s := NewBatchScheduler(&BatchLoader{exec: e.newExecution("r")}, 1)
	s.Enqueue(books, []any{int64(1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Flush(ctx), context.Canceled)
	assert.Zero(t, rec.Count())
}

func TestBatchLoaderReturnsEveryKey(t *testing.T) {
	e, _ := newLibraryEngine(t)
	_, tags := authorAssociations(t, e)
	l := &BatchLoader{exec: e.newExecution("r")}

	batch, err := l.Load(context.Background(), tags, [][]any{{int64(1)}, {int64(3)}, {int64(1)}})
	require.NoError(t, err)
	assert.Equal(t, []any{"classic", "prize"}, batch.Values([]any{int64(1)}))
	assert.Equal(t, []any{}, batch.Values([]any{int64(3)}))
	assert.Equal(t, []any{}, batch.Values([]any{int64(99)}))
}
