package engine

import (
	"context"
	"sync"
)

// BatchScheduler collects deferred loads for one request and runs them
// tick by tick.
//
// Loads enqueued between two Flush calls belong to the same tick. Each
// distinct association group issues exactly one query per tick, with all
// of its parent keys merged. A scheduler is owned by one request and must
// not be shared; Enqueue and Flush are called from the resolver goroutine.
type BatchScheduler struct {
	loader      *BatchLoader
	concurrency int

	tick   int
	queue  []*batchGroup
	groups map[string]*batchGroup
}

type batchGroup struct {
	assoc   *AssociationPlan
	keys    [][]any
	futures []*Future
}

// Future is the pending result of one enqueued load.
type Future struct {
	key    []any
	done   bool
	result []loaded
	err    error
}

// Result returns the loaded children of the future's parent.
// It must only be called after the Flush that resolves the future.
func (f *Future) Result() ([]any, error) {
	if !f.done {
		return nil, errNotFlushed
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]any, len(f.result))
	for i, e := range f.result {
		out[i] = e.value
	}
	return out, nil
}

func (f *Future) entries() ([]loaded, error) {
	if !f.done {
		return nil, errNotFlushed
	}
	return f.result, f.err
}

// NewBatchScheduler returns a scheduler running up to concurrency batch
// groups of a tick at once. Values below 1 mean 1.
func NewBatchScheduler(loader *BatchLoader, concurrency int) *BatchScheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchScheduler{
		loader:      loader,
		concurrency: concurrency,
		groups:      make(map[string]*batchGroup),
	}
}

// Enqueue adds a load of a for parent key to the current tick.
func (s *BatchScheduler) Enqueue(a *AssociationPlan, key []any) *Future {
	g, ok := s.groups[a.Group]
	if !ok {
		g = &batchGroup{assoc: a}
		s.groups[a.Group] = g
		s.queue = append(s.queue, g)
	}
	f := &Future{key: key}
	g.keys = append(g.keys, key)
	g.futures = append(g.futures, f)
	return f
}

// Pending returns the number of groups waiting for the next Flush.
func (s *BatchScheduler) Pending() int {
	return len(s.queue)
}

// Tick returns the number of completed flushes.
func (s *BatchScheduler) Tick() int {
	return s.tick
}

// Flush runs every group of the current tick and resolves their futures.
//
// A failing group fails only its own futures. Flush itself returns an
// error when the context is done or the query budget is exhausted; the
// request must then be aborted.
func (s *BatchScheduler) Flush(ctx context.Context) error {
	groups := s.queue
	s.queue = nil
	s.groups = make(map[string]*batchGroup)
	if len(groups) == 0 {
		return nil
	}
	s.tick++

	var (
		mu    sync.Mutex
		fatal error
	)
	run := func(g *batchGroup) {
		batch, err := s.loader.Load(ctx, g.assoc, g.keys)
		for _, f := range g.futures {
			f.done = true
			if err != nil {
				f.err = err
				continue
			}
			f.result = batch.entries(f.key)
		}
		if err != nil && isFatal(ctx, err) {
			mu.Lock()
			if fatal == nil {
				fatal = err
			}
			mu.Unlock()
		}
	}

	if s.concurrency == 1 || len(groups) == 1 {
		for _, g := range groups {
			if ctx.Err() != nil {
				break
			}
			run(g)
		}
	} else {
		sem := make(chan struct{}, s.concurrency)
		var wg sync.WaitGroup
		for _, g := range groups {
			wg.Add(1)
			go func(g *batchGroup) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				run(g)
			}(g)
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return fatal
}
