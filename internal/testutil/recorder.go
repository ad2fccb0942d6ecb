package testutil

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
)

// Querier is the read interface the engine queries through.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RecordingQuerier records every statement passed to an inner Querier.
// Statements containing a registered fragment fail with ErrInjected
// instead of running.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type RecordingQuerier struct {
	inner Querier

	mu    sync.Mutex
	stmts []string
	fail  []string
}

// ErrInjected is returned for statements matching a failure fragment.
var ErrInjected = errors.New("injected query failure")

// NewRecordingQuerier wraps inner.
func NewRecordingQuerier(inner Querier) *RecordingQuerier {
	return &RecordingQuerier{inner: inner}
}

// FailOn makes every later statement containing fragment fail.
func (r *RecordingQuerier) FailOn(fragment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = append(r.fail, fragment)
}

// QueryContext records query and delegates to the inner Querier.
func (r *RecordingQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	r.mu.Lock()
	r.stmts = append(r.stmts, query)
	var fail bool
	for _, f := range r.fail {
		if strings.Contains(query, f) {
			fail = true
			break
		}
	}
	r.mu.Unlock()

	if fail {
		return nil, ErrInjected
	}
	return r.inner.QueryContext(ctx, query, args...)
}

// Statements returns a copy of the recorded statements in call order.
func (r *RecordingQuerier) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stmts...)
}

// Count returns the number of recorded statements.
func (r *RecordingQuerier) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stmts)
}

// Reset clears the recorded statements. Failure fragments are kept.
func (r *RecordingQuerier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = nil
}
