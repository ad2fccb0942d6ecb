package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/qgraph/internal/schema"
)

var errNotFlushed = errors.New("batch future read before flush")

// isFatal reports whether a batch error aborts the whole request instead
// of becoming a field error.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		IsBudgetExceededError(err)
}

// resolver drains deferred associations breadth-first: every load found at
// one depth is enqueued, the tick is flushed, and the loaded children
// contribute the loads of the next depth.
type resolver struct {
	sched       *BatchScheduler
	fieldErrors []FieldError
	warnings    []Warning
}

func newResolver(x *execution, concurrency int) *resolver {
	return &resolver{sched: NewBatchScheduler(&BatchLoader{exec: x}, concurrency)}
}

type waiting struct {
	load   pendingLoad
	future *Future
}

func (r *resolver) resolve(ctx context.Context, pending []pendingLoad) error {
	for len(pending) > 0 {
		var waits []waiting
		for _, p := range pending {
			if p.key == nil {
				r.warnings = append(r.warnings, Warning{
					Code:    WarnNullIdentity,
					Message: fmt.Sprintf("%s: parent identity is null; %s resolves empty", p.path, p.assoc.Attribute.Name),
				})
				p.row[p.assoc.Attribute.Name] = emptyValue(p.assoc.Attribute)
				continue
			}
			waits = append(waits, waiting{load: p, future: r.sched.Enqueue(p.assoc, p.key)})
		}

		if err := r.sched.Flush(ctx); err != nil {
			return err
		}

		var next []pendingLoad
		for _, w := range waits {
			field := w.load.assoc.Attribute.Name
			fieldPath := joinResultPath(w.load.path, field)

			entries, err := w.future.entries()
			if err != nil {
				if isFatal(ctx, err) {
					return err
				}
				r.fieldErrors = append(r.fieldErrors, FieldError{Path: fieldPath, Err: err})
				w.load.row[field] = nil
				continue
			}
			next = append(next, attach(w.load, fieldPath, entries)...)
		}
		pending = next
	}
	return nil
}

// attach stores loaded children on their parent row and returns the
// children's own deferred loads with absolute paths.
func attach(p pendingLoad, fieldPath string, entries []loaded) []pendingLoad {
	attr := p.assoc.Attribute
	var next []pendingLoad

	switch attr.Kind {
	case schema.KindToOne:
		if len(entries) == 0 {
			p.row[attr.Name] = nil
			return nil
		}
		p.row[attr.Name] = entries[0].value
		next = append(next, relocate(entries[0].pending, fieldPath)...)

	case schema.KindToMany:
		rows := make([]Row, len(entries))
		for j, e := range entries {
			rows[j] = e.value.(Row)
			next = append(next, relocate(e.pending, fmt.Sprintf("%s[%d]", fieldPath, j))...)
		}
		p.row[attr.Name] = rows

	default:
		values := make([]any, len(entries))
		for j, e := range entries {
			values[j] = e.value
		}
		p.row[attr.Name] = values
	}
	return next
}

// relocate prefixes child load paths with base. Loaded entries may be
// shared by several parents with the same key, so pending is copied.
func relocate(pending []pendingLoad, base string) []pendingLoad {
	out := make([]pendingLoad, len(pending))
	for i, p := range pending {
		p.path = joinResultPath(base, p.path)
		out[i] = p
	}
	return out
}

// emptyValue is the value of an association without children.
func emptyValue(attr *schema.Attribute) any {
	switch attr.Kind {
	case schema.KindToOne:
		return nil
	case schema.KindToMany:
		return []Row{}
	default:
		return []any{}
	}
}
