package engine

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxQueries is the default maximum number of queries per request.
// A deep selection issues one batch query per group per tick; the budget
// stops pathological selections from issuing unbounded queries.
const DefaultMaxQueries = 1000

// QueryBudget tracks the queries issued by one request and enforces a
// maximum.
//
// Each request has its own QueryBudget. Check is called before every query
// and is safe for the concurrent batch groups of a tick.
type QueryBudget struct {
	mu         sync.Mutex
	maxQueries int
	current    int
}

// NewQueryBudget creates a budget with the given limit.
// A limit of zero or less disables enforcement.
func NewQueryBudget(maxQueries int) *QueryBudget {
	return &QueryBudget{maxQueries: maxQueries}
}

// Check counts one query and validates against the limit.
//
// Returns BudgetExceededError once the limit is passed.
func (b *QueryBudget) Check(requestID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++
	if b.maxQueries > 0 && b.current > b.maxQueries {
		return &BudgetExceededError{
			RequestID: requestID,
			Queries:   b.current,
			Limit:     b.maxQueries,
		}
	}
	return nil
}

// Current returns the number of queries counted so far.
func (b *QueryBudget) Current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// MaxQueries returns the limit.
func (b *QueryBudget) MaxQueries() int {
	return b.maxQueries
}

// BudgetExceededError is returned when a request exceeds its query budget.
// It aborts the whole request; it is never downgraded to a field error.
type BudgetExceededError struct {
	RequestID string
	Queries   int
	Limit     int
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("request %s exceeded query budget: %d queries > %d limit",
		e.RequestID, e.Queries, e.Limit)
}

// IsBudgetExceededError returns true if the error is a BudgetExceededError.
// Uses errors.As to handle wrapped errors.
func IsBudgetExceededError(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
