// Package intentlog records write-ahead intents for the two-store lending
// write. An intent is recorded before the book and patron stores are
// touched, cleared once both writes land, and flagged divergent when a
// compensation attempt fails. Outstanding records are what an operator
// reconciles after a crash or a partial failure.
package intentlog

import (
	"context"
	"time"
)

// Op names the lending operation an intent belongs to.
type Op string

const (
	OpCheckout Op = "checkout"
	OpReturn   Op = "return"
)

// Status of a recorded intent.
const (
	StatusPending   = "pending"
	StatusDivergent = "divergent"
)

// Record is one outstanding intent.
type Record struct {
	Op        Op        `json:"op"`
	BookID    string    `json:"bookId"`
	PatronID  string    `json:"patronId"`
	Status    string    `json:"status"`
	Cause     string    `json:"cause,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Log is the write-ahead intent contract consumed by the coordinator.
type Log interface {
	// Begin records a pending intent before the two-store write starts.
	Begin(ctx context.Context, op Op, bookID, patronID string) error
	// Complete clears the intent after both stores agree.
	Complete(ctx context.Context, op Op, bookID, patronID string) error
	// MarkDivergent pins the intent as divergent when compensation failed
	// and the stores disagree.
	MarkDivergent(ctx context.Context, op Op, bookID, patronID, cause string) error
	// Pending lists outstanding intents for reconciliation.
	Pending(ctx context.Context) ([]Record, error)
}

// Noop satisfies Log when no intent store is configured.
type Noop struct{}

func (Noop) Begin(context.Context, Op, string, string) error                 { return nil }
func (Noop) Complete(context.Context, Op, string, string) error              { return nil }
func (Noop) MarkDivergent(context.Context, Op, string, string, string) error { return nil }
func (Noop) Pending(context.Context) ([]Record, error)                       { return nil, nil }
