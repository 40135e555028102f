// Package state persists the bot's single cycle record so that an
// in-flight withdrawal survives a process restart.
package state

import (
	"context"
	"fmt"
)

// CycleRecord is the durable snapshot of the current cycle. Exactly one
// record exists at any time; each new cycle overwrites it. The JSON
// field names are the on-disk and HTTP wire format and must not change.
type CycleRecord struct {
	// Iteration counts completed mint cycles and feeds the token symbol.
	Iteration int `json:"iteration"`
	// CreatedTokenAddress is the mint of the most recent token, nil
	// before the first cycle.
	CreatedTokenAddress *string `json:"createdTokenAddress"`
	// CurrentPoolID is the pool seeded in the current cycle.
	CurrentPoolID *string `json:"currentPoolId"`
	// CurrentPositionID identifies the liquidity position when the pool
	// protocol uses one (nil for protocols tracked by LP balance).
	CurrentPositionID *string `json:"currentPositionId"`
	// LiquidityWithdrawn reports whether the current cycle's liquidity
	// has been pulled back out.
	LiquidityWithdrawn bool `json:"liquidityWithdrawn"`
	// WithdrawAt is the scheduled withdrawal time as unix seconds,
	// nil once the withdrawal has completed.
	WithdrawAt *int64 `json:"withdrawAt,omitempty"`
}

// Default returns the record a fresh deployment starts from.
func Default() *CycleRecord {
	return &CycleRecord{
		Iteration:          0,
		LiquidityWithdrawn: true,
	}
}

// Clone returns a deep copy so callers can mutate freely.
func (r *CycleRecord) Clone() *CycleRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.CreatedTokenAddress = cloneString(r.CreatedTokenAddress)
	out.CurrentPoolID = cloneString(r.CurrentPoolID)
	out.CurrentPositionID = cloneString(r.CurrentPositionID)
	if r.WithdrawAt != nil {
		at := *r.WithdrawAt
		out.WithdrawAt = &at
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// String returns a pointer to s, for building records.
func String(s string) *string {
	return &s
}

// Store reads and writes the single cycle record.
type Store interface {
	// Read returns the current record. A store with no record yet
	// returns the default record and persists it.
	Read(ctx context.Context) (*CycleRecord, error)
	// Write replaces the record durably before returning.
	Write(ctx context.Context, record *CycleRecord) error
}

// WriteError wraps a failed persist attempt.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write cycle record: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
