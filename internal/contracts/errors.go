package contracts

import (
	"errors"
	"fmt"
)

// ErrEmptyUniverse is returned when zero symbols have a rankable 1-month
// change for a date. Fatal for that date's run: there is nothing to rank,
// and producing an empty result set would be silent garbage.
var ErrEmptyUniverse = errors.New("empty universe: no symbols with a rankable 1-month change")

// ErrNoBarData is returned when no bar exists for the target date at all,
// meaning the date is not a trading day or ingestion has not caught up.
// Metrics rows are never created ahead of bar data.
var ErrNoBarData = errors.New("no bar data for target date")

// ErrInsufficientHistory is returned when a symbol has no bar on the
// target date. The symbol is skipped; the batch continues.
var ErrInsufficientHistory = errors.New("insufficient history")

// DataIntegrityError marks a malformed bar sequence for one symbol
// (non-monotonic dates, impossible OHLC ordering). The symbol is skipped
// for the date and excluded from the cross-sectional universe.
type DataIntegrityError struct {
	Symbol string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s: %s", e.Symbol, e.Reason)
}

// PersistenceError wraps a failed store write after retries are exhausted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
