package trader

import (
	"errors"
	"fmt"
)

var (
	// ErrPositionOpen is returned when an entry is attempted while a position is held.
	ErrPositionOpen = errors.New("a position is already open")
	// ErrZeroQuantity is returned when the capital does not buy a single whole unit.
	ErrZeroQuantity = errors.New("order quantity is zero")
	// ErrParametersNotSet is returned when the loop is started before setup.
	ErrParametersNotSet = errors.New("trade parameters are not set")
	// ErrStoredPositionMode is returned when a stored position was opened in the other
	// trading mode: a paper position must not be sold live, a live one not sold on paper.
	ErrStoredPositionMode = errors.New("stored position was opened in a different trading mode")
	// ErrStoredPositionAsset is returned when the stored position is for another asset than the configured one.
	ErrStoredPositionAsset = errors.New("stored position is for a different asset")
)

// DataFetchError is a failed gateway read. The scanner reports it and keeps polling.
type DataFetchError struct {
	Op  string
	Err error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("data fetch failed (%s): %v", e.Op, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// OrderSubmissionError is a rejected or failed market order.
type OrderSubmissionError struct {
	Side     string
	Symbol   string
	Quantity int64
	Err      error
}

func (e *OrderSubmissionError) Error() string {
	return fmt.Sprintf("%s order for %d %s failed: %v", e.Side, e.Quantity, e.Symbol, e.Err)
}

func (e *OrderSubmissionError) Unwrap() error { return e.Err }

// ConfigurationError is an invalid or over-limit setup parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
