package gateway

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes gateway failures.
type ErrorCode string

const (
	// ErrCodeFetch indicates the bulk fetch failed.
	ErrCodeFetch ErrorCode = "FETCH_FAILED"

	// ErrCodeWrite indicates an upsert or delete failed.
	ErrCodeWrite ErrorCode = "WRITE_FAILED"

	// ErrCodeSubscription indicates the change feed could not be opened or
	// dropped.
	ErrCodeSubscription ErrorCode = "SUBSCRIPTION_FAILED"
)

// ErrFeedClosed is the cause attached to subscriptions of a closed feed.
var ErrFeedClosed = errors.New("feed closed")

// ErrSlowConsumer is the cause attached to subscriptions dropped because
// their buffer was full.
var ErrSlowConsumer = errors.New("subscriber buffer full")

// Error is a classified gateway failure.
type Error struct {
	Code ErrorCode

	// Op names the failing operation ("fetch", "upsert", "delete_all",
	// "subscribe", "feed").
	Op string

	// ID is the affected record id, if any.
	ID string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewFetchError wraps a bulk fetch failure.
func NewFetchError(err error) *Error {
	return &Error{Code: ErrCodeFetch, Op: "fetch", Err: err}
}

// NewWriteError wraps a failed upsert or delete.
func NewWriteError(op, id string, err error) *Error {
	return &Error{Code: ErrCodeWrite, Op: op, ID: id, Err: err}
}

// NewSubscriptionError wraps a failed or dropped change feed.
func NewSubscriptionError(op string, err error) *Error {
	return &Error{Code: ErrCodeSubscription, Op: op, Err: err}
}

// Code returns the ErrorCode of the first *Error in err's chain, or "".
func Code(err error) ErrorCode {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsFetchError reports whether err is a FETCH_FAILED error.
func IsFetchError(err error) bool {
	return Code(err) == ErrCodeFetch
}

// IsWriteError reports whether err is a WRITE_FAILED error.
func IsWriteError(err error) bool {
	return Code(err) == ErrCodeWrite
}

// IsSubscriptionError reports whether err is a SUBSCRIPTION_FAILED error.
func IsSubscriptionError(err error) bool {
	return Code(err) == ErrCodeSubscription
}
