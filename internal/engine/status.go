package engine

import (
	"errors"
	"fmt"
)

// Error sentinels matching engine status codes; all support errors.Is.
var (
	ErrInvalidParam      = errors.New("invalid parameter")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrInitFailed        = errors.New("initialization failed")
	ErrOutOfMemory       = errors.New("out of memory")
	ErrNotSupported      = errors.New("not supported")
	ErrNotFound          = errors.New("not found")
	ErrSctpNotNegotiated = errors.New("sctp not negotiated")
	ErrPeerClosed        = errors.New("peer connection closed by engine")
)

// Status codes returned by the engine (int32 to match C int).
const (
	StatusOK                   int32 = 0
	StatusErrInvalidParam      int32 = -1
	StatusErrInvalidOperation  int32 = -2
	StatusErrInitFailed        int32 = -3
	StatusErrOutOfMemory       int32 = -4
	StatusErrNotSupported      int32 = -5
	StatusErrNotFound          int32 = -6
	StatusErrSctpNotNegotiated int32 = -7
	StatusErrPeerClosed        int32 = -8
)

// StatusError converts an engine status code to a Go error. Returns nil for
// StatusOK and sentinel errors supporting errors.Is comparisons otherwise.
func StatusError(code int32) error {
	switch code {
	case StatusOK:
		return nil
	case StatusErrInvalidParam:
		return ErrInvalidParam
	case StatusErrInvalidOperation:
		return ErrInvalidOperation
	case StatusErrInitFailed:
		return ErrInitFailed
	case StatusErrOutOfMemory:
		return ErrOutOfMemory
	case StatusErrNotSupported:
		return ErrNotSupported
	case StatusErrNotFound:
		return ErrNotFound
	case StatusErrSctpNotNegotiated:
		return ErrSctpNotNegotiated
	case StatusErrPeerClosed:
		return ErrPeerClosed
	default:
		return fmt.Errorf("unknown engine status: %d", code)
	}
}
