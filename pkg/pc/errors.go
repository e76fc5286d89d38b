package pc

import (
	"errors"

	"github.com/thesyncim/nativertc/internal/interop"
)

var (
	// ErrNotInitialized is returned by operations that need a live native
	// peer connection before InitializeAsync has completed.
	ErrNotInitialized = errors.New("peer connection not initialized")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("peer connection closed")

	// ErrInvalidNativeHandle signals use of a handle after its single
	// release, or a null handle from the engine.
	ErrInvalidNativeHandle = interop.ErrInvalidHandle

	// ErrCrossConnectionTrackReuse is returned when a local track created on
	// one peer connection is attached to a transceiver of another.
	ErrCrossConnectionTrackReuse = errors.New("track belongs to a different peer connection")

	// ErrSctpNotNegotiated is returned when a data channel is added after
	// negotiation completed without any data channel, so no SCTP session
	// was set up.
	ErrSctpNotNegotiated = errors.New("SCTP not negotiated on this connection")

	// ErrInvalidArgument is returned for caller mistakes detected before
	// reaching the engine.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNativeOperationFailed wraps engine status failures that have no
	// more specific mapping.
	ErrNativeOperationFailed = errors.New("native operation failed")

	// ErrOperationCanceled is returned when the context given to
	// InitializeAsync is canceled before initialization completes.
	ErrOperationCanceled = errors.New("operation canceled")
)
