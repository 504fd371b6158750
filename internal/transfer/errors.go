package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrentUse indicates Begin was called on a session that is still active.
	ErrConcurrentUse = errors.New("concurrent transfers are not supported on a single session")
	// ErrSessionFinished indicates the session already reached a terminal state.
	ErrSessionFinished = errors.New("transfer session already finished")
	// ErrTransferTimeout indicates a receive session saw no chunk within the idle limit.
	ErrTransferTimeout = errors.New("transfer timed out")
	// ErrChunkOutOfOrder indicates a chunk arrived with an unexpected index.
	ErrChunkOutOfOrder = errors.New("chunk out of order")
	// ErrChunkSize indicates a chunk payload length that disagrees with the manifest.
	ErrChunkSize = errors.New("chunk length does not match manifest")
	// ErrUnknownTransfer indicates a chunk for a transfer this endpoint is not receiving.
	ErrUnknownTransfer = errors.New("unknown transfer")
	// ErrDuplicateTransfer indicates a second manifest for a transfer id that is in flight.
	ErrDuplicateTransfer = errors.New("transfer already in progress")
	// ErrInvalidManifest indicates a manifest that cannot be received.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrInvalidFileName indicates a file name with path components or reserved names.
	ErrInvalidFileName = errors.New("invalid file name")
)

// IOError wraps a local disk or connection write failure.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// TimeoutError reports how much of a stalled transfer never arrived.
type TimeoutError struct {
	Remaining uint64
	Total     uint64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transfer timed out; %d bytes remaining of total %d", e.Remaining, e.Total)
}

// Is lets errors.Is(err, ErrTransferTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTransferTimeout
}
