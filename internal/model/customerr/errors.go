package customerr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by blob storages when nothing is stored under a key.
	ErrNotFound = errors.New("not found")

	ErrInvalidCurrency = errors.New("invalid currency code")
)

// NetworkError means the remote snapshot for Source could not be obtained:
// transport failure, timeout, non-2xx status or malformed body.
type NetworkError struct {
	Source string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch rates for %s: %v", e.Source, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// CorruptionError means persisted snapshot bytes could not be decoded.
// It never leaves the snapshot store.
type CorruptionError struct {
	Key string
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted snapshot %q: %v", e.Key, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// NoDataError means the bundled bootstrap dataset is malformed.
type NoDataError struct {
	Err error
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("bootstrap data unusable: %v", e.Err)
}

func (e *NoDataError) Unwrap() error {
	return e.Err
}
