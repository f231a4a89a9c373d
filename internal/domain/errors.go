package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey is returned by a store when a create hits the dedup key uniqueness constraint.
	ErrDuplicateKey = errors.New("deal with this dedup key already exists")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("deal not found")
	// ErrStoreUnavailable marks a store that cannot serve any request.
	ErrStoreUnavailable = errors.New("deal store unavailable")
	// ErrUnknownSource is returned for a job whose source key is not configured.
	ErrUnknownSource = errors.New("unknown source")
	// ErrUnknownFetcher is returned when a fetcher reference is not registered.
	ErrUnknownFetcher = errors.New("unknown fetcher")
	// ErrQueueEmpty is returned by a queue with no visible job.
	ErrQueueEmpty = errors.New("no visible job in queue")
)

// FetchError fails a whole source for the current cycle.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch source %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NormalizationError means one raw item could not become a valid NormalizedDeal.
type NormalizationError struct {
	Source string
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("normalize item from %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("normalize item from %s: %s %s", e.Source, e.Field, e.Reason)
}

// PersistenceError wraps a store failure for a single operation.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
