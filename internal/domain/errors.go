package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors.
var (
	// ErrFetchFailed is the kind of an item whose bytes could not be retrieved.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrStorageFailed is the kind of an item whose fetched bytes could not be
	// moved into the cache.
	ErrStorageFailed = errors.New("storage failed")

	// ErrNothingToPresent is returned when a batch produced no viewable items.
	ErrNothingToPresent = errors.New("nothing to present")

	// ErrNoItems is returned when a batch is submitted without items.
	ErrNoItems = errors.New("no items provided")

	// ErrEmptySource is returned when an item has no source locator.
	ErrEmptySource = errors.New("item source cannot be empty")

	// ErrLocalSource is returned when a queued item names a file on the server.
	ErrLocalSource = errors.New("local file sources are not accepted")

	// ErrBatchNotFound is returned when a batch cannot be found.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrNoBatches is returned when there are no queued batches to process.
	ErrNoBatches = errors.New("no batches available")

	// ErrStaleGeneration is returned when a run finishes after its batch was refreshed.
	ErrStaleGeneration = errors.New("batch was refreshed during processing")

	// ErrItemNotFound is returned when a materialized item index is out of range.
	ErrItemNotFound = errors.New("materialized item not found")
)

// FailureKind classifies why a single item did not materialize.
type FailureKind string

const (
	FailureFetch   FailureKind = "fetch"
	FailureStorage FailureKind = "storage"
)

// ItemError wraps the cause of a single item failure.
type ItemError struct {
	Source string
	Kind   FailureKind
	Err    error
}

func (e *ItemError) Error() string {
	return string(e.Kind) + " [" + e.Source + "]: " + e.Err.Error()
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the failure kind.
func (e *ItemError) Is(target error) bool {
	switch target {
	case ErrFetchFailed:
		return e.Kind == FailureFetch
	case ErrStorageFailed:
		return e.Kind == FailureStorage
	}
	return false
}

// NewFetchError creates an ItemError of kind fetch.
func NewFetchError(source string, err error) *ItemError {
	return &ItemError{Source: source, Kind: FailureFetch, Err: err}
}

// NewStorageError creates an ItemError of kind storage.
func NewStorageError(source string, err error) *ItemError {
	return &ItemError{Source: source, Kind: FailureStorage, Err: err}
}

// DownloadError aggregates the failures of a batch, keyed by source locator.
type DownloadError struct {
	Failures map[string]error
}

// NewDownloadError returns nil when failures is empty.
func NewDownloadError(failures map[string]error) *DownloadError {
	if len(failures) == 0 {
		return nil
	}
	return &DownloadError{Failures: failures}
}

// Len returns the number of failed sources.
func (e *DownloadError) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Failures)
}

// Sources returns the failed source locators in sorted order.
func (e *DownloadError) Sources() []string {
	if e == nil {
		return nil
	}
	sources := make([]string, 0, len(e.Failures))
	for s := range e.Failures {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

func (e *DownloadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "download failed for %d item(s)", len(e.Failures))
	for i, s := range e.Sources() {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(e.Failures[s].Error())
	}
	return b.String()
}

func (e *DownloadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, s := range e.Sources() {
		errs = append(errs, e.Failures[s])
	}
	return errs
}

// Messages flattens the failures into source -> message for serialization.
func (e *DownloadError) Messages() map[string]string {
	if e == nil {
		return nil
	}
	out := make(map[string]string, len(e.Failures))
	for s, err := range e.Failures {
		out[s] = err.Error()
	}
	return out
}

// PresentationError is returned when a batch has nothing that can be shown.
// Err is the download error that caused it, when there was one.
type PresentationError struct {
	Err error
}

func (e *PresentationError) Error() string {
	if e.Err == nil {
		return ErrNothingToPresent.Error()
	}
	return ErrNothingToPresent.Error() + ": " + e.Err.Error()
}

func (e *PresentationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNothingToPresent}
	}
	return []error{ErrNothingToPresent, e.Err}
}
