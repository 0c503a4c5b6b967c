package downloader

import (
	"context"
	"errors"
	"fmt"
)

// Fetcher retrieves the bytes behind a remote locator into a temporary file.
type Fetcher interface {
	// Fetch downloads locator and returns the path of a temporary file holding
	// its bytes. The caller owns the file and must move or remove it.
	Fetch(ctx context.Context, locator string) (string, error)
}

// FetchFunc adapts an ordinary function to the Fetcher interface.
type FetchFunc func(ctx context.Context, locator string) (string, error)

// Fetch calls f(ctx, locator).
func (f FetchFunc) Fetch(ctx context.Context, locator string) (string, error) {
	return f(ctx, locator)
}

// Fetch errors.
var (
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
	ErrNotFound          = errors.New("remote resource not found")
	ErrForbidden         = errors.New("remote resource forbidden")
	ErrTooLarge          = errors.New("remote resource exceeds size limit")
	ErrNoLocation        = errors.New("fetcher returned no file location")
	ErrStalled           = errors.New("download stalled")
)

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}
