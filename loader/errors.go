package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned synchronously by Request for a
	// malformed URL, a non-positive target size or a nil callback.
	ErrInvalidInput = errors.New("invalid input")
	// ErrQueueFull is returned when the job queue has no room left.
	ErrQueueFull = errors.New("loader queue full")
	// ErrClosed is returned by Request after Close.
	ErrClosed = errors.New("loader closed")

	// ErrNetwork and ErrDecode match a *FetchError of the
	// corresponding Kind with errors.Is.
	ErrNetwork = errors.New("network error")
	ErrDecode  = errors.New("decode error")
)

// Kind says which stage of a fetch failed.
type Kind int

const (
	KindNetwork Kind = iota
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FetchError is delivered to every waiter of a fetch that failed.
type FetchError struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
