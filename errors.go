package boundfetch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/jpalmerr/boundfetch/internal/throttle"
)

// ErrInvalidArgument is returned, wrapped with detail, when a call is given a
// malformed identifier or a concurrency budget below 1. No fetch is issued
// when an argument is invalid.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotDispatched is wrapped by the error of every identifier whose fetch
// was never started because the call was cancelled first.
var ErrNotDispatched = throttle.ErrNotDispatched

// invalidArgument returns an error wrapping [ErrInvalidArgument].
func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// TransportError reports a failed fetch of a single resource.
//
// Err is the transport's error, unchanged. errors.Is and errors.As see
// through a TransportError to it, so a missing local file still satisfies
// errors.Is(err, fs.ErrNotExist).
type TransportError struct {
	// Index is the position of the identifier in the input.
	Index int

	// ID is the resource identifier that failed.
	ID string

	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.ID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AggregateError reports the failures of a bounded fetch.
//
// Failures are sorted by input index. errors.Is and errors.As walk every
// failure, so callers can test for a cause regardless of which resource
// produced it.
type AggregateError struct {
	// Failures holds one entry per failed resource.
	Failures []*TransportError

	// Total is the number of identifiers in the call.
	Total int
}

// First returns the failure with the lowest input index.
func (e *AggregateError) First() *TransportError {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0]
}

func (e *AggregateError) Error() string {
	merr := &multierror.Error{ErrorFormat: e.format}
	for _, f := range e.Failures {
		merr = multierror.Append(merr, f)
	}
	return merr.Error()
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

func (e *AggregateError) format(errs []error) string {
	if len(errs) == 1 {
		return fmt.Sprintf("1 of %d fetches failed: %s", e.Total, errs[0])
	}

	points := make([]string, len(errs))
	for i, err := range errs {
		points[i] = fmt.Sprintf("* %s", err)
	}
	return fmt.Sprintf("%d of %d fetches failed:\n\t%s\n",
		len(errs), e.Total, strings.Join(points, "\n\t"))
}

// asTransportError returns err as a *TransportError for resource i,
// wrapping it when the error came from outside the transport call.
func asTransportError(i int, id string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) && te.Index == i {
		return te
	}
	return &TransportError{Index: i, ID: id, Err: err}
}
