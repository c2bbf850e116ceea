package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for extensions outside SupportedFormats.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyFile is returned when a source has no bytes or no rows.
	ErrEmptyFile = errors.New("empty file")

	// ErrMissingColumn is returned when a header lacks a required column.
	ErrMissingColumn = errors.New("missing required column")

	// ErrCorruptFile is returned when a parser cannot decode the source.
	ErrCorruptFile = errors.New("corrupt file")

	// ErrFileTooLarge is returned when a source exceeds the configured size cap.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNotImplemented is returned by the spreadsheet-API channel.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvalidSchedule wraps every schedule validation failure.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrScheduleNotFound is returned when triggering a slot that has no schedule.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInvalidTenant is returned for non-positive tenant ids.
	ErrInvalidTenant = errors.New("invalid restaurant id")

	// ErrJobNotFound is returned when polling an unknown or expired job.
	ErrJobNotFound = errors.New("job not found")
)

// ErrorKind classifies failures by how the engine reacts to them.
type ErrorKind int

const (
	// KindInput: the source cannot be processed; no batch is attempted.
	KindInput ErrorKind = iota + 1
	// KindStore: the catalog store failed; the batch was rolled back.
	KindStore
	// KindSchedule: a schedule request was rejected before persisting.
	KindSchedule
	// KindInternal: anything else.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindStore:
		return "store"
	case KindSchedule:
		return "schedule"
	default:
		return "internal"
	}
}

// SyncError attaches a kind and the failing operation to an error.
type SyncError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first SyncError in err's chain,
// or KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func inputError(op string, err error) error {
	return &SyncError{Kind: KindInput, Op: op, Err: err}
}

func storeError(op string, err error) error {
	return &SyncError{Kind: KindStore, Op: op, Err: err}
}

func scheduleError(format string, args ...any) error {
	return &SyncError{
		Kind: KindSchedule,
		Err:  fmt.Errorf("%w: %s", ErrInvalidSchedule, fmt.Sprintf(format, args...)),
	}
}

// InputError marks err as an input error. Parsers use it for failures
// that make the whole source unusable.
func InputError(op string, err error) error {
	return inputError(op, err)
}
