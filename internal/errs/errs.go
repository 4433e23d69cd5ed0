// Package errs defines the error taxonomy shared by the patch engine.
//
// Every error the engine returns belongs to exactly one kind:
//
//   - [InputError]: malformed external input (bad magic, truncated instruction, ...)
//   - [IntegrityError]: well-formed input that is internally inconsistent
//   - [UsageError]: the caller used the API out of order
//   - [ResourceError]: an I/O or allocation failure bubbled up from the host
//
// Callers should use [errors.Is] against the kind sentinels (or the specific
// condition sentinels below); the one-line detail is part of the error's
// message.
package errs

import (
	"errors"
	"fmt"
)

// Kind sentinels. Wrapped errors satisfy errors.Is against exactly one of these.
var (
	InputError     = errors.New("input error")
	IntegrityError = errors.New("integrity error")
	UsageError     = errors.New("usage error")
	ResourceError  = errors.New("resource error")
)

// Sentinel conditions, each belonging to one kind above.
var (
	ErrBadMagic             = fmt.Errorf("%w: bad magic", InputError)
	ErrUnsupportedVersion   = fmt.Errorf("%w: unsupported version", InputError)
	ErrTruncatedInstr       = fmt.Errorf("%w: truncated instruction", InputError)
	ErrUnknownOpcode        = fmt.Errorf("%w: unknown opcode", InputError)
	ErrCopyOutOfRange       = fmt.Errorf("%w: copy out of range", InputError)
	ErrSourceSizeMismatch   = fmt.Errorf("%w: source size mismatch", IntegrityError)
	ErrSourceDigestMismatch = fmt.Errorf("%w: source digest mismatch", IntegrityError)
	ErrLengthMismatch       = fmt.Errorf("%w: length mismatch", IntegrityError)
	ErrOutOfOrder           = fmt.Errorf("%w: called out of order", UsageError)
	ErrTargetSizeNotSet     = fmt.Errorf("%w: target size not set", UsageError)
	ErrSourceNotFinalized   = fmt.Errorf("%w: source not finalized", UsageError)
	ErrAlreadyFinalized     = fmt.Errorf("%w: already finalized", UsageError)
)

// Wrap annotates err with a one-line detail, preserving its kind via errors.Is/errors.As.
func Wrap(err error, detail string) error {
	if detail == "" {
		return err
	}

	return fmt.Errorf("%w: %s", err, detail)
}

// Input wraps a detail as an [InputError].
func Input(detail string) error {
	return Wrap(InputError, detail)
}

// Integrity wraps a detail as an [IntegrityError].
func Integrity(detail string) error {
	return Wrap(IntegrityError, detail)
}

// Usage wraps a detail as a [UsageError].
func Usage(detail string) error {
	return Wrap(UsageError, detail)
}

// Resource wraps an underlying I/O/allocation failure as a [ResourceError].
func Resource(detail string, cause error) error {
	if cause == nil {
		return Wrap(ResourceError, detail)
	}

	return fmt.Errorf("%w: %s: %w", ResourceError, detail, cause)
}
