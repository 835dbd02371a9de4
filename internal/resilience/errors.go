// Package resilience provides bounded retries for flaky source-file reads.
// One corrupt or briefly unreadable file must never fail a whole pool.
package resilience

import (
	"errors"
	"io"
	"strings"
	"syscall"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as explicitly transient.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// IsTransient reports whether the error (or any error in its chain) is
// worth retrying. File reads fail transiently on interrupted syscalls,
// contended handles and short reads; malformed CSV or a missing file will
// not get better on a second attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EIO) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"resource temporarily unavailable",
		"input/output error",
		"interrupted system call",
		"file is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// IsGzipFormat reports whether the error looks like a gzip framing problem.
// Some upstream exports carry a non-standard gzip header that the standard
// reader rejects but a raw-inflate of the payload tolerates.
func IsGzipFormat(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "gzip") ||
		strings.Contains(msg, "invalid header") ||
		strings.Contains(msg, "unexpected eof") ||
		strings.Contains(msg, "checksum")
}
