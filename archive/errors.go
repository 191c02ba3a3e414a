package archive

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classifying archive storage failures. Use
// errors.Is(err, ErrXxx) rather than string matching.
var (
	// ErrPermissionDenied indicates a permission failure (EACCES, 403).
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound indicates the target resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDiskFull indicates the backend is out of space (ENOSPC).
	ErrDiskFull = errors.New("no space left on device")
	// ErrTimeout indicates the operation timed out.
	ErrTimeout = errors.New("operation timed out")
	// ErrThrottled indicates backend rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")
	// ErrAuth indicates missing or invalid credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrNetwork indicates a network-level failure.
	ErrNetwork = errors.New("network error")
)

// StorageError wraps a backend failure with its classification, keeping
// the original error in the chain for errors.As.
type StorageError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the classification sentinel.
func (e *StorageError) Is(target error) bool { return errors.Is(e.Kind, target) }

// wrapStorageError classifies and wraps a backend error. Returns nil when
// err is nil.
func wrapStorageError(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: classify(err), Op: op, Path: path, Err: err}
}

// classify maps an error to its sentinel by type, then by message pattern.
func classify(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	has := func(subs ...string) bool {
		for _, sub := range subs {
			if strings.Contains(msg, strings.ToLower(sub)) {
				return true
			}
		}
		return false
	}
	switch {
	case has("permission denied", "EACCES", "AccessDenied", "Forbidden", "403"):
		return ErrPermissionDenied
	case has("no such file", "does not exist", "not found", "ENOENT", "404", "NoSuchKey"):
		return ErrNotFound
	case has("no space left", "disk full", "ENOSPC", "quota exceeded"):
		return ErrDiskFull
	case has("timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case has("SlowDown", "rate exceeded", "throttl", "429", "TooManyRequests"):
		return ErrThrottled
	case has("NoCredentialProviders", "credentials", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "ExpiredToken", "401", "Unauthorized"):
		return ErrAuth
	case has("connection refused", "no route to host", "network unreachable",
		"dns", "dial tcp", "i/o timeout"):
		return ErrNetwork
	default:
		return errors.New("storage error")
	}
}
