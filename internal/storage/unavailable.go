package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// IsConnError reports whether err looks like a connection-level failure
// rather than a statement-level one. Context cancellation is not a
// connection failure.
func IsConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// Classifier reports backend-specific connection failures that IsConnError
// cannot recognize on its own.
type Classifier func(error) bool

// WrapErr prefixes err with "<kind>: <op>: " and marks it with ErrUnavailable
// when it is a connection failure according to IsConnError or any of extra.
func WrapErr(kind, op string, err error, extra ...Classifier) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%s: %s: %w", kind, op, err)
	}
	unavailable := IsConnError(err)
	for _, fn := range extra {
		if unavailable {
			break
		}
		unavailable = fn != nil && fn(err)
	}
	if unavailable {
		return fmt.Errorf("%s: %s: %w: %w", kind, op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %s: %w", kind, op, err)
}

// errClosed is returned by engines after Close.
func errClosed(kind string) error {
	return fmt.Errorf("%s: %w: engine closed", kind, ErrUnavailable)
}
