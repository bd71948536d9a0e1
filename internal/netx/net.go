// Package netx classifies network-layer failures. The transport layer uses
// it to decide between "the server said no" and "the server is unreachable";
// nothing else in the client is allowed to inspect error text to make that
// call.
package netx

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// IsTransient reports whether err is a transport-level failure: timeouts,
// refused or reset connections, DNS failures, or an interrupted body read.
// Transient failures trigger the offline fallback; they are never treated
// as authentication failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// unwrap and re-classify the cause
		return IsTransient(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	return false
}
