package api

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// ErrUnauthorized signals HTTP 401: the device's credentials are no longer
// accepted and the whole device must be re-authenticated.
var ErrUnauthorized = errors.New("api: device unauthorized")

// IsTransient reports whether err is a network-class failure (refused
// connection, DNS, timeout) that a poll loop should retry forever.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return false
	}
	// A call aborted by our own cancellation is a shutdown, not an outage,
	// even when net/http wraps it in a url.Error.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
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
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// url.Error wraps every transport-level failure from net/http.
		return true
	}
	return false
}
