package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	refused := &url.Error{Op: "Get", URL: "http://10.0.0.1/api", Err: errors.New("connection refused")}
	dns := &net.DNSError{Err: "no such host", Name: "api.example.com"}

	assert.True(t, IsTransient(refused))
	assert.True(t, IsTransient(dns))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("poll: %w", refused)), "wrapped transport errors still classify")

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(ErrUnauthorized))
	assert.False(t, IsTransient(errors.New("malformed payload")))

	// Cancellation during shutdown must not read as a network outage.
	canceled := &url.Error{Op: "Get", URL: "http://10.0.0.1/api", Err: context.Canceled}
	assert.False(t, IsTransient(canceled))
	assert.False(t, IsTransient(context.Canceled))
}
