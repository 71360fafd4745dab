package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// classifyTransportError maps a failure from http.Client.Do to a Kind.
func classifyTransportError(ctx context.Context, err error) Kind {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNoOrBadNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindNoOrBadNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNoOrBadNetwork
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ENETDOWN),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindNoOrBadNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNoOrBadNetwork
	}
	return KindNoRequestMade
}
