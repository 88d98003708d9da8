package socks5

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"syscall"
)

// dialUpstream opens the upstream TCP flow for a Connect request. For
// IPv4/IPv6 destinations it dials directly; for domain names it lets
// the dialer resolve and try each resolved address in order until one
// connects or all have failed.
func dialUpstream(ctx context.Context, d *net.Dialer, dest DestinationAddress, port uint16) (net.Conn, error) {
	if dest.Type != AddrDomain {
		addr := net.JoinHostPort(dest.IP.String(), portString(port))
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, wrapIO(err)
		}
		return conn, nil
	}

	addr := net.JoinHostPort(dest.Domain, portString(port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, wrapIO(err)
	}
	return conn, nil
}

func portString(p uint16) string {
	return strconv.Itoa(int(p))
}

// classifyDialError inspects a dial failure and, when the platform
// exposes a distinguishable cause, returns the specific RFC 1928 reply
// code (connection refused, network unreachable, host unreachable).
// Returns ok=false when no such cause is distinguishable, in which case
// the caller falls back to ReplySocksServerFail.
func classifyDialError(err error) (Reply, bool) {
	if err == nil {
		return 0, false
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReplyConnRefused, true
	case errors.Is(err, syscall.ENETUNREACH):
		return ReplyNetUnreachable, true
	case errors.Is(err, syscall.EHOSTUNREACH):
		return ReplyHostUnreachable, true
	}

	// Fall back to substring matching for wrapped errors that don't
	// surface a syscall.Errno (e.g. resolution failures bundled by
	// net.Dialer).
	msg := err.Error()
	switch {
	case strings.Contains(msg, "refused"):
		return ReplyConnRefused, true
	case strings.Contains(msg, "network is unreachable"):
		return ReplyNetUnreachable, true
	case strings.Contains(msg, "no route to host"), strings.Contains(msg, "host is unreachable"):
		return ReplyHostUnreachable, true
	}

	return 0, false
}
