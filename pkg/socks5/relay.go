package socks5

import (
	"context"
	"io"
	"net"
)

const relayBufferSize = 32 * 1024

// halfCloser is implemented by net.TCPConn and similarly capable
// connections; it lets one relay direction signal orderly end-of-stream
// to its peer without tearing down the other direction.
type halfCloser interface {
	CloseWrite() error
}

// Relay copies bytes concurrently in both directions between client and
// upstream until both directions have ended. Neither direction's I/O
// error is fatal to the connection: each copy loop
// simply stops, its destination's write half is half-closed if
// possible, and Relay returns once both loops have completed. onBytes,
// if non-nil, is invoked after each direction finishes with the number
// of bytes copied in that direction ("client->upstream" /
// "upstream->client").
func Relay(ctx context.Context, client, upstream net.Conn, onBytes func(direction string, n int64)) error {
	done := make(chan error, 2)

	go func() {
		n, err := copyDirection(upstream, client)
		if onBytes != nil {
			onBytes("client->upstream", n)
		}
		done <- err
	}()
	go func() {
		n, err := copyDirection(client, upstream)
		if onBytes != nil {
			onBytes("upstream->client", n)
		}
		done <- err
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// copyDirection copies from src to dst until src reaches EOF or either
// side errors, then half-closes dst's write side so its peer observes
// a clean end-of-stream.
func copyDirection(dst, src net.Conn) (int64, error) {
	buf := make([]byte, relayBufferSize)
	n, err := io.CopyBuffer(dst, src, buf)
	if hc, ok := dst.(halfCloser); ok {
		_ = hc.CloseWrite()
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}
