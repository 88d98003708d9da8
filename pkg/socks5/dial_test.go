package socks5

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestClassifyDialErrorErrno(t *testing.T) {
	tests := []struct {
		err  error
		want Reply
	}{
		{&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ReplyConnRefused},
		{&net.OpError{Op: "dial", Err: syscall.ENETUNREACH}, ReplyNetUnreachable},
		{&net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, ReplyHostUnreachable},
	}
	for _, tc := range tests {
		got, ok := classifyDialError(tc.err)
		if !ok {
			t.Errorf("classifyDialError(%v): not classified", tc.err)
			continue
		}
		if got != tc.want {
			t.Errorf("classifyDialError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestClassifyDialErrorWrapped(t *testing.T) {
	wrapped := wrapIO(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED})
	got, ok := classifyDialError(wrapped)
	if !ok || got != ReplyConnRefused {
		t.Errorf("wrapped errno: got (%v, %v), want (ConnRefused, true)", got, ok)
	}
}

func TestClassifyDialErrorSubstringFallback(t *testing.T) {
	tests := []struct {
		msg  string
		want Reply
	}{
		{"dial tcp 10.0.0.1:80: connect: connection refused", ReplyConnRefused},
		{"dial tcp [fd00::1]:80: connect: network is unreachable", ReplyNetUnreachable},
		{"dial tcp 10.1.2.3:80: connect: no route to host", ReplyHostUnreachable},
	}
	for _, tc := range tests {
		got, ok := classifyDialError(errors.New(tc.msg))
		if !ok || got != tc.want {
			t.Errorf("%q: got (%v, %v), want (%v, true)", tc.msg, got, ok, tc.want)
		}
	}
}

func TestClassifyDialErrorUnknown(t *testing.T) {
	if _, ok := classifyDialError(fmt.Errorf("something else entirely")); ok {
		t.Error("expected unclassified error to report ok=false")
	}
	if _, ok := classifyDialError(nil); ok {
		t.Error("expected nil error to report ok=false")
	}
}

func TestReplyForErrorFallsBackToServerFail(t *testing.T) {
	if got := replyForError(errors.New("disk on fire")); got != ReplySocksServerFail {
		t.Errorf("got %v, want SocksServerFail", got)
	}
	if got := replyForError(wrapIO(errors.New("i/o timeout"))); got != ReplySocksServerFail {
		t.Errorf("got %v, want SocksServerFail", got)
	}
}

func TestDialUpstreamIPv4(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	dest := DestinationAddress{Type: AddrIPv4, IP: addr.IP.To4()}
	conn, err := dialUpstream(t.Context(), &net.Dialer{}, dest, uint16(addr.Port))
	if err != nil {
		t.Fatalf("dialUpstream: %v", err)
	}
	conn.Close()
}

func TestDialUpstreamDomain(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	dest := DestinationAddress{Type: AddrDomain, Domain: "localhost"}
	conn, err := dialUpstream(t.Context(), &net.Dialer{}, dest, port)
	if err != nil {
		t.Skipf("localhost resolution unavailable: %v", err)
	}
	conn.Close()
}
