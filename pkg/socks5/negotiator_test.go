package socks5

import (
	"bytes"
	"net"
	"testing"
)

// pipeConn pairs two ends of an in-memory connection so negotiate can
// be exercised without a real socket.
func pipeConn(t *testing.T) (client, server net.Conn) {
	t.Helper()
	c, s := net.Pipe()
	return c, s
}

type staticCreds map[string]string

func (s staticCreds) Verify(username, password string) bool {
	p, ok := s[username]
	return ok && p == password
}

func TestNegotiateNoAuthSingleServerHello(t *testing.T) {
	client, server := pipeConn(t)
	defer client.Close()
	defer server.Close()

	settings := AuthSettings{SelectedMethod: AuthNone}
	errCh := make(chan error, 1)
	go func() {
		errCh <- negotiate(newPhaseConn(server), ClientHello{Version: 5, Methods: []AuthMethod{AuthNone}}, settings)
	}()

	buf := make([]byte, 2)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, []byte{0x05, 0x00}) {
		t.Fatalf("server hello = %v, want [5 0]", buf)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("negotiate: %v", err)
	}
}

func TestNegotiateNoAcceptableAuth(t *testing.T) {
	client, server := pipeConn(t)
	defer client.Close()
	defer server.Close()

	settings := AuthSettings{SelectedMethod: AuthPassword, Credentials: staticCreds{}}
	errCh := make(chan error, 1)
	go func() {
		errCh <- negotiate(newPhaseConn(server), ClientHello{Version: 5, Methods: []AuthMethod{AuthNone}}, settings)
	}()

	buf := make([]byte, 2)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, []byte{0x05, 0xFF}) {
		t.Fatalf("server hello = %v, want [5 255]", buf)
	}
	if err := <-errCh; err != ErrNoAcceptableAuth {
		t.Fatalf("err = %v, want ErrNoAcceptableAuth", err)
	}
}

func TestNegotiateUserPassSuccess(t *testing.T) {
	client, server := pipeConn(t)
	defer client.Close()
	defer server.Close()

	settings := AuthSettings{SelectedMethod: AuthPassword, Credentials: staticCreds{"alice": "wonder"}}
	errCh := make(chan error, 1)
	go func() {
		errCh <- negotiate(newPhaseConn(server), ClientHello{Version: 5, Methods: []AuthMethod{AuthPassword}}, settings)
	}()

	hello := make([]byte, 2)
	if _, err := client.Read(hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if !bytes.Equal(hello, []byte{0x05, 0x02}) {
		t.Fatalf("server hello = %v, want [5 2]", hello)
	}

	if _, err := client.Write([]byte{0x01, 0x05, 'a', 'l', 'i', 'c', 'e', 0x06, 'w', 'o', 'n', 'd', 'e', 'r'}); err != nil {
		t.Fatalf("write auth: %v", err)
	}

	resp := make([]byte, 2)
	if _, err := client.Read(resp); err != nil {
		t.Fatalf("read resp: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x01, 0x00}) {
		t.Fatalf("resp = %v, want [1 0]", resp)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("negotiate: %v", err)
	}
}

func TestNegotiateUserPassFailure(t *testing.T) {
	client, server := pipeConn(t)
	defer client.Close()
	defer server.Close()

	settings := AuthSettings{SelectedMethod: AuthPassword, Credentials: staticCreds{"alice": "wonder"}}
	errCh := make(chan error, 1)
	go func() {
		errCh <- negotiate(newPhaseConn(server), ClientHello{Version: 5, Methods: []AuthMethod{AuthPassword}}, settings)
	}()

	hello := make([]byte, 2)
	client.Read(hello)

	if _, err := client.Write([]byte{0x01, 0x05, 'a', 'l', 'i', 'c', 'e', 0x05, 'w', 'r', 'o', 'n', 'g'}); err != nil {
		t.Fatalf("write auth: %v", err)
	}

	resp := make([]byte, 2)
	if _, err := client.Read(resp); err != nil {
		t.Fatalf("read resp: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x01, 0x01}) {
		t.Fatalf("resp = %v, want [1 1]", resp)
	}
	if err := <-errCh; err != ErrFailedAuth {
		t.Fatalf("err = %v, want ErrFailedAuth", err)
	}
}

func TestCredentialsMatchDelegatesToStore(t *testing.T) {
	store := staticCreds{"bob": "s3cret"}
	if !credentialsMatch(store, "bob", "s3cret") {
		t.Error("expected match")
	}
	if credentialsMatch(store, "bob", "wrong") {
		t.Error("expected mismatch")
	}
	if credentialsMatch(store, "nobody", "whatever") {
		t.Error("expected mismatch for unknown user")
	}
	if credentialsMatch(nil, "bob", "s3cret") {
		t.Error("expected mismatch for nil store")
	}
}
