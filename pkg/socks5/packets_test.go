package socks5

import (
	"bytes"
	mrand "math/rand"
	"net"
	"testing"
)

func TestParseClientHelloAcceptsValidGreetings(t *testing.T) {
	cases := [][]byte{
		{0x05, 0x01, 0x00},
		{0x05, 0x02, 0x00, 0x02},
		{0x05, 0x03, 0x00, 0x01, 0x02},
	}
	for _, b := range cases {
		hello, err := ParseClientHello(b)
		if err != nil {
			t.Fatalf("ParseClientHello(%v): %v", b, err)
		}
		if hello.Version != 0x05 {
			t.Errorf("version = %d, want 5", hello.Version)
		}
		if len(hello.Methods) == 0 {
			t.Errorf("expected at least one method, got none for %v", b)
		}
	}
}

func TestParseClientHelloDropsUnrecognizedMethods(t *testing.T) {
	// method list: NoAuth(0x00), unknown(0x7F), Password(0x02)
	b := []byte{0x05, 0x03, 0x00, 0x7F, 0x02}
	hello, err := ParseClientHello(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []AuthMethod{AuthNone, AuthPassword}
	if len(hello.Methods) != len(want) {
		t.Fatalf("methods = %v, want %v", hello.Methods, want)
	}
	for i, m := range want {
		if hello.Methods[i] != m {
			t.Errorf("methods[%d] = %v, want %v", i, hello.Methods[i], m)
		}
	}
}

func TestParseClientHelloRejectsWrongVersion(t *testing.T) {
	_, err := ParseClientHello([]byte{0x04, 0x01, 0x00})
	if err == nil {
		t.Fatal("expected error for version != 5")
	}
	pe, ok := err.(*ProtoError)
	if !ok || pe.Kind() != KindUnexpectedProtocolVersion {
		t.Errorf("got %v, want KindUnexpectedProtocolVersion", err)
	}
}

func TestParseClientHelloRejectsShortBuffer(t *testing.T) {
	for _, b := range [][]byte{{}, {0x05}, {0x05, 0x01}} {
		if _, err := ParseClientHello(b); err == nil {
			t.Errorf("expected error for short buffer %v", b)
		}
	}
}

func TestParseClientHelloRejectsZeroMethods(t *testing.T) {
	_, err := ParseClientHello([]byte{0x05, 0x00})
	if err == nil {
		t.Fatal("expected error for zero methods")
	}
}

func TestSerializeServerHello(t *testing.T) {
	got := SerializeServerHello(AuthNone)
	want := []byte{0x05, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseClientUserPassAuth(t *testing.T) {
	b := []byte{0x01, 0x05, 'a', 'l', 'i', 'c', 'e', 0x06, 'w', 'o', 'n', 'd', 'e', 'r'}
	auth, err := ParseClientUserPassAuth(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth.Username != "alice" || auth.Password != "wonder" {
		t.Errorf("got %+v", auth)
	}
}

func TestParseClientUserPassAuthRejectsShortBuffer(t *testing.T) {
	if _, err := ParseClientUserPassAuth([]byte{0x01, 0x00}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSerializeServerUserPassResponse(t *testing.T) {
	if got, want := SerializeServerUserPassResponse(true), []byte{0x01, 0x00}; !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := SerializeServerUserPassResponse(false), []byte{0x01, 0x01}; !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseClientRequestIPv4(t *testing.T) {
	b := []byte{0x05, 0x01, 0x00, 0x01, 127, 0, 0, 1, 0x1F, 0x90} // port 8080
	req, err := ParseClientRequest(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Command != CmdConnect {
		t.Errorf("command = %v, want Connect", req.Command)
	}
	if !req.DestinationAddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Errorf("addr = %v, want 127.0.0.1", req.DestinationAddr.IP)
	}
	if req.DestinationPort != 8080 {
		t.Errorf("port = %d, want 8080", req.DestinationPort)
	}
}

func TestParseClientRequestDomainPortOffsetNotTrailingBytes(t *testing.T) {
	// The port must be located by offset from the declared address
	// form, not by slicing the last two bytes of the buffer. Construct
	// a domain request and make sure trailing garbage after the real
	// packet doesn't corrupt the port.
	domain := "example.com"
	b := []byte{0x05, 0x01, 0x00, 0x03, byte(len(domain))}
	b = append(b, []byte(domain)...)
	b = append(b, 0x00, 0x50) // port 80, the real packet ends here
	b = append(b, 0xDE, 0xAD) // trailing garbage; the last two bytes are not the port

	req, err := ParseClientRequest(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.DestinationAddr.Domain != domain {
		t.Errorf("domain = %q, want %q", req.DestinationAddr.Domain, domain)
	}
	if req.DestinationPort != 80 {
		t.Errorf("port = %d, want 80", req.DestinationPort)
	}
}

func TestParseClientRequestRandomizedFields(t *testing.T) {
	rnd := mrand.New(mrand.NewSource(1))
	letters := []byte("abcdefghijklmnopqrstuvwxyz0123456789-.")
	for i := 0; i < 200; i++ {
		dlen := 1 + rnd.Intn(255)
		domain := make([]byte, dlen)
		for j := range domain {
			domain[j] = letters[rnd.Intn(len(letters))]
		}
		port := uint16(rnd.Intn(1 << 16))

		b := []byte{0x05, 0x01, byte(rnd.Intn(256)), 0x03, byte(dlen)}
		b = append(b, domain...)
		b = append(b, byte(port>>8), byte(port))

		req, err := ParseClientRequest(b)
		if len(b) < 10 {
			// Domains shorter than 3 bytes give a packet under the
			// parser's 10-byte minimum, which it rejects.
			if err == nil {
				t.Fatalf("iteration %d: %d-byte packet accepted, want buffer-too-short error", i, len(b))
			}
			continue
		}
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if req.DestinationAddr.Domain != string(domain) {
			t.Fatalf("iteration %d: domain = %q, want %q", i, req.DestinationAddr.Domain, domain)
		}
		if req.DestinationPort != port {
			t.Fatalf("iteration %d: port = %d, want %d", i, req.DestinationPort, port)
		}
	}
}

func TestParseClientRequestRejectsShortBuffer(t *testing.T) {
	for _, b := range [][]byte{{}, {0x05, 0x01, 0x00, 0x01}, make([]byte, 9)} {
		if _, err := ParseClientRequest(b); err == nil {
			t.Errorf("expected error for short buffer len=%d", len(b))
		}
	}
}

func TestParseClientRequestCommandClassification(t *testing.T) {
	base := func(cmd byte) []byte {
		return []byte{0x05, cmd, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	}
	tests := []struct {
		cmd  byte
		want Reply
	}{
		{0x02, ReplyCmdNotSupported}, // BIND
		{0x03, ReplyCmdNotSupported}, // UDP ASSOCIATE
		{0x09, ReplyCmdNotSupported}, // unknown
	}
	for _, tc := range tests {
		_, err := ParseClientRequest(base(tc.cmd))
		if err == nil {
			t.Fatalf("cmd %d: expected error", tc.cmd)
		}
		if got := replyForError(err); got != tc.want {
			t.Errorf("cmd %d: reply = %v, want %v", tc.cmd, got, tc.want)
		}
	}
}

func TestParseClientRequestUnknownAddressType(t *testing.T) {
	b := []byte{0x05, 0x01, 0x00, 0x7F, 0, 0, 0, 0, 0, 0}
	_, err := ParseClientRequest(b)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := replyForError(err); got != ReplyAddrTypeNotSupported {
		t.Errorf("reply = %v, want AddrTypeNotSupported", got)
	}
}

func TestParseClientRequestRejectsWrongVersion(t *testing.T) {
	b := []byte{0x04, 0x01, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	_, err := ParseClientRequest(b)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := replyForError(err); got != ReplySocksServerFail {
		t.Errorf("reply = %v, want SocksServerFail", got)
	}
}

func TestSerializeServerReplyAlwaysZeroReservedAndVersion5(t *testing.T) {
	r := ServerReply{
		Version:   socksVersion,
		Reply:     ReplySucceeded,
		BoundAddr: DestinationAddress{Type: AddrIPv4, IP: net.IPv4(10, 0, 0, 1)},
		BoundPort: 1080,
	}
	out := SerializeServerReply(r)
	if out[0] != 0x05 {
		t.Errorf("version byte = %d, want 5", out[0])
	}
	if out[2] != 0x00 {
		t.Errorf("reserved byte = %d, want 0", out[2])
	}
}

func TestNewFailureReplyIsWellFormed(t *testing.T) {
	out := SerializeServerReply(NewFailureReply(ReplyConnRefused))
	want := []byte{0x05, byte(ReplyConnRefused), 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestSerializeServerReplyIPv6(t *testing.T) {
	ip := net.ParseIP("::1")
	r := ServerReply{
		Version:   socksVersion,
		Reply:     ReplySucceeded,
		BoundAddr: DestinationAddress{Type: AddrIPv6, IP: ip},
		BoundPort: 443,
	}
	out := SerializeServerReply(r)
	if len(out) != 4+16+2 {
		t.Fatalf("length = %d, want %d", len(out), 4+16+2)
	}
	if out[3] != byte(AddrIPv6) {
		t.Errorf("atyp = %d, want IPv6", out[3])
	}
}
