package socks5

import (
	"io"
	"net"
)

// phaseConn wraps a net.Conn with two-pass, header-then-body framing:
// TCP gives no guarantee that one protocol packet arrives per Read, so
// every variable-length packet is read as a fixed header followed by
// exactly its declared remaining length.
type phaseConn struct {
	net.Conn
}

func newPhaseConn(c net.Conn) *phaseConn { return &phaseConn{Conn: c} }

func (c *phaseConn) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.Conn, buf); err != nil {
		return nil, wrapIO(err)
	}
	return buf, nil
}

// readClientHello reads the fixed 2-byte header (version, n_methods)
// then exactly n_methods further bytes.
func (c *phaseConn) readClientHello() ([]byte, error) {
	head, err := c.readFull(2)
	if err != nil {
		return nil, err
	}
	if head[0] != socksVersion {
		// A wrong version byte means the declared method count can't be
		// trusted; hand the short buffer to ParseClientHello, which
		// rejects it, and the connection closes silently.
		return head, nil
	}
	n := int(head[1])
	if n == 0 {
		return head, nil
	}
	rest, err := c.readFull(n)
	if err != nil {
		return nil, err
	}
	return append(head, rest...), nil
}

// readUserPassAuth reads the fixed 2-byte header (version,
// username-length) then the username, the 1-byte password length, and
// the password.
func (c *phaseConn) readUserPassAuth() ([]byte, error) {
	head, err := c.readFull(2)
	if err != nil {
		return nil, err
	}
	if head[0] != userPassVersion {
		return head, nil
	}
	ulen := int(head[1])
	uname, err := c.readFull(ulen)
	if err != nil {
		return nil, err
	}
	plenB, err := c.readFull(1)
	if err != nil {
		return nil, err
	}
	plen := int(plenB[0])
	pass, err := c.readFull(plen)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+ulen+1+plen)
	out = append(out, head...)
	out = append(out, uname...)
	out = append(out, plenB...)
	out = append(out, pass...)
	return out, nil
}

// readClientRequest reads the fixed 4-byte header (version, command,
// reserved, address type), one more byte of the address body (the
// domain length prefix, when the address is a domain), then exactly
// the remaining length the address form declares.
func (c *phaseConn) readClientRequest() ([]byte, error) {
	head, err := c.readFull(4)
	if err != nil {
		return nil, err
	}
	if head[0] != socksVersion {
		return head, nil
	}

	fifth, err := c.readFull(1)
	if err != nil {
		return nil, err
	}
	remaining, ok := requestBodyLen(AddressType(head[3]), fifth[0])
	if !ok {
		// Unknown address type: its body length is undefined, but
		// ParseClientRequest must still see >=10 bytes before it reaches
		// the atyp switch, so read the IPv4-sized remainder. The
		// connection is terminated right after the resulting
		// KindUnknownAddressType error, so exact alignment doesn't
		// matter.
		remaining = 3 + 2
	}
	rest, err := c.readFull(remaining)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 5+remaining)
	out = append(out, head...)
	out = append(out, fifth...)
	out = append(out, rest...)
	return out, nil
}
