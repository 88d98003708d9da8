package socks5

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
)

// Timeouts bounds the blocking points of the protocol phases, to
// guard against slowloris-style exhaustion. A zero Greeting, Auth or
// Request value disables that phase's read deadline; a zero Dial leaves
// only the dialer's own timeout, which NewDispatcher sets to 10 seconds.
type Timeouts struct {
	Greeting time.Duration
	Auth     time.Duration
	Request  time.Duration
	Dial     time.Duration
}

// Observer receives diagnostic events from the dispatcher and relay:
// the core emits events, the collaborator decides what to do with
// them. NewDispatcher installs a no-op Observer that discards events;
// Handle calls the Observer without a nil check, so it is never nil.
type Observer interface {
	ConnectionAccepted(id uuid.UUID, remote net.Addr)
	ConnectionClosed(id uuid.UUID, reply Reply, err error)
	AuthResult(id uuid.UUID, method AuthMethod, ok bool)
	DialFinished(id uuid.UUID, err error)
	BytesRelayed(id uuid.UUID, direction string, n int64)
}

type noopObserver struct{}

func (noopObserver) ConnectionAccepted(uuid.UUID, net.Addr)   {}
func (noopObserver) ConnectionClosed(uuid.UUID, Reply, error) {}
func (noopObserver) AuthResult(uuid.UUID, AuthMethod, bool)   {}
func (noopObserver) DialFinished(uuid.UUID, error)            {}
func (noopObserver) BytesRelayed(uuid.UUID, string, int64)    {}

// Dispatcher drives the full per-connection protocol state machine:
// greeting -> method negotiation -> optional auth -> command request
// -> upstream dial -> reply -> relay handoff.
type Dispatcher struct {
	Auth     AuthSettings
	Timeouts Timeouts
	Dialer   *net.Dialer
	Observer Observer
}

// NewDispatcher builds a Dispatcher with sane defaults for any zero
// fields (a 10-second dial timeout, a plain *net.Dialer, a no-op
// observer).
func NewDispatcher(auth AuthSettings, timeouts Timeouts) *Dispatcher {
	d := &Dispatcher{
		Auth:     auth,
		Timeouts: timeouts,
		Dialer:   &net.Dialer{Timeout: timeouts.Dial},
		Observer: noopObserver{},
	}
	if d.Dialer.Timeout == 0 {
		d.Dialer.Timeout = 10 * time.Second
	}
	return d
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// Handle runs the protocol state machine on one accepted connection to
// completion, closing conn (and any upstream it opened) before
// returning. It never panics on protocol or I/O errors; all failure
// handling is internal.
func (d *Dispatcher) Handle(ctx context.Context, conn net.Conn) {
	id := uuid.New()
	d.Observer.ConnectionAccepted(id, conn.RemoteAddr())
	defer conn.Close()

	pc := newPhaseConn(conn)

	// AwaitGreeting -> MethodNegotiation
	_ = pc.SetReadDeadline(deadline(d.Timeouts.Greeting))
	helloBytes, err := pc.readClientHello()
	if err != nil {
		d.Observer.ConnectionClosed(id, 0, err)
		return
	}
	hello, err := ParseClientHello(helloBytes)
	if err != nil {
		d.Observer.ConnectionClosed(id, 0, err)
		return
	}

	// MethodNegotiation -> {AwaitAuth, AwaitRequest} -> Terminated on failure
	_ = pc.SetReadDeadline(deadline(d.Timeouts.Auth))
	authErr := negotiate(pc, hello, d.Auth)
	if authErr != nil {
		if authErr == ErrFailedAuth || authErr == ErrNoAcceptableAuth {
			d.Observer.AuthResult(id, d.Auth.SelectedMethod, false)
		}
		d.Observer.ConnectionClosed(id, 0, authErr)
		return
	}
	if d.Auth.SelectedMethod == AuthPassword {
		d.Observer.AuthResult(id, d.Auth.SelectedMethod, true)
	}

	// AwaitRequest -> DialUpstream | Terminated
	_ = pc.SetReadDeadline(deadline(d.Timeouts.Request))
	reqBytes, err := pc.readClientRequest()
	if err != nil {
		d.Observer.ConnectionClosed(id, 0, err)
		return
	}
	req, err := ParseClientRequest(reqBytes)
	if err != nil {
		d.failRequest(pc, id, err)
		return
	}
	_ = pc.SetReadDeadline(time.Time{})

	if req.Command != CmdConnect {
		// Parser already classified Bind/UDPAssociate/unknown as
		// KindUnsupportedCommand; req.Command can't be anything but
		// CmdConnect here, this branch exists for defense in depth.
		d.failRequest(pc, id, newProtoErr(KindUnsupportedCommand, "unsupported command"))
		return
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if d.Timeouts.Dial > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, d.Timeouts.Dial)
		defer cancel()
	}
	upstream, err := dialUpstream(dialCtx, d.Dialer, req.DestinationAddr, req.DestinationPort)
	d.Observer.DialFinished(id, err)
	if err != nil {
		d.failRequest(pc, id, err)
		return
	}
	defer upstream.Close()

	// SendReply -> Relay
	boundAddr, boundPort := boundAddrOf(upstream)
	reply := ServerReply{
		Version:   socksVersion,
		Reply:     ReplySucceeded,
		BoundAddr: boundAddr,
		BoundPort: boundPort,
	}
	if _, err := pc.Write(SerializeServerReply(reply)); err != nil {
		d.Observer.ConnectionClosed(id, ReplySucceeded, wrapIO(err))
		return
	}

	relayErr := Relay(ctx, conn, upstream, func(direction string, n int64) {
		d.Observer.BytesRelayed(id, direction, n)
	})
	d.Observer.ConnectionClosed(id, ReplySucceeded, relayErr)
}

// failRequest maps err to a reply code, writes the reply (with the
// mandated 0.0.0.0:0 bound address), and records the outcome. The
// connection is closed by the caller's defer.
func (d *Dispatcher) failRequest(pc *phaseConn, id uuid.UUID, err error) {
	code := replyForError(err)
	_, writeErr := pc.Write(SerializeServerReply(NewFailureReply(code)))
	if writeErr != nil {
		err = wrapIO(writeErr)
	}
	d.Observer.ConnectionClosed(id, code, err)
}

// boundAddrOf extracts the local address the proxy used to reach the
// target, reported back to the client in the server reply.
func boundAddrOf(conn net.Conn) (DestinationAddress, uint16) {
	tcpAddr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return DestinationAddress{Type: AddrIPv4, IP: net.IPv4zero}, 0
	}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		return DestinationAddress{Type: AddrIPv4, IP: ip4}, uint16(tcpAddr.Port)
	}
	return DestinationAddress{Type: AddrIPv6, IP: tcpAddr.IP.To16()}, uint16(tcpAddr.Port)
}
