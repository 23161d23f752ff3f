package domain

import "context"

// Connection is the transport capability the core operates on. Implementations
// wrap a live full-duplex socket; the core never sees framing or handshakes.
type Connection interface {
	// ID identifies the transport itself, not the client. A client that
	// reconnects keeps its clientId but gets a fresh connection ID.
	ID() string

	// Send delivers one application frame and reports completion. It returns
	// once the frame has been written to the socket, the context expires, or
	// the connection dies.
	Send(ctx context.Context, payload []byte) error

	// Ping issues a transport-level keepalive frame, distinct from
	// application messages.
	Ping() error

	// Ready reports whether the connection can still accept sends.
	Ready() bool

	// Close force-closes the connection. Idempotent.
	Close() error
}

// ConnectionEvents receives the event stream of a single connection. The
// transport guarantees that callbacks for one connection never run
// concurrently, so implementations observe events in receive order.
type ConnectionEvents interface {
	OnMessage(data []byte)
	OnPong()
	OnClose(err error)
}
