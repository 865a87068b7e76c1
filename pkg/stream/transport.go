package stream

import "context"

// Transport is a connection to an animation target. Each Send delivers one
// complete wire frame.
//
// Implementations need not be safe for concurrent Send calls; the streamer
// and the idle loop never share a transport at the same time.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens a new [Transport]. The streamer uses it when the caller does
// not supply a transport of its own.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts an ordinary function to the [Dialer] interface.
type DialerFunc func(ctx context.Context) (Transport, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Transport, error) { return f(ctx) }
