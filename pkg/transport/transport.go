// Package transport opens connections to animation targets and adapts them to
// [stream.Transport].
//
// Three networks are supported:
//
//   - "udp": one datagram per frame. This is what the Unreal Live Link plugin
//     listens on (port 11111 by default).
//   - "tcp": a persistent stream where each frame is preceded by its length
//     as a big-endian uint32.
//   - "ws" / "wss": one binary WebSocket message per frame, for rigs behind an
//     HTTP gateway.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/facestream/pkg/face/livelink"
	"github.com/MrWong99/facestream/pkg/stream"
)

// Supported network names.
const (
	NetworkUDP = "udp"
	NetworkTCP = "tcp"
	NetworkWS  = "ws"
	NetworkWSS = "wss"
)

// DefaultAddress is the Live Link plugin's default listen address.
var DefaultAddress = net.JoinHostPort("127.0.0.1", strconv.Itoa(livelink.DefaultPort))

// ErrUnsupportedNetwork is returned by [Dial] for unknown network names.
var ErrUnsupportedNetwork = errors.New("transport: unsupported network")

// Config describes how to reach an animation target.
type Config struct {
	// Network is one of udp, tcp, ws or wss. Empty means udp.
	Network string

	// Address is host:port for udp and tcp, or a full ws:// / wss:// URL for
	// WebSocket targets. Empty means [DefaultAddress] for udp.
	Address string

	// DialTimeout bounds connection setup. Zero means no timeout beyond ctx.
	DialTimeout time.Duration

	// Header is sent with the WebSocket handshake.
	Header http.Header
}

// Dial connects to the target described by cfg.
func Dial(ctx context.Context, cfg Config) (stream.Transport, error) {
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	network := strings.ToLower(cfg.Network)
	switch network {
	case "", NetworkUDP:
		addr := cfg.Address
		if addr == "" {
			addr = DefaultAddress
		}
		return dialUDP(ctx, addr)
	case NetworkTCP:
		return dialTCP(ctx, cfg.Address)
	case NetworkWS, NetworkWSS:
		return dialWS(ctx, network, cfg.Address, cfg.Header)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, cfg.Network)
	}
}

// Dialer returns a [stream.Dialer] that calls [Dial] with cfg.
func Dialer(cfg Config) stream.Dialer {
	return stream.DialerFunc(func(ctx context.Context) (stream.Transport, error) {
		return Dial(ctx, cfg)
	})
}
