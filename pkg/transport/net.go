package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"

	"github.com/MrWong99/facestream/pkg/stream"
)

var (
	_ stream.Transport = (*udpConn)(nil)
	_ stream.Transport = (*tcpConn)(nil)
)

// ErrFrameTooLarge is returned when a frame cannot be framed for the wire.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// maxDatagram is the largest UDP payload accepted by Send.
const maxDatagram = 65507

// udpConn sends one datagram per frame.
type udpConn struct {
	conn net.Conn

	closeOnce sync.Once
	closeErr  error
}

func dialUDP(ctx context.Context, addr string) (stream.Transport, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp %s: %w", addr, err)
	}
	return &udpConn{conn: c}, nil
}

// Send writes frame as a single datagram. The context deadline, if any, bounds
// the write.
func (u *udpConn) Send(ctx context.Context, frame []byte) error {
	if len(frame) > maxDatagram {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	if err := setWriteDeadline(ctx, u.conn); err != nil {
		return err
	}
	if _, err := u.conn.Write(frame); err != nil {
		return fmt.Errorf("transport: udp write: %w", err)
	}
	return nil
}

func (u *udpConn) Close() error {
	u.closeOnce.Do(func() { u.closeErr = u.conn.Close() })
	return u.closeErr
}

// tcpConn writes length-prefixed frames to a stream connection.
type tcpConn struct {
	conn net.Conn
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

func dialTCP(ctx context.Context, addr string) (stream.Transport, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &tcpConn{conn: c}, nil
}

// Send writes a big-endian uint32 length followed by frame in one write.
func (t *tcpConn) Send(ctx context.Context, frame []byte) error {
	if uint64(len(frame)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	if err := setWriteDeadline(ctx, t.conn); err != nil {
		return err
	}
	t.buf = binary.BigEndian.AppendUint32(t.buf[:0], uint32(len(frame)))
	t.buf = append(t.buf, frame...)
	if _, err := t.conn.Write(t.buf); err != nil {
		return fmt.Errorf("transport: tcp write: %w", err)
	}
	return nil
}

func (t *tcpConn) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.conn.Close() })
	return t.closeErr
}

// setWriteDeadline applies the ctx deadline to conn, or clears it.
func setWriteDeadline(ctx context.Context, conn net.Conn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	return conn.SetWriteDeadline(deadline)
}

// ReadFrame reads one length-prefixed frame as written by the tcp transport.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	frame := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
