package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/facestream/pkg/stream"
)

var _ stream.Transport = (*wsConn)(nil)

// wsConn sends one binary WebSocket message per frame.
type wsConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

func dialWS(ctx context.Context, scheme, addr string, header http.Header) (stream.Transport, error) {
	url := addr
	if !strings.Contains(url, "://") {
		url = scheme + "://" + addr
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

func (w *wsConn) Send(ctx context.Context, frame []byte) error {
	if err := w.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("transport: ws write: %w", err)
	}
	return nil
}

func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.conn.Close(websocket.StatusNormalClosure, "stream finished")
	})
	return w.closeErr
}
