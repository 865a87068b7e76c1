package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/facestream/pkg/face/livelink"
	"github.com/MrWong99/facestream/pkg/transport"
)

// listen receives LiveLink Face packets and logs them. It stands in for the
// engine plugin when checking what facestream sends.
func listen(args []string) int {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	network := fs.String("network", transport.NetworkUDP, "udp or tcp")
	addr := fs.String("addr", fmt.Sprintf(":%d", livelink.DefaultPort), "listen address")
	verbose := fs.Bool("v", false, "log every non-zero channel")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *network {
	case transport.NetworkUDP:
		err = listenUDP(ctx, *addr)
	case transport.NetworkTCP:
		err = listenTCP(ctx, *addr)
	default:
		err = fmt.Errorf("%w: %q", transport.ErrUnsupportedNetwork, *network)
	}
	if err != nil && ctx.Err() == nil {
		slog.Error("listen failed", "err", err)
		return 1
	}
	return 0
}

func listenUDP(ctx context.Context, addr string) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, func() { _ = pc.Close() })
	slog.Info("listening", "network", "udp", "addr", pc.LocalAddr())

	buf := make([]byte, 64<<10)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			return err
		}
		logPacket(from.String(), buf[:n])
	}
}

func listenTCP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, func() { _ = ln.Close() })
	slog.Info("listening", "network", "tcp", "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			defer conn.Close()
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()
			from := conn.RemoteAddr().String()
			for {
				frame, err := transport.ReadFrame(conn)
				if err != nil {
					if !errors.Is(err, net.ErrClosed) {
						slog.Info("connection closed", "from", from, "err", err)
					}
					return
				}
				logPacket(from, frame)
			}
		}()
	}
}

func logPacket(from string, b []byte) {
	pkt, err := livelink.Decode(b)
	if err != nil {
		slog.Warn("malformed packet", "from", from, "bytes", len(b), "err", err)
		return
	}
	slog.Info("packet",
		"from", from,
		"subject", pkt.Subject,
		"device_id", pkt.DeviceID,
		"frame", pkt.FrameNumber,
		"subframe", pkt.SubFrame,
		"fps", pkt.FPS,
		"channels", len(pkt.Channels),
	)
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for i, v := range pkt.Channels {
		if v != 0 {
			slog.Debug("channel", "name", livelink.ChannelName(i), "value", v)
		}
	}
}
