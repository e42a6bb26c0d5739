package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// Decoder wraps a raw connection into a reader of S16LE PCM. A nil Decoder
// uses the connection as is.
type Decoder func(r io.Reader) (io.Reader, error)

// ListenTCP accepts connections on addr one at a time and ingests each into
// b until ctx is done. Connection errors are logged and the next connection
// is accepted.
func ListenTCP(ctx context.Context, addr string, b *Buffer, dec Decoder) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, b, dec)
}

// Serve is ListenTCP on an existing listener. It closes ln before returning.
func Serve(ctx context.Context, ln net.Listener, b *Buffer, dec Decoder) error {
	logrus.WithFields(logrus.Fields{
		"function": "Serve",
		"stream":   b.Name(),
		"addr":     ln.Addr().String(),
	}).Info("Listening for stream connections")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		serveConn(ctx, conn, b, dec)
	}
}

func serveConn(ctx context.Context, conn net.Conn, b *Buffer, dec Decoder) {
	defer conn.Close()

	fields := logrus.Fields{
		"function": "serveConn",
		"stream":   b.Name(),
		"remote":   conn.RemoteAddr().String(),
	}
	logrus.WithFields(fields).Info("Accepted stream connection")

	var r io.Reader = conn
	if dec != nil {
		decoded, err := dec(conn)
		if err != nil {
			fields["error"] = err.Error()
			logrus.WithFields(fields).Warn("Failed to set up stream decoder")
			return
		}
		r = decoded
	}

	if err := b.Ingest(ctx, r); err != nil && ctx.Err() == nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Stream connection ended")
	}
}
