package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gotibia/wire"
)

// frameConn carries length-prefixed frames to and from the game server.
// ReadFrame returns a frame body without its length; WriteFrame takes a
// complete frame as wire.Framer.Encode builds it.
type frameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() string
}

// tcpFrames reads frames straight off a TCP stream.
type tcpFrames struct {
	conn  net.Conn
	order wire.Order
}

func (t *tcpFrames) ReadFrame() ([]byte, error) {
	return readTCPMessage(t.conn, t.order)
}

func (t *tcpFrames) WriteFrame(frame []byte) error {
	return writeAll(t.conn, frame)
}

func (t *tcpFrames) Close() error       { return t.conn.Close() }
func (t *tcpFrames) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// writeAll writes the entirety of data to conn, returning an error if the
// write fails or is short.
func writeAll(conn net.Conn, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}

// readTCPMessage reads a single length-prefixed frame from the TCP
// connection. A nil order reads a little-endian length.
func readTCPMessage(connection net.Conn, order wire.Order) ([]byte, error) {
	var sizeBuf [2]byte
	if _, err := io.ReadFull(connection, sizeBuf[:]); err != nil {
		return nil, err
	}
	sz := wire.OrOrder(order).Uint16(sizeBuf[:])
	buf := make([]byte, sz)
	if _, err := io.ReadFull(connection, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// wsFrames tunnels the TCP byte stream through binary WebSocket messages.
// A message may hold several frames or part of one, so data is
// accumulated until complete frames are available.
type wsFrames struct {
	conn    *websocket.Conn
	order   wire.Order
	buf     []byte
	pending [][]byte
}

func (w *wsFrames) ReadFrame() ([]byte, error) {
	for len(w.pending) == 0 {
		typ, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		w.buf = append(w.buf, data...)
		frames, rest := wire.SplitFrames(w.buf, w.order)
		for _, f := range frames {
			w.pending = append(w.pending, append([]byte(nil), f...))
		}
		w.buf = append(w.buf[:0], rest...)
	}
	f := w.pending[0]
	w.pending = w.pending[1:]
	return f, nil
}

func (w *wsFrames) WriteFrame(frame []byte) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsFrames) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.conn.Close()
}

func (w *wsFrames) RemoteAddr() string { return w.conn.RemoteAddr().String() }

func dialWebSocket(ctx context.Context, url string, order wire.Order) (frameConn, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = connectAttemptTimeout
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsFrames{conn: conn, order: order}, nil
}

var errNotConnected = errors.New("not connected")

// frameSender frames outgoing game messages. It implements proto.Sender.
type frameSender struct {
	mu     sync.Mutex
	framer *wire.Framer
	conn   frameConn
	stats  *sessionStats
}

func (s *frameSender) setConn(c frameConn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

func (s *frameSender) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errNotConnected
	}
	frame, err := s.framer.Encode(payload)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > 0 {
		logDebug("send op %d len %d", payload[0], len(payload))
	}
	logDebugPacket("send", payload)
	if err := s.conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	s.stats.sent(len(frame))
	return nil
}

// readFrames pushes every frame conn delivers into out until the read
// fails or ctx ends. out is closed on return.
func readFrames(ctx context.Context, conn frameConn, out chan<- []byte) error {
	defer close(out)
	for {
		body, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		select {
		case out <- body:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
