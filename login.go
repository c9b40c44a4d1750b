package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"gotibia/proto"
	"gotibia/wire"
	"gotibia/world"
)

var (
	loginCancel context.CancelFunc
	loginMu     sync.Mutex
)

const connectAttemptTimeout = 15 * time.Second

func dialServer(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: connectAttemptTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err == nil {
		return conn, nil
	}

	fallbackAddr, ok := fallbackAddress(addr)
	if !ok {
		return nil, err
	}

	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		logWarn("no response from %s, trying %s", addr, fallbackAddr)
	} else {
		logWarn("unable to reach %s (%v); trying %s", addr, err, fallbackAddr)
	}

	fallbackConn, fallbackErr := dialer.DialContext(ctx, network, fallbackAddr)
	if fallbackErr == nil {
		logWarn("dial %s %s failed (%v); using fallback %s", network, addr, err, fallbackAddr)
		return fallbackConn, nil
	}

	return nil, fmt.Errorf("dial %s: %v (fallback %s: %v)", addr, err, fallbackAddr, fallbackErr)
}

// fallbackAddress is the configured fallback host, on addr's port when it
// names none.
func fallbackAddress(addr string) (string, bool) {
	if gs.FallbackHost == "" {
		return "", false
	}
	if _, _, err := net.SplitHostPort(gs.FallbackHost); err == nil {
		return gs.FallbackHost, gs.FallbackHost != addr
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", false
	}
	fb := net.JoinHostPort(gs.FallbackHost, port)
	return fb, fb != addr
}

// connect opens the transport the settings ask for: a WebSocket bridge
// when a URL is set, plain TCP otherwise.
func connect(ctx context.Context) (frameConn, error) {
	order, err := byteOrder()
	if err != nil {
		return nil, err
	}
	if gs.WebSocketURL != "" {
		return dialWebSocket(ctx, gs.WebSocketURL, order)
	}
	conn, err := dialServer(ctx, "tcp", gs.Host)
	if err != nil {
		return nil, err
	}
	return &tcpFrames{conn: conn, order: order}, nil
}

// runSession logs in over conn and runs the game until the connection
// drops, the login fails or ctx ends. onReady is called with the client
// before any frame is read.
func runSession(ctx context.Context, conn frameConn, opt clientOptions, onReady func(*client)) error {
	ctx, cancel := context.WithCancel(ctx)
	loginMu.Lock()
	loginCancel = cancel
	loginMu.Unlock()
	defer handleDisconnect()

	opt.live = true
	c := newClient(opt)
	if onReady != nil {
		onReady(c)
	}
	go logStatsLoop(ctx, c.stats, gs.statsInterval())
	defer saveStats(c.stats)

	c.session.Connecting()
	c.sender.setConn(conn)
	logInfo("connected to %s (client %d, protocol %d)", conn.RemoteAddr(), opt.caps.Version(), opt.caps.ProtocolVersion())
	if err := c.session.Connected(); err != nil {
		conn.Close()
		return fmt.Errorf("login: %w", err)
	}

	go func() {
		res, err := c.session.Wait(ctx)
		if err != nil {
			return
		}
		if !res.OK {
			logError("login failed: %s", res.Reason)
			cancel()
			return
		}
		logInfo("logged in as %s (player %d)", opt.credentials.Character, res.PlayerID)
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	err := c.serve(ctx, conn)
	c.session.Disconnected(err)
	if res, ok := c.session.Result(); ok && !res.OK {
		return fmt.Errorf("login: %s", res.Reason)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func handleDisconnect() {
	loginMu.Lock()
	if loginCancel == nil {
		loginMu.Unlock()
		return
	}
	cancel := loginCancel
	loginCancel = nil
	loginMu.Unlock()

	cancel()
	logInfo("disconnected from server")
}

// liveOptions builds the client options for a server connection from the
// settings and flags.
func liveOptions(types world.ThingTypes, cred proto.Credentials) (clientOptions, error) {
	order, err := byteOrder()
	if err != nil {
		return clientOptions{}, err
	}
	rsa, err := rsaKey()
	if err != nil {
		return clientOptions{}, err
	}
	return clientOptions{
		name:        cred.Character,
		caps:        newCaps(),
		order:       order,
		types:       types,
		credentials: cred,
		rsa:         rsa,
		newKey:      wire.NewXTEAKey,
	}, nil
}
