package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gotibia/game"
	"gotibia/motion"
	"gotibia/proto"
	"gotibia/wire"
	"gotibia/world"
)

// client is one decoding pipeline: framer, dispatcher and the game it
// feeds. Live sessions add a proto.Session between the dispatcher and the
// game; replays dispatch straight into the game.
type client struct {
	name    string
	caps    *proto.VersionTable
	order   wire.Order
	game    *game.Game
	framer  *wire.Framer
	disp    *proto.Dispatcher
	session *proto.Session
	sender  *frameSender
	stats   *sessionStats
	log     *zap.Logger

	// actions run on the goroutine that owns the dispatcher, so requests
	// from the debug server never race the framer.
	actions chan func()
}

type clientOptions struct {
	name  string
	caps  *proto.VersionTable
	order wire.Order
	types world.ThingTypes
	clock motion.Clock
	// live wires a sender and a login session.
	live        bool
	credentials proto.Credentials
	rsa         *wire.RSAKey
	newKey      func() (wire.XTEAKey, error)
}

func newClient(opt clientOptions) *client {
	log := logger.Named(opt.name)
	c := &client{
		name:    opt.name,
		caps:    opt.caps,
		order:   opt.order,
		framer:  &wire.Framer{Order: opt.order},
		stats:   newSessionStats(opt.name),
		log:     log,
		actions: make(chan func(), 16),
	}
	cfg := game.Config{
		Caps:             opt.caps,
		Types:            opt.types,
		Clock:            opt.clock,
		Order:            opt.order,
		Aware:            gs.aware(),
		KeepUnawareTiles: gs.KeepUnawareTiles,
		EffectDuration:   gs.effectDuration(),
		ChatLines:        gs.ChatLines,
		Log:              log,
		OnAutoWalkFailed: func(dest world.Position, res world.PathResult) {
			logWarn("%s: auto walk to %v failed: %v", opt.name, dest, res)
		},
	}
	if opt.live {
		c.sender = &frameSender{framer: c.framer, stats: c.stats}
		cfg.Send = c.sender
	}
	c.game = game.New(cfg)

	var sink proto.Sink = c.game
	if opt.live {
		c.session = proto.NewSession(proto.SessionConfig{
			Caps:        opt.caps,
			Credentials: opt.credentials,
			RSA:         opt.rsa,
			Order:       opt.order,
			Timeout:     gs.loginTimeout(),
			Log:         log.Named("login"),
			NewKey:      opt.newKey,
		}, c.framer, c.sender, c.game)
		sink = c.session
	}
	c.disp = proto.NewDispatcher(proto.NewDecoder(opt.caps, opt.types, c.game.Map()), sink, log.Named("proto"))
	c.disp.SetOrder(opt.order)
	if c.session != nil {
		c.disp.SetObserver(c.session)
	}
	return c
}

// handleFrame decodes one frame body and dispatches the message in it.
func (c *client) handleFrame(body []byte) {
	c.stats.received(len(body) + 2)
	msg, err := c.framer.Decode(body)
	if err != nil {
		c.stats.frameError(err)
		logWarn("%s: frame: %v", c.name, err)
		return
	}
	c.dispatch(msg)
}

func (c *client) dispatch(msg []byte) {
	logDebugPacket("recv", msg)
	res := c.disp.Dispatch(msg)
	c.stats.dispatched(res)
}

// do queues fn to run on the dispatch goroutine and waits for its result.
func (c *client) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case c.actions <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run owns the pipeline: it applies incoming frames, queued actions and
// timer ticks until the frame source ends or ctx is cancelled.
func (c *client) run(ctx context.Context, frames <-chan []byte, readErr <-chan error) error {
	ticker := time.NewTicker(gs.tick())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body, ok := <-frames:
			if !ok {
				err := <-readErr
				if err != nil {
					return fmt.Errorf("read: %w", err)
				}
				return nil
			}
			c.handleFrame(body)
		case fn := <-c.actions:
			fn()
		case now := <-ticker.C:
			c.game.Tick(now)
		}
	}
}

// serve starts the reader for conn and runs the pipeline on it.
func (c *client) serve(ctx context.Context, conn frameConn) error {
	frames := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() { readErr <- readFrames(ctx, conn, frames) }()
	return c.run(ctx, frames, readErr)
}
