package proto

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"gotibia/wire"
)

// DefaultLoginTimeout bounds the wait for the server to accept a login.
const DefaultLoginTimeout = 15 * time.Second

// State is the login handshake position.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingChallenge
	StateLoginPacketSent
	StateInGame
	StateFailed
)

var stateNames = [...]string{"disconnected", "connecting", "awaiting-challenge", "login-sent", "in-game", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// LoginResult is how a login attempt ended.
type LoginResult struct {
	OK       bool
	Reason   string
	PlayerID uint32
}

// Sender writes one game message to the server. Framing and encryption
// happen behind it.
type Sender interface {
	Send(payload []byte) error
}

type SessionConfig struct {
	Caps        Capabilities
	Credentials Credentials
	RSA         *wire.RSAKey
	Order       wire.Order
	Timeout     time.Duration
	Log         *zap.Logger
	// NewKey draws the XTEA session key; wire.NewXTEAKey when nil.
	NewKey func() (wire.XTEAKey, error)
}

// Session drives the login handshake on top of a dispatcher. It sees every
// opcode as an OpcodeObserver, answers pings and login replies, and
// forwards every event to the next Sink.
type Session struct {
	cfg    SessionConfig
	framer *wire.Framer
	send   Sender
	next   Sink
	out    *Outbound
	log    *zap.Logger

	mu       sync.Mutex
	state    State
	playerID uint32
	result   LoginResult
	resolved bool
	done     chan struct{}
	timer    *time.Timer
}

func NewSession(cfg SessionConfig, framer *wire.Framer, send Sender, next Sink) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLoginTimeout
	}
	if cfg.NewKey == nil {
		cfg.NewKey = wire.NewXTEAKey
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if next == nil {
		next = SinkFunc(func(Event) {})
	}
	return &Session{
		cfg:    cfg,
		framer: framer,
		send:   send,
		next:   next,
		out:    NewOutbound(cfg.Caps, cfg.Order),
		log:    log,
		done:   make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the login has succeeded or failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the outcome once Done is closed.
func (s *Session) Result() (LoginResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.resolved
}

// Wait blocks until the login resolves or ctx ends.
func (s *Session) Wait(ctx context.Context) (LoginResult, error) {
	select {
	case <-s.done:
		r, _ := s.Result()
		return r, nil
	case <-ctx.Done():
		return LoginResult{}, ctx.Err()
	}
}

// Connecting marks the transport dial as started.
func (s *Session) Connecting() {
	s.mu.Lock()
	s.state = StateConnecting
	s.mu.Unlock()
}

// Connected resets the framer for the new connection and, when the
// protocol has no login challenge, sends the login packet right away.
func (s *Session) Connected() error {
	s.mu.Lock()
	s.framer.Reset()
	s.framer.Checksum = s.cfg.Caps.Enabled(GameProtocolChecksum)
	s.timer = time.AfterFunc(s.cfg.Timeout, func() { s.fail("Server response timeout") })
	if s.cfg.Caps.Enabled(GameChallengeOnLogin) {
		s.state = StateAwaitingChallenge
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.sendLogin(Challenge{})
}

func (s *Session) sendLogin(ch Challenge) error {
	key, err := s.cfg.NewKey()
	if err != nil {
		s.fail(err.Error())
		return err
	}
	pkt, err := BuildLoginPacket(s.cfg.Caps, s.cfg.Order, s.cfg.RSA, key, s.cfg.Credentials, ch)
	if err != nil {
		s.fail(err.Error())
		return err
	}
	if err := s.send.Send(pkt.Payload); err != nil {
		s.fail(err.Error())
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pkt.Encrypted {
		if err := s.framer.SetKey(pkt.Key); err != nil {
			return err
		}
	}
	if s.state != StateInGame && s.state != StateFailed {
		s.state = StateLoginPacketSent
	}
	s.log.Debug("login packet sent",
		zap.Int("bytes", len(pkt.Payload)), zap.Bool("encrypted", pkt.Encrypted))
	return nil
}

// OnOpcode resolves the login as soon as a game opcode shows up after the
// login packet went out.
func (s *Session) OnOpcode(op Opcode) {
	if op <= FirstGameOpcode || s.State() != StateLoginPacketSent {
		return
	}
	s.succeed()
}

func (s *Session) reply(payload []byte) {
	if err := s.send.Send(payload); err != nil {
		s.log.Warn("reply failed", zap.Error(err))
	}
}

// Apply handles handshake events and forwards every event.
func (s *Session) Apply(ev Event) {
	switch ev := ev.(type) {
	case ChallengeReceived:
		s.log.Debug("login challenge", zap.Uint32("timestamp", ev.Timestamp), zap.Uint8("random", ev.Random))
		if err := s.sendLogin(Challenge{Timestamp: ev.Timestamp, Random: ev.Random}); err != nil {
			s.log.Error("login packet", zap.Error(err))
		}
	case PendingGame:
		s.reply(s.out.EnterGame())
	case LoginSucceeded:
		s.mu.Lock()
		s.playerID = ev.PlayerID
		s.result.PlayerID = ev.PlayerID
		s.mu.Unlock()
		s.reply(s.out.EnterGame())
	case EnterGame:
		s.succeed()
	case LoginFailed:
		s.fail(ev.Reason)
	case LoginAdvice:
		s.log.Info("login advice", zap.String("text", ev.Text))
	case PingReceived:
		s.reply(s.out.PingBack())
	}
	s.next.Apply(ev)
}

// Disconnected fails a pending login with the transport's reason.
func (s *Session) Disconnected(err error) {
	reason := "Connection closed"
	if err != nil && !errors.Is(err, context.Canceled) {
		reason = err.Error()
	}
	s.fail(reason)
	s.mu.Lock()
	if s.state == StateInGame {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
}

func (s *Session) succeed() {
	s.resolve(LoginResult{OK: true}, StateInGame)
}

func (s *Session) fail(reason string) {
	s.resolve(LoginResult{Reason: reason}, StateFailed)
}

func (s *Session) resolve(r LoginResult, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return
	}
	s.resolved = true
	r.PlayerID = s.playerID
	s.result = r
	s.state = st
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.done)
	if r.OK {
		s.log.Info("login accepted", zap.Uint32("player", r.PlayerID))
	} else {
		s.log.Warn("login failed", zap.String("reason", r.Reason))
	}
}
