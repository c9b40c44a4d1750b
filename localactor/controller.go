// Package localactor drives the player-controlled creature: speculative
// steps ahead of the server, auto-walk continuation and walk locks.
package localactor

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gotibia/motion"
	"gotibia/proto"
	"gotibia/world"
)

const (
	// DefaultWalkLock is how long walking stays locked after the server
	// rejected a step.
	DefaultWalkLock = 250 * time.Millisecond

	MaxAutoWalkRetries = 3
	autoWalkBackoff    = 200 * time.Millisecond

	// AutoWalkComplexity bounds the path search for auto-walk.
	AutoWalkComplexity = 50000

	preWalkMinStep    = 100 * time.Millisecond
	preWalkSlack      = 100 * time.Millisecond
	preWalkMaxTimeout = 1000 * time.Millisecond

	defaultStepDuration = 150 * time.Millisecond
)

var (
	ErrNoPlayer        = errors.New("local player unknown")
	ErrDead            = errors.New("player is dead")
	ErrWalkLocked      = errors.New("walk locked")
	ErrDesynced        = errors.New("waiting for server to confirm last step")
	ErrStepNotFinished = errors.New("step not finished")
	ErrRateLimited     = errors.New("step rate exceeded")
)

// Pathfinder finds a direction path between two positions.
type Pathfinder interface {
	FindPath(start, goal world.Position, maxComplexity int, flags world.PathFlags) ([]world.Direction, world.PathResult)
}

type Options struct {
	Caps proto.Capabilities
	Out  *proto.Outbound
	Send proto.Sender
	// Path defaults to the map's own search.
	Path Pathfinder
	// StepRate limits outgoing walk packets; Burst steps may go out
	// back to back.
	StepRate rate.Limit
	Burst    int
	Log      *zap.Logger

	// OnAutoWalkFailed is called once auto-walk gives up on dest.
	OnAutoWalkFailed func(dest world.Position, res world.PathResult)
	// OnCancelWalk is called after the server rejected a step.
	OnCancelWalk func(dir world.Direction)
}

// Controller is the client side of the local player's movement.
type Controller struct {
	m     *world.Map
	pred  *motion.Predictor
	sched *motion.Scheduler
	opts  Options
	log   *zap.Logger
	lim   *rate.Limiter

	preWalks   []world.Position
	lockUntil  time.Time
	stepStart  time.Time
	dead       bool
	serverWalk bool

	autoDest     world.Position
	autoActive   bool
	lastAutoPos  world.Position
	completePath bool
	retries      int

	ping     time.Duration
	pingSent time.Time
}

func NewController(m *world.Map, pred *motion.Predictor, opts Options) *Controller {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Path == nil {
		opts.Path = m
	}
	if opts.StepRate == 0 {
		opts.StepRate = rate.Every(50 * time.Millisecond)
	}
	if opts.Burst < 1 {
		opts.Burst = 2
	}
	return &Controller{
		m:     m,
		pred:  pred,
		sched: pred.Scheduler(),
		opts:  opts,
		log:   opts.Log,
		lim:   rate.NewLimiter(opts.StepRate, opts.Burst),
	}
}

func (ctl *Controller) player() *world.Creature { return ctl.m.LocalPlayer() }

func (ctl *Controller) key(slot motion.Slot) motion.Key {
	return motion.Key{ID: ctl.m.LocalPlayerID(), Slot: slot}
}

func (ctl *Controller) send(payload []byte, err error) error {
	if err != nil {
		return err
	}
	if ctl.opts.Send == nil {
		return nil
	}
	return ctl.opts.Send.Send(payload)
}

// ServerPosition is the last position the server put the player at.
func (ctl *Controller) ServerPosition() world.Position {
	if c := ctl.player(); c != nil && c.Tile() != nil {
		return c.Tile().Position()
	}
	return ctl.m.Center()
}

// Position is where the player will be once every pending step is
// confirmed.
func (ctl *Controller) Position() world.Position {
	if n := len(ctl.preWalks); n > 0 {
		return ctl.preWalks[n-1]
	}
	return ctl.ServerPosition()
}

func (ctl *Controller) PreWalking() bool    { return len(ctl.preWalks) > 0 }
func (ctl *Controller) PendingSteps() int   { return len(ctl.preWalks) }
func (ctl *Controller) AutoWalking() bool   { return ctl.autoActive }
func (ctl *Controller) ServerWalking() bool { return ctl.serverWalk }

// AutoWalkDestination reports the current auto-walk target.
func (ctl *Controller) AutoWalkDestination() (world.Position, bool) {
	return ctl.autoDest, ctl.autoActive
}

// Ping is the last measured round trip.
func (ctl *Controller) Ping() time.Duration { return ctl.ping }

// LockWalk blocks walking for d from now. A longer running lock is kept.
func (ctl *Controller) LockWalk(now time.Time, d time.Duration) {
	until := now.Add(d)
	if !until.After(ctl.lockUntil) {
		return
	}
	ctl.lockUntil = until
	ctl.sched.Schedule(ctl.key(motion.SlotWalkLock), d, func(at time.Time) {
		if !at.Before(ctl.lockUntil) {
			ctl.lockUntil = time.Time{}
			ctl.log.Debug("walk unlocked")
		}
	})
}

func (ctl *Controller) UnlockWalk() {
	ctl.lockUntil = time.Time{}
	ctl.sched.Cancel(ctl.key(motion.SlotWalkLock))
}

func (ctl *Controller) IsWalkLocked(now time.Time) bool {
	return !ctl.lockUntil.IsZero() && now.Before(ctl.lockUntil)
}

func (ctl *Controller) stepDuration(c *world.Creature) time.Duration {
	if d := ctl.pred.StepDuration(c, false); d > 0 {
		return d
	}
	return defaultStepDuration
}

// WalkBlock returns why the player cannot take a step now, or nil.
func (ctl *Controller) WalkBlock(now time.Time, ignoreLock bool) error {
	c := ctl.player()
	if c == nil {
		return ErrNoPlayer
	}
	if ctl.dead {
		return ErrDead
	}
	if !ignoreLock && ctl.IsWalkLocked(now) {
		return ErrWalkLocked
	}
	if ctl.Position() != ctl.ServerPosition() {
		return ErrDesynced
	}
	if c.Walk.Walking {
		if ctl.autoActive {
			return nil
		}
		if ctl.PreWalking() {
			return ErrDesynced
		}
	}
	if now.Sub(ctl.stepStart) < ctl.stepDuration(c) {
		return ErrStepNotFinished
	}
	return nil
}

func (ctl *Controller) CanWalk(now time.Time) bool { return ctl.WalkBlock(now, false) == nil }

// PreWalk sends a step and starts animating it before the server answers.
func (ctl *Controller) PreWalk(dir world.Direction, now time.Time) error {
	if err := ctl.WalkBlock(now, false); err != nil {
		return err
	}
	return ctl.preWalk(dir, now)
}

func (ctl *Controller) preWalk(dir world.Direction, now time.Time) error {
	c := ctl.player()
	if c == nil {
		return ErrNoPlayer
	}
	if !dir.Valid() {
		return fmt.Errorf("prewalk: invalid direction %d", dir)
	}
	from := ctl.Position()
	to := from.Step(dir)
	if !to.Valid() {
		return fmt.Errorf("prewalk: %v leaves the map", to)
	}
	if !ctl.lim.AllowN(now, 1) {
		return ErrRateLimited
	}
	if err := ctl.send(ctl.opts.Out.Walk(dir)); err != nil {
		return fmt.Errorf("prewalk: %w", err)
	}
	ctl.preWalks = append(ctl.preWalks, to)
	ctl.pred.Walk(c, from, to, now)
	ctl.stepStart = now
	ctl.armPreWalkTimeout(c)
	ctl.log.Debug("prewalk", zap.Stringer("from", from), zap.Stringer("to", to), zap.Int("pending", len(ctl.preWalks)))
	return nil
}

// preWalkTimeout bounds the wait for the server to confirm a step.
func (ctl *Controller) preWalkTimeout(c *world.Creature) time.Duration {
	step := max(ctl.stepDuration(c), preWalkMinStep)
	return min(step+ctl.ping+preWalkSlack, preWalkMaxTimeout)
}

func (ctl *Controller) armPreWalkTimeout(c *world.Creature) {
	ctl.sched.Schedule(ctl.key(motion.SlotPreWalkTimeout), ctl.preWalkTimeout(c), func(time.Time) {
		if !ctl.PreWalking() {
			return
		}
		ctl.log.Debug("prewalk unconfirmed, rolling back", zap.Int("pending", len(ctl.preWalks)))
		ctl.rollback()
	})
}

// rollback drops pending steps and puts the player back on the tile the
// server last confirmed.
func (ctl *Controller) rollback() {
	ctl.preWalks = ctl.preWalks[:0]
	ctl.sched.Cancel(ctl.key(motion.SlotPreWalkTimeout))
	c := ctl.player()
	if c == nil {
		return
	}
	ctl.pred.Stop(c)
	if t := c.Tile(); t != nil {
		c.SetPosition(t.Position())
	}
}

// OnServerMove applies an authoritative move of the local player. A move
// matching the oldest pending step confirms it; anything else discards
// the pending steps and follows the server. It reports whether the move
// confirmed a pending step.
func (ctl *Controller) OnServerMove(from, to world.Position, now time.Time) bool {
	c := ctl.player()
	if c == nil {
		return false
	}
	ctl.retries = 0
	if ctl.PreWalking() && ctl.preWalks[0] == to {
		ctl.preWalks = ctl.preWalks[1:]
		ctl.m.MoveCreature(c, to)
		if ctl.PreWalking() {
			// keep animating towards the newest pending step
			c.SetPosition(ctl.preWalks[len(ctl.preWalks)-1])
		} else {
			ctl.sched.Cancel(ctl.key(motion.SlotPreWalkTimeout))
			ctl.positionChanged(to, now)
		}
		return true
	}

	if ctl.PreWalking() {
		ctl.log.Debug("prewalk desync", zap.Stringer("want", ctl.preWalks[0]), zap.Stringer("got", to))
	}
	ctl.preWalks = ctl.preWalks[:0]
	ctl.sched.Cancel(ctl.key(motion.SlotPreWalkTimeout))
	ctl.serverWalk = true
	ctl.m.MoveCreature(c, to)
	if from.IsAdjacent(to) {
		ctl.pred.Walk(c, from, to, now)
		ctl.stepStart = now
	} else {
		ctl.pred.Stop(c)
	}
	ctl.positionChanged(to, now)
	return false
}

// OnTeleport is a server placement of the player that is not a step,
// such as a floor change or login.
func (ctl *Controller) OnTeleport(pos world.Position) {
	ctl.preWalks = ctl.preWalks[:0]
	ctl.sched.Cancel(ctl.key(motion.SlotPreWalkTimeout))
	if c := ctl.player(); c != nil {
		ctl.pred.Stop(c)
	}
	ctl.log.Debug("player placed", zap.Stringer("pos", pos))
}

// OnWalkTerminated is called when the player's step animation ends.
func (ctl *Controller) OnWalkTerminated() { ctl.serverWalk = false }

func (ctl *Controller) positionChanged(pos world.Position, now time.Time) {
	if !ctl.autoActive {
		return
	}
	switch pos {
	case ctl.autoDest:
		ctl.StopAutoWalk()
	case ctl.lastAutoPos:
		dest := ctl.autoDest
		if err := ctl.autoWalk(dest, now, true); err != nil {
			ctl.log.Debug("auto-walk continuation failed", zap.Error(err))
		}
	}
}

// CancelWalk handles a step the server refused: the player goes back to
// its confirmed tile and walking is locked briefly. A running auto-walk
// is retried instead of turning.
func (ctl *Controller) CancelWalk(dir world.Direction, now time.Time) {
	c := ctl.player()
	if c != nil && c.Walk.Walking && ctl.PreWalking() {
		ctl.pred.Stop(c)
	}
	ctl.rollback()
	ctl.LockWalk(now, DefaultWalkLock)
	if ctl.retryAutoWalk() {
		return
	}
	if c != nil && dir.Valid() {
		ctl.pred.Turn(c, dir)
	}
	if ctl.opts.OnCancelWalk != nil {
		ctl.opts.OnCancelWalk(dir)
	}
}

// SetHealth tracks death; a dead player cannot walk.
func (ctl *Controller) SetHealth(health int, now time.Time) {
	dead := health <= 0
	if dead && !ctl.dead {
		if ctl.PreWalking() {
			ctl.rollback()
		}
		ctl.StopAutoWalk()
		ctl.LockWalk(now, DefaultWalkLock)
	}
	ctl.dead = dead
}

// AutoWalk walks the player to dest along a path found on the known map.
func (ctl *Controller) AutoWalk(dest world.Position, now time.Time) error {
	ctl.retries = 0
	return ctl.autoWalk(dest, now, false)
}

func (ctl *Controller) autoWalk(dest world.Position, now time.Time, retry bool) error {
	ctl.StopAutoWalk()
	if ctl.player() == nil {
		return ErrNoPlayer
	}
	if !dest.Valid() {
		return fmt.Errorf("auto-walk: invalid destination %v", dest)
	}
	start := ctl.Position()
	if dest == start {
		return nil
	}
	path, res := ctl.opts.Path.FindPath(start, dest, AutoWalkComplexity, world.PathAllowNotSeenTiles)
	if res != world.PathOK || len(path) == 0 {
		ctl.log.Debug("auto-walk path", zap.Stringer("to", dest), zap.Stringer("result", res))
		ctl.autoWalkFailed(dest, res)
		return fmt.Errorf("auto-walk to %v: %s", dest, res)
	}
	ctl.autoDest = dest
	ctl.autoActive = true
	ctl.completePath = len(path) <= proto.MaxAutoWalkSteps
	if !ctl.completePath {
		path = path[:proto.MaxAutoWalkSteps]
	}
	ctl.lastAutoPos = start
	for _, d := range path {
		ctl.lastAutoPos = ctl.lastAutoPos.Step(d)
	}

	if ctl.opts.Caps != nil && ctl.opts.Caps.Enabled(proto.GameForceFirstAutoWalkStep) && ctl.WalkBlock(now, true) == nil {
		if err := ctl.preWalk(path[0], now); err == nil {
			path = path[1:]
		}
	}
	if len(path) > 0 {
		if err := ctl.send(ctl.opts.Out.AutoWalk(path)); err != nil {
			return fmt.Errorf("auto-walk: %w", err)
		}
	}
	if !retry {
		ctl.LockWalk(now, DefaultWalkLock)
	}
	ctl.log.Debug("auto-walk", zap.Stringer("to", dest), zap.Int("steps", len(path)), zap.Bool("complete", ctl.completePath))
	return nil
}

// retryAutoWalk schedules another attempt at the current auto-walk with a
// doubling delay. Once the retries are used up the auto-walk fails.
func (ctl *Controller) retryAutoWalk() bool {
	if !ctl.autoActive {
		return false
	}
	dest := ctl.autoDest
	if ctl.retries >= MaxAutoWalkRetries {
		ctl.StopAutoWalk()
		ctl.autoWalkFailed(dest, world.PathNoWay)
		return false
	}
	delay := autoWalkBackoff << ctl.retries
	ctl.retries++
	ctl.log.Debug("auto-walk retry", zap.Int("attempt", ctl.retries), zap.Duration("delay", delay))
	ctl.sched.Schedule(ctl.key(motion.SlotAutoWalkRetry), delay, func(at time.Time) {
		if err := ctl.autoWalk(dest, at, true); err != nil {
			ctl.log.Debug("auto-walk retry failed", zap.Error(err))
		}
	})
	return true
}

func (ctl *Controller) autoWalkFailed(dest world.Position, res world.PathResult) {
	if ctl.opts.OnAutoWalkFailed != nil {
		ctl.opts.OnAutoWalkFailed(dest, res)
	}
}

// StopAutoWalk forgets the auto-walk destination without telling the
// server.
func (ctl *Controller) StopAutoWalk() {
	ctl.autoActive = false
	ctl.autoDest = world.Position{}
	ctl.lastAutoPos = world.Position{}
	ctl.completePath = false
	ctl.sched.Cancel(ctl.key(motion.SlotAutoWalkRetry))
}

// Stop halts every kind of walking and tells the server.
func (ctl *Controller) Stop() error {
	ctl.StopAutoWalk()
	return ctl.send(ctl.opts.Out.Stop(), nil)
}

// Turn faces the player towards dir.
func (ctl *Controller) Turn(dir world.Direction) error {
	if err := ctl.send(ctl.opts.Out.Turn(dir)); err != nil {
		return err
	}
	if c := ctl.player(); c != nil {
		ctl.pred.Turn(c, dir)
	}
	return nil
}

// SendPing sends a client ping and starts timing the round trip.
func (ctl *Controller) SendPing(now time.Time) error {
	if !ctl.pingSent.IsZero() {
		return nil
	}
	if err := ctl.send(ctl.opts.Out.Ping(), nil); err != nil {
		return err
	}
	ctl.pingSent = now
	return nil
}

// PingAnswered completes the round trip started by SendPing.
func (ctl *Controller) PingAnswered(now time.Time) {
	if ctl.pingSent.IsZero() {
		return
	}
	ctl.ping = now.Sub(ctl.pingSent)
	ctl.pingSent = time.Time{}
	ctl.log.Debug("ping", zap.Duration("rtt", ctl.ping))
}

// Reset forgets everything about the previous player.
func (ctl *Controller) Reset() {
	ctl.preWalks = nil
	ctl.lockUntil = time.Time{}
	ctl.stepStart = time.Time{}
	ctl.dead = false
	ctl.serverWalk = false
	ctl.StopAutoWalk()
	ctl.retries = 0
	ctl.ping = 0
	ctl.pingSent = time.Time{}
	ctl.sched.Cancel(ctl.key(motion.SlotPreWalkTimeout))
	ctl.sched.Cancel(ctl.key(motion.SlotWalkLock))
}
