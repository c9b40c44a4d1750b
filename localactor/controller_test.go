package localactor

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"gotibia/motion"
	"gotibia/proto"
	"gotibia/world"
)

const (
	grass    = 100
	playerID = 0x10000001
)

var (
	epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	start = world.Position{X: 100, Y: 100, Z: 7}
	east  = world.Position{X: 101, Y: 100, Z: 7}
)

type sentLog struct {
	payloads [][]byte
}

func (s *sentLog) Send(p []byte) error {
	s.payloads = append(s.payloads, append([]byte(nil), p...))
	return nil
}

func (s *sentLog) count(op proto.Opcode) int {
	n := 0
	for _, p := range s.payloads {
		if len(p) > 0 && proto.Opcode(p[0]) == op {
			n++
		}
	}
	return n
}

type fixedPath struct {
	path  []world.Direction
	res   world.PathResult
	calls int
}

func (f *fixedPath) FindPath(_, _ world.Position, _ int, _ world.PathFlags) ([]world.Direction, world.PathResult) {
	f.calls++
	return f.path, f.res
}

type fixture struct {
	m      *world.Map
	clock  *motion.ManualClock
	sched  *motion.Scheduler
	ctl    *Controller
	sent   *sentLog
	player *world.Creature
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	types := world.NewStaticTypes(world.ItemType{ID: grass, Ground: true, GroundSpeed: 150})
	m := world.NewMap(types, world.Options{Version: 860, Log: log})
	for x := 95; x <= 105; x++ {
		for y := 95; y <= 105; y++ {
			m.AddThing(world.NewItem(grass, 0), world.Position{X: x, Y: y, Z: 7}, world.StackAuto)
		}
	}
	p := world.NewCreature(playerID)
	p.Speed = 220
	m.AddThing(p, start, world.StackAuto)
	m.SetLocalPlayerID(playerID)
	m.SetCentralPosition(start)

	clock := motion.NewManualClock(epoch)
	sched := motion.NewScheduler(clock)
	pred := motion.NewPredictor(m, sched, &motion.StepLaw{}, log)
	sent := &sentLog{}
	caps := proto.NewVersionTable(860)
	opts.Caps = caps
	opts.Out = proto.NewOutbound(caps, nil)
	opts.Send = sent
	opts.Log = log
	return &fixture{m: m, clock: clock, sched: sched, ctl: NewController(m, pred, opts), sent: sent, player: p}
}

func (f *fixture) advance(d time.Duration) time.Time {
	now := f.clock.Advance(d)
	f.sched.RunDue(now)
	return now
}

func TestPreWalkConfirmed(t *testing.T) {
	f := newFixture(t, Options{})
	now := f.clock.Now()
	if err := f.ctl.PreWalk(world.East, now); err != nil {
		t.Fatalf("prewalk: %v", err)
	}
	if f.sent.count(proto.ClientWalkEast) != 1 {
		t.Fatalf("walk packet not sent: %v", f.sent.payloads)
	}
	if f.ctl.PendingSteps() != 1 || f.ctl.Position() != east {
		t.Fatalf("pending=%d position=%v", f.ctl.PendingSteps(), f.ctl.Position())
	}
	if f.player.Tile().Position() != start || !f.player.Walk.Walking {
		t.Fatalf("player should animate from its confirmed tile")
	}

	now = f.advance(50 * time.Millisecond)
	if !f.ctl.OnServerMove(start, east, now) {
		t.Fatalf("matching move not treated as confirmation")
	}
	if f.ctl.PreWalking() {
		t.Fatalf("queue not drained")
	}
	if f.player.Tile().Position() != east {
		t.Fatalf("tile=%v, want %v", f.player.Tile().Position(), east)
	}
	if !f.player.Walk.Walking || f.player.Walk.Start != epoch {
		t.Fatalf("confirmation must not restart the step")
	}
	if f.sched.Pending(motion.Key{ID: playerID, Slot: motion.SlotPreWalkTimeout}) {
		t.Fatalf("timeout still armed")
	}
	if err := f.m.CheckIndex(); err != nil {
		t.Fatalf("index: %v", err)
	}
}

func TestPreWalkWaitsForConfirmation(t *testing.T) {
	f := newFixture(t, Options{})
	now := f.clock.Now()
	if err := f.ctl.PreWalk(world.East, now); err != nil {
		t.Fatalf("prewalk: %v", err)
	}
	now = f.clock.Advance(time.Second)
	if err := f.ctl.PreWalk(world.East, now); !errors.Is(err, ErrDesynced) {
		t.Fatalf("err=%v, want ErrDesynced", err)
	}
}

func TestPreWalkDesyncFollowsServer(t *testing.T) {
	f := newFixture(t, Options{})
	now := f.clock.Now()
	f.ctl.PreWalk(world.East, now)
	south := world.Position{X: 100, Y: 101, Z: 7}
	now = f.advance(20 * time.Millisecond)
	if f.ctl.OnServerMove(start, south, now) {
		t.Fatalf("mismatching move reported as confirmation")
	}
	if f.ctl.PreWalking() {
		t.Fatalf("queue not discarded")
	}
	if f.player.Tile().Position() != south || f.player.Position() != south {
		t.Fatalf("player at %v, want %v", f.player.Position(), south)
	}
	if f.player.Walk.To != south || f.player.Walk.Start != now {
		t.Fatalf("walk=%+v, want a fresh step to %v", f.player.Walk, south)
	}
	if !f.ctl.ServerWalking() {
		t.Fatalf("server walk not flagged")
	}
}

func TestPreWalkTimeoutRollsBack(t *testing.T) {
	f := newFixture(t, Options{})
	f.ctl.PreWalk(world.East, f.clock.Now())
	// 700 ms step + 100 ms slack
	f.advance(799 * time.Millisecond)
	if !f.ctl.PreWalking() {
		t.Fatalf("rolled back too early")
	}
	f.advance(time.Millisecond)
	if f.ctl.PreWalking() {
		t.Fatalf("pending step not dropped after timeout")
	}
	if f.player.Position() != start || f.player.Walk.Walking {
		t.Fatalf("player at %v walking=%v, want %v", f.player.Position(), f.player.Walk.Walking, start)
	}
}

func TestPreWalkTimeoutIncludesPing(t *testing.T) {
	f := newFixture(t, Options{})
	f.ctl.SendPing(f.clock.Now())
	f.ctl.PingAnswered(f.clock.Advance(150 * time.Millisecond))
	if f.ctl.Ping() != 150*time.Millisecond {
		t.Fatalf("ping=%v", f.ctl.Ping())
	}
	if got := f.ctl.preWalkTimeout(f.player); got != 950*time.Millisecond {
		t.Fatalf("timeout=%v, want 950ms", got)
	}
	f.ctl.SendPing(f.clock.Now())
	f.ctl.PingAnswered(f.clock.Advance(600 * time.Millisecond))
	if got := f.ctl.preWalkTimeout(f.player); got != time.Second {
		t.Fatalf("timeout=%v, want the 1s cap", got)
	}
}

func TestCancelWalkLocksAndTurns(t *testing.T) {
	var cancelled []world.Direction
	f := newFixture(t, Options{OnCancelWalk: func(d world.Direction) { cancelled = append(cancelled, d) }})
	now := f.clock.Now()
	f.ctl.PreWalk(world.East, now)
	now = f.clock.Advance(30 * time.Millisecond)
	f.ctl.CancelWalk(world.West, now)

	if f.ctl.PreWalking() || f.player.Position() != start || f.player.Walk.Walking {
		t.Fatalf("cancel did not restore the player")
	}
	if f.player.Direction != world.West {
		t.Fatalf("direction=%s, want west", f.player.Direction)
	}
	if !f.ctl.IsWalkLocked(now.Add(249 * time.Millisecond)) {
		t.Fatalf("walk not locked")
	}
	if f.ctl.IsWalkLocked(now.Add(DefaultWalkLock)) {
		t.Fatalf("walk lock did not expire")
	}
	if len(cancelled) != 1 || cancelled[0] != world.West {
		t.Fatalf("cancel callback=%v", cancelled)
	}
}

func TestWalkLockExpires(t *testing.T) {
	f := newFixture(t, Options{})
	lock := motion.Key{ID: playerID, Slot: motion.SlotWalkLock}
	f.ctl.LockWalk(f.clock.Now(), DefaultWalkLock)
	if !f.sched.Pending(lock) || !f.ctl.IsWalkLocked(f.clock.Now()) {
		t.Fatalf("lock pending=%v locked=%v", f.sched.Pending(lock), f.ctl.IsWalkLocked(f.clock.Now()))
	}
	// a shorter lock does not cut the running one
	f.ctl.LockWalk(f.clock.Now(), 10*time.Millisecond)
	now := f.advance(100 * time.Millisecond)
	if !f.ctl.IsWalkLocked(now) {
		t.Fatalf("lock ended early")
	}
	now = f.advance(DefaultWalkLock)
	if f.sched.Pending(lock) || f.ctl.IsWalkLocked(now) {
		t.Fatalf("lock still held after expiry")
	}
	if err := f.ctl.PreWalk(world.East, now); err != nil {
		t.Fatalf("prewalk after unlock: %v", err)
	}

	f.ctl.LockWalk(now, DefaultWalkLock)
	f.ctl.UnlockWalk()
	if f.sched.Pending(lock) {
		t.Fatalf("unlock left the expiry armed")
	}
}

func TestWalkBlockReasons(t *testing.T) {
	f := newFixture(t, Options{})
	now := f.clock.Now()
	if err := f.ctl.WalkBlock(now, false); err != nil {
		t.Fatalf("idle player blocked: %v", err)
	}
	f.ctl.OnServerMove(start, east, now)
	if err := f.ctl.WalkBlock(now.Add(100*time.Millisecond), false); !errors.Is(err, ErrStepNotFinished) {
		t.Fatalf("err=%v, want ErrStepNotFinished", err)
	}
	if err := f.ctl.WalkBlock(now.Add(700*time.Millisecond), false); err != nil {
		t.Fatalf("finished step still blocks: %v", err)
	}
	f.ctl.LockWalk(now, time.Second)
	if err := f.ctl.WalkBlock(now.Add(700*time.Millisecond), false); !errors.Is(err, ErrWalkLocked) {
		t.Fatalf("err=%v, want ErrWalkLocked", err)
	}
	if err := f.ctl.WalkBlock(now.Add(700*time.Millisecond), true); err != nil {
		t.Fatalf("ignoreLock still blocked: %v", err)
	}
	f.ctl.SetHealth(0, now)
	if err := f.ctl.WalkBlock(now.Add(2*time.Second), false); !errors.Is(err, ErrDead) {
		t.Fatalf("err=%v, want ErrDead", err)
	}
}

func TestStepRateLimited(t *testing.T) {
	f := newFixture(t, Options{StepRate: rate.Every(2 * time.Second), Burst: 1})
	now := f.clock.Now()
	if err := f.ctl.PreWalk(world.East, now); err != nil {
		t.Fatalf("prewalk: %v", err)
	}
	f.ctl.OnServerMove(start, east, now)
	now = f.advance(time.Second)
	if err := f.ctl.PreWalk(world.East, now); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v, want ErrRateLimited", err)
	}
	now = f.advance(time.Second)
	if err := f.ctl.PreWalk(world.East, now); err != nil {
		t.Fatalf("prewalk after refill: %v", err)
	}
}

func TestAutoWalkContinuesToDestination(t *testing.T) {
	path := &fixedPath{path: []world.Direction{world.East, world.East, world.East}}
	f := newFixture(t, Options{Path: path})
	dest := world.Position{X: 103, Y: 100, Z: 7}
	now := f.clock.Now()
	if err := f.ctl.AutoWalk(dest, now); err != nil {
		t.Fatalf("auto-walk: %v", err)
	}
	want := []byte{uint8(proto.ClientAutoWalk), 3, 1, 1, 1}
	if got := f.sent.payloads[len(f.sent.payloads)-1]; string(got) != string(want) {
		t.Fatalf("packet=%v, want %v", got, want)
	}
	pos := start
	for i := 0; i < 3; i++ {
		if !f.ctl.AutoWalking() {
			t.Fatalf("auto-walk stopped after %d steps", i)
		}
		next := pos.Step(world.East)
		now = f.advance(700 * time.Millisecond)
		f.ctl.OnServerMove(pos, next, now)
		pos = next
	}
	if f.ctl.AutoWalking() {
		t.Fatalf("auto-walk still active at destination")
	}
	if path.calls != 1 {
		t.Fatalf("path searched %d times", path.calls)
	}
}

func TestAutoWalkRetryBackoff(t *testing.T) {
	var failed []world.Position
	path := &fixedPath{path: []world.Direction{world.East, world.East}}
	f := newFixture(t, Options{
		Path:             path,
		OnAutoWalkFailed: func(dest world.Position, _ world.PathResult) { failed = append(failed, dest) },
	})
	dest := world.Position{X: 102, Y: 100, Z: 7}
	if err := f.ctl.AutoWalk(dest, f.clock.Now()); err != nil {
		t.Fatalf("auto-walk: %v", err)
	}

	for i, backoff := range []time.Duration{200, 400, 800} {
		backoff *= time.Millisecond
		f.ctl.CancelWalk(world.East, f.clock.Now())
		f.advance(backoff - time.Millisecond)
		if got := f.sent.count(proto.ClientAutoWalk); got != i+1 {
			t.Fatalf("retry %d fired early: %d packets", i+1, got)
		}
		f.advance(time.Millisecond)
		if got := f.sent.count(proto.ClientAutoWalk); got != i+2 {
			t.Fatalf("retry %d not sent after %v: %d packets", i+1, backoff, got)
		}
	}
	f.ctl.CancelWalk(world.East, f.clock.Now())
	if f.ctl.AutoWalking() {
		t.Fatalf("auto-walk still active after retries ran out")
	}
	if len(failed) != 1 || failed[0] != dest {
		t.Fatalf("failed=%v", failed)
	}
}

func TestAutoWalkNoPath(t *testing.T) {
	var res []world.PathResult
	f := newFixture(t, Options{
		Path:             &fixedPath{res: world.PathNoWay},
		OnAutoWalkFailed: func(_ world.Position, r world.PathResult) { res = append(res, r) },
	})
	if err := f.ctl.AutoWalk(world.Position{X: 104, Y: 104, Z: 7}, f.clock.Now()); err == nil {
		t.Fatalf("auto-walk without a path succeeded")
	}
	if len(res) != 1 || res[0] != world.PathNoWay {
		t.Fatalf("failure callback=%v", res)
	}
	if f.sent.count(proto.ClientAutoWalk) != 0 {
		t.Fatalf("packet sent without a path")
	}
}

func TestAutoWalkUsesMapPathfinder(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.ctl.AutoWalk(world.Position{X: 100, Y: 103, Z: 7}, f.clock.Now()); err != nil {
		t.Fatalf("auto-walk: %v", err)
	}
	last := f.sent.payloads[len(f.sent.payloads)-1]
	if last[0] != uint8(proto.ClientAutoWalk) || last[1] != 3 {
		t.Fatalf("packet=%v", last)
	}
	for _, b := range last[2:] {
		if b != 7 {
			t.Fatalf("path=%v, want three south steps", last[2:])
		}
	}
}
