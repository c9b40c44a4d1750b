package motion

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"gotibia/world"
)

const grass = 100

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type walkCounter struct {
	world.NopObserver
	terminated int
}

func (w *walkCounter) OnWalkTerminated(*world.Creature) { w.terminated++ }

type fixture struct {
	m     *world.Map
	clock *ManualClock
	sched *Scheduler
	pred  *Predictor
	obs   *walkCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	types := world.NewStaticTypes(world.ItemType{ID: grass, Ground: true, GroundSpeed: 150})
	log := zaptest.NewLogger(t)
	m := world.NewMap(types, world.Options{Version: 1098, Log: log})
	for x := 98; x <= 103; x++ {
		for y := 98; y <= 103; y++ {
			m.AddThing(world.NewItem(grass, 0), world.Position{X: x, Y: y, Z: 7}, world.StackAuto)
		}
	}
	clock := NewManualClock(epoch)
	sched := NewScheduler(clock)
	obs := &walkCounter{}
	m.Subscribe(obs)
	return &fixture{m: m, clock: clock, sched: sched, pred: NewPredictor(m, sched, &StepLaw{}, log), obs: obs}
}

func (f *fixture) creature(id uint32, pos world.Position, speed int) *world.Creature {
	c := world.NewCreature(id)
	c.Speed = speed
	f.m.AddThing(c, pos, world.StackAuto)
	return c
}

func (f *fixture) step(c *world.Creature, to world.Position) {
	from := c.Position()
	f.m.MoveCreature(c, to)
	f.pred.Walk(c, from, to, f.clock.Now())
}

func TestStepLawInterval(t *testing.T) {
	tests := []struct {
		name   string
		law    StepLaw
		ground int
		speed  int
		want   time.Duration
	}{
		{"legacy", StepLaw{}, 150, 220, 700 * time.Millisecond},
		{"legacy slow ground", StepLaw{}, 400, 220, 1850 * time.Millisecond},
		{"zero speed", StepLaw{}, 150, 0, 0},
		{"default ground", StepLaw{}, 0, 150, time.Second},
		{"speed law", StepLaw{A: 857.36, B: 261.29, C: -4795.01}, 150, 220, 300 * time.Millisecond},
		{"speed law slow", StepLaw{A: 857.36, B: 261.29, C: -4795.01}, 150, 110, 550 * time.Millisecond},
		{"speed law fast", StepLaw{A: 857.36, B: 261.29, C: -4795.01}, 150, 500, 200 * time.Millisecond},
		{"beat 100", StepLaw{ServerBeat: 100}, 150, 220, 700 * time.Millisecond},
		{"beat 40", StepLaw{ServerBeat: 40}, 150, 220, 720 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.law.Interval(tt.ground, tt.speed); got != tt.want {
				t.Fatalf("Interval=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiagonalFactorExact(t *testing.T) {
	tests := []struct {
		version, want int
	}{
		{0, 2}, {760, 2}, {810, 2}, {811, 3}, {860, 3}, {1098, 3},
	}
	for _, tt := range tests {
		law := StepLaw{Version: tt.version}
		orth := law.Duration(150, 220, world.East)
		for _, d := range []world.Direction{world.NorthEast, world.SouthEast, world.SouthWest, world.NorthWest} {
			if got := law.Duration(150, 220, d); got != time.Duration(tt.want)*orth {
				t.Fatalf("version %d %v=%v, want %d*%v", tt.version, d, got, tt.want, orth)
			}
		}
	}

	law := StepLaw{Version: 1098}
	law.SetServer(50, 857.36, 261.29, -4795.01)
	orth := law.Duration(150, 220, world.South)
	if got := law.Duration(150, 220, world.NorthEast); got != 3*orth {
		t.Fatalf("speed law diagonal=%v, want %v", got, 3*orth)
	}
}

func TestStepCacheFollowsLawRevision(t *testing.T) {
	f := newFixture(t)
	c := f.creature(0x10000001, world.Position{X: 100, Y: 100, Z: 7}, 220)
	if got := f.pred.StepDuration(c, true); got != 700*time.Millisecond {
		t.Fatalf("before login=%v", got)
	}
	f.pred.Law().SetServer(50, 857.36, 261.29, -4795.01)
	if got := f.pred.StepDuration(c, true); got != 300*time.Millisecond {
		t.Fatalf("after login=%v", got)
	}
}

func TestWalkMonotonic(t *testing.T) {
	f := newFixture(t)
	start := world.Position{X: 100, Y: 100, Z: 7}
	c := f.creature(0x40000001, start, 220)
	f.step(c, start.Step(world.East))

	if !c.Walk.Walking || c.Direction != world.East {
		t.Fatalf("walk not started: %+v", c.Walk)
	}
	if c.Tile() != f.m.Tile(start.Step(world.East)) {
		t.Fatalf("creature not a member of the destination tile")
	}
	if c.Walk.WalkingTile != f.m.Tile(start) {
		t.Fatalf("overlay starts on %v, want source tile", c.Walk.WalkingTile.Position())
	}

	lastPx := -1
	lastOff := -world.TilePixels - 1
	for ms := 0; ms < 700; ms += 35 {
		f.pred.Sample(c, epoch.Add(time.Duration(ms)*time.Millisecond))
		if c.Walk.WalkedPixels < lastPx {
			t.Fatalf("t=%dms: pixels went back %d -> %d", ms, lastPx, c.Walk.WalkedPixels)
		}
		if c.Walk.OffsetX < lastOff || c.Walk.OffsetX > 0 {
			t.Fatalf("t=%dms: offset %d after %d", ms, c.Walk.OffsetX, lastOff)
		}
		if c.Walk.OffsetY != 0 {
			t.Fatalf("t=%dms: vertical offset %d", ms, c.Walk.OffsetY)
		}
		lastPx, lastOff = c.Walk.WalkedPixels, c.Walk.OffsetX
	}
	f.pred.Sample(c, epoch.Add(700*time.Millisecond))
	if c.Walk.Walking {
		t.Fatalf("walk not terminated at its duration")
	}
	if f.obs.terminated != 1 {
		t.Fatalf("terminations=%d, want 1", f.obs.terminated)
	}
	if len(f.m.Tile(start).Walking()) != 0 || len(f.m.Tile(start.Step(world.East)).Walking()) != 0 {
		t.Fatalf("overlay not released")
	}
}

func TestSampleIdempotent(t *testing.T) {
	f := newFixture(t)
	start := world.Position{X: 100, Y: 100, Z: 7}
	c := f.creature(0x40000001, start, 220)
	f.step(c, start.Step(world.SouthWest))
	at := epoch.Add(333 * time.Millisecond)
	f.pred.Sample(c, at)
	first := c.Walk
	f.pred.Sample(c, at)
	if c.Walk != first {
		t.Fatalf("second sample changed state:\n%+v\n%+v", first, c.Walk)
	}
}

func TestDiagonalWalkLastsLonger(t *testing.T) {
	f := newFixture(t)
	start := world.Position{X: 100, Y: 100, Z: 7}
	c := f.creature(0x40000001, start, 220)
	f.step(c, start.Step(world.NorthEast))
	if c.Walk.Duration != 1400*time.Millisecond {
		t.Fatalf("duration=%v, want 1.4s", c.Walk.Duration)
	}
	f.pred.Sample(c, epoch.Add(800*time.Millisecond))
	if !c.Walk.Walking {
		t.Fatalf("diagonal step ended at the orthogonal duration")
	}
	if c.Walk.WalkedPixels != world.TilePixels {
		t.Fatalf("pixels=%d, want %d", c.Walk.WalkedPixels, world.TilePixels)
	}
	f.pred.Sample(c, epoch.Add(1400*time.Millisecond))
	if c.Walk.Walking {
		t.Fatalf("diagonal step did not end")
	}
}

func TestSchedulerDrivesWalk(t *testing.T) {
	f := newFixture(t)
	start := world.Position{X: 100, Y: 100, Z: 7}
	c := f.creature(0x40000001, start, 220)
	f.step(c, start.Step(world.West))
	if !f.sched.Pending(Key{ID: c.ID, Slot: SlotWalkUpdate}) {
		t.Fatalf("no walk update scheduled")
	}
	for i := 0; i < 200 && c.Walk.Walking; i++ {
		f.sched.RunDue(f.clock.Advance(10 * time.Millisecond))
	}
	if c.Walk.Walking {
		t.Fatalf("scheduler never finished the walk")
	}
	if f.sched.Pending(Key{ID: c.ID, Slot: SlotWalkUpdate}) {
		t.Fatalf("walk update still pending after termination")
	}
}

func TestTurnLatchedDuringWalk(t *testing.T) {
	f := newFixture(t)
	start := world.Position{X: 100, Y: 100, Z: 7}
	c := f.creature(0x40000001, start, 220)
	f.step(c, start.Step(world.North))
	f.pred.Turn(c, world.West)
	if c.Direction != world.North {
		t.Fatalf("turn applied mid-walk")
	}
	f.pred.Terminate(c)
	if c.Direction != world.West {
		t.Fatalf("latched turn lost, direction=%v", c.Direction)
	}
	f.pred.Turn(c, world.South)
	if c.Direction != world.South {
		t.Fatalf("idle turn not applied")
	}
}

func TestZeroSpeedStepIsInstant(t *testing.T) {
	f := newFixture(t)
	start := world.Position{X: 100, Y: 100, Z: 7}
	c := f.creature(0x40000001, start, 0)
	f.step(c, start.Step(world.East))
	if c.Walk.Walking {
		t.Fatalf("zero-speed creature still walking")
	}
}

func TestStaleWalkTimerIsNoop(t *testing.T) {
	f := newFixture(t)
	start := world.Position{X: 100, Y: 100, Z: 7}
	c := f.creature(0x40000001, start, 220)
	f.step(c, start.Step(world.East))
	f.m.RemoveCreatureByID(c.ID)
	offset := c.Walk.OffsetX
	if n := f.sched.RunDue(f.clock.Advance(100 * time.Millisecond)); n != 1 {
		t.Fatalf("ran=%d, want 1", n)
	}
	if c.Walk.OffsetX != offset {
		t.Fatalf("stale timer advanced a removed creature")
	}
	if f.sched.Pending(Key{ID: c.ID, Slot: SlotWalkUpdate}) {
		t.Fatalf("stale timer rescheduled itself")
	}
}

func TestFootDelayClamp(t *testing.T) {
	var p Predictor
	tests := []struct {
		enhanced bool
		step     time.Duration
		phases   int
		want     time.Duration
	}{
		{false, 700 * time.Millisecond, 3, 233333333 * time.Nanosecond},
		{false, 90 * time.Millisecond, 3, 60 * time.Millisecond},
		{false, 2 * time.Second, 2, 300 * time.Millisecond},
		{true, 700 * time.Millisecond, 3, 200 * time.Millisecond},
		{true, 90 * time.Millisecond, 3, 40 * time.Millisecond},
	}
	for _, tt := range tests {
		p.EnhancedAnimations = tt.enhanced
		if got := p.FootDelay(tt.step, tt.phases); got != tt.want {
			t.Fatalf("FootDelay(%v, %d, enhanced=%v)=%v, want %v", tt.step, tt.phases, tt.enhanced, got, tt.want)
		}
	}
}

func TestFinishAnimationResetsPhase(t *testing.T) {
	f := newFixture(t)
	start := world.Position{X: 100, Y: 100, Z: 7}
	c := f.creature(0x40000001, start, 220)
	c.Outfit.LookType = 128
	f.step(c, start.Step(world.NorthWest))
	if c.Walk.AnimPhase == 0 {
		t.Fatalf("no foot phase at walk start")
	}
	f.pred.Sample(c, f.clock.Advance(700*time.Millisecond))
	if !f.sched.Pending(Key{ID: c.ID, Slot: SlotWalkFinishAnim}) {
		t.Fatalf("finish animation not scheduled")
	}
	f.clock.Advance(200 * time.Millisecond)
	f.sched.Cancel(Key{ID: c.ID, Slot: SlotWalkUpdate})
	f.sched.Run()
	if c.Walk.AnimPhase != 0 {
		t.Fatalf("phase=%d after the step finished", c.Walk.AnimPhase)
	}
}
