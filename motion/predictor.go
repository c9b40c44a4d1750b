package motion

import (
	"time"

	"go.uber.org/zap"

	"gotibia/world"
)

const (
	finishAnimMax = 200 * time.Millisecond

	footDelayMin         = 60 * time.Millisecond
	footDelayMax         = 300 * time.Millisecond
	footDelayEnhancedMin = 40 * time.Millisecond
	footDelayEnhancedMax = 200 * time.Millisecond

	lookTypeExDisplacement = 8
)

// Predictor animates creatures between the discrete positions the server
// reports. A creature stays a stack member of its destination tile for
// the whole step; the predictor only moves its pixel offset and its
// walking-overlay registration.
type Predictor struct {
	log   *zap.Logger
	m     *world.Map
	sched *Scheduler
	law   *StepLaw

	// EnhancedAnimations narrows the foot-step delay window.
	EnhancedAnimations bool
}

func NewPredictor(m *world.Map, sched *Scheduler, law *StepLaw, log *zap.Logger) *Predictor {
	if log == nil {
		log = zap.NewNop()
	}
	if law == nil {
		law = &StepLaw{}
	}
	return &Predictor{log: log, m: m, sched: sched, law: law}
}

func (p *Predictor) Law() *StepLaw { return p.law }

func (p *Predictor) Scheduler() *Scheduler { return p.sched }

// groundSpeed reads the ground under the last step's destination, falling
// back to the creature's tile.
func (p *Predictor) groundSpeed(c *world.Creature) int {
	if to := c.Walk.LastStepTo; to.Valid() && to != (world.Position{}) {
		if t := p.m.Tile(to); t != nil {
			return t.GroundSpeed(p.m.Types())
		}
	}
	if t := p.m.Tile(c.Position()); t != nil {
		return t.GroundSpeed(p.m.Types())
	}
	return world.DefaultGroundSpeed
}

// StepDuration returns the creature's current step duration. With
// ignoreDiagonal the orthogonal duration is returned even after a
// diagonal step.
func (p *Predictor) StepDuration(c *world.Creature, ignoreDiagonal bool) time.Duration {
	if c.Speed < 1 {
		return 0
	}
	gs := p.groundSpeed(c)
	sc := &c.StepCache
	if sc.Speed != c.Speed || sc.GroundSpeed != gs || sc.LawRev != p.law.Rev() || sc.Duration == 0 {
		sc.Speed = c.Speed
		sc.GroundSpeed = gs
		sc.LawRev = p.law.Rev()
		sc.Duration = p.law.Interval(gs, c.Speed)
		sc.Diagonal = sc.Duration * time.Duration(p.law.DiagonalFactor())
	}
	if !ignoreDiagonal && c.Walk.LastStepDir.IsDiagonal() {
		return sc.Diagonal
	}
	return sc.Duration
}

// Walk starts a step from from to to at now. The creature's logical
// position becomes to immediately.
func (p *Predictor) Walk(c *world.Creature, from, to world.Position, now time.Time) {
	if from == to {
		return
	}
	w := &c.Walk
	dir := from.DirectionTo(to)
	w.LastStepDir = dir
	w.LastStepFrom = from
	w.LastStepTo = to
	w.From, w.To, w.Dir = from, to, dir
	c.Direction = dir
	c.SetPosition(to)

	w.Walking = true
	w.Start = now
	w.WalkedPixels = 0
	w.Duration = p.StepDuration(c, false)
	p.sched.Cancel(Key{ID: c.ID, Slot: SlotWalkFinishAnim})
	w.TurnPending = world.InvalidDirection

	p.nextWalkUpdate(c, now)
}

func (p *Predictor) nextWalkUpdate(c *world.Creature, now time.Time) {
	key := Key{ID: c.ID, Slot: SlotWalkUpdate}
	p.sched.Cancel(key)
	p.Sample(c, now)
	if !c.Walk.Walking {
		return
	}
	interval := p.StepDuration(c, true) / world.TilePixels
	interval = interval.Truncate(time.Millisecond)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	p.sched.Schedule(key, interval, func(at time.Time) {
		if !p.tracked(c) {
			p.log.Debug("walk update for untracked creature dropped", zap.Uint32("id", c.ID))
			return
		}
		p.nextWalkUpdate(c, at)
	})
}

// tracked reports whether c is still the live creature for its id.
func (p *Predictor) tracked(c *world.Creature) bool {
	return c.Walk.Walking && !c.Removed && p.m.CreatureByID(c.ID) == c
}

// Sample advances the walk state of c to now. Calling it twice with the
// same timestamp changes nothing the second time.
func (p *Predictor) Sample(c *world.Creature, now time.Time) {
	w := &c.Walk
	if !w.Walking {
		return
	}
	step := p.StepDuration(c, true)
	elapsed := now.Sub(w.Start)
	if elapsed < 0 {
		elapsed = 0
	}
	px := world.TilePixels
	if step > 0 {
		px = min(int(elapsed*world.TilePixels/step), world.TilePixels)
	}
	w.WalkedPixels = max(w.WalkedPixels, px)

	p.updateAnimation(c, px, step, now)
	p.updateOffset(c)
	p.updateWalkingTile(c)

	if elapsed >= p.StepDuration(c, false) {
		p.Terminate(c)
	}
}

func (p *Predictor) footPhases(c *world.Creature) int {
	types := p.m.Types()
	look := c.Outfit.LookType
	if c.Outfit.Mount != 0 {
		look = c.Outfit.Mount
	}
	if look == 0 && c.Outfit.LookTypeEx != 0 {
		return 0
	}
	return types.CreaturePhases(look) - 1
}

// FootDelay is the time between foot-step frames for a step of the given
// duration.
func (p *Predictor) FootDelay(step time.Duration, phases int) time.Duration {
	lo, hi := footDelayMin, footDelayMax
	if p.EnhancedAnimations {
		lo, hi = footDelayEnhancedMin, footDelayEnhancedMax
	}
	if phases < 1 {
		phases = 1
	}
	d := step / time.Duration(phases)
	return min(max(d, lo), hi)
}

func (p *Predictor) updateAnimation(c *world.Creature, px int, step time.Duration, now time.Time) {
	w := &c.Walk
	phases := p.footPhases(c)
	if phases <= 0 {
		w.AnimPhase = 0
		return
	}
	delay := p.FootDelay(step, phases)
	switch {
	case px < world.TilePixels && now.Sub(w.FootChanged) >= delay:
		w.FootStep++
		w.AnimPhase = 1 + w.FootStep%phases
		w.FootChanged = now
	case px < world.TilePixels && w.AnimPhase == 0:
		w.AnimPhase = 1 + w.FootStep%phases
	}

	key := Key{ID: c.ID, Slot: SlotWalkFinishAnim}
	if px == world.TilePixels && !p.sched.Pending(key) {
		p.sched.Schedule(key, min(delay, finishAnimMax), func(at time.Time) {
			if !c.Walk.Walking || at.Sub(c.Walk.Start) >= p.StepDuration(c, true) {
				c.Walk.AnimPhase = 0
			}
		})
	}
}

func (p *Predictor) updateOffset(c *world.Creature) {
	w := &c.Walk
	left := world.TilePixels - w.WalkedPixels
	w.OffsetX, w.OffsetY = 0, 0
	switch w.LastStepDir {
	case world.North, world.NorthEast, world.NorthWest:
		w.OffsetY = left
	case world.South, world.SouthEast, world.SouthWest:
		w.OffsetY = -left
	}
	switch w.LastStepDir {
	case world.East, world.NorthEast, world.SouthEast:
		w.OffsetX = -left
	case world.West, world.NorthWest, world.SouthWest:
		w.OffsetX = left
	}
}

// Offset is the pixel displacement of c from its logical tile.
func (p *Predictor) Offset(c *world.Creature) (x, y int) {
	return c.Walk.OffsetX, c.Walk.OffsetY
}

// updateWalkingTile registers c on the overlay of the tile its sprite's
// bottom-right corner is over.
func (p *Predictor) updateWalkingTile(c *world.Creature) {
	const tp = world.TilePixels
	disp := 0
	if c.Outfit.LookTypeEx != 0 {
		disp = lookTypeExDisplacement
	}
	right := tp + c.Walk.OffsetX - disp + tp
	bottom := tp + c.Walk.OffsetY - disp + tp

	pos := c.Position()
	for xi := -1; xi <= 1; xi++ {
		for yi := -1; yi <= 1; yi++ {
			l, t := (xi+1)*tp, (yi+1)*tp
			if right >= l && right <= l+tp && bottom >= t && bottom <= t+tp {
				p.m.SetWalkingTile(c, pos.Translated(xi, yi, 0), true)
				return
			}
		}
	}
	p.m.SetWalkingTile(c, world.Position{}, false)
}

// Terminate ends the current step: the latched turn is applied and the
// overlay registration dropped.
func (p *Predictor) Terminate(c *world.Creature) {
	p.sched.Cancel(Key{ID: c.ID, Slot: SlotWalkUpdate})
	w := &c.Walk
	if w.TurnPending.Valid() {
		c.Direction = w.TurnPending
		w.TurnPending = world.InvalidDirection
	}
	if w.WalkingTile != nil {
		p.m.SetWalkingTile(c, world.Position{}, false)
	}
	wasWalking := w.Walking
	w.Walking = false
	w.WalkedPixels = 0
	w.OffsetX, w.OffsetY = 0, 0
	w.AnimPhase = 0
	if wasWalking {
		p.m.NotifyWalkTerminated(c)
	}
}

// Stop terminates a walk in progress.
func (p *Predictor) Stop(c *world.Creature) {
	if c.Walk.Walking {
		p.Terminate(c)
	}
}

// Turn faces c towards dir, deferring it to the end of a walk in
// progress.
func (p *Predictor) Turn(c *world.Creature, dir world.Direction) {
	if !dir.Valid() {
		return
	}
	if c.Walk.Walking {
		c.Walk.TurnPending = dir
		return
	}
	c.Direction = dir
}

// SetSpeed changes the speed of c and re-times a walk in progress.
func (p *Predictor) SetSpeed(c *world.Creature, speed int, now time.Time) {
	if c.Speed == speed {
		return
	}
	c.Speed = speed
	if c.Walk.Walking {
		p.nextWalkUpdate(c, now)
	}
}

// Forget cancels every timer of c and drops its overlay registration.
// It is called when the creature leaves the world.
func (p *Predictor) Forget(c *world.Creature) {
	p.sched.Cancel(Key{ID: c.ID, Slot: SlotWalkUpdate})
	p.sched.Cancel(Key{ID: c.ID, Slot: SlotWalkFinishAnim})
	if c.Walk.WalkingTile != nil {
		p.m.SetWalkingTile(c, world.Position{}, false)
	}
	c.Walk.Walking = false
	c.Walk.OffsetX, c.Walk.OffsetY = 0, 0
}
