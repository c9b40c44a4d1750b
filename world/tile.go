package world

const (
	// MaxThings caps a tile's stack. Desynced servers can otherwise grow
	// it without bound.
	MaxThings = 10
	// MaxElevation caps the cumulative draw elevation of a tile.
	MaxElevation = 255
)

// Stack position hints accepted by Map.AddThing.
const (
	// StackAuto places by priority class.
	StackAuto = -1
	// StackAppend places after everything of equal or lower priority.
	StackAppend = -2
	// StackAutoWire is the wire value that also means StackAuto.
	StackAutoWire = 255
)

type Tile struct {
	pos       Position
	things    []Entity
	effects   []*Effect
	walking   []*Creature
	elevation int

	// Occlusion cache, one bit per first-visible floor: bit f marks floor
	// f as computed, bit f+16 holds the answer.
	completelyCovered uint32
	covered           uint32
}

func newTile(pos Position) *Tile {
	return &Tile{pos: pos}
}

func (t *Tile) Position() Position { return t.pos }

// Things returns the stack, ground first. The slice must not be modified.
func (t *Tile) Things() []Entity { return t.things }

func (t *Tile) Effects() []*Effect { return t.effects }

// Walking returns the creatures visually crossing this tile.
func (t *Tile) Walking() []*Creature { return t.walking }

func (t *Tile) Elevation() int { return t.elevation }

func (t *Tile) Len() int { return len(t.things) }

func (t *Tile) IsEmpty() bool { return len(t.things) == 0 }

// CanErase reports whether the map may drop the tile.
func (t *Tile) CanErase() bool {
	return len(t.things) == 0 && len(t.effects) == 0 && len(t.walking) == 0
}

func (t *Tile) ThingAt(stackPos int) Entity {
	if stackPos < 0 || stackPos >= len(t.things) {
		return nil
	}
	return t.things[stackPos]
}

func (t *Tile) IndexOf(e Entity) int {
	for i, o := range t.things {
		if o == e {
			return i
		}
	}
	return -1
}

// Ground returns the bottom item when it is a ground item.
func (t *Tile) Ground(types ThingTypes) *Item {
	if len(t.things) == 0 {
		return nil
	}
	it, ok := t.things[0].(*Item)
	if !ok {
		return nil
	}
	if tt := types.ItemType(it.ID); tt == nil || !tt.Ground {
		return nil
	}
	return it
}

// GroundSpeed is the movement cost of the ground item, DefaultGroundSpeed
// without one.
func (t *Tile) GroundSpeed(types ThingTypes) int {
	g := t.Ground(types)
	if g == nil {
		return DefaultGroundSpeed
	}
	if tt := types.ItemType(g.ID); tt != nil && tt.GroundSpeed > 0 {
		return tt.GroundSpeed
	}
	return DefaultGroundSpeed
}

func (t *Tile) Creatures() []*Creature {
	var out []*Creature
	for _, e := range t.things {
		if c, ok := e.(*Creature); ok {
			out = append(out, c)
		}
	}
	return out
}

func (t *Tile) HasCreatures() bool {
	for _, e := range t.things {
		if _, ok := e.(*Creature); ok {
			return true
		}
	}
	return false
}

// TopCreature returns the creature highest in the stack.
func (t *Tile) TopCreature() *Creature {
	for i := len(t.things) - 1; i >= 0; i-- {
		if c, ok := t.things[i].(*Creature); ok {
			return c
		}
	}
	return nil
}

func (t *Tile) HasLight(types ThingTypes) bool {
	for _, e := range t.things {
		switch v := e.(type) {
		case *Item:
			if tt := types.ItemType(v.ID); tt != nil && tt.Light.Intensity > 0 {
				return true
			}
		case *Creature:
			if v.Light.Intensity > 0 {
				return true
			}
		}
	}
	return false
}

// IsFullyOpaque reports a full-ground item anywhere in the stack.
func (t *Tile) IsFullyOpaque(types ThingTypes) bool {
	for _, e := range t.things {
		if it, ok := e.(*Item); ok {
			if tt := types.ItemType(it.ID); tt != nil && tt.FullGround {
				return true
			}
		}
	}
	return false
}

func (t *Tile) HasTopGround(types ThingTypes) bool { return t.IsFullyOpaque(types) }

func (t *Tile) IsSingleDimension(types ThingTypes) bool {
	for _, e := range t.things {
		if it, ok := e.(*Item); ok && !types.ItemType(it.ID).singleDimension() {
			return false
		}
	}
	return true
}

// IsWalkable reports a ground with no blocking item and, unless
// ignoreCreatures, no unpassable creature.
func (t *Tile) IsWalkable(types ThingTypes, ignoreCreatures bool) bool {
	if t.Ground(types) == nil {
		return false
	}
	for _, e := range t.things {
		switch v := e.(type) {
		case *Item:
			if tt := types.ItemType(v.ID); tt != nil && tt.NotWalkable {
				return false
			}
		case *Creature:
			if !ignoreCreatures && v.Unpassable {
				return false
			}
		}
	}
	return true
}

func (t *Tile) IsPathable(types ThingTypes) bool {
	for _, e := range t.things {
		if it, ok := e.(*Item); ok {
			if tt := types.ItemType(it.ID); tt != nil && tt.NotPathable {
				return false
			}
		}
	}
	return true
}

func (t *Tile) HasFloorChange(types ThingTypes) bool {
	for _, e := range t.things {
		if it, ok := e.(*Item); ok {
			if tt := types.ItemType(it.ID); tt != nil && tt.FloorChange {
				return true
			}
		}
	}
	return false
}

func priorityOf(e Entity, types ThingTypes) int {
	switch v := e.(type) {
	case *Item:
		return types.ItemType(v.ID).StackPriority()
	case *Creature:
		return PriorityCreature
	}
	return PriorityCommon
}

// insertIndex resolves a stack hint to an index. Below the inversion
// threshold class-4 entities (creatures) go before existing creatures;
// from it on they go after, so the newest creature ends up on top.
func (t *Tile) insertIndex(prio, stackPos int, invertCreatures bool, types ThingTypes) int {
	size := len(t.things)
	if stackPos >= 0 && stackPos != StackAutoWire {
		if stackPos > size {
			return size
		}
		return stackPos
	}
	var appendMode bool
	if stackPos == StackAppend {
		appendMode = true
	} else {
		appendMode = prio <= PriorityTop
		if invertCreatures && prio == PriorityCreature {
			appendMode = !appendMode
		}
	}
	for i, o := range t.things {
		op := priorityOf(o, types)
		if (appendMode && op > prio) || (!appendMode && op >= prio) {
			return i
		}
	}
	return size
}

// insert places e and returns its index plus the entity evicted by the
// stack cap, if any.
func (t *Tile) insert(e Entity, idx int, maxThings int) (int, Entity) {
	t.things = append(t.things, nil)
	copy(t.things[idx+1:], t.things[idx:])
	t.things[idx] = e
	var evicted Entity
	if maxThings > 0 && len(t.things) > maxThings {
		evicted = t.things[maxThings]
		t.things = append(t.things[:maxThings], t.things[maxThings+1:]...)
		evicted.base().unplace()
	}
	t.renumber()
	return e.StackPos(), evicted
}

func (t *Tile) remove(e Entity) bool {
	i := t.IndexOf(e)
	if i < 0 {
		return false
	}
	t.things = append(t.things[:i], t.things[i+1:]...)
	e.base().unplace()
	t.renumber()
	return true
}

func (t *Tile) renumber() {
	for i, e := range t.things {
		e.base().place(t, i)
	}
}

func (t *Tile) recomputeElevation(types ThingTypes) {
	elev := 0
	for _, e := range t.things {
		if it, ok := e.(*Item); ok {
			if tt := types.ItemType(it.ID); tt != nil && tt.Elevation > 0 {
				elev += tt.Elevation
			}
		}
	}
	if elev > MaxElevation {
		elev = MaxElevation
	}
	t.elevation = elev
}

func (t *Tile) addEffect(e *Effect) {
	if e.Top {
		t.effects = append(t.effects, e)
	} else {
		t.effects = append([]*Effect{e}, t.effects...)
	}
	e.place(t, len(t.things))
}

func (t *Tile) removeEffect(e *Effect) bool {
	for i, o := range t.effects {
		if o == e {
			t.effects = append(t.effects[:i], t.effects[i+1:]...)
			e.unplace()
			return true
		}
	}
	return false
}

func (t *Tile) addWalking(c *Creature) {
	for _, o := range t.walking {
		if o == c {
			return
		}
	}
	t.walking = append(t.walking, c)
}

func (t *Tile) removeWalking(c *Creature) bool {
	for i, o := range t.walking {
		if o == c {
			t.walking = append(t.walking[:i], t.walking[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Tile) clean() []Entity {
	removed := t.things
	for _, e := range removed {
		e.base().unplace()
	}
	t.things = nil
	t.elevation = 0
	t.resetCoverCache()
	return removed
}

func (t *Tile) resetCoverCache() {
	t.completelyCovered = 0
	t.covered = 0
}
