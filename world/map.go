package world

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// InvertCreatureStackVersion is the first protocol version that stacks a
// newly added creature above the creatures already on a tile.
const InvertCreatureStackVersion = 854

// AwareRange is the loaded rectangle around the central position.
type AwareRange struct {
	Left, Right, Top, Bottom int
}

var DefaultAwareRange = AwareRange{Left: 8, Right: 9, Top: 6, Bottom: 7}

func (r AwareRange) Width() int  { return r.Left + r.Right + 1 }
func (r AwareRange) Height() int { return r.Top + r.Bottom + 1 }

type Options struct {
	// Version is the protocol version; it selects the creature stacking
	// rule.
	Version int
	// MaxThings overrides the stack cap; zero selects MaxThings.
	MaxThings int
	Aware     AwareRange
	// KeepUnawareTiles keeps items on tiles that leave the aware window.
	KeepUnawareTiles bool
	Log              *zap.Logger
}

// Map is the client-side mirror of the world. It is not safe for
// concurrent use; the session goroutine owns it.
type Map struct {
	log   *zap.Logger
	types ThingTypes
	opts  Options

	tiles     map[Position]*Tile
	center    Position
	aware     AwareRange
	creatures map[uint32]*Creature
	missiles  map[int][]*Missile
	texts     []*AnimatedText
	light     Light
	localID   uint32
	known     bool

	observers []Observer
}

func NewMap(types ThingTypes, opts Options) *Map {
	if types == nil {
		types = NewStaticTypes()
	}
	if opts.MaxThings <= 0 {
		opts.MaxThings = MaxThings
	}
	if opts.Aware == (AwareRange{}) {
		opts.Aware = DefaultAwareRange
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Map{
		log:       log,
		types:     types,
		opts:      opts,
		tiles:     make(map[Position]*Tile),
		center:    Position{Z: SeaFloor},
		aware:     opts.Aware,
		creatures: make(map[uint32]*Creature),
		missiles:  make(map[int][]*Missile),
		light:     Light{Intensity: 250, Color: 215},
	}
}

func (m *Map) Types() ThingTypes { return m.types }
func (m *Map) Version() int      { return m.opts.Version }

// SetVersion changes the protocol version after login negotiation.
func (m *Map) SetVersion(v int) { m.opts.Version = v }

// Subscribe registers o and returns a function that removes it.
func (m *Map) Subscribe(o Observer) func() {
	m.observers = append(m.observers, o)
	idx := len(m.observers) - 1
	return func() {
		if idx < len(m.observers) && m.observers[idx] == o {
			m.observers[idx] = nil
		}
	}
}

func (m *Map) notifyTile(pos Position, e Entity, op TileOp) {
	for _, o := range m.observers {
		if o != nil {
			o.OnTileChanged(pos, e, op)
		}
	}
}

func (m *Map) SetLocalPlayerID(id uint32) { m.localID = id }
func (m *Map) LocalPlayerID() uint32      { return m.localID }

// LocalPlayer returns the indexed creature of the local player.
func (m *Map) LocalPlayer() *Creature { return m.creatures[m.localID] }

// Known reports whether a full map description has been received.
func (m *Map) Known() bool { return m.known }
func (m *Map) MarkKnown()  { m.known = true }

func (m *Map) Tile(pos Position) *Tile { return m.tiles[pos] }

func (m *Map) tileOrCreate(pos Position) *Tile {
	t := m.tiles[pos]
	if t == nil {
		t = newTile(pos)
		m.tiles[pos] = t
	}
	return t
}

// Tiles returns every tile, ordered by floor, row and column.
func (m *Map) Tiles() []*Tile {
	out := make([]*Tile, 0, len(m.tiles))
	for _, t := range m.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].pos, out[j].pos
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return out
}

func (m *Map) TileCount() int { return len(m.tiles) }

func (m *Map) eraseIfEmpty(t *Tile) {
	if t != nil && t.CanErase() && m.tiles[t.pos] == t {
		delete(m.tiles, t.pos)
	}
}

// ThingAt returns the entity at a stack position, nil when absent.
func (m *Map) ThingAt(pos Position, stackPos int) Entity {
	t := m.tiles[pos]
	if t == nil {
		return nil
	}
	return t.ThingAt(stackPos)
}

// AddThing places e at pos. stackPos is StackAuto, StackAppend,
// StackAutoWire or an explicit index; explicit indexes past the end are
// clamped. It returns the resulting stack position, or -1 when the entity
// was not placed on a tile stack.
func (m *Map) AddThing(e Entity, pos Position, stackPos int) int {
	switch v := e.(type) {
	case nil:
		return -1
	case *Missile:
		v.pos = pos
		m.missiles[pos.Z] = append(m.missiles[pos.Z], v)
		return -1
	case *AnimatedText:
		m.AddAnimatedText(v, pos)
		return -1
	case *Effect:
		t := m.tiles[pos]
		if t == nil || t.IsEmpty() {
			return -1
		}
		t.addEffect(v)
		m.notifyTile(pos, v, TileAdd)
		return -1
	case *Item:
		if v.ID == 0 {
			return -1
		}
	case *Creature:
		if t := m.tiles[pos]; t != nil {
			for _, c := range t.Creatures() {
				if c.ID == v.ID && c != v {
					m.log.Debug("duplicate creature on tile",
						zap.Uint32("id", v.ID), zap.Stringer("pos", pos))
					return c.StackPos()
				}
			}
			if v.Tile() == t {
				return v.StackPos()
			}
		}
		if v.Tile() != nil {
			m.RemoveThing(v)
		}
		v.Removed = false
		m.AddCreature(v)
	}

	t := m.tileOrCreate(pos)
	idx := t.insertIndex(priorityOf(e, m.types), stackPos,
		m.opts.Version >= InvertCreatureStackVersion, m.types)
	at, evicted := t.insert(e, idx, m.opts.MaxThings)
	if evicted != nil {
		m.log.Debug("tile stack overflow",
			zap.Stringer("pos", pos), zap.Stringer("evicted", evicted.Kind()))
		if c, ok := evicted.(*Creature); ok && m.creatures[c.ID] == c {
			delete(m.creatures, c.ID)
			c.Removed = true
		}
		m.notifyTile(pos, evicted, TileRemove)
	}
	t.recomputeElevation(m.types)
	if m.isOpaque(e) {
		m.InvalidateCoverCache(pos)
	}
	m.notifyTile(pos, e, TileAdd)
	return at
}

func (m *Map) isOpaque(e Entity) bool {
	it, ok := e.(*Item)
	if !ok {
		return false
	}
	tt := m.types.ItemType(it.ID)
	return tt != nil && tt.FullGround
}

// RemoveThing detaches e from the map. It reports false, changing
// nothing, when e is not present: desynced servers routinely remove
// things that are already gone. Creatures stay in the known-creature
// index, flagged Removed, until they leave the aware window or are
// removed by id.
func (m *Map) RemoveThing(e Entity) bool {
	switch v := e.(type) {
	case nil:
		return false
	case *Missile:
		list := m.missiles[v.pos.Z]
		for i, o := range list {
			if o == v {
				m.missiles[v.pos.Z] = append(list[:i], list[i+1:]...)
				return true
			}
		}
		return false
	case *AnimatedText:
		return m.RemoveAnimatedText(v)
	case *Effect:
		t := v.Tile()
		if t == nil || !t.removeEffect(v) {
			return false
		}
		m.eraseIfEmpty(t)
		m.notifyTile(t.pos, v, TileRemove)
		return true
	}
	t := e.Tile()
	if t == nil {
		return false
	}
	pos := t.pos
	if !t.remove(e) {
		return false
	}
	if c, ok := e.(*Creature); ok {
		c.Removed = true
	}
	t.recomputeElevation(m.types)
	if m.isOpaque(e) {
		m.InvalidateCoverCache(pos)
	}
	m.eraseIfEmpty(t)
	m.notifyTile(pos, e, TileRemove)
	return true
}

// RemoveThingAt removes the entity at a stack position.
func (m *Map) RemoveThingAt(pos Position, stackPos int) (Entity, bool) {
	e := m.ThingAt(pos, stackPos)
	if e == nil {
		return nil, false
	}
	return e, m.RemoveThing(e)
}

// MoveCreature relocates c to the tile at to, keeping its identity. It
// reports whether c was on a tile before the move.
func (m *Map) MoveCreature(c *Creature, to Position) bool {
	from := c.Position()
	wasPlaced := c.Tile() != nil
	if wasPlaced {
		m.RemoveThing(c)
	}
	m.AddThing(c, to, StackAuto)
	for _, o := range m.observers {
		if o != nil {
			o.OnCreatureMoved(c, from, to)
		}
	}
	return wasPlaced
}

// CleanTile empties a tile's stack. Creatures on it stay indexed so a
// following tile description can reference them by id.
func (m *Map) CleanTile(pos Position) {
	t := m.tiles[pos]
	if t == nil {
		return
	}
	for _, e := range t.clean() {
		if c, ok := e.(*Creature); ok {
			c.Removed = true
		}
	}
	m.InvalidateCoverCache(pos)
	m.eraseIfEmpty(t)
	m.notifyTile(pos, nil, TileClean)
}

// Clean drops everything.
func (m *Map) Clean() {
	m.CleanDynamicThings()
	for _, t := range m.tiles {
		t.clean()
	}
	m.tiles = make(map[Position]*Tile)
	m.known = false
}

// CleanDynamicThings drops creatures, missiles and texts.
func (m *Map) CleanDynamicThings() {
	for _, t := range m.tiles {
		for _, c := range t.Creatures() {
			t.remove(c)
			c.Removed = true
		}
		t.walking = nil
		m.eraseIfEmpty(t)
	}
	m.creatures = make(map[uint32]*Creature)
	m.missiles = make(map[int][]*Missile)
	m.texts = nil
}

// AddCreature indexes c by id.
func (m *Map) AddCreature(c *Creature) {
	if c == nil {
		return
	}
	m.creatures[c.ID] = c
}

func (m *Map) CreatureByID(id uint32) *Creature { return m.creatures[id] }

// CreatureByName returns the first indexed creature with a matching name,
// ignoring case.
func (m *Map) CreatureByName(name string) *Creature {
	for _, c := range m.Creatures() {
		if SameName(c.Name, name) {
			return c
		}
	}
	return nil
}

// Creatures returns the index ordered by id.
func (m *Map) Creatures() []*Creature {
	out := make([]*Creature, 0, len(m.creatures))
	for _, c := range m.creatures {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveCreatureByID detaches and unindexes the creature. Stale copies
// found by a tile scan are removed too.
func (m *Map) RemoveCreatureByID(id uint32) bool {
	found := false
	if c := m.creatures[id]; c != nil {
		m.RemoveThing(c)
		m.releaseWalking(c)
		delete(m.creatures, id)
		found = true
	}
	for _, t := range m.Tiles() {
		for _, c := range t.Creatures() {
			if c.ID == id {
				m.RemoveThing(c)
				found = true
			}
		}
	}
	return found
}

// FindCreaturePosition scans every tile for the creature. A hit re-seeds
// the index, which is how references to stale ids recover after a desync.
func (m *Map) FindCreaturePosition(id uint32) (Position, int, bool) {
	for _, t := range m.Tiles() {
		for i, e := range t.things {
			c, ok := e.(*Creature)
			if !ok || c.ID != id {
				continue
			}
			if m.creatures[id] != c {
				m.log.Debug("creature index re-seeded from tile scan",
					zap.Uint32("id", id), zap.Stringer("pos", t.pos))
				m.creatures[id] = c
			}
			return t.pos, i, true
		}
	}
	return Position{}, -1, false
}

// FindCreature resolves an id through the index, then a tile scan.
func (m *Map) FindCreature(id uint32) *Creature {
	if c := m.creatures[id]; c != nil {
		return c
	}
	if pos, idx, ok := m.FindCreaturePosition(id); ok {
		c, _ := m.ThingAt(pos, idx).(*Creature)
		return c
	}
	return nil
}

// CheckIndex verifies that the index and the tiles agree. Indexed
// creatures flagged Removed are allowed off-map; they are waiting for a
// reference that re-adds them or for eviction.
func (m *Map) CheckIndex() error {
	var errs []error
	onMap := make(map[*Creature]bool)
	for _, t := range m.tiles {
		for _, c := range t.Creatures() {
			onMap[c] = true
			if got := m.creatures[c.ID]; got != c {
				errs = append(errs, fmt.Errorf("creature %d at %v missing from index", c.ID, t.pos))
			}
			if c.Tile() != t {
				errs = append(errs, fmt.Errorf("creature %d at %v has stale tile", c.ID, t.pos))
			}
		}
	}
	for id, c := range m.creatures {
		if c.ID != id {
			errs = append(errs, fmt.Errorf("index key %d holds creature %d", id, c.ID))
		}
		if !onMap[c] && !c.Removed {
			errs = append(errs, fmt.Errorf("indexed creature %d is on no tile", id))
		}
	}
	return errors.Join(errs...)
}

func (m *Map) Center() Position { return m.center }

// SetCentralPosition moves the viewpoint and evicts what falls outside
// the aware window.
func (m *Map) SetCentralPosition(p Position) {
	if p == m.center {
		return
	}
	old := m.center
	m.center = p
	m.RemoveUnawareThings()
	for _, o := range m.observers {
		if o != nil {
			o.OnCenterChanged(p, old)
		}
	}
}

func (m *Map) AwareRange() AwareRange { return m.aware }

func (m *Map) SetAwareRange(r AwareRange) {
	m.aware = r
	m.RemoveUnawareThings()
}

func (m *Map) FirstAwareFloor() int {
	if m.center.Z > SeaFloor {
		return max(0, m.center.Z-AwareUndergroundFloorRange)
	}
	return 0
}

func (m *Map) LastAwareFloor() int {
	if m.center.Z > SeaFloor {
		return min(MaxZ, m.center.Z+AwareUndergroundFloorRange)
	}
	return SeaFloor
}

func (m *Map) IsAware(p Position) bool {
	if p.Z < m.FirstAwareFloor() || p.Z > m.LastAwareFloor() {
		return false
	}
	dx := p.X - m.center.X
	dy := p.Y - m.center.Y
	return dx >= -m.aware.Left && dx <= m.aware.Right && dy >= -m.aware.Top && dy <= m.aware.Bottom
}

// RemoveUnawareThings evicts creatures (other than the local player) and,
// unless KeepUnawareTiles is set, whole tiles outside the aware window.
func (m *Map) RemoveUnawareThings() {
	for pos, t := range m.tiles {
		if m.IsAware(pos) {
			continue
		}
		for _, c := range t.Creatures() {
			if c.ID == m.localID {
				continue
			}
			t.remove(c)
			c.Removed = true
			if m.creatures[c.ID] == c {
				delete(m.creatures, c.ID)
			}
		}
		if !m.opts.KeepUnawareTiles {
			for _, e := range t.clean() {
				if c, ok := e.(*Creature); ok {
					c.Removed = true
				}
			}
		}
		m.eraseIfEmpty(t)
	}
	for id, c := range m.creatures {
		if id != m.localID && c.Tile() == nil && !m.IsAware(c.Position()) {
			m.releaseWalking(c)
			delete(m.creatures, id)
		}
	}
}

func (m *Map) Light() Light { return m.light }

func (m *Map) SetLight(l Light) {
	m.light = l
	for _, o := range m.observers {
		if o != nil {
			o.OnLightChanged(l)
		}
	}
}

func (m *Map) Missiles(z int) []*Missile { return m.missiles[z] }

func (m *Map) AnimatedTexts() []*AnimatedText { return m.texts }

func (m *Map) AddAnimatedText(txt *AnimatedText, pos Position) {
	txt.pos = pos
	m.texts = append(m.texts, txt)
}

func (m *Map) RemoveAnimatedText(txt *AnimatedText) bool {
	for i, o := range m.texts {
		if o == txt {
			m.texts = append(m.texts[:i], m.texts[i+1:]...)
			return true
		}
	}
	return false
}

// SetWalkingTile moves c's walking-overlay registration to the tile at
// pos. An invalid position only clears it.
func (m *Map) SetWalkingTile(c *Creature, pos Position, valid bool) {
	var next *Tile
	if valid {
		next = m.tileOrCreate(pos)
	}
	prev := c.Walk.WalkingTile
	if prev == next {
		return
	}
	if prev != nil {
		prev.removeWalking(c)
		m.eraseIfEmpty(prev)
		m.notifyTile(prev.pos, c, TileUpdate)
	}
	if next != nil {
		next.addWalking(c)
		m.notifyTile(next.pos, c, TileUpdate)
	}
	c.Walk.WalkingTile = next
}

func (m *Map) releaseWalking(c *Creature) {
	if c.Walk.WalkingTile != nil {
		m.SetWalkingTile(c, Position{}, false)
	}
}

// NotifyWalkTerminated tells observers that c finished a step so they can
// recompute visible tiles.
func (m *Map) NotifyWalkTerminated(c *Creature) {
	for _, o := range m.observers {
		if o != nil {
			o.OnWalkTerminated(c)
		}
	}
}

// IsWalkable reports whether a known tile at pos can be stepped on.
func (m *Map) IsWalkable(pos Position, ignoreCreatures bool) bool {
	t := m.tiles[pos]
	return t != nil && t.IsWalkable(m.types, ignoreCreatures)
}

// GroundSpeed is the ground speed at pos, DefaultGroundSpeed when unknown.
func (m *Map) GroundSpeed(pos Position) int {
	if t := m.tiles[pos]; t != nil {
		return t.GroundSpeed(m.types)
	}
	return DefaultGroundSpeed
}
