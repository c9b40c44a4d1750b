package game

import (
	"go.uber.org/zap"

	"gotibia/proto"
	"gotibia/world"
)

// materialize turns a decoded thing into a map entity. Creatures resolve
// to the instance the client already knows when there is one.
func (g *Game) materialize(t proto.Thing) world.Entity {
	switch v := t.(type) {
	case *proto.ItemDesc:
		return g.item(v)
	case *proto.CreatureDesc:
		return g.creature(v)
	}
	return nil
}

func (g *Game) item(d *proto.ItemDesc) *world.Item {
	if d == nil {
		return nil
	}
	it := world.NewItem(d.ID, d.Subtype)
	it.Mark = d.Mark
	if d.HasPhase {
		it.Phase = int(d.Phase)
	}
	return it
}

// lookupCreature finds a creature through the index, then a tile scan.
func (g *Game) lookupCreature(id uint32) *world.Creature {
	if id == 0 {
		return nil
	}
	if id == g.m.LocalPlayerID() && g.local != nil {
		return g.local
	}
	return g.m.FindCreature(id)
}

// creatureOrPlaceholder resolves id, inventing an unplaced creature when
// the client never saw it.
func (g *Game) creatureOrPlaceholder(id uint32) *world.Creature {
	if c := g.lookupCreature(id); c != nil {
		return c
	}
	g.log.Debug("placeholder for unknown creature", zap.Uint32("id", id))
	c := world.NewCreature(id)
	c.Placeholder = true
	c.Removed = true
	g.m.AddCreature(c)
	g.stats.Placeholders++
	return c
}

func (g *Game) creature(d *proto.CreatureDesc) *world.Creature {
	switch d.Marker {
	case proto.CreatureTurn:
		c := g.creatureOrPlaceholder(d.ID)
		g.pred.Turn(c, d.Direction)
		if d.HasUnpass {
			c.Unpassable = d.Unpass
		}
		return c

	case proto.CreatureOutdated:
		c := g.creatureOrPlaceholder(d.ID)
		g.fillCreature(c, d)
		return c
	}

	if d.RemoveID != 0 && d.RemoveID != d.ID {
		if old := g.lookupCreature(d.RemoveID); old != nil {
			g.pred.Forget(old)
		}
		g.m.RemoveCreatureByID(d.RemoveID)
	}
	c := g.lookupCreature(d.ID)
	if c == nil {
		c = world.NewCreature(d.ID)
	}
	c.Placeholder = false
	c.Name = d.Name
	c.Type = d.Type
	c.MasterID = d.MasterID
	g.fillCreature(c, d)
	if d.ID == g.m.LocalPlayerID() {
		g.local = c
	}
	return c
}

// fillCreature copies the fields every full or outdated descriptor
// carries.
func (g *Game) fillCreature(c *world.Creature, d *proto.CreatureDesc) {
	c.Health = d.Health
	g.pred.Turn(c, d.Direction)
	c.Outfit = d.Outfit
	c.Light = d.Light
	g.pred.SetSpeed(c, int(d.Speed), g.now())
	c.Skull = d.Skull
	c.Shield = d.Shield
	if d.HasEmblem {
		c.Emblem = d.Emblem
	}
	c.TypeMark = d.TypeMark
	c.Vocation = d.Vocation
	c.Icon = d.Icon
	if len(d.Icons) > 0 {
		c.Icon = d.Icons[0].Icon
	}
	c.Mark = d.Mark
	if d.HasUnpass {
		c.Unpassable = d.Unpass
	}
}

// resolve finds the entity a ThingRef points at. Creature references by
// id fall back to a placeholder so moves of unknown creatures still land.
func (g *Game) resolve(ref proto.ThingRef) world.Entity {
	if ref.ByID {
		return g.creatureOrPlaceholder(ref.CreatureID)
	}
	if e := g.m.ThingAt(ref.Pos, ref.StackPos); e != nil {
		return e
	}
	// a pending step moves the local player's logical position but not
	// its tile, so the server's view of it is still the tile it left
	if c := g.local; c != nil && c.Tile() != nil && c.Tile().Position() == ref.Pos {
		return c
	}
	g.log.Debug("reference to missing thing",
		zap.Stringer("pos", ref.Pos), zap.Int("stackpos", ref.StackPos))
	g.stats.MissingRefs++
	return nil
}

// place puts e on the map and reports local-player teleports to the
// controller.
func (g *Game) place(e world.Entity, pos world.Position, stackPos int) {
	if e == nil {
		return
	}
	g.m.AddThing(e, pos, stackPos)
	if c, ok := e.(*world.Creature); ok && c == g.local {
		if pos != g.lastPlayerPos {
			g.ctl.OnTeleport(pos)
		}
		g.lastPlayerPos = pos
	}
}

func (g *Game) applyTile(td proto.TileDescription) {
	g.m.CleanTile(td.Pos)
	for i, t := range td.Things {
		g.place(g.materialize(t), td.Pos, i)
	}
}

func (g *Game) applyMap(md proto.MapDescription) {
	if md.Kind == proto.MapFull {
		g.m.SetCentralPosition(md.Center)
	}
	for _, td := range md.Tiles {
		g.applyTile(td)
	}
	if md.Kind != proto.MapFull {
		g.m.SetCentralPosition(md.Center)
	}
	if !g.m.Known() {
		g.m.MarkKnown()
	}
}

func (g *Game) addThing(ev proto.ThingAdded) {
	stack := ev.StackPos
	if stack < 0 {
		stack = world.StackAuto
	}
	g.place(g.materialize(ev.Thing), ev.Pos, stack)
}

func (g *Game) transformThing(ev proto.ThingTransformed) {
	old := g.resolve(ev.Ref)
	if old == nil {
		return
	}
	pos, stack := old.Position(), old.StackPos()
	next := g.materialize(ev.Thing)
	if next == nil {
		return
	}
	if oc, ok := old.(*world.Creature); ok && oc == next {
		return
	}
	g.m.RemoveThing(old)
	g.place(next, pos, stack)
}

func (g *Game) removeThing(ev proto.ThingRemoved) {
	e := g.resolve(ev.Ref)
	if e == nil {
		return
	}
	if c, ok := e.(*world.Creature); ok {
		g.pred.Forget(c)
	}
	if !g.m.RemoveThing(e) {
		g.log.Debug("remove of thing already gone", zap.Stringer("kind", e.Kind()))
	}
}

func (g *Game) moveCreature(ev proto.CreatureMoved) {
	c, ok := g.resolve(ev.Ref).(*world.Creature)
	if !ok || c == nil {
		g.log.Debug("move of non-creature", zap.Stringer("pos", ev.Ref.Pos), zap.Int("stackpos", ev.Ref.StackPos))
		return
	}
	from := ev.Ref.Pos
	if t := c.Tile(); t != nil {
		from = t.Position()
	}
	now := g.now()
	if c == g.local {
		g.ctl.OnServerMove(from, ev.To, now)
		g.lastPlayerPos = ev.To
		return
	}
	g.m.MoveCreature(c, ev.To)
	if from.IsAdjacent(ev.To) {
		g.pred.Walk(c, from, ev.To, now)
	} else {
		g.pred.Stop(c)
	}
}
