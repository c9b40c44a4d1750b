package game

import (
	"sort"
	"time"

	"gotibia/proto"
	"gotibia/world"
)

type CreatureView struct {
	ID          uint32         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Pos         world.Position `json:"pos"`
	OnMap       bool           `json:"onMap"`
	Direction   string         `json:"direction"`
	Health      uint8          `json:"health"`
	Speed       int            `json:"speed"`
	Walking     bool           `json:"walking"`
	OffsetX     int            `json:"offsetX,omitempty"`
	OffsetY     int            `json:"offsetY,omitempty"`
	Placeholder bool           `json:"placeholder,omitempty"`
	Outfit      world.Outfit   `json:"outfit"`
}

type ThingView struct {
	Kind     string `json:"kind"`
	StackPos int    `json:"stackPos"`
	ID       uint32 `json:"id"`
	Count    uint16 `json:"count,omitempty"`
	Name     string `json:"name,omitempty"`
}

type TileView struct {
	Pos       world.Position `json:"pos"`
	Things    []ThingView    `json:"things"`
	Effects   []uint16       `json:"effects,omitempty"`
	Walking   []uint32       `json:"walking,omitempty"`
	Elevation int            `json:"elevation,omitempty"`
	Walkable  bool           `json:"walkable"`
}

type PlayerView struct {
	ID         uint32              `json:"id"`
	Pos        world.Position      `json:"pos"`
	ServerPos  world.Position      `json:"serverPos"`
	Pending    int                 `json:"pendingSteps"`
	AutoWalk   *world.Position     `json:"autoWalk,omitempty"`
	Ping       time.Duration       `json:"ping"`
	Stats      proto.PlayerStats   `json:"stats"`
	Skills     map[int]proto.Skill `json:"skills,omitempty"`
	Dead       bool                `json:"dead"`
	Containers []ContainerView     `json:"containers,omitempty"`
}

type ContainerView struct {
	ID    uint8    `json:"id"`
	Name  string   `json:"name"`
	Items []uint16 `json:"items"`
}

// Snapshot is a copy of the session state that is safe to encode after
// the lock is released.
type Snapshot struct {
	Time      time.Time      `json:"time"`
	LoggedIn  bool           `json:"loggedIn"`
	Center    world.Position `json:"center"`
	Light     world.Light    `json:"light"`
	Tiles     int            `json:"tiles"`
	Player    PlayerView     `json:"player"`
	Creatures []CreatureView `json:"creatures"`
	Chat      []ChatLine     `json:"chat,omitempty"`
	Stats     Stats          `json:"stats"`
}

func creatureView(c *world.Creature) CreatureView {
	return CreatureView{
		ID:          c.ID,
		Name:        c.Name,
		Type:        c.Type.String(),
		Pos:         c.Position(),
		OnMap:       c.Tile() != nil,
		Direction:   c.Direction.String(),
		Health:      c.Health,
		Speed:       c.Speed,
		Walking:     c.Walk.Walking,
		OffsetX:     c.Walk.OffsetX,
		OffsetY:     c.Walk.OffsetY,
		Placeholder: c.Placeholder,
		Outfit:      c.Outfit,
	}
}

// Snapshot copies the state shown on the debug pages. chatLines bounds
// the chat tail; zero omits it.
func (g *Game) Snapshot(chatLines int) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{
		Time:     g.now(),
		LoggedIn: g.loggedIn,
		Center:   g.m.Center(),
		Light:    g.m.Light(),
		Tiles:    g.m.TileCount(),
		Stats:    g.stats,
	}
	for _, c := range g.m.Creatures() {
		s.Creatures = append(s.Creatures, creatureView(c))
	}
	if chatLines > 0 {
		s.Chat = g.chat.recent(chatLines)
	}
	p := PlayerView{
		ID:        g.player.ID,
		Pos:       g.ctl.Position(),
		ServerPos: g.ctl.ServerPosition(),
		Pending:   g.ctl.PendingSteps(),
		Ping:      g.ctl.Ping(),
		Stats:     g.player.Stats,
		Skills:    make(map[int]proto.Skill, len(g.player.Skills)),
		Dead:      g.player.Dead,
	}
	for id, sk := range g.player.Skills {
		p.Skills[id] = sk
	}
	if dest, ok := g.ctl.AutoWalkDestination(); ok {
		p.AutoWalk = &dest
	}
	ids := make([]int, 0, len(g.containers))
	for id := range g.containers {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := g.containers[uint8(id)]
		cv := ContainerView{ID: c.ID, Name: c.Name}
		for _, it := range c.Items {
			if it != nil {
				cv.Items = append(cv.Items, it.ID)
			}
		}
		p.Containers = append(p.Containers, cv)
	}
	s.Player = p
	return s
}

// Tile describes one tile, ok is false when the client holds nothing
// there.
func (g *Game) Tile(pos world.Position) (TileView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.m.Tile(pos)
	if t == nil {
		return TileView{}, false
	}
	v := TileView{
		Pos:       pos,
		Elevation: t.Elevation(),
		Walkable:  t.IsWalkable(g.m.Types(), false),
	}
	for i, e := range t.Things() {
		tv := ThingView{Kind: e.Kind().String(), StackPos: i}
		switch e := e.(type) {
		case *world.Item:
			tv.ID = uint32(e.ID)
			tv.Count = e.Subtype
		case *world.Creature:
			tv.ID = e.ID
			tv.Name = e.Name
		}
		v.Things = append(v.Things, tv)
	}
	for _, e := range t.Effects() {
		v.Effects = append(v.Effects, e.ID)
	}
	for _, c := range t.Walking() {
		v.Walking = append(v.Walking, c.ID)
	}
	return v, true
}

// Creature looks up a creature view by id.
func (g *Game) Creature(id uint32) (CreatureView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.lookupCreature(id)
	if c == nil {
		return CreatureView{}, false
	}
	return creatureView(c), true
}

// CreatureByName looks a known creature up by name, ignoring case.
func (g *Game) CreatureByName(name string) (CreatureView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.m.CreatureByName(name)
	if c == nil {
		return CreatureView{}, false
	}
	return creatureView(c), true
}
