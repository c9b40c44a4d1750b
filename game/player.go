package game

import (
	"gotibia/proto"
	"gotibia/world"
)

// Player is what the server tells the client about its own character
// beyond the creature on the map.
type Player struct {
	ID        uint32
	Stats     proto.PlayerStats
	Skills    map[int]proto.Skill
	Magic     proto.Skill
	States    uint64
	Target    uint32
	Dead      bool
	Inventory map[uint8]*world.Item
}

func newPlayer() *Player {
	return &Player{Skills: make(map[int]proto.Skill), Inventory: make(map[uint8]*world.Item)}
}

func (p *Player) applySkills(ev proto.PlayerSkills) {
	for id, s := range ev.Skills {
		p.Skills[id] = s
	}
	if ev.HasMagicLevel {
		p.Magic = ev.MagicLevel
	}
	if ev.Capacity != 0 {
		p.Stats.TotalCapacity = ev.Capacity
	}
}

// Container is an open container window.
type Container struct {
	ID         uint8
	Item       *world.Item
	Name       string
	Capacity   int
	HasParent  bool
	Unlocked   bool
	Paginated  bool
	Size       int
	FirstIndex int
	Items      []*world.Item
}

// index maps a server slot to a position in Items.
func (c *Container) index(slot uint16) int {
	if c.Paginated {
		return int(slot) - c.FirstIndex
	}
	return int(slot)
}

func (c *Container) add(slot uint16, it *world.Item) {
	i := min(max(c.index(slot), 0), len(c.Items))
	c.Items = append(c.Items, nil)
	copy(c.Items[i+1:], c.Items[i:])
	c.Items[i] = it
	c.Size++
	if c.Capacity > 0 && len(c.Items) > c.Capacity {
		c.Items = c.Items[:c.Capacity]
	}
}

func (c *Container) update(slot uint16, it *world.Item) bool {
	i := c.index(slot)
	if i < 0 || i >= len(c.Items) {
		return false
	}
	c.Items[i] = it
	return true
}

func (c *Container) remove(slot uint16, last *world.Item) bool {
	i := c.index(slot)
	if i < 0 || i >= len(c.Items) {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	if last != nil {
		c.Items = append(c.Items, last)
	}
	if c.Size > 0 {
		c.Size--
	}
	return true
}
