package world

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type CreatureType uint8

const (
	CreaturePlayer CreatureType = iota
	CreatureMonster
	CreatureNpc
	CreatureHidden
	CreatureSummonOwn
	CreatureSummonOther
)

func (t CreatureType) String() string {
	switch t {
	case CreaturePlayer:
		return "player"
	case CreatureMonster:
		return "monster"
	case CreatureNpc:
		return "npc"
	case CreatureHidden:
		return "hidden"
	case CreatureSummonOwn:
		return "summon"
	case CreatureSummonOther:
		return "summon-other"
	}
	return "unknown"
}

// TypeFromID guesses the creature type from the id ranges servers allocate
// from, for protocols that do not send it.
func TypeFromID(id uint32) CreatureType {
	switch {
	case id >= 0x10000000 && id < 0x20000000:
		return CreaturePlayer
	case id >= 0x40000000 && id < 0x50000000:
		return CreatureMonster
	}
	return CreatureNpc
}

type Outfit struct {
	LookType   uint16
	LookTypeEx uint16
	Head       uint8
	Body       uint8
	Legs       uint8
	Feet       uint8
	Addons     uint8
	Mount      uint16
}

// Walk is the per-creature movement state driven by the motion package.
// While Walking the creature stays a stack member of its authoritative
// tile; WalkingTile is the tile whose overlay it is visually crossing.
type Walk struct {
	Walking      bool
	From, To     Position
	Dir          Direction
	Start        time.Time
	Duration     time.Duration
	WalkedPixels int
	OffsetX      int
	OffsetY      int
	FootStep     int
	FootChanged  time.Time
	AnimPhase    int
	TurnPending  Direction
	WalkingTile  *Tile

	// LastStepTo survives termination; the step law reads ground speed
	// from it.
	LastStepFrom Position
	LastStepTo   Position
	LastStepDir  Direction
}

// StepCache memoises the step duration for one (speed, ground speed) pair
// under one revision of the step law.
type StepCache struct {
	Speed       int
	GroundSpeed int
	LawRev      int
	Duration    time.Duration
	Diagonal    time.Duration
}

type Creature struct {
	placement
	ID          uint32
	Name        string
	Type        CreatureType
	MasterID    uint32
	Health      uint8
	Direction   Direction
	Outfit      Outfit
	Light       Light
	Speed       int
	BaseSpeed   int
	Skull       uint8
	Shield      uint8
	Emblem      uint8
	Icon        uint8
	Mark        uint8
	TypeMark    uint8
	Vocation    uint8
	Unpassable  bool
	// Placeholder marks creatures synthesised to recover from a reference
	// to an id the client never saw.
	Placeholder bool
	Removed     bool

	Walk      Walk
	StepCache StepCache
}

func NewCreature(id uint32) *Creature {
	return &Creature{
		placement: placement{stackPos: -1},
		ID:        id,
		Health:    100,
		Direction: South,
		Type:      TypeFromID(id),
		Walk:      Walk{Dir: InvalidDirection, TurnPending: InvalidDirection, LastStepDir: InvalidDirection},
	}
}

func (*Creature) Kind() Kind { return KindCreature }

// SetPosition moves the logical position without touching tile membership;
// prediction uses it while the map still holds the creature elsewhere.
func (c *Creature) SetPosition(p Position) { c.pos = p }

// EmittedLight applies the client defaults for creatures that send no
// light.
func (c *Creature) EmittedLight() Light {
	l := c.Light
	if l.Intensity == 0 {
		return Light{Intensity: 2, Color: 215}
	}
	if l.Color == 0 || l.Color > 215 {
		l.Color = 215
	}
	return l
}

// A cases.Caser keeps state between calls, so every goroutine takes its
// own from a pool.
var (
	titleCasers = sync.Pool{New: func() any { c := cases.Title(language.English, cases.NoLower); return &c }}
	folders     = sync.Pool{New: func() any { c := cases.Fold(); return &c }}
)

func withCaser(p *sync.Pool, s string) string {
	c := p.Get().(*cases.Caser)
	defer p.Put(c)
	return c.String(s)
}

// FormatName capitalises each word of a creature name, as the client shows
// names when FormatCreatureName is enabled.
func FormatName(name string) string {
	return withCaser(&titleCasers, strings.TrimSpace(name))
}

// SameName compares creature names case-insensitively.
func SameName(a, b string) bool {
	return withCaser(&folders, a) == withCaser(&folders, b)
}
