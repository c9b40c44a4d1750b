package world

import "time"

// Kind tags the variants of Entity.
type Kind uint8

const (
	KindItem Kind = iota + 1
	KindCreature
	KindEffect
	KindMissile
	KindAnimatedText
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindCreature:
		return "creature"
	case KindEffect:
		return "effect"
	case KindMissile:
		return "missile"
	case KindAnimatedText:
		return "text"
	}
	return "unknown"
}

// Entity is anything that can sit on a tile or float over the map. The set
// of implementations is closed: *Item, *Creature, *Effect, *Missile and
// *AnimatedText. Switch on the concrete type or on Kind.
type Entity interface {
	Kind() Kind
	// Tile is the owning tile, nil when the entity is not placed.
	Tile() *Tile
	// StackPos is the index within the owning tile, -1 when not placed.
	StackPos() int
	Position() Position

	base() *placement
}

type placement struct {
	tile     *Tile
	stackPos int
	pos      Position
}

func (p *placement) base() *placement  { return p }
func (p *placement) Tile() *Tile        { return p.tile }
func (p *placement) Position() Position { return p.pos }

func (p *placement) StackPos() int {
	if p.tile == nil {
		return -1
	}
	return p.stackPos
}

func (p *placement) place(t *Tile, idx int) {
	p.tile = t
	p.stackPos = idx
	if t != nil {
		p.pos = t.pos
	}
}

func (p *placement) unplace() {
	p.tile = nil
	p.stackPos = -1
}

// Light is an emitted light: intensity in tiles, color as an 8-bit palette
// index.
type Light struct {
	Intensity uint8 `yaml:"intensity" json:"intensity"`
	Color     uint8 `yaml:"color" json:"color"`
}

type Item struct {
	placement
	ID      uint16
	Subtype uint16
	Phase   int
	Mark    uint8
}

func NewItem(id uint16, subtype uint16) *Item {
	return &Item{placement: placement{stackPos: -1}, ID: id, Subtype: subtype}
}

func (*Item) Kind() Kind { return KindItem }

type Effect struct {
	placement
	ID      uint16
	Top     bool
	Expires time.Time
}

func NewEffect(id uint16) *Effect {
	return &Effect{placement: placement{stackPos: -1}, ID: id}
}

func (*Effect) Kind() Kind { return KindEffect }

type Missile struct {
	placement
	ID       uint16
	From, To Position
}

func NewMissile(id uint16, from, to Position) *Missile {
	return &Missile{placement: placement{stackPos: -1, pos: from}, ID: id, From: from, To: to}
}

func (*Missile) Kind() Kind { return KindMissile }

// Direction of flight.
func (m *Missile) Direction() Direction { return m.From.DirectionTo(m.To) }

type AnimatedText struct {
	placement
	Text  string
	Color uint8
}

func NewAnimatedText(text string, color uint8) *AnimatedText {
	return &AnimatedText{placement: placement{stackPos: -1}, Text: text, Color: color}
}

func (*AnimatedText) Kind() Kind { return KindAnimatedText }
