package world

// Stack priority classes, lowest first.
const (
	PriorityGround       = 0
	PriorityGroundBorder = 1
	PriorityBottom       = 2
	PriorityTop          = 3
	PriorityCreature     = 4
	PriorityCommon       = 5
)

// DefaultGroundSpeed applies when a tile has no ground or the ground type
// carries no speed.
const DefaultGroundSpeed = 150

// ItemType holds the attributes of one item id that the protocol and the
// world model depend on.
type ItemType struct {
	ID           uint16 `yaml:"id" json:"id"`
	Name         string `yaml:"name,omitempty" json:"name,omitempty"`
	Ground       bool   `yaml:"ground,omitempty" json:"ground,omitempty"`
	GroundSpeed  int    `yaml:"groundSpeed,omitempty" json:"groundSpeed,omitempty"`
	GroundBorder bool   `yaml:"groundBorder,omitempty" json:"groundBorder,omitempty"`
	OnBottom     bool   `yaml:"onBottom,omitempty" json:"onBottom,omitempty"`
	OnTop        bool   `yaml:"onTop,omitempty" json:"onTop,omitempty"`
	Stackable    bool   `yaml:"stackable,omitempty" json:"stackable,omitempty"`
	Fluid        bool   `yaml:"fluid,omitempty" json:"fluid,omitempty"`
	Splash       bool   `yaml:"splash,omitempty" json:"splash,omitempty"`
	Chargeable   bool   `yaml:"chargeable,omitempty" json:"chargeable,omitempty"`
	Container    bool   `yaml:"container,omitempty" json:"container,omitempty"`
	FullGround   bool   `yaml:"fullGround,omitempty" json:"fullGround,omitempty"`
	NotWalkable  bool   `yaml:"notWalkable,omitempty" json:"notWalkable,omitempty"`
	NotPathable  bool   `yaml:"notPathable,omitempty" json:"notPathable,omitempty"`
	FloorChange  bool   `yaml:"floorChange,omitempty" json:"floorChange,omitempty"`
	Elevation    int    `yaml:"elevation,omitempty" json:"elevation,omitempty"`
	Light        Light  `yaml:"light,omitempty" json:"light,omitempty"`
	Phases       int    `yaml:"phases,omitempty" json:"phases,omitempty"`
	Width        int    `yaml:"width,omitempty" json:"width,omitempty"`
	Height       int    `yaml:"height,omitempty" json:"height,omitempty"`
}

// StackPriority is the class that decides where the item sits in a tile.
func (t *ItemType) StackPriority() int {
	switch {
	case t == nil:
		return PriorityCommon
	case t.Ground:
		return PriorityGround
	case t.GroundBorder:
		return PriorityGroundBorder
	case t.OnBottom:
		return PriorityBottom
	case t.OnTop:
		return PriorityTop
	}
	return PriorityCommon
}

// HasSubtype reports whether the wire form of this item carries a count
// or fluid byte.
func (t *ItemType) HasSubtype() bool {
	return t != nil && (t.Stackable || t.Fluid || t.Splash || t.Chargeable)
}

func (t *ItemType) AnimationPhases() int {
	if t == nil || t.Phases < 1 {
		return 1
	}
	return t.Phases
}

func (t *ItemType) singleDimension() bool {
	return t == nil || (t.Width <= 1 && t.Height <= 1)
}

// ThingTypes resolves asset metadata. Implementations return nil for ids
// they do not know; callers treat that as a plain common item.
type ThingTypes interface {
	ItemType(id uint16) *ItemType
	// CreaturePhases is the animation phase count of an outfit look type.
	CreaturePhases(lookType uint16) int
}

// StaticTypes is an in-memory ThingTypes.
type StaticTypes struct {
	Items   map[uint16]*ItemType
	Outfits map[uint16]int
}

func NewStaticTypes(items ...ItemType) *StaticTypes {
	s := &StaticTypes{Items: make(map[uint16]*ItemType, len(items)), Outfits: map[uint16]int{}}
	for i := range items {
		it := items[i]
		s.Items[it.ID] = &it
	}
	return s
}

func (s *StaticTypes) Add(it ItemType) {
	if s.Items == nil {
		s.Items = map[uint16]*ItemType{}
	}
	s.Items[it.ID] = &it
}

func (s *StaticTypes) ItemType(id uint16) *ItemType {
	if s == nil {
		return nil
	}
	return s.Items[id]
}

func (s *StaticTypes) CreaturePhases(lookType uint16) int {
	if s != nil {
		if n, ok := s.Outfits[lookType]; ok && n > 0 {
			return n
		}
	}
	return 4
}
