package proto

import "gotibia/world"

// Event is the typed result of decoding one opcode. The set of events is
// closed; a Sink switches on the concrete type.
type Event interface {
	event()
}

// Thing is a decoded item or creature as found in tile and inventory
// lists. It is either *ItemDesc or *CreatureDesc.
type Thing interface {
	thing()
}

// ContainerExtra is the trailing container information newer protocols
// attach to items.
type ContainerExtra struct {
	Type      uint8
	Values    []uint32
	QuickLoot bool
	Quiver    bool
}

type ItemDesc struct {
	ID        uint16
	Subtype   uint16
	Mark      uint8
	Phase     uint8
	HasPhase  bool
	Container *ContainerExtra
}

func (*ItemDesc) thing() {}

// CreatureMarker tells how a creature is described on the wire.
type CreatureMarker uint8

const (
	CreatureUnknown  CreatureMarker = markerUnknownCreature
	CreatureOutdated CreatureMarker = markerOutdatedCreature
	CreatureTurn     CreatureMarker = markerCreatureTurn
)

type CreatureIcon struct {
	Icon     uint8
	Category uint8
	Count    uint16
}

// CreatureDesc carries whatever the wire said about one creature. Turn
// descriptors only fill ID, Direction and the unpass fields; outdated
// descriptors leave the identity fields (name, type, master) unset.
type CreatureDesc struct {
	Marker    CreatureMarker
	RemoveID  uint32
	ID        uint32
	Type      world.CreatureType
	MasterID  uint32
	Name      string
	Health    uint8
	Direction world.Direction
	Outfit    world.Outfit
	Light     world.Light
	Speed     uint16
	Icons     []CreatureIcon
	Skull     uint8
	Shield    uint8
	Emblem    uint8
	HasEmblem bool
	TypeMark  uint8
	Vocation  uint8
	Icon      uint8
	Mark      uint8
	HasUnpass bool
	Unpass    bool
}

func (*CreatureDesc) thing() {}

// ThingRef points at a thing already on the map, either by tile slot or,
// for creatures, by id.
type ThingRef struct {
	Pos        world.Position
	StackPos   int
	CreatureID uint32
	ByID       bool
}

// TileDescription replaces the content of one tile. An empty Things list
// clears it.
type TileDescription struct {
	Pos    world.Position
	Things []Thing
}

// MapKind says which map opcode produced a MapDescription.
type MapKind uint8

const (
	MapFull MapKind = iota
	MapNorth
	MapEast
	MapSouth
	MapWest
	MapFloorUp
	MapFloorDown
)

func (k MapKind) String() string {
	switch k {
	case MapFull:
		return "full"
	case MapNorth:
		return "north"
	case MapEast:
		return "east"
	case MapSouth:
		return "south"
	case MapWest:
		return "west"
	case MapFloorUp:
		return "floor-up"
	case MapFloorDown:
		return "floor-down"
	}
	return "unknown"
}

// MapDescription is a block of tiles around Center. For MapFull the center
// is set before the tiles are applied, for every other kind after.
type MapDescription struct {
	Kind   MapKind
	Center world.Position
	Tiles  []TileDescription
}

type TileUpdate struct {
	Tile TileDescription
}

// ThingAdded places a thing; StackPos is -1 when the server lets the
// client pick the slot.
type ThingAdded struct {
	Pos      world.Position
	StackPos int
	Thing    Thing
}

type ThingTransformed struct {
	Ref   ThingRef
	Thing Thing
}

type ThingRemoved struct {
	Ref ThingRef
}

type CreatureMoved struct {
	Ref ThingRef
	To  world.Position
}

// CreatureSeen refreshes a creature outside of any tile list.
type CreatureSeen struct {
	Creature *CreatureDesc
}

type CreatureHealth struct {
	ID      uint32
	Percent uint8
}

type CreatureLight struct {
	ID    uint32
	Light world.Light
}

type CreatureOutfit struct {
	ID     uint32
	Outfit world.Outfit
}

type CreatureSpeed struct {
	ID        uint32
	BaseSpeed uint16
	Speed     uint16
}

type CreatureSkull struct {
	ID    uint32
	Skull uint8
}

type CreatureShield struct {
	ID     uint32
	Shield uint8
}

type CreatureUnpass struct {
	ID     uint32
	Unpass bool
}

// MarkHidden removes a creature's static square.
const MarkHidden = 0xff

type CreatureMark struct {
	ID        uint32
	Permanent bool
	Mark      uint8
}

type CreatureType struct {
	ID   uint32
	Type world.CreatureType
}

type CreatureIcons struct {
	ID    uint32
	Icons []CreatureIcon
}

type CreatureVocation struct {
	ID       uint32
	Vocation uint8
}

type WorldLight struct {
	Light world.Light
}

type MagicEffect struct {
	Pos world.Position
	ID  uint16
}

type RemoveMagicEffect struct {
	Pos world.Position
	ID  uint16
}

type AnimatedTextShown struct {
	Pos   world.Position
	Color uint8
	Text  string
}

type MissileFired struct {
	From, To world.Position
	ID       uint16
}

type PlayerStats struct {
	Health, MaxHealth uint32
	FreeCapacity      uint32
	TotalCapacity     uint32
	Experience        uint64
	Level             uint16
	LevelPercent      uint8
	Mana, MaxMana     uint32
	MagicLevel        uint8
	BaseMagicLevel    uint8
	MagicLevelPercent uint8
	Soul              uint8
	Stamina           uint16
	BaseSpeed         uint16
	Regeneration      uint16
	OfflineTraining   uint16
	ManaShield        uint32
	MaxManaShield     uint32
}

type Skill struct {
	Level   uint16
	Base    uint16
	Percent uint16
}

const (
	SkillFist = iota
	SkillClub
	SkillSword
	SkillAxe
	SkillDistance
	SkillShielding
	SkillFishing
	SkillCriticalChance
	SkillCriticalDamage
	SkillLifeLeechChance
	SkillLifeLeechAmount
	SkillManaLeechChance
	SkillManaLeechAmount

	// SkillForgeFirst is where forge skills start. They share ids with
	// the leech skills, which those protocols no longer send.
	SkillForgeFirst = SkillManaLeechChance
)

// PlayerSkills maps skill ids to values. MagicLevel is only sent from
// protocol 1281 on.
type PlayerSkills struct {
	MagicLevel    Skill
	HasMagicLevel bool
	Skills        map[int]Skill
	Capacity      uint32
}

type PlayerState struct {
	States uint64
}

type InventorySet struct {
	Slot uint8
	Item *ItemDesc
}

type InventoryCleared struct {
	Slot uint8
}

type ContainerOpened struct {
	ID         uint8
	Item       *ItemDesc
	Name       string
	Capacity   uint8
	HasParent  bool
	Unlocked   bool
	Paginated  bool
	Size       uint16
	FirstIndex uint16
	Items      []*ItemDesc
}

type ContainerClosed struct {
	ID uint8
}

type ContainerItemAdded struct {
	ID   uint8
	Slot uint16
	Item *ItemDesc
}

type ContainerItemUpdated struct {
	ID   uint8
	Slot uint16
	Item *ItemDesc
}

// ContainerItemRemoved may carry the item that slides into view at the
// end of a paginated container.
type ContainerItemRemoved struct {
	ID   uint8
	Slot uint16
	Last *ItemDesc
}

// Talk is a creature speaking. Pos is set for modes spoken on the map,
// Channel for channel modes.
type Talk struct {
	Statement uint32
	Name      string
	Level     uint16
	Mode      MessageMode
	Pos       world.Position
	HasPos    bool
	Channel   uint32
	Text      string
}

type TextMessage struct {
	Mode    MessageMode
	Channel uint16
	Pos     world.Position
	HasPos  bool
	Values  []uint64
	Colors  []uint8
	Text    string
}

type Death struct {
	Type    uint8
	Penalty uint8
}

type ClearTarget struct {
	Seq uint32
}

// CancelWalk is the server refusing a step. Dir is InvalidDirection when
// the server did not say which.
type CancelWalk struct {
	Dir world.Direction
}

type WalkWait struct {
	Millis uint16
}

type Screenshot struct {
	Type uint8
	Hint string
}

// LoginSucceeded is the server accepting the character. The speed law
// coefficients are zero for protocols without the new speed law.
type LoginSucceeded struct {
	PlayerID        uint32
	ServerBeat      uint16
	SpeedA          float64
	SpeedB          float64
	SpeedC          float64
	CanReportBugs   bool
	PvpFrame        bool
	ExpertMode      bool
	StoreURL        string
	CoinsPacketSize uint16
	Exiva           bool
	Tournament      bool
}

type PendingGame struct{}

type EnterGame struct{}

type ChallengeReceived struct {
	Timestamp uint32
	Random    uint8
}

// LoginFailKind classifies LoginFailed.
type LoginFailKind uint8

const (
	FailUpdateNeeded LoginFailKind = iota + 1
	FailLoginError
	FailLoginWait
	FailSessionEnd
)

type LoginFailed struct {
	Kind   LoginFailKind
	Reason string
}

type LoginAdvice struct {
	Text string
}

type PingReceived struct{}

type PingBackReceived struct{}

func (MapDescription) event()       {}
func (TileUpdate) event()           {}
func (ThingAdded) event()           {}
func (ThingTransformed) event()     {}
func (ThingRemoved) event()         {}
func (CreatureMoved) event()        {}
func (CreatureSeen) event()         {}
func (CreatureHealth) event()       {}
func (CreatureLight) event()        {}
func (CreatureOutfit) event()       {}
func (CreatureSpeed) event()        {}
func (CreatureSkull) event()        {}
func (CreatureShield) event()       {}
func (CreatureUnpass) event()       {}
func (CreatureMark) event()         {}
func (CreatureType) event()         {}
func (CreatureIcons) event()        {}
func (CreatureVocation) event()     {}
func (WorldLight) event()           {}
func (MagicEffect) event()          {}
func (RemoveMagicEffect) event()    {}
func (AnimatedTextShown) event()    {}
func (MissileFired) event()         {}
func (PlayerStats) event()          {}
func (PlayerSkills) event()         {}
func (PlayerState) event()          {}
func (InventorySet) event()         {}
func (InventoryCleared) event()     {}
func (ContainerOpened) event()      {}
func (ContainerClosed) event()      {}
func (ContainerItemAdded) event()   {}
func (ContainerItemUpdated) event() {}
func (ContainerItemRemoved) event() {}
func (Talk) event()                 {}
func (TextMessage) event()          {}
func (Death) event()                {}
func (ClearTarget) event()          {}
func (CancelWalk) event()           {}
func (WalkWait) event()             {}
func (Screenshot) event()           {}
func (LoginSucceeded) event()       {}
func (PendingGame) event()          {}
func (EnterGame) event()            {}
func (ChallengeReceived) event()    {}
func (LoginFailed) event()          {}
func (LoginAdvice) event()          {}
func (PingReceived) event()         {}
func (PingBackReceived) event()     {}
