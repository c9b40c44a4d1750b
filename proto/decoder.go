package proto

import (
	"errors"
	"fmt"

	"gotibia/wire"
	"gotibia/world"
)

var (
	ErrInvalidThingID = errors.New("invalid thing id 0")
	ErrMessageSize    = errors.New("declared message size exceeds message")
)

// DecodeError is a failure while decoding one opcode. The rest of the
// message is discarded.
type DecodeError struct {
	Opcode Opcode
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Opcode.Name(), e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownCreatureMarkerError reports a thing id that was expected to be a
// creature marker.
type UnknownCreatureMarkerError struct {
	Marker uint16
}

func (e *UnknownCreatureMarkerError) Error() string {
	return fmt.Sprintf("invalid creature marker %d", e.Marker)
}

// View is the part of the world the decoder needs: map rows are laid out
// relative to the current center, and summons are told apart by the local
// player id. *world.Map satisfies it.
type View interface {
	Center() world.Position
	AwareRange() world.AwareRange
	LocalPlayerID() uint32
}

type staticView struct {
	center world.Position
	aware  world.AwareRange
	local  uint32
}

func (v staticView) Center() world.Position       { return v.center }
func (v staticView) AwareRange() world.AwareRange { return v.aware }
func (v staticView) LocalPlayerID() uint32        { return v.local }

// Decoder holds the per-session context every decode function reads.
type Decoder struct {
	Caps  Capabilities
	Modes *ModeTable
	Types world.ThingTypes
	View  View
}

// NewDecoder builds a decoder. A nil view behaves like an empty map
// centered at the origin.
func NewDecoder(caps Capabilities, types world.ThingTypes, view View) *Decoder {
	if types == nil {
		types = world.NewStaticTypes()
	}
	if view == nil {
		view = staticView{aware: world.DefaultAwareRange}
	}
	return &Decoder{
		Caps:  caps,
		Modes: NewModeTable(caps.ProtocolVersion()),
		Types: types,
		View:  view,
	}
}

func (d *Decoder) on(f Feature) bool { return d.Caps.Enabled(f) }
func (d *Decoder) version() int     { return d.Caps.Version() }

func (d *Decoder) position(r *wire.Reader) world.Position {
	x := r.U16()
	y := r.U16()
	z := r.U8()
	return world.Position{X: int(x), Y: int(y), Z: int(z)}
}

func (d *Decoder) outfit(r *wire.Reader) world.Outfit {
	var o world.Outfit
	if d.on(GameLooktypeU16) {
		o.LookType = r.U16()
	} else {
		o.LookType = uint16(r.U8())
	}
	if o.LookType != 0 {
		o.Head = r.U8()
		o.Body = r.U8()
		o.Legs = r.U8()
		o.Feet = r.U8()
		if d.on(GamePlayerAddons) {
			o.Addons = r.U8()
		}
	} else {
		o.LookTypeEx = r.U16()
	}
	if d.on(GamePlayerMounts) {
		o.Mount = r.U16()
	}
	return o
}

func (d *Decoder) subtype(r *wire.Reader, id uint16) uint16 {
	if !d.Types.ItemType(id).HasSubtype() {
		return 0
	}
	if d.on(GameCountU16) {
		return r.U16()
	}
	return uint16(r.U8())
}

// thing reads one entry of a tile or thing list.
func (d *Decoder) thing(r *wire.Reader) (Thing, error) {
	id := r.U16()
	if err := r.Err(); err != nil {
		return nil, err
	}
	switch id {
	case 0:
		return nil, ErrInvalidThingID
	case markerUnknownCreature, markerOutdatedCreature, markerCreatureTurn:
		return d.creature(r, id)
	}
	return &ItemDesc{ID: id, Subtype: d.subtype(r, id)}, r.Err()
}

// item reads an item in inventory or container form.
func (d *Decoder) item(r *wire.Reader) (*ItemDesc, error) {
	id := r.U16()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, ErrInvalidThingID
	}
	return d.itemBody(r, id), r.Err()
}

func (d *Decoder) itemBody(r *wire.Reader, id uint16) *ItemDesc {
	it := &ItemDesc{ID: id}
	if d.on(GameThingMarks) && d.version() < 1281 {
		it.Mark = r.U8()
	}
	it.Subtype = d.subtype(r, id)
	typ := d.Types.ItemType(id)
	if d.on(GameItemAnimationPhase) && typ.AnimationPhases() > 1 {
		it.Phase = r.U8()
		it.HasPhase = true
	}
	if typ != nil && typ.Container {
		it.Container = d.containerExtra(r)
	}
	return it
}

func (d *Decoder) containerExtra(r *wire.Reader) *ContainerExtra {
	x := &ContainerExtra{}
	if d.on(GameContainerTypes) {
		x.Type = r.U8()
		n := 0
		switch x.Type {
		case 1, 2, 8:
			n = 1
		case 3:
			n = 2
		case 9:
			n = 1
			if d.version() >= 1332 {
				n++
			}
		case 11:
			n = 2
			if d.version() >= 1332 {
				n++
			}
		}
		for i := 0; i < n; i++ {
			x.Values = append(x.Values, r.U32())
		}
		return x
	}
	if d.on(GameThingQuickLoot) {
		if x.QuickLoot = r.Bool(); x.QuickLoot {
			x.Values = append(x.Values, r.U32())
		}
	}
	if d.on(GameThingQuiver) {
		if x.Quiver = r.Bool(); x.Quiver {
			x.Values = append(x.Values, r.U32())
		}
	}
	return x
}

func (d *Decoder) creatureIcons(r *wire.Reader) []CreatureIcon {
	n := int(r.U8())
	if r.Err() != nil || n == 0 {
		return nil
	}
	icons := make([]CreatureIcon, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		icons = append(icons, CreatureIcon{Icon: r.U8(), Category: r.U8(), Count: r.U16()})
	}
	return icons
}

// creature reads a creature descriptor after its marker.
func (d *Decoder) creature(r *wire.Reader, marker uint16) (*CreatureDesc, error) {
	c := &CreatureDesc{Marker: CreatureMarker(marker)}
	v := d.version()
	switch marker {
	case markerCreatureTurn:
		c.ID = r.U32()
		c.Direction = world.Direction(r.U8())
		if d.on(GameCreatureUnpassOnTurn) {
			c.HasUnpass = true
			c.Unpass = r.Bool()
		}
		return c, r.Err()
	case markerOutdatedCreature:
		c.ID = r.U32()
	case markerUnknownCreature:
		c.RemoveID = r.U32()
		c.ID = r.U32()
		if d.on(GameCreatureTypeOnUnknown) {
			c.Type = world.CreatureType(r.U8())
		} else {
			c.Type = world.TypeFromID(c.ID)
		}
		if v >= 1281 && c.Type == world.CreatureSummonOwn {
			c.MasterID = r.U32()
			if c.MasterID != d.View.LocalPlayerID() {
				c.Type = world.CreatureSummonOther
			}
		}
		c.Name = r.String()
		if d.on(GameFormatCreatureName) {
			c.Name = world.FormatName(c.Name)
		}
	default:
		return nil, &UnknownCreatureMarkerError{Marker: marker}
	}

	c.Health = r.U8()
	c.Direction = world.Direction(r.U8())
	c.Outfit = d.outfit(r)
	c.Light = world.Light{Intensity: r.U8(), Color: r.U8()}
	c.Speed = r.U16()
	if v >= 1281 {
		c.Icons = d.creatureIcons(r)
	}
	c.Skull = r.U8()
	c.Shield = r.U8()
	if d.on(GameCreatureEmblems) && marker == markerUnknownCreature {
		c.Emblem = r.U8()
		c.HasEmblem = true
	}
	if d.on(GameThingMarks) {
		c.TypeMark = r.U8()
	}
	if v >= 1281 {
		switch world.CreatureType(c.TypeMark) {
		case world.CreatureSummonOwn:
			c.MasterID = r.U32()
			if c.MasterID != d.View.LocalPlayerID() {
				c.TypeMark = uint8(world.CreatureSummonOther)
			}
		case world.CreaturePlayer:
			c.Vocation = r.U8()
		}
	}
	if d.on(GameCreatureIcons) {
		c.Icon = r.U8()
	}
	if d.on(GameThingMarks) {
		c.Mark = r.U8()
		if v < 1281 {
			r.U16()
		}
	}
	if v >= 1281 {
		r.U8()
	}
	if d.on(GameCreatureUnpass) {
		c.HasUnpass = true
		c.Unpass = r.Bool()
	}
	if d.on(GameCreaturePaperdoll) {
		n := int(r.U8())
		r.Skip(2 * n)
	}
	if d.on(GameCreatureShader) {
		_ = r.String()
	}
	if d.on(GameCreatureAttachedEffect) {
		n := int(r.U8())
		r.Skip(2 * n)
	}
	return c, r.Err()
}

// mappedThing reads a reference to a thing already on the map.
func (d *Decoder) mappedThing(r *wire.Reader) ThingRef {
	x := r.U16()
	if x != 0xffff {
		y := r.U16()
		z := r.U8()
		return ThingRef{Pos: world.Position{X: int(x), Y: int(y), Z: int(z)}, StackPos: int(r.U8())}
	}
	return ThingRef{CreatureID: r.U32(), ByID: true, StackPos: -1}
}

// tileDescription reads the things of one tile up to the end marker. It
// returns how many following tiles the server skipped.
func (d *Decoder) tileDescription(r *wire.Reader, pos world.Position) (TileDescription, int, error) {
	td := TileDescription{Pos: pos}
	gotEffect := false
	for stackPos := 0; stackPos < 256; stackPos++ {
		marker := r.Peek16()
		if err := r.Err(); err != nil {
			return td, 0, err
		}
		if marker >= 0xff00 {
			return td, int(r.U16() & 0xff), r.Err()
		}
		if d.on(GameEnvironmentEffect) && !gotEffect {
			r.U16()
			gotEffect = true
			continue
		}
		t, err := d.thing(r)
		if err != nil {
			return td, 0, err
		}
		td.Things = append(td.Things, t)
	}
	return td, 0, r.Err()
}

// floorDescription reads a w×h block of floor z. Tiles land at
// (x+nx+offset, y+ny+offset); skip carries over between floors.
func (d *Decoder) floorDescription(r *wire.Reader, out []TileDescription, x, y, z, w, h, offset, skip int) ([]TileDescription, int, error) {
	for nx := 0; nx < w; nx++ {
		for ny := 0; ny < h; ny++ {
			pos := world.Position{X: x + nx + offset, Y: y + ny + offset, Z: z}
			if skip > 0 {
				out = append(out, TileDescription{Pos: pos})
				skip--
				continue
			}
			td, n, err := d.tileDescription(r, pos)
			if err != nil {
				return out, 0, err
			}
			out = append(out, td)
			skip = n
		}
	}
	return out, skip, nil
}

// floorRange lists the floors a client at z sees, in wire order.
func floorRange(z int) (start, end, step int) {
	if z > world.SeaFloor {
		return max(0, z-world.AwareUndergroundFloorRange), min(world.MaxZ, z+world.AwareUndergroundFloorRange), 1
	}
	return world.SeaFloor, 0, -1
}

// mapArea reads every visible floor of a w×h area whose top-left corner on
// the center floor is (x, y).
func (d *Decoder) mapArea(r *wire.Reader, x, y, z, w, h int) ([]TileDescription, error) {
	start, end, step := floorRange(z)
	var (
		out  []TileDescription
		skip int
		err  error
	)
	for nz := start; nz != end+step; nz += step {
		out, skip, err = d.floorDescription(r, out, x, y, nz, w, h, z-nz, skip)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
