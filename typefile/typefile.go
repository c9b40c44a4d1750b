// Package typefile reads and writes the binary item-attribute table the
// client uses to order tile stacks and time steps. The table is a
// container of typed records; item records are keyed by item id and
// outfit records by look type.
package typefile

import (
	"encoding/binary"
	"fmt"
	"os"

	"gotibia/wire"
	"gotibia/world"
)

const (
	TypeVersion = 0x56657273 // 'Vers'
	TypeItem    = 0x6974656d // 'item'
	TypeOutfit  = 0x6f757466 // 'outf'
)

// attribute bits of an item record
const (
	flagGround uint32 = 1 << iota
	flagGroundBorder
	flagOnBottom
	flagOnTop
	flagStackable
	flagFluid
	flagSplash
	flagChargeable
	flagContainer
	flagFullGround
	flagNotWalkable
	flagNotPathable
	flagFloorChange
)

var order = binary.BigEndian

// Table is a decoded type file.
type Table struct {
	Version uint32
	Types   *world.StaticTypes
}

// Load reads the type file at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a type file. Records of unknown types are skipped.
func Parse(data []byte) (*Table, error) {
	entries, err := parse(data)
	if err != nil {
		return nil, err
	}
	t := &Table{Types: world.NewStaticTypes()}
	for _, e := range entries {
		switch e.Type {
		case TypeVersion:
			if len(e.Data) < 4 {
				return nil, fmt.Errorf("typefile: short version record")
			}
			t.Version = order.Uint32(e.Data)
		case TypeItem:
			it, err := decodeItem(uint16(e.ID), e.Data)
			if err != nil {
				return nil, fmt.Errorf("typefile: item %d: %w", e.ID, err)
			}
			t.Types.Add(it)
		case TypeOutfit:
			if len(e.Data) < 1 {
				return nil, fmt.Errorf("typefile: outfit %d: empty record", e.ID)
			}
			t.Types.Outfits[uint16(e.ID)] = int(e.Data[0])
		}
	}
	return t, nil
}

func decodeItem(id uint16, b []byte) (world.ItemType, error) {
	r := wire.NewReaderOrder(b, order)
	flags := r.U32()
	it := world.ItemType{
		ID:           id,
		Ground:       flags&flagGround != 0,
		GroundBorder: flags&flagGroundBorder != 0,
		OnBottom:     flags&flagOnBottom != 0,
		OnTop:        flags&flagOnTop != 0,
		Stackable:    flags&flagStackable != 0,
		Fluid:        flags&flagFluid != 0,
		Splash:       flags&flagSplash != 0,
		Chargeable:   flags&flagChargeable != 0,
		Container:    flags&flagContainer != 0,
		FullGround:   flags&flagFullGround != 0,
		NotWalkable:  flags&flagNotWalkable != 0,
		NotPathable:  flags&flagNotPathable != 0,
		FloorChange:  flags&flagFloorChange != 0,
	}
	it.GroundSpeed = int(r.U16())
	it.Elevation = int(r.U8())
	it.Light = world.Light{Intensity: r.U8(), Color: r.U8()}
	it.Phases = int(r.U8())
	it.Width = int(r.U8())
	it.Height = int(r.U8())
	if r.Remaining() > 0 {
		it.Name = r.String()
	}
	return it, r.Err()
}

func encodeItem(it world.ItemType) []byte {
	var flags uint32
	for _, f := range []struct {
		on  bool
		bit uint32
	}{
		{it.Ground, flagGround},
		{it.GroundBorder, flagGroundBorder},
		{it.OnBottom, flagOnBottom},
		{it.OnTop, flagOnTop},
		{it.Stackable, flagStackable},
		{it.Fluid, flagFluid},
		{it.Splash, flagSplash},
		{it.Chargeable, flagChargeable},
		{it.Container, flagContainer},
		{it.FullGround, flagFullGround},
		{it.NotWalkable, flagNotWalkable},
		{it.NotPathable, flagNotPathable},
		{it.FloorChange, flagFloorChange},
	} {
		if f.on {
			flags |= f.bit
		}
	}
	w := wire.NewWriterOrder(order).
		U32(flags).
		U16(uint16(it.GroundSpeed)).
		U8(uint8(it.Elevation)).
		U8(it.Light.Intensity).U8(it.Light.Color).
		U8(uint8(it.Phases)).U8(uint8(it.Width)).U8(uint8(it.Height))
	if it.Name != "" {
		w.String(it.Name)
	}
	return w.Bytes()
}

// Encode builds a type file holding items and outfit phase counts.
func Encode(version uint32, items []world.ItemType, outfits map[uint16]int) []byte {
	v := make([]byte, 4)
	order.PutUint32(v, version)
	entries := []Entry{{Type: TypeVersion, Data: v}}
	for _, it := range items {
		entries = append(entries, Entry{Type: TypeItem, ID: uint32(it.ID), Data: encodeItem(it)})
	}
	for look, n := range outfits {
		entries = append(entries, Entry{Type: TypeOutfit, ID: uint32(look), Data: []byte{uint8(n)}})
	}
	return Build(entries)
}
