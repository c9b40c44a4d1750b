package proto

import (
	"gotibia/wire"
	"gotibia/world"
)

func decodeFullMap(d *Decoder, r *wire.Reader) ([]Event, error) {
	pos := d.position(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	aware := d.View.AwareRange()
	tiles, err := d.mapArea(r, pos.X-aware.Left, pos.Y-aware.Top, pos.Z, aware.Width(), aware.Height())
	return mapEvent(MapFull, pos, tiles, err)
}

// moveCenter is the center a row opcode starts from: sent explicitly by
// protocols with GameMapMovePosition, otherwise the current one.
func (d *Decoder) moveCenter(r *wire.Reader) world.Position {
	if d.on(GameMapMovePosition) {
		return d.position(r)
	}
	return d.View.Center()
}

func decodeMapRow(kind MapKind) decodeFunc {
	return func(d *Decoder, r *wire.Reader) ([]Event, error) {
		pos := d.moveCenter(r)
		if err := r.Err(); err != nil {
			return nil, err
		}
		aware := d.View.AwareRange()
		var x, y, w, h int
		switch kind {
		case MapNorth:
			pos.Y--
			x, y, w, h = pos.X-aware.Left, pos.Y-aware.Top, aware.Width(), 1
		case MapEast:
			pos.X++
			x, y, w, h = pos.X+aware.Right, pos.Y-aware.Top, 1, aware.Height()
		case MapSouth:
			pos.Y++
			x, y, w, h = pos.X-aware.Left, pos.Y+aware.Bottom, aware.Width(), 1
		case MapWest:
			pos.X--
			x, y, w, h = pos.X-aware.Left, pos.Y-aware.Top, 1, aware.Height()
		}
		tiles, err := d.mapArea(r, x, y, pos.Z, w, h)
		return mapEvent(kind, pos, tiles, err)
	}
}

// decodeFloorChangeUp reads the floors that come into view when the
// player climbs one floor.
func decodeFloorChangeUp(d *Decoder, r *wire.Reader) ([]Event, error) {
	pos := d.moveCenter(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	aware := d.View.AwareRange()
	pos.Z--
	x, y := pos.X-aware.Left, pos.Y-aware.Top
	var (
		tiles []TileDescription
		skip  int
		err   error
	)
	switch {
	case pos.Z == world.SeaFloor:
		for z := world.SeaFloor - world.AwareUndergroundFloorRange; z >= 0 && err == nil; z-- {
			tiles, skip, err = d.floorDescription(r, tiles, x, y, z, aware.Width(), aware.Height(), 8-z, skip)
		}
	case pos.Z > world.SeaFloor:
		z := pos.Z - world.AwareUndergroundFloorRange
		tiles, _, err = d.floorDescription(r, tiles, x, y, z, aware.Width(), aware.Height(), 3, 0)
	}
	pos.X++
	pos.Y++
	return mapEvent(MapFloorUp, pos, tiles, err)
}

func decodeFloorChangeDown(d *Decoder, r *wire.Reader) ([]Event, error) {
	pos := d.moveCenter(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	aware := d.View.AwareRange()
	pos.Z++
	x, y := pos.X-aware.Left, pos.Y-aware.Top
	var (
		tiles []TileDescription
		skip  int
		err   error
	)
	switch {
	case pos.Z == world.UndergroundFloor:
		offset := -1
		for z := pos.Z; z <= pos.Z+world.AwareUndergroundFloorRange && err == nil; z++ {
			tiles, skip, err = d.floorDescription(r, tiles, x, y, z, aware.Width(), aware.Height(), offset, skip)
			offset--
		}
	case pos.Z > world.UndergroundFloor && pos.Z < world.MaxZ-1:
		z := pos.Z + world.AwareUndergroundFloorRange
		tiles, _, err = d.floorDescription(r, tiles, x, y, z, aware.Width(), aware.Height(), -3, 0)
	}
	pos.X--
	pos.Y--
	return mapEvent(MapFloorDown, pos, tiles, err)
}

// mapEvent drops a map description that failed part way through: applying
// it would clean every tile the server did not get to.
func mapEvent(kind MapKind, center world.Position, tiles []TileDescription, err error) ([]Event, error) {
	if err != nil {
		return nil, err
	}
	return []Event{MapDescription{Kind: kind, Center: center, Tiles: tiles}}, nil
}

func decodeUpdateTile(d *Decoder, r *wire.Reader) ([]Event, error) {
	pos := d.position(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	td, _, err := d.tileDescription(r, pos)
	if err != nil {
		return nil, err
	}
	return []Event{TileUpdate{Tile: td}}, nil
}

func decodeAddThing(d *Decoder, r *wire.Reader) ([]Event, error) {
	pos := d.position(r)
	stackPos := -1
	if d.on(GameTileAddThingWithStackpos) {
		stackPos = int(r.U8())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	t, err := d.thing(r)
	if err != nil {
		return nil, err
	}
	return []Event{ThingAdded{Pos: pos, StackPos: stackPos, Thing: t}}, nil
}

func decodeTransformThing(d *Decoder, r *wire.Reader) ([]Event, error) {
	ref := d.mappedThing(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	t, err := d.thing(r)
	if err != nil {
		return nil, err
	}
	return []Event{ThingTransformed{Ref: ref, Thing: t}}, nil
}

func decodeRemoveThing(d *Decoder, r *wire.Reader) ([]Event, error) {
	ref := d.mappedThing(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ThingRemoved{Ref: ref}}, nil
}

func decodeMoveCreature(d *Decoder, r *wire.Reader) ([]Event, error) {
	ref := d.mappedThing(r)
	to := d.position(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{CreatureMoved{Ref: ref, To: to}}, nil
}

func decodeWorldLight(d *Decoder, r *wire.Reader) ([]Event, error) {
	l := world.Light{Intensity: r.U8(), Color: r.U8()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{WorldLight{Light: l}}, nil
}

// Steps of the effect script servers send from protocol 1203 on.
const (
	effectEndLoop = iota
	effectDelta
	effectDelay
	effectCreate
	effectDistance
	effectDistanceReversed
	effectSoundMain
	effectSoundSecondary
)

func (d *Decoder) effectID(r *wire.Reader, wide bool) uint16 {
	if wide {
		return r.U16()
	}
	return uint16(r.U8())
}

func decodeMagicEffect(d *Decoder, r *wire.Reader) ([]Event, error) {
	pos := d.position(r)
	if d.Caps.ProtocolVersion() < 1203 {
		id := d.effectID(r, d.on(GameMagicEffectU16))
		if d.version() <= 750 {
			id++
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		return []Event{MagicEffect{Pos: pos, ID: id}}, nil
	}
	var events []Event
	for step := r.U8(); step != effectEndLoop && r.Err() == nil; step = r.U8() {
		switch step {
		case effectDelta, effectDelay:
			r.U8()
		case effectDistance, effectDistanceReversed:
			id := d.effectID(r, d.on(GameEffectU16))
			dx := int(r.I8())
			dy := int(r.I8())
			other := pos.Translated(dx, dy, 0)
			if step == effectDistance {
				events = append(events, MissileFired{From: pos, To: other, ID: id})
			} else {
				events = append(events, MissileFired{From: other, To: pos, ID: id})
			}
		case effectCreate:
			events = append(events, MagicEffect{Pos: pos, ID: d.effectID(r, d.on(GameEffectU16))})
		case effectSoundMain, effectSoundSecondary:
			r.U8()
			r.U16()
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func decodeRemoveMagicEffect(d *Decoder, r *wire.Reader) ([]Event, error) {
	pos := d.position(r)
	id := d.effectID(r, d.on(GameEffectU16))
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{RemoveMagicEffect{Pos: pos, ID: id}}, nil
}

func decodeAnimatedText(d *Decoder, r *wire.Reader) ([]Event, error) {
	pos := d.position(r)
	color := r.U8()
	text := r.String()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{AnimatedTextShown{Pos: pos, Color: color, Text: text}}, nil
}

func decodeMissile(d *Decoder, r *wire.Reader) ([]Event, error) {
	from := d.position(r)
	to := d.position(r)
	id := d.effectID(r, d.on(GameDistanceEffectU16))
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{MissileFired{From: from, To: to, ID: id}}, nil
}
