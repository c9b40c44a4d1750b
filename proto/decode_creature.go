package proto

import (
	"gotibia/wire"
	"gotibia/world"
)

// Sub-types of the creature data opcode.
const (
	creatureDataFull      = 0
	creatureDataVocation1 = 11
	creatureDataVocation2 = 12
	creatureDataVocation3 = 13
	creatureDataIcons     = 14
)

func decodeCreatureData(d *Decoder, r *wire.Reader) ([]Event, error) {
	id := r.U32()
	kind := r.U8()
	if err := r.Err(); err != nil {
		return nil, err
	}
	switch kind {
	case creatureDataFull:
		marker := r.U16()
		if err := r.Err(); err != nil {
			return nil, err
		}
		c, err := d.creature(r, marker)
		if err != nil {
			return nil, err
		}
		return []Event{CreatureSeen{Creature: c}}, nil
	case creatureDataVocation1, creatureDataVocation2, creatureDataVocation3:
		voc := r.U8()
		if err := r.Err(); err != nil {
			return nil, err
		}
		return []Event{CreatureVocation{ID: id, Vocation: voc}}, nil
	case creatureDataIcons:
		icons := d.creatureIcons(r)
		if err := r.Err(); err != nil {
			return nil, err
		}
		return []Event{CreatureIcons{ID: id, Icons: icons}}, nil
	}
	return nil, nil
}

func decodeCreatureHealth(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureHealth{ID: r.U32(), Percent: r.U8()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeCreatureLight(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureLight{ID: r.U32()}
	ev.Light = world.Light{Intensity: r.U8(), Color: r.U8()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeCreatureOutfit(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureOutfit{ID: r.U32()}
	ev.Outfit = d.outfit(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeCreatureSpeed(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureSpeed{ID: r.U32()}
	if d.on(GameCreatureBaseSpeed) {
		ev.BaseSpeed = r.U16()
	}
	ev.Speed = r.U16()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeCreatureSkull(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureSkull{ID: r.U32(), Skull: r.U8()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeCreatureShield(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureShield{ID: r.U32(), Shield: r.U8()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeCreatureUnpass(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureUnpass{ID: r.U32(), Unpass: r.Bool()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeCreatureMark(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureMark{ID: r.U32()}
	if d.on(GamePermanentCreatureMarks) {
		ev.Permanent = r.Bool()
	}
	ev.Mark = r.U8()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeCreatureType(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CreatureType{ID: r.U32(), Type: world.CreatureType(r.U8())}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}
