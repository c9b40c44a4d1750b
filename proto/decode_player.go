package proto

import "gotibia/wire"

func (d *Decoder) wideU16(r *wire.Reader, wide bool) uint32 {
	if wide {
		return r.U32()
	}
	return uint32(r.U16())
}

func decodePlayerStats(d *Decoder, r *wire.Reader) ([]Event, error) {
	var s PlayerStats
	v := d.version()
	wideHealth := d.on(GameDoubleHealth)
	s.Health = d.wideU16(r, wideHealth)
	s.MaxHealth = d.wideU16(r, wideHealth)

	s.FreeCapacity = d.wideU16(r, d.on(GameDoubleFreeCapacity))
	if v > 772 {
		s.FreeCapacity /= 100
	}
	if v < 1281 && d.on(GameTotalCapacity) {
		s.TotalCapacity = r.U32() / 100
	}

	if d.on(GameDoubleExperience) {
		s.Experience = r.U64()
	} else {
		s.Experience = uint64(r.U32())
	}
	if d.on(GameLevelU16) {
		s.Level = r.U16()
	} else {
		s.Level = uint16(r.U8())
	}
	s.LevelPercent = r.U8()

	if d.on(GameExperienceBonus) {
		if v <= 1096 {
			r.Double()
		} else {
			r.U16()
			if v < 1281 {
				r.U16()
			}
			r.Skip(4 * 2)
		}
	}

	s.Mana = d.wideU16(r, wideHealth)
	s.MaxMana = d.wideU16(r, wideHealth)

	if v < 1281 {
		s.MagicLevel = r.U8()
		if d.on(GameSkillsBase) {
			s.BaseMagicLevel = r.U8()
		}
		s.MagicLevelPercent = r.U8()
	}
	if d.on(GameSoul) {
		s.Soul = r.U8()
	}
	if d.on(GamePlayerStamina) {
		s.Stamina = r.U16()
	}
	if d.on(GameSkillsBase) {
		s.BaseSpeed = r.U16()
	}
	if d.on(GamePlayerRegenerationTime) {
		s.Regeneration = r.U16()
	}
	if d.on(GameOfflineTrainingTime) {
		s.OfflineTraining = r.U16()
	}
	if v >= 1097 {
		r.U16()
		r.U8()
	}
	if v >= 1281 {
		s.ManaShield = d.wideU16(r, wideHealth)
		s.MaxManaShield = d.wideU16(r, wideHealth)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{s}, nil
}

func decodePlayerSkills(d *Decoder, r *wire.Reader) ([]Event, error) {
	s := PlayerSkills{Skills: map[int]Skill{}}
	v := d.version()
	if v >= 1281 {
		s.HasMagicLevel = true
		s.MagicLevel.Level = r.U16()
		s.MagicLevel.Base = r.U16()
		r.U16()
		s.MagicLevel.Percent = r.U16() / 100
	}

	for id := SkillFist; id <= SkillFishing; id++ {
		var sk Skill
		if d.on(GameDoubleSkills) {
			sk.Level = r.U16()
		} else {
			sk.Level = uint16(r.U8())
		}
		sk.Base = sk.Level
		if d.on(GameSkillsBase) {
			if d.on(GameBaseSkillU16) {
				sk.Base = r.U16()
			} else {
				sk.Base = uint16(r.U8())
			}
		}
		if v >= 1281 {
			r.U16()
			sk.Percent = r.U16() / 100
		} else {
			sk.Percent = uint16(r.U8())
		}
		s.Skills[id] = sk
	}

	if d.on(GameAdditionalSkills) {
		for id := SkillCriticalChance; id <= SkillManaLeechAmount; id++ {
			if !d.on(GameLeechAmount) && (id == SkillLifeLeechAmount || id == SkillManaLeechAmount) {
				continue
			}
			s.Skills[id] = Skill{Level: r.U16(), Base: r.U16()}
		}
	}

	if d.on(GameConcotions) {
		r.U8()
	}

	if d.on(GameForgeSkillStats) {
		last := 16
		if v >= 1332 {
			last = 24
		}
		for id := SkillForgeFirst; id < last; id++ {
			s.Skills[id] = Skill{Level: r.U16(), Base: r.U16()}
		}
		r.U32()
		r.U32()
		s.Capacity = r.U32()
	}

	if d.on(GameCharacterSkillStats) {
		r.U32()
		r.U32()
		s.Capacity = r.U32()
		r.U16()
		r.U16()
		r.U8()
		r.Double()
		for i := 0; i < 5; i++ {
			r.U8()
			r.Double()
		}
		r.U16()
		r.U16()
		if v >= 1500 {
			r.U16()
		}
		r.Double()
		r.Double()
		r.U16()
		n := int(r.U8())
		for i := 0; i < n && r.Err() == nil; i++ {
			r.U8()
			r.Double()
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{s}, nil
}

func decodePlayerState(d *Decoder, r *wire.Reader) ([]Event, error) {
	var st uint64
	switch {
	case d.version() >= 1405:
		st = r.U64()
	case d.version() >= 1281:
		st = uint64(r.U32())
	case d.on(GamePlayerStateU16):
		st = uint64(r.U16())
	default:
		st = uint64(r.U8())
	}
	if d.version() >= 1281 && d.on(GamePlayerStateCounter) {
		r.U8()
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{PlayerState{States: st}}, nil
}

// decodeClearTarget tolerates servers that send no sequence number.
func decodeClearTarget(d *Decoder, r *wire.Reader) ([]Event, error) {
	var ev ClearTarget
	switch {
	case d.on(GameAttackSeq) && r.Remaining() >= 4:
		ev.Seq = r.U32()
	case r.Remaining() >= 1:
		ev.Seq = uint32(r.U8())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeInventorySet(d *Decoder, r *wire.Reader) ([]Event, error) {
	slot := r.U8()
	if err := r.Err(); err != nil {
		return nil, err
	}
	it, err := d.item(r)
	if err != nil {
		return nil, err
	}
	return []Event{InventorySet{Slot: slot, Item: it}}, nil
}

func decodeInventoryClear(d *Decoder, r *wire.Reader) ([]Event, error) {
	slot := r.U8()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{InventoryCleared{Slot: slot}}, nil
}

func decodeOpenContainer(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := ContainerOpened{ID: r.U8()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	it, err := d.item(r)
	if err != nil {
		return nil, err
	}
	ev.Item = it
	ev.Name = r.String()
	ev.Capacity = r.U8()
	ev.HasParent = r.Bool()
	if d.version() >= 1281 {
		r.U8()
	}
	if d.on(GameContainerPagination) {
		ev.Unlocked = r.Bool()
		ev.Paginated = r.Bool()
		ev.Size = r.U16()
		ev.FirstIndex = r.U16()
	}
	n := int(r.U8())
	if err := r.Err(); err != nil {
		return nil, err
	}
	ev.Items = make([]*ItemDesc, 0, n)
	for i := 0; i < n; i++ {
		it, err := d.item(r)
		if err != nil {
			return nil, err
		}
		ev.Items = append(ev.Items, it)
	}
	if d.on(GameContainerFilter) {
		r.U8()
		filters := int(r.U8())
		for i := 0; i < filters && r.Err() == nil; i++ {
			r.U8()
			_ = r.String()
		}
	}
	if d.version() >= 1340 {
		r.U8()
		r.U8()
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if !ev.Paginated {
		ev.Size = uint16(len(ev.Items))
	}
	return []Event{ev}, nil
}

func decodeCloseContainer(d *Decoder, r *wire.Reader) ([]Event, error) {
	id := r.U8()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ContainerClosed{ID: id}}, nil
}

func (d *Decoder) containerSlot(r *wire.Reader) uint16 {
	if d.on(GameContainerPagination) {
		return r.U16()
	}
	return uint16(r.U8())
}

func decodeContainerAddItem(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := ContainerItemAdded{ID: r.U8()}
	if d.on(GameContainerPagination) {
		ev.Slot = r.U16()
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	it, err := d.item(r)
	if err != nil {
		return nil, err
	}
	ev.Item = it
	return []Event{ev}, nil
}

func decodeContainerUpdateItem(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := ContainerItemUpdated{ID: r.U8()}
	ev.Slot = d.containerSlot(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	it, err := d.item(r)
	if err != nil {
		return nil, err
	}
	ev.Item = it
	return []Event{ev}, nil
}

func decodeContainerRemoveItem(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := ContainerItemRemoved{ID: r.U8()}
	ev.Slot = d.containerSlot(r)
	if d.on(GameContainerPagination) {
		if id := r.U16(); id != 0 && r.Err() == nil {
			ev.Last = d.itemBody(r, id)
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeDeath(d *Decoder, r *wire.Reader) ([]Event, error) {
	var ev Death
	if d.on(GameDeathType) {
		ev.Type = r.U8()
	}
	if d.on(GamePenalityOnDeath) && ev.Type == 0 {
		ev.Penalty = r.U8()
	}
	if d.version() >= 1281 {
		r.U8()
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}
