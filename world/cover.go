package world

const coverAnswerShift = 16

// IsCovered reports whether some floor between firstFloor and pos hides
// the tile at pos.
func (m *Map) IsCovered(pos Position, firstFloor int) bool {
	t := m.tiles[pos]
	if t != nil {
		if v, ok := cachedCover(t.covered, firstFloor); ok {
			return v
		}
	}
	covered := m.computeCovered(pos, firstFloor)
	if t != nil {
		t.covered = storeCover(t.covered, firstFloor, covered)
	}
	return covered
}

func (m *Map) computeCovered(pos Position, firstFloor int) bool {
	p := pos
	for p.CoveredUp(1) && p.Z >= firstFloor {
		if t := m.tiles[p]; t != nil && t.IsFullyOpaque(m.types) {
			return true
		}
		if t := m.tiles[p.Translated(1, 1, 0)]; t != nil && t.HasTopGround(m.types) {
			return true
		}
	}
	return false
}

// IsCompletelyCovered reports whether the floors above pos hide every
// pixel of it, so it need not be drawn. Tiles with creatures, light or a
// creature walking across them are never treated as hidden.
func (m *Map) IsCompletelyCovered(pos Position, firstFloor int) bool {
	if pos.Z == 0 || pos.Z == firstFloor {
		return false
	}
	t := m.tiles[pos]
	if t != nil {
		if t.HasCreatures() || t.HasLight(m.types) || len(t.walking) > 0 {
			return false
		}
		if v, ok := cachedCover(t.completelyCovered, firstFloor); ok {
			return v
		}
	}
	covered := m.computeCompletelyCovered(pos, firstFloor, t)
	if t != nil {
		t.completelyCovered = storeCover(t.completelyCovered, firstFloor, covered)
	}
	return covered
}

func (m *Map) computeCompletelyCovered(pos Position, firstFloor int, self *Tile) bool {
	single := self == nil || self.IsSingleDimension(m.types)
	p := pos
	for p.CoveredUp(1) && p.Z >= firstFloor {
		top := true
		for x := 0; x < 2 && top; x++ {
			for y := 0; y < 2; y++ {
				if t := m.tiles[p.Translated(x, y, 0)]; t == nil || !t.HasTopGround(m.types) {
					top = false
					break
				}
			}
		}
		if top {
			return true
		}
		opaque := true
	scan:
		for x := 0; x < 2; x++ {
			for y := 0; y < 2; y++ {
				if t := m.tiles[p.Translated(-x, -y, 0)]; t == nil || !t.IsFullyOpaque(m.types) {
					opaque = false
					break scan
				}
				if single {
					break scan
				}
			}
		}
		if opaque {
			return true
		}
	}
	return false
}

// InvalidateCoverCache drops cached occlusion answers that a change at pos
// could affect: the tiles below it along the view diagonal and their
// neighbours.
func (m *Map) InvalidateCoverCache(pos Position) {
	if t := m.tiles[pos]; t != nil {
		t.resetCoverCache()
	}
	for z := pos.Z + 1; z <= MaxZ; z++ {
		n := z - pos.Z
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				if t := m.tiles[Position{X: pos.X - n + dx, Y: pos.Y - n + dy, Z: z}]; t != nil {
					t.resetCoverCache()
				}
			}
		}
	}
}

func cachedCover(bits uint32, floor int) (bool, bool) {
	if floor < 0 || floor > MaxZ || bits&(1<<floor) == 0 {
		return false, false
	}
	return bits&(1<<(floor+coverAnswerShift)) != 0, true
}

func storeCover(bits uint32, floor int, v bool) uint32 {
	if floor < 0 || floor > MaxZ {
		return bits
	}
	bits |= 1 << floor
	if v {
		bits |= 1 << (floor + coverAnswerShift)
	} else {
		bits &^= 1 << (floor + coverAnswerShift)
	}
	return bits
}
