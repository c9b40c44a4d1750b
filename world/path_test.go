package world

import "testing"

func floor(m *Map, x0, y0, x1, y1, z int, id uint16) {
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			m.AddThing(NewItem(id, 0), Position{X: x, Y: y, Z: z}, StackAuto)
		}
	}
}

func walk(start Position, dirs []Direction) Position {
	for _, d := range dirs {
		start = start.Step(d)
	}
	return start
}

func TestFindPathStraight(t *testing.T) {
	m := newTestMap(t, 1098)
	floor(m, 0, 0, 9, 9, 7, grass)
	start := Position{X: 1, Y: 1, Z: 7}
	goal := Position{X: 5, Y: 1, Z: 7}
	dirs, res := m.FindPath(start, goal, 0, 0)
	if res != PathOK {
		t.Fatalf("result=%v", res)
	}
	if len(dirs) != 4 {
		t.Fatalf("len=%d, want 4", len(dirs))
	}
	for _, d := range dirs {
		if d != East {
			t.Fatalf("dirs=%v", dirs)
		}
	}
}

func TestFindPathAvoidsWall(t *testing.T) {
	m := newTestMap(t, 1098)
	floor(m, 0, 0, 9, 9, 7, grass)
	for y := 0; y <= 8; y++ {
		m.AddThing(NewItem(table, 0), Position{X: 4, Y: y, Z: 7}, StackAuto)
	}
	start := Position{X: 1, Y: 1, Z: 7}
	goal := Position{X: 7, Y: 1, Z: 7}
	dirs, res := m.FindPath(start, goal, 0, 0)
	if res != PathOK {
		t.Fatalf("result=%v", res)
	}
	if got := walk(start, dirs); got != goal {
		t.Fatalf("path ends at %v, want %v", got, goal)
	}
	pos := start
	for _, d := range dirs {
		pos = pos.Step(d)
		if !m.IsWalkable(pos, false) {
			t.Fatalf("path crosses %v", pos)
		}
	}
}

func TestFindPathPrefersFastGround(t *testing.T) {
	m := newTestMap(t, 1098)
	// A mud strip on the direct row makes the detour cheaper.
	floor(m, 0, 0, 6, 0, 7, grass)
	floor(m, 1, 1, 5, 1, 7, mud)
	floor(m, 0, 1, 0, 1, 7, grass)
	floor(m, 6, 1, 6, 1, 7, grass)
	floor(m, 0, 2, 6, 2, 7, grass)
	start := Position{X: 0, Y: 1, Z: 7}
	goal := Position{X: 6, Y: 1, Z: 7}
	dirs, res := m.FindPath(start, goal, 0, 0)
	if res != PathOK {
		t.Fatalf("result=%v", res)
	}
	pos := start
	for _, d := range dirs {
		pos = pos.Step(d)
		if pos.Y == 1 && pos != goal {
			t.Fatalf("path walks through mud at %v: %v", pos, dirs)
		}
	}
}

func TestFindPathResults(t *testing.T) {
	m := newTestMap(t, 1098)
	floor(m, 0, 0, 4, 4, 7, grass)
	p := Position{X: 1, Y: 1, Z: 7}
	if _, res := m.FindPath(p, p, 0, 0); res != PathSamePosition {
		t.Fatalf("same=%v", res)
	}
	if _, res := m.FindPath(p, Position{X: 1, Y: 1, Z: 6}, 0, 0); res != PathImpossible {
		t.Fatalf("floor change=%v", res)
	}
	if _, res := m.FindPath(p, Position{X: 500, Y: 1, Z: 7}, 0, 0); res != PathTooFar {
		t.Fatalf("far=%v", res)
	}
	if _, res := m.FindPath(p, Position{X: 20, Y: 1, Z: 7}, 0, 0); res != PathImpossible {
		t.Fatalf("unseen goal=%v", res)
	}
	dirs, res := m.FindPath(p, Position{X: 20, Y: 1, Z: 7}, 0, PathAllowNotSeenTiles)
	if res != PathOK || walk(p, dirs) != (Position{X: 20, Y: 1, Z: 7}) {
		t.Fatalf("unseen allowed=%v %v", res, dirs)
	}
	m.AddThing(NewItem(grass, 0), Position{X: 9, Y: 9, Z: 7}, StackAuto)
	if _, res := m.FindPath(p, Position{X: 9, Y: 9, Z: 7}, 0, 0); res != PathNoWay {
		t.Fatalf("island=%v", res)
	}
}

func TestFindPathCreatures(t *testing.T) {
	m := newTestMap(t, 1098)
	floor(m, 0, 0, 2, 0, 7, grass)
	blocker := NewCreature(0x40000001)
	blocker.Unpassable = true
	m.AddThing(blocker, Position{X: 1, Y: 0, Z: 7}, StackAuto)
	start := Position{X: 0, Y: 0, Z: 7}
	goal := Position{X: 2, Y: 0, Z: 7}
	if _, res := m.FindPath(start, goal, 0, 0); res != PathNoWay {
		t.Fatalf("blocked=%v", res)
	}
	if _, res := m.FindPath(start, goal, 0, PathAllowCreatures); res != PathOK {
		t.Fatalf("allow creatures=%v", res)
	}
}
