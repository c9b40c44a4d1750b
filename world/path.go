package world

import "container/heap"

// PathFlags relax the walkability rules of FindPath.
type PathFlags uint8

const (
	PathAllowNotSeenTiles PathFlags = 1 << iota
	PathAllowCreatures
	PathAllowNonPathable
	PathAllowNonWalkable
)

type PathResult uint8

const (
	PathOK PathResult = iota
	PathSamePosition
	PathImpossible
	PathTooFar
	PathNoWay
)

func (r PathResult) String() string {
	switch r {
	case PathOK:
		return "ok"
	case PathSamePosition:
		return "same position"
	case PathImpossible:
		return "impossible"
	case PathTooFar:
		return "too far"
	case PathNoWay:
		return "no way"
	}
	return "unknown"
}

const (
	// DefaultPathComplexity bounds the number of expanded nodes.
	DefaultPathComplexity = 10000
	// MaxPathDistance bounds the per-axis distance to the goal.
	MaxPathDistance = 127

	diagonalWalkFactor = 3
)

var pathDirections = [...]Direction{North, East, South, West, NorthEast, SouthEast, SouthWest, NorthWest}

type pathNode struct {
	pos    Position
	dir    Direction
	g      int
	f      int
	index  int
	parent *pathNode
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	return pq[i].g > pq[j].g
}

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pathNode)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// passable applies the path flags to the tile at pos. The goal tile is
// exempt from the creature check so a path can end next to a blocker.
func (m *Map) passable(pos Position, flags PathFlags, goal bool) (speed int, ok bool) {
	t := m.tiles[pos]
	if t == nil {
		if flags&PathAllowNotSeenTiles != 0 {
			return DefaultGroundSpeed, true
		}
		return 0, false
	}
	if flags&PathAllowNonWalkable == 0 && !t.IsWalkable(m.types, goal || flags&PathAllowCreatures != 0) {
		return 0, false
	}
	if flags&PathAllowNonPathable == 0 && !t.IsPathable(m.types) {
		return 0, false
	}
	return t.GroundSpeed(m.types), true
}

// FindPath searches a same-floor route from start to goal and returns the
// steps as directions. Each step costs the destination ground speed,
// tripled for diagonals. maxComplexity <= 0 selects
// DefaultPathComplexity.
func (m *Map) FindPath(start, goal Position, maxComplexity int, flags PathFlags) ([]Direction, PathResult) {
	if start == goal {
		return nil, PathSamePosition
	}
	if start.Z != goal.Z {
		return nil, PathImpossible
	}
	if abs(start.X-goal.X) > MaxPathDistance || abs(start.Y-goal.Y) > MaxPathDistance {
		return nil, PathTooFar
	}
	if _, ok := m.passable(goal, flags, true); !ok {
		return nil, PathImpossible
	}
	if maxComplexity <= 0 {
		maxComplexity = DefaultPathComplexity
	}

	open := &pathQueue{}
	heap.Init(open)
	heap.Push(open, &pathNode{pos: start, dir: InvalidDirection, f: start.ManhattanDistance(goal)})
	gScore := map[Position]int{start: 0}
	closed := make(map[Position]struct{})

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)
		if _, seen := closed[current.pos]; seen {
			continue
		}
		closed[current.pos] = struct{}{}
		if current.pos == goal {
			return reconstructDirections(current), PathOK
		}
		if len(closed) > maxComplexity {
			return nil, PathTooFar
		}

		for _, d := range pathDirections {
			next := current.pos.Step(d)
			if _, seen := closed[next]; seen {
				continue
			}
			speed, ok := m.passable(next, flags, next == goal)
			if !ok {
				continue
			}
			factor := 1
			if d.IsDiagonal() {
				factor = diagonalWalkFactor
			}
			tentativeG := current.g + speed*factor
			if prev, ok := gScore[next]; ok && tentativeG >= prev {
				continue
			}
			gScore[next] = tentativeG
			heap.Push(open, &pathNode{
				pos:    next,
				dir:    d,
				g:      tentativeG,
				f:      tentativeG + next.ManhattanDistance(goal),
				parent: current,
			})
		}
	}
	return nil, PathNoWay
}

func reconstructDirections(end *pathNode) []Direction {
	var dirs []Direction
	for node := end; node != nil && node.parent != nil; node = node.parent {
		dirs = append(dirs, node.dir)
	}
	for i := 0; i < len(dirs)/2; i++ {
		j := len(dirs) - 1 - i
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}
	return dirs
}
