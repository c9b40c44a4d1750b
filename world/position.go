// Package world mirrors the server's view of the map around the player:
// tiles with ordered entity stacks, the known-creature index, per-floor
// missiles and the occlusion queries used to decide which floors matter.
package world

import "fmt"

const (
	SeaFloor                   = 7
	UndergroundFloor           = SeaFloor + 1
	AwareUndergroundFloorRange = 2
	MaxZ                       = 15

	// TilePixels is the edge length of one tile in sprite pixels.
	TilePixels = 32
)

// Position is an absolute map coordinate. Z is the floor, 0 the highest.
type Position struct {
	X, Y, Z int
}

// InvalidPosition is the sentinel the protocol uses for "nowhere".
var InvalidPosition = Position{X: 0xffff, Y: 0xffff, Z: 0xff}

func (p Position) Valid() bool {
	return p != InvalidPosition && p.X >= 0 && p.Y >= 0 && p.Z >= 0 && p.Z <= MaxZ
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

func (p Position) Translated(dx, dy, dz int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// Step returns the neighbour in direction d.
func (p Position) Step(d Direction) Position {
	dx, dy := d.Delta()
	return p.Translated(dx, dy, 0)
}

// StepBack returns the neighbour opposite to direction d.
func (p Position) StepBack(d Direction) Position {
	dx, dy := d.Delta()
	return p.Translated(-dx, -dy, 0)
}

// CoveredUp moves n floors up along the view diagonal. It reports false,
// leaving p unchanged, when that would leave the map.
func (p *Position) CoveredUp(n int) bool {
	if p.Z-n < 0 {
		return false
	}
	p.X += n
	p.Y += n
	p.Z -= n
	return true
}

func (p *Position) CoveredDown(n int) bool {
	if p.Z+n > MaxZ {
		return false
	}
	p.X -= n
	p.Y -= n
	p.Z += n
	return true
}

// InRange reports whether o lies within rx/ry tiles of p on the same floor.
func (p Position) InRange(o Position, rx, ry int) bool {
	if p.Z != o.Z {
		return false
	}
	return abs(p.X-o.X) <= rx && abs(p.Y-o.Y) <= ry
}

// IsAdjacent reports whether o is one of the eight neighbours of p.
func (p Position) IsAdjacent(o Position) bool {
	return p != o && p.InRange(o, 1, 1)
}

func (p Position) ManhattanDistance(o Position) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

// DirectionTo derives the eight-way direction of the step p→o from the
// sign of the delta. Equal positions yield InvalidDirection.
func (p Position) DirectionTo(o Position) Direction {
	dx := sign(o.X - p.X)
	dy := sign(o.Y - p.Y)
	switch {
	case dx == 0 && dy < 0:
		return North
	case dx > 0 && dy == 0:
		return East
	case dx == 0 && dy > 0:
		return South
	case dx < 0 && dy == 0:
		return West
	case dx > 0 && dy < 0:
		return NorthEast
	case dx > 0 && dy > 0:
		return SouthEast
	case dx < 0 && dy > 0:
		return SouthWest
	case dx < 0 && dy < 0:
		return NorthWest
	}
	return InvalidDirection
}

// Direction follows the client numbering: the four cardinals first, then
// the diagonals clockwise from north-east.
type Direction int8

const (
	North Direction = iota
	East
	South
	West
	NorthEast
	SouthEast
	SouthWest
	NorthWest

	InvalidDirection Direction = -1
)

var directionNames = [...]string{"North", "East", "South", "West", "NorthEast", "SouthEast", "SouthWest", "NorthWest"}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return "Invalid"
	}
	return directionNames[d]
}

func (d Direction) Valid() bool { return d >= North && d <= NorthWest }

func (d Direction) IsDiagonal() bool { return d >= NorthEast && d <= NorthWest }

// Delta is the unit step of d.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	case NorthEast:
		return 1, -1
	case SouthEast:
		return 1, 1
	case SouthWest:
		return -1, 1
	case NorthWest:
		return -1, -1
	}
	return 0, 0
}

// Facing maps a diagonal to the cardinal a sprite turns to. Cardinals are
// returned unchanged.
func (d Direction) Facing() Direction {
	switch d {
	case NorthEast, SouthEast:
		return East
	case NorthWest, SouthWest:
		return West
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
