package world

// TileOp names the kind of change reported to observers.
type TileOp uint8

const (
	TileAdd TileOp = iota + 1
	TileRemove
	TileClean
	TileUpdate
)

func (o TileOp) String() string {
	switch o {
	case TileAdd:
		return "add"
	case TileRemove:
		return "remove"
	case TileClean:
		return "clean"
	case TileUpdate:
		return "update"
	}
	return "unknown"
}

// Observer receives world changes. Renderers, minimaps and the debug
// status page subscribe through Map.Subscribe. Callbacks run on the
// goroutine that mutates the map and must not block.
type Observer interface {
	OnTileChanged(pos Position, e Entity, op TileOp)
	OnCreatureMoved(c *Creature, from, to Position)
	OnWalkTerminated(c *Creature)
	OnCenterChanged(center, old Position)
	OnLightChanged(l Light)
}

// NopObserver implements Observer with empty methods; embed it to handle
// only some callbacks.
type NopObserver struct{}

func (NopObserver) OnTileChanged(Position, Entity, TileOp)        {}
func (NopObserver) OnCreatureMoved(*Creature, Position, Position) {}
func (NopObserver) OnWalkTerminated(*Creature)                    {}
func (NopObserver) OnCenterChanged(Position, Position)            {}
func (NopObserver) OnLightChanged(Light)                          {}
