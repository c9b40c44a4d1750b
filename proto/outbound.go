package proto

import (
	"errors"
	"fmt"

	"gotibia/wire"
	"gotibia/world"
)

// MaxAutoWalkSteps is the most steps one auto-walk packet can carry.
const MaxAutoWalkSteps = 127

var ErrNoServerMode = errors.New("message mode has no server byte")

// Outbound builds client messages. The result is a bare game message; the
// transport frames it.
type Outbound struct {
	Caps  Capabilities
	Modes *ModeTable
	Order wire.Order
}

func NewOutbound(caps Capabilities, order wire.Order) *Outbound {
	return &Outbound{Caps: caps, Modes: NewModeTable(caps.ProtocolVersion()), Order: order}
}

func (o *Outbound) msg(op Opcode) *wire.Writer {
	return wire.NewWriterOrder(o.Order).U8(uint8(op))
}

func (o *Outbound) position(w *wire.Writer, p world.Position) {
	w.U16(uint16(p.X)).U16(uint16(p.Y)).U8(uint8(p.Z))
}

func (o *Outbound) EnterGame() []byte { return o.msg(ClientEnterGame).Bytes() }
func (o *Outbound) LeaveGame() []byte { return o.msg(ClientLeaveGame).Bytes() }
func (o *Outbound) Ping() []byte      { return o.msg(ClientPing).Bytes() }
func (o *Outbound) PingBack() []byte  { return o.msg(ClientPingBack).Bytes() }
func (o *Outbound) Stop() []byte      { return o.msg(ClientStop).Bytes() }

var walkOpcodes = [...]Opcode{
	world.North:     ClientWalkNorth,
	world.East:      ClientWalkEast,
	world.South:     ClientWalkSouth,
	world.West:      ClientWalkWest,
	world.NorthEast: ClientWalkNorthEast,
	world.SouthEast: ClientWalkSouthEast,
	world.SouthWest: ClientWalkSouthWest,
	world.NorthWest: ClientWalkNorthWest,
}

// Walk is the single-step packet for dir.
func (o *Outbound) Walk(dir world.Direction) ([]byte, error) {
	if dir < 0 || int(dir) >= len(walkOpcodes) {
		return nil, fmt.Errorf("walk: invalid direction %d", dir)
	}
	return o.msg(walkOpcodes[dir]).Bytes(), nil
}

var turnOpcodes = [...]Opcode{
	world.North: ClientTurnNorth,
	world.East:  ClientTurnEast,
	world.South: ClientTurnSouth,
	world.West:  ClientTurnWest,
}

// Turn only accepts the four cardinal directions.
func (o *Outbound) Turn(dir world.Direction) ([]byte, error) {
	if dir < 0 || int(dir) >= len(turnOpcodes) {
		return nil, fmt.Errorf("turn: invalid direction %s", dir)
	}
	return o.msg(turnOpcodes[dir]).Bytes(), nil
}

// autoWalkDir is the auto-walk path encoding: counter-clockwise from east.
var autoWalkDir = [...]uint8{
	world.North:     3,
	world.East:      1,
	world.South:     7,
	world.West:      5,
	world.NorthEast: 2,
	world.SouthEast: 8,
	world.SouthWest: 6,
	world.NorthWest: 4,
}

// AutoWalk encodes a path. Paths longer than MaxAutoWalkSteps are cut.
func (o *Outbound) AutoWalk(path []world.Direction) ([]byte, error) {
	if len(path) > MaxAutoWalkSteps {
		path = path[:MaxAutoWalkSteps]
	}
	w := o.msg(ClientAutoWalk).U8(uint8(len(path)))
	for _, d := range path {
		if d < 0 || int(d) >= len(autoWalkDir) {
			return nil, fmt.Errorf("auto walk: invalid direction %d", d)
		}
		w.U8(autoWalkDir[d])
	}
	return w.Bytes(), nil
}

// Talk encodes a chat line. receiver is used by private modes, channel by
// channel modes.
func (o *Outbound) Talk(mode MessageMode, channel uint16, receiver, text string) ([]byte, error) {
	b, ok := o.Modes.ToServer(mode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoServerMode, mode)
	}
	w := o.msg(ClientTalk).U8(b)
	switch mode {
	case MessagePrivateTo, MessageGamemasterPrivateTo, MessageRVRAnswer:
		w.String(receiver)
	case MessageChannel, MessageChannelHighlight:
		w.U16(channel)
	}
	w.String(text)
	return w.Bytes(), nil
}

func (o *Outbound) Look(pos world.Position, thingID uint16, stackPos int) []byte {
	w := o.msg(ClientLook)
	o.position(w, pos)
	return w.U16(thingID).U8(uint8(stackPos)).Bytes()
}

func (o *Outbound) Use(pos world.Position, itemID uint16, stackPos int, index uint8) []byte {
	w := o.msg(ClientUseItem)
	o.position(w, pos)
	return w.U16(itemID).U8(uint8(stackPos)).U8(index).Bytes()
}

func (o *Outbound) UseWith(from world.Position, itemID uint16, fromStack int, to world.Position, toID uint16, toStack int) []byte {
	w := o.msg(ClientUseItemWith)
	o.position(w, from)
	w.U16(itemID).U8(uint8(fromStack))
	o.position(w, to)
	return w.U16(toID).U8(uint8(toStack)).Bytes()
}

func (o *Outbound) UseOnCreature(pos world.Position, itemID uint16, stackPos int, creatureID uint32) []byte {
	w := o.msg(ClientUseOnCreature)
	o.position(w, pos)
	return w.U16(itemID).U8(uint8(stackPos)).U32(creatureID).Bytes()
}

func (o *Outbound) Move(from world.Position, thingID uint16, stackPos int, to world.Position, count uint8) []byte {
	w := o.msg(ClientMove)
	o.position(w, from)
	w.U16(thingID).U8(uint8(stackPos))
	o.position(w, to)
	return w.U8(count).Bytes()
}

// Attack targets a creature; id 0 clears the target. seq is only sent on
// protocols with attack sequence numbers.
func (o *Outbound) Attack(id, seq uint32) []byte {
	return o.target(ClientAttack, id, seq)
}

func (o *Outbound) Follow(id, seq uint32) []byte {
	return o.target(ClientFollow, id, seq)
}

func (o *Outbound) target(op Opcode, id, seq uint32) []byte {
	w := o.msg(op).U32(id)
	if o.Caps.Enabled(GameAttackSeq) {
		w.U32(seq)
	}
	return w.Bytes()
}

func (o *Outbound) CancelAttack() []byte { return o.msg(ClientCancelAttack).Bytes() }
