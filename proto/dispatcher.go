package proto

import (
	"errors"

	"go.uber.org/zap"

	"gotibia/wire"
)

// previewLen is how many unread bytes go into error logs.
const previewLen = 32

// Sink receives decoded events in wire order.
type Sink interface {
	Apply(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Apply(ev Event) { f(ev) }

// OpcodeObserver is told about every opcode before it is decoded. The
// login state machine uses it to notice the first in-game opcode.
type OpcodeObserver interface {
	OnOpcode(op Opcode)
}

// Result summarizes one dispatched message.
type Result struct {
	Opcodes []Opcode
	Err     error
	Left    int
}

// Dispatcher splits game messages into opcodes and feeds the decoded
// events to a Sink. Errors never escape a message: they are logged, the
// rest of the message is dropped and the next message starts clean.
type Dispatcher struct {
	dec      *Decoder
	sink     Sink
	observer OpcodeObserver
	order    wire.Order
	log      *zap.Logger

	sizeCheckDone bool
	prev          Opcode
	seen          bool
}

func NewDispatcher(dec *Decoder, sink Sink, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	return &Dispatcher{dec: dec, sink: sink, log: log}
}

func (d *Dispatcher) SetObserver(o OpcodeObserver) { d.observer = o }
func (d *Dispatcher) SetOrder(o wire.Order)         { d.order = o }
func (d *Dispatcher) Decoder() *Decoder             { return d.dec }

// Reset forgets per-connection state.
func (d *Dispatcher) Reset() {
	d.sizeCheckDone = false
	d.prev = 0
	d.seen = false
}

func (d *Dispatcher) prevField() zap.Field {
	if !d.seen {
		return zap.String("prev", "none")
	}
	return zap.Stringer("prev", d.prev)
}

// checkSize handles the header some protocols put in front of the first
// message of a connection: a padding byte from 1405 on, a declared size
// before that when GameMessageSizeCheck is enabled.
func (d *Dispatcher) checkSize(r *wire.Reader) error {
	if d.sizeCheckDone {
		return nil
	}
	d.sizeCheckDone = true
	if d.dec.version() >= 1405 {
		r.U8()
		return r.Err()
	}
	if !d.dec.on(GameMessageSizeCheck) {
		return nil
	}
	size := int(r.U16())
	if err := r.Err(); err != nil {
		return err
	}
	if size > r.Remaining() {
		d.log.Error("first message size mismatch",
			zap.Int("declared", size), zap.Int("unread", r.Remaining()))
		return ErrMessageSize
	}
	return nil
}

// Dispatch decodes one complete game message.
func (d *Dispatcher) Dispatch(msg []byte) Result {
	r := wire.NewReaderOrder(msg, d.order)
	var res Result
	if err := d.checkSize(r); err != nil {
		res.Err = err
		res.Left = r.Remaining()
		return res
	}
	protocol := d.dec.Caps.ProtocolVersion()
	for r.Remaining() > 0 {
		offset := r.Pos()
		op := Opcode(r.U8())
		if d.observer != nil {
			d.observer.OnOpcode(op)
		}
		fn, ok := lookup(op, protocol)
		if !ok {
			d.log.Warn("unknown opcode",
				zap.Stringer("opcode", op),
				zap.Int("offset", offset),
				zap.Int("unread", r.Remaining()),
				d.prevField(),
				zap.String("next", r.Preview(previewLen)))
			res.Err = &DecodeError{Opcode: op, Offset: offset, Err: errUnknownOpcode}
			r.Rest()
			break
		}
		events, err := fn(d.dec, r)
		for _, ev := range events {
			d.sink.Apply(ev)
		}
		res.Opcodes = append(res.Opcodes, op)
		if err != nil {
			derr := &DecodeError{Opcode: op, Offset: offset, Err: err}
			d.log.Error("decode failed",
				zap.Error(err),
				zap.Stringer("opcode", op),
				zap.Int("offset", offset),
				zap.Int("pos", r.Pos()),
				zap.Int("unread", r.Remaining()),
				d.prevField(),
				zap.String("message", r.PreviewAt(offset, previewLen)))
			res.Err = derr
			r.Rest()
			break
		}
		d.prev = op
		d.seen = true
	}
	res.Left = r.Remaining()
	return res
}

var errUnknownOpcode = errors.New("unknown opcode")

// IsUnknownOpcode reports whether err came from an opcode with no decoder.
func IsUnknownOpcode(err error) bool {
	return errors.Is(err, errUnknownOpcode)
}
