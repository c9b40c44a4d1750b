package proto

import (
	"fmt"

	"gotibia/wire"
)

func (d *Decoder) mode(r *wire.Reader) (MessageMode, error) {
	b := r.U8()
	if err := r.Err(); err != nil {
		return MessageInvalid, err
	}
	return d.Modes.FromServer(b)
}

func decodeTalk(d *Decoder, r *wire.Reader) ([]Event, error) {
	var ev Talk
	if d.on(GameMessageStatements) {
		ev.Statement = r.U32()
	}
	ev.Name = r.String()
	if ev.Statement > 0 && d.version() >= 1281 {
		r.U8()
	}
	if d.on(GameMessageLevel) {
		ev.Level = r.U16()
	}
	mode, err := d.mode(r)
	if err != nil {
		return nil, err
	}
	ev.Mode = mode
	switch mode {
	case MessagePotion, MessageSay, MessageWhisper, MessageYell,
		MessageMonsterSay, MessageMonsterYell, MessageNpcTo,
		MessageBarkLow, MessageBarkLoud, MessageSpell, MessageNpcFromStartBlock:
		ev.Pos = d.position(r)
		ev.HasPos = true
	case MessageChannel, MessageChannelManagement, MessageChannelHighlight, MessageGamemasterChannel:
		ev.Channel = uint32(r.U16())
	case MessageNpcFrom, MessagePrivateTo, MessagePrivateFrom, MessageGamemasterBroadcast,
		MessageGamemasterPrivateFrom, MessageRVRAnswer, MessageRVRContinue:
	case MessageRVRChannel:
		ev.Channel = r.U32()
	default:
		return nil, fmt.Errorf("talk: unexpected mode %s", mode)
	}
	ev.Text = r.String()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeTextMessage(d *Decoder, r *wire.Reader) ([]Event, error) {
	mode, err := d.mode(r)
	if err != nil {
		return nil, err
	}
	ev := TextMessage{Mode: mode}
	switch mode {
	case MessageChannelManagement, MessageGuild, MessagePartyManagement, MessageParty:
		ev.Channel = r.U16()
		ev.Text = r.String()
	case MessageDamageDealed, MessageDamageReceived, MessageDamageOthers:
		ev.Pos = d.position(r)
		ev.HasPos = true
		for i := 0; i < 2; i++ {
			ev.Values = append(ev.Values, uint64(r.U32()))
			ev.Colors = append(ev.Colors, r.U8())
		}
		ev.Text = r.String()
	case MessageHeal, MessageMana, MessageHealOthers:
		ev.Pos = d.position(r)
		ev.HasPos = true
		ev.Values = []uint64{uint64(r.U32())}
		ev.Colors = []uint8{r.U8()}
		ev.Text = r.String()
	case MessageExp, MessageExpOthers:
		ev.Pos = d.position(r)
		ev.HasPos = true
		if d.version() >= 1332 {
			ev.Values = []uint64{r.U64()}
		} else {
			ev.Values = []uint64{uint64(r.U32())}
		}
		ev.Colors = []uint8{r.U8()}
		ev.Text = r.String()
	default:
		if r.Remaining() > 0 {
			ev.Text = r.String()
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

// decodeScreenshot reads the optional hint either as a length-prefixed
// string or, for servers that send it that way, NUL terminated.
func decodeScreenshot(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := Screenshot{Type: r.U8()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	avail := r.Remaining()
	switch {
	case avail == 0:
	case avail >= 2 && int(r.Peek16()) <= avail-2 && r.Peek16() <= 0x7fff:
		ev.Hint = r.String()
	default:
		var raw []byte
		for r.Remaining() > 0 {
			c := r.U8()
			if c == 0 {
				break
			}
			raw = append(raw, c)
		}
		ev.Hint = wire.DecodeLatin1(raw)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}
