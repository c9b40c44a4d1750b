package game

import (
	"time"

	"gotibia/proto"
	"gotibia/world"
)

const DefaultChatLines = 200

type ChatLine struct {
	Time    time.Time         `json:"time"`
	Mode    proto.MessageMode `json:"mode"`
	Name    string            `json:"name,omitempty"`
	Level   uint16            `json:"level,omitempty"`
	Channel uint32            `json:"channel,omitempty"`
	Pos     *world.Position   `json:"pos,omitempty"`
	Text    string            `json:"text"`
}

// chatLog keeps the newest lines in a fixed ring.
type chatLog struct {
	lines []ChatLine
	next  int
	full  bool
}

func newChatLog(n int) *chatLog {
	if n < 1 {
		n = DefaultChatLines
	}
	return &chatLog{lines: make([]ChatLine, n)}
}

func (l *chatLog) add(line ChatLine) {
	l.lines[l.next] = line
	l.next++
	if l.next == len(l.lines) {
		l.next = 0
		l.full = true
	}
}

// recent returns up to n lines, oldest first.
func (l *chatLog) recent(n int) []ChatLine {
	size := l.next
	if l.full {
		size = len(l.lines)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]ChatLine, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if l.full {
			idx = (l.next + i) % len(l.lines)
		}
		out = append(out, l.lines[idx])
	}
	return out
}

func talkLine(now time.Time, ev proto.Talk) ChatLine {
	line := ChatLine{Time: now, Mode: ev.Mode, Name: ev.Name, Level: ev.Level, Channel: ev.Channel, Text: ev.Text}
	if ev.HasPos {
		p := ev.Pos
		line.Pos = &p
	}
	return line
}

func messageLine(now time.Time, ev proto.TextMessage) ChatLine {
	line := ChatLine{Time: now, Mode: ev.Mode, Channel: uint32(ev.Channel), Text: ev.Text}
	if ev.HasPos {
		p := ev.Pos
		line.Pos = &p
	}
	return line
}
