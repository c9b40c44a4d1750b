package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"gotibia/proto"
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

// topOpcodes is how many opcodes the summary line lists.
const topOpcodes = 5

// sessionStats counts the traffic of one connection or replay. A nil
// *sessionStats ignores every update.
type sessionStats struct {
	mu    sync.Mutex
	name  string
	start time.Time

	framesIn     int
	framesOut    int
	bytesIn      uint64
	bytesOut     uint64
	messages     int
	frameErrors  int
	decodeErrors int
	unread       int
	opcodes      map[proto.Opcode]int
	lastErr      string
}

type opcodeCount struct {
	Opcode string `json:"opcode"`
	Count  int    `json:"count"`
}

// statsView is the JSON form served on /status and written on exit.
type statsView struct {
	Name         string        `json:"name"`
	Uptime       string        `json:"uptime"`
	FramesIn     int           `json:"framesIn"`
	FramesOut    int           `json:"framesOut"`
	BytesIn      uint64        `json:"bytesIn"`
	BytesOut     uint64        `json:"bytesOut"`
	Messages     int           `json:"messages"`
	FrameErrors  int           `json:"frameErrors"`
	DecodeErrors int           `json:"decodeErrors"`
	UnreadBytes  int           `json:"unreadBytes"`
	LastError    string        `json:"lastError,omitempty"`
	Opcodes      []opcodeCount `json:"opcodes"`
}

func newSessionStats(name string) *sessionStats {
	return &sessionStats{name: name, start: time.Now(), opcodes: make(map[proto.Opcode]int)}
}

func (s *sessionStats) received(n int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.framesIn++
	s.bytesIn += uint64(n)
	s.mu.Unlock()
}

func (s *sessionStats) sent(n int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.framesOut++
	s.bytesOut += uint64(n)
	s.mu.Unlock()
}

func (s *sessionStats) frameError(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.frameErrors++
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *sessionStats) dispatched(res proto.Result) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages++
	for _, op := range res.Opcodes {
		s.opcodes[op]++
	}
	if res.Err != nil {
		s.decodeErrors++
		s.unread += res.Left
		s.lastErr = res.Err.Error()
	}
}

func (s *sessionStats) view() statsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := statsView{
		Name:         s.name,
		Uptime:       durafmt.Parse(time.Since(s.start)).LimitFirstN(2).Format(shortUnits),
		FramesIn:     s.framesIn,
		FramesOut:    s.framesOut,
		BytesIn:      s.bytesIn,
		BytesOut:     s.bytesOut,
		Messages:     s.messages,
		FrameErrors:  s.frameErrors,
		DecodeErrors: s.decodeErrors,
		UnreadBytes:  s.unread,
		LastError:    s.lastErr,
	}
	for op, n := range s.opcodes {
		v.Opcodes = append(v.Opcodes, opcodeCount{Opcode: op.Name(), Count: n})
	}
	sort.Slice(v.Opcodes, func(i, j int) bool {
		if v.Opcodes[i].Count != v.Opcodes[j].Count {
			return v.Opcodes[i].Count > v.Opcodes[j].Count
		}
		return v.Opcodes[i].Opcode < v.Opcodes[j].Opcode
	})
	return v
}

// summary is the one-line form logged periodically and on exit.
func (s *sessionStats) summary() string {
	v := s.view()
	var top []string
	for i, oc := range v.Opcodes {
		if i == topOpcodes {
			break
		}
		top = append(top, fmt.Sprintf("%s=%s", oc.Opcode, humanize.Comma(int64(oc.Count))))
	}
	return fmt.Sprintf("%s: up %s, %s messages, %s in, %s out, %d frame errors, %d decode errors (%s unread) [%s]",
		v.Name, v.Uptime, humanize.Comma(int64(v.Messages)),
		humanize.Bytes(v.BytesIn), humanize.Bytes(v.BytesOut),
		v.FrameErrors, v.DecodeErrors, humanize.Bytes(uint64(v.UnreadBytes)),
		strings.Join(top, " "))
}

// logStatsLoop logs the summary every interval until ctx ends, then once
// more.
func logStatsLoop(ctx context.Context, s *sessionStats, interval time.Duration) {
	defer logInfo("%s", s.summary())
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logInfo("%s", s.summary())
		}
	}
}

// saveStats writes the JSON view next to the logs.
func saveStats(s *sessionStats) {
	data, err := json.MarshalIndent(s.view(), "", "  ")
	if err != nil {
		logError("save stats: %v", err)
		return
	}
	name := strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(s.name)
	path := filepath.Join(logDir, fmt.Sprintf("stats-%s.json", name))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logError("save stats: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logError("save stats: %v", err)
	}
}
