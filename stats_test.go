package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gotibia/proto"
)

func TestSessionStatsCounts(t *testing.T) {
	s := newSessionStats("counts")
	s.received(10)
	s.received(20)
	s.sent(7)
	s.frameError(errors.New("bad checksum"))
	s.dispatched(proto.Result{Opcodes: []proto.Opcode{proto.ServerPing, proto.ServerTalk, proto.ServerPing}})
	s.dispatched(proto.Result{Opcodes: []proto.Opcode{proto.ServerTalk}, Err: errors.New("short read"), Left: 5})

	v := s.view()
	if v.FramesIn != 2 || v.BytesIn != 30 || v.FramesOut != 1 || v.BytesOut != 7 {
		t.Fatalf("traffic %+v", v)
	}
	if v.Messages != 2 || v.FrameErrors != 1 || v.DecodeErrors != 1 || v.UnreadBytes != 5 {
		t.Fatalf("errors %+v", v)
	}
	if v.LastError != "short read" {
		t.Fatalf("lastError %q", v.LastError)
	}
	if len(v.Opcodes) != 2 || v.Opcodes[0].Count != 2 || v.Opcodes[1].Count != 2 {
		t.Fatalf("opcodes %+v", v.Opcodes)
	}
	if v.Opcodes[0].Opcode > v.Opcodes[1].Opcode {
		t.Fatalf("ties not sorted by name: %+v", v.Opcodes)
	}
	if sum := s.summary(); !strings.Contains(sum, "counts:") || !strings.Contains(sum, "30 B in") {
		t.Fatalf("summary %q", sum)
	}
}

func TestSessionStatsNil(t *testing.T) {
	var s *sessionStats
	s.received(1)
	s.sent(1)
	s.frameError(errors.New("x"))
	s.dispatched(proto.Result{})
}

func TestSaveStats(t *testing.T) {
	s := newSessionStats("host:7172/x")
	s.received(3)
	saveStats(s)
	data, err := os.ReadFile(filepath.Join(logDir, "stats-host_7172_x.json"))
	if err != nil {
		t.Fatalf("read stats: %v", err)
	}
	var v statsView
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatal(err)
	}
	if v.FramesIn != 1 || v.BytesIn != 3 {
		t.Fatalf("saved %+v", v)
	}
}

func TestLogStatsLoop(t *testing.T) {
	logs := observeLogs(t)
	s := newSessionStats("loop")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		logStatsLoop(ctx, s, 10*time.Millisecond)
		close(done)
	}()
	waitFor(t, "periodic summary", func() bool { return logs.FilterMessageSnippet("loop:").Len() >= 2 })
	cancel()
	<-done
	if n := logs.FilterMessageSnippet("loop:").Len(); n < 3 {
		t.Fatalf("summaries=%d, want at least 3", n)
	}
}
