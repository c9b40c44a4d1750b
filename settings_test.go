package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gotibia/proto"
	"gotibia/wire"
)

// withSettings points the settings file at a temp dir and restores the
// globals afterwards.
func withSettings(t *testing.T) string {
	t.Helper()
	oldPath, oldGS := settingsPath, gs
	settingsPath = filepath.Join(t.TempDir(), "settings.json")
	t.Cleanup(func() {
		settingsPath = oldPath
		gs = oldGS
	})
	return settingsPath
}

func TestLoadSettingsMissingFile(t *testing.T) {
	withSettings(t)
	gs.Host = "elsewhere:1"
	if loadSettings() {
		t.Fatal("loadSettings reported success without a file")
	}
	if gs.Host != gsdef.Host {
		t.Fatalf("Host=%q, want default %q", gs.Host, gsdef.Host)
	}
}

func TestSettingsRoundTripClampsBadValues(t *testing.T) {
	withSettings(t)
	gs = gsdef
	gs.Host = "game.example:7171"
	gs.ClientVersion = 1098
	gs.TickMS = 5000
	gs.ChatLines = -3
	gs.AwareLeft = 0
	gs.Features = map[string]bool{string(proto.GameAttackSeq): false}
	gs.ContentRevision = 0x4a2
	saveSettings()

	gs = gsdef
	if !loadSettings() {
		t.Fatal("loadSettings failed")
	}
	if gs.Host != "game.example:7171" || gs.ClientVersion != 1098 {
		t.Fatalf("loaded host=%q version=%d", gs.Host, gs.ClientVersion)
	}
	if gs.TickMS != gsdef.TickMS {
		t.Fatalf("TickMS=%d, want %d", gs.TickMS, gsdef.TickMS)
	}
	if gs.ChatLines != gsdef.ChatLines {
		t.Fatalf("ChatLines=%d, want %d", gs.ChatLines, gsdef.ChatLines)
	}
	if got := gs.aware(); got != gsdef.aware() {
		t.Fatalf("aware=%+v, want %+v", got, gsdef.aware())
	}
	if cred := gs.credentials("acc", "pw", "Knight"); cred.ContentRevision != 0x4a2 || cred.Character != "Knight" {
		t.Fatalf("credentials %+v", cred)
	}
	if newCaps().Enabled(proto.GameAttackSeq) {
		t.Fatal("GameAttackSeq override not applied")
	}
}

func TestLoadSettingsVersionMismatch(t *testing.T) {
	path := withSettings(t)
	if err := os.WriteFile(path, []byte(`{"Version": 99, "Host": "x:1"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if loadSettings() {
		t.Fatal("loadSettings accepted a foreign version")
	}
	if gs.Host != gsdef.Host {
		t.Fatalf("Host=%q, want default", gs.Host)
	}
}

func TestParseXTEAKey(t *testing.T) {
	k, err := parseXTEAKey("0100000002000000030000000400000a")
	if err != nil {
		t.Fatalf("parseXTEAKey: %v", err)
	}
	if want := (wire.XTEAKey{1, 2, 3, 0x0a000004}); k != want {
		t.Fatalf("key=%08x, want %08x", k, want)
	}
	for _, bad := range []string{"", "0102", "zz000000000000000000000000000000"} {
		if _, err := parseXTEAKey(bad); !errors.Is(err, errBadKey) {
			t.Fatalf("parseXTEAKey(%q) err=%v, want errBadKey", bad, err)
		}
	}
}

func TestFallbackAddress(t *testing.T) {
	withSettings(t)
	tests := []struct {
		fallback, addr, want string
		ok                   bool
	}{
		{"", "a:1", "", false},
		{"b", "a:7172", "b:7172", true},
		{"b:9", "a:7172", "b:9", true},
		{"a:1", "a:1", "a:1", false},
	}
	for _, tt := range tests {
		gs.FallbackHost = tt.fallback
		got, ok := fallbackAddress(tt.addr)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Fatalf("fallbackAddress(%q) with %q = %q,%v, want %q,%v", tt.addr, tt.fallback, got, ok, tt.want, tt.ok)
		}
	}
}
