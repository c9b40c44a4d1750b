package typefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gotibia/wire"
	"gotibia/world"
)

func TestParseItems(t *testing.T) {
	items := []world.ItemType{
		{ID: 100, Name: "grass", Ground: true, GroundSpeed: 150},
		{ID: 2148, Name: "gold coin", Stackable: true},
		{ID: 1987, Name: "bag", Container: true, Elevation: 8},
		{ID: 2050, Name: "torch", Light: world.Light{Intensity: 3, Color: 206}, Phases: 2},
		{ID: 1112, NotWalkable: true, FullGround: true, Width: 2, Height: 2},
	}
	tab, err := Parse(Encode(860, items, map[uint16]int{128: 3}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tab.Version != 860 {
		t.Fatalf("version=%d, want 860", tab.Version)
	}
	for _, want := range items {
		got := tab.Types.ItemType(want.ID)
		if got == nil {
			t.Fatalf("item %d missing", want.ID)
		}
		if *got != want {
			t.Fatalf("item %d=%+v, want %+v", want.ID, *got, want)
		}
	}
	if n := tab.Types.CreaturePhases(128); n != 3 {
		t.Fatalf("phases=%d, want 3", n)
	}
	if !tab.Types.ItemType(2148).HasSubtype() {
		t.Fatalf("stackable item without subtype")
	}
	if p := tab.Types.ItemType(100).StackPriority(); p != world.PriorityGround {
		t.Fatalf("priority=%d, want ground", p)
	}
}

func TestParseErrors(t *testing.T) {
	good := Encode(1, []world.ItemType{{ID: 1}}, nil)
	cases := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{0xff, 0xff, 0}},
		{"bad magic", append([]byte{0x12, 0x34}, good[2:]...)},
		{"short table", good[:headerSize+4]},
		{"entry out of range", good[:len(good)-2]},
		{"short item", Build([]Entry{{Type: TypeItem, ID: 7, Data: []byte{0, 0, 0}}})},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Parse(c.data); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestShortItemIsShortRead(t *testing.T) {
	_, err := Parse(Build([]Entry{{Type: TypeItem, ID: 7, Data: []byte{0, 0, 0, 1, 0}}}))
	if !errors.Is(err, wire.ErrShortRead) {
		t.Fatalf("err=%v, want short read", err)
	}
}

func TestUnknownRecordsSkipped(t *testing.T) {
	data := Build([]Entry{
		{Type: 0x736e6420, ID: 1, Data: []byte{1, 2, 3}},
		{Type: TypeItem, ID: 5, Data: encodeItem(world.ItemType{OnTop: true})},
	})
	tab, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if it := tab.Types.ItemType(5); it == nil || !it.OnTop || it.ID != 5 {
		t.Fatalf("item=%+v", it)
	}
}

func TestMergeOverridesBase(t *testing.T) {
	base := Encode(1, []world.ItemType{{ID: 1, GroundSpeed: 100, Ground: true}, {ID: 2}}, nil)
	patch := Encode(2, []world.ItemType{{ID: 1, GroundSpeed: 200, Ground: true}, {ID: 3, OnBottom: true}}, nil)
	merged, err := Merge(base, patch)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	entries, err := parse(merged)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries=%d, want 4", len(entries))
	}
	// base order first, then the new patch record
	wantIDs := []uint32{0, 1, 2, 3}
	for i, e := range entries {
		if e.ID != wantIDs[i] {
			t.Fatalf("entry %d id=%d, want %d", i, e.ID, wantIDs[i])
		}
	}
	tab, err := Parse(merged)
	if err != nil {
		t.Fatalf("parse merged: %v", err)
	}
	if tab.Version != 2 || tab.Types.ItemType(1).GroundSpeed != 200 || tab.Types.ItemType(3) == nil {
		t.Fatalf("version=%d item1=%+v", tab.Version, tab.Types.ItemType(1))
	}
}

func TestMergeBadInput(t *testing.T) {
	good := Encode(1, nil, nil)
	if _, err := Merge([]byte{1}, good); err == nil {
		t.Fatalf("bad base accepted")
	}
	if _, err := Merge(good, []byte{1}); err == nil {
		t.Fatalf("bad patch accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.dat")
	if err := os.WriteFile(path, Encode(1, []world.ItemType{{ID: 9, Name: "Pfütze", Splash: true}}, nil), 0644); err != nil {
		t.Fatal(err)
	}
	tab, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if it := tab.Types.ItemType(9); it == nil || it.Name != "Pfütze" {
		t.Fatalf("item=%+v", it)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v, want not exist", err)
	}
}
