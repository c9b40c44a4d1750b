package game

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"gotibia/motion"
	"gotibia/proto"
	"gotibia/world"
)

const (
	grass    = 100
	torch    = 200
	playerID = 0x10000001
	ratID    = 0x40000001
)

var (
	epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	start = world.Position{X: 100, Y: 100, Z: 7}
	east  = world.Position{X: 101, Y: 100, Z: 7}
)

type sentLog struct {
	payloads [][]byte
}

func (s *sentLog) Send(p []byte) error {
	s.payloads = append(s.payloads, append([]byte(nil), p...))
	return nil
}

func (s *sentLog) count(op proto.Opcode) int {
	n := 0
	for _, p := range s.payloads {
		if len(p) > 0 && proto.Opcode(p[0]) == op {
			n++
		}
	}
	return n
}

type fixture struct {
	g     *Game
	clock *motion.ManualClock
	sent  *sentLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := motion.NewManualClock(epoch)
	sent := &sentLog{}
	types := world.NewStaticTypes(
		world.ItemType{ID: grass, Ground: true, GroundSpeed: 150},
		world.ItemType{ID: torch, Light: world.Light{Intensity: 3, Color: 206}},
	)
	g := New(Config{
		Caps:  proto.NewVersionTable(860),
		Types: types,
		Clock: clock,
		Send:  sent,
		Log:   zaptest.NewLogger(t),
	})
	return &fixture{g: g, clock: clock, sent: sent}
}

func creatureDesc(id uint32, name string, speed uint16) *proto.CreatureDesc {
	return &proto.CreatureDesc{
		Marker:    proto.CreatureUnknown,
		ID:        id,
		Type:      world.TypeFromID(id),
		Name:      name,
		Health:    100,
		Direction: world.South,
		Speed:     speed,
	}
}

// enter logs in and sends a 3x3 map with the player in the middle and a
// rat to the west.
func (f *fixture) enter() {
	f.g.Apply(proto.LoginSucceeded{PlayerID: playerID, ServerBeat: 50})
	md := proto.MapDescription{Kind: proto.MapFull, Center: start}
	for x := 99; x <= 101; x++ {
		for y := 99; y <= 101; y++ {
			pos := world.Position{X: x, Y: y, Z: 7}
			td := proto.TileDescription{Pos: pos, Things: []proto.Thing{&proto.ItemDesc{ID: grass}}}
			switch pos {
			case start:
				td.Things = append(td.Things, creatureDesc(playerID, "Knight", 220))
			case start.Translated(-1, 0, 0):
				td.Things = append(td.Things, creatureDesc(ratID, "Rat", 100))
			}
			md.Tiles = append(md.Tiles, td)
		}
	}
	f.g.Apply(md)
}

func TestLoginInstallsStepLaw(t *testing.T) {
	f := newFixture(t)
	f.g.Apply(proto.LoginSucceeded{PlayerID: playerID, ServerBeat: 100, SpeedA: 857.36, SpeedB: 261.29, SpeedC: -4795.01})
	law := f.g.Predictor().Law()
	if law.ServerBeat != 100 || law.A != 857.36 || law.C != -4795.01 {
		t.Fatalf("law=%+v", law)
	}
	if law.Rev() != 1 {
		t.Fatalf("rev=%d, want 1", law.Rev())
	}
	if f.g.Map().LocalPlayerID() != playerID || !f.g.LoggedIn() {
		t.Fatalf("local=%#x logged=%v", f.g.Map().LocalPlayerID(), f.g.LoggedIn())
	}
}

func TestMapPlacesCreatures(t *testing.T) {
	f := newFixture(t)
	f.enter()
	if got := f.g.Map().TileCount(); got != 9 {
		t.Fatalf("tiles=%d, want 9", got)
	}
	v, ok := f.g.Tile(start)
	if !ok || len(v.Things) != 2 {
		t.Fatalf("tile=%+v ok=%v", v, ok)
	}
	if v.Things[0].Kind != "item" || v.Things[1].Kind != "creature" || v.Things[1].Name != "Knight" {
		t.Fatalf("things=%+v", v.Things)
	}
	if f.g.Map().Center() != start || !f.g.Map().Known() {
		t.Fatalf("center=%v known=%v", f.g.Map().Center(), f.g.Map().Known())
	}
	if got := f.g.Controller().ServerPosition(); got != start {
		t.Fatalf("server position=%v, want %v", got, start)
	}
}

func TestCreatureMoveStartsWalk(t *testing.T) {
	f := newFixture(t)
	f.enter()
	west := start.Translated(-1, 0, 0)
	southWest := start.Translated(-1, 1, 0)
	f.g.Apply(proto.CreatureMoved{Ref: proto.ThingRef{Pos: west, StackPos: 1}, To: southWest})
	rat := f.g.Map().CreatureByID(ratID)
	if rat == nil || rat.Tile() == nil || rat.Tile().Position() != southWest {
		t.Fatalf("rat not moved: %+v", rat)
	}
	if !rat.Walk.Walking || rat.Walk.Dir != world.South {
		t.Fatalf("walking=%v dir=%v", rat.Walk.Walking, rat.Walk.Dir)
	}
	if v, _ := f.g.Tile(west); len(v.Things) != 1 {
		t.Fatalf("old tile still holds %+v", v.Things)
	}
	if f.g.Stats().MissingRefs != 0 {
		t.Fatalf("missing refs=%d", f.g.Stats().MissingRefs)
	}
}

func TestTeleportStopsWalk(t *testing.T) {
	f := newFixture(t)
	f.enter()
	far := world.Position{X: 150, Y: 150, Z: 7}
	f.g.Apply(proto.CreatureMoved{Ref: proto.ThingRef{CreatureID: ratID, ByID: true}, To: far})
	rat := f.g.Map().CreatureByID(ratID)
	if rat.Position() != far || rat.Walk.Walking {
		t.Fatalf("pos=%v walking=%v", rat.Position(), rat.Walk.Walking)
	}
}

func TestLocalStepRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.enter()
	if err := f.g.Walk(world.East); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if f.sent.count(proto.ClientWalkEast) != 1 {
		t.Fatalf("sent=%v", f.sent.payloads)
	}
	if got := f.g.Controller().Position(); got != east {
		t.Fatalf("predicted=%v, want %v", got, east)
	}
	if got := f.g.Controller().ServerPosition(); got != start {
		t.Fatalf("server=%v, want %v", got, start)
	}

	f.clock.Advance(80 * time.Millisecond)
	f.g.Apply(proto.CreatureMoved{Ref: proto.ThingRef{Pos: start, StackPos: 1}, To: east})
	if n := f.g.Controller().PendingSteps(); n != 0 {
		t.Fatalf("pending=%d, want 0", n)
	}
	if got := f.g.Controller().ServerPosition(); got != east {
		t.Fatalf("server=%v, want %v", got, east)
	}
	p := f.g.Map().LocalPlayer()
	if !p.Walk.Walking || p.Walk.Start != epoch {
		t.Fatalf("confirmation restarted the step: walking=%v start=%v", p.Walk.Walking, p.Walk.Start)
	}
}

func TestMoveOfUnknownCreatureMakesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.enter()
	const ghost = 0x40000099
	f.g.Apply(proto.CreatureMoved{Ref: proto.ThingRef{CreatureID: ghost, ByID: true}, To: east})
	c := f.g.Map().CreatureByID(ghost)
	if c == nil || !c.Placeholder || c.Removed {
		t.Fatalf("placeholder=%+v", c)
	}
	if c.Tile() == nil || c.Tile().Position() != east {
		t.Fatalf("placeholder not placed")
	}
	if got := f.g.Stats().Placeholders; got != 1 {
		t.Fatalf("placeholders=%d, want 1", got)
	}

	// a full description later fills it in
	f.g.Apply(proto.CreatureSeen{Creature: creatureDesc(ghost, "Ghost", 80)})
	if c.Placeholder || c.Name != "Ghost" {
		t.Fatalf("not filled: %+v", c)
	}
}

func TestMissingReferenceCounted(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.ThingRemoved{Ref: proto.ThingRef{Pos: world.Position{X: 300, Y: 300, Z: 7}, StackPos: 3}})
	if got := f.g.Stats().MissingRefs; got != 1 {
		t.Fatalf("missing=%d, want 1", got)
	}
}

func TestAddAndRemoveThing(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.ThingAdded{Pos: east, StackPos: -1, Thing: &proto.ItemDesc{ID: torch}})
	v, _ := f.g.Tile(east)
	if len(v.Things) != 2 || v.Things[1].ID != torch {
		t.Fatalf("things=%+v", v.Things)
	}
	f.g.Apply(proto.ThingTransformed{
		Ref:   proto.ThingRef{Pos: east, StackPos: 1},
		Thing: &proto.ItemDesc{ID: torch, Subtype: 4},
	})
	v, _ = f.g.Tile(east)
	if v.Things[1].Count != 4 {
		t.Fatalf("transform: %+v", v.Things)
	}
	f.g.Apply(proto.ThingRemoved{Ref: proto.ThingRef{Pos: east, StackPos: 1}})
	v, _ = f.g.Tile(east)
	if len(v.Things) != 1 {
		t.Fatalf("remove: %+v", v.Things)
	}
}

func TestRemovedCreatureStaysIndexed(t *testing.T) {
	f := newFixture(t)
	f.enter()
	west := start.Translated(-1, 0, 0)
	f.g.Apply(proto.ThingRemoved{Ref: proto.ThingRef{Pos: west, StackPos: 1}})
	rat := f.g.Map().CreatureByID(ratID)
	if rat == nil || !rat.Removed || rat.Tile() != nil {
		t.Fatalf("rat=%+v", rat)
	}
	// the id alone brings it back
	f.g.Apply(proto.ThingAdded{Pos: west, StackPos: -1, Thing: &proto.CreatureDesc{Marker: proto.CreatureOutdated, ID: ratID, Speed: 100}})
	if rat.Removed || rat.Tile() == nil || rat.Name != "Rat" {
		t.Fatalf("rat=%+v", rat)
	}
}

func TestEffectExpires(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.MagicEffect{Pos: east, ID: 7})
	if v, _ := f.g.Tile(east); len(v.Effects) != 1 {
		t.Fatalf("effects=%v", v.Effects)
	}
	f.g.Tick(f.clock.Advance(999 * time.Millisecond))
	if v, _ := f.g.Tile(east); len(v.Effects) != 1 {
		t.Fatalf("expired early")
	}
	f.g.Tick(f.clock.Advance(time.Millisecond))
	if v, _ := f.g.Tile(east); len(v.Effects) != 0 {
		t.Fatalf("effects=%v, want none", v.Effects)
	}
}

func TestEffectOnUnknownTileDropped(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.MagicEffect{Pos: world.Position{X: 300, Y: 300, Z: 7}, ID: 7})
	if f.g.Stats().Effects != 0 {
		t.Fatalf("effects=%d", f.g.Stats().Effects)
	}
}

func TestMissileDuration(t *testing.T) {
	diagonal := 2.2360679774997896
	cases := []struct {
		to   world.Position
		want time.Duration
	}{
		{start, 0},
		{start.Translated(1, 0, 0), 150 * time.Millisecond},
		{start.Translated(4, 0, 0), 300 * time.Millisecond},
		{start.Translated(3, 4, 0), time.Duration(150 * float64(time.Millisecond) * diagonal)},
	}
	for _, c := range cases {
		got := MissileDuration(start, c.to)
		if diff := got - c.want; diff < -time.Microsecond || diff > time.Microsecond {
			t.Fatalf("to %v: got %v, want %v", c.to, got, c.want)
		}
	}
}

func TestMissileLandsAndExpires(t *testing.T) {
	f := newFixture(t)
	f.enter()
	to := start.Translated(4, 0, 0)
	f.g.Apply(proto.MissileFired{From: start, To: to, ID: 3})
	if n := len(f.g.Map().Missiles(7)); n != 1 {
		t.Fatalf("missiles=%d", n)
	}
	f.g.Tick(f.clock.Advance(300 * time.Millisecond))
	if n := len(f.g.Map().Missiles(7)); n != 0 {
		t.Fatalf("missiles=%d after flight", n)
	}
}

func TestCancelWalkRollsBack(t *testing.T) {
	f := newFixture(t)
	f.enter()
	if err := f.g.Walk(world.East); err != nil {
		t.Fatalf("walk: %v", err)
	}
	f.g.Apply(proto.CancelWalk{Dir: world.North})
	if got := f.g.Controller().Position(); got != start {
		t.Fatalf("position=%v, want %v", got, start)
	}
	if got := f.g.Map().LocalPlayer().Direction; got != world.North {
		t.Fatalf("direction=%v, want north", got)
	}
	if err := f.g.Walk(world.East); err == nil {
		t.Fatalf("walk allowed while locked")
	}
}

func TestDeathBlocksWalking(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.PlayerStats{Health: 0, MaxHealth: 150})
	if err := f.g.Walk(world.East); err == nil {
		t.Fatalf("dead player walked")
	}
	f.g.Apply(proto.PlayerStats{Health: 150, MaxHealth: 150})
	f.clock.Advance(300 * time.Millisecond)
	if err := f.g.Walk(world.East); err != nil {
		t.Fatalf("walk after revive: %v", err)
	}
}

func TestCreatureAttributes(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.CreatureHealth{ID: ratID, Percent: 40})
	f.g.Apply(proto.CreatureSkull{ID: ratID, Skull: 3})
	f.g.Apply(proto.CreatureMark{ID: ratID, Permanent: true, Mark: 5})
	f.g.Apply(proto.CreatureMark{ID: ratID, Permanent: true, Mark: proto.MarkHidden})
	f.g.Apply(proto.CreatureHealth{ID: 0x40000777, Percent: 1})
	rat := f.g.Map().CreatureByID(ratID)
	if rat.Health != 40 || rat.Skull != 3 || rat.Mark != 0 {
		t.Fatalf("rat=%+v", rat)
	}
	if got := f.g.Stats().MissingRefs; got != 1 {
		t.Fatalf("missing=%d, want 1", got)
	}
}

func TestContainerSlots(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.ContainerOpened{
		ID:       0,
		Item:     &proto.ItemDesc{ID: 1988},
		Name:     "backpack",
		Capacity: 3,
		Items:    []*proto.ItemDesc{{ID: 1}, {ID: 2}},
	})
	f.g.Apply(proto.ContainerItemAdded{ID: 0, Slot: 0, Item: &proto.ItemDesc{ID: 3}})
	f.g.Apply(proto.ContainerItemAdded{ID: 0, Slot: 0, Item: &proto.ItemDesc{ID: 4}})
	got := f.g.Snapshot(0).Player.Containers
	if len(got) != 1 || len(got[0].Items) != 3 {
		t.Fatalf("containers=%+v", got)
	}
	want := []uint16{4, 3, 1}
	for i, id := range want {
		if got[0].Items[i] != id {
			t.Fatalf("items=%v, want %v", got[0].Items, want)
		}
	}
	f.g.Apply(proto.ContainerItemRemoved{ID: 0, Slot: 1})
	f.g.Apply(proto.ContainerItemUpdated{ID: 0, Slot: 0, Item: &proto.ItemDesc{ID: 9}})
	got = f.g.Snapshot(0).Player.Containers
	if len(got[0].Items) != 2 || got[0].Items[0] != 9 || got[0].Items[1] != 1 {
		t.Fatalf("items=%v", got[0].Items)
	}
	f.g.Apply(proto.ContainerClosed{ID: 0})
	if got := f.g.Snapshot(0).Player.Containers; len(got) != 0 {
		t.Fatalf("closed container still listed: %+v", got)
	}
}

func TestChatRing(t *testing.T) {
	l := newChatLog(3)
	for _, s := range []string{"1", "2", "3", "4", "5"} {
		l.add(ChatLine{Text: s})
	}
	cases := []struct {
		n    int
		want []string
	}{
		{0, []string{"3", "4", "5"}},
		{2, []string{"4", "5"}},
		{10, []string{"3", "4", "5"}},
	}
	for _, c := range cases {
		got := l.recent(c.n)
		if len(got) != len(c.want) {
			t.Fatalf("recent(%d)=%v", c.n, got)
		}
		for i := range got {
			if got[i].Text != c.want[i] {
				t.Fatalf("recent(%d)[%d]=%q, want %q", c.n, i, got[i].Text, c.want[i])
			}
		}
	}
}

func TestTalkRecorded(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.Talk{Name: "Rat", Mode: proto.MessageSay, Pos: start, HasPos: true, Text: "squeak"})
	chat := f.g.Snapshot(10).Chat
	if len(chat) != 1 || chat[0].Text != "squeak" || chat[0].Pos == nil || *chat[0].Pos != start {
		t.Fatalf("chat=%+v", chat)
	}
	if !chat[0].Time.Equal(epoch) {
		t.Fatalf("time=%v", chat[0].Time)
	}
}

func TestSayAndAttackSend(t *testing.T) {
	f := newFixture(t)
	f.enter()
	if err := f.g.Say("hi"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if err := f.g.Attack(ratID); err != nil {
		t.Fatalf("attack: %v", err)
	}
	if f.sent.count(proto.ClientTalk) != 1 || f.sent.count(proto.ClientAttack) != 1 {
		t.Fatalf("sent=%v", f.sent.payloads)
	}
	f.g.Apply(proto.ClearTarget{})
	if f.g.player.Target != 0 {
		t.Fatalf("target not cleared")
	}
}

func TestNoSender(t *testing.T) {
	g := New(Config{Caps: proto.NewVersionTable(860), Types: world.NewStaticTypes(), Log: zaptest.NewLogger(t)})
	if err := g.Say("hi"); err != ErrNoSender {
		t.Fatalf("err=%v, want ErrNoSender", err)
	}
}

func TestReloginDropsCreatures(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.LoginSucceeded{PlayerID: playerID + 1, ServerBeat: 50})
	if n := len(f.g.Map().Creatures()); n != 0 {
		t.Fatalf("creatures=%d after relogin", n)
	}
	if f.g.Map().LocalPlayer() != nil {
		t.Fatalf("old player kept")
	}
}

func TestReloginDropsOldPlayerTimers(t *testing.T) {
	f := newFixture(t)
	f.enter()
	if err := f.g.Walk(world.East); err != nil {
		t.Fatalf("walk: %v", err)
	}
	f.g.Apply(proto.CancelWalk{Dir: world.North})
	if f.g.sched.Len() == 0 {
		t.Fatalf("no timers pending after a refused step")
	}
	f.g.Apply(proto.LoginSucceeded{PlayerID: playerID + 1, ServerBeat: 50})
	for _, slot := range []motion.Slot{motion.SlotWalkLock, motion.SlotPreWalkTimeout, motion.SlotWalkUpdate} {
		if f.g.sched.Pending(motion.Key{ID: playerID, Slot: slot}) {
			t.Fatalf("%v timer of the previous player still pending", slot)
		}
	}
}

func TestSnapshotViews(t *testing.T) {
	f := newFixture(t)
	f.enter()
	f.g.Apply(proto.WorldLight{Light: world.Light{Intensity: 250, Color: 215}})
	s := f.g.Snapshot(5)
	if !s.LoggedIn || s.Center != start || s.Light.Intensity != 250 {
		t.Fatalf("snapshot=%+v", s)
	}
	if len(s.Creatures) != 2 || s.Creatures[0].ID != playerID || s.Creatures[1].Name != "Rat" {
		t.Fatalf("creatures=%+v", s.Creatures)
	}
	if s.Player.ID != playerID || s.Player.Pos != start {
		t.Fatalf("player=%+v", s.Player)
	}
	cv, ok := f.g.Creature(ratID)
	if !ok || cv.Type != world.TypeFromID(ratID).String() {
		t.Fatalf("creature view=%+v", cv)
	}
}
