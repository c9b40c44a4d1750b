// Package game ties the protocol to the world: it consumes decoded events
// and keeps the map, the creature animations and the local player in
// step with the server.
package game

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"gotibia/localactor"
	"gotibia/motion"
	"gotibia/proto"
	"gotibia/wire"
	"gotibia/world"
)

const (
	DefaultEffectDuration = time.Second
	AnimatedTextDuration  = time.Second
	// missileTileTime scales with the square root of the flight length.
	missileTileTime = 150 * time.Millisecond
)

type Config struct {
	Caps  proto.Capabilities
	Types world.ThingTypes
	Clock motion.Clock
	Send  proto.Sender
	Order wire.Order
	Aware world.AwareRange
	// KeepUnawareTiles keeps tiles that scroll out of view.
	KeepUnawareTiles bool
	EffectDuration   time.Duration
	ChatLines        int
	Log              *zap.Logger

	// Path overrides the auto-walk path search.
	Path             localactor.Pathfinder
	OnAutoWalkFailed func(dest world.Position, res world.PathResult)
}

// Stats counts recoveries from references the client could not resolve.
type Stats struct {
	Events       int
	Placeholders int
	MissingRefs  int
	Effects      int
}

// Game is one client session's view of the world. Every exported method
// takes the session lock, so the debug endpoints may read it while the
// network goroutine applies events.
type Game struct {
	mu sync.Mutex

	cfg   Config
	log   *zap.Logger
	clock motion.Clock
	m     *world.Map
	sched *motion.Scheduler
	law   *motion.StepLaw
	pred  *motion.Predictor
	ctl   *localactor.Controller
	out   *proto.Outbound

	player     *Player
	local      *world.Creature
	containers map[uint8]*Container
	chat       *chatLog
	stats      Stats
	effectSeq  uint32
	attackSeq  uint32

	lastPlayerPos world.Position
	loggedIn      bool
}

func New(cfg Config) *Game {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = motion.RealClock{}
	}
	if cfg.EffectDuration <= 0 {
		cfg.EffectDuration = DefaultEffectDuration
	}
	g := &Game{
		cfg:        cfg,
		log:        cfg.Log,
		clock:      cfg.Clock,
		player:     newPlayer(),
		containers: make(map[uint8]*Container),
		chat:       newChatLog(cfg.ChatLines),
	}
	g.m = world.NewMap(cfg.Types, world.Options{
		Version:          cfg.Caps.ProtocolVersion(),
		Aware:            cfg.Aware,
		KeepUnawareTiles: cfg.KeepUnawareTiles,
		Log:              cfg.Log.Named("map"),
	})
	g.sched = motion.NewScheduler(cfg.Clock)
	g.law = &motion.StepLaw{Version: cfg.Caps.ProtocolVersion()}
	g.pred = motion.NewPredictor(g.m, g.sched, g.law, cfg.Log.Named("motion"))
	g.pred.EnhancedAnimations = cfg.Caps.Enabled(proto.GameEnhancedAnimations)
	g.out = proto.NewOutbound(cfg.Caps, cfg.Order)
	g.ctl = localactor.NewController(g.m, g.pred, localactor.Options{
		Caps:             cfg.Caps,
		Out:              g.out,
		Send:             cfg.Send,
		Path:             cfg.Path,
		Log:              cfg.Log.Named("player"),
		OnAutoWalkFailed: cfg.OnAutoWalkFailed,
	})
	g.m.Subscribe(walkObserver{g: g})
	return g
}

// walkObserver forwards the end of the local player's steps.
type walkObserver struct {
	world.NopObserver
	g *Game
}

func (w walkObserver) OnWalkTerminated(c *world.Creature) {
	if c == w.g.local {
		w.g.ctl.OnWalkTerminated()
	}
}

func (g *Game) now() time.Time { return g.clock.Now() }

// Map, Predictor and Controller expose the components for callers that
// already hold the lock through Do.
func (g *Game) Map() *world.Map                    { return g.m }
func (g *Game) Predictor() *motion.Predictor       { return g.pred }
func (g *Game) Controller() *localactor.Controller { return g.ctl }
func (g *Game) Outbound() *proto.Outbound          { return g.out }

// Do runs fn with the session lock held.
func (g *Game) Do(fn func(g *Game)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *Game) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// LoggedIn reports whether the server accepted the character.
func (g *Game) LoggedIn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loggedIn
}

// Apply implements proto.Sink.
func (g *Game) Apply(ev proto.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.Events++
	g.apply(ev)
}

func (g *Game) apply(ev proto.Event) {
	now := g.now()
	switch ev := ev.(type) {
	case proto.MapDescription:
		g.applyMap(ev)
	case proto.TileUpdate:
		g.applyTile(ev.Tile)
	case proto.ThingAdded:
		g.addThing(ev)
	case proto.ThingTransformed:
		g.transformThing(ev)
	case proto.ThingRemoved:
		g.removeThing(ev)
	case proto.CreatureMoved:
		g.moveCreature(ev)
	case proto.CreatureSeen:
		g.creature(ev.Creature)

	case proto.CreatureHealth:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Health = ev.Percent
		}
	case proto.CreatureLight:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Light = ev.Light
		}
	case proto.CreatureOutfit:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Outfit = ev.Outfit
		}
	case proto.CreatureSpeed:
		if c := g.knownCreature(ev.ID); c != nil {
			if ev.BaseSpeed != 0 {
				c.BaseSpeed = int(ev.BaseSpeed)
			}
			g.pred.SetSpeed(c, int(ev.Speed), now)
		}
	case proto.CreatureSkull:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Skull = ev.Skull
		}
	case proto.CreatureShield:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Shield = ev.Shield
		}
	case proto.CreatureUnpass:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Unpassable = ev.Unpass
		}
	case proto.CreatureMark:
		if c := g.knownCreature(ev.ID); c != nil {
			mark := ev.Mark
			if mark == proto.MarkHidden {
				mark = 0
			}
			if ev.Permanent {
				c.Mark = mark
			} else {
				c.TypeMark = mark
			}
		}
	case proto.CreatureType:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Type = ev.Type
		}
	case proto.CreatureIcons:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Icon = 0
			if len(ev.Icons) > 0 {
				c.Icon = ev.Icons[0].Icon
			}
		}
	case proto.CreatureVocation:
		if c := g.knownCreature(ev.ID); c != nil {
			c.Vocation = ev.Vocation
		}

	case proto.WorldLight:
		g.m.SetLight(ev.Light)
	case proto.MagicEffect:
		g.addEffect(ev.Pos, ev.ID)
	case proto.RemoveMagicEffect:
		g.removeEffect(ev.Pos, ev.ID)
	case proto.AnimatedTextShown:
		g.addAnimatedText(ev)
	case proto.MissileFired:
		g.addMissile(ev)

	case proto.PlayerStats:
		g.player.Stats = ev
		g.ctl.SetHealth(int(ev.Health), now)
		g.player.Dead = ev.Health == 0
	case proto.PlayerSkills:
		g.player.applySkills(ev)
	case proto.PlayerState:
		g.player.States = ev.States
	case proto.InventorySet:
		g.player.Inventory[ev.Slot] = g.item(ev.Item)
	case proto.InventoryCleared:
		delete(g.player.Inventory, ev.Slot)
	case proto.ContainerOpened:
		g.openContainer(ev)
	case proto.ContainerClosed:
		delete(g.containers, ev.ID)
	case proto.ContainerItemAdded:
		if c := g.containers[ev.ID]; c != nil {
			c.add(ev.Slot, g.item(ev.Item))
		}
	case proto.ContainerItemUpdated:
		if c := g.containers[ev.ID]; c == nil || !c.update(ev.Slot, g.item(ev.Item)) {
			g.log.Debug("container update out of range", zap.Uint8("container", ev.ID), zap.Uint16("slot", ev.Slot))
		}
	case proto.ContainerItemRemoved:
		if c := g.containers[ev.ID]; c == nil || !c.remove(ev.Slot, g.item(ev.Last)) {
			g.log.Debug("container remove out of range", zap.Uint8("container", ev.ID), zap.Uint16("slot", ev.Slot))
		}

	case proto.Talk:
		g.chat.add(talkLine(now, ev))
	case proto.TextMessage:
		g.chat.add(messageLine(now, ev))
	case proto.Death:
		g.player.Dead = true
		g.ctl.SetHealth(0, now)
	case proto.ClearTarget:
		g.player.Target = 0
	case proto.CancelWalk:
		g.ctl.CancelWalk(ev.Dir, now)
	case proto.WalkWait:
		g.ctl.LockWalk(now, time.Duration(ev.Millis)*time.Millisecond)

	case proto.LoginSucceeded:
		g.login(ev)
	case proto.EnterGame:
		g.loggedIn = true
	case proto.LoginFailed:
		g.loggedIn = false
	case proto.PingBackReceived:
		g.ctl.PingAnswered(now)
	}
}

func (g *Game) knownCreature(id uint32) *world.Creature {
	c := g.lookupCreature(id)
	if c == nil {
		g.log.Debug("update for unknown creature", zap.Uint32("id", id))
		g.stats.MissingRefs++
	}
	return c
}

// login installs the player id and the server's step law. Anything left
// from a previous character is dropped.
func (g *Game) login(ev proto.LoginSucceeded) {
	g.m.CleanDynamicThings()
	g.local = nil
	g.lastPlayerPos = world.Position{}
	g.player = newPlayer()
	g.player.ID = ev.PlayerID
	g.containers = make(map[uint8]*Container)
	if old := g.m.LocalPlayerID(); old != 0 {
		g.sched.CancelAll(old)
	}
	g.m.SetLocalPlayerID(ev.PlayerID)
	g.law.SetServer(int(ev.ServerBeat), ev.SpeedA, ev.SpeedB, ev.SpeedC)
	g.ctl.Reset()
	g.loggedIn = true
	g.log.Info("logged in",
		zap.Uint32("player", ev.PlayerID),
		zap.Uint16("beat", ev.ServerBeat),
		zap.Float64("speedA", ev.SpeedA), zap.Float64("speedB", ev.SpeedB), zap.Float64("speedC", ev.SpeedC))
}

func (g *Game) openContainer(ev proto.ContainerOpened) {
	c := &Container{
		ID:         ev.ID,
		Item:       g.item(ev.Item),
		Name:       ev.Name,
		Capacity:   int(ev.Capacity),
		HasParent:  ev.HasParent,
		Unlocked:   ev.Unlocked,
		Paginated:  ev.Paginated,
		Size:       int(ev.Size),
		FirstIndex: int(ev.FirstIndex),
	}
	for _, it := range ev.Items {
		c.Items = append(c.Items, g.item(it))
	}
	g.containers[ev.ID] = c
}

// expire runs fn once d has passed. Each call gets its own timer.
func (g *Game) expire(d time.Duration, fn func()) {
	g.effectSeq++
	g.sched.Schedule(motion.Key{ID: g.effectSeq, Slot: motion.SlotEffectExpiry}, d, func(time.Time) { fn() })
}

func (g *Game) addEffect(pos world.Position, id uint16) {
	e := world.NewEffect(id)
	e.Expires = g.now().Add(g.cfg.EffectDuration)
	g.m.AddThing(e, pos, world.StackAuto)
	if e.Tile() == nil {
		return
	}
	g.stats.Effects++
	g.expire(g.cfg.EffectDuration, func() { g.m.RemoveThing(e) })
}

func (g *Game) removeEffect(pos world.Position, id uint16) {
	t := g.m.Tile(pos)
	if t == nil {
		return
	}
	for _, e := range t.Effects() {
		if e.ID == id {
			g.m.RemoveThing(e)
			return
		}
	}
}

func (g *Game) addAnimatedText(ev proto.AnimatedTextShown) {
	txt := world.NewAnimatedText(ev.Text, ev.Color)
	g.m.AddAnimatedText(txt, ev.Pos)
	g.expire(AnimatedTextDuration, func() { g.m.RemoveAnimatedText(txt) })
}

// MissileDuration is how long a missile flies between two positions.
func MissileDuration(from, to world.Position) time.Duration {
	dx, dy := float64(to.X-from.X), float64(to.Y-from.Y)
	return time.Duration(float64(missileTileTime) * math.Sqrt(math.Hypot(dx, dy)))
}

func (g *Game) addMissile(ev proto.MissileFired) {
	ms := world.NewMissile(ev.ID, ev.From, ev.To)
	g.m.AddThing(ms, ev.From, world.StackAuto)
	g.expire(max(MissileDuration(ev.From, ev.To), time.Millisecond), func() { g.m.RemoveThing(ms) })
}

// Tick advances timers and walk animations to now.
func (g *Game) Tick(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	ran := g.sched.RunDue(now)
	for _, c := range g.m.Creatures() {
		if c.Walk.Walking {
			g.pred.Sample(c, now)
		}
	}
	return ran
}
