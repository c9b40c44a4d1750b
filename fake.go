package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/Pallinder/go-randomdata"

	"gotibia/proto"
	"gotibia/wire"
	"gotibia/world"
)

const (
	fakeGroundID = 100
	fakeRockID   = 101
	fakeTorchID  = 102

	fakePlayerID = 0x10000001
	fakeNPCBase  = 0x40000001
	fakeNPCs     = 4
	fakeLeash    = 4

	fakePlayerLook = 128
	fakeNPCLook    = 21
	fakeBeat       = 50

	fakeTick        = 250 * time.Millisecond
	fakeChatEvery   = 7 * time.Second
	fakeAttackEvery = 2 * time.Second
	fakePingEvery   = 10 * time.Second
)

// fakeKey is the session key fake mode hands the login, so the fake
// server can encrypt its replies.
var fakeKey = wire.XTEAKey{0x9e3779b9, 0x7f4a7c15, 0xf39cc060, 0x5cedc834}

func fakeKeySource() (wire.XTEAKey, error) { return fakeKey, nil }

// fakeVersion clamps v to the protocols the fake server can speak.
func fakeVersion(v int) int {
	if v < 841 || v >= 910 {
		return 860
	}
	return v
}

func fakeItemTypes() *world.StaticTypes {
	return world.NewStaticTypes(
		world.ItemType{ID: fakeGroundID, Name: "grass", Ground: true, GroundSpeed: 150},
		world.ItemType{ID: fakeRockID, Name: "rock", OnBottom: true, NotWalkable: true, NotPathable: true},
		world.ItemType{ID: fakeTorchID, Name: "torch", Light: world.Light{Intensity: 6, Color: 206}},
	)
}

func fakeHash(p world.Position) uint32 {
	return uint32(p.X)*73856093 ^ uint32(p.Y)*19349663
}

func fakeRock(p world.Position) bool {
	return p.Z == world.SeaFloor && fakeHash(p)%11 == 0
}

func fakeTorch(p world.Position) bool {
	return p.Z == world.SeaFloor && !fakeRock(p) && fakeHash(p)%37 == 5
}

type fakeCreature struct {
	id     uint32
	name   string
	pos    world.Position
	home   world.Position
	dir    world.Direction
	speed  uint16
	look   uint16
	health uint8
	next   time.Time
}

// fakeServer speaks the server side of the game protocol over an
// in-memory frameConn. It serves a flat grass world with a few wandering
// creatures, answers walks, turns, talk, attacks and pings, and encrypts
// with fakeKey once the login arrives.
type fakeServer struct {
	caps   proto.Capabilities
	order  wire.Order
	modes  *proto.ModeTable
	aware  world.AwareRange
	framer wire.Framer
	rng    *rand.Rand

	mu         sync.Mutex
	queue      [][]byte
	wake       chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	sizeHeader bool
	inGame     bool
	statement  uint32
	player     *fakeCreature
	npcs       []*fakeCreature
	known      map[uint32]bool
	autoPath   []world.Direction
	nextAuto   time.Time
	target     uint32
	nextAttack time.Time
	nextChat   time.Time
	nextPing   time.Time
}

func newFakeServer(caps proto.Capabilities, order wire.Order, aware world.AwareRange, seed int64) *fakeServer {
	s := &fakeServer{
		caps:       caps,
		order:      order,
		modes:      proto.NewModeTable(caps.ProtocolVersion()),
		aware:      aware,
		rng:        rand.New(rand.NewSource(seed)),
		wake:       make(chan struct{}, 1),
		closed:     make(chan struct{}),
		sizeHeader: caps.Enabled(proto.GameMessageSizeCheck),
		known:      make(map[uint32]bool),
	}
	s.framer.Order = order
	s.framer.Checksum = caps.Enabled(proto.GameProtocolChecksum)
	randomdata.CustomRand(rand.New(rand.NewSource(seed)))

	names := map[string]bool{}
	uniqueName := func() string {
		for {
			name := randomdata.SillyName()
			if !names[name] {
				names[name] = true
				return name
			}
		}
	}
	start := s.findFree(world.Position{X: 100, Y: 100, Z: world.SeaFloor})
	s.player = &fakeCreature{
		id: fakePlayerID, name: uniqueName(), pos: start, home: start,
		dir: world.South, speed: 220, look: fakePlayerLook, health: 100,
	}
	offsets := [][2]int{{-3, -2}, {4, 1}, {-2, 3}, {3, -3}}
	for i := 0; i < fakeNPCs; i++ {
		o := offsets[i%len(offsets)]
		p := s.findFree(start.Translated(o[0], o[1], 0))
		s.npcs = append(s.npcs, &fakeCreature{
			id: fakeNPCBase + uint32(i), name: uniqueName(), pos: p, home: p,
			dir: world.South, speed: uint16(100 + s.rng.Intn(120)), look: fakeNPCLook, health: 100,
		})
	}
	if caps.Enabled(proto.GameChallengeOnLogin) {
		s.push(s.msg(proto.ServerChallenge).U32(uint32(time.Now().Unix())).U8(uint8(s.rng.Intn(256))))
	}
	return s
}

func (s *fakeServer) creatureAt(p world.Position) *fakeCreature {
	if s.player != nil && s.player.pos == p {
		return s.player
	}
	for _, c := range s.npcs {
		if c.pos == p {
			return c
		}
	}
	return nil
}

func (s *fakeServer) walkable(p world.Position) bool {
	return p.Z == world.SeaFloor && !fakeRock(p) && s.creatureAt(p) == nil
}

// findFree returns the walkable tile closest to p, searching outwards.
func (s *fakeServer) findFree(p world.Position) world.Position {
	for r := 0; r < 8; r++ {
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				q := p.Translated(dx, dy, 0)
				if s.walkable(q) {
					return q
				}
			}
		}
	}
	return p
}

func (s *fakeServer) canSee(p world.Position) bool {
	c := s.player.pos
	return p.Z == c.Z &&
		p.X >= c.X-s.aware.Left && p.X <= c.X+s.aware.Right &&
		p.Y >= c.Y-s.aware.Top && p.Y <= c.Y+s.aware.Bottom
}

func (s *fakeServer) msg(op proto.Opcode) *wire.Writer {
	return wire.NewWriterOrder(s.order).U8(uint8(op))
}

// push frames a server message and queues it for ReadFrame. The first
// message of the connection carries its size when the protocol checks it.
func (s *fakeServer) push(w *wire.Writer) {
	payload := w.Bytes()
	if s.sizeHeader {
		s.sizeHeader = false
		payload = wire.NewWriterOrder(s.order).U16(uint16(len(payload))).Raw(payload).Bytes()
	}
	frame, err := s.framer.Encode(payload)
	if err != nil {
		logError("fake server: %v", err)
		return
	}
	s.queue = append(s.queue, frame)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *fakeServer) ReadFrame() ([]byte, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			f := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return f[2:], nil
		}
		s.mu.Unlock()
		select {
		case <-s.wake:
		case <-s.closed:
			return nil, io.EOF
		}
	}
}

func (s *fakeServer) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeServer) RemoteAddr() string { return "fake" }

func (s *fakeServer) position(w *wire.Writer, p world.Position) {
	w.U16(uint16(p.X)).U16(uint16(p.Y)).U8(uint8(p.Z))
}

func (s *fakeServer) outfit(w *wire.Writer, look uint16) {
	if s.caps.Enabled(proto.GameLooktypeU16) {
		w.U16(look)
	} else {
		w.U8(uint8(look))
	}
	w.U8(78).U8(69).U8(58).U8(76)
	if s.caps.Enabled(proto.GamePlayerAddons) {
		w.U8(0)
	}
	if s.caps.Enabled(proto.GamePlayerMounts) {
		w.U16(0)
	}
}

// creature writes a creature thing: the full descriptor the first time
// the client sees it, the short known form afterwards.
func (s *fakeServer) creature(w *wire.Writer, c *fakeCreature) {
	unknown := !s.known[c.id]
	if unknown {
		s.known[c.id] = true
		w.U16(0x61).U32(0).U32(c.id).String(c.name)
	} else {
		w.U16(0x62).U32(c.id)
	}
	w.U8(c.health).U8(uint8(c.dir))
	s.outfit(w, c.look)
	w.U8(0).U8(0)
	w.U16(c.speed)
	w.U8(0).U8(0)
	if unknown && s.caps.Enabled(proto.GameCreatureEmblems) {
		w.U8(0)
	}
	if s.caps.Enabled(proto.GameCreatureUnpass) {
		w.U8(1)
	}
}

func (s *fakeServer) hasThings(p world.Position) bool {
	return p.Z == world.SeaFloor
}

// tile writes the things of p in stack order.
func (s *fakeServer) tile(w *wire.Writer, p world.Position) {
	w.U16(fakeGroundID)
	if fakeRock(p) {
		w.U16(fakeRockID)
	}
	if c := s.creatureAt(p); c != nil {
		s.creature(w, c)
	}
	if fakeTorch(p) {
		w.U16(fakeTorchID)
	}
}

func fakeFloors(z int) (start, end, step int) {
	if z > world.SeaFloor {
		return max(0, z-world.AwareUndergroundFloorRange), min(world.MaxZ, z+world.AwareUndergroundFloorRange), 1
	}
	return world.SeaFloor, 0, -1
}

// area writes every visible floor of a w×h block, run-length encoding the
// empty tiles the way the client expects.
func (s *fakeServer) area(out *wire.Writer, x, y, z, w, h int) {
	start, end, step := fakeFloors(z)
	skip := -1
	for nz := start; nz != end+step; nz += step {
		offset := z - nz
		for nx := 0; nx < w; nx++ {
			for ny := 0; ny < h; ny++ {
				p := world.Position{X: x + nx + offset, Y: y + ny + offset, Z: nz}
				if !s.hasThings(p) {
					skip++
					if skip == 0xff {
						out.U16(0xffff)
						skip = -1
					}
					continue
				}
				if skip >= 0 {
					out.U16(0xff00 | uint16(skip))
				}
				skip = 0
				s.tile(out, p)
			}
		}
	}
	if skip >= 0 {
		out.U16(0xff00 | uint16(skip))
	}
}

func (s *fakeServer) fullMap(w *wire.Writer) {
	c := s.player.pos
	w.U8(uint8(proto.ServerFullMap))
	s.position(w, c)
	s.area(w, c.X-s.aware.Left, c.Y-s.aware.Top, c.Z, s.aware.Width(), s.aware.Height())
}

// row writes the strip of map that comes into view when center moves one
// tile in the row's direction, and moves center.
func (s *fakeServer) row(w *wire.Writer, op proto.Opcode, center *world.Position) {
	a := s.aware
	p := *center
	w.U8(uint8(op))
	switch op {
	case proto.ServerMapTopRow:
		p.Y--
		s.area(w, p.X-a.Left, p.Y-a.Top, p.Z, a.Width(), 1)
	case proto.ServerMapRightRow:
		p.X++
		s.area(w, p.X+a.Right, p.Y-a.Top, p.Z, 1, a.Height())
	case proto.ServerMapBottomRow:
		p.Y++
		s.area(w, p.X-a.Left, p.Y+a.Bottom, p.Z, a.Width(), 1)
	case proto.ServerMapLeftRow:
		p.X--
		s.area(w, p.X-a.Left, p.Y-a.Top, p.Z, 1, a.Height())
	}
	*center = p
}

var fakeRows = map[world.Direction][]proto.Opcode{
	world.North:     {proto.ServerMapTopRow},
	world.East:      {proto.ServerMapRightRow},
	world.South:     {proto.ServerMapBottomRow},
	world.West:      {proto.ServerMapLeftRow},
	world.NorthEast: {proto.ServerMapTopRow, proto.ServerMapRightRow},
	world.SouthEast: {proto.ServerMapBottomRow, proto.ServerMapRightRow},
	world.SouthWest: {proto.ServerMapBottomRow, proto.ServerMapLeftRow},
	world.NorthWest: {proto.ServerMapTopRow, proto.ServerMapLeftRow},
}

func (s *fakeServer) talk(c *fakeCreature, mode proto.MessageMode, text string) {
	b, ok := s.modes.ToServer(mode)
	if !ok {
		return
	}
	w := s.msg(proto.ServerTalk)
	if s.caps.Enabled(proto.GameMessageStatements) {
		s.statement++
		w.U32(s.statement)
	}
	w.String(c.name)
	if s.caps.Enabled(proto.GameMessageLevel) {
		w.U16(uint16(8 + c.id%40))
	}
	w.U8(b)
	s.position(w, c.pos)
	w.String(text)
	s.push(w)
}

func (s *fakeServer) textMessage(mode proto.MessageMode, text string) {
	b, ok := s.modes.ToServer(mode)
	if !ok {
		return
	}
	s.push(s.msg(proto.ServerTextMessage).U8(b).String(text))
}

// login answers the login packet: install the session key, accept the
// character and describe the world around it.
func (s *fakeServer) login() {
	if err := s.framer.SetKey(fakeKey); err != nil {
		logError("fake server: %v", err)
		return
	}
	s.inGame = true
	s.known = make(map[uint32]bool)
	s.autoPath = nil
	s.target = 0
	now := time.Now()
	s.nextChat = now.Add(fakeChatEvery)
	s.nextPing = now.Add(fakePingEvery)

	w := s.msg(proto.ServerLoginOrPending).U32(s.player.id).U16(fakeBeat)
	if s.caps.Enabled(proto.GameNewSpeedLaw) {
		w.Double(857.36, 3).Double(261.29, 3).Double(-4795.01, 3)
	}
	if !s.caps.Enabled(proto.GameDynamicBugReporter) {
		w.Bool(false)
	}
	s.push(w)

	w = wire.NewWriterOrder(s.order)
	s.fullMap(w)
	w.U8(uint8(proto.ServerWorldLight)).U8(250).U8(215)
	s.push(w)
	s.textMessage(proto.MessageLogin, fmt.Sprintf("Welcome, %s.", s.player.name))
}

// moveCreature tells the client about c stepping from one tile to the
// next, as a move, an appearance or a disappearance depending on what the
// player can see.
func (s *fakeServer) moveCreature(c *fakeCreature, from, to world.Position) {
	fromVis, toVis := s.canSee(from), s.canSee(to)
	switch {
	case fromVis && toVis:
		w := s.msg(proto.ServerMoveCreature)
		s.position(w, from)
		w.U8(1)
		s.position(w, to)
		s.push(w)
	case fromVis:
		w := s.msg(proto.ServerRemoveThing)
		s.position(w, from)
		w.U8(1)
		s.push(w)
	case toVis:
		w := s.msg(proto.ServerAddThing)
		s.position(w, to)
		if s.caps.Enabled(proto.GameTileAddThingWithStackpos) {
			w.U8(1)
		}
		s.creature(w, c)
		s.push(w)
	}
}

func (s *fakeServer) cancelWalk() {
	s.push(s.msg(proto.ServerCancelWalk).U8(uint8(s.player.dir)))
}

// walkPlayer moves the player one step and sends the move together with
// the map rows that scroll into view.
func (s *fakeServer) walkPlayer(dir world.Direction) bool {
	from := s.player.pos
	to := from.Step(dir)
	if !s.walkable(to) {
		s.cancelWalk()
		return false
	}
	s.player.pos = to
	s.player.dir = from.DirectionTo(to)
	w := s.msg(proto.ServerMoveCreature)
	s.position(w, from)
	w.U8(1)
	s.position(w, to)
	center := from
	for _, op := range fakeRows[dir] {
		s.row(w, op, &center)
	}
	s.push(w)
	return true
}

func (s *fakeServer) turnPlayer(dir world.Direction) {
	s.player.dir = dir
	w := s.msg(proto.ServerTransformThing)
	s.position(w, s.player.pos)
	w.U8(1).U16(0x63).U32(s.player.id).U8(uint8(dir))
	if s.caps.Enabled(proto.GameCreatureUnpassOnTurn) {
		w.U8(1)
	}
	s.push(w)
}

// autoWalkDirs maps the auto-walk byte encoding back to directions.
var autoWalkDirs = map[uint8]world.Direction{
	1: world.East, 2: world.NorthEast, 3: world.North, 4: world.NorthWest,
	5: world.West, 6: world.SouthWest, 7: world.South, 8: world.SouthEast,
}

func (s *fakeServer) handleTalk(r *wire.Reader) {
	mode, err := s.modes.FromServer(r.U8())
	if err != nil {
		logDebug("fake server: %v", err)
		return
	}
	switch mode {
	case proto.MessagePrivateTo, proto.MessageGamemasterPrivateTo, proto.MessageRVRAnswer:
		_ = r.String()
	case proto.MessageChannel, proto.MessageChannelHighlight:
		r.U16()
	}
	text := r.String()
	if r.Err() != nil {
		return
	}
	switch mode {
	case proto.MessageSay, proto.MessageWhisper, proto.MessageYell:
		s.talk(s.player, mode, text)
	}
}

// WriteFrame receives one client frame.
func (s *fakeServer) WriteFrame(frame []byte) error {
	select {
	case <-s.closed:
		return io.ErrClosedPipe
	default:
	}
	if len(frame) < 2 {
		return fmt.Errorf("fake server: short frame")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := s.framer.Decode(frame[2:])
	if err != nil {
		return fmt.Errorf("fake server: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	r := wire.NewReaderOrder(payload[1:], s.order)
	switch op := proto.Opcode(payload[0]); op {
	case proto.ClientPendingGame:
		s.login()
	case proto.ClientEnterGame, proto.ClientPingBack:
	case proto.ClientPing:
		s.push(s.msg(proto.ServerPingBack))
	case proto.ClientWalkNorth, proto.ClientWalkEast, proto.ClientWalkSouth, proto.ClientWalkWest:
		s.autoPath = nil
		s.walkPlayer(world.Direction(op - proto.ClientWalkNorth))
	case proto.ClientWalkNorthEast, proto.ClientWalkSouthEast, proto.ClientWalkSouthWest, proto.ClientWalkNorthWest:
		s.autoPath = nil
		s.walkPlayer(world.NorthEast + world.Direction(op-proto.ClientWalkNorthEast))
	case proto.ClientTurnNorth, proto.ClientTurnEast, proto.ClientTurnSouth, proto.ClientTurnWest:
		s.turnPlayer(world.Direction(op - proto.ClientTurnNorth))
	case proto.ClientStop:
		s.autoPath = nil
	case proto.ClientAutoWalk:
		n := int(r.U8())
		s.autoPath = s.autoPath[:0]
		for i := 0; i < n && r.Err() == nil; i++ {
			if d, ok := autoWalkDirs[r.U8()]; ok {
				s.autoPath = append(s.autoPath, d)
			}
		}
		s.nextAuto = time.Now()
	case proto.ClientTalk:
		s.handleTalk(r)
	case proto.ClientAttack:
		s.target = r.U32()
		s.nextAttack = time.Now()
	case proto.ClientCancelAttack:
		s.target = 0
	default:
		logDebug("fake server: ignoring client op %d", op)
	}
	return nil
}

func (s *fakeServer) stepDuration(speed uint16) time.Duration {
	return time.Duration(1000*150/int(max(speed, 1))) * time.Millisecond
}

func (s *fakeServer) wander(c *fakeCreature, now time.Time) {
	if now.Before(c.next) {
		return
	}
	c.next = now.Add(s.stepDuration(c.speed) + time.Duration(s.rng.Intn(2000))*time.Millisecond)
	dir := world.Direction(s.rng.Intn(4))
	to := c.pos.Step(dir)
	if !s.walkable(to) || !to.InRange(c.home, fakeLeash, fakeLeash) {
		return
	}
	from := c.pos
	c.pos = to
	c.dir = dir
	s.moveCreature(c, from, to)
}

func (s *fakeServer) npc(id uint32) *fakeCreature {
	for _, c := range s.npcs {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (s *fakeServer) attack(now time.Time) {
	c := s.npc(s.target)
	if c == nil || now.Before(s.nextAttack) || !s.canSee(c.pos) {
		return
	}
	s.nextAttack = now.Add(fakeAttackEvery)
	dmg := 5 + s.rng.Intn(16)
	if int(c.health) <= dmg {
		c.health = 100
	} else {
		c.health -= uint8(dmg)
	}
	w := s.msg(proto.ServerMissile)
	s.position(w, s.player.pos)
	s.position(w, c.pos)
	w.U8(4)
	w.U8(uint8(proto.ServerMagicEffect))
	s.position(w, c.pos)
	w.U8(1)
	w.U8(uint8(proto.ServerAnimatedText))
	s.position(w, c.pos)
	w.U8(180).String(fmt.Sprint(dmg))
	w.U8(uint8(proto.ServerCreatureHealth)).U32(c.id).U8(c.health)
	s.push(w)
}

func (s *fakeServer) tick(now time.Time) {
	if !s.inGame {
		return
	}
	for _, c := range s.npcs {
		s.wander(c, now)
	}
	if len(s.autoPath) > 0 && !now.Before(s.nextAuto) {
		dir := s.autoPath[0]
		s.autoPath = s.autoPath[1:]
		if s.walkPlayer(dir) {
			s.nextAuto = now.Add(s.stepDuration(s.player.speed))
		} else {
			s.autoPath = nil
		}
	}
	if s.target != 0 {
		s.attack(now)
	}
	if !now.Before(s.nextChat) {
		s.nextChat = now.Add(fakeChatEvery)
		c := s.npcs[s.rng.Intn(len(s.npcs))]
		if s.canSee(c.pos) {
			s.talk(c, proto.MessageSay, randomdata.Adjective()+" "+randomdata.Noun()+"!")
		}
	}
	if !now.Before(s.nextPing) {
		s.nextPing = now.Add(fakePingEvery)
		s.push(s.msg(proto.ServerPing))
	}
}

// run drives the fake world until ctx ends or the connection closes.
func (s *fakeServer) run(ctx context.Context) {
	ticker := time.NewTicker(fakeTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			s.tick(now)
			s.mu.Unlock()
		}
	}
}

// runFakeMode plays a whole session against the fake server: login
// handshake, map, creature moves, chat and combat, all through the real
// framer, dispatcher and game. It allows testing client behavior without
// connecting to a live server.
func runFakeMode(ctx context.Context, cred proto.Credentials, onReady func(*client)) error {
	caps := newCaps()
	if v := fakeVersion(caps.Version()); v != caps.Version() {
		logWarn("fake mode speaks protocols 841-909; using %d instead of %d", v, caps.Version())
		caps.SetVersion(v)
	}
	order, err := byteOrder()
	if err != nil {
		return err
	}
	rsa, err := rsaKey()
	if err != nil {
		return err
	}
	srv := newFakeServer(caps, order, gs.aware(), time.Now().UnixNano())
	go srv.run(ctx)

	if cred.Character == "" {
		cred.Character = srv.player.name
	}
	if cred.Account == "" {
		cred.Account = "fake"
	}
	opt := clientOptions{
		name:        "fake",
		caps:        caps,
		order:       order,
		types:       fakeItemTypes(),
		credentials: cred,
		rsa:         rsa,
		newKey:      fakeKeySource,
	}
	return runSession(ctx, srv, opt, onReady)
}
