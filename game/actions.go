package game

import (
	"errors"

	"gotibia/proto"
	"gotibia/world"
)

var ErrNoSender = errors.New("game: no connection")

func (g *Game) send(payload []byte, err error) error {
	if err != nil {
		return err
	}
	if g.cfg.Send == nil {
		return ErrNoSender
	}
	return g.cfg.Send.Send(payload)
}

// Walk pre-walks one step and sends it.
func (g *Game) Walk(dir world.Direction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctl.PreWalk(dir, g.now())
}

// AutoWalk plans a path to dest and hands it to the server.
func (g *Game) AutoWalk(dest world.Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctl.AutoWalk(dest, g.now())
}

func (g *Game) Turn(dir world.Direction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctl.Turn(dir)
}

func (g *Game) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctl.Stop()
}

// Say talks in the default channel.
func (g *Game) Say(text string) error {
	return g.Talk(proto.MessageSay, 0, "", text)
}

func (g *Game) Talk(mode proto.MessageMode, channel uint16, receiver, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.send(g.out.Talk(mode, channel, receiver, text))
}

// Attack targets id; 0 clears the target.
func (g *Game) Attack(id uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.player.Target = id
	g.attackSeq++
	return g.send(g.out.Attack(id, g.attackSeq), nil)
}

func (g *Game) Ping() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctl.SendPing(g.now())
}
