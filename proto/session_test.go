package proto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"math/big"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"gotibia/wire"
	"gotibia/world"
)

type sentLog struct {
	payloads [][]byte
}

func (s *sentLog) Send(p []byte) error {
	s.payloads = append(s.payloads, append([]byte(nil), p...))
	return nil
}

func (s *sentLog) last() []byte {
	if len(s.payloads) == 0 {
		return nil
	}
	return s.payloads[len(s.payloads)-1]
}

var testCredentials = Credentials{Account: "acc", Password: "pw", Character: "Knight"}

func newTestSession(t *testing.T, caps *VersionTable) (*Session, *Dispatcher, *sentLog, *wire.Framer) {
	t.Helper()
	sent := &sentLog{}
	framer := &wire.Framer{}
	log := zaptest.NewLogger(t)
	s := NewSession(SessionConfig{
		Caps:        caps,
		Credentials: testCredentials,
		Log:         log,
		NewKey:      func() (wire.XTEAKey, error) { return wire.XTEAKey{1, 2, 3, 4}, nil },
	}, framer, sent, nil)
	d := NewDispatcher(NewDecoder(caps, nil, nil), s, log)
	d.SetObserver(s)
	d.sizeCheckDone = true
	return s, d, sent, framer
}

func TestLoginChallengeFlow(t *testing.T) {
	caps := NewVersionTable(860)
	caps.Disable(GameLoginPacketEncryption)
	s, d, sent, framer := newTestSession(t, caps)

	if err := s.Connected(); err != nil {
		t.Fatalf("connected: %v", err)
	}
	if s.State() != StateAwaitingChallenge || len(sent.payloads) != 0 {
		t.Fatalf("state=%s sent=%d", s.State(), len(sent.payloads))
	}
	if !framer.Checksum {
		t.Fatalf("860 frames carry a checksum")
	}

	d.Dispatch(wire.NewWriter().U8(uint8(ServerChallenge)).U32(123456).U8(7).Bytes())
	pkt := sent.last()
	if pkt == nil || pkt[0] != uint8(ClientPendingGame) {
		t.Fatalf("login packet=%x", pkt)
	}
	if tail := pkt[len(pkt)-5:]; !bytes.Equal(tail, []byte{0x40, 0xe2, 0x01, 0x00, 0x07}) {
		t.Fatalf("challenge echo=%x", tail)
	}
	if s.State() != StateLoginPacketSent {
		t.Fatalf("state=%s, want login-sent", s.State())
	}
	if framer.Encrypted() {
		t.Fatalf("plaintext login must not install a key")
	}

	d.Dispatch([]byte{uint8(ServerEnterGame)})
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("login did not resolve")
	}
	if r, ok := s.Result(); !ok || !r.OK {
		t.Fatalf("result=%+v ok=%v", r, ok)
	}
	if s.State() != StateInGame {
		t.Fatalf("state=%s, want in-game", s.State())
	}
}

func TestLoginFailureReason(t *testing.T) {
	s, d, _, _ := newTestSession(t, NewVersionTable(860))
	if err := s.Connected(); err != nil {
		t.Fatalf("connected: %v", err)
	}
	d.Dispatch(wire.NewWriter().U8(uint8(ServerLoginError)).String("Wrong password").Bytes())
	r, ok := s.Result()
	if !ok || r.OK || r.Reason != "Wrong password" {
		t.Fatalf("result=%+v", r)
	}
	// a later game opcode must not flip the outcome
	d.Dispatch([]byte{uint8(ServerEnterGame)})
	if r, _ := s.Result(); r.OK {
		t.Fatalf("resolved twice")
	}
}

func TestGameOpcodeResolvesLogin(t *testing.T) {
	caps := NewVersionTable(860)
	caps.Disable(GameLoginPacketEncryption)
	s, d, _, _ := newTestSession(t, caps)
	if err := s.Connected(); err != nil {
		t.Fatalf("connected: %v", err)
	}
	light := wire.NewWriter().U8(uint8(ServerWorldLight)).U8(5).U8(215).Bytes()
	d.Dispatch(light)
	if _, ok := s.Result(); ok || s.State() != StateAwaitingChallenge {
		t.Fatalf("game opcode resolved the login before it was sent: state=%s", s.State())
	}

	d.Dispatch(wire.NewWriter().U8(uint8(ServerChallenge)).U32(1).U8(2).Bytes())
	if s.State() != StateLoginPacketSent {
		t.Fatalf("state=%s, want login-sent", s.State())
	}
	d.Dispatch(light)
	if r, ok := s.Result(); !ok || !r.OK {
		t.Fatalf("result=%+v ok=%v", r, ok)
	}
}

func TestDisconnectFailsPendingLogin(t *testing.T) {
	s, _, _, _ := newTestSession(t, NewVersionTable(860))
	s.Connecting()
	s.Disconnected(nil)
	if r, _ := s.Result(); r.OK || r.Reason != "Connection closed" {
		t.Fatalf("result=%+v", r)
	}
}

func TestPingAnswered(t *testing.T) {
	s, d, sent, _ := newTestSession(t, NewVersionTable(860))
	s.Connected()
	d.Dispatch([]byte{uint8(ServerPing)})
	if !bytes.Equal(sent.last(), []byte{uint8(ClientPingBack)}) {
		t.Fatalf("reply=%x, want %x", sent.last(), []byte{uint8(ClientPingBack)})
	}
}

func TestRSABlockPlacement(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pub, err := wire.ParseRSAKey(priv.N.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	key := wire.XTEAKey{1, 2, 3, 4}
	pkt, err := BuildLoginPacket(NewVersionTable(860), nil, pub, key, testCredentials, Challenge{Timestamp: 1, Random: 2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if pkt.RSAOffset != 5 || len(pkt.Payload) != 5+128 {
		t.Fatalf("offset=%d len=%d", pkt.RSAOffset, len(pkt.Payload))
	}
	if !pkt.Encrypted || pkt.Key != key {
		t.Fatalf("packet key=%v encrypted=%v", pkt.Key, pkt.Encrypted)
	}
	if binary.LittleEndian.Uint16(pkt.Payload[3:]) != 860 {
		t.Fatalf("protocol=%d", binary.LittleEndian.Uint16(pkt.Payload[3:]))
	}

	c := new(big.Int).SetBytes(pkt.Payload[5:])
	plain := c.Exp(c, priv.D, priv.N).FillBytes(make([]byte, 128))
	if plain[0] != 0 {
		t.Fatalf("block must start with a zero byte, got %d", plain[0])
	}
	for i, k := range key {
		if got := binary.LittleEndian.Uint32(plain[1+4*i:]); got != k {
			t.Fatalf("key word %d=%d, want %d", i, got, k)
		}
	}
	if plain[17] != 0 {
		t.Fatalf("gamemaster flag=%d", plain[17])
	}
	if n := binary.LittleEndian.Uint16(plain[18:]); string(plain[20:20+n]) != "acc" {
		t.Fatalf("account=%q", plain[20:20+n])
	}
	if plain[127] != 0 {
		t.Fatalf("block not zero padded")
	}
}

func TestLoginPacketContentFields(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pub, err := wire.ParseRSAKey(priv.N.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cred := Credentials{SessionKey: "sess", Character: "Knight", ContentRevision: 0x1234, ContentHash: "abc", ExtendedData: "ext"}

	tests := []struct {
		version   int
		versionS  string
		hash      string
		revision  bool
		rsaOffset int
	}{
		// opcode, os, protocol, u32 version, u16 revision, preview
		{1098, "", "", true, 12},
		// ... then version text and content hash instead of the revision
		{1340, "13.40", "abc", false, 9 + 2 + 5 + 2 + 3 + 1},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.version), func(t *testing.T) {
			pkt, err := BuildLoginPacket(NewVersionTable(tt.version), nil, pub, wire.XTEAKey{5, 6, 7, 8}, cred, Challenge{Timestamp: 9, Random: 1})
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if pkt.RSAOffset != tt.rsaOffset {
				t.Fatalf("rsa offset=%d, want %d", pkt.RSAOffset, tt.rsaOffset)
			}
			r := wire.NewReader(pkt.Payload[:pkt.RSAOffset])
			r.Skip(5)
			if v := r.U32(); v != uint32(tt.version) {
				t.Fatalf("client version=%d", v)
			}
			if tt.versionS != "" {
				if s := r.String(); s != tt.versionS {
					t.Fatalf("version string=%q, want %q", s, tt.versionS)
				}
			}
			if tt.revision {
				if rev := r.U16(); rev != 0x1234 {
					t.Fatalf("content revision=%#x", rev)
				}
			} else if h := r.String(); h != tt.hash {
				t.Fatalf("content hash=%q, want %q", h, tt.hash)
			}
			if p := r.U8(); p != 0 || r.Remaining() != 0 || r.Err() != nil {
				t.Fatalf("preview=%d remaining=%d err=%v", p, r.Remaining(), r.Err())
			}

			c := new(big.Int).SetBytes(pkt.Payload[pkt.RSAOffset:])
			plain := c.Exp(c, priv.D, priv.N).FillBytes(make([]byte, 128))
			br := wire.NewReader(plain)
			br.Skip(1 + 16 + 1)
			if s := br.String(); s != "sess" {
				t.Fatalf("session key=%q", s)
			}
			if s := br.String(); s != "Knight" {
				t.Fatalf("character=%q", s)
			}
			if ts, rnd := br.U32(), br.U8(); ts != 9 || rnd != 1 {
				t.Fatalf("challenge=%d/%d", ts, rnd)
			}
			if s := br.String(); s != "ext" {
				t.Fatalf("extended data=%q", s)
			}
		})
	}
}

func TestNumericAccountRequired(t *testing.T) {
	caps := NewVersionTable(830)
	_, err := BuildLoginPacket(caps, nil, nil, wire.XTEAKey{}, testCredentials, Challenge{})
	if !errors.Is(err, ErrNumericAccount) {
		t.Fatalf("err=%v, want ErrNumericAccount", err)
	}
	cred := testCredentials
	cred.Account = "123"
	caps.Disable(GameLoginPacketEncryption)
	pkt, err := BuildLoginPacket(caps, nil, nil, wire.XTEAKey{}, cred, Challenge{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := binary.LittleEndian.Uint32(pkt.Payload[6:]); got != 123 {
		t.Fatalf("account=%d", got)
	}
}

func TestMissingRSAKey(t *testing.T) {
	_, err := BuildLoginPacket(NewVersionTable(860), nil, nil, wire.XTEAKey{}, testCredentials, Challenge{})
	if !errors.Is(err, wire.ErrRSAModulus) {
		t.Fatalf("err=%v, want ErrRSAModulus", err)
	}
}

func TestAutoWalkEncoding(t *testing.T) {
	out := NewOutbound(NewVersionTable(860), nil)
	got, err := out.AutoWalk([]world.Direction{world.East, world.NorthEast, world.North, world.SouthWest})
	if err != nil {
		t.Fatalf("auto walk: %v", err)
	}
	want := []byte{uint8(ClientAutoWalk), 4, 1, 2, 3, 6}
	if !bytes.Equal(got, want) {
		t.Fatalf("auto walk=%v, want %v", got, want)
	}
	long := make([]world.Direction, 200)
	got, _ = out.AutoWalk(long)
	if got[1] != MaxAutoWalkSteps || len(got) != 2+MaxAutoWalkSteps {
		t.Fatalf("long path encoded %d steps", got[1])
	}
	if _, err := out.AutoWalk([]world.Direction{world.InvalidDirection}); err == nil {
		t.Fatalf("invalid direction accepted")
	}
}

func TestTalkEncoding(t *testing.T) {
	out := NewOutbound(NewVersionTable(860), nil)
	got, err := out.Talk(MessagePrivateTo, 0, "Bob", "hi")
	if err != nil {
		t.Fatalf("talk: %v", err)
	}
	mode, _ := out.Modes.ToServer(MessagePrivateTo)
	want := wire.NewWriter().U8(uint8(ClientTalk)).U8(mode).String("Bob").String("hi").Bytes()
	if !bytes.Equal(got, want) {
		t.Fatalf("talk=%x, want %x", got, want)
	}

	got, _ = out.Talk(MessageChannel, 5, "", "yo")
	mode, _ = out.Modes.ToServer(MessageChannel)
	want = wire.NewWriter().U8(uint8(ClientTalk)).U8(mode).U16(5).String("yo").Bytes()
	if !bytes.Equal(got, want) {
		t.Fatalf("channel talk=%x, want %x", got, want)
	}
}

func TestAttackSequence(t *testing.T) {
	got := NewOutbound(NewVersionTable(860), nil).Attack(0x40000001, 9)
	if len(got) != 9 || binary.LittleEndian.Uint32(got[5:]) != 9 {
		t.Fatalf("attack=%x", got)
	}
	got = NewOutbound(NewVersionTable(760), nil).Attack(0x40000001, 9)
	if len(got) != 5 {
		t.Fatalf("760 attack=%x", got)
	}
}
