package main

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gotibia/proto"
	"gotibia/wire"
	"gotibia/world"
)

const SETTINGS_VERSION = 1

var gs settings = gsdef

// settingsLoaded reports whether settings were successfully loaded from disk.
var settingsLoaded bool

var gsdef settings = settings{
	Version: SETTINGS_VERSION,

	Host:          "127.0.0.1:7172",
	ClientVersion: proto.DefaultVersion,
	ByteOrder:     "little",

	AwareLeft:   world.DefaultAwareRange.Left,
	AwareRight:  world.DefaultAwareRange.Right,
	AwareTop:    world.DefaultAwareRange.Top,
	AwareBottom: world.DefaultAwareRange.Bottom,

	LoginTimeoutSec:  15,
	EffectDurationMS: 1000,
	ChatLines:        200,
	TickMS:           10,
	StatsIntervalSec: 60,
	ReplayParallel:   4,
	PcapServerPort:   7172,
}

type settings struct {
	Version int

	Host string
	// FallbackHost is dialed when Host does not answer.
	FallbackHost  string
	WebSocketURL  string
	ClientVersion int
	ByteOrder     string
	// RSAModulus is a decimal modulus; empty selects the open server key.
	RSAModulus string
	Features   map[string]bool
	// ContentRevision, ContentHash and LoginExtendedData are sent in the
	// login packet by the protocols that carry them.
	ContentRevision   uint16
	ContentHash       string
	LoginExtendedData string

	AwareLeft        int
	AwareRight       int
	AwareTop         int
	AwareBottom      int
	KeepUnawareTiles bool

	LoginTimeoutSec  int
	EffectDurationMS int
	ChatLines        int
	TickMS           int
	StatsIntervalSec int

	ItemsFile      string
	HTTPAddr       string
	ReplayParallel int
	PcapRealtime   bool
	// PcapServerPort picks the server side of captured streams; 0 accepts
	// both directions.
	PcapServerPort int
	// PcapXTEAKey decrypts captured frames, as 32 hex digits.
	PcapXTEAKey string
}

// credentials fills in the login fields that come from settings.
func (s settings) credentials(account, password, character string) proto.Credentials {
	return proto.Credentials{
		Account:         account,
		Password:        password,
		Character:       character,
		ContentRevision: s.ContentRevision,
		ContentHash:     s.ContentHash,
		ExtendedData:    s.LoginExtendedData,
	}
}

func (s settings) aware() world.AwareRange {
	return world.AwareRange{Left: s.AwareLeft, Right: s.AwareRight, Top: s.AwareTop, Bottom: s.AwareBottom}
}

func (s settings) loginTimeout() time.Duration {
	return time.Duration(s.LoginTimeoutSec) * time.Second
}

func (s settings) effectDuration() time.Duration {
	return time.Duration(s.EffectDurationMS) * time.Millisecond
}

func (s settings) tick() time.Duration {
	return time.Duration(s.TickMS) * time.Millisecond
}

func (s settings) statsInterval() time.Duration {
	return time.Duration(s.StatsIntervalSec) * time.Second
}

var settingsPath = "settings.json"

func loadSettings() bool {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		gs = gsdef
		settingsLoaded = false
		return false
	}

	tmp := gsdef
	if err := json.Unmarshal(data, &tmp); err != nil {
		logError("load settings: %v", err)
		gs = gsdef
		settingsLoaded = false
		return false
	}

	if tmp.Version == SETTINGS_VERSION {
		gs = tmp
		settingsLoaded = true
	} else {
		logWarn("settings version %d, want %d; using defaults", tmp.Version, SETTINGS_VERSION)
		gs = gsdef
		settingsLoaded = false
		return false
	}

	if gs.ClientVersion <= 0 {
		gs.ClientVersion = gsdef.ClientVersion
	}
	if gs.AwareLeft <= 0 || gs.AwareRight <= 0 || gs.AwareTop <= 0 || gs.AwareBottom <= 0 {
		gs.AwareLeft, gs.AwareRight = gsdef.AwareLeft, gsdef.AwareRight
		gs.AwareTop, gs.AwareBottom = gsdef.AwareTop, gsdef.AwareBottom
	}
	if gs.LoginTimeoutSec <= 0 {
		gs.LoginTimeoutSec = gsdef.LoginTimeoutSec
	}
	if gs.EffectDurationMS <= 0 {
		gs.EffectDurationMS = gsdef.EffectDurationMS
	}
	if gs.ChatLines <= 0 {
		gs.ChatLines = gsdef.ChatLines
	}
	if gs.TickMS <= 0 || gs.TickMS > 1000 {
		gs.TickMS = gsdef.TickMS
	}
	if gs.ReplayParallel <= 0 {
		gs.ReplayParallel = gsdef.ReplayParallel
	}
	return settingsLoaded
}

func saveSettings() {
	data, err := json.MarshalIndent(gs, "", "  ")
	if err != nil {
		logError("save settings: %v", err)
		return
	}
	if err := os.WriteFile(settingsPath+".tmp", data, 0644); err != nil {
		logError("save settings: %v", err)
		return
	}
	if err := os.Rename(settingsPath+".tmp", settingsPath); err != nil {
		logError("save settings: %v", err)
	}
}

// newCaps derives the capability table for the configured client version
// and applies the feature overrides from the settings file.
func newCaps() *proto.VersionTable {
	caps := proto.NewVersionTable(gs.ClientVersion)
	names := make([]string, 0, len(gs.Features))
	for name := range gs.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if gs.Features[name] {
			caps.Enable(proto.Feature(name))
		} else {
			caps.Disable(proto.Feature(name))
		}
	}
	return caps
}

func byteOrder() (wire.Order, error) {
	return wire.ParseOrder(gs.ByteOrder)
}

func rsaKey() (*wire.RSAKey, error) {
	k, err := wire.ParseRSAKey(gs.RSAModulus)
	if err != nil {
		return nil, fmt.Errorf("settings RSAModulus: %w", err)
	}
	return k, nil
}

var errBadKey = errors.New("key must be 32 hex digits")

// parseXTEAKey reads a session key written as four little-endian words in
// hex, the way it appears in a packet dump.
func parseXTEAKey(s string) (wire.XTEAKey, error) {
	var k wire.XTEAKey
	if len(s) != 32 {
		return k, errBadKey
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, errBadKey
	}
	for i := range k {
		k[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return k, nil
}
