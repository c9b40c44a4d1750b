package proto

import "fmt"

// MessageMode is the client's own numbering of talk and text message
// kinds. The byte on the wire differs per protocol version; ModeTable
// translates between the two.
type MessageMode uint8

const (
	MessageNone MessageMode = iota
	MessageSay
	MessageWhisper
	MessageYell
	MessagePrivateFrom
	MessagePrivateTo
	MessageChannelManagement
	MessageChannel
	MessageChannelHighlight
	MessageSpell
	MessageNpcFrom
	MessageNpcTo
	MessageGamemasterBroadcast
	MessageGamemasterChannel
	MessageGamemasterPrivateFrom
	MessageGamemasterPrivateTo
	MessageLogin
	MessageWarning
	MessageGame
	MessageFailure
	MessageLook
	MessageDamageDealed
	MessageDamageReceived
	MessageHeal
	MessageExp
	MessageDamageOthers
	MessageHealOthers
	MessageExpOthers
	MessageStatus
	MessageLoot
	MessageTradeNpc
	MessageGuild
	MessagePartyManagement
	MessageParty
	MessageBarkLow
	MessageBarkLoud
	MessageReport
	MessageHotkeyUse
	MessageTutorialHint
	MessageThankyou
	MessageMarket
	MessageMana
	MessageBeyondLast

	// Modes of older protocols with no place in the ordering above.
	MessageMonsterYell
	MessageMonsterSay
	MessageRed
	MessageBlue
	MessageRVRChannel
	MessageRVRAnswer
	MessageRVRContinue
	MessageGameHighlight
	MessageNpcFromStartBlock
	MessagePotion
	MessageAttention
	MessageBoostedCreature
	MessageOfflineTraining
	MessageTransaction
	MessageLastMessage

	MessageInvalid MessageMode = 255
)

var modeNames = map[MessageMode]string{
	MessageNone: "none", MessageSay: "say", MessageWhisper: "whisper", MessageYell: "yell",
	MessagePrivateFrom: "private-from", MessagePrivateTo: "private-to",
	MessageChannelManagement: "channel-management", MessageChannel: "channel",
	MessageChannelHighlight: "channel-highlight", MessageSpell: "spell",
	MessageNpcFrom: "npc-from", MessageNpcTo: "npc-to",
	MessageGamemasterBroadcast: "gm-broadcast", MessageGamemasterChannel: "gm-channel",
	MessageGamemasterPrivateFrom: "gm-private-from", MessageGamemasterPrivateTo: "gm-private-to",
	MessageLogin: "login", MessageWarning: "warning", MessageGame: "game", MessageFailure: "failure",
	MessageLook: "look", MessageDamageDealed: "damage-dealt", MessageDamageReceived: "damage-received",
	MessageHeal: "heal", MessageExp: "exp", MessageDamageOthers: "damage-others",
	MessageHealOthers: "heal-others", MessageExpOthers: "exp-others", MessageStatus: "status",
	MessageLoot: "loot", MessageTradeNpc: "trade-npc", MessageGuild: "guild",
	MessagePartyManagement: "party-management", MessageParty: "party",
	MessageBarkLow: "bark-low", MessageBarkLoud: "bark-loud", MessageReport: "report",
	MessageHotkeyUse: "hotkey-use", MessageTutorialHint: "tutorial-hint",
	MessageThankyou: "thankyou", MessageMarket: "market", MessageMana: "mana",
	MessageBeyondLast: "beyond-last", MessageMonsterYell: "monster-yell",
	MessageMonsterSay: "monster-say", MessageRed: "red", MessageBlue: "blue",
	MessageRVRChannel: "rvr-channel", MessageRVRAnswer: "rvr-answer",
	MessageRVRContinue: "rvr-continue", MessageGameHighlight: "game-highlight",
	MessageNpcFromStartBlock: "npc-from-start-block", MessagePotion: "potion",
	MessageAttention: "attention", MessageBoostedCreature: "boosted-creature",
	MessageOfflineTraining: "offline-training", MessageTransaction: "transaction",
	MessageLastMessage: "last", MessageInvalid: "invalid",
}

func (m MessageMode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// UnknownModeError reports a mode byte the version's table does not map.
type UnknownModeError struct {
	Byte    uint8
	Version int
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("unknown message mode %d for protocol %d", e.Byte, e.Version)
}

type modePair struct {
	mode MessageMode
	wire uint8
}

// ModeTable maps message modes to wire bytes for one protocol version.
// Several modes can share a byte; FromServer yields the first one listed.
type ModeTable struct {
	version int
	pairs   []modePair
	toWire  map[MessageMode]uint8
}

func (t *ModeTable) set(m MessageMode, b uint8) {
	if _, ok := t.toWire[m]; !ok {
		t.pairs = append(t.pairs, modePair{mode: m, wire: b})
	} else {
		for i := range t.pairs {
			if t.pairs[i].mode == m {
				t.pairs[i].wire = b
			}
		}
	}
	t.toWire[m] = b
}

func (t *ModeTable) setList(l []modePair) {
	for _, p := range l {
		t.set(p.mode, p.wire)
	}
}

var modes1055 = []modePair{
	{MessageNone, 0}, {MessageSay, 1}, {MessageWhisper, 2}, {MessageYell, 3},
	{MessagePrivateFrom, 4}, {MessagePrivateTo, 5}, {MessageChannelManagement, 6},
	{MessageChannel, 7}, {MessageChannelHighlight, 8}, {MessageSpell, 9},
	{MessageNpcFromStartBlock, 10}, {MessageNpcFrom, 11}, {MessageNpcTo, 12},
	{MessageGamemasterBroadcast, 13}, {MessageGamemasterChannel, 14},
	{MessageGamemasterPrivateFrom, 15}, {MessageGamemasterPrivateTo, 16},
	{MessageLogin, 17}, {MessageWarning, 18}, {MessageGame, 19}, {MessageGameHighlight, 20},
	{MessageFailure, 21}, {MessageLook, 22}, {MessageDamageDealed, 23},
	{MessageDamageReceived, 24}, {MessageHeal, 25}, {MessageExp, 26},
	{MessageDamageOthers, 27}, {MessageHealOthers, 28}, {MessageExpOthers, 29},
	{MessageStatus, 30}, {MessageLoot, 31}, {MessageTradeNpc, 32}, {MessageGuild, 33},
	{MessagePartyManagement, 34}, {MessageParty, 35}, {MessageBarkLow, 36},
	{MessageBarkLoud, 37}, {MessageReport, 38}, {MessageHotkeyUse, 39},
	{MessageTutorialHint, 40}, {MessageThankyou, 41}, {MessageMarket, 42},
	{MessageMana, 43}, {MessageBeyondLast, 44}, {MessageAttention, 48},
	{MessageBoostedCreature, 49}, {MessageOfflineTraining, 50},
	{MessageTransaction, 51}, {MessagePotion, 52},
}

// The tutorial hint byte 49 is what servers of this range send.
var modes1041 = []modePair{
	{MessageNone, 0}, {MessageSay, 1}, {MessageWhisper, 2}, {MessageYell, 3},
	{MessagePrivateFrom, 4}, {MessagePrivateTo, 5}, {MessageChannelManagement, 6},
	{MessageChannel, 7}, {MessageChannelHighlight, 8}, {MessageSpell, 9},
	{MessageNpcFromStartBlock, 10}, {MessageNpcFrom, 11}, {MessageNpcTo, 12},
	{MessageGamemasterBroadcast, 13}, {MessageGamemasterChannel, 14},
	{MessageGamemasterPrivateFrom, 15}, {MessageGamemasterPrivateTo, 16},
	{MessageLogin, 17}, {MessageWarning, 18}, {MessageGame, 19}, {MessageFailure, 20},
	{MessageLook, 21}, {MessageDamageDealed, 22}, {MessageDamageReceived, 23},
	{MessageHeal, 24}, {MessageExp, 25}, {MessageDamageOthers, 26},
	{MessageHealOthers, 27}, {MessageExpOthers, 28}, {MessageStatus, 29},
	{MessageLoot, 30}, {MessageTradeNpc, 31}, {MessageGuild, 32},
	{MessagePartyManagement, 33}, {MessageParty, 34}, {MessageBarkLow, 35},
	{MessageBarkLoud, 36}, {MessageReport, 37}, {MessageHotkeyUse, 38},
	{MessageTutorialHint, 49}, {MessageThankyou, 40}, {MessageMarket, 41},
}

var modes861 = []modePair{
	{MessageNone, 0}, {MessageSay, 1}, {MessageWhisper, 2}, {MessageYell, 3},
	{MessageNpcTo, 4}, {MessageNpcFrom, 5}, {MessagePrivateFrom, 6}, {MessagePrivateTo, 6},
	{MessageChannel, 7}, {MessageChannelManagement, 8}, {MessageGamemasterBroadcast, 9},
	{MessageGamemasterChannel, 10}, {MessageGamemasterPrivateFrom, 11},
	{MessageGamemasterPrivateTo, 11}, {MessageChannelHighlight, 12},
	{MessageMonsterSay, 13}, {MessageMonsterYell, 14}, {MessageWarning, 15},
	{MessageGame, 16}, {MessageLogin, 17}, {MessageStatus, 18}, {MessageLook, 19},
	{MessageFailure, 20}, {MessageBlue, 21}, {MessageRed, 22},
}

var modes840 = []modePair{
	{MessageNone, 0}, {MessageSay, 1}, {MessageWhisper, 2}, {MessageYell, 3},
	{MessageNpcTo, 4}, {MessageNpcFromStartBlock, 5}, {MessagePrivateFrom, 6},
	{MessagePrivateTo, 6}, {MessageChannel, 7}, {MessageChannelManagement, 8},
	{MessageRVRChannel, 9}, {MessageRVRAnswer, 10}, {MessageRVRContinue, 11},
	{MessageGamemasterBroadcast, 12}, {MessageGamemasterChannel, 13},
	{MessageGamemasterPrivateFrom, 14}, {MessageGamemasterPrivateTo, 14},
	{MessageChannelHighlight, 15}, {MessageRed, 18}, {MessageMonsterSay, 19},
	{MessageMonsterYell, 20}, {MessageWarning, 21}, {MessageGame, 22},
	{MessageLogin, 23}, {MessageStatus, 24}, {MessageLook, 25},
	{MessageFailure, 26}, {MessageBlue, 27},
}

var modes740 = []modePair{
	{MessageNone, 0}, {MessageSay, 1}, {MessageWhisper, 2}, {MessageYell, 3},
	{MessagePrivateFrom, 4}, {MessagePrivateTo, 4}, {MessageChannel, 5},
	{MessageRVRChannel, 6}, {MessageRVRAnswer, 7}, {MessageRVRContinue, 8},
	{MessageGamemasterBroadcast, 9}, {MessageGamemasterChannel, 10},
	{MessageGamemasterPrivateFrom, 11}, {MessageGamemasterPrivateTo, 11},
	{MessageChannelHighlight, 12}, {MessageMonsterSay, 16}, {MessageMonsterYell, 17},
	{MessageWarning, 18}, {MessageGame, 19}, {MessageLogin, 20}, {MessageStatus, 21},
	{MessageLook, 22}, {MessageFailure, 23}, {MessageBlue, 24}, {MessageRed, 25},
}

// NewModeTable builds the translation for a protocol version. Versions
// below 740 get an empty table.
func NewModeTable(version int) *ModeTable {
	t := &ModeTable{version: version, toWire: map[MessageMode]uint8{}}
	if version >= 1094 {
		t.set(MessageMana, 43)
	}
	switch {
	case version >= 1055:
		t.setList(modes1055)
	case version >= 1041:
		t.setList(modes1041)
	case version >= 1036:
		for m := MessageNone; m <= MessageBeyondLast; m++ {
			if m >= MessageNpcTo {
				t.set(m, uint8(m)+1)
			} else {
				t.set(m, uint8(m))
			}
		}
	case version >= 900:
		for m := MessageNone; m <= MessageBeyondLast; m++ {
			t.set(m, uint8(m))
		}
	case version >= 861:
		t.setList(modes861)
	case version >= 840:
		t.setList(modes840)
	case version >= 740:
		t.setList(modes740)
	}
	return t
}

func (t *ModeTable) Version() int { return t.version }

// FromServer translates a wire byte.
func (t *ModeTable) FromServer(b uint8) (MessageMode, error) {
	for _, p := range t.pairs {
		if p.wire == b {
			return p.mode, nil
		}
	}
	return MessageInvalid, &UnknownModeError{Byte: b, Version: t.version}
}

// ToServer translates a mode for an outbound talk packet. It reports false
// when the version has no byte for the mode.
func (t *ModeTable) ToServer(m MessageMode) (uint8, bool) {
	b, ok := t.toWire[m]
	return b, ok
}
