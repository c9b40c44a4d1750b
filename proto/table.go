package proto

import (
	"math"

	"gotibia/wire"
)

type decodeFunc func(*Decoder, *wire.Reader) ([]Event, error)

// decodeEntry applies to protocol versions in [minVersion, maxVersion].
type decodeEntry struct {
	minVersion int
	maxVersion int
	fn         decodeFunc
}

func always(fn decodeFunc) []decodeEntry {
	return []decodeEntry{{0, math.MaxInt, fn}}
}

var decodeTable = map[Opcode][]decodeEntry{
	ServerMessage:        always(decodeSkipRest),
	ServerLoginOrPending: always(decodeLoginOrPending),
	ServerEnterGame:      always(decodeEnterGame),
	ServerUpdateNeeded:   always(decodeUpdateNeeded),
	ServerLoginError:     always(decodeLoginError),
	ServerLoginAdvice:    always(decodeLoginAdvice),
	ServerLoginWait:      always(decodeLoginWait),
	ServerLoginSuccess:   always(decodeLogin),
	ServerSessionEnd:     always(decodeSessionEnd),
	ServerPingBack:       always(decodePingBack),
	ServerPing:           always(decodePing),
	ServerChallenge:      always(decodeChallenge),

	ServerFullMap:         always(decodeFullMap),
	ServerMapTopRow:       always(decodeMapRow(MapNorth)),
	ServerMapRightRow:     always(decodeMapRow(MapEast)),
	ServerMapBottomRow:    always(decodeMapRow(MapSouth)),
	ServerMapLeftRow:      always(decodeMapRow(MapWest)),
	ServerUpdateTile:      always(decodeUpdateTile),
	ServerAddThing:        always(decodeAddThing),
	ServerTransformThing:  always(decodeTransformThing),
	ServerRemoveThing:     always(decodeRemoveThing),
	ServerMoveCreature:    always(decodeMoveCreature),
	ServerFloorChangeUp:   always(decodeFloorChangeUp),
	ServerFloorChangeDown: always(decodeFloorChangeDown),

	ServerOpenContainer:    always(decodeOpenContainer),
	ServerCloseContainer:   always(decodeCloseContainer),
	ServerContainerAddItem: always(decodeContainerAddItem),
	ServerContainerUpdate:  always(decodeContainerUpdateItem),
	ServerContainerRemove:  always(decodeContainerRemoveItem),
	ServerSetInventory:     always(decodeInventorySet),
	ServerDeleteInventory:  always(decodeInventoryClear),
	ServerScreenshot:       always(decodeScreenshot),
	ServerDeath:            always(decodeDeath),

	ServerWorldLight:  always(decodeWorldLight),
	ServerMagicEffect: always(decodeMagicEffect),
	ServerAnimatedText: {
		{0, 1319, decodeAnimatedText},
		{1320, math.MaxInt, decodeRemoveMagicEffect},
	},
	ServerMissile: always(decodeMissile),

	ServerCreatureData:   always(decodeCreatureData),
	ServerCreatureHealth: always(decodeCreatureHealth),
	ServerCreatureLight:  always(decodeCreatureLight),
	ServerCreatureOutfit: always(decodeCreatureOutfit),
	ServerCreatureSpeed:  always(decodeCreatureSpeed),
	ServerCreatureSkull:  always(decodeCreatureSkull),
	ServerCreatureShield: always(decodeCreatureShield),
	ServerCreatureUnpass: always(decodeCreatureUnpass),
	ServerCreatureMarks:  always(decodeCreatureMark),
	ServerCreatureType:   always(decodeCreatureType),

	ServerPlayerStats:  always(decodePlayerStats),
	ServerPlayerSkills: always(decodePlayerSkills),
	ServerPlayerState:  always(decodePlayerState),
	ServerClearTarget:  always(decodeClearTarget),
	ServerTalk:         always(decodeTalk),
	ServerTextMessage:  always(decodeTextMessage),
	ServerCancelWalk:   always(decodeCancelWalk),
	ServerWalkWait:     always(decodeWalkWait),

	ServerNoop: always(decodeNop),
}

// lookup finds the decoder for op at the given protocol version.
func lookup(op Opcode, protocol int) (decodeFunc, bool) {
	for _, e := range decodeTable[op] {
		if protocol >= e.minVersion && protocol <= e.maxVersion {
			return e.fn, true
		}
	}
	return nil, false
}

// Supported reports whether op has a decoder at the given protocol version.
func Supported(op Opcode, protocol int) bool {
	_, ok := lookup(op, protocol)
	return ok
}
