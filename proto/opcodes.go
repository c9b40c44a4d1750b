package proto

import "fmt"

// Opcode is the first byte of every server or client command.
type Opcode uint8

// Server opcodes.
const (
	ServerMessage          Opcode = 6
	ServerLoginOrPending   Opcode = 10
	ServerEnterGame        Opcode = 15
	ServerUpdateNeeded     Opcode = 17
	ServerLoginError       Opcode = 20
	ServerLoginAdvice      Opcode = 21
	ServerLoginWait        Opcode = 22
	ServerLoginSuccess     Opcode = 23
	ServerSessionEnd       Opcode = 24
	ServerPingBack         Opcode = 29
	ServerPing             Opcode = 30
	ServerChallenge        Opcode = 31
	ServerFullMap          Opcode = 100
	ServerMapTopRow        Opcode = 101
	ServerMapRightRow      Opcode = 102
	ServerMapBottomRow     Opcode = 103
	ServerMapLeftRow       Opcode = 104
	ServerUpdateTile       Opcode = 105
	ServerAddThing         Opcode = 106
	ServerTransformThing   Opcode = 107
	ServerRemoveThing      Opcode = 108
	ServerMoveCreature     Opcode = 109
	ServerOpenContainer    Opcode = 110
	ServerCloseContainer   Opcode = 111
	ServerContainerAddItem Opcode = 112
	ServerContainerUpdate  Opcode = 113
	ServerContainerRemove  Opcode = 114
	ServerScreenshot       Opcode = 117
	ServerSetInventory     Opcode = 120
	ServerDeleteInventory  Opcode = 121
	ServerDeath            Opcode = 123
	ServerWorldLight       Opcode = 130
	ServerMagicEffect      Opcode = 131
	ServerAnimatedText     Opcode = 132
	ServerMissile          Opcode = 133
	ServerCreatureData     Opcode = 139
	ServerCreatureHealth   Opcode = 140
	ServerCreatureLight    Opcode = 141
	ServerCreatureOutfit   Opcode = 142
	ServerCreatureSpeed    Opcode = 143
	ServerCreatureSkull    Opcode = 144
	ServerCreatureShield   Opcode = 145
	ServerCreatureUnpass   Opcode = 146
	ServerCreatureMarks    Opcode = 147
	ServerCreatureType     Opcode = 149
	ServerPlayerStats      Opcode = 160
	ServerPlayerSkills     Opcode = 161
	ServerPlayerState      Opcode = 162
	ServerClearTarget      Opcode = 163
	ServerTalk             Opcode = 170
	ServerTextMessage      Opcode = 180
	ServerCancelWalk       Opcode = 181
	ServerWalkWait         Opcode = 182
	ServerFloorChangeUp    Opcode = 190
	ServerFloorChangeDown  Opcode = 191
	ServerNoop             Opcode = 255
)

// ServerRemoveMagicEffect reuses the animated-text opcode from protocol
// 1320 on.
const ServerRemoveMagicEffect = ServerAnimatedText

// FirstGameOpcode is the highest opcode still used by the login exchange;
// anything above it means the game has started.
const FirstGameOpcode Opcode = 50

// Client opcodes.
const (
	ClientPendingGame   Opcode = 10
	ClientEnterGame     Opcode = 15
	ClientLeaveGame     Opcode = 20
	ClientPing          Opcode = 29
	ClientPingBack      Opcode = 30
	ClientAutoWalk      Opcode = 100
	ClientWalkNorth     Opcode = 101
	ClientWalkEast      Opcode = 102
	ClientWalkSouth     Opcode = 103
	ClientWalkWest      Opcode = 104
	ClientStop          Opcode = 105
	ClientWalkNorthEast Opcode = 106
	ClientWalkSouthEast Opcode = 107
	ClientWalkSouthWest Opcode = 108
	ClientWalkNorthWest Opcode = 109
	ClientTurnNorth     Opcode = 111
	ClientTurnEast      Opcode = 112
	ClientTurnSouth     Opcode = 113
	ClientTurnWest      Opcode = 114
	ClientMove          Opcode = 120
	ClientUseItem       Opcode = 130
	ClientUseItemWith   Opcode = 131
	ClientUseOnCreature Opcode = 132
	ClientLook          Opcode = 140
	ClientTalk          Opcode = 150
	ClientAttack        Opcode = 161
	ClientFollow        Opcode = 162
	ClientCancelAttack  Opcode = 190
)

// Creature markers inside thing lists.
const (
	markerUnknownCreature  = 97
	markerOutdatedCreature = 98
	markerCreatureTurn     = 99
)

var serverNames = map[Opcode]string{
	ServerMessage:          "message",
	ServerLoginOrPending:   "login-or-pending",
	ServerEnterGame:        "enter-game",
	ServerUpdateNeeded:     "update-needed",
	ServerLoginError:       "login-error",
	ServerLoginAdvice:      "login-advice",
	ServerLoginWait:        "login-wait",
	ServerLoginSuccess:     "login-success",
	ServerSessionEnd:       "session-end",
	ServerPingBack:         "ping-back",
	ServerPing:             "ping",
	ServerChallenge:        "challenge",
	ServerFullMap:          "full-map",
	ServerMapTopRow:        "map-top-row",
	ServerMapRightRow:      "map-right-row",
	ServerMapBottomRow:     "map-bottom-row",
	ServerMapLeftRow:       "map-left-row",
	ServerUpdateTile:       "update-tile",
	ServerAddThing:         "add-thing",
	ServerTransformThing:   "transform-thing",
	ServerRemoveThing:      "remove-thing",
	ServerMoveCreature:     "move-creature",
	ServerOpenContainer:    "open-container",
	ServerCloseContainer:   "close-container",
	ServerContainerAddItem: "container-add",
	ServerContainerUpdate:  "container-update",
	ServerContainerRemove:  "container-remove",
	ServerScreenshot:       "screenshot",
	ServerSetInventory:     "set-inventory",
	ServerDeleteInventory:  "delete-inventory",
	ServerDeath:            "death",
	ServerWorldLight:       "world-light",
	ServerMagicEffect:      "magic-effect",
	ServerAnimatedText:     "animated-text",
	ServerMissile:          "missile",
	ServerCreatureData:     "creature-data",
	ServerCreatureHealth:   "creature-health",
	ServerCreatureLight:    "creature-light",
	ServerCreatureOutfit:   "creature-outfit",
	ServerCreatureSpeed:    "creature-speed",
	ServerCreatureSkull:    "creature-skull",
	ServerCreatureShield:   "creature-shield",
	ServerCreatureUnpass:   "creature-unpass",
	ServerCreatureMarks:    "creature-marks",
	ServerCreatureType:     "creature-type",
	ServerPlayerStats:      "player-stats",
	ServerPlayerSkills:     "player-skills",
	ServerPlayerState:      "player-state",
	ServerClearTarget:      "clear-target",
	ServerTalk:             "talk",
	ServerTextMessage:      "text-message",
	ServerCancelWalk:       "cancel-walk",
	ServerWalkWait:         "walk-wait",
	ServerFloorChangeUp:    "floor-up",
	ServerFloorChangeDown:  "floor-down",
	ServerNoop:             "noop",
}

// Name is the server-side name of the opcode, or its number.
func (o Opcode) Name() string {
	if n, ok := serverNames[o]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", uint8(o))
}

func (o Opcode) String() string { return fmt.Sprintf("%s(%d)", o.Name(), uint8(o)) }
