// Package proto decodes the game server's message stream. A message holds
// any number of opcodes back to back; each opcode's layout depends on the
// protocol version and on the feature flags derived from it. Decoding
// produces typed events that a Sink applies to the world model.
package proto

import (
	"sort"
	"strconv"
)

// Feature names one version-dependent protocol behaviour.
type Feature string

const (
	GameProtocolChecksum           Feature = "GameProtocolChecksum"
	GameAccountNames               Feature = "GameAccountNames"
	GameChallengeOnLogin           Feature = "GameChallengeOnLogin"
	GamePenalityOnDeath            Feature = "GamePenalityOnDeath"
	GameNameOnNpcTrade             Feature = "GameNameOnNpcTrade"
	GameDoubleFreeCapacity         Feature = "GameDoubleFreeCapacity"
	GameDoubleExperience           Feature = "GameDoubleExperience"
	GameTotalCapacity              Feature = "GameTotalCapacity"
	GameSkillsBase                 Feature = "GameSkillsBase"
	GamePlayerRegenerationTime     Feature = "GamePlayerRegenerationTime"
	GameChannelPlayerList          Feature = "GameChannelPlayerList"
	GamePlayerMounts               Feature = "GamePlayerMounts"
	GameEnvironmentEffect          Feature = "GameEnvironmentEffect"
	GameCreatureEmblems            Feature = "GameCreatureEmblems"
	GameItemAnimationPhase         Feature = "GameItemAnimationPhase"
	GameMagicEffectU16             Feature = "GameMagicEffectU16"
	GamePlayerMarket               Feature = "GamePlayerMarket"
	GameSpritesU32                 Feature = "GameSpritesU32"
	GameChargeableItems            Feature = "GameChargeableItems"
	GameOfflineTrainingTime        Feature = "GameOfflineTrainingTime"
	GamePurseSlot                  Feature = "GamePurseSlot"
	GameFormatCreatureName         Feature = "GameFormatCreatureName"
	GameSpellList                  Feature = "GameSpellList"
	GameClientPing                 Feature = "GameClientPing"
	GameExtendedClientPing         Feature = "GameExtendedClientPing"
	GameDoubleHealth               Feature = "GameDoubleHealth"
	GameDoubleSkills               Feature = "GameDoubleSkills"
	GameChangeMapAwareRange        Feature = "GameChangeMapAwareRange"
	GameMapMovePosition            Feature = "GameMapMovePosition"
	GameAttackSeq                  Feature = "GameAttackSeq"
	GameBlueNpcNameColor           Feature = "GameBlueNpcNameColor"
	GameDiagonalAnimatedText       Feature = "GameDiagonalAnimatedText"
	GameLoginPending               Feature = "GameLoginPending"
	GameNewSpeedLaw                Feature = "GameNewSpeedLaw"
	GameForceFirstAutoWalkStep     Feature = "GameForceFirstAutoWalkStep"
	GameMinimapRemove              Feature = "GameMinimapRemove"
	GameDoubleShopSellAmount       Feature = "GameDoubleShopSellAmount"
	GameContainerPagination        Feature = "GameContainerPagination"
	GameThingMarks                 Feature = "GameThingMarks"
	GameLooktypeU16                Feature = "GameLooktypeU16"
	GamePlayerStamina              Feature = "GamePlayerStamina"
	GamePlayerAddons               Feature = "GamePlayerAddons"
	GameMessageStatements          Feature = "GameMessageStatements"
	GameMessageLevel               Feature = "GameMessageLevel"
	GameNewFluids                  Feature = "GameNewFluids"
	GamePlayerStateU16             Feature = "GamePlayerStateU16"
	GameNewOutfitProtocol          Feature = "GameNewOutfitProtocol"
	GamePVPMode                    Feature = "GamePVPMode"
	GameWritableDate               Feature = "GameWritableDate"
	GameAdditionalVipInfo          Feature = "GameAdditionalVipInfo"
	GameBaseSkillU16               Feature = "GameBaseSkillU16"
	GameCreatureIcons              Feature = "GameCreatureIcons"
	GameHideNpcNames               Feature = "GameHideNpcNames"
	GameSpritesAlphaChannel        Feature = "GameSpritesAlphaChannel"
	GamePremiumExpiration          Feature = "GamePremiumExpiration"
	GameBrowseField                Feature = "GameBrowseField"
	GameEnhancedAnimations         Feature = "GameEnhancedAnimations"
	GameOGLInformation             Feature = "GameOGLInformation"
	GameMessageSizeCheck           Feature = "GameMessageSizeCheck"
	GamePreviewState               Feature = "GamePreviewState"
	GameLoginPacketEncryption      Feature = "GameLoginPacketEncryption"
	GameClientVersion              Feature = "GameClientVersion"
	GameContentRevision            Feature = "GameContentRevision"
	GameExperienceBonus            Feature = "GameExperienceBonus"
	GameAuthenticator              Feature = "GameAuthenticator"
	GameUnjustifiedPoints          Feature = "GameUnjustifiedPoints"
	GameSessionKey                 Feature = "GameSessionKey"
	GameDeathType                  Feature = "GameDeathType"
	GameIdleAnimations             Feature = "GameIdleAnimations"
	GameKeepUnawareTiles           Feature = "GameKeepUnawareTiles"
	GameIngameStore                Feature = "GameIngameStore"
	GameIngameStoreHighlights      Feature = "GameIngameStoreHighlights"
	GameIngameStoreServiceType     Feature = "GameIngameStoreServiceType"
	GameAdditionalSkills           Feature = "GameAdditionalSkills"
	GameDistanceEffectU16          Feature = "GameDistanceEffectU16"
	GameLevelU16                   Feature = "GameLevelU16"
	GameSoul                       Feature = "GameSoul"
	GameMapOldEffectRendering      Feature = "GameMapOldEffectRendering"
	GameMapDontCorrectCorpse       Feature = "GameMapDontCorrectCorpse"
	GamePrey                       Feature = "GamePrey"
	GameThingQuickLoot             Feature = "GameThingQuickLoot"
	GameThingQuiver                Feature = "GameThingQuiver"
	GameThingPodium                Feature = "GameThingPodium"
	GameThingUpgradeClassification Feature = "GameThingUpgradeClassification"
	GameThingCounter               Feature = "GameThingCounter"
	GameThingClock                 Feature = "GameThingClock"
	GameThingPodiumItemType        Feature = "GameThingPodiumItemType"
	GameSequencedPackets           Feature = "GameSequencedPackets"
	GameUshortSpell                Feature = "GameUshortSpell"
	GameTournamentPackets          Feature = "GameTournamentPackets"
	GameDynamicForgeVariables      Feature = "GameDynamicForgeVariables"
	GameConcotions                 Feature = "GameConcotions"
	GameAnthem                     Feature = "GameAnthem"
	GameVipGroups                  Feature = "GameVipGroups"
	GameBosstiary                  Feature = "GameBosstiary"
	GameDoublePlayerGoodsMoney     Feature = "GameDoublePlayerGoodsMoney"
	GameLoadSprInsteadProtobuf     Feature = "GameLoadSprInsteadProtobuf"
	GameItemShader                 Feature = "GameItemShader"
	GameCreatureShader             Feature = "GameCreatureShader"
	GameCreatureAttachedEffect     Feature = "GameCreatureAttachedEffect"
	GameCountU16                   Feature = "GameCountU16"
	GameEffectU16                  Feature = "GameEffectU16"
	GameContainerTypes             Feature = "GameContainerTypes"
	GameBosstiaryTracker           Feature = "GameBosstiaryTracker"
	GamePlayerStateCounter         Feature = "GamePlayerStateCounter"
	GameLeechAmount                Feature = "GameLeechAmount"
	GameItemAugment                Feature = "GameItemAugment"
	GameDynamicBugReporter         Feature = "GameDynamicBugReporter"
	GameWrapKit                    Feature = "GameWrapKit"
	GameContainerFilter            Feature = "GameContainerFilter"
	GameEnterGameShowAppearance    Feature = "GameEnterGameShowAppearance"
	GameSmoothWalkElevation        Feature = "GameSmoothWalkElevation"
	GameNegativeOffset             Feature = "GameNegativeOffset"
	GameItemTooltipV8              Feature = "GameItemTooltipV8"
	GameWingsAurasEffectsShader    Feature = "GameWingsAurasEffectsShader"
	GameForgeConvergence           Feature = "GameForgeConvergence"
	GameAllowCustomBotScripts      Feature = "GameAllowCustomBotScripts"
	GameColorizedLootValue         Feature = "GameColorizedLootValue"
	GameAllowPreWalk               Feature = "GameAllowPreWalk"
	GamePlayerFamiliars            Feature = "GamePlayerFamiliars"
	GameTileAddThingWithStackpos   Feature = "GameTileAddThingWithStackpos"
	GameMapCache                   Feature = "GameMapCache"
	GameForgeSkillStats            Feature = "GameForgeSkillStats"
	GameCharacterSkillStats        Feature = "GameCharacterSkillStats"
	GameCreaturePaperdoll          Feature = "GameCreaturePaperdoll"
	GameMultiSpr                   Feature = "GameMultiSpr"
	GameVocationMonk               Feature = "GameVocationMonk"
	GameCreatureTypeOnUnknown      Feature = "GameCreatureTypeOnUnknown"
	GameCreatureUnpassOnTurn       Feature = "GameCreatureUnpassOnTurn"
	GameCreatureUnpass             Feature = "GameCreatureUnpass"
	GameCreatureBaseSpeed          Feature = "GameCreatureBaseSpeed"
	GamePermanentCreatureMarks     Feature = "GamePermanentCreatureMarks"
	GameExpertPvpMode              Feature = "GameExpertPvpMode"
	GamePvpFrameOption             Feature = "GamePvpFrameOption"
)

// DefaultVersion is used when no usable client version is configured.
const DefaultVersion = 860

// protocolRemap lists client versions whose wire protocol number differs
// from the client number.
var protocolRemap = map[int]int{
	980:  971,
	981:  973,
	982:  974,
	983:  975,
	984:  976,
	985:  977,
	986:  978,
	1001: 979,
	1002: 980,
}

// ProtocolVersion returns the protocol number a client version announces
// in its login packet.
func ProtocolVersion(clientVersion int) int {
	if p, ok := protocolRemap[clientVersion]; ok {
		return p
	}
	return clientVersion
}

// ParseVersion parses a client version string, falling back to
// DefaultVersion for empty or invalid input.
func ParseVersion(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return DefaultVersion
	}
	return v
}

// Capabilities answers version and feature questions for decoders.
type Capabilities interface {
	Enabled(f Feature) bool
	Version() int
	ProtocolVersion() int
}

type threshold struct {
	version int
	enable  []Feature
	disable []Feature
}

// thresholds are applied in order; a later entry may disable a feature an
// earlier one enabled.
var thresholds = []threshold{
	{version: 750, enable: []Feature{GameSoul}},
	{version: 760, enable: []Feature{GameLevelU16}},
	{version: 770, enable: []Feature{GameLooktypeU16, GameMessageStatements, GameLoginPacketEncryption}},
	{version: 780, enable: []Feature{GamePlayerAddons, GamePlayerStamina, GameNewFluids, GameMessageLevel, GamePlayerStateU16, GameNewOutfitProtocol}},
	{version: 790, enable: []Feature{GameWritableDate}},
	{version: 840, enable: []Feature{GameProtocolChecksum, GameAccountNames, GameDoubleFreeCapacity}},
	{version: 841, enable: []Feature{GameChallengeOnLogin, GameMessageSizeCheck, GameTileAddThingWithStackpos}},
	{version: 854, enable: []Feature{GameCreatureEmblems, GameCreatureUnpass}},
	{version: 860, enable: []Feature{GameAttackSeq}},
	{version: 862, enable: []Feature{GamePenalityOnDeath}},
	{version: 870, enable: []Feature{GameDoubleExperience, GamePlayerMounts, GameSpellList}},
	{version: 910, enable: []Feature{GameNameOnNpcTrade, GameTotalCapacity, GameSkillsBase, GamePlayerRegenerationTime, GameChannelPlayerList, GameEnvironmentEffect, GameItemAnimationPhase, GameCreatureTypeOnUnknown}},
	{version: 940, enable: []Feature{GamePlayerMarket}},
	{version: 953, enable: []Feature{GamePurseSlot, GameClientPing, GameCreatureUnpassOnTurn}},
	{version: 960, enable: []Feature{GameSpritesU32, GameOfflineTrainingTime}},
	{version: 963, enable: []Feature{GameAdditionalVipInfo}},
	{version: 972, enable: []Feature{GameDoublePlayerGoodsMoney}},
	{version: 980, enable: []Feature{GamePreviewState, GameClientVersion}},
	{version: 981, enable: []Feature{GameLoginPending, GameNewSpeedLaw}},
	{version: 984, enable: []Feature{GameContainerPagination, GameBrowseField}},
	{version: 1000, enable: []Feature{GameThingMarks, GamePVPMode}},
	{version: 1035, enable: []Feature{GameDoubleSkills, GameBaseSkillU16}},
	{version: 1036, enable: []Feature{GameCreatureIcons, GameHideNpcNames}},
	{version: 1038, enable: []Feature{GamePremiumExpiration}},
	{version: 1050, enable: []Feature{GameEnhancedAnimations}},
	{version: 1053, enable: []Feature{GameUnjustifiedPoints}},
	{version: 1054, enable: []Feature{GameExperienceBonus, GamePvpFrameOption}},
	{version: 1055, enable: []Feature{GameDeathType}},
	{version: 1057, enable: []Feature{GameIdleAnimations}},
	{version: 1058, enable: []Feature{GameExpertPvpMode}},
	{version: 1059, enable: []Feature{GameCreatureBaseSpeed}},
	{version: 1061, enable: []Feature{GameOGLInformation}},
	{version: 1071, enable: []Feature{GameContentRevision}},
	{version: 1072, enable: []Feature{GameAuthenticator}},
	{version: 1074, enable: []Feature{GameSessionKey}},
	{version: 1076, enable: []Feature{GamePermanentCreatureMarks}},
	{version: 1080, enable: []Feature{GameIngameStore}},
	{version: 1092, enable: []Feature{GameIngameStoreServiceType}},
	{version: 1093, enable: []Feature{GameIngameStoreHighlights}},
	{version: 1094, enable: []Feature{GameAdditionalSkills, GameLeechAmount}},
	{version: 1100, enable: []Feature{GamePrey}},
	{version: 1200, enable: []Feature{GameColorizedLootValue, GameThingQuickLoot, GameTournamentPackets, GameVipGroups, GameEnterGameShowAppearance}},
	{version: 1260, enable: []Feature{GameThingQuiver}},
	{version: 1264, enable: []Feature{GameThingPodium}},
	{version: 1272, enable: []Feature{GameThingUpgradeClassification}},
	{version: 1281, enable: []Feature{GameForgeSkillStats, GamePlayerFamiliars}, disable: []Feature{GameEnvironmentEffect, GameItemAnimationPhase}},
	{version: 1290, enable: []Feature{GameSequencedPackets, GameBosstiary, GameThingClock, GameThingCounter, GameThingPodiumItemType, GameDoubleShopSellAmount}},
	{version: 1300, enable: []Feature{GameDoubleHealth, GameUshortSpell, GameConcotions, GameAnthem}},
	{version: 1314, enable: []Feature{GameDynamicForgeVariables}, disable: []Feature{GameTournamentPackets}},
	{version: 1320, enable: []Feature{GameEffectU16, GameContainerTypes, GameBosstiaryTracker, GamePlayerStateCounter, GameItemAugment, GameDynamicBugReporter}, disable: []Feature{GameLeechAmount}},
	{version: 1321, enable: []Feature{GameWrapKit, GameContainerFilter}},
	{version: 1332, enable: []Feature{GameForgeConvergence}},
	{version: 1410, enable: []Feature{GameCharacterSkillStats}, disable: []Feature{GameAdditionalSkills, GameForgeSkillStats}},
	{version: 1500, enable: []Feature{GameVocationMonk}},
}

// VersionTable is the Capabilities implementation derived from a client
// version. Overrides set through Enable and Disable survive SetVersion.
type VersionTable struct {
	version   int
	protocol  int
	enabled   map[Feature]bool
	overrides map[Feature]bool
}

func NewVersionTable(version int) *VersionTable {
	t := &VersionTable{overrides: map[Feature]bool{}}
	t.SetVersion(version)
	return t
}

// SetVersion recomputes the feature set for version.
func (t *VersionTable) SetVersion(version int) {
	if version <= 0 {
		version = DefaultVersion
	}
	t.version = version
	t.protocol = ProtocolVersion(version)
	t.enabled = map[Feature]bool{
		GameFormatCreatureName: true,
		GameAllowPreWalk:       true,
		GameMapCache:           true,
	}
	for _, th := range thresholds {
		if version < th.version {
			break
		}
		for _, f := range th.enable {
			t.enabled[f] = true
		}
		for _, f := range th.disable {
			delete(t.enabled, f)
		}
	}
	for f, on := range t.overrides {
		t.apply(f, on)
	}
}

func (t *VersionTable) apply(f Feature, on bool) {
	if on {
		t.enabled[f] = true
	} else {
		delete(t.enabled, f)
	}
}

func (t *VersionTable) Enable(f Feature) {
	t.overrides[f] = true
	t.apply(f, true)
}

func (t *VersionTable) Disable(f Feature) {
	t.overrides[f] = false
	t.apply(f, false)
}

func (t *VersionTable) Enabled(f Feature) bool { return t.enabled[f] }
func (t *VersionTable) Version() int           { return t.version }
func (t *VersionTable) ProtocolVersion() int   { return t.protocol }

// Features lists the enabled features in name order.
func (t *VersionTable) Features() []Feature {
	out := make([]Feature, 0, len(t.enabled))
	for f := range t.enabled {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
