package proto

import "testing"

func TestVersionThresholds(t *testing.T) {
	tests := []struct {
		version int
		feature Feature
		want    bool
	}{
		{740, GameSoul, false},
		{750, GameSoul, true},
		{860, GameAttackSeq, true},
		{860, GameChallengeOnLogin, true},
		{860, GameNewSpeedLaw, false},
		{981, GameNewSpeedLaw, true},
		{910, GameEnvironmentEffect, true},
		{1281, GameEnvironmentEffect, false},
		{1281, GameItemAnimationPhase, false},
		{1281, GameForgeSkillStats, true},
		{1314, GameTournamentPackets, false},
		{1320, GameLeechAmount, false},
		{1410, GameAdditionalSkills, false},
		{1410, GameCharacterSkillStats, true},
		{700, GameFormatCreatureName, true},
		{700, GameAllowPreWalk, true},
	}
	for _, tt := range tests {
		got := NewVersionTable(tt.version).Enabled(tt.feature)
		if got != tt.want {
			t.Fatalf("%d %s=%v, want %v", tt.version, tt.feature, got, tt.want)
		}
	}
}

func TestProtocolVersionRemap(t *testing.T) {
	tests := map[int]int{860: 860, 980: 971, 986: 978, 1002: 980, 1098: 1098}
	for client, want := range tests {
		if got := ProtocolVersion(client); got != want {
			t.Fatalf("ProtocolVersion(%d)=%d, want %d", client, got, want)
		}
	}
	if tbl := NewVersionTable(981); tbl.ProtocolVersion() != 973 {
		t.Fatalf("table protocol=%d, want 973", tbl.ProtocolVersion())
	}
}

func TestParseVersion(t *testing.T) {
	if v := ParseVersion(""); v != DefaultVersion {
		t.Fatalf("empty=%d, want %d", v, DefaultVersion)
	}
	if v := ParseVersion("abc"); v != DefaultVersion {
		t.Fatalf("invalid=%d, want %d", v, DefaultVersion)
	}
	if v := ParseVersion("1098"); v != 1098 {
		t.Fatalf("1098=%d", v)
	}
}

func TestOverridesSurviveSetVersion(t *testing.T) {
	tbl := NewVersionTable(860)
	tbl.Enable(GameNewSpeedLaw)
	tbl.Disable(GameSoul)
	tbl.SetVersion(1098)
	if !tbl.Enabled(GameNewSpeedLaw) {
		t.Fatalf("enable override lost")
	}
	if tbl.Enabled(GameSoul) {
		t.Fatalf("disable override lost")
	}
	if !tbl.Enabled(GameDoubleSkills) {
		t.Fatalf("1098 should have GameDoubleSkills")
	}
	feats := tbl.Features()
	for i := 1; i < len(feats); i++ {
		if feats[i-1] >= feats[i] {
			t.Fatalf("features not sorted at %d: %s >= %s", i, feats[i-1], feats[i])
		}
	}
}
