package expiringbloom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateBounds(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{CapacityPerLevel: 100, TargetFPR: 0.01, NumLevels: 3, LevelDurationMS: 1000}, false},
		{"zero capacity", Config{CapacityPerLevel: 0, TargetFPR: 0.01, NumLevels: 3, LevelDurationMS: 1000}, true},
		{"bad fpr", Config{CapacityPerLevel: 100, TargetFPR: 1.5, NumLevels: 3, LevelDurationMS: 1000}, true},
		{"zero levels", Config{CapacityPerLevel: 100, TargetFPR: 0.01, NumLevels: 0, LevelDurationMS: 1000}, true},
		{"zero duration", Config{CapacityPerLevel: 100, TargetFPR: 0.01, NumLevels: 3, LevelDurationMS: 0}, true},
		{"max levels", Config{CapacityPerLevel: 100, TargetFPR: 0.01, NumLevels: 255, LevelDurationMS: 1000}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_EncodeDecodeRoundTrip(t *testing.T) {
	cfg := Config{
		CapacityPerLevel: 5000,
		TargetFPR:        0.001,
		NumLevels:        7,
		LevelDurationMS:  60000,
		Persistence:      &Persistence{DBPath: "/tmp/ring.db", ChunkSizeBytes: 4096},
	}
	decoded, err := DecodeConfig(cfg.Encode())
	require.NoError(t, err)
	require.Equal(t, cfg.CapacityPerLevel, decoded.CapacityPerLevel)
	require.Equal(t, cfg.TargetFPR, decoded.TargetFPR)
	require.Equal(t, cfg.NumLevels, decoded.NumLevels)
	require.Equal(t, cfg.LevelDurationMS, decoded.LevelDurationMS)
	require.Equal(t, *cfg.Persistence, *decoded.Persistence)
}

func TestLevelMetadataVec_RoundTrip(t *testing.T) {
	levels := []LevelMetadata{
		{CreatedAtMS: 100, InsertCount: 5, LastSnapshotAtMS: 0},
		{CreatedAtMS: 200, InsertCount: 0, LastSnapshotAtMS: 150},
		{CreatedAtMS: 300, InsertCount: 42, LastSnapshotAtMS: 290},
	}
	decoded, err := DecodeLevelMetadataVec(EncodeLevelMetadataVec(levels))
	require.NoError(t, err)
	require.Equal(t, levels, decoded)
}

func TestLevelMetadataVec_Empty(t *testing.T) {
	decoded, err := DecodeLevelMetadataVec(EncodeLevelMetadataVec(nil))
	require.NoError(t, err)
	require.Empty(t, decoded)
}
