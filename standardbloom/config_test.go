package standardbloom

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
		{"valid minimal", Config{ExpectedItems: 1, TargetFPR: 0.5}, false},
		{"zero items", Config{ExpectedItems: 0, TargetFPR: 0.1}, true},
		{"fpr zero", Config{ExpectedItems: 10, TargetFPR: 0}, true},
		{"fpr one", Config{ExpectedItems: 10, TargetFPR: 1}, true},
		{"max fpr out of range", Config{ExpectedItems: 10, TargetFPR: 0.1, MaxFPR: 2}, true},
		{"persistence missing chunk size", Config{ExpectedItems: 10, TargetFPR: 0.1, Persistence: &Persistence{DBPath: "x"}}, true},
		{"persistence valid", Config{ExpectedItems: 10, TargetFPR: 0.1, Persistence: &Persistence{DBPath: "x", ChunkSizeBytes: 4096}}, false},
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
		ExpectedItems: 123456,
		TargetFPR:     0.005,
		MaxFPR:        0.02,
		Persistence:   &Persistence{DBPath: "/var/lib/bloomkeep/filter.db", ChunkSizeBytes: 4096},
	}

	decoded, err := DecodeConfig(cfg.Encode())
	require.NoError(t, err)
	require.Equal(t, cfg.ExpectedItems, decoded.ExpectedItems)
	require.Equal(t, cfg.TargetFPR, decoded.TargetFPR)
	require.Equal(t, cfg.MaxFPR, decoded.MaxFPR)
	require.NotNil(t, decoded.Persistence)
	require.Equal(t, cfg.Persistence.DBPath, decoded.Persistence.DBPath)
	require.Equal(t, cfg.Persistence.ChunkSizeBytes, decoded.Persistence.ChunkSizeBytes)
}

func TestConfig_EncodeDecodeRoundTrip_NoPersistence(t *testing.T) {
	cfg := Config{ExpectedItems: 10, TargetFPR: 0.1}

	decoded, err := DecodeConfig(cfg.Encode())
	require.NoError(t, err)
	require.Nil(t, decoded.Persistence)
}
