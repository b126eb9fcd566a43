package standardbloom

import (
	"bloomkeep/bloomerr"
	"bloomkeep/internal/codec"
)

// Persistence describes the optional durable backend for a filter.
// DBPath is opaque to this package — it is whatever the chosen
// store.PartitionedStore implementation needs to open the same backend
// again (a bbolt file path, for instance).
type Persistence struct {
	DBPath         string
	ChunkSizeBytes uint32
}

// Config is the standard filter's persisted configuration blob
// (spec.md §6): expected_items, target_fpr, max_fpr, and an optional
// persistence descriptor.
type Config struct {
	ExpectedItems uint64
	TargetFPR     float64

	// MaxFPR is an upper bound the caller promises never to exceed by
	// inserting more than ExpectedItems keys; it is persisted alongside
	// TargetFPR so a future Load can detect a filter whose capacity was
	// silently outgrown. This package does not enforce it — Insert never
	// refuses a key — it is advisory metadata for operators.
	MaxFPR float64

	Persistence *Persistence
}

// Validate checks the invariants spec.md §3/§7 place on FilterParams
// construction, without yet deriving (m, k) — that happens in sizing.Derive.
func (c Config) Validate() error {
	if c.ExpectedItems < 1 {
		return bloomerr.InvalidParamsf("expected_items must be >= 1, got %d", c.ExpectedItems)
	}
	if !(c.TargetFPR > 0 && c.TargetFPR < 1) {
		return bloomerr.InvalidParamsf("target_fpr must be in (0,1), got %v", c.TargetFPR)
	}
	if c.MaxFPR != 0 && !(c.MaxFPR > 0 && c.MaxFPR < 1) {
		return bloomerr.InvalidParamsf("max_fpr must be in (0,1) when set, got %v", c.MaxFPR)
	}
	if c.Persistence != nil && c.Persistence.ChunkSizeBytes == 0 {
		return bloomerr.InvalidParamsf("chunk_size_bytes must be > 0 when persistence is configured")
	}
	return nil
}

// Encode serializes the config to the binary blob format of spec.md §6.
func (c Config) Encode() []byte {
	w := codec.NewWriter()
	w.U64(c.ExpectedItems)
	w.F64(c.TargetFPR)
	w.F64(c.MaxFPR)
	if c.Persistence == nil {
		w.Bool(false)
	} else {
		w.Bool(true)
		w.String16(c.Persistence.DBPath)
		w.U32(c.Persistence.ChunkSizeBytes)
	}
	return w.Bytes()
}

// DecodeConfig deserializes a config blob produced by Config.Encode.
func DecodeConfig(data []byte) (Config, error) {
	r := codec.NewReader(data)

	expectedItems, err := r.U64()
	if err != nil {
		return Config{}, err
	}
	targetFPR, err := r.F64()
	if err != nil {
		return Config{}, err
	}
	maxFPR, err := r.F64()
	if err != nil {
		return Config{}, err
	}
	hasPersistence, err := r.Bool()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{ExpectedItems: expectedItems, TargetFPR: targetFPR, MaxFPR: maxFPR}
	if hasPersistence {
		dbPath, err := r.String16()
		if err != nil {
			return Config{}, err
		}
		chunkSize, err := r.U32()
		if err != nil {
			return Config{}, err
		}
		cfg.Persistence = &Persistence{DBPath: dbPath, ChunkSizeBytes: chunkSize}
	}
	return cfg, nil
}
