package expiringbloom

import (
	"bloomkeep/bloomerr"
	"bloomkeep/internal/codec"
)

// Persistence describes the optional durable backend for a filter, mirroring
// standardbloom.Persistence; each filter type's config blob is
// self-contained per spec.md §6 rather than sharing a type.
type Persistence struct {
	DBPath         string
	ChunkSizeBytes uint32
}

// Config is the expiring filter's persisted configuration blob
// (spec.md §6): capacity_per_level, target_fpr, num_levels, level_duration_ms,
// and an optional persistence descriptor.
type Config struct {
	CapacityPerLevel uint64
	TargetFPR        float64

	// NumLevels is the ring size. Normatively fixed at 8 bits wide
	// (num_levels <= 255, spec.md §9 Open Questions).
	NumLevels uint8

	LevelDurationMS uint64

	Persistence *Persistence
}

// Validate checks the invariants spec.md §7 places on an expiring filter's
// configuration, without yet deriving (m, k).
func (c Config) Validate() error {
	if c.CapacityPerLevel < 1 {
		return bloomerr.InvalidParamsf("capacity_per_level must be >= 1, got %d", c.CapacityPerLevel)
	}
	if !(c.TargetFPR > 0 && c.TargetFPR < 1) {
		return bloomerr.InvalidParamsf("target_fpr must be in (0,1), got %v", c.TargetFPR)
	}
	if c.NumLevels < 1 {
		return bloomerr.InvalidParamsf("num_levels must be >= 1")
	}
	if c.LevelDurationMS < 1 {
		return bloomerr.InvalidParamsf("level_duration_ms must be >= 1")
	}
	if c.Persistence != nil && c.Persistence.ChunkSizeBytes == 0 {
		return bloomerr.InvalidParamsf("chunk_size_bytes must be > 0 when persistence is configured")
	}
	return nil
}

// Encode serializes the config to the binary blob format of spec.md §6.
func (c Config) Encode() []byte {
	w := codec.NewWriter()
	w.U64(c.CapacityPerLevel)
	w.F64(c.TargetFPR)
	w.U8(c.NumLevels)
	w.U64(c.LevelDurationMS)
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

	capacityPerLevel, err := r.U64()
	if err != nil {
		return Config{}, err
	}
	targetFPR, err := r.F64()
	if err != nil {
		return Config{}, err
	}
	numLevels, err := r.U8()
	if err != nil {
		return Config{}, err
	}
	levelDurationMS, err := r.U64()
	if err != nil {
		return Config{}, err
	}
	hasPersistence, err := r.Bool()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		CapacityPerLevel: capacityPerLevel,
		TargetFPR:        targetFPR,
		NumLevels:        numLevels,
		LevelDurationMS:  levelDurationMS,
	}
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

// LevelMetadata is the per-level bookkeeping record of spec.md §3.
type LevelMetadata struct {
	CreatedAtMS      uint64
	InsertCount      uint64
	LastSnapshotAtMS uint64
}

func (m LevelMetadata) encodeInto(w *codec.Writer) {
	w.U64(m.CreatedAtMS)
	w.U64(m.InsertCount)
	w.U64(m.LastSnapshotAtMS)
}

func decodeLevelMetadata(r *codec.Reader) (LevelMetadata, error) {
	createdAt, err := r.U64()
	if err != nil {
		return LevelMetadata{}, err
	}
	insertCount, err := r.U64()
	if err != nil {
		return LevelMetadata{}, err
	}
	lastSnapshotAt, err := r.U64()
	if err != nil {
		return LevelMetadata{}, err
	}
	return LevelMetadata{CreatedAtMS: createdAt, InsertCount: insertCount, LastSnapshotAtMS: lastSnapshotAt}, nil
}

// EncodeLevelMetadataVec serializes a slice of LevelMetadata as
// "length : varint | items : repeat(metadata)" (spec.md §6).
func EncodeLevelMetadataVec(levels []LevelMetadata) []byte {
	w := codec.NewWriter()
	w.Varint(uint64(len(levels)))
	for _, lvl := range levels {
		lvl.encodeInto(w)
	}
	return w.Bytes()
}

// DecodeLevelMetadataVec deserializes a blob produced by
// EncodeLevelMetadataVec.
func DecodeLevelMetadataVec(data []byte) ([]LevelMetadata, error) {
	r := codec.NewReader(data)
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}
	levels := make([]LevelMetadata, n)
	for i := range levels {
		lvl, err := decodeLevelMetadata(r)
		if err != nil {
			return nil, err
		}
		levels[i] = lvl
	}
	return levels, nil
}
