// Package expiringbloom implements the ring-of-levels, time-decaying Bloom
// filter of spec.md §4.4: a fixed number of levels sharing identical (m, k),
// one writable "current" level at a time, rotated on a wall-clock schedule
// through a freeze/clear/delete/publish sequence that tolerates a crash at
// any step.
package expiringbloom

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bloomkeep/bloomerr"
	"bloomkeep/internal/bitset"
	"bloomkeep/internal/hashkernel"
	"bloomkeep/internal/logging"
	"bloomkeep/internal/sizing"
	"bloomkeep/internal/store"
)

const (
	partitionConfig        = "expiring_config"
	partitionCurrentLevel  = "current_level"
	partitionLevelMetadata = "level_metadata"
	singleKey              = "value"

	defaultChunkSizeBytes = 4096

	// chunkWriteConcurrency bounds how many chunk writes a full (freeze)
	// snapshot issues against the backend at once.
	chunkWriteConcurrency = 8
)

// State is the lifecycle state of an ExpiringFilter (spec.md §4.4).
type State int32

const (
	Active State = iota
	Rotating
	Snapshotting
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Rotating:
		return "rotating"
	case Snapshotting:
		return "snapshotting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

func chunksPartition(level int) string { return fmt.Sprintf("level_%d_chunks", level) }
func dirtyPartition(level int) string  { return fmt.Sprintf("level_%d_dirty", level) }

func chunkKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

// Filter is the ring-of-levels expiring Bloom filter.
type Filter struct {
	cfg    Config
	params sizing.Params
	codec  *bitset.ChunkCodec

	levelMus []sync.RWMutex
	levels   []*bitset.Vector

	metaMu sync.RWMutex
	meta   []LevelMetadata

	currentLevel atomic.Uint32

	dirtyMu sync.Mutex
	dirty   *bitset.DirtySet

	rotationMu sync.Mutex

	state atomic.Int32

	backend store.PartitionedStore
	logger  *slog.Logger
}

func chunkSizeOf(cfg Config) uint64 {
	if cfg.Persistence != nil && cfg.Persistence.ChunkSizeBytes > 0 {
		return uint64(cfg.Persistence.ChunkSizeBytes)
	}
	return defaultChunkSizeBytes
}

func newFilter(cfg Config, params sizing.Params, backend store.PartitionedStore, logger *slog.Logger) (*Filter, error) {
	chunkCodec, err := bitset.NewChunkCodec(chunkSizeOf(cfg))
	if err != nil {
		return nil, err
	}

	n := int(cfg.NumLevels)
	f := &Filter{
		cfg:      cfg,
		params:   params,
		codec:    chunkCodec,
		levelMus: make([]sync.RWMutex, n),
		levels:   make([]*bitset.Vector, n),
		meta:     make([]LevelMetadata, n),
		backend:  backend,
		logger:   logging.Default(logger).With("component", "expiringbloom"),
	}
	for i := 0; i < n; i++ {
		f.levels[i] = bitset.New(params.M)
	}
	numChunks := chunkCodec.NumChunks(bitset.ByteLen(params.M))
	f.dirty = bitset.NewDirtySet(numChunks)
	f.state.Store(int32(Active))
	return f, nil
}

func nowMS() uint64 { return uint64(time.Now().UnixMilli()) }

// Create allocates a new ring of num_levels zeroed levels. Level 0 starts
// current and timestamped now; the rest carry a zero created_at until their
// first activation (spec.md §4.4).
func Create(cfg Config, backend store.PartitionedStore, logger *slog.Logger) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend != nil && cfg.Persistence == nil {
		return nil, bloomerr.InvalidParamsf("persistence config required when a backend is supplied")
	}

	params, err := sizing.Derive(cfg.CapacityPerLevel, cfg.TargetFPR)
	if err != nil {
		return nil, err
	}

	f, err := newFilter(cfg, params, backend, logger)
	if err != nil {
		return nil, err
	}
	f.meta[0].CreatedAtMS = nowMS()
	f.currentLevel.Store(0)

	if backend != nil {
		for i := 0; i < int(cfg.NumLevels); i++ {
			if err := backend.DeleteAll(chunksPartition(i)); err != nil {
				return nil, err
			}
			if err := backend.DeleteAll(dirtyPartition(i)); err != nil {
				return nil, err
			}
		}
		if err := f.persistMetadataAndPointer(0); err != nil {
			return nil, err
		}
		if err := backend.Put(partitionConfig, []byte(singleKey), cfg.Encode()); err != nil {
			return nil, err
		}
	}

	f.logger.Info("expiring filter created", "m", params.M, "k", params.K, "num_levels", cfg.NumLevels)
	return f, nil
}

// Load reconstructs a filter from a backend previously written by Create or
// a rotation/snapshot. Each level is rebuilt by applying its frozen chunks
// partition, then overlaying its dirty partition on top (spec.md §4.4
// recovery). Non-current levels with a non-empty dirty partition are
// overlaid anyway and logged, since the backend makes no promise they were
// cleared before a crash.
func Load(backend store.PartitionedStore, logger *slog.Logger) (*Filter, error) {
	if backend == nil {
		return nil, bloomerr.InvalidParamsf("load requires a backend")
	}

	raw, ok, err := backend.Get(partitionConfig, []byte(singleKey))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bloomerr.Codecf(nil, "no config found at partition=%s", partitionConfig)
	}
	cfg, err := DecodeConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	params, err := sizing.Derive(cfg.CapacityPerLevel, cfg.TargetFPR)
	if err != nil {
		return nil, err
	}

	f, err := newFilter(cfg, params, backend, logger)
	if err != nil {
		return nil, err
	}

	curRaw, ok, err := backend.Get(partitionCurrentLevel, []byte(singleKey))
	if err != nil {
		return nil, err
	}
	if !ok || len(curRaw) != 1 {
		return nil, bloomerr.Codecf(nil, "missing or malformed current_level record")
	}
	cur := curRaw[0]
	if int(cur) >= int(cfg.NumLevels) {
		return nil, bloomerr.Codecf(nil, "current_level %d out of range [0,%d)", cur, cfg.NumLevels)
	}
	f.currentLevel.Store(uint32(cur))

	metaRaw, ok, err := backend.Get(partitionLevelMetadata, []byte(singleKey))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bloomerr.Codecf(nil, "missing level_metadata record")
	}
	levelsMeta, err := DecodeLevelMetadataVec(metaRaw)
	if err != nil {
		return nil, err
	}
	if len(levelsMeta) != int(cfg.NumLevels) {
		return nil, bloomerr.Codecf(nil, "level_metadata has %d entries, expected %d", len(levelsMeta), cfg.NumLevels)
	}
	copy(f.meta, levelsMeta)

	for i := 0; i < int(cfg.NumLevels); i++ {
		if err := loadChunksInto(backend, chunksPartition(i), f.codec, f.levels[i]); err != nil {
			return nil, err
		}
		dirtyCount := 0
		err := backend.ForEach(dirtyPartition(i), func(key, value []byte) error {
			dirtyCount++
			if len(key) != 8 {
				return bloomerr.Codecf(nil, "malformed dirty chunk key length %d", len(key))
			}
			return f.codec.ApplyChunk(f.levels[i], binary.BigEndian.Uint64(key), value)
		})
		if err != nil {
			return nil, err
		}
		if dirtyCount > 0 && i != int(cur) {
			f.logger.Warn("DirtyOnFrozen", "level", i, "dirty_chunks", dirtyCount)
		}
	}

	f.logger.Info("expiring filter loaded", "m", params.M, "k", params.K, "current_level", cur)
	return f, nil
}

func loadChunksInto(backend store.PartitionedStore, partition string, c *bitset.ChunkCodec, v *bitset.Vector) error {
	return backend.ForEach(partition, func(key, value []byte) error {
		if len(key) != 8 {
			return bloomerr.Codecf(nil, "malformed chunk key length %d in partition %s", len(key), partition)
		}
		return c.ApplyChunk(v, binary.BigEndian.Uint64(key), value)
	})
}

// CreateOrLoad loads an existing, matching persisted filter, or creates a
// new one if none exists.
func CreateOrLoad(cfg Config, backend store.PartitionedStore, logger *slog.Logger) (*Filter, error) {
	if backend != nil {
		raw, ok, err := backend.Get(partitionConfig, []byte(singleKey))
		if err != nil {
			return nil, err
		}
		if ok {
			existing, err := DecodeConfig(raw)
			if err == nil &&
				existing.CapacityPerLevel == cfg.CapacityPerLevel &&
				existing.TargetFPR == cfg.TargetFPR &&
				existing.NumLevels == cfg.NumLevels &&
				existing.LevelDurationMS == cfg.LevelDurationMS {
				return Load(backend, logger)
			}
		}
	}
	return Create(cfg, backend, logger)
}

// CurrentLevel returns the index of the writable level.
func (f *Filter) CurrentLevel() int { return int(f.currentLevel.Load()) }

// State returns the filter's lifecycle state.
func (f *Filter) State() State { return State(f.state.Load()) }

// Metadata returns a copy of the per-level metadata.
func (f *Filter) Metadata() []LevelMetadata {
	f.metaMu.RLock()
	defer f.metaMu.RUnlock()
	out := make([]LevelMetadata, len(f.meta))
	copy(out, f.meta)
	return out
}

// Insert writes key into the current level only (spec.md §4.4).
func (f *Filter) Insert(key []byte) error {
	if f.State() == Closed {
		return bloomerr.ErrClosed
	}
	cur := int(f.currentLevel.Load())

	indices, err := hashkernel.Indices(key, f.params.K, f.params.M)
	if err != nil {
		return err
	}

	f.levelMus[cur].Lock()
	for _, idx := range indices {
		f.levels[cur].Set(idx, true)
	}
	f.levelMus[cur].Unlock()

	chunkBytes := f.codec.ChunkSizeBytes()
	chunkIDs := make(map[uint64]struct{}, len(indices))
	for _, idx := range indices {
		chunkIDs[idx/8/chunkBytes] = struct{}{}
	}
	f.dirtyMu.Lock()
	for id := range chunkIDs {
		f.dirty.Mark(id)
	}
	f.dirtyMu.Unlock()

	f.metaMu.Lock()
	f.meta[cur].InsertCount++
	f.metaMu.Unlock()

	return nil
}

// Contains returns true iff any level reports the key present. Iteration
// order is unspecified (spec.md §4.4); short-circuits on first hit.
func (f *Filter) Contains(key []byte) (bool, error) {
	if f.State() == Closed {
		return false, bloomerr.ErrClosed
	}
	indices, err := hashkernel.Indices(key, f.params.K, f.params.M)
	if err != nil {
		return false, err
	}

	for i := range f.levels {
		if f.levelContains(i, indices) {
			return true, nil
		}
	}
	return false, nil
}

func (f *Filter) levelContains(level int, indices []uint64) bool {
	f.levelMus[level].RLock()
	defer f.levelMus[level].RUnlock()
	for _, idx := range indices {
		if !f.levels[level].Get(idx) {
			return false
		}
	}
	return true
}

// DueForRotation reports whether the current level has been active at
// least level_duration_ms.
func (f *Filter) DueForRotation() bool {
	f.metaMu.RLock()
	createdAt := f.meta[f.currentLevel.Load()].CreatedAtMS
	f.metaMu.RUnlock()
	return nowMS()-createdAt >= f.cfg.LevelDurationMS
}

// Snapshot performs an incremental snapshot of the current level: only
// chunks dirtied since the last snapshot (or rotation) are written, into
// that level's dirty partition (spec.md §4.4). A no-op if there is no
// backend or nothing is dirty.
func (f *Filter) Snapshot() error {
	if f.State() == Closed {
		return bloomerr.ErrClosed
	}
	if f.backend == nil {
		return nil
	}

	f.state.Store(int32(Snapshotting))
	defer f.state.Store(int32(Active))

	cur := int(f.currentLevel.Load())

	f.dirtyMu.Lock()
	dirtyIDs := f.dirty.TakeAndClear()
	f.dirtyMu.Unlock()

	if len(dirtyIDs) == 0 {
		return nil
	}
	sort.Slice(dirtyIDs, func(i, j int) bool { return dirtyIDs[i] < dirtyIDs[j] })

	var failed []uint64
	var firstErr error
	for _, id := range dirtyIDs {
		f.levelMus[cur].RLock()
		data, err := f.codec.ChunkOf(f.levels[cur], id)
		f.levelMus[cur].RUnlock()
		if err != nil {
			failed = append(failed, id)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := f.backend.Put(dirtyPartition(cur), chunkKey(id), data); err != nil {
			failed = append(failed, id)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(failed) > 0 {
		f.dirtyMu.Lock()
		f.dirty.Restore(failed)
		f.dirtyMu.Unlock()
		return bloomerr.SnapshotPartialErr(failed, firstErr)
	}

	f.metaMu.Lock()
	f.meta[cur].LastSnapshotAtMS = nowMS()
	snapshot := make([]LevelMetadata, len(f.meta))
	copy(snapshot, f.meta)
	f.metaMu.Unlock()

	if err := f.backend.Put(partitionLevelMetadata, []byte(singleKey), EncodeLevelMetadataVec(snapshot)); err != nil {
		return err
	}

	f.logger.Info("incremental snapshot complete", "level", cur, "chunks", len(dirtyIDs))
	return nil
}

// freezeCurrent performs a full snapshot of level, writing every chunk to
// its chunks partition (not just dirty ones — a concurrent insert racing
// the copy is covered because the copy is taken under each chunk's own
// read latch at write time), then clears its dirty partition. After this,
// level's persisted state matches its in-memory state.
func (f *Filter) freezeCurrent(level int) error {
	if f.backend == nil {
		return nil
	}

	f.levelMus[level].RLock()
	chunks := f.codec.IterChunks(f.levels[level])
	f.levelMus[level].RUnlock()

	partition := chunksPartition(level)
	group, _ := errgroup.WithContext(context.Background())
	group.SetLimit(chunkWriteConcurrency)
	for _, c := range chunks {
		c := c
		group.Go(func() error {
			return f.backend.Put(partition, chunkKey(c.ID), c.Bytes)
		})
	}
	if err := group.Wait(); err != nil {
		return bloomerr.Storagef(err, true, "freeze level %d", level)
	}

	if err := f.backend.DeleteAll(dirtyPartition(level)); err != nil {
		return err
	}
	return nil
}

// clearAndEvict zeroes level in memory, then deletes its persisted chunks
// and dirty partitions in parallel (spec.md §4.4 steps 3-4).
func (f *Filter) clearAndEvict(level int) error {
	f.levelMus[level].Lock()
	f.levels[level].Fill(false)
	f.levelMus[level].Unlock()

	if f.backend == nil {
		return nil
	}

	group, _ := errgroup.WithContext(context.Background())
	group.Go(func() error { return f.backend.DeleteAll(chunksPartition(level)) })
	group.Go(func() error { return f.backend.DeleteAll(dirtyPartition(level)) })
	if err := group.Wait(); err != nil {
		return bloomerr.Storagef(err, true, "evict level %d", level)
	}
	return nil
}

func (f *Filter) persistMetadataAndPointer(level int) error {
	if f.backend == nil {
		return nil
	}
	f.metaMu.RLock()
	snapshot := make([]LevelMetadata, len(f.meta))
	copy(snapshot, f.meta)
	f.metaMu.RUnlock()

	if err := f.backend.Put(partitionLevelMetadata, []byte(singleKey), EncodeLevelMetadataVec(snapshot)); err != nil {
		return err
	}
	return f.backend.Put(partitionCurrentLevel, []byte(singleKey), []byte{byte(level)})
}

// Rotate runs the seven-step rotation protocol of spec.md §4.4. At most one
// rotation is in flight at a time.
func (f *Filter) Rotate() error {
	if f.State() == Closed {
		return bloomerr.ErrClosed
	}

	f.rotationMu.Lock()
	defer f.rotationMu.Unlock()

	f.state.Store(int32(Rotating))
	defer f.state.Store(int32(Active))

	cur := int(f.currentLevel.Load())
	newCur := (cur + 1) % int(f.cfg.NumLevels)

	// Step 1: freeze current.
	if err := f.freezeCurrent(cur); err != nil {
		return bloomerr.RotationAbortedf("freeze level %d: %v", cur, err)
	}

	// Step 2: advance pointer (computed above as newCur, not yet published).

	// Step 3: clear new current in memory, step 4: delete it on disk.
	if err := f.clearAndEvict(newCur); err != nil {
		return bloomerr.RotationAbortedf("evict level %d: %v", newCur, err)
	}

	// Step 5: reset metadata for the new current.
	now := nowMS()
	f.metaMu.Lock()
	f.meta[newCur] = LevelMetadata{CreatedAtMS: now}
	f.metaMu.Unlock()

	// Step 6: persist metadata and pointer.
	if err := f.persistMetadataAndPointer(newCur); err != nil {
		return bloomerr.RotationAbortedf("persist metadata/pointer: %v", err)
	}

	// Step 7: publish.
	f.currentLevel.Store(uint32(newCur))
	f.dirtyMu.Lock()
	f.dirty.Clear()
	f.dirtyMu.Unlock()

	f.logger.Info("rotation complete", "from", cur, "to", newCur)
	return nil
}

// RotateIfDue rotates if the current level has exceeded level_duration_ms.
func (f *Filter) RotateIfDue() error {
	if !f.DueForRotation() {
		return nil
	}
	return f.Rotate()
}

// Close marks the filter closed. A final incremental Snapshot of the current
// level, if desired, is the caller's responsibility before calling Close.
// The backend is left open: it belongs to the caller that supplied it, and
// can be handed to Load or CreateOrLoad again.
func (f *Filter) Close() error {
	f.state.Store(int32(Closed))
	return nil
}
