// Package standardbloom implements the standard (non-expiring) Bloom filter
// of spec.md §4.3: single/bulk insert and contains, dirty-chunk tracking,
// and incremental snapshot/load against an opaque store.PartitionedStore.
package standardbloom

import (
	"encoding/binary"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"bloomkeep/bloomerr"
	"bloomkeep/internal/bitset"
	"bloomkeep/internal/hashkernel"
	"bloomkeep/internal/logging"
	"bloomkeep/internal/sizing"
	"bloomkeep/internal/store"
)

const (
	partitionConfig = "config"
	partitionChunks = "chunks"
	configKey       = "config"

	defaultChunkSizeBytes = 4096
)

// Filter is the standard Bloom filter. All public methods take a shared
// receiver and are safe for concurrent use; Filter encapsulates its own
// latches per spec.md §5 rather than requiring external locking.
type Filter struct {
	cfg    Config
	params sizing.Params
	codec  *bitset.ChunkCodec

	bitsMu sync.RWMutex
	bits   *bitset.Vector

	dirtyMu sync.Mutex
	dirty   *bitset.DirtySet

	insertCount atomic.Uint64
	closed      atomic.Bool

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

	f := &Filter{
		cfg:     cfg,
		params:  params,
		codec:   chunkCodec,
		bits:    bitset.New(params.M),
		backend: backend,
		logger:  logging.Default(logger).With("component", "standardbloom"),
	}
	numChunks := chunkCodec.NumChunks(bitset.ByteLen(params.M))
	f.dirty = bitset.NewDirtySet(numChunks)
	return f, nil
}

// Create allocates a new filter from cfg. If backend is non-nil, cfg must
// carry a Persistence descriptor (chunk_size_bytes); the config blob and an
// empty chunk set are written immediately.
func Create(cfg Config, backend store.PartitionedStore, logger *slog.Logger) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend != nil && cfg.Persistence == nil {
		return nil, bloomerr.InvalidParamsf("persistence config required when a backend is supplied")
	}

	params, err := sizing.Derive(cfg.ExpectedItems, cfg.TargetFPR)
	if err != nil {
		return nil, err
	}

	f, err := newFilter(cfg, params, backend, logger)
	if err != nil {
		return nil, err
	}

	if backend != nil {
		if err := backend.DeleteAll(partitionChunks); err != nil {
			return nil, err
		}
		if err := backend.Put(partitionConfig, []byte(configKey), cfg.Encode()); err != nil {
			return nil, err
		}
	}

	f.logger.Info("filter created", "m", params.M, "k", params.K, "persisted", backend != nil)
	return f, nil
}

// Load reconstructs a filter from a backend previously written by Create or
// Snapshot. The bit vector starts at all zeros and is overlaid with every
// chunk found in the chunks partition, in key order; chunks never written
// remain zero (spec.md §4.3 recovery).
func Load(backend store.PartitionedStore, logger *slog.Logger) (*Filter, error) {
	if backend == nil {
		return nil, bloomerr.InvalidParamsf("load requires a backend")
	}

	raw, ok, err := backend.Get(partitionConfig, []byte(configKey))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bloomerr.Codecf(nil, "no config found at partition=%s key=%s", partitionConfig, configKey)
	}
	cfg, err := DecodeConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	params, err := sizing.Derive(cfg.ExpectedItems, cfg.TargetFPR)
	if err != nil {
		return nil, err
	}

	f, err := newFilter(cfg, params, backend, logger)
	if err != nil {
		return nil, err
	}

	if err := loadChunksInto(backend, partitionChunks, f.codec, f.bits); err != nil {
		return nil, err
	}

	f.logger.Info("filter loaded", "m", params.M, "k", params.K)
	return f, nil
}

// loadChunksInto overlays every chunk in partition (visited in ascending
// key order, which for 8-byte-big-endian keys is ascending chunk id order)
// onto v.
func loadChunksInto(backend store.PartitionedStore, partition string, c *bitset.ChunkCodec, v *bitset.Vector) error {
	return backend.ForEach(partition, func(key, value []byte) error {
		if len(key) != 8 {
			return bloomerr.Codecf(nil, "malformed chunk key length %d in partition %s", len(key), partition)
		}
		chunkID := binary.BigEndian.Uint64(key)
		return c.ApplyChunk(v, chunkID, value)
	})
}

// CreateOrLoad loads an existing, matching persisted filter, or creates a
// new one if none exists.
func CreateOrLoad(cfg Config, backend store.PartitionedStore, logger *slog.Logger) (*Filter, error) {
	if backend != nil {
		raw, ok, err := backend.Get(partitionConfig, []byte(configKey))
		if err != nil {
			return nil, err
		}
		if ok {
			existing, err := DecodeConfig(raw)
			if err == nil && existing.ExpectedItems == cfg.ExpectedItems && existing.TargetFPR == cfg.TargetFPR {
				return Load(backend, logger)
			}
		}
	}
	return Create(cfg, backend, logger)
}

func chunkKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

// Insert computes the k bit positions for key and sets them. Idempotent:
// inserting the same key twice leaves the bit vector unchanged beyond the
// first call, though InsertCount still advances both times.
func (f *Filter) Insert(key []byte) error {
	if f.closed.Load() {
		return bloomerr.ErrClosed
	}
	indices, err := hashkernel.Indices(key, f.params.K, f.params.M)
	if err != nil {
		return err
	}

	f.bitsMu.Lock()
	for _, idx := range indices {
		f.bits.Set(idx, true)
	}
	f.bitsMu.Unlock()

	f.markDirty(indices)
	f.insertCount.Add(1)
	return nil
}

// Contains reports whether key may have been inserted. False positives are
// possible; false negatives are not (absent data loss).
func (f *Filter) Contains(key []byte) (bool, error) {
	if f.closed.Load() {
		return false, bloomerr.ErrClosed
	}
	indices, err := hashkernel.Indices(key, f.params.K, f.params.M)
	if err != nil {
		return false, err
	}

	f.bitsMu.RLock()
	defer f.bitsMu.RUnlock()
	for _, idx := range indices {
		if !f.bits.Get(idx) {
			return false, nil
		}
	}
	return true, nil
}

// InsertBulk computes indices for every key up front, then applies all sets
// under a single write-latch acquisition, so concurrent readers observe
// either all of the batch or none of it (spec.md §5(iii)).
func (f *Filter) InsertBulk(keys [][]byte) error {
	if f.closed.Load() {
		return bloomerr.ErrClosed
	}
	allIndices := make([][]uint64, len(keys))
	for i, key := range keys {
		indices, err := hashkernel.Indices(key, f.params.K, f.params.M)
		if err != nil {
			return err
		}
		allIndices[i] = indices
	}

	f.bitsMu.Lock()
	for _, indices := range allIndices {
		for _, idx := range indices {
			f.bits.Set(idx, true)
		}
	}
	f.bitsMu.Unlock()

	for _, indices := range allIndices {
		f.markDirty(indices)
	}
	f.insertCount.Add(uint64(len(keys)))
	return nil
}

// ContainsBulk is the read-side symmetric counterpart of InsertBulk: one
// read-latch acquisition covers the whole batch.
func (f *Filter) ContainsBulk(keys [][]byte) ([]bool, error) {
	if f.closed.Load() {
		return nil, bloomerr.ErrClosed
	}
	allIndices := make([][]uint64, len(keys))
	for i, key := range keys {
		indices, err := hashkernel.Indices(key, f.params.K, f.params.M)
		if err != nil {
			return nil, err
		}
		allIndices[i] = indices
	}

	results := make([]bool, len(keys))
	f.bitsMu.RLock()
	for i, indices := range allIndices {
		present := true
		for _, idx := range indices {
			if !f.bits.Get(idx) {
				present = false
				break
			}
		}
		results[i] = present
	}
	f.bitsMu.RUnlock()
	return results, nil
}

// Clear zeroes the bit vector, marks every chunk dirty so a subsequent
// snapshot propagates the zeroing, and resets InsertCount.
func (f *Filter) Clear() error {
	if f.closed.Load() {
		return bloomerr.ErrClosed
	}
	f.bitsMu.Lock()
	f.bits.Fill(false)
	f.bitsMu.Unlock()

	f.dirtyMu.Lock()
	f.dirty.MarkAll()
	f.dirtyMu.Unlock()

	f.insertCount.Store(0)
	return nil
}

// InsertCount returns the number of Insert/InsertBulk calls applied so far
// (each bulk key counts individually).
func (f *Filter) InsertCount() uint64 { return f.insertCount.Load() }

// Params returns the derived (m, k) for this filter.
func (f *Filter) Params() sizing.Params { return f.params }

func (f *Filter) markDirty(indices []uint64) {
	chunkIDs := make(map[uint64]struct{}, len(indices))
	for _, idx := range indices {
		chunkIDs[idx/8/chunkBytesOf(f.codec)] = struct{}{}
	}
	f.dirtyMu.Lock()
	for id := range chunkIDs {
		f.dirty.Mark(id)
	}
	f.dirtyMu.Unlock()
}

// chunkBytesOf extracts the codec's chunk size, used to map a bit index to
// its owning chunk id without exposing the codec's internals.
func chunkBytesOf(c *bitset.ChunkCodec) uint64 {
	return c.ChunkSizeBytes()
}

// Snapshot persists every chunk touched since the last successful snapshot
// (spec.md §4.3). It copies and clears the dirty set first, then writes;
// chunks that fail to write are re-marked dirty and reported via
// bloomerr.SnapshotPartial so the next snapshot retries them.
func (f *Filter) Snapshot() error {
	if f.closed.Load() {
		return bloomerr.ErrClosed
	}
	if f.backend == nil {
		return nil
	}

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
		f.bitsMu.RLock()
		data, err := f.codec.ChunkOf(f.bits, id)
		f.bitsMu.RUnlock()
		if err != nil {
			failed = append(failed, id)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := f.backend.Put(partitionChunks, chunkKey(id), data); err != nil {
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

	f.logger.Info("snapshot complete", "chunks", len(dirtyIDs))
	return nil
}

// Close marks the filter closed. Further operations return bloomerr.Closed.
// A final Snapshot, if desired, is the caller's responsibility and should
// be called before Close. The backend is left open: it belongs to the caller
// that supplied it, and can be handed to Load or CreateOrLoad again.
func (f *Filter) Close() error {
	f.closed.Store(true)
	return nil
}
