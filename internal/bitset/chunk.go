package bitset

import (
	"bloomkeep/bloomerr"
)

// ChunkCodec slices a Vector's byte representation into fixed-size chunks,
// addressed by ascending chunk id, and reassembles a Vector from chunks
// (spec.md §4.2). The last chunk may be short.
type ChunkCodec struct {
	chunkBytes uint64
}

// NewChunkCodec returns a codec that divides byte arrays into chunkBytes-
// sized slices. chunkBytes must be > 0.
func NewChunkCodec(chunkBytes uint64) (*ChunkCodec, error) {
	if chunkBytes == 0 {
		return nil, bloomerr.InvalidParamsf("chunk_size_bytes must be > 0")
	}
	return &ChunkCodec{chunkBytes: chunkBytes}, nil
}

// ChunkSizeBytes returns the configured chunk size.
func (c *ChunkCodec) ChunkSizeBytes() uint64 { return c.chunkBytes }

// NumChunks returns the number of chunks a byte array of byteLen bytes
// divides into under this codec.
func (c *ChunkCodec) NumChunks(byteLen uint64) uint64 {
	if byteLen == 0 {
		return 0
	}
	return (byteLen + c.chunkBytes - 1) / c.chunkBytes
}

// Range returns the [start, end) byte offsets chunkID occupies within a
// byte array of byteLen bytes. Returns CorruptChunk if chunkID is out of
// range.
func (c *ChunkCodec) Range(chunkID, byteLen uint64) (start, end uint64, err error) {
	n := c.NumChunks(byteLen)
	if chunkID >= n {
		return 0, 0, bloomerr.CorruptChunkf("chunk id %d out of range [0,%d)", chunkID, n)
	}
	start = chunkID * c.chunkBytes
	end = start + c.chunkBytes
	if end > byteLen {
		end = byteLen
	}
	return start, end, nil
}

// Chunk is one (id, bytes) pair yielded by IterChunks.
type Chunk struct {
	ID    uint64
	Bytes []byte
}

// IterChunks returns every chunk of v's byte representation, in ascending
// id order. The returned byte slices are copies, safe to use after v is
// mutated.
func (c *ChunkCodec) IterChunks(v *Vector) []Chunk {
	data := v.Bytes()
	n := c.NumChunks(uint64(len(data)))
	chunks := make([]Chunk, 0, n)
	for id := uint64(0); id < n; id++ {
		start, end, err := c.Range(id, uint64(len(data)))
		if err != nil {
			// NumChunks and Range agree by construction; unreachable.
			continue
		}
		buf := make([]byte, end-start)
		copy(buf, data[start:end])
		chunks = append(chunks, Chunk{ID: id, Bytes: buf})
	}
	return chunks
}

// ChunkOf copies out a single chunk's bytes from v without allocating the
// full chunk slice IterChunks would. Used by the incremental snapshot path,
// which only needs the chunks named by the dirty set.
func (c *ChunkCodec) ChunkOf(v *Vector, chunkID uint64) ([]byte, error) {
	data := v.Bytes()
	start, end, err := c.Range(chunkID, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, end-start)
	copy(buf, data[start:end])
	return buf, nil
}

// ApplyChunk overwrites v's byte range for chunkID with data. Fails with
// CorruptChunk if chunkID is out of range or len(data) doesn't match the
// expected length for that id.
func (c *ChunkCodec) ApplyChunk(v *Vector, chunkID uint64, data []byte) error {
	vbytes := v.Bytes()
	start, end, err := c.Range(chunkID, uint64(len(vbytes)))
	if err != nil {
		return err
	}
	if uint64(len(data)) != end-start {
		return bloomerr.CorruptChunkf("chunk %d: expected %d bytes, got %d", chunkID, end-start, len(data))
	}
	copy(vbytes[start:end], data)
	return nil
}

// DirtySet tracks which chunks of a Vector have been modified since the
// last successful snapshot (spec.md §3's DirtyChunkSet). It is itself a
// Vector of length num_chunks; over-marking is correctness-preserving,
// under-marking is not (spec.md §9).
type DirtySet struct {
	bits *Vector
}

// NewDirtySet allocates a clean DirtySet sized for numChunks chunks.
func NewDirtySet(numChunks uint64) *DirtySet {
	return &DirtySet{bits: New(numChunks)}
}

// Mark flags chunkID as dirty.
func (d *DirtySet) Mark(chunkID uint64) {
	d.bits.Set(chunkID, true)
}

// MarkAll flags every chunk as dirty (used by Clear(), which zeroes the bit
// vector and must propagate that zeroing on the next snapshot).
func (d *DirtySet) MarkAll() {
	d.bits.Fill(true)
}

// TakeAndClear returns the ids of every currently-dirty chunk and clears
// the set, in that order — the two-phase "copy bits, then clear" spec.md
// §4.3 requires so that inserts racing a snapshot are never lost.
func (d *DirtySet) TakeAndClear() []uint64 {
	var ids []uint64
	for i := uint64(0); i < d.bits.Len(); i++ {
		if d.bits.Get(i) {
			ids = append(ids, i)
		}
	}
	d.bits.Fill(false)
	return ids
}

// Restore re-marks the given chunk ids as dirty. Used when a chunk write
// fails during snapshot and must be retried on the next pass.
func (d *DirtySet) Restore(ids []uint64) {
	for _, id := range ids {
		d.Mark(id)
	}
}

// Clear unconditionally zeroes the set. Used when a dirty-chunk set is
// repurposed for a new current level after rotation (spec.md §4.4 step 7).
func (d *DirtySet) Clear() {
	d.bits.Fill(false)
}
