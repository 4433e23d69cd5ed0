// Package blockindex maps rolling-hash fingerprints of source blocks to the
// source offsets that produced them.
//
// Construction is a single append-only pass over the source (see [Builder]);
// the frozen [Index] is then a read-only, non-owning view consulted by the
// differ once per scanned B-byte target window. Memory is bounded by
// source_size/B, not by target size: each bucket holds at most the
// configured bucket cap ([DefaultBucketCap] by default) candidates, and each
// candidate carries its own per-block digest next to its offset.
package blockindex

import (
	"github.com/hutomosaktikartiko/patchly/internal/digest"
	"github.com/hutomosaktikartiko/patchly/internal/rollhash"
)

// DefaultBlockSize is B, the aligned block size in bytes.
const DefaultBlockSize = 4096

// DefaultBucketCap truncates pathological fingerprint collisions so lookup
// stays O(1) amortized even over adversarial sources.
const DefaultBucketCap = 8

// Options tunes the index away from its production defaults, primarily for
// tests that want small blocks without gigabyte fixtures.
type Options struct {
	BlockSize int
	BucketCap int
}

// DefaultOptions returns the spec's mandated defaults (B=4096, bucket cap 8).
func DefaultOptions() Options {
	return Options{BlockSize: DefaultBlockSize, BucketCap: DefaultBucketCap}
}

func (o Options) normalized() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}

	if o.BucketCap <= 0 {
		o.BucketCap = DefaultBucketCap
	}

	return o
}

// Candidate is one source offset recorded under a fingerprint, along with
// its per-block digest for O(1) disambiguation.
type Candidate struct {
	Offset uint64
	Digest uint64
}

// Index is the frozen, read-only result of a [Builder] run.
//
// Index holds no reference back to the source store: callers pass source
// bytes in once, at construction time, and from then on Index only ever
// returns previously recorded offsets and digests.
type Index struct {
	opts    Options
	buckets map[uint32][]Candidate
}

// Builder constructs an [Index] over a source stream in a single,
// append-only pass. It is not safe for concurrent use.
type Builder struct {
	opts Options

	buckets map[uint32][]Candidate

	// carry holds up to BlockSize-1 bytes left over from the previous
	// AddSourceChunk call, since source chunks need not align to B.
	carry []byte

	nextOffset uint64
	finalized  bool
}

// NewBuilder creates a Builder using opts (zero fields fall back to the
// spec defaults).
func NewBuilder(opts Options) *Builder {
	opts = opts.normalized()

	return &Builder{
		opts:    opts,
		buckets: make(map[uint32][]Candidate),
		carry:   make([]byte, 0, opts.BlockSize),
	}
}

// AddChunk feeds the next ordered slice of source bytes into the builder.
// Chunk boundaries need not align to the block size.
func (bld *Builder) AddChunk(chunk []byte) {
	if bld.finalized {
		return
	}

	bld.carry = append(bld.carry, chunk...)

	b := bld.opts.BlockSize
	for len(bld.carry) >= b {
		block := bld.carry[:b]
		bld.insert(block, bld.nextOffset)
		bld.nextOffset += uint64(b)
		bld.carry = append(bld.carry[:0], bld.carry[b:]...)
	}
}

// insert records one full B-byte block at off.
func (bld *Builder) insert(block []byte, off uint64) {
	var rh rollhash.Hash

	rh.Reset(block)
	fp := rh.Sum()

	d := digest.Sum(block)

	bucket := bld.buckets[fp]
	if len(bucket) >= bld.opts.BucketCap {
		return // pathological collision cap: degrade gracefully, not fatally
	}

	bld.buckets[fp] = append(bucket, Candidate{Offset: off, Digest: d})
}

// Finalize freezes the builder into an [Index]. The final partial block (if
// source_size mod B != 0) is intentionally left unindexed: its bytes are
// only reachable through INSERT. Finalize may be called once; subsequent
// calls return the same Index.
func (bld *Builder) Finalize() *Index {
	bld.finalized = true

	return &Index{opts: bld.opts, buckets: bld.buckets}
}

// BlockSize returns the block size this index was built with.
func (idx *Index) BlockSize() int {
	return idx.opts.BlockSize
}

// Lookup returns the recorded candidates for fingerprint fp, in ascending
// source-offset (insertion) order, or nil if fp was never recorded.
//
// The caller is expected to walk the slice in order and pick the first
// candidate whose digest matches its own computed window digest — that is
// the spec's deterministic, source-offset-ascending tie-break.
func (idx *Index) Lookup(fp uint32) []Candidate {
	return idx.buckets[fp]
}

// Len reports how many distinct fingerprints are indexed. Intended for
// diagnostics/tests, not for the hot path.
func (idx *Index) Len() int {
	return len(idx.buckets)
}
