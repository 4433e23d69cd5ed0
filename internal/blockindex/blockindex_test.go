package blockindex_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hutomosaktikartiko/patchly/internal/blockindex"
	"github.com/hutomosaktikartiko/patchly/internal/digest"
	"github.com/hutomosaktikartiko/patchly/internal/rollhash"
)

func fingerprint(block []byte) uint32 {
	var h rollhash.Hash

	h.Reset(block)

	return h.Sum()
}

func TestBuilder_IndexesAlignedBlocksOnly(t *testing.T) {
	t.Parallel()

	opts := blockindex.Options{BlockSize: 4}
	bld := blockindex.NewBuilder(opts)

	// 4 + 4 + 3 (partial tail, unindexed).
	bld.AddChunk([]byte("AAAABBBBCCC"))
	idx := bld.Finalize()

	candA := idx.Lookup(fingerprint([]byte("AAAA")))
	require.Len(t, candA, 1)
	require.Equal(t, uint64(0), candA[0].Offset)
	require.Equal(t, digest.Sum([]byte("AAAA")), candA[0].Digest)

	candB := idx.Lookup(fingerprint([]byte("BBBB")))
	require.Len(t, candB, 1)
	require.Equal(t, uint64(4), candB[0].Offset)

	// Partial tail "CCC" must not be reachable via any fingerprint lookup.
	candC := idx.Lookup(fingerprint([]byte("CCC!"))) // not a real block anyway
	require.Empty(t, candC)
}

func TestBuilder_ChunkBoundariesDoNotAffectResult(t *testing.T) {
	t.Parallel()

	source := []byte("0123456789abcdefghij") // 20 bytes, block=4 -> 5 blocks

	whole := blockindex.NewBuilder(blockindex.Options{BlockSize: 4})
	whole.AddChunk(source)
	idxWhole := whole.Finalize()

	chunked := blockindex.NewBuilder(blockindex.Options{BlockSize: 4})
	chunked.AddChunk(source[:3])
	chunked.AddChunk(source[3:7])
	chunked.AddChunk(source[7:11])
	chunked.AddChunk(source[11:])
	idxChunked := chunked.Finalize()

	require.Equal(t, idxWhole.Len(), idxChunked.Len())

	for off := 0; off+4 <= len(source); off += 4 {
		block := source[off : off+4]
		fp := fingerprint(block)

		if diff := cmp.Diff(idxWhole.Lookup(fp), idxChunked.Lookup(fp)); diff != "" {
			t.Errorf("candidates differ by chunking (-whole +chunked):\n%s", diff)
		}
	}
}

func TestBuilder_InsertionOrderAscendingOffsets(t *testing.T) {
	t.Parallel()

	// Two identical blocks at different offsets must both be retained, in
	// ascending-offset order, up to the bucket cap.
	opts := blockindex.Options{BlockSize: 4, BucketCap: 8}
	bld := blockindex.NewBuilder(opts)
	bld.AddChunk([]byte("AAAA" + "BBBB" + "AAAA" + "AAAA"))
	idx := bld.Finalize()

	cand := idx.Lookup(fingerprint([]byte("AAAA")))
	require.Len(t, cand, 3)
	require.Equal(t, uint64(0), cand[0].Offset)
	require.Equal(t, uint64(8), cand[1].Offset)
	require.Equal(t, uint64(12), cand[2].Offset)
}

func TestBuilder_BucketCapTruncatesPathologicalCollisions(t *testing.T) {
	t.Parallel()

	opts := blockindex.Options{BlockSize: 4, BucketCap: 2}
	bld := blockindex.NewBuilder(opts)

	for i := 0; i < 10; i++ {
		bld.AddChunk([]byte("ZZZZ"))
	}

	idx := bld.Finalize()

	cand := idx.Lookup(fingerprint([]byte("ZZZZ")))
	require.Len(t, cand, 2)
	require.Equal(t, uint64(0), cand[0].Offset)
	require.Equal(t, uint64(4), cand[1].Offset)
}

func TestBuilder_EmptySource(t *testing.T) {
	t.Parallel()

	bld := blockindex.NewBuilder(blockindex.DefaultOptions())
	idx := bld.Finalize()

	require.Equal(t, 0, idx.Len())
	require.Empty(t, idx.Lookup(0))
}

func TestBuilder_DefaultOptionsAppliedWhenZero(t *testing.T) {
	t.Parallel()

	idx := blockindex.NewBuilder(blockindex.Options{}).Finalize()
	require.Equal(t, blockindex.DefaultBlockSize, idx.BlockSize())
}
