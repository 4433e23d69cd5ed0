package differ_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hutomosaktikartiko/patchly/internal/differ"
	"github.com/hutomosaktikartiko/patchly/internal/patch"
)

// memStore is a trivial in-memory random-access store, good enough to stand
// in for a host-backed bytestore.FileStore in these tests.
type memStore struct {
	data []byte
}

func (m *memStore) ReadAt(buf []byte, at int64) (int, error) {
	if at < 0 || at > int64(len(m.data)) {
		return 0, nil
	}

	n := copy(buf, m.data[at:])

	return n, nil
}

func (m *memStore) Write(buf []byte) (int, error) {
	m.data = append(m.data, buf...)

	return len(buf), nil
}

func (m *memStore) Size() (int64, error) { return int64(len(m.data)), nil }
func (m *memStore) Close() error         { return nil }

// patchStore adapts a plain []byte as a patch.Store for the decoder.
type patchStore struct{ data []byte }

func (p *patchStore) ReadAt(buf []byte, at int64) (int, error) {
	n := copy(buf, p.data[at:])

	return n, nil
}

// buildPatch diffs source against target using a fresh Builder and returns
// the complete patch container bytes.
func buildPatch(t *testing.T, opts differ.Options, source, target []byte) []byte {
	t.Helper()

	src := &memStore{data: append([]byte(nil), source...)}
	b := differ.NewBuilder(opts, src)

	const sourceChunk = 7

	for i := 0; i < len(source); i += sourceChunk {
		end := i + sourceChunk
		if end > len(source) {
			end = len(source)
		}

		require.NoError(t, b.AddSourceChunk(source[i:end]))
	}

	require.NoError(t, b.FinalizeSource())
	require.NoError(t, b.SetTargetSize(uint64(len(target))))

	const targetChunk = 5

	for i := 0; i < len(target); i += targetChunk {
		end := i + targetChunk
		if end > len(target) {
			end = len(target)
		}

		require.NoError(t, b.AddTargetChunk(target[i:end]))
	}

	require.NoError(t, b.FinalizeTarget())

	var out bytes.Buffer
	for b.HasOutput() {
		out.Write(b.FlushOutput(17))
	}

	return out.Bytes()
}

// applyPatch reconstructs the target bytes from a patch container and the
// original source, independent of the applier package, so
// these tests exercise only the differ's correctness.
func applyPatch(t *testing.T, patchBytes, source []byte) []byte {
	t.Helper()

	hdr, err := patch.ParseHeader(patchBytes[:patch.HeaderSize])
	require.NoError(t, err)

	dec := patch.NewDecoder(&patchStore{data: patchBytes}, patch.HeaderSize, int64(len(patchBytes)))

	out := make([]byte, 0, hdr.TargetSize)

	for !dec.Done() {
		inst, err := dec.NextInstruction()
		require.NoError(t, err)

		switch inst.Op {
		case patch.OpCopy:
			out = append(out, source[inst.SrcOff:inst.SrcOff+uint64(inst.Len)]...)
		case patch.OpInsert:
			out = append(out, inst.Inline...)
		}
	}

	return out
}

func TestBuilder_RoundTrip_EmptyToEmpty(t *testing.T) {
	t.Parallel()

	p := buildPatch(t, differ.DefaultOptions(), nil, nil)
	got := applyPatch(t, p, nil)
	require.Empty(t, got)
}

func TestBuilder_RoundTrip_EmptyToNonEmpty(t *testing.T) {
	t.Parallel()

	target := []byte("hello, world")
	p := buildPatch(t, differ.DefaultOptions(), nil, target)
	got := applyPatch(t, p, nil)
	require.Equal(t, target, got)
}

func TestBuilder_RoundTrip_NonEmptyToEmpty(t *testing.T) {
	t.Parallel()

	source := []byte("some source bytes here")
	p := buildPatch(t, differ.DefaultOptions(), source, nil)
	got := applyPatch(t, p, source)
	require.Empty(t, got)
}

func TestBuilder_RoundTrip_SingleByteEditInSmallSource(t *testing.T) {
	t.Parallel()

	source := []byte("abc")
	target := []byte("abX")

	opts := differ.Options{BlockSize: 1, BucketCap: 4, MaxLiteral: 16}
	p := buildPatch(t, opts, source, target)
	got := applyPatch(t, p, source)
	require.Equal(t, target, got)
}

func TestBuilder_RoundTrip_BlockReorder(t *testing.T) {
	t.Parallel()

	opts := differ.Options{BlockSize: 4, BucketCap: 8, MaxLiteral: 64}

	blockA := []byte("AAAA")
	blockB := []byte("BBBB")
	blockC := []byte("CCCC")

	source := append(append(append([]byte{}, blockA...), blockB...), blockC...)
	target := append(append(append([]byte{}, blockC...), blockA...), blockB...)

	p := buildPatch(t, opts, source, target)
	got := applyPatch(t, p, source)
	require.Equal(t, target, got)
}

func TestBuilder_RoundTrip_UnalignedMatch(t *testing.T) {
	t.Parallel()

	opts := differ.Options{BlockSize: 4, BucketCap: 8, MaxLiteral: 64}

	source := []byte("0123456789ABCDEF")
	// target's matching region starts two bytes off the nearest block boundary.
	target := []byte("XY23456789ABCDEFZZ")

	p := buildPatch(t, opts, source, target)
	got := applyPatch(t, p, source)
	require.Equal(t, target, got)
}

func TestBuilder_RoundTrip_UnalignedMatch_ExactInstructionShape(t *testing.T) {
	t.Parallel()

	// spec scenario 6: source = 8192 random-ish bytes, target = X ++
	// source[1:], where X is one byte that doesn't reappear as a source
	// prefix. Without backward extension this lands on the next block
	// boundary late; with it, the match must back up to swallow the whole
	// shifted tail into a single COPY right after a one-byte INSERT.
	const n = 8192

	source := make([]byte, n)
	seed := uint32(0x2545f491)

	for i := range source {
		seed = seed*1664525 + 1013904223
		source[i] = byte(seed >> 24)
	}

	target := make([]byte, 0, n)
	target = append(target, 0xAB)
	target = append(target, source[1:]...)

	opts := differ.Options{BlockSize: 64, BucketCap: 8, MaxLiteral: 256}
	p := buildPatch(t, opts, source, target)

	dec := patch.NewDecoder(&patchStore{data: p}, patch.HeaderSize, int64(len(p)))

	var insts []patch.Instruction

	for !dec.Done() {
		inst, err := dec.NextInstruction()
		require.NoError(t, err)

		insts = append(insts, inst)
	}

	require.Len(t, insts, 2)

	require.Equal(t, byte(patch.OpInsert), insts[0].Op)
	require.Equal(t, []byte{0xAB}, insts[0].Inline)

	require.Equal(t, byte(patch.OpCopy), insts[1].Op)
	require.Equal(t, uint64(1), insts[1].SrcOff)
	require.Equal(t, uint32(n-1), insts[1].Len)

	got := applyPatch(t, p, source)
	require.Equal(t, target, got)
}

func TestBuilder_RoundTrip_LargeRandomish(t *testing.T) {
	t.Parallel()

	source := make([]byte, 50_000)
	for i := range source {
		source[i] = byte(i * 7 % 251)
	}

	target := append([]byte{}, source[1000:40000]...)
	target = append(target, []byte("INSERTED-TAIL-DATA-THAT-DOES-NOT-MATCH-SOURCE")...)
	target = append(target, source[0:1000]...)

	opts := differ.Options{BlockSize: 256, BucketCap: 8, MaxLiteral: 4096}
	p := buildPatch(t, opts, source, target)
	got := applyPatch(t, p, source)
	require.Equal(t, target, got)
}

func TestBuilder_Determinism_TwoBuildsMatch(t *testing.T) {
	t.Parallel()

	source := []byte("the quick brown fox jumps over the lazy dog, the quick brown fox")
	target := []byte("the slow brown fox jumps over the lazy dog, the quick brown fox!")

	p1 := buildPatch(t, differ.DefaultOptions(), source, target)
	p2 := buildPatch(t, differ.DefaultOptions(), source, target)

	require.Equal(t, p1, p2)
}

func TestBuilder_AreFilesIdentical(t *testing.T) {
	t.Parallel()

	data := []byte("identical bytes on both sides")

	src := &memStore{data: append([]byte(nil), data...)}
	b := differ.NewBuilder(differ.DefaultOptions(), src)

	require.NoError(t, b.AddSourceChunk(data))
	require.NoError(t, b.FinalizeSource())
	require.NoError(t, b.SetTargetSize(uint64(len(data))))
	require.NoError(t, b.AddTargetChunk(data))
	require.NoError(t, b.FinalizeTarget())

	require.True(t, b.AreFilesIdentical())
}

func TestBuilder_AreFilesIdentical_DifferentSize(t *testing.T) {
	t.Parallel()

	src := &memStore{data: []byte("abc")}
	b := differ.NewBuilder(differ.DefaultOptions(), src)

	require.NoError(t, b.AddSourceChunk([]byte("abc")))
	require.NoError(t, b.FinalizeSource())
	require.NoError(t, b.SetTargetSize(4))
	require.NoError(t, b.AddTargetChunk([]byte("abcd")))
	require.NoError(t, b.FinalizeTarget())

	require.False(t, b.AreFilesIdentical())
}

func TestBuilder_UsageErrors(t *testing.T) {
	t.Parallel()

	src := &memStore{data: []byte("abc")}
	b := differ.NewBuilder(differ.DefaultOptions(), src)

	require.Error(t, b.SetTargetSize(3)) // source not finalized yet
	require.Error(t, b.AddTargetChunk([]byte("x")))

	require.NoError(t, b.AddSourceChunk([]byte("abc")))
	require.NoError(t, b.FinalizeSource())
	require.NoError(t, b.SetTargetSize(3))
	require.Error(t, b.SetTargetSize(3)) // called twice
}

func TestBuilder_FinalizeTarget_LengthMismatch(t *testing.T) {
	t.Parallel()

	src := &memStore{data: []byte("abc")}
	b := differ.NewBuilder(differ.DefaultOptions(), src)

	require.NoError(t, b.AddSourceChunk([]byte("abc")))
	require.NoError(t, b.FinalizeSource())
	require.NoError(t, b.SetTargetSize(10))
	require.NoError(t, b.AddTargetChunk([]byte("abc")))
	require.Error(t, b.FinalizeTarget())
}
