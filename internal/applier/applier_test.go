package applier_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hutomosaktikartiko/patchly/internal/applier"
	"github.com/hutomosaktikartiko/patchly/internal/differ"
	"github.com/hutomosaktikartiko/patchly/internal/errs"
	"github.com/hutomosaktikartiko/patchly/internal/patch"
)

// memStore is a trivial in-memory random-access store for both source and
// output sides of an apply.
type memStore struct {
	data []byte
}

func (m *memStore) ReadAt(buf []byte, at int64) (int, error) {
	if at < 0 || at > int64(len(m.data)) {
		return 0, nil
	}

	return copy(buf, m.data[at:]), nil
}

func (m *memStore) Write(buf []byte) (int, error) {
	m.data = append(m.data, buf...)

	return len(buf), nil
}

func (m *memStore) Size() (int64, error) { return int64(len(m.data)), nil }
func (m *memStore) Close() error         { return nil }

type patchStore struct{ data []byte }

func (p *patchStore) ReadAt(buf []byte, at int64) (int, error) {
	if at < 0 || at > int64(len(p.data)) {
		return 0, nil
	}

	return copy(buf, p.data[at:]), nil
}

func buildPatchBytes(t *testing.T, source, target []byte) []byte {
	t.Helper()

	src := &memStore{data: append([]byte(nil), source...)}
	b := differ.NewBuilder(differ.DefaultOptions(), src)

	require.NoError(t, b.AddSourceChunk(source))
	require.NoError(t, b.FinalizeSource())
	require.NoError(t, b.SetTargetSize(uint64(len(target))))
	require.NoError(t, b.AddTargetChunk(target))
	require.NoError(t, b.FinalizeTarget())

	return b.FlushOutput(0)
}

func TestApplier_RoundTrip(t *testing.T) {
	t.Parallel()

	source := []byte("the quick brown fox jumps over the lazy dog")
	target := []byte("the quick brown FOX jumps over the lazy dog, yes indeed")

	p := buildPatchBytes(t, source, target)

	src := &memStore{data: append([]byte(nil), source...)}
	out := &memStore{}

	a := applier.NewApplier(&patchStore{data: p}, int64(len(p)), src)

	hdr, err := a.ParseHeader()
	require.NoError(t, err)
	require.Equal(t, uint64(len(target)), hdr.TargetSize)

	require.NoError(t, a.ValidateSource())
	require.NoError(t, a.ApplyTo(out))

	require.Equal(t, target, out.data)
}

func TestApplier_BadMagic(t *testing.T) {
	t.Parallel()

	p := buildPatchBytes(t, []byte("abc"), []byte("abc"))
	p[0] = 'X'

	a := applier.NewApplier(&patchStore{data: p}, int64(len(p)), &memStore{data: []byte("abc")})

	_, err := a.ParseHeader()
	require.ErrorIs(t, err, errs.ErrBadMagic)
}

func TestApplier_UnsupportedVersion(t *testing.T) {
	t.Parallel()

	p := buildPatchBytes(t, []byte("abc"), []byte("abc"))
	p[4] = 0x7F

	a := applier.NewApplier(&patchStore{data: p}, int64(len(p)), &memStore{data: []byte("abc")})

	_, err := a.ParseHeader()
	require.ErrorIs(t, err, errs.ErrUnsupportedVersion)
}

func TestApplier_SourceSizeMismatch(t *testing.T) {
	t.Parallel()

	source := []byte("0123456789")
	p := buildPatchBytes(t, source, []byte("0123456789X"))

	a := applier.NewApplier(&patchStore{data: p}, int64(len(p)), &memStore{data: source[:5]})

	_, err := a.ParseHeader()
	require.NoError(t, err)
	require.ErrorIs(t, a.ValidateSource(), errs.ErrSourceSizeMismatch)
}

func TestApplier_SourceDigestMismatch(t *testing.T) {
	t.Parallel()

	source := []byte("0123456789")
	p := buildPatchBytes(t, source, []byte("0123456789X"))

	flipped := append([]byte(nil), source...)
	flipped[3] ^= 0xFF

	a := applier.NewApplier(&patchStore{data: p}, int64(len(p)), &memStore{data: flipped})

	_, err := a.ParseHeader()
	require.NoError(t, err)
	require.ErrorIs(t, a.ValidateSource(), errs.ErrSourceDigestMismatch)
}

func TestApplier_TruncatedInstructionStream(t *testing.T) {
	t.Parallel()

	source := []byte("0123456789")
	target := []byte("0123456789 plus some extra literal tail bytes")
	p := buildPatchBytes(t, source, target)

	truncated := p[:len(p)-2]

	a := applier.NewApplier(&patchStore{data: truncated}, int64(len(truncated)), &memStore{data: source})

	_, err := a.ParseHeader()
	require.NoError(t, err)
	require.NoError(t, a.ValidateSource())

	err = a.ApplyTo(&memStore{})
	require.ErrorIs(t, err, errs.InputError)
}

func TestApplier_CopyOutOfRange(t *testing.T) {
	t.Parallel()

	source := []byte("0123456789")

	enc := patch.NewEncoder()
	require.NoError(t, enc.Begin(uint64(len(source)), 0, 5))
	require.NoError(t, enc.EmitCopy(8, 10)) // 8+10 > source size
	require.NoError(t, enc.End())
	bad := enc.FlushOutput(0)

	a := applier.NewApplier(&patchStore{data: bad}, int64(len(bad)), &memStore{data: source})

	hdr, err := a.ParseHeader()
	require.NoError(t, err)
	require.Equal(t, uint64(len(source)), hdr.SourceSize)

	err = a.ApplyTo(&memStore{})
	require.ErrorIs(t, err, errs.ErrCopyOutOfRange)
}

func TestApplier_LengthMismatch(t *testing.T) {
	t.Parallel()

	source := []byte("0123456789")

	enc := patch.NewEncoder()
	require.NoError(t, enc.Begin(uint64(len(source)), 0, 100))
	require.NoError(t, enc.EmitCopy(0, 5))
	require.NoError(t, enc.End())
	bad := enc.FlushOutput(0)

	a := applier.NewApplier(&patchStore{data: bad}, int64(len(bad)), &memStore{data: source})

	_, err := a.ParseHeader()
	require.NoError(t, err)

	err = a.ApplyTo(&memStore{})
	require.ErrorIs(t, err, errs.ErrLengthMismatch)
}
