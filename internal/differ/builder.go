// Package differ implements the streaming differ: it consumes a source
// stream (to build a [blockindex.Index]) and then a target stream, emitting
// COPY/INSERT instructions into a [patch.Encoder] as it goes.
//
// Builder never buffers the whole target in memory. It keeps a small
// "pending" window of not-yet-resolved target bytes (bounded by the literal
// cap plus one in-flight COPY run) and a reference to the source's
// random-access store for match extension, which the host already holds.
package differ

import (
	"github.com/hutomosaktikartiko/patchly/internal/blockindex"
	"github.com/hutomosaktikartiko/patchly/internal/bytestore"
	"github.com/hutomosaktikartiko/patchly/internal/digest"
	"github.com/hutomosaktikartiko/patchly/internal/errs"
	"github.com/hutomosaktikartiko/patchly/internal/patch"
	"github.com/hutomosaktikartiko/patchly/internal/rollhash"
)

// maxCopyRun bounds how long a single COPY instruction's matched run can
// grow before Builder forces it out and starts a fresh one. Without this, a
// target that matches one giant source run would hold the whole run in
// pending until the match breaks, defeating the bounded-memory goal.
const maxCopyRun = 1 << 20

// Options tunes block size, bucket capacity, and the literal-buffer cap. Zero
// fields fall back to the package defaults.
type Options struct {
	BlockSize  int
	BucketCap  int
	MaxLiteral int
}

// DefaultOptions returns B=4096, bucket cap 8, literal cap 16*B (64 KiB).
func DefaultOptions() Options {
	b := blockindex.DefaultBlockSize

	return Options{BlockSize: b, BucketCap: blockindex.DefaultBucketCap, MaxLiteral: 16 * b}
}

func (o Options) normalized() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = blockindex.DefaultBlockSize
	}

	if o.BucketCap <= 0 {
		o.BucketCap = blockindex.DefaultBucketCap
	}

	if o.MaxLiteral <= 0 {
		o.MaxLiteral = 16 * o.BlockSize
	}

	return o
}

// Builder drives one diff from a source to a target. It is not safe for
// concurrent use; call sites serialize AddSourceChunk/FinalizeSource/
// SetTargetSize/AddTargetChunk/FinalizeTarget in that order.
type Builder struct {
	opts        Options
	sourceStore bytestore.RandomAccessStore

	idxBuilder *blockindex.Builder
	index      *blockindex.Index

	srcDigest    digest.Digest
	srcSize      uint64
	srcFinalized bool

	tgtDigest    digest.Digest
	tgtSize      uint64
	tgtSizeSet   bool
	tgtFinalized bool
	tgtConsumed  uint64

	enc *patch.Encoder

	// pending holds target bytes received but not yet resolved into an
	// emitted COPY or INSERT. pendingBase is the target offset of pending[0].
	pending     []byte
	pendingBase uint64

	// literalStart is the earliest index in pending not yet flushed as a
	// literal or absorbed into an open match.
	literalStart int

	// scanPos is the next index considered as the start of a fresh B-byte
	// window, when no match is currently open.
	scanPos int

	rh    rollhash.Hash
	rhPos int // scanPos the current rh state corresponds to, or -1 if stale

	matching    bool
	matchStart  int // index into pending where the open match begins
	matchSrcOff uint64
	matchLen    uint64
}

// NewBuilder returns a Builder that will read source bytes for match
// extension from sourceStore, which the caller fills (via AddSourceChunk and
// its own writes to the store) before diffing begins.
func NewBuilder(opts Options, sourceStore bytestore.RandomAccessStore) *Builder {
	opts = opts.normalized()

	return &Builder{
		opts:        opts,
		sourceStore: sourceStore,
		idxBuilder:  blockindex.NewBuilder(blockindex.Options{BlockSize: opts.BlockSize, BucketCap: opts.BucketCap}),
		srcDigest:   digest.New(),
		tgtDigest:   digest.New(),
		enc:         patch.NewEncoder(),
		rhPos:       -1,
	}
}

// AddSourceChunk feeds the next ordered slice of source bytes. Must be
// called before FinalizeSource; chunk boundaries need not align to the
// block size.
func (b *Builder) AddSourceChunk(chunk []byte) error {
	if b.srcFinalized {
		return errs.ErrAlreadyFinalized
	}

	b.idxBuilder.AddChunk(chunk)
	_, _ = b.srcDigest.Write(chunk)
	b.srcSize += uint64(len(chunk))

	return nil
}

// FinalizeSource freezes the block index and the source digest/size. No
// further AddSourceChunk calls are allowed afterward.
func (b *Builder) FinalizeSource() error {
	if b.srcFinalized {
		return errs.ErrAlreadyFinalized
	}

	b.index = b.idxBuilder.Finalize()
	b.srcFinalized = true

	return nil
}

// SetTargetSize declares the target's total size and writes the patch
// header. It must be called exactly once, after FinalizeSource and before
// any AddTargetChunk call.
func (b *Builder) SetTargetSize(n uint64) error {
	if !b.srcFinalized {
		return errs.ErrSourceNotFinalized
	}

	if b.tgtSizeSet {
		return errs.Usage("SetTargetSize called more than once")
	}

	b.tgtSize = n
	b.tgtSizeSet = true

	return b.enc.Begin(b.srcSize, b.srcDigest.Sum64(), n)
}

// AddTargetChunk feeds the next ordered slice of target bytes, advancing the
// scan and possibly producing new encoder output (see FlushOutput).
func (b *Builder) AddTargetChunk(chunk []byte) error {
	if !b.tgtSizeSet {
		return errs.ErrTargetSizeNotSet
	}

	if b.tgtFinalized {
		return errs.ErrAlreadyFinalized
	}

	if len(chunk) == 0 {
		return nil
	}

	b.pending = append(b.pending, chunk...)
	_, _ = b.tgtDigest.Write(chunk)
	b.tgtConsumed += uint64(len(chunk))

	return b.processPending(false)
}

// FinalizeTarget flushes any remaining pending bytes (as a final literal run
// or a closed match) and ends the instruction stream. The declared target
// size must exactly match the bytes fed via AddTargetChunk.
func (b *Builder) FinalizeTarget() error {
	if !b.tgtSizeSet {
		return errs.ErrTargetSizeNotSet
	}

	if b.tgtFinalized {
		return errs.ErrAlreadyFinalized
	}

	if b.tgtConsumed != b.tgtSize {
		return errs.ErrLengthMismatch
	}

	if err := b.processPending(true); err != nil {
		return err
	}

	b.tgtFinalized = true

	return b.enc.End()
}

// HasOutput reports whether encoded bytes are waiting to be drained.
func (b *Builder) HasOutput() bool { return b.enc.HasOutput() }

// PendingOutputSize reports how many encoded bytes are buffered.
func (b *Builder) PendingOutputSize() int { return b.enc.PendingOutputSize() }

// FlushOutput drains up to maxBytes of encoded patch bytes (0 means no limit).
func (b *Builder) FlushOutput(maxBytes int) []byte { return b.enc.FlushOutput(maxBytes) }

// SourceSize reports the total source size accumulated so far.
func (b *Builder) SourceSize() uint64 { return b.srcSize }

// TargetSize reports the declared target size (valid once SetTargetSize ran).
func (b *Builder) TargetSize() uint64 { return b.tgtSize }

// AreFilesIdentical reports whether the source and target ingested so far
// are byte-identical, based on size and running digest alone. Valid once
// both sides are finalized.
func (b *Builder) AreFilesIdentical() bool {
	return b.srcFinalized && b.tgtFinalized &&
		b.srcSize == b.tgtSize &&
		b.srcDigest.Sum64() == b.tgtDigest.Sum64()
}

// Reset returns the Builder to its just-constructed state, reusing it for a
// new source/target pair against the same sourceStore reference (the caller
// is responsible for pointing sourceStore at the new source, or replacing
// the Builder instead if that's simpler).
func (b *Builder) Reset() {
	b.idxBuilder = blockindex.NewBuilder(blockindex.Options{BlockSize: b.opts.BlockSize, BucketCap: b.opts.BucketCap})
	b.index = nil
	b.srcDigest = digest.New()
	b.srcSize = 0
	b.srcFinalized = false
	b.tgtDigest = digest.New()
	b.tgtSize = 0
	b.tgtSizeSet = false
	b.tgtFinalized = false
	b.tgtConsumed = 0
	b.enc = patch.NewEncoder()
	b.pending = b.pending[:0]
	b.pendingBase = 0
	b.literalStart = 0
	b.scanPos = 0
	b.rhPos = -1
	b.matching = false
	b.matchStart = 0
	b.matchSrcOff = 0
	b.matchLen = 0
}
