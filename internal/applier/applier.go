// Package applier reconstructs a target from a source and a patch
// container produced by [github.com/hutomosaktikartiko/patchly/internal/differ].
//
// Applying runs in three phases: validate the header, validate the source
// (by re-reading it and comparing its running digest against the header's),
// then walk the instruction stream, copying from source or inserting
// literal bytes into the output. ApplyTo flushes output in batches, so a
// failure part-way through can leave a partial target in the output store;
// callers are expected to write to a temp file and only publish it (see
// bytestore.PublishTemp) once ApplyTo returns nil.
package applier

import (
	"errors"
	"io"

	"github.com/hutomosaktikartiko/patchly/internal/bytestore"
	"github.com/hutomosaktikartiko/patchly/internal/digest"
	"github.com/hutomosaktikartiko/patchly/internal/errs"
	"github.com/hutomosaktikartiko/patchly/internal/patch"
)

// readBufSize is R in the design notes: the buffer reused for every source
// read during both source validation and COPY application.
const readBufSize = 64 * 1024

// writeBatchSize is W: output is buffered up to this size before being
// flushed to the target store, amortizing Write calls without holding the
// whole target in memory.
const writeBatchSize = 1024 * 1024

// Applier reconstructs a target from a patch store and a source store. It
// is single-use: construct one per apply operation.
type Applier struct {
	patchStore  patch.Store
	patchSize   int64
	sourceStore bytestore.RandomAccessStore

	header Header

	readBuf  []byte
	writeBuf []byte
}

// Header mirrors patch.Header; it's re-exported here so callers of this
// package don't need to import internal/patch directly for the common case.
type Header = patch.Header

// NewApplier returns an Applier that will read the patch container from
// patchStore (patchSize bytes total) and the source from sourceStore.
func NewApplier(patchStore patch.Store, patchSize int64, sourceStore bytestore.RandomAccessStore) *Applier {
	return &Applier{
		patchStore:  patchStore,
		patchSize:   patchSize,
		sourceStore: sourceStore,
		readBuf:     make([]byte, readBufSize),
	}
}

// ParseHeader reads and validates the patch container's 33-byte header,
// caching it for ValidateSource/ApplyTo. It must be called before either.
func (a *Applier) ParseHeader() (Header, error) {
	buf := make([]byte, patch.HeaderSize)

	n, err := a.patchStore.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return Header{}, errs.Resource("reading patch header", err)
	}

	if n < patch.HeaderSize {
		return Header{}, errs.ErrTruncatedInstr
	}

	h, err := patch.ParseHeader(buf)
	if err != nil {
		return Header{}, err
	}

	a.header = h

	return h, nil
}

// ValidateSource re-reads the source store in readBufSize chunks and checks
// its size and running FNV-1a digest against the header. ParseHeader must
// have already been called.
func (a *Applier) ValidateSource() error {
	size, err := a.sourceStore.Size()
	if err != nil {
		return errs.Resource("stat source store", err)
	}

	if uint64(size) != a.header.SourceSize {
		return errs.ErrSourceSizeMismatch
	}

	d := digest.New()

	var off int64

	for off < size {
		n := len(a.readBuf)
		if remaining := size - off; int64(n) > remaining {
			n = int(remaining)
		}

		got, err := a.sourceStore.ReadAt(a.readBuf[:n], off)
		if err != nil && !errors.Is(err, io.EOF) {
			return errs.Resource("reading source for validation", err)
		}

		if got < n {
			return errs.ErrSourceSizeMismatch
		}

		_, _ = d.Write(a.readBuf[:got])
		off += int64(got)
	}

	if d.Sum64() != a.header.SourceDigest {
		return errs.ErrSourceDigestMismatch
	}

	return nil
}

// ApplyTo walks the instruction stream and writes the reconstructed target
// into out, batching writes up to writeBatchSize. ParseHeader and
// ValidateSource must both have succeeded first.
func (a *Applier) ApplyTo(out bytestore.RandomAccessStore) error {
	dec := patch.NewDecoder(a.patchStore, patch.HeaderSize, a.patchSize)

	a.writeBuf = a.writeBuf[:0]

	var written uint64

	for !dec.Done() {
		inst, err := dec.NextInstruction()
		if err != nil {
			return err
		}

		switch inst.Op {
		case patch.OpCopy:
			if err := a.applyCopy(inst, out); err != nil {
				return err
			}

			written += uint64(inst.Len)
		case patch.OpInsert:
			if err := a.applyInsert(inst, out); err != nil {
				return err
			}

			written += uint64(inst.Len)
		default:
			return errs.ErrUnknownOpcode
		}
	}

	if err := a.flush(out); err != nil {
		return err
	}

	if written != a.header.TargetSize {
		return errs.ErrLengthMismatch
	}

	return nil
}

func (a *Applier) applyCopy(inst patch.Instruction, out bytestore.RandomAccessStore) error {
	if inst.SrcOff+uint64(inst.Len) > a.header.SourceSize {
		return errs.ErrCopyOutOfRange
	}

	remaining := inst.Len
	off := inst.SrcOff

	for remaining > 0 {
		n := uint32(len(a.readBuf))
		if n > remaining {
			n = remaining
		}

		got, err := a.sourceStore.ReadAt(a.readBuf[:n], int64(off))
		if err != nil && !errors.Is(err, io.EOF) {
			return errs.Resource("reading source for COPY", err)
		}

		if got < int(n) {
			return errs.ErrCopyOutOfRange
		}

		if err := a.appendOutput(a.readBuf[:got], out); err != nil {
			return err
		}

		off += uint64(got)
		remaining -= uint32(got)
	}

	return nil
}

func (a *Applier) applyInsert(inst patch.Instruction, out bytestore.RandomAccessStore) error {
	return a.appendOutput(inst.Inline, out)
}

// appendOutput buffers data into writeBuf, flushing to out whenever the
// batch would exceed writeBatchSize.
func (a *Applier) appendOutput(data []byte, out bytestore.RandomAccessStore) error {
	for len(data) > 0 {
		room := writeBatchSize - len(a.writeBuf)
		if room <= 0 {
			if err := a.flush(out); err != nil {
				return err
			}

			room = writeBatchSize
		}

		n := len(data)
		if n > room {
			n = room
		}

		a.writeBuf = append(a.writeBuf, data[:n]...)
		data = data[n:]
	}

	return nil
}

func (a *Applier) flush(out bytestore.RandomAccessStore) error {
	if len(a.writeBuf) == 0 {
		return nil
	}

	if _, err := out.Write(a.writeBuf); err != nil {
		return errs.Resource("writing target output", err)
	}

	a.writeBuf = a.writeBuf[:0]

	return nil
}
