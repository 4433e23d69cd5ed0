package patch

import (
	"encoding/binary"

	"github.com/hutomosaktikartiko/patchly/internal/errs"
)

// Encoder is the push API used to build a patch container. The caller
// drives it: Begin once, then any number of EmitCopy/EmitInsert calls, then
// End. Output accumulates in an internal buffer and is drained via
// FlushOutput so the host can interleave writes with further target
// ingestion, bounding total memory.
type Encoder struct {
	buf   []byte
	begun bool
	ended bool
}

// NewEncoder returns a ready-to-use Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Begin writes the 33-byte header. It must be called exactly once, before
// any EmitCopy/EmitInsert/End call.
func (e *Encoder) Begin(sourceSize, sourceDigest, targetSize uint64) error {
	if e.begun {
		return errs.Usage("Begin called more than once")
	}

	e.begun = true
	e.buf = append(e.buf, EncodeHeader(Header{
		SourceSize:   sourceSize,
		SourceDigest: sourceDigest,
		TargetSize:   targetSize,
	})...)

	return nil
}

// EmitCopy appends a COPY{off, len} instruction. len must be > 0.
func (e *Encoder) EmitCopy(off uint64, length uint32) error {
	if !e.begun {
		return errs.Usage("EmitCopy before Begin")
	}

	if length == 0 {
		return errs.Usage("EmitCopy with zero length")
	}

	var inst [copyInstructionSize]byte

	inst[0] = OpCopy
	binary.LittleEndian.PutUint64(inst[1:9], off)
	binary.LittleEndian.PutUint32(inst[9:13], length)
	e.buf = append(e.buf, inst[:]...)

	return nil
}

// EmitInsert appends an INSERT instruction carrying data verbatim. data must
// be non-empty.
func (e *Encoder) EmitInsert(data []byte) error {
	if !e.begun {
		return errs.Usage("EmitInsert before Begin")
	}

	if len(data) == 0 {
		return errs.Usage("EmitInsert with zero length")
	}

	var head [5]byte

	head[0] = OpInsert
	binary.LittleEndian.PutUint32(head[1:5], uint32(len(data)))
	e.buf = append(e.buf, head[:]...)
	e.buf = append(e.buf, data...)

	return nil
}

// End marks the instruction stream complete. There is no trailer: end of
// byte stream is end of instructions, so End writes nothing. It does not
// reject EmitCopy/EmitInsert calls made after it.
func (e *Encoder) End() error {
	if !e.begun {
		return errs.Usage("End before Begin")
	}

	e.ended = true

	return nil
}

// PendingOutputSize reports how many encoded bytes are buffered and not yet
// drained via FlushOutput.
func (e *Encoder) PendingOutputSize() int {
	return len(e.buf)
}

// HasOutput reports whether any bytes are available to flush.
func (e *Encoder) HasOutput() bool {
	return len(e.buf) > 0
}

// FlushOutput returns up to maxBytes of buffered output, removing them from
// the internal buffer. It returns nil once the buffer is exhausted.
// maxBytes <= 0 means "no limit".
func (e *Encoder) FlushOutput(maxBytes int) []byte {
	if len(e.buf) == 0 {
		return nil
	}

	n := len(e.buf)
	if maxBytes > 0 && maxBytes < n {
		n = maxBytes
	}

	out := make([]byte, n)
	copy(out, e.buf[:n])
	e.buf = append(e.buf[:0], e.buf[n:]...)

	return out
}
