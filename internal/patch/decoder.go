package patch

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/hutomosaktikartiko/patchly/internal/errs"
)

// Store is the minimal random-access read surface the decoder needs. It is
// satisfied by any implementation of the host's random-access byte store.
type Store interface {
	ReadAt(buf []byte, at int64) (int, error)
}

// ParseHeader validates and decodes the first [HeaderSize] bytes of a patch
// container. first must be exactly HeaderSize bytes.
func ParseHeader(first []byte) (Header, error) {
	if len(first) < HeaderSize {
		return Header{}, errs.Wrap(errs.ErrTruncatedInstr, "header shorter than 33 bytes")
	}

	if string(first[offMagic:offMagic+4]) != Magic {
		return Header{}, errs.ErrBadMagic
	}

	if first[offVersion] != Version {
		return Header{}, errs.ErrUnsupportedVersion
	}

	return Header{
		SourceSize:   binary.LittleEndian.Uint64(first[offSourceSize:]),
		SourceDigest: binary.LittleEndian.Uint64(first[offSourceDigest:]),
		TargetSize:   binary.LittleEndian.Uint64(first[offTargetSize:]),
	}, nil
}

// Decoder reads instructions out of a patch store starting just past the
// header, one at a time, tracking its own cursor.
type Decoder struct {
	store  Store
	cursor int64
	size   int64
}

// NewDecoder returns a Decoder positioned at cursor (typically [HeaderSize])
// within a patch store of the given total size.
func NewDecoder(store Store, cursor, size int64) *Decoder {
	return &Decoder{store: store, cursor: cursor, size: size}
}

// Cursor reports the decoder's current byte offset in the patch store.
func (d *Decoder) Cursor() int64 {
	return d.cursor
}

// Done reports whether the cursor has reached the end of the patch store.
func (d *Decoder) Done() bool {
	return d.cursor >= d.size
}

// NextInstruction reads one instruction at the current cursor and advances
// it. INSERT payloads are returned inline (read eagerly from the store);
// callers that want to stream large INSERTs directly can use DataOffset
// instead and read the store themselves.
func (d *Decoder) NextInstruction() (Instruction, error) {
	opBuf := make([]byte, 1)

	if err := d.readFull(opBuf); err != nil {
		return Instruction{}, err
	}

	switch opBuf[0] {
	case OpCopy:
		return d.readCopy()
	case OpInsert:
		return d.readInsert()
	default:
		return Instruction{}, errs.ErrUnknownOpcode
	}
}

func (d *Decoder) readCopy() (Instruction, error) {
	rest := make([]byte, 12)
	if err := d.readFull(rest); err != nil {
		return Instruction{}, err
	}

	return Instruction{
		Op:     OpCopy,
		SrcOff: binary.LittleEndian.Uint64(rest[0:8]),
		Len:    binary.LittleEndian.Uint32(rest[8:12]),
	}, nil
}

func (d *Decoder) readInsert() (Instruction, error) {
	lenBuf := make([]byte, 4)
	if err := d.readFull(lenBuf); err != nil {
		return Instruction{}, err
	}

	n := binary.LittleEndian.Uint32(lenBuf)
	dataOffset := d.cursor

	data := make([]byte, n)
	if err := d.readFull(data); err != nil {
		return Instruction{}, err
	}

	return Instruction{
		Op:         OpInsert,
		Len:        n,
		Inline:     data,
		DataOffset: dataOffset,
	}, nil
}

// readFull reads exactly len(buf) bytes at the cursor, advancing it, or
// returns errs.ErrTruncatedInstr if the store runs out first.
func (d *Decoder) readFull(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	if d.cursor+int64(len(buf)) > d.size {
		return errs.ErrTruncatedInstr
	}

	n, err := d.store.ReadAt(buf, d.cursor)
	if err != nil && !errors.Is(err, io.EOF) {
		return errs.Resource("reading patch store", err)
	}

	if n < len(buf) {
		return errs.ErrTruncatedInstr
	}

	d.cursor += int64(len(buf))

	return nil
}
