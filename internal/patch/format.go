// Package patch implements the bit-exact patch container format: a 33-byte
// header followed by a concatenation of COPY/INSERT instructions.
//
//	Offset  Size  Field          Notes
//	0       4     magic          'P','T','C','H'
//	4       1     version        0x01
//	5       8     source_size    u64 LE
//	13      8     source_digest  u64 LE (FNV-1a over source bytes)
//	21      8     target_size    u64 LE
//	29      4     reserved       zero on write, ignored on read
//	33      …     instructions   COPY (13 bytes) / INSERT (5+len bytes)
//
// [Encoder] is a push API used by the differ to serialize instructions as
// they're produced. [Decoder] is a pull API used by the applier to read
// instructions back out of a random-access patch store.
package patch

import "encoding/binary"

// Wire-format constants.
const (
	Magic   = "PTCH"
	Version = 0x01

	HeaderSize = 33

	offMagic        = 0
	offVersion      = 4
	offSourceSize   = 5
	offSourceDigest = 13
	offTargetSize   = 21
	offReserved     = 29

	OpCopy   = 0x01
	OpInsert = 0x02

	copyInstructionSize = 13 // opcode(1) + off(8) + len(4)
)

// Header is the parsed 33-byte patch header.
type Header struct {
	SourceSize   uint64
	SourceDigest uint64
	TargetSize   uint64
}

// EncodeHeader serializes h into the 33-byte wire layout.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)

	copy(buf[offMagic:], Magic)
	buf[offVersion] = Version
	binary.LittleEndian.PutUint64(buf[offSourceSize:], h.SourceSize)
	binary.LittleEndian.PutUint64(buf[offSourceDigest:], h.SourceDigest)
	binary.LittleEndian.PutUint64(buf[offTargetSize:], h.TargetSize)
	// buf[offReserved:offReserved+4] is already zero.

	return buf
}

// Instruction is a decoded COPY or INSERT, tagged by Op.
type Instruction struct {
	Op byte // OpCopy or OpInsert

	// COPY fields.
	SrcOff uint64
	Len    uint32

	// INSERT fields. Inline carries the literal bytes when the caller reads
	// them eagerly; DataOffset is the patch-store offset of those bytes when
	// the caller instead wants to stream them (see [Decoder.NextInstruction]).
	Inline     []byte
	DataOffset int64
}

// EncodedCopySize is the wire size of a COPY instruction: always 13 bytes.
func EncodedCopySize() int {
	return copyInstructionSize
}

// EncodedInsertSize is the wire size of an INSERT instruction of length n.
func EncodedInsertSize(n int) int {
	return 5 + n
}
