package differ

import (
	"errors"
	"io"

	"github.com/hutomosaktikartiko/patchly/internal/digest"
	"github.com/hutomosaktikartiko/patchly/internal/errs"
)

// processPending drives the scan/match state machine over b.pending until
// either no further progress is possible without more target bytes, or
// (when final is true) every pending byte has been resolved.
func (b *Builder) processPending(final bool) error {
	for {
		if b.matching {
			waiting, err := b.extendMatch(final)
			if err != nil {
				return err
			}

			if waiting {
				return nil
			}

			continue
		}

		waiting, err := b.scanStep(final)
		if err != nil {
			return err
		}

		if waiting {
			return nil
		}
	}
}

// extendMatch tries to grow the currently open match using whatever target
// bytes are buffered and whatever source bytes remain. It returns
// waiting=true when it needs more target bytes before it can make progress
// (and final is false); otherwise it either closes the match or forces a
// mid-match COPY split and returns waiting=false so the caller loops again.
func (b *Builder) extendMatch(final bool) (bool, error) {
	matchEnd := b.matchStart + int(b.matchLen)
	availPending := len(b.pending) - matchEnd

	if availPending <= 0 {
		if final {
			return false, b.closeMatch()
		}

		return true, nil
	}

	srcPos := b.matchSrcOff + b.matchLen
	if srcPos >= b.srcSize {
		return false, b.closeMatch()
	}

	want := availPending
	if remaining := b.srcSize - srcPos; uint64(want) > remaining {
		want = int(remaining)
	}

	if cap := int(maxCopyRun - b.matchLen); want > cap {
		want = cap
	}

	srcBuf := make([]byte, want)

	n, err := b.sourceStore.ReadAt(srcBuf, int64(srcPos))
	if err != nil && !errors.Is(err, io.EOF) {
		return false, errs.Resource("reading source for match extension", err)
	}

	srcBuf = srcBuf[:n]
	tgtBuf := b.pending[matchEnd : matchEnd+len(srcBuf)]

	cpl := commonPrefixLen(tgtBuf, srcBuf)
	b.matchLen += uint64(cpl)

	if cpl < len(srcBuf) {
		return false, b.closeMatch()
	}

	if b.matchLen >= maxCopyRun {
		return false, b.flushRun()
	}

	return false, nil
}

// backwardExtend grows a just-confirmed match backward into the open
// literal run, absorbing bytes pending[literalStart:candStart) that equal
// the source bytes immediately preceding srcOff. This is what lets a target
// insertion followed by a shifted copy (e.g. one byte prepended to an
// otherwise unchanged source) collapse to a single short INSERT plus one
// long COPY instead of re-discovering the match one block late. It returns
// the new (earlier or equal) match start and corresponding source offset.
func (b *Builder) backwardExtend(candStart int, srcOff uint64) (int, uint64, error) {
	maxBack := candStart - b.literalStart
	if maxBack <= 0 || srcOff == 0 {
		return candStart, srcOff, nil
	}

	if uint64(maxBack) > srcOff {
		maxBack = int(srcOff)
	}

	srcBuf := make([]byte, maxBack)

	n, err := b.sourceStore.ReadAt(srcBuf, int64(srcOff)-int64(maxBack))
	if err != nil && !errors.Is(err, io.EOF) {
		return candStart, srcOff, errs.Resource("reading source for backward extension", err)
	}

	if n != maxBack {
		// Short read this far inside an already-validated source range
		// shouldn't happen; be conservative and skip the extension rather
		// than risk comparing misaligned bytes.
		return candStart, srcOff, nil
	}

	k := 0
	for k < len(srcBuf) && srcBuf[len(srcBuf)-1-k] == b.pending[candStart-1-k] {
		k++
	}

	return candStart - k, srcOff - uint64(k), nil
}

// scanStep looks for a new match starting at scanPos, or advances scanPos by
// one byte (into the open literal run) when none is found. It returns
// waiting=true when fewer than a full block of pending bytes remain and
// final is false.
func (b *Builder) scanStep(final bool) (bool, error) {
	blockSize := b.opts.BlockSize

	if len(b.pending)-b.scanPos < blockSize {
		if final {
			if err := b.flushLiteral(len(b.pending)); err != nil {
				return false, err
			}

			b.scanPos = len(b.pending)

			return true, nil
		}

		return true, nil
	}

	if b.rhPos != b.scanPos {
		b.rh.Reset(b.pending[b.scanPos : b.scanPos+blockSize])
		b.rhPos = b.scanPos
	}

	fp := b.rh.Sum()

	if b.index != nil {
		window := b.pending[b.scanPos : b.scanPos+blockSize]
		windowDigest := digest.Sum(window)

		for _, c := range b.index.Lookup(fp) {
			if c.Digest != windowDigest {
				continue
			}

			matchStart, srcOff, err := b.backwardExtend(b.scanPos, c.Offset)
			if err != nil {
				return false, err
			}

			back := b.scanPos - matchStart

			if err := b.flushLiteral(matchStart); err != nil {
				return false, err
			}

			// flushLiteral compacts pending, so rebase the match start on
			// the (already rebased) scanPos.
			b.matching = true
			b.matchStart = b.scanPos - back
			b.matchSrcOff = srcOff
			b.matchLen = uint64(blockSize) + uint64(back)

			return false, nil
		}
	}

	// No candidate confirmed: the byte at scanPos joins the open literal
	// run. Slide the rolling hash forward if we still have a byte to admit.
	if b.scanPos+blockSize < len(b.pending) {
		if b.rhPos == b.scanPos {
			b.rh.Slide(b.pending[b.scanPos], b.pending[b.scanPos+blockSize])
			b.rhPos++
		}
	} else {
		b.rhPos = -1
	}

	b.scanPos++

	if b.scanPos-b.literalStart >= b.opts.MaxLiteral {
		if err := b.flushLiteral(b.scanPos); err != nil {
			return false, err
		}
	}

	return false, nil
}

// flushRun emits the matched run accumulated so far as a COPY instruction
// and rebases the open match onto the bytes just past it, without closing
// the match — used both to bound a single COPY's length (maxCopyRun) and as
// the final emission when a match actually ends.
func (b *Builder) flushRun() error {
	if b.matchLen == 0 {
		return nil
	}

	if err := b.enc.EmitCopy(b.matchSrcOff, uint32(b.matchLen)); err != nil {
		return err
	}

	b.matchStart += int(b.matchLen)
	b.matchSrcOff += b.matchLen
	b.matchLen = 0
	b.literalStart = b.matchStart
	b.compact()

	return nil
}

// closeMatch ends the currently open match, emitting any accumulated run,
// and resumes scanning right after it.
func (b *Builder) closeMatch() error {
	if err := b.flushRun(); err != nil {
		return err
	}

	b.matching = false
	b.scanPos = b.matchStart
	b.literalStart = b.scanPos
	b.rhPos = -1

	return nil
}

// flushLiteral emits pending[literalStart:upTo] as one or more INSERT
// instructions, each no larger than the literal cap.
func (b *Builder) flushLiteral(upTo int) error {
	for b.literalStart < upTo {
		end := upTo
		if max := b.literalStart + b.opts.MaxLiteral; end > max {
			end = max
		}

		if err := b.enc.EmitInsert(b.pending[b.literalStart:end]); err != nil {
			return err
		}

		b.literalStart = end
	}

	b.compact()

	return nil
}

// compact drops pending bytes before literalStart, rebasing every index that
// refers into pending. It is the only place pending's backing array shrinks,
// keeping steady-state memory bounded by the literal cap plus one in-flight
// match run.
func (b *Builder) compact() {
	n := b.literalStart
	if n <= 0 {
		return
	}

	b.pending = append(b.pending[:0], b.pending[n:]...)
	b.pendingBase += uint64(n)
	b.scanPos -= n

	if b.matching {
		b.matchStart -= n
	}

	if b.rhPos >= 0 {
		b.rhPos -= n
	}

	b.literalStart = 0
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}

	return n
}
