// Package wal decodes PostgreSQL WAL segment files into a lazy stream
// of records, transparently stitching records that straddle page
// boundaries within a segment. Each decoder covers one segment; a
// record whose body runs past the segment's end is reported as an
// error, not joined with the next segment.
package wal

import (
	"fmt"
	"iter"
	"os"

	"github.com/nyx-wal/pgwal/cursor"
	"github.com/nyx-wal/pgwal/lsn"
)

// Options configures a SegmentDecoder.
type Options struct {
	// BaseLSN is the LSN of byte offset 0 in this segment. Deriving it
	// from the segment's filename (timeline + segment number) is the
	// caller's job; a zero value yields StartLSN values whose FileID
	// component is simply the intra-segment offset's own high bits,
	// which is only meaningful for single-segment, file-id-0 callers.
	BaseLSN lsn.LSN
}

// SegmentDecoder reads one WAL segment file, already fully loaded into
// memory: the teacher's parsers (pgdump/control.go, pgdump/page.go)
// take the same read-whole-file-then-parse approach rather than
// streaming or memory-mapping.
type SegmentDecoder struct {
	buf       []byte
	blockSize int
	opts      Options
	header    longHeader
}

// OpenSegment reads path into memory and parses its page-0 long
// header.
func OpenSegment(path string, opts Options) (*SegmentDecoder, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open segment: %w", err)
	}
	return newSegmentDecoder(buf, opts)
}

func newSegmentDecoder(buf []byte, opts Options) (*SegmentDecoder, error) {
	if len(buf) < longHeaderSize {
		return nil, &MalformedRecord{Offset: 0, Reason: "segment shorter than the long page header"}
	}

	c := cursor.New(buf)
	sysID, _ := c.ReadU64()
	segSize, _ := c.ReadU32()
	blockSize, _ := c.ReadU32()
	xlogSegSize, _ := c.ReadU32()

	h := longHeader{
		SystemIdentifier: sysID,
		SegmentSize:      segSize,
		BlockSize:        blockSize,
		XlogSegSize:      xlogSegSize,
	}
	if h.BlockSize == 0 {
		h.BlockSize = DefaultBlockSize
	}

	return &SegmentDecoder{buf: buf, blockSize: int(h.BlockSize), opts: opts, header: h}, nil
}

// Close releases the decoder's buffer. SegmentDecoder never holds a
// file descriptor past OpenSegment, so this only drops the in-memory
// copy; calling it is still required to honor the scoped-acquisition
// contract on every exit path.
func (d *SegmentDecoder) Close() error {
	d.buf = nil
	return nil
}

// SystemIdentifier returns the cluster identifier declared in the
// segment's long header.
func (d *SegmentDecoder) SystemIdentifier() uint64 {
	return d.header.SystemIdentifier
}

// BlockSize returns the page size this segment declares.
func (d *SegmentDecoder) BlockSize() int {
	return d.blockSize
}

// RecordRange bounds a Records call by start/end LSN; either may be
// nil to leave that bound open.
type RecordRange struct {
	StartLSN *lsn.LSN
	EndLSN   *lsn.LSN
}

// RecordOrError is one item of the lazy record sequence: either a
// successfully decoded Record, or a terminal error (MalformedRecord,
// TruncatedRecord) that ends the sequence, or a recoverable
// CorruptPage diagnostic that does not.
type RecordOrError struct {
	Record *Record
	Err    error
}

// currentLSN combines the segment's base LSN with an intra-segment
// byte offset. This is the corrected replacement for naively wrapping
// a raw file offset as a full LSN; see DESIGN.md's Open Question
// resolution.
func (d *SegmentDecoder) currentLSN(offset int64) lsn.LSN {
	return lsn.LSN(uint64(d.opts.BaseLSN) + uint64(offset))
}

// Records returns a lazy, one-shot sequence of decoded records (and
// any diagnostics encountered along the way) over the given range.
func (d *SegmentDecoder) Records(rng RecordRange) iter.Seq[RecordOrError] {
	return func(yield func(RecordOrError) bool) {
		segLen := len(d.buf)
		pos := int64(longHeaderSize)

		if rng.StartLSN != nil && uint64(*rng.StartLSN) > uint64(d.opts.BaseLSN) {
			startOffset := int64(uint64(*rng.StartLSN) - uint64(d.opts.BaseLSN))
			aligned := (startOffset / int64(d.blockSize)) * int64(d.blockSize)
			if aligned > pos {
				pos = aligned
			}
		}

		for pos < int64(segLen) {
			if d.blockSize > 0 && pos%int64(d.blockSize) == 0 && pos != 0 {
				next, corrupt, ok := d.consumeShortHeader(pos)
				if !ok {
					if !yield(RecordOrError{Err: corrupt}) {
						return
					}
					pos = next
					continue
				}
				pos = next
				if pos >= int64(segLen) {
					break
				}
			}

			pageStart := (pos / int64(d.blockSize)) * int64(d.blockSize)
			payloadEnd := pageStart + int64(d.blockSize)
			if payloadEnd > int64(segLen) {
				payloadEnd = int64(segLen)
			}

			if payloadEnd-pos < shortHeaderSizeRecordPrefix {
				pos = pageStart + int64(d.blockSize)
				continue
			}

			// A zero total_len is unused, zero-filled space rather than a
			// record: step to the next 8-byte boundary and look again.
			if totalLen, _ := cursor.New(d.buf[pos:]).ReadU32(); totalLen == 0 {
				pos = (pos + 8) &^ 7
				continue
			}

			recordStart := pos
			rec, next, err := d.decodeOneRecord(recordStart)
			if err != nil {
				yield(RecordOrError{Err: err})
				return
			}

			if rng.EndLSN != nil && uint64(rec.StartLSN) > uint64(*rng.EndLSN) {
				return
			}
			include := true
			if rng.StartLSN != nil && uint64(rec.StartLSN) < uint64(*rng.StartLSN) {
				include = false
			}
			if include {
				if !yield(RecordOrError{Record: rec}) {
					return
				}
			}

			pos = next
		}
	}
}

// consumeShortHeader validates the short header at an exact page
// boundary. On success it returns the payload start position; on a bad
// magic it returns a CorruptPage diagnostic and the offset of the
// following page boundary, per spec's local-recovery rule.
func (d *SegmentDecoder) consumeShortHeader(pageStart int64) (next int64, corrupt *CorruptPage, ok bool) {
	if int(pageStart)+shortHeaderSize > len(d.buf) {
		return pageStart + int64(d.blockSize), &CorruptPage{Offset: pageStart, Reason: "short header truncated"}, false
	}
	c := cursor.New(d.buf[pageStart:])
	magic, _ := c.ReadU16()
	if magic != XLogPageMagic {
		return pageStart + int64(d.blockSize), &CorruptPage{Offset: pageStart, Reason: fmt.Sprintf("bad page magic %#x", magic)}, false
	}
	return pageStart + shortHeaderSize, nil, true
}

// decodeOneRecord parses the 24-byte prefix at recordStart (guaranteed
// by the caller to lie entirely within the current page) and the body
// that follows, stitching across page boundaries as needed.
func (d *SegmentDecoder) decodeOneRecord(recordStart int64) (*Record, int64, error) {
	c := cursor.New(d.buf[recordStart:])
	totalLen, _ := c.ReadU32()
	xid, _ := c.ReadU32()
	prevLSNRaw, _ := c.ReadU64()
	info, _ := c.ReadU8()
	rmid, _ := c.ReadU8()
	if err := c.Skip(2); err != nil {
		return nil, 0, &MalformedRecord{Offset: recordStart, Reason: "truncated prefix padding"}
	}
	crc, _ := c.ReadU32()

	if totalLen < shortHeaderSizeRecordPrefix {
		return nil, 0, &MalformedRecord{Offset: recordStart, Reason: fmt.Sprintf("total_len %d below minimum prefix size", totalLen)}
	}
	remaining := int64(len(d.buf)) - recordStart
	if int64(totalLen) > remaining {
		return nil, 0, &MalformedRecord{Offset: recordStart, Reason: fmt.Sprintf("total_len %d exceeds %d remaining segment bytes", totalLen, remaining)}
	}

	bodyLen := int(totalLen) - shortHeaderSizeRecordPrefix
	bodyStart := recordStart + shortHeaderSizeRecordPrefix
	body, next, truncated := d.assembleBody(bodyStart, bodyLen)
	if truncated {
		return nil, 0, &TruncatedRecord{Offset: recordStart, WantBytes: bodyLen, AvailBytes: len(body)}
	}

	blocks, mainData, err := parseBody(body)
	if err != nil {
		return nil, 0, &MalformedRecord{Offset: recordStart, Reason: fmt.Sprintf("record body: %v", err)}
	}

	rec := &Record{
		TotalLen:    totalLen,
		XID:         xid,
		PrevLSN:     lsn.LSN(prevLSNRaw),
		Info:        info,
		Rmid:        RmgrID(rmid),
		CRC:         crc,
		Blocks:      blocks,
		MainData:    mainData,
		StartOffset: recordStart,
		StartLSN:    d.currentLSN(recordStart),
	}
	return rec, next, nil
}

// shortHeaderSizeRecordPrefix is the fixed 24-byte record prefix
// (distinct from shortHeaderSize, the page header, even though both
// happen to be 24 bytes).
const shortHeaderSizeRecordPrefix = 24

// assembleBody collects n bytes starting at start, skipping the
// 24-byte short header whenever it crosses a page boundary, per §4.3
// step 3. This is the capability neither the original Python reader
// nor the teacher demonstrate directly (see DESIGN.md).
func (d *SegmentDecoder) assembleBody(start int64, n int) (body []byte, next int64, truncated bool) {
	body = make([]byte, 0, n)
	pos := start

	for len(body) < n {
		if pos >= int64(len(d.buf)) {
			return body, pos, true
		}
		if d.blockSize > 0 && pos%int64(d.blockSize) == 0 && pos != 0 {
			pos += shortHeaderSize
			continue
		}

		pageStart := (pos / int64(d.blockSize)) * int64(d.blockSize)
		payloadEnd := pageStart + int64(d.blockSize)
		if payloadEnd > int64(len(d.buf)) {
			payloadEnd = int64(len(d.buf))
		}

		take := payloadEnd - pos
		need := int64(n - len(body))
		if take > need {
			take = need
		}
		if take <= 0 {
			return body, pos, true
		}
		body = append(body, d.buf[pos:pos+take]...)
		pos += take
	}

	return body, pos, false
}

// RecordsByRmgr filters Records to the given resource manager.
func (d *SegmentDecoder) RecordsByRmgr(rng RecordRange, rmid RmgrID) iter.Seq[RecordOrError] {
	return func(yield func(RecordOrError) bool) {
		for item := range d.Records(rng) {
			if item.Err != nil {
				if !yield(item) {
					return
				}
				continue
			}
			if item.Record.Rmid == rmid {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// RecordsByXID filters Records to the given transaction id.
func (d *SegmentDecoder) RecordsByXID(rng RecordRange, xid uint32) iter.Seq[RecordOrError] {
	return func(yield func(RecordOrError) bool) {
		for item := range d.Records(rng) {
			if item.Err != nil {
				if !yield(item) {
					return
				}
				continue
			}
			if item.Record.XID == xid {
				if !yield(item) {
					return
				}
			}
		}
	}
}
