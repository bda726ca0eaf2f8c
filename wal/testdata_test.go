package wal

func putU16(data []byte, offset int, val uint16) {
	data[offset] = byte(val)
	data[offset+1] = byte(val >> 8)
}

func putU32(data []byte, offset int, val uint32) {
	data[offset] = byte(val)
	data[offset+1] = byte(val >> 8)
	data[offset+2] = byte(val >> 16)
	data[offset+3] = byte(val >> 24)
}

func putU64(data []byte, offset int, val uint64) {
	for i := 0; i < 8; i++ {
		data[offset+i] = byte(val >> (i * 8))
	}
}

// newSegmentBuffer builds a synthetic segment: a long header (page 0)
// followed by enough zeroed pages to hold numPages total.
func newSegmentBuffer(blockSize, numPages int) []byte {
	buf := make([]byte, blockSize*numPages)
	putU64(buf, 0, 0xABCDEF0123456789) // system identifier
	putU32(buf, 8, uint32(blockSize*numPages))
	putU32(buf, 12, uint32(blockSize))
	putU32(buf, 16, uint32(blockSize*numPages))

	for p := 1; p < numPages; p++ {
		off := p * blockSize
		putU16(buf, off, XLogPageMagic)
		// info, tli, prev_page_lsn, page_lsn left zero
	}
	return buf
}

// putRecordPrefix writes a 24-byte record prefix at off.
func putRecordPrefix(buf []byte, off int, totalLen, xid uint32, prevLSN uint64, info, rmid uint8, crc uint32) {
	putU32(buf, off, totalLen)
	putU32(buf, off+4, xid)
	putU64(buf, off+8, prevLSN)
	buf[off+16] = info
	buf[off+17] = rmid
	buf[off+18] = 0
	buf[off+19] = 0
	putU32(buf, off+20, crc)
}
