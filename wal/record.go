package wal

import (
	"fmt"

	"github.com/nyx-wal/pgwal/cursor"
	"github.com/nyx-wal/pgwal/lsn"
)

// Tag bytes that terminate or divert a record body's otherwise regular
// block-reference sequence.
const (
	tagMainDataShort = 0xFF
	tagMainDataLong  = 0xFE
	tagOrigin        = 0xFD
	tagTopLevelXID   = 0xFC
)

// Block-reference fork_flags bits.
const (
	forkFlagHasImage = 0x10
	forkFlagHasData  = 0x20
	forkFlagWillInit = 0x40
	forkFlagSameRel  = 0x80
	forkNumMask      = 0x0F
)

// Block-image bimg_info bits.
const (
	bimgHasHole      = 0x01
	bimgApply        = 0x02
	bimgCompressMask = 0x1C
)

// XLR_INFO_MASK / XLR_RMGR_INFO_MASK, per §3/§6.
const (
	InfoMask     = 0x0F
	RmgrInfoMask = 0xF0

	// Flag bits carried within the low nibble; resource-manager opcodes
	// use the high nibble (RmgrInfoMask).
	InfoSpecialRelUpdate = 0x01
	InfoCheckConsistency = 0x02
)

// RelFileNode identifies the tablespace/database/relation a block
// reference points at.
type RelFileNode struct {
	SpcNode uint32
	DbNode  uint32
	RelNode uint32
}

// BlockImage is the optional backup page image attached to a block
// reference.
type BlockImage struct {
	Len         uint16
	HoleOffset  uint16
	BimgInfo    uint8
	HasHole     bool
	ShouldApply bool
	HoleLength  uint16
	Data        []byte
}

// BlockRef is one block reference entry within a record's body.
type BlockRef struct {
	ID        uint8
	ForkFlags uint8
	ForkNum   uint8
	HasImage  bool
	HasData   bool
	WillInit  bool
	SameRel   bool
	RelNode   *RelFileNode
	BlockNum  uint32
	Image     *BlockImage
	Data      []byte
}

// Record is one decoded WAL record: the fixed 24-byte prefix plus its
// parsed block references and main data.
type Record struct {
	TotalLen uint32
	XID      uint32
	PrevLSN  lsn.LSN
	Info     uint8
	Rmid     RmgrID
	CRC      uint32
	Blocks   []BlockRef
	MainData []byte

	// StartOffset is the byte offset of the record's prefix within the
	// segment buffer.
	StartOffset int64
	// StartLSN is the segment's base LSN combined with StartOffset; see
	// the base-LSN discussion on SegmentDecoder.
	StartLSN lsn.LSN
}

// RmgrInfo returns the flag bits of Info (the low nibble, InfoMask:
// SPECIAL_REL_UPDATE/CHECK_CONSISTENCY). The opcode is not included.
func (r *Record) RmgrInfo() uint8 {
	return r.Info & InfoMask
}

// IsSpecialRelUpdate reports the SPECIAL_REL_UPDATE flag.
func (r *Record) IsSpecialRelUpdate() bool {
	return r.Info&InfoSpecialRelUpdate != 0
}

// IsConsistencyCheck reports the CHECK_CONSISTENCY flag.
func (r *Record) IsConsistencyCheck() bool {
	return r.Info&InfoCheckConsistency != 0
}

// parseBody consumes an assembled record body, returning its block
// references and main data. It stops at the first main-data marker,
// matching the on-disk encoding where main data always terminates the
// body.
func parseBody(body []byte) ([]BlockRef, []byte, error) {
	c := cursor.New(body)
	var blocks []BlockRef

	for !c.IsEOF() {
		tagByte := c.PeekBytes(1)
		if len(tagByte) == 0 {
			break
		}

		switch tagByte[0] {
		case tagMainDataShort:
			_ = c.Skip(1)
			n, err := c.ReadU8()
			if err != nil {
				return blocks, nil, err
			}
			data, err := c.ReadBytes(int(n))
			if err != nil {
				return blocks, nil, err
			}
			return blocks, data, nil

		case tagMainDataLong:
			_ = c.Skip(1)
			n, err := c.ReadU32()
			if err != nil {
				return blocks, nil, err
			}
			data, err := c.ReadBytes(int(n))
			if err != nil {
				return blocks, nil, err
			}
			return blocks, data, nil

		case tagOrigin:
			_ = c.Skip(1)
			if err := c.Skip(2); err != nil {
				return blocks, nil, err
			}

		case tagTopLevelXID:
			_ = c.Skip(1)
			if err := c.Skip(4); err != nil {
				return blocks, nil, err
			}

		default:
			ref, err := parseBlockReference(c)
			if err != nil {
				return blocks, nil, err
			}
			blocks = append(blocks, ref)
		}
	}

	return blocks, nil, nil
}

func parseBlockReference(c *cursor.Cursor) (BlockRef, error) {
	id, err := c.ReadU8()
	if err != nil {
		return BlockRef{}, err
	}
	forkFlags, err := c.ReadU8()
	if err != nil {
		return BlockRef{}, err
	}
	dataLen, err := c.ReadU16()
	if err != nil {
		return BlockRef{}, err
	}

	ref := BlockRef{
		ID:        id,
		ForkFlags: forkFlags,
		ForkNum:   forkFlags & forkNumMask,
		HasImage:  forkFlags&forkFlagHasImage != 0,
		HasData:   forkFlags&forkFlagHasData != 0,
		WillInit:  forkFlags&forkFlagWillInit != 0,
		SameRel:   forkFlags&forkFlagSameRel != 0,
	}

	if ref.HasImage {
		img, err := parseBlockImage(c)
		if err != nil {
			return ref, err
		}
		ref.Image = img
	}

	if !ref.SameRel {
		spc, err := c.ReadU32()
		if err != nil {
			return ref, err
		}
		db, err := c.ReadU32()
		if err != nil {
			return ref, err
		}
		rel, err := c.ReadU32()
		if err != nil {
			return ref, err
		}
		ref.RelNode = &RelFileNode{SpcNode: spc, DbNode: db, RelNode: rel}
	}

	blockNum, err := c.ReadU32()
	if err != nil {
		return ref, err
	}
	ref.BlockNum = blockNum

	if ref.HasData {
		data, err := c.ReadBytes(int(dataLen))
		if err != nil {
			return ref, err
		}
		ref.Data = data
	}

	return ref, nil
}

func parseBlockImage(c *cursor.Cursor) (*BlockImage, error) {
	length, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	holeOff, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	bimgInfo, err := c.ReadU8()
	if err != nil {
		return nil, err
	}

	img := &BlockImage{
		Len:         length,
		HoleOffset:  holeOff,
		BimgInfo:    bimgInfo,
		HasHole:     bimgInfo&bimgHasHole != 0,
		ShouldApply: bimgInfo&bimgApply != 0,
	}

	if img.HasHole && bimgInfo&bimgCompressMask != 0 {
		holeLen, err := c.ReadU16()
		if err != nil {
			return img, err
		}
		img.HoleLength = holeLen
	}

	data, err := c.ReadBytes(int(length))
	if err != nil {
		return img, fmt.Errorf("wal: block image data: %w", err)
	}
	img.Data = data
	return img, nil
}
