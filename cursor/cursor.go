// Package cursor provides a bounded, position-tracked reader over a
// byte buffer with fixed-width little-endian integer reads.
package cursor

import "encoding/binary"

// Cursor reads sequentially through an in-memory byte buffer, tracking
// its own position. It never holds a file descriptor; callers own the
// underlying buffer's lifetime.
type Cursor struct {
	buf []byte
	pos int
}

// New wraps buf in a Cursor starting at position 0.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Tell returns the current position.
func (c *Cursor) Tell() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// IsEOF reports whether the cursor has consumed the entire buffer.
func (c *Cursor) IsEOF() bool {
	return c.pos >= len(c.buf)
}

// Len returns the total buffer length.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Seek moves the cursor to an absolute position. pos must lie in
// [0, Len()]; anything else fails with OutOfRangeError.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return &OutOfRangeError{Pos: pos, Len: len(c.buf)}
	}
	c.pos = pos
	return nil
}

// Skip advances the cursor by n bytes, failing with UnexpectedEOFError
// if fewer than n bytes remain.
func (c *Cursor) Skip(n int) error {
	if n < 0 || n > c.Remaining() {
		return &UnexpectedEOFError{Requested: n, Remaining: c.Remaining()}
	}
	c.pos += n
	return nil
}

// ReadBytes returns the next n bytes and advances the cursor. The
// returned slice aliases the underlying buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, &UnexpectedEOFError{Requested: n, Remaining: c.Remaining()}
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// PeekBytes returns up to n bytes starting at the current position
// without advancing. It never fails; at EOF it returns whatever is
// available, possibly an empty slice.
func (c *Cursor) PeekBytes(n int) []byte {
	if n < 0 {
		n = 0
	}
	avail := c.Remaining()
	if n > avail {
		n = avail
	}
	return c.buf[c.pos : c.pos+n]
}

// ReadU8 reads a single byte.
func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadI32 reads a little-endian int32.
func (c *Cursor) ReadI32() (int32, error) {
	v, err := c.ReadU32()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadI64 reads a little-endian int64.
func (c *Cursor) ReadI64() (int64, error) {
	v, err := c.ReadU64()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// ReadString reads exactly n bytes and strips a single trailing NUL
// terminator, if present.
func (c *Cursor) ReadString(n int) (string, error) {
	b, err := c.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

// ReadCString reads bytes up to the next NUL byte (consumed and
// discarded) or EOF, whichever comes first.
func (c *Cursor) ReadCString() (string, error) {
	rest := c.buf[c.pos:]
	for i, b := range rest {
		if b == 0 {
			s := string(rest[:i])
			c.pos += i + 1
			return s, nil
		}
	}
	s := string(rest)
	c.pos = len(c.buf)
	return s, nil
}
