// Package bitstream provides cached bit readers over byte slices and a
// matching bit writer.
//
// Reader serves most-significant-bit-first reads, the order used by MagicYUV
// slices and codebooks. ReaderLE is the least-significant-bit-first
// counterpart. The two are separate types rather than a mode flag, so the bit
// order is fixed where the reader is declared.
//
// Both readers keep a 64-bit cache. A full refill loads 8 bytes (on init,
// seek and long skips), a half refill loads 4 bytes when a read or peek asks
// for more bits than the cache holds. Reading past the logical end of the
// buffer yields zero bits and never indexes outside the slice.
package bitstream

import (
	"encoding/binary"
	"errors"
	"math"
)

// Padding is the number of trailing bytes conventionally appended to packet
// buffers. The readers do not depend on it.
const Padding = 8

// ErrInvalidSize is returned when a reader is created over an empty buffer or
// with a bit size the buffer cannot hold.
var ErrInvalidSize = errors.New("bitstream: invalid buffer size")

// cursor holds the byte position and bounds shared by both readers.
type cursor struct {
	buf      []byte
	pos      int  // byte offset of the next refill
	bitsLeft uint // valid bits in the cache
	size     int  // logical size in bits
	end      int  // logical size in bytes
}

func (c *cursor) reset(buf []byte, bitSize int) error {
	if len(buf) == 0 || bitSize < 0 || bitSize > math.MaxInt32-7 || bitSize > len(buf)*8 {
		return ErrInvalidSize
	}
	*c = cursor{buf: buf, size: bitSize, end: (bitSize + 7) >> 3}
	return nil
}

// Tell returns the number of bits consumed so far.
func (c *cursor) Tell() int {
	return c.pos*8 - int(c.bitsLeft)
}

// BitsLeft returns the number of bits remaining before the logical end. It
// goes negative once a read has run into the zero tail.
func (c *cursor) BitsLeft() int {
	return c.size - c.Tell()
}

// Size returns the logical size in bits.
func (c *cursor) Size() int {
	return c.size
}

func (c *cursor) be64() uint64 {
	if c.pos >= 0 && c.pos+8 <= c.end {
		return binary.BigEndian.Uint64(c.buf[c.pos:])
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(c.byteAt(c.pos+i))
	}
	return v
}

func (c *cursor) be32() uint32 {
	if c.pos >= 0 && c.pos+4 <= c.end {
		return binary.BigEndian.Uint32(c.buf[c.pos:])
	}
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(c.byteAt(c.pos+i))
	}
	return v
}

func (c *cursor) le64() uint64 {
	if c.pos >= 0 && c.pos+8 <= c.end {
		return binary.LittleEndian.Uint64(c.buf[c.pos:])
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(c.byteAt(c.pos+i))
	}
	return v
}

func (c *cursor) le32() uint32 {
	if c.pos >= 0 && c.pos+4 <= c.end {
		return binary.LittleEndian.Uint32(c.buf[c.pos:])
	}
	var v uint32
	for i := 3; i >= 0; i-- {
		v = v<<8 | uint32(c.byteAt(c.pos+i))
	}
	return v
}

func (c *cursor) byteAt(i int) byte {
	if i < 0 || i >= c.end {
		return 0
	}
	return c.buf[i]
}

// Reader reads bits most-significant-bit first.
type Reader struct {
	cursor
	cache uint64 // valid bits are left aligned
}

// NewReader creates a reader over the first bitSize bits of buf.
func NewReader(buf []byte, bitSize int) (*Reader, error) {
	r := &Reader{}
	if err := r.Reset(buf, bitSize); err != nil {
		return nil, err
	}
	return r, nil
}

// NewReaderBytes creates a reader over all of buf.
func NewReaderBytes(buf []byte) (*Reader, error) {
	return NewReader(buf, len(buf)*8)
}

// Reset points the reader at a new buffer.
func (r *Reader) Reset(buf []byte, bitSize int) error {
	if err := r.cursor.reset(buf, bitSize); err != nil {
		return err
	}
	r.refillAll()
	return nil
}

func (r *Reader) refillAll() {
	r.cache = r.be64()
	r.pos += 8
	r.bitsLeft = 64
}

// refillHalf requires bitsLeft <= 32.
func (r *Reader) refillHalf() {
	r.cache |= uint64(r.be32()) << (32 - r.bitsLeft)
	r.pos += 4
	r.bitsLeft += 32
}

func (r *Reader) getVal(n uint) uint64 {
	if n == 0 {
		return 0
	}
	v := r.cache >> (64 - n)
	r.cache <<= n
	r.bitsLeft -= n
	return v
}

// Read consumes and returns n bits, 0 <= n <= 32.
func (r *Reader) Read(n uint) uint32 {
	if n > r.bitsLeft {
		r.refillHalf()
	}
	return uint32(r.getVal(n))
}

// ReadBit consumes a single bit.
func (r *Reader) ReadBit() uint32 {
	return r.Read(1)
}

// Read63 consumes and returns n bits, 0 <= n <= 63.
func (r *Reader) Read63(n uint) uint64 {
	if n <= r.bitsLeft {
		return r.getVal(n)
	}
	left := r.bitsLeft
	v := r.getVal(left)
	r.refillAll()
	n -= left
	return v<<n | r.getVal(n)
}

// ReadSigned reads n bits and sign-extends them.
func (r *Reader) ReadSigned(n uint) int32 {
	if n == 0 {
		return 0
	}
	v := r.Read(n)
	return int32(v<<(32-n)) >> (32 - n)
}

// Peek returns the next n bits (0 <= n <= 32) without consuming them.
func (r *Reader) Peek(n uint) uint32 {
	if n > r.bitsLeft {
		r.refillHalf()
	}
	if n == 0 {
		return 0
	}
	return uint32(r.cache >> (64 - n))
}

// Skip discards n bits.
func (r *Reader) Skip(n uint) {
	if n <= r.bitsLeft {
		r.cache <<= n
		r.bitsLeft -= n
		return
	}
	n -= r.bitsLeft
	r.cache = 0
	r.bitsLeft = 0
	if n >= 64 {
		whole := n / 8
		n -= whole * 8
		r.pos += int(whole)
	}
	r.refillAll()
	r.cache <<= n
	r.bitsLeft -= n
}

// Align skips to the next byte boundary.
func (r *Reader) Align() {
	r.Skip(uint(-r.Tell() & 7))
}

// Seek moves to an absolute bit position and re-primes the cache.
func (r *Reader) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	r.pos = pos >> 3
	r.refillAll()
	n := uint(pos & 7)
	r.cache <<= n
	r.bitsLeft -= n
}

// Unget pushes the low n bits of value (n <= 32) back in front of the
// reader, so the next read returns them first. The bits must be ones
// previously consumed from this reader.
func (r *Reader) Unget(value uint64, n uint) {
	if n == 0 {
		return
	}
	if r.bitsLeft+n > 64 {
		// Give back the last four loaded bytes to make room.
		keep := r.bitsLeft - 32
		r.cache &= ^uint64(0) << (64 - keep)
		r.bitsLeft = keep
		r.pos -= 4
	}
	value &= 1<<n - 1
	r.cache = r.cache>>n | value<<(64-n)
	r.bitsLeft += n
}
