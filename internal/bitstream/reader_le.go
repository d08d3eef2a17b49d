package bitstream

// ReaderLE reads bits least-significant-bit first.
type ReaderLE struct {
	cursor
	cache uint64 // valid bits are right aligned
}

// NewReaderLE creates a little-endian reader over the first bitSize bits of buf.
func NewReaderLE(buf []byte, bitSize int) (*ReaderLE, error) {
	r := &ReaderLE{}
	if err := r.Reset(buf, bitSize); err != nil {
		return nil, err
	}
	return r, nil
}

// Reset points the reader at a new buffer.
func (r *ReaderLE) Reset(buf []byte, bitSize int) error {
	if err := r.cursor.reset(buf, bitSize); err != nil {
		return err
	}
	r.refillAll()
	return nil
}

func (r *ReaderLE) refillAll() {
	r.cache = r.le64()
	r.pos += 8
	r.bitsLeft = 64
}

func (r *ReaderLE) refillHalf() {
	r.cache |= uint64(r.le32()) << r.bitsLeft
	r.pos += 4
	r.bitsLeft += 32
}

func (r *ReaderLE) getVal(n uint) uint64 {
	if n == 0 {
		return 0
	}
	if n == 64 {
		v := r.cache
		r.cache = 0
		r.bitsLeft = 0
		return v
	}
	v := r.cache & (1<<n - 1)
	r.cache >>= n
	r.bitsLeft -= n
	return v
}

// Read consumes and returns n bits, 0 <= n <= 32.
func (r *ReaderLE) Read(n uint) uint32 {
	if n > r.bitsLeft {
		r.refillHalf()
	}
	return uint32(r.getVal(n))
}

// ReadBit consumes a single bit.
func (r *ReaderLE) ReadBit() uint32 {
	return r.Read(1)
}

// Read63 consumes and returns n bits, 0 <= n <= 63.
func (r *ReaderLE) Read63(n uint) uint64 {
	if n <= r.bitsLeft {
		return r.getVal(n)
	}
	left := r.bitsLeft
	v := r.getVal(left)
	r.refillAll()
	return v | r.getVal(n-left)<<left
}

// ReadSigned reads n bits and sign-extends them.
func (r *ReaderLE) ReadSigned(n uint) int32 {
	if n == 0 {
		return 0
	}
	v := r.Read(n)
	return int32(v<<(32-n)) >> (32 - n)
}

// Peek returns the next n bits (0 <= n <= 32) without consuming them.
func (r *ReaderLE) Peek(n uint) uint32 {
	if n > r.bitsLeft {
		r.refillHalf()
	}
	return uint32(r.cache & (1<<n - 1))
}

// Skip discards n bits.
func (r *ReaderLE) Skip(n uint) {
	if n <= r.bitsLeft {
		r.getVal(n)
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
	r.getVal(n)
}

// Align skips to the next byte boundary.
func (r *ReaderLE) Align() {
	r.Skip(uint(-r.Tell() & 7))
}

// Seek moves to an absolute bit position and re-primes the cache.
func (r *ReaderLE) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	r.pos = pos >> 3
	r.refillAll()
	r.getVal(uint(pos & 7))
}

// Unget pushes the low n bits of value (n <= 32) back in front of the reader.
func (r *ReaderLE) Unget(value uint64, n uint) {
	if n == 0 {
		return
	}
	if r.bitsLeft+n > 64 {
		keep := r.bitsLeft - 32
		r.cache &= 1<<keep - 1
		r.bitsLeft = keep
		r.pos -= 4
	}
	r.cache = r.cache<<n | value&(1<<n-1)
	r.bitsLeft += n
}
