package bitstream

// Writer accumulates bits most-significant-bit first into a byte slice.
type Writer struct {
	buf []byte
	acc uint64 // pending bits, right aligned
	cnt uint   // number of pending bits (0-7 between calls)
}

// NewWriter creates a writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// WriteBits writes the low n bits of val, n <= 32.
func (w *Writer) WriteBits(val uint32, n uint) {
	if n == 0 {
		return
	}
	w.acc = w.acc<<n | uint64(val)&(1<<n-1)
	w.cnt += n
	for w.cnt >= 8 {
		w.cnt -= 8
		w.buf = append(w.buf, byte(w.acc>>w.cnt))
	}
	w.acc &= 1<<w.cnt - 1
}

// WriteBit writes a single bit.
func (w *Writer) WriteBit(bit uint32) {
	w.WriteBits(bit, 1)
}

// Align pads with zero bits up to the next byte boundary.
func (w *Writer) Align() {
	if w.cnt > 0 {
		w.WriteBits(0, 8-w.cnt)
	}
}

// Len returns the number of bits written.
func (w *Writer) Len() int {
	return len(w.buf)*8 + int(w.cnt)
}

// Bytes aligns the writer and returns the written bytes.
func (w *Writer) Bytes() []byte {
	w.Align()
	return w.buf
}
