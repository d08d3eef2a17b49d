// Package mct implements the reversible green-difference transform MagicYUV
// applies to GBR planes.
//
// Encoders code the blue and red planes as differences against green. The
// decoder adds green back, modulo the sample range:
//
//	B = (B' + G) & max
//	R = (R' + G) & max
package mct

// InverseDecorrelate adds g to b and r in place. All slices must have the
// same length.
func InverseDecorrelate(b, g, r []uint16, max uint16) {
	if len(g) == 0 {
		return
	}
	_ = b[len(g)-1]
	_ = r[len(g)-1]
	for i, gv := range g {
		b[i] = (b[i] + gv) & max
		r[i] = (r[i] + gv) & max
	}
}

// ForwardDecorrelate subtracts g from b and r in place.
func ForwardDecorrelate(b, g, r []uint16, max uint16) {
	if len(g) == 0 {
		return
	}
	_ = b[len(g)-1]
	_ = r[len(g)-1]
	for i, gv := range g {
		b[i] = (b[i] - gv) & max
		r[i] = (r[i] - gv) & max
	}
}

// InverseDecorrelateRows applies InverseDecorrelate to rows of width samples
// in three plane buffers that share one stride.
func InverseDecorrelateRows(b, g, r []uint16, stride, width, rows int, max uint16) {
	for y := 0; y < rows; y++ {
		off := y * stride
		InverseDecorrelate(b[off:off+width], g[off:off+width], r[off:off+width], max)
	}
}

// ForwardDecorrelateRows is the row form of ForwardDecorrelate.
func ForwardDecorrelateRows(b, g, r []uint16, stride, width, rows int, max uint16) {
	for y := 0; y < rows; y++ {
		off := y * stride
		ForwardDecorrelate(b[off:off+width], g[off:off+width], r[off:off+width], max)
	}
}
