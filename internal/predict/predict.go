// Package predict implements the spatial predictors of MagicYUV slices.
//
// A slice is coded as residuals against one of three predictors. The first
// row of a slice (the first two rows of an interlaced slice) is always left
// predicted from zero, so slices decode independently. "Above" means one row
// up, or two rows up in interlaced slices where each field is predicted on
// its own.
//
// Samples are stored in uint16 regardless of depth. Arithmetic wraps modulo
// 2^depth.
package predict

import (
	"errors"
	"fmt"
)

// Depth is a sample bit depth.
type Depth int

const (
	Depth8  Depth = 8
	Depth10 Depth = 10
	Depth12 Depth = 12
)

// Valid reports whether d is a supported depth.
func (d Depth) Valid() bool {
	return d == Depth8 || d == Depth10 || d == Depth12
}

// Max returns the largest sample value, which is also the wrap mask.
func (d Depth) Max() uint16 {
	return uint16(1)<<uint(d) - 1
}

// Symbols returns the size of the residual alphabet.
func (d Depth) Symbols() int {
	return 1 << uint(d)
}

// Method identifies a predictor by its bitstream code.
type Method uint8

const (
	// None stores samples directly.
	None     Method = 0
	Left     Method = 1
	Gradient Method = 2
	Median   Method = 3
)

// ErrUnknownMethod is returned for predictor codes above 3.
var ErrUnknownMethod = errors.New("predict: unknown prediction method")

// Valid reports whether m is a known predictor.
func (m Method) Valid() bool {
	return m <= Median
}

func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case Left:
		return "left"
	case Gradient:
		return "gradient"
	case Median:
		return "median"
	default:
		return fmt.Sprintf("Method(%d)", uint8(m))
	}
}

// Region is a rectangle of samples inside a plane buffer.
type Region struct {
	Pix    []uint16
	Stride int
	Width  int
	Height int
}

func (r Region) row(y int) []uint16 {
	return r.Pix[y*r.Stride : y*r.Stride+r.Width]
}

func median(a, b, c int) int {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}

// Inverse reconstructs the samples of r in place from residuals.
func Inverse(m Method, r Region, d Depth, interlaced bool) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMethod, uint8(m))
	}
	if m == None || r.Width <= 0 || r.Height <= 0 {
		return nil
	}
	max := d.Max()

	fields := 1
	if interlaced {
		fields = 2
	}
	first := fields
	if first > r.Height {
		first = r.Height
	}
	for y := 0; y < first; y++ {
		addLeft(r.row(y), 0, max)
	}

	for y := first; y < r.Height; y++ {
		cur, top := r.row(y), r.row(y-fields)
		switch m {
		case Left:
			addLeft(cur, top[0], max)
		case Gradient:
			addGradient(cur, top, max)
		case Median:
			if d == Depth8 {
				addMedian8(cur, top)
			} else {
				addMedian(cur, top, max)
			}
		}
	}
	return nil
}

func addLeft(row []uint16, acc, max uint16) {
	for x := range row {
		acc = (acc + row[x]) & max
		row[x] = acc
	}
}

func addGradient(row, top []uint16, max uint16) {
	left := (top[0] + row[0]) & max
	row[0] = left
	for x := 1; x < len(row); x++ {
		left = (left + top[x] - top[x-1] + row[x]) & max
		row[x] = left
	}
}

// addMedian8 wraps the gradient term to 8 bits before taking the median.
func addMedian8(row, top []uint16) {
	row[0] = (top[0] + row[0]) & 0xFF
	l := int(row[0])
	for x := 1; x < len(row); x++ {
		t, lt := int(top[x]), int(top[x-1])
		l = (median(l, t, (l+t-lt)&0xFF) + int(row[x])) & 0xFF
		row[x] = uint16(l)
	}
}

func addMedian(row, top []uint16, max uint16) {
	row[0] = (top[0] + row[0]) & max
	l := int(row[0])
	for x := 1; x < len(row); x++ {
		t, lt := int(top[x]), int(top[x-1])
		l = (median(l, t, l+t-lt) + int(row[x])) & int(max)
		row[x] = uint16(l)
	}
}

// Forward writes the residuals of src into dst. The regions must have the
// same dimensions and must not overlap.
func Forward(m Method, dst, src Region, d Depth, interlaced bool) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMethod, uint8(m))
	}
	max := d.Max()
	fields := 1
	if interlaced {
		fields = 2
	}

	for y := 0; y < src.Height; y++ {
		in, out := src.row(y), dst.row(y)
		if m == None {
			copy(out, in)
			continue
		}
		if y < fields {
			subLeft(out, in, 0, max)
			continue
		}
		top := src.row(y - fields)
		if m == Left {
			subLeft(out, in, top[0], max)
			continue
		}
		out[0] = (in[0] - top[0]) & max
		for x := 1; x < len(in); x++ {
			l, t, lt := int(in[x-1]), int(top[x]), int(top[x-1])
			var pred int
			switch {
			case m == Gradient:
				pred = l + t - lt
			case d == Depth8:
				pred = median(l, t, (l+t-lt)&0xFF)
			default:
				pred = median(l, t, l+t-lt)
			}
			out[x] = uint16(int(in[x])-pred) & max
		}
	}
	return nil
}

func subLeft(out, in []uint16, prev, max uint16) {
	for x := range in {
		out[x] = (in[x] - prev) & max
		prev = in[x]
	}
}
