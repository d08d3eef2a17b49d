// Package codestream parses MagicYUV packets: the fixed header, the slice
// index table and the run-length coded code-length tables that precede the
// slice data.
package codestream

import (
	"errors"
	"fmt"

	"github.com/mrjoshuak/go-magicyuv/internal/predict"
)

var (
	// ErrInvalidData is returned for malformed packets.
	ErrInvalidData = errors.New("magicyuv: invalid data")
	// ErrUnsupportedFormat is returned for well-formed packets using a
	// version or pixel format this package does not decode.
	ErrUnsupportedFormat = errors.New("magicyuv: unsupported format")
)

// Tag is the little-endian packet signature "MAGY".
const Tag = "MAGY"

const (
	// Version is the only bitstream version decoded.
	Version = 7
	// MinHeaderSize is the smallest valid header size field.
	MinHeaderSize = 32
	// MaxDimension bounds the frame width and height.
	MaxDimension = 1 << 16
)

// Header flag bits.
const (
	FlagInterlaced = 1 << 1
	FlagFullRange  = 1 << 2
)

// ColorMatrix is the YUV matrix signalled in the header.
type ColorMatrix uint8

const (
	MatrixUnspecified ColorMatrix = 0
	MatrixBT601       ColorMatrix = 1
	MatrixBT709       ColorMatrix = 2
)

func (m ColorMatrix) String() string {
	switch m {
	case MatrixBT601:
		return "bt601"
	case MatrixBT709:
		return "bt709"
	default:
		return "unspecified"
	}
}

// Header is a parsed packet header.
type Header struct {
	HeaderSize  uint32
	Version     uint8
	Format      Format
	ColorMatrix ColorMatrix
	Flags       uint8
	Width       uint32
	Height      uint32
	SliceWidth  uint32
	SliceHeight uint32

	// Derived values
	NumSlices int

	// Offsets holds each plane's slice offsets, relative to HeaderSize.
	Offsets [][]uint32
	// SliceFlags holds the per-slice bytes following the plane count.
	SliceFlags []byte

	// Byte range of the code-length tables within the packet.
	TableStart int
	TableEnd   int

	PacketSize int
}

// Interlaced reports whether fields are predicted separately.
func (h *Header) Interlaced() bool { return h.Flags&FlagInterlaced != 0 }

// FullRange reports whether YUV samples use the full sample range.
func (h *Header) FullRange() bool { return h.Flags&FlagFullRange != 0 }

// Validate checks the header for consistency.
func (h *Header) Validate() error {
	if h.Width == 0 || h.Height == 0 || h.Width > MaxDimension || h.Height > MaxDimension {
		return fmt.Errorf("%w: image dimensions %dx%d", ErrInvalidData, h.Width, h.Height)
	}
	if h.SliceWidth != h.Width {
		return fmt.Errorf("%w: slice width %d differs from image width %d", ErrUnsupportedFormat, h.SliceWidth, h.Width)
	}
	if h.SliceHeight == 0 || h.SliceHeight > 1<<31-1-h.Height {
		return fmt.Errorf("%w: slice height %d", ErrInvalidData, h.SliceHeight)
	}
	if h.Format.Planes == 0 {
		return fmt.Errorf("%w: no pixel format", ErrInvalidData)
	}
	return nil
}

// CalculateDerivedValues computes values derived from the header fields.
func (h *Header) CalculateDerivedValues() {
	if h.SliceHeight > 0 {
		h.NumSlices = int((h.Height + h.SliceHeight - 1) / h.SliceHeight)
	}
}

// Slice locates one plane's share of a horizontal band.
type Slice struct {
	Plane int
	Index int // band number

	Start int // byte range within the packet
	End   int

	Row   int // first plane row of the band
	Rows  int
	Width int
}

func ceilShift(v, s int) int {
	return (v + (1 << uint(s)) - 1) >> uint(s)
}

// PlaneSize returns the visible width and height of plane i.
func (h *Header) PlaneSize(i int) (int, int) {
	return ceilShift(int(h.Width), int(h.Format.HShift[i])), ceilShift(int(h.Height), int(h.Format.VShift[i]))
}

// PlaneRows returns the number of rows the bands of plane i cover. With
// subsampled planes and an odd slice height this can exceed the visible
// height.
func (h *Header) PlaneRows(i int) int {
	if h.NumSlices == 0 {
		return 0
	}
	last := h.Band(i, h.NumSlices-1)
	_, visible := h.PlaneSize(i)
	if end := last.Row + last.Rows; end > visible {
		return end
	}
	return visible
}

// Band returns the geometry of band j of plane i. Start and End are left zero.
func (h *Header) Band(i, j int) Slice {
	vs := int(h.Format.VShift[i])
	sh := int(h.SliceHeight)
	rows := int(h.Height) - j*sh
	if rows > sh {
		rows = sh
	}
	w, _ := h.PlaneSize(i)
	return Slice{
		Plane: i,
		Index: j,
		Row:   j * ceilShift(sh, vs),
		Rows:  ceilShift(rows, vs),
		Width: w,
	}
}

// Slices returns the slices of every plane indexed by plane and band.
func (h *Header) Slices() ([][]Slice, error) {
	dataSize := h.PacketSize - int(h.HeaderSize)
	out := make([][]Slice, h.Format.Planes)
	for i := range out {
		if len(h.Offsets) <= i || len(h.Offsets[i]) != h.NumSlices {
			return nil, fmt.Errorf("%w: plane %d has no slice table", ErrInvalidData, i)
		}
		// The last slice of a plane runs to the end of the packet.
		offsets := append(append([]uint32(nil), h.Offsets[i]...), uint32(dataSize))
		ranges, err := SliceRanges(offsets, uint32(dataSize))
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", i, err)
		}
		out[i] = make([]Slice, h.NumSlices)
		for j := range out[i] {
			s := h.Band(i, j)
			s.Start = int(h.HeaderSize) + int(ranges[j].Start)
			s.End = int(h.HeaderSize) + int(ranges[j].End)
			out[i][j] = s
		}
	}
	return out, nil
}

// Range is a half-open byte range.
type Range struct {
	Start uint32
	End   uint32
}

// Len returns the size of the range.
func (r Range) Len() uint32 { return r.End - r.Start }

// SliceRanges turns a slice index table into byte ranges. Each offset starts
// a slice that ends where the next one starts, or at size for the last one.
// A final offset equal to size only marks the end. Offsets must be strictly
// increasing and within size.
func SliceRanges(offsets []uint32, size uint32) ([]Range, error) {
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: empty slice table", ErrInvalidData)
	}
	n := len(offsets)
	if offsets[n-1] == size && n > 1 {
		n--
	}
	out := make([]Range, n)
	for k := 0; k < n; k++ {
		off := offsets[k]
		if off >= size {
			return nil, fmt.Errorf("%w: slice offset %d outside %d bytes", ErrInvalidData, off, size)
		}
		if k > 0 && off <= offsets[k-1] {
			return nil, fmt.Errorf("%w: slice offsets not increasing at %d", ErrInvalidData, k)
		}
		end := size
		if k+1 < len(offsets) {
			end = offsets[k+1]
		}
		out[k] = Range{Start: off, End: end}
	}
	return out, nil
}

// Format describes a pixel format code.
type Format struct {
	Code        byte
	Name        string
	Planes      int
	Depth       predict.Depth
	HShift      [4]uint8
	VShift      [4]uint8
	Decorrelate bool // planes are B-G, G, R-G (and alpha)
	YUV         bool
	Alpha       bool
}

var formats = map[byte]Format{
	0x65: {Code: 0x65, Name: "gbrp", Planes: 3, Depth: predict.Depth8, Decorrelate: true},
	0x66: {Code: 0x66, Name: "gbrap", Planes: 4, Depth: predict.Depth8, Decorrelate: true, Alpha: true},
	0x67: {Code: 0x67, Name: "yuv444p", Planes: 3, Depth: predict.Depth8, YUV: true},
	0x68: {Code: 0x68, Name: "yuv422p", Planes: 3, Depth: predict.Depth8, YUV: true, HShift: [4]uint8{0, 1, 1}},
	0x69: {Code: 0x69, Name: "yuv420p", Planes: 3, Depth: predict.Depth8, YUV: true, HShift: [4]uint8{0, 1, 1}, VShift: [4]uint8{0, 1, 1}},
	0x6a: {Code: 0x6a, Name: "yuva444p", Planes: 4, Depth: predict.Depth8, YUV: true, Alpha: true},
	0x6b: {Code: 0x6b, Name: "gray8", Planes: 1, Depth: predict.Depth8},
	0x6c: {Code: 0x6c, Name: "yuv422p10", Planes: 3, Depth: predict.Depth10, YUV: true, HShift: [4]uint8{0, 1, 1}},
	0x6d: {Code: 0x6d, Name: "gbrp10", Planes: 3, Depth: predict.Depth10, Decorrelate: true},
	0x6e: {Code: 0x6e, Name: "gbrap10", Planes: 4, Depth: predict.Depth10, Decorrelate: true, Alpha: true},
	0x6f: {Code: 0x6f, Name: "gbrp12", Planes: 3, Depth: predict.Depth12, Decorrelate: true},
	0x70: {Code: 0x70, Name: "gbrap12", Planes: 4, Depth: predict.Depth12, Decorrelate: true, Alpha: true},
	0x73: {Code: 0x73, Name: "gray10", Planes: 1, Depth: predict.Depth10},
}

// LookupFormat returns the format for a header format code.
func LookupFormat(code byte) (Format, bool) {
	f, ok := formats[code]
	return f, ok
}

// Formats returns every supported format code in ascending order.
func Formats() []byte {
	out := make([]byte, 0, len(formats))
	for c := byte(0x65); c <= 0x73; c++ {
		if _, ok := formats[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
