// Package packettest synthesizes MagicYUV packets for tests.
//
// The builder runs the forward predictors and decorrelation over caller
// supplied planes, derives Huffman code lengths from residual histograms and
// writes a version 7 packet. It makes no attempt at rate control.
package packettest

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/mrjoshuak/go-magicyuv/internal/bitstream"
	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
	"github.com/mrjoshuak/go-magicyuv/internal/mct"
	"github.com/mrjoshuak/go-magicyuv/internal/predict"
	"github.com/mrjoshuak/go-magicyuv/internal/vlc"
)

// Frame describes a packet to build.
type Frame struct {
	Format      byte
	Width       int
	Height      int
	SliceHeight int // 0 means one slice
	Interlaced  bool
	FullRange   bool
	ColorMatrix codestream.ColorMatrix

	// Planes holds the samples of each plane in packet order, Width x Height
	// of the plane (after subsampling), row major. For decorrelated formats
	// the planes are B, G, R and optionally A.
	Planes [][]uint16

	// Predictor selects the method of each slice; nil means Median.
	Predictor func(plane, band int) predict.Method
	// Raw marks slices stored without entropy coding.
	Raw func(plane, band int) bool
	// Lengths overrides the code lengths of a plane when it returns non-nil.
	Lengths func(plane int) []uint8
	// Layout defaults to codestream.LayoutV7.
	Layout *codestream.Layout
}

// Header returns the header geometry the frame will be written with.
func (f *Frame) Header() (*codestream.Header, error) {
	format, ok := codestream.LookupFormat(f.Format)
	if !ok {
		return nil, fmt.Errorf("packettest: unknown format %#x", f.Format)
	}
	sh := f.SliceHeight
	if sh == 0 {
		sh = f.Height
	}
	h := &codestream.Header{
		HeaderSize:  codestream.MinHeaderSize,
		Version:     codestream.Version,
		Format:      format,
		ColorMatrix: f.ColorMatrix,
		Width:       uint32(f.Width),
		Height:      uint32(f.Height),
		SliceWidth:  uint32(f.Width),
		SliceHeight: uint32(sh),
	}
	if f.Interlaced {
		h.Flags |= codestream.FlagInterlaced
	}
	if f.FullRange {
		h.Flags |= codestream.FlagFullRange
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	h.CalculateDerivedValues()
	return h, nil
}

// NewPlanes returns zeroed planes sized for the frame's format.
func (f *Frame) NewPlanes() ([][]uint16, error) {
	h, err := f.Header()
	if err != nil {
		return nil, err
	}
	planes := make([][]uint16, h.Format.Planes)
	for i := range planes {
		w, ph := h.PlaneSize(i)
		planes[i] = make([]uint16, w*ph)
	}
	return planes, nil
}

// Fill sets every plane of f to noise around a smooth gradient, which gives
// skewed residual statistics like real content.
func Fill(f *Frame, rng *rand.Rand) error {
	h, err := f.Header()
	if err != nil {
		return err
	}
	max := int(h.Format.Depth.Max())
	planes, err := f.NewPlanes()
	if err != nil {
		return err
	}
	for i, p := range planes {
		w, ph := h.PlaneSize(i)
		for y := 0; y < ph; y++ {
			for x := 0; x < w; x++ {
				v := (x*7 + y*3 + i*50) + rng.Intn(5) - 2
				p[y*w+x] = uint16(v) & uint16(max)
			}
		}
	}
	f.Planes = planes
	return nil
}

// Build writes the packet.
func Build(f Frame) ([]byte, error) {
	h, err := f.Header()
	if err != nil {
		return nil, err
	}
	format := h.Format
	if len(f.Planes) != format.Planes {
		return nil, fmt.Errorf("packettest: %d planes for %s", len(f.Planes), format.Name)
	}
	layout := codestream.LayoutV7
	if f.Layout != nil {
		layout = *f.Layout
	}
	depth := format.Depth
	max := depth.Max()

	// Copy into buffers covering every coded row.
	bufs := make([][]uint16, format.Planes)
	for i := range bufs {
		w, ph := h.PlaneSize(i)
		if len(f.Planes[i]) != w*ph {
			return nil, fmt.Errorf("packettest: plane %d has %d samples, want %d", i, len(f.Planes[i]), w*ph)
		}
		bufs[i] = make([]uint16, w*h.PlaneRows(i))
		for k, v := range f.Planes[i] {
			bufs[i][k] = v & max
		}
	}
	if format.Decorrelate {
		w, _ := h.PlaneSize(0)
		mct.ForwardDecorrelateRows(bufs[0], bufs[1], bufs[2], w, w, h.PlaneRows(0), max)
	}

	type coded struct {
		method predict.Method
		raw    bool
		res    []uint16
	}
	slices := make([][]coded, format.Planes)
	lengths := make([][]uint8, format.Planes)
	for i := range slices {
		hist := make([]int, depth.Symbols())
		slices[i] = make([]coded, h.NumSlices)
		for j := range slices[i] {
			b := h.Band(i, j)
			m := predict.Median
			if f.Predictor != nil {
				m = f.Predictor(i, j)
			}
			src := predict.Region{Pix: bufs[i][b.Row*b.Width:], Stride: b.Width, Width: b.Width, Height: b.Rows}
			dst := predict.Region{Pix: make([]uint16, b.Width*b.Rows), Stride: b.Width, Width: b.Width, Height: b.Rows}
			if err := predict.Forward(m, dst, src, depth, f.Interlaced); err != nil {
				return nil, err
			}
			c := coded{method: m, raw: f.Raw != nil && f.Raw(i, j), res: dst.Pix}
			if !c.raw {
				for _, v := range c.res {
					hist[v]++
				}
			}
			slices[i][j] = c
		}
		if f.Lengths != nil {
			lengths[i] = f.Lengths(i)
		}
		if lengths[i] == nil {
			lengths[i] = HuffmanLengths(hist, vlc.MaxLen)
		}
	}

	// Code-length tables.
	cw := bitstream.NewWriter(256)
	for i := range lengths {
		if err := codestream.WriteCodebook(cw, lengths[i], layout); err != nil {
			return nil, err
		}
	}
	tables := cw.Bytes()
	if len(tables) < 2 {
		tables = append(tables, 0)
	}

	// Slice data, plane major.
	var data [][]byte
	for i := range slices {
		cs, err := vlc.AssignCanonical(lengths[i], vlc.AllowAbsent)
		if err != nil {
			return nil, err
		}
		for _, c := range slices[i] {
			w := bitstream.NewWriter(len(c.res) + 2)
			if c.raw {
				w.WriteBits(1, 8)
			} else {
				w.WriteBits(0, 8)
			}
			w.WriteBits(uint32(c.method), 8)
			for _, v := range c.res {
				if c.raw {
					w.WriteBits(uint32(v), uint(depth))
					continue
				}
				code, ok := cs.Lookup(int(v))
				if !ok {
					return nil, fmt.Errorf("packettest: plane %d residual %d has no code", i, v)
				}
				w.WriteBits(code.Bits, uint(code.Len))
			}
			// A spare byte keeps the final slice's reader inside its range.
			data = append(data, append(w.Bytes(), 0))
		}
	}

	fixed := 36
	pre := fixed + format.Planes*h.NumSlices*4 + 1 + format.Planes*h.NumSlices + len(tables)
	out := make([]byte, pre, pre+totalLen(data))
	copy(out, codestream.Tag)
	binary.LittleEndian.PutUint32(out[4:], h.HeaderSize)
	out[8] = h.Version
	out[9] = format.Code
	out[11] = byte(h.ColorMatrix)
	out[12] = h.Flags
	binary.LittleEndian.PutUint32(out[16:], h.Width)
	binary.LittleEndian.PutUint32(out[20:], h.Height)
	binary.LittleEndian.PutUint32(out[24:], h.SliceWidth)
	binary.LittleEndian.PutUint32(out[28:], h.SliceHeight)

	pos := fixed
	off := uint32(pre) - h.HeaderSize
	for _, d := range data {
		binary.LittleEndian.PutUint32(out[pos:], off)
		pos += 4
		off += uint32(len(d))
	}
	out[pos] = byte(format.Planes)
	pos += 1 + format.Planes*h.NumSlices
	copy(out[pos:], tables)

	for _, d := range data {
		out = append(out, d...)
	}
	return out, nil
}

func totalLen(data [][]byte) int {
	n := 0
	for _, d := range data {
		n += len(d)
	}
	return n
}

type node struct {
	count int
	sym   int // -1 for internal nodes
	left  *node
	right *node
}

type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].count != h[j].count {
		return h[i].count < h[j].count
	}
	return h[i].sym > h[j].sym
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)   { *h = append(*h, x.(*node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// HuffmanLengths returns code lengths for a histogram. Every symbol gets a
// code, so the table is complete. If the tree is deeper than maxLen the
// lengths fall back to a flat code.
func HuffmanLengths(hist []int, maxLen int) []uint8 {
	n := len(hist)
	lengths := make([]uint8, n)
	if n == 1 {
		lengths[0] = 1
		return lengths
	}

	h := make(nodeHeap, 0, n)
	for s, c := range hist {
		h = append(h, &node{count: c + 1, sym: s})
	}
	heap.Init(&h)
	for h.Len() > 1 {
		a := heap.Pop(&h).(*node)
		b := heap.Pop(&h).(*node)
		heap.Push(&h, &node{count: a.count + b.count, sym: -1, left: a, right: b})
	}

	var walk func(nd *node, depth int) bool
	walk = func(nd *node, depth int) bool {
		if nd.left == nil {
			if depth > maxLen {
				return false
			}
			lengths[nd.sym] = uint8(depth)
			return true
		}
		return walk(nd.left, depth+1) && walk(nd.right, depth+1)
	}
	if walk(h[0], 0) {
		return lengths
	}
	return FlatLengths(n)
}

// FlatLengths returns a complete code for n symbols, n a power of two.
func FlatLengths(n int) []uint8 {
	bits := 0
	for 1<<bits < n {
		bits++
	}
	lengths := make([]uint8, n)
	for i := range lengths {
		lengths[i] = uint8(bits)
	}
	return lengths
}
