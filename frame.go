package magicyuv

import (
	"image"

	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
)

// Plane holds the samples of one plane, one uint16 per sample regardless of
// bit depth. Pix may hold rows past Height when the last slice of a
// subsampled plane is taller than the visible image.
type Plane struct {
	Width  int
	Height int
	Stride int
	Pix    []uint16
}

// Row returns the visible samples of row y.
func (p *Plane) Row(y int) []uint16 {
	return p.Pix[y*p.Stride : y*p.Stride+p.Width]
}

// Frame is a decoded frame.
type Frame struct {
	Metadata

	// Planes holds the decoded planes in packet order: Y, Cb, Cr for YUV
	// formats and B, G, R for RGB formats, followed by alpha if present.
	Planes []Plane

	// HadErrors is set when at least one slice failed to decode.
	HadErrors bool

	// Errors lists the failed slices by band, then plane.
	Errors []*SliceError
}

func newFrame(h *codestream.Header) *Frame {
	f := &Frame{Metadata: metadataFromHeader(h)}
	f.Planes = make([]Plane, h.Format.Planes)
	for i := range f.Planes {
		w, ph := h.PlaneSize(i)
		f.Planes[i] = Plane{
			Width:  w,
			Height: ph,
			Stride: w,
			Pix:    make([]uint16, w*h.PlaneRows(i)),
		}
	}
	return f
}

// Image converts the frame to an image.Image:
//
//   - 8-bit gray: *image.Gray; 10-bit gray: *image.Gray16
//   - 8-bit YUV: *image.YCbCr, or *image.NYCbCrA with alpha
//   - 10-bit YUV: *image.RGBA64 converted with the frame's color matrix
//   - 8-bit RGB(A): *image.NRGBA; 10 and 12-bit RGB(A): *image.NRGBA64
func (f *Frame) Image() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch {
	case f.NumPlanes == 1 && f.BitDepth == 8:
		return f.toGray(rect)
	case f.NumPlanes == 1:
		return f.toGray16(rect)
	case f.YUV && f.BitDepth == 8:
		return f.toYCbCr(rect)
	case f.YUV:
		return f.toRGBA64(rect)
	case f.BitDepth == 8:
		return f.toNRGBA(rect)
	default:
		return f.toNRGBA64(rect)
	}
}

// scale16 widens a sample of the given depth to 16 bits by bit replication.
func scale16(v uint16, depth int) uint16 {
	return v<<uint(16-depth) | v>>uint(2*depth-16)
}

func put16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func (f *Frame) toGray(rect image.Rectangle) *image.Gray {
	img := image.NewGray(rect)
	p := &f.Planes[0]
	for y := 0; y < f.Height; y++ {
		dst := img.Pix[y*img.Stride:]
		for x, v := range p.Row(y) {
			dst[x] = uint8(v)
		}
	}
	return img
}

func (f *Frame) toGray16(rect image.Rectangle) *image.Gray16 {
	img := image.NewGray16(rect)
	p := &f.Planes[0]
	for y := 0; y < f.Height; y++ {
		dst := img.Pix[y*img.Stride:]
		for x, v := range p.Row(y) {
			put16(dst[2*x:], scale16(v, f.BitDepth))
		}
	}
	return img
}

func copyPlane8(dst []uint8, stride int, p *Plane) {
	for y := 0; y < p.Height; y++ {
		row := dst[y*stride:]
		for x, v := range p.Row(y) {
			row[x] = uint8(v)
		}
	}
}

func (f *Frame) toYCbCr(rect image.Rectangle) image.Image {
	if f.HasAlpha {
		img := image.NewNYCbCrA(rect, f.SubsampleRatio)
		copyPlane8(img.Y, img.YStride, &f.Planes[0])
		copyPlane8(img.Cb, img.CStride, &f.Planes[1])
		copyPlane8(img.Cr, img.CStride, &f.Planes[2])
		copyPlane8(img.A, img.AStride, &f.Planes[3])
		return img
	}
	img := image.NewYCbCr(rect, f.SubsampleRatio)
	copyPlane8(img.Y, img.YStride, &f.Planes[0])
	copyPlane8(img.Cb, img.CStride, &f.Planes[1])
	copyPlane8(img.Cr, img.CStride, &f.Planes[2])
	return img
}

// chromaShift returns the horizontal and vertical chroma subsampling shifts.
func (f *Frame) chromaShift() (int, int) {
	switch f.SubsampleRatio {
	case image.YCbCrSubsampleRatio420:
		return 1, 1
	case image.YCbCrSubsampleRatio422:
		return 1, 0
	default:
		return 0, 0
	}
}

func (f *Frame) toRGBA64(rect image.Rectangle) *image.RGBA64 {
	img := image.NewRGBA64(rect)
	conv := getColorConversion(f.ColorMatrix, f.FullRange)
	hs, vs := f.chromaShift()
	lp, cbp, crp := &f.Planes[0], &f.Planes[1], &f.Planes[2]
	for y := 0; y < f.Height; y++ {
		lum := lp.Row(y)
		cb, cr := cbp.Row(y>>uint(vs)), crp.Row(y>>uint(vs))
		dst := img.Pix[y*img.Stride:]
		for x, yv := range lum {
			r, g, b := conv(int32(yv), int32(cb[x>>uint(hs)]), int32(cr[x>>uint(hs)]), f.BitDepth)
			o := dst[8*x:]
			put16(o[0:], scale16(uint16(r), f.BitDepth))
			put16(o[2:], scale16(uint16(g), f.BitDepth))
			put16(o[4:], scale16(uint16(b), f.BitDepth))
			put16(o[6:], 0xFFFF)
		}
	}
	return img
}

// rgbaPlanes returns the R, G, B and alpha planes; alpha is nil when
// absent.
func (f *Frame) rgbaPlanes() (r, g, b, a *Plane) {
	r, g, b = &f.Planes[2], &f.Planes[1], &f.Planes[0]
	if f.HasAlpha {
		a = &f.Planes[3]
	}
	return r, g, b, a
}

func (f *Frame) toNRGBA(rect image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(rect)
	rp, gp, bp, ap := f.rgbaPlanes()
	for y := 0; y < f.Height; y++ {
		r, g, b := rp.Row(y), gp.Row(y), bp.Row(y)
		var a []uint16
		if ap != nil {
			a = ap.Row(y)
		}
		dst := img.Pix[y*img.Stride:]
		for x := range r {
			o := dst[4*x:]
			o[0], o[1], o[2], o[3] = uint8(r[x]), uint8(g[x]), uint8(b[x]), 0xFF
			if a != nil {
				o[3] = uint8(a[x])
			}
		}
	}
	return img
}

func (f *Frame) toNRGBA64(rect image.Rectangle) *image.NRGBA64 {
	img := image.NewNRGBA64(rect)
	rp, gp, bp, ap := f.rgbaPlanes()
	d := f.BitDepth
	for y := 0; y < f.Height; y++ {
		r, g, b := rp.Row(y), gp.Row(y), bp.Row(y)
		var a []uint16
		if ap != nil {
			a = ap.Row(y)
		}
		dst := img.Pix[y*img.Stride:]
		for x := range r {
			o := dst[8*x:]
			put16(o[0:], scale16(r[x], d))
			put16(o[2:], scale16(g[x], d))
			put16(o[4:], scale16(b[x], d))
			if a != nil {
				put16(o[6:], scale16(a[x], d))
			} else {
				put16(o[6:], 0xFFFF)
			}
		}
	}
	return img
}
