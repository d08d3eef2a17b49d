// Package magicyuv provides a pure Go decoder for MagicYUV video frames.
//
// MagicYUV is a lossless intra-frame codec. Each frame is split into
// horizontal slices that are Huffman coded against a spatial predictor and
// decode independently. This package decodes version 7 packets in 8, 10 and
// 12-bit gray, YUV and RGB(A) formats.
//
// Basic usage for decoding one packet:
//
//	pkt, _ := os.ReadFile("frame.magy")
//	img, err := magicyuv.Decode(bytes.NewReader(pkt))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// A Decoder keeps its code tables between frames, so decoding a stream of
// packets through one Decoder avoids rebuilding them:
//
//	dec := magicyuv.NewDecoder(nil)
//	for _, pkt := range packets {
//	    frame, err := dec.DecodeFrame(ctx, pkt)
//	    ...
//	}
package magicyuv

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"

	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
	"github.com/mrjoshuak/go-magicyuv/internal/joint"
)

// JointMode selects how the decoder builds its multi-symbol lookup tables.
type JointMode int

const (
	// JointSkip examines every code short enough to combine.
	JointSkip JointMode = JointMode(joint.ModeSkip)
	// JointBreak stops examining codes at the first one that is too long.
	JointBreak JointMode = JointMode(joint.ModeBreak)
	// JointSymmetric examines residual values from both ends of the
	// alphabet inward.
	JointSymmetric JointMode = JointMode(joint.ModeSymmetric)
	// JointDisabled decodes one symbol per lookup.
	JointDisabled JointMode = 3
)

// String returns the string representation of the mode.
func (m JointMode) String() string {
	if m == JointDisabled {
		return "disabled"
	}
	return joint.Mode(m).String()
}

// ColorMatrix is the YUV matrix a frame declares.
type ColorMatrix uint8

const (
	// MatrixUnspecified frames are converted with BT.601.
	MatrixUnspecified ColorMatrix = ColorMatrix(codestream.MatrixUnspecified)
	MatrixBT601       ColorMatrix = ColorMatrix(codestream.MatrixBT601)
	MatrixBT709       ColorMatrix = ColorMatrix(codestream.MatrixBT709)
)

// String returns the string representation of the matrix.
func (m ColorMatrix) String() string {
	return codestream.ColorMatrix(m).String()
}

// Options holds the decoding options.
type Options struct {
	// Workers is the number of goroutines decoding slices.
	// 0 means runtime.GOMAXPROCS(0).
	Workers int

	// JointMode selects the multi-symbol table construction.
	JointMode JointMode

	// JointBudget bounds the codes examined while building each
	// multi-symbol table. 0 means the package default.
	JointBudget int

	// MaxPixels rejects frames with more pixels. 0 means no limit.
	MaxPixels int

	// Logger receives debug events about table rebuilds and slice
	// failures. nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default decoding options.
func DefaultOptions() *Options {
	return &Options{
		JointMode:   JointBreak,
		JointBudget: joint.DefaultBudget,
		MaxPixels:   1 << 28,
	}
}

// Metadata describes a frame without decoding it.
type Metadata struct {
	// Width is the frame width in pixels.
	Width int

	// Height is the frame height in pixels.
	Height int

	// Format is the pixel format name, such as "yuv420p" or "gbrap10".
	Format string

	// FormatCode is the format byte of the packet header.
	FormatCode byte

	// NumPlanes is the number of coded planes.
	NumPlanes int

	// BitDepth is the number of bits per sample.
	BitDepth int

	// YUV is set for Y'CbCr formats.
	YUV bool

	// HasAlpha is set when the last plane is alpha.
	HasAlpha bool

	// SubsampleRatio is the chroma subsampling of YUV formats.
	SubsampleRatio image.YCbCrSubsampleRatio

	// ColorMatrix is the declared YUV matrix.
	ColorMatrix ColorMatrix

	// FullRange is set when YUV samples use the full sample range.
	FullRange bool

	// Interlaced is set when the fields are predicted separately.
	Interlaced bool

	// SliceHeight is the height of each slice in luma rows.
	SliceHeight int

	// NumSlices is the number of slices per plane.
	NumSlices int
}

func metadataFromHeader(h *codestream.Header) Metadata {
	f := h.Format
	m := Metadata{
		Width:       int(h.Width),
		Height:      int(h.Height),
		Format:      f.Name,
		FormatCode:  f.Code,
		NumPlanes:   f.Planes,
		BitDepth:    int(f.Depth),
		YUV:         f.YUV,
		HasAlpha:    f.Alpha,
		ColorMatrix: ColorMatrix(h.ColorMatrix),
		FullRange:   h.FullRange(),
		Interlaced:  h.Interlaced(),
		SliceHeight: int(h.SliceHeight),
		NumSlices:   h.NumSlices,
	}
	if f.YUV {
		switch {
		case f.HShift[1] == 1 && f.VShift[1] == 1:
			m.SubsampleRatio = image.YCbCrSubsampleRatio420
		case f.HShift[1] == 1:
			m.SubsampleRatio = image.YCbCrSubsampleRatio422
		default:
			m.SubsampleRatio = image.YCbCrSubsampleRatio444
		}
	}
	return m
}

// ColorModel returns the color model of the image Frame.Image produces.
func (m *Metadata) ColorModel() color.Model {
	switch {
	case m.NumPlanes == 1 && m.BitDepth == 8:
		return color.GrayModel
	case m.NumPlanes == 1:
		return color.Gray16Model
	case m.YUV && m.BitDepth == 8 && m.HasAlpha:
		return color.NYCbCrAModel
	case m.YUV && m.BitDepth == 8:
		return color.YCbCrModel
	case m.YUV:
		return color.RGBA64Model
	case m.BitDepth == 8:
		return color.NRGBAModel
	default:
		return color.NRGBA64Model
	}
}

// Decode reads one MagicYUV packet from r and returns it as an image.Image.
// Slices that fail to decode are left black; use a Decoder to find out
// which.
func Decode(r io.Reader) (image.Image, error) {
	return DecodeWithOptions(r, nil)
}

// DecodeWithOptions decodes one packet with the specified options.
func DecodeWithOptions(r io.Reader, opts *Options) (image.Image, error) {
	pkt, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading packet: %w", err)
	}
	f, err := NewDecoder(opts).DecodeFrame(context.Background(), pkt)
	if err != nil {
		return nil, err
	}
	return f.Image(), nil
}

// DecodeConfig returns the color model and dimensions of a packet without
// decoding it.
func DecodeConfig(r io.Reader) (image.Config, error) {
	m, err := DecodeMetadata(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: m.ColorModel(),
		Width:      m.Width,
		Height:     m.Height,
	}, nil
}

// DecodeMetadata reads only the header information without decoding the
// frame. The whole packet is read because the header is validated against
// the packet size.
func DecodeMetadata(r io.Reader) (*Metadata, error) {
	pkt, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading packet: %w", err)
	}
	h, err := codestream.ParseHeader(pkt)
	if err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	m := metadataFromHeader(h)
	return &m, nil
}

// init registers the MagicYUV format with the image package.
func init() {
	image.RegisterFormat("magicyuv", codestream.Tag, Decode, DecodeConfig)
}
