package magicyuv

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
	"github.com/mrjoshuak/go-magicyuv/internal/packettest"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.JointMode != JointBreak {
		t.Errorf("JointMode = %v, want break", opts.JointMode)
	}
	if opts.Workers != 0 {
		t.Errorf("Workers = %d, want 0", opts.Workers)
	}
	if opts.JointBudget <= 0 || opts.MaxPixels <= 0 {
		t.Errorf("JointBudget = %d, MaxPixels = %d", opts.JointBudget, opts.MaxPixels)
	}
}

func TestJointMode_String(t *testing.T) {
	tests := []struct {
		mode JointMode
		want string
	}{
		{JointSkip, "skip"},
		{JointBreak, "break"},
		{JointSymmetric, "symmetric"},
		{JointDisabled, "disabled"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("JointMode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestColorMatrix_String(t *testing.T) {
	if MatrixBT709.String() != "bt709" || MatrixBT601.String() != "bt601" || MatrixUnspecified.String() != "unspecified" {
		t.Error("unexpected color matrix names")
	}
}

// =============================================================================
// Metadata tests
// =============================================================================

func TestDecodeMetadata(t *testing.T) {
	_, pkt := buildFrame(t, packettest.Frame{
		Format:      0x68,
		Width:       32,
		Height:      18,
		SliceHeight: 8,
		Interlaced:  true,
		ColorMatrix: codestream.MatrixBT709,
	}, 1)

	m, err := DecodeMetadata(bytes.NewReader(pkt))
	if err != nil {
		t.Fatalf("DecodeMetadata() error = %v", err)
	}
	if m.Width != 32 || m.Height != 18 {
		t.Errorf("dimensions = %dx%d, want 32x18", m.Width, m.Height)
	}
	if m.Format != "yuv422p" || m.FormatCode != 0x68 || m.NumPlanes != 3 || m.BitDepth != 8 {
		t.Errorf("format = %s %#x planes %d depth %d", m.Format, m.FormatCode, m.NumPlanes, m.BitDepth)
	}
	if !m.YUV || m.HasAlpha || m.SubsampleRatio != image.YCbCrSubsampleRatio422 {
		t.Errorf("YUV = %v, HasAlpha = %v, SubsampleRatio = %v", m.YUV, m.HasAlpha, m.SubsampleRatio)
	}
	if m.ColorMatrix != MatrixBT709 || m.FullRange || !m.Interlaced {
		t.Errorf("ColorMatrix = %v, FullRange = %v, Interlaced = %v", m.ColorMatrix, m.FullRange, m.Interlaced)
	}
	if m.SliceHeight != 8 || m.NumSlices != 3 {
		t.Errorf("SliceHeight = %d, NumSlices = %d", m.SliceHeight, m.NumSlices)
	}
}

func TestDecodeMetadata_Invalid(t *testing.T) {
	if _, err := DecodeMetadata(bytes.NewReader([]byte("MAGY"))); err == nil {
		t.Error("DecodeMetadata() succeeded on a bare tag")
	}
}

func TestMetadata_ColorModel(t *testing.T) {
	tests := []struct {
		code byte
		want color.Model
	}{
		{0x6b, color.GrayModel},
		{0x73, color.Gray16Model},
		{0x69, color.YCbCrModel},
		{0x6a, color.NYCbCrAModel},
		{0x6c, color.RGBA64Model},
		{0x65, color.NRGBAModel},
		{0x70, color.NRGBA64Model},
	}
	for _, tt := range tests {
		_, pkt := buildFrame(t, packettest.Frame{Format: tt.code, Width: 4, Height: 4}, 1)
		cfg, err := DecodeConfig(bytes.NewReader(pkt))
		if err != nil {
			t.Fatalf("format %#x: DecodeConfig() error = %v", tt.code, err)
		}
		if cfg.ColorModel != tt.want {
			t.Errorf("format %#x: ColorModel = %v", tt.code, cfg.ColorModel)
		}
		if cfg.Width != 4 || cfg.Height != 4 {
			t.Errorf("format %#x: config = %dx%d", tt.code, cfg.Width, cfg.Height)
		}
	}
}

// =============================================================================
// Registration tests
// =============================================================================

func TestImageDecode_Registration(t *testing.T) {
	src, pkt := buildFrame(t, packettest.Frame{Format: 0x6b, Width: 9, Height: 5}, 4)

	img, format, err := image.Decode(bytes.NewReader(pkt))
	if err != nil {
		t.Fatalf("image.Decode() error = %v", err)
	}
	if format != "magicyuv" {
		t.Errorf("format = %q, want magicyuv", format)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("image type = %T, want *image.Gray", img)
	}
	if got, want := gray.GrayAt(3, 2).Y, uint8(src.Planes[0][2*9+3]); got != want {
		t.Errorf("GrayAt(3, 2) = %d, want %d", got, want)
	}
}

func TestImageDecodeConfig_Registration(t *testing.T) {
	_, pkt := buildFrame(t, packettest.Frame{Format: 0x66, Width: 7, Height: 3}, 4)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(pkt))
	if err != nil {
		t.Fatalf("image.DecodeConfig() error = %v", err)
	}
	if format != "magicyuv" || cfg.Width != 7 || cfg.Height != 3 {
		t.Errorf("DecodeConfig() = %q %dx%d", format, cfg.Width, cfg.Height)
	}
}

func TestDecodeWithOptions(t *testing.T) {
	src, pkt := buildFrame(t, packettest.Frame{Format: 0x65, Width: 6, Height: 6, SliceHeight: 2}, 8)
	opts := DefaultOptions()
	opts.JointMode = JointSymmetric
	opts.Workers = 2

	img, err := DecodeWithOptions(bytes.NewReader(pkt), opts)
	if err != nil {
		t.Fatalf("DecodeWithOptions() error = %v", err)
	}
	c := img.(*image.NRGBA).NRGBAAt(5, 4)
	i := 4*6 + 5
	want := color.NRGBA{R: uint8(src.Planes[2][i]), G: uint8(src.Planes[1][i]), B: uint8(src.Planes[0][i]), A: 0xFF}
	if c != want {
		t.Errorf("NRGBAAt(5, 4) = %v, want %v", c, want)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode(bytes.NewReader(nil)); err == nil {
		t.Error("Decode() succeeded on empty input")
	}
}
