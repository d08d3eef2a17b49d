package codestream_test

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
	"github.com/mrjoshuak/go-magicyuv/internal/packettest"
)

// buildPacket returns a packet for f filled with deterministic content.
func buildPacket(t testing.TB, f packettest.Frame) []byte {
	t.Helper()
	if err := packettest.Fill(&f, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	pkt, err := packettest.Build(f)
	if err != nil {
		t.Fatal(err)
	}
	return pkt
}

// grayPacket is a single plane, single slice packet. Its slice offset sits
// at byte 36, the plane count at 40 and the code tables start at 42.
func grayPacket(t testing.TB) []byte {
	return buildPacket(t, packettest.Frame{Format: 0x6b, Width: 8, Height: 2})
}

// =============================================================================
// Header tests
// =============================================================================

func TestParseHeader(t *testing.T) {
	pkt := buildPacket(t, packettest.Frame{
		Format:      0x69,
		Width:       10,
		Height:      7,
		SliceHeight: 3,
		Interlaced:  true,
		FullRange:   true,
		ColorMatrix: codestream.MatrixBT709,
	})

	h, err := codestream.ParseHeader(pkt)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.Format.Name != "yuv420p" || h.Format.Planes != 3 {
		t.Errorf("Format = %+v", h.Format)
	}
	if h.Width != 10 || h.Height != 7 || h.SliceHeight != 3 {
		t.Errorf("dimensions = %dx%d slice height %d", h.Width, h.Height, h.SliceHeight)
	}
	if h.NumSlices != 3 {
		t.Errorf("NumSlices = %d, want 3", h.NumSlices)
	}
	if !h.Interlaced() || !h.FullRange() {
		t.Errorf("Flags = %#x", h.Flags)
	}
	if h.ColorMatrix != codestream.MatrixBT709 {
		t.Errorf("ColorMatrix = %v", h.ColorMatrix)
	}
	if len(h.SliceFlags) != 9 {
		t.Errorf("len(SliceFlags) = %d, want 9", len(h.SliceFlags))
	}
	if want := 36 + 9*4 + 1 + 9; h.TableStart != want {
		t.Errorf("TableStart = %d, want %d", h.TableStart, want)
	}
	if h.TableEnd != int(h.HeaderSize)+int(h.Offsets[0][0]) {
		t.Errorf("TableEnd = %d", h.TableEnd)
	}
}

func TestParseHeader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"bad tag", func(b []byte) []byte { b[0] = 'X'; return b }, codestream.ErrInvalidData},
		{"header size too small", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:], 31)
			return b
		}, codestream.ErrInvalidData},
		{"header size past packet", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:], uint32(len(b)))
			return b
		}, codestream.ErrInvalidData},
		{"version", func(b []byte) []byte { b[8] = 6; return b }, codestream.ErrUnsupportedFormat},
		{"format", func(b []byte) []byte { b[9] = 0x71; return b }, codestream.ErrUnsupportedFormat},
		{"slice width", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[24:], 4)
			return b
		}, codestream.ErrUnsupportedFormat},
		{"zero width", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[16:], 0)
			binary.LittleEndian.PutUint32(b[24:], 0)
			return b
		}, codestream.ErrInvalidData},
		{"height too large", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[20:], codestream.MaxDimension+1)
			return b
		}, codestream.ErrInvalidData},
		{"zero slice height", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[28:], 0)
			return b
		}, codestream.ErrInvalidData},
		{"offset past data", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[36:], uint32(len(b)-32))
			return b
		}, codestream.ErrInvalidData},
		{"plane count", func(b []byte) []byte { b[40] = 3; return b }, codestream.ErrInvalidData},
		{"short code tables", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[36:], 42+1-32)
			return b
		}, codestream.ErrInvalidData},
		{"truncated in header", func(b []byte) []byte { return b[:20] }, codestream.ErrInvalidData},
		{"truncated in slice table", func(b []byte) []byte { return b[:38] }, codestream.ErrInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := tt.mutate(grayPacket(t))
			_, err := codestream.ParseHeader(pkt)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseHeader() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseHeader_AllFormats(t *testing.T) {
	for _, code := range codestream.Formats() {
		pkt := buildPacket(t, packettest.Frame{Format: code, Width: 6, Height: 4, SliceHeight: 2})
		h, err := codestream.ParseHeader(pkt)
		if err != nil {
			t.Errorf("format %#x: ParseHeader() error = %v", code, err)
			continue
		}
		if h.Format.Code != code {
			t.Errorf("format %#x: parsed as %#x", code, h.Format.Code)
		}
	}
}

// =============================================================================
// Slice geometry tests
// =============================================================================

func TestHeader_Slices(t *testing.T) {
	pkt := buildPacket(t, packettest.Frame{Format: 0x69, Width: 10, Height: 7, SliceHeight: 3})
	h, err := codestream.ParseHeader(pkt)
	if err != nil {
		t.Fatal(err)
	}
	slices, err := h.Slices()
	if err != nil {
		t.Fatalf("Slices() error = %v", err)
	}
	if len(slices) != 3 {
		t.Fatalf("len(Slices()) = %d, want 3", len(slices))
	}

	luma := slices[0]
	wantLuma := [][2]int{{0, 3}, {3, 3}, {6, 1}}
	for j, s := range luma {
		if s.Row != wantLuma[j][0] || s.Rows != wantLuma[j][1] || s.Width != 10 {
			t.Errorf("luma band %d = row %d rows %d width %d", j, s.Row, s.Rows, s.Width)
		}
	}
	chroma := slices[1]
	wantChroma := [][2]int{{0, 2}, {2, 2}, {4, 1}}
	for j, s := range chroma {
		if s.Row != wantChroma[j][0] || s.Rows != wantChroma[j][1] || s.Width != 5 {
			t.Errorf("chroma band %d = row %d rows %d width %d", j, s.Row, s.Rows, s.Width)
		}
	}
	if got := h.PlaneRows(1); got != 5 {
		t.Errorf("PlaneRows(1) = %d, want 5", got)
	}
	if _, got := h.PlaneSize(1); got != 4 {
		t.Errorf("PlaneSize(1) height = %d, want 4", got)
	}

	if luma[0].Start != h.TableEnd {
		t.Errorf("first slice starts at %d, want %d", luma[0].Start, h.TableEnd)
	}
	for i := range slices {
		for j := 0; j+1 < len(slices[i]); j++ {
			if slices[i][j].End != slices[i][j+1].Start {
				t.Errorf("plane %d slice %d ends at %d, next starts at %d", i, j, slices[i][j].End, slices[i][j+1].Start)
			}
		}
		if last := slices[i][len(slices[i])-1]; last.End != len(pkt) {
			t.Errorf("plane %d last slice ends at %d, want %d", i, last.End, len(pkt))
		}
	}
}

func TestSliceRanges(t *testing.T) {
	got, err := codestream.SliceRanges([]uint32{0, 50, 120}, 120)
	if err != nil {
		t.Fatalf("SliceRanges() error = %v", err)
	}
	want := []codestream.Range{{Start: 0, End: 50}, {Start: 50, End: 120}}
	if len(got) != len(want) {
		t.Fatalf("SliceRanges() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %v, want %v", i, got[i], want[i])
		}
	}
	if got[1].Len() != 70 {
		t.Errorf("Len() = %d, want 70", got[1].Len())
	}

	got, err = codestream.SliceRanges([]uint32{10, 20}, 40)
	if err != nil || len(got) != 2 || got[1].End != 40 {
		t.Errorf("SliceRanges() = %v, %v", got, err)
	}
}

func TestSliceRanges_Errors(t *testing.T) {
	tests := []struct {
		name    string
		offsets []uint32
		size    uint32
	}{
		{"offset past packet", []uint32{0, 130}, 120},
		{"empty", nil, 120},
		{"not increasing", []uint32{0, 50, 50}, 120},
		{"decreasing", []uint32{60, 50}, 120},
		{"first at end", []uint32{120}, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codestream.SliceRanges(tt.offsets, tt.size)
			if !errors.Is(err, codestream.ErrInvalidData) {
				t.Errorf("SliceRanges() error = %v, want ErrInvalidData", err)
			}
		})
	}
}

func TestLookupFormat(t *testing.T) {
	if _, ok := codestream.LookupFormat(0x64); ok {
		t.Error("LookupFormat(0x64) succeeded")
	}
	f, ok := codestream.LookupFormat(0x6c)
	if !ok || f.Depth != 10 || f.HShift[1] != 1 || f.VShift[1] != 0 {
		t.Errorf("LookupFormat(0x6c) = %+v, %v", f, ok)
	}
	codes := codestream.Formats()
	if len(codes) != 13 || codes[0] != 0x65 || codes[len(codes)-1] != 0x73 {
		t.Errorf("Formats() = %x", codes)
	}
}
