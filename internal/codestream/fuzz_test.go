package codestream_test

import (
	"testing"

	"github.com/mrjoshuak/go-magicyuv/internal/bitstream"
	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
	"github.com/mrjoshuak/go-magicyuv/internal/packettest"
)

// FuzzParseHeader tests the header parser with arbitrary input.
// Run with: go test -fuzz=FuzzParseHeader -fuzztime=60s
func FuzzParseHeader(f *testing.F) {
	f.Add(buildPacket(f, packettest.Frame{Format: 0x6b, Width: 8, Height: 2}))
	f.Add(buildPacket(f, packettest.Frame{Format: 0x69, Width: 10, Height: 7, SliceHeight: 3}))
	f.Add(buildPacket(f, packettest.Frame{Format: 0x70, Width: 4, Height: 4, SliceHeight: 1}))

	// Just the tag
	f.Add([]byte("MAGY"))

	// Empty
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		h, err := codestream.ParseHeader(data)
		if err != nil {
			return
		}
		slices, err := h.Slices()
		if err != nil {
			return
		}
		for i := range slices {
			for _, s := range slices[i] {
				if s.Start < int(h.HeaderSize) || s.End > len(data) || s.Start >= s.End {
					t.Fatalf("plane %d slice %d range [%d,%d) in %d bytes", i, s.Index, s.Start, s.End, len(data))
				}
			}
		}
	})
}

// FuzzReadCodebooks tests code-length table parsing.
func FuzzReadCodebooks(f *testing.F) {
	f.Add([]byte{0x88, 0xFF}, uint8(1))
	f.Add([]byte{0x88, 0xFF, 0x88, 0xFF, 0x88, 0xFF}, uint8(3))
	f.Add([]byte{0x00, 0x00}, uint8(4))

	f.Fuzz(func(t *testing.T, data []byte, planes uint8) {
		r, err := bitstream.NewReaderBytes(data)
		if err != nil {
			return
		}
		n := int(planes%4) + 1
		for _, layout := range []codestream.Layout{codestream.LayoutV7, codestream.LayoutCompact} {
			if err := r.Reset(data, len(data)*8); err != nil {
				t.Fatal(err)
			}
			tables, err := codestream.ReadCodebooks(r, n, 256, layout)
			if err != nil {
				continue
			}
			if len(tables) != n {
				t.Fatalf("got %d tables, want %d", len(tables), n)
			}
			for _, tbl := range tables {
				if len(tbl) != 256 {
					t.Fatalf("table of %d lengths", len(tbl))
				}
			}
		}
	})
}
