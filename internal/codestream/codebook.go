package codestream

import (
	"fmt"

	"github.com/mrjoshuak/go-magicyuv/internal/bitstream"
)

// Layout describes how code-length runs are packed. Each run is a one-bit
// flag, a ValueBits length and, when the flag is set, the run length minus
// one in RunBits bits. A clear flag means a run of one.
type Layout struct {
	ValueBits uint
	RunBits   uint
}

var (
	// LayoutV7 is the layout of version 7 packets.
	LayoutV7 = Layout{ValueBits: 7, RunBits: 8}
	// LayoutCompact packs lengths of at most 15 in runs of up to 16.
	LayoutCompact = Layout{ValueBits: 4, RunBits: 4}
)

// MaxRun returns the longest run one triple can describe.
func (l Layout) MaxRun() int { return 1 << l.RunBits }

// ReadCodebooks reads one code-length table of symbols entries per plane.
// Reading stops once every plane is complete; trailing bits are ignored.
func ReadCodebooks(r *bitstream.Reader, planes, symbols int, layout Layout) ([][]uint8, error) {
	if planes <= 0 || symbols <= 0 {
		return nil, fmt.Errorf("%w: %d tables of %d symbols", ErrInvalidData, planes, symbols)
	}
	out := make([][]uint8, 0, planes)
	cur := make([]uint8, symbols)
	j := 0
	for r.BitsLeft() >= int(1+layout.ValueBits) {
		more := r.ReadBit()
		v := uint8(r.Read(layout.ValueBits))
		n := 1
		if more != 0 {
			n += int(r.Read(layout.RunBits))
		}
		if j+n > symbols {
			return nil, fmt.Errorf("%w: plane %d code lengths overrun %d symbols", ErrInvalidData, len(out), symbols)
		}
		for k := 0; k < n; k++ {
			cur[j+k] = v
		}
		j += n
		if j == symbols {
			out = append(out, cur)
			if len(out) == planes {
				return out, nil
			}
			cur = make([]uint8, symbols)
			j = 0
		}
	}
	return nil, fmt.Errorf("%w: code tables end after %d of %d planes", ErrInvalidData, len(out), planes)
}

// WriteCodebook appends the run-length coded form of lengths to w.
func WriteCodebook(w *bitstream.Writer, lengths []uint8, layout Layout) error {
	limit := uint8(1<<layout.ValueBits - 1)
	for i := 0; i < len(lengths); {
		v := lengths[i]
		if v > limit {
			return fmt.Errorf("%w: length %d does not fit %d bits", ErrInvalidData, v, layout.ValueBits)
		}
		n := 1
		for i+n < len(lengths) && lengths[i+n] == v && n < layout.MaxRun() {
			n++
		}
		if n == 1 {
			w.WriteBit(0)
			w.WriteBits(uint32(v), layout.ValueBits)
		} else {
			w.WriteBit(1)
			w.WriteBits(uint32(v), layout.ValueBits)
			w.WriteBits(uint32(n-1), layout.RunBits)
		}
		i += n
	}
	return nil
}
