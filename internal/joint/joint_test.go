package joint

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-magicyuv/internal/bitstream"
	"github.com/mrjoshuak/go-magicyuv/internal/vlc"
)

// randomLengths builds a complete code-length table by splitting leaves of a
// binary tree, so every draw is a valid prefix code.
func randomLengths(rng *rand.Rand, n int, maxLen uint8) []uint8 {
	leaves := []uint8{0}
	for len(leaves) < n {
		i := rng.Intn(len(leaves))
		if leaves[i] >= maxLen {
			continue
		}
		leaves[i]++
		leaves = append(leaves, leaves[i])
	}
	rng.Shuffle(len(leaves), func(i, j int) { leaves[i], leaves[j] = leaves[j], leaves[i] })
	return leaves
}

// zeroHeavyLengths gives symbol 0 a one-bit code.
func zeroHeavyLengths(rng *rand.Rand, n int) []uint8 {
	rest := randomLengths(rng, n-1, vlc.MaxLen-1)
	lengths := make([]uint8, n)
	lengths[0] = 1
	for i, l := range rest {
		lengths[i+1] = l + 1
	}
	return lengths
}

func build(t *testing.T, lengths []uint8, cfg Config) (*vlc.CodeSet, *vlc.Table, *Table) {
	t.Helper()
	cs, single, err := vlc.BuildCanonical(lengths, cfg.Bits, 0)
	require.NoError(t, err)
	jt, err := Generate(single, cs, nil, cfg)
	require.NoError(t, err)
	return cs, single, jt
}

// singleDecode decodes count symbols from the index bits through the
// single-symbol table and returns them with the bits consumed.
func singleDecode(t *testing.T, single *vlc.Table, idx, bits, count int) ([]uint16, int) {
	t.Helper()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf, uint32(idx)<<(32-bits))
	r, err := bitstream.NewReaderBytes(buf)
	require.NoError(t, err)
	out := make([]uint16, count)
	for i := range out {
		sym, ok := single.Decode(r)
		require.True(t, ok, "index %#x symbol %d", idx, i)
		out[i] = uint16(sym)
	}
	return out, r.Tell()
}

func checkEquivalent(t *testing.T, single *vlc.Table, jt *Table) {
	t.Helper()
	for idx, e := range jt.Entries {
		root := single.Entries[idx]
		switch e.Kind {
		case Fallback:
			require.NotEqual(t, vlc.Terminal, root.Kind, "index %#x falls back over a terminal", idx)
			require.EqualValues(t, -1, e.Len)
		case ZeroRun:
			syms, n := singleDecode(t, single, idx, jt.Bits, 8)
			require.Equal(t, make([]uint16, 8), syms, "index %#x", idx)
			require.Equal(t, 8, n)
		default:
			syms, n := singleDecode(t, single, idx, jt.Bits, e.Count())
			require.Equal(t, e.Values[:e.Count()], syms, "index %#x kind %d", idx, e.Kind)
			require.Equal(t, int(e.Len), n, "index %#x kind %d", idx, e.Kind)
		}
	}
}

// =============================================================================
// Table generation
// =============================================================================

func TestGenerate_Equivalence(t *testing.T) {
	for _, n := range []int{256, 1024, 4096} {
		for _, mode := range []Mode{ModeSkip, ModeBreak, ModeSymmetric} {
			rng := rand.New(rand.NewSource(int64(n) + int64(mode)))
			lengths := randomLengths(rng, n, vlc.MaxLen)
			_, single, jt := build(t, lengths, Config{Bits: vlc.DefaultBits, Mode: mode})
			t.Run(mode.String(), func(t *testing.T) {
				checkEquivalent(t, single, jt)
			})
		}
	}
}

func TestGenerate_SkipMatchesBreak(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	lengths := zeroHeavyLengths(rng, 256)

	_, _, skip := build(t, lengths, Config{Bits: vlc.DefaultBits, Mode: ModeSkip})
	_, _, brk := build(t, lengths, Config{Bits: vlc.DefaultBits, Mode: ModeBreak})
	require.False(t, skip.Truncated)
	require.False(t, brk.Truncated)
	assert.Equal(t, skip.Entries, brk.Entries)
	assert.Equal(t, skip.Pairs, brk.Pairs)
	assert.Equal(t, skip.Quads, brk.Quads)
	assert.Positive(t, brk.Pairs)
	assert.Positive(t, brk.Quads)
}

func TestGenerate_SymmetricPrefersEnds(t *testing.T) {
	// Flat 8-bit code: every symbol fits one pair, none fits a quad.
	lengths := make([]uint8, 256)
	for i := range lengths {
		lengths[i] = 8
	}
	_, single, jt := build(t, lengths, Config{Bits: 16, Mode: ModeSymmetric})
	checkEquivalent(t, single, jt)
	assert.Equal(t, 256*256, jt.Pairs)
	assert.Zero(t, jt.Quads)
}

func TestGenerate_SymmetricStopsAtLongCodes(t *testing.T) {
	// Values near the middle of the alphabet get codes too long to pair.
	lengths := make([]uint8, 16)
	for i := range lengths {
		switch {
		case i < 3:
			lengths[i] = 2
		case i < 10:
			lengths[i] = 5
		case i < 12:
			lengths[i] = 7
		default:
			lengths[i] = 8
		}
	}
	cs, single, err := vlc.BuildCanonical(lengths, 12, 0)
	require.NoError(t, err)

	got := symmetricCandidates(cs, 4)
	var syms []uint16
	for _, idx := range got {
		syms = append(syms, cs.Symbols[idx])
	}
	// The low end takes 0, 1, 2 and stops at 3; the high end stops at 15.
	assert.Equal(t, []uint16{0, 1, 2}, syms)

	jt, err := Generate(single, cs, nil, Config{Bits: 12, Mode: ModeSymmetric})
	require.NoError(t, err)
	checkEquivalent(t, single, jt)
}

func TestSymmetricCandidates_Meet(t *testing.T) {
	lengths := []uint8{2, 2, 2, 3, 3}
	cs, err := vlc.AssignCanonical(lengths, 0)
	require.NoError(t, err)

	got := symmetricCandidates(cs, 3)
	var syms []uint16
	for _, idx := range got {
		syms = append(syms, cs.Symbols[idx])
	}
	assert.Equal(t, []uint16{0, 4, 1, 3, 2}, syms, "middle symbol visited once")
}

func TestGenerate_Budget(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	lengths := zeroHeavyLengths(rng, 256)

	_, single, jt := build(t, lengths, Config{Bits: vlc.DefaultBits, Mode: ModeSkip, Budget: 10})
	assert.True(t, jt.Truncated)
	checkEquivalent(t, single, jt)

	_, _, full := build(t, lengths, Config{Bits: vlc.DefaultBits, Mode: ModeSkip})
	assert.Less(t, jt.Pairs, full.Pairs)
}

func TestGenerate_ZeroRun(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	lengths := zeroHeavyLengths(rng, 256)

	cs, single, jt := build(t, lengths, Config{Bits: vlc.DefaultBits, Mode: ModeBreak, ZeroRun: true})
	c, ok := cs.Lookup(0)
	require.True(t, ok)
	require.EqualValues(t, 1, c.Len)

	shift := vlc.DefaultBits - 8
	start := 0
	if c.Bits == 1 {
		start = 0xFF << shift
	}
	for i := start; i < start+1<<shift; i++ {
		assert.Equal(t, Entry{Len: 8, Kind: ZeroRun}, jt.Entries[i], "index %#x", i)
	}
	checkEquivalent(t, single, jt)

	_, _, plain := build(t, lengths, Config{Bits: vlc.DefaultBits, Mode: ModeBreak})
	for _, e := range plain.Entries {
		assert.NotEqual(t, ZeroRun, e.Kind)
	}
}

func TestGenerate_Errors(t *testing.T) {
	cs, single, err := vlc.BuildCanonical([]uint8{1, 1}, 8, 0)
	require.NoError(t, err)

	_, err = Generate(single, cs, nil, Config{Bits: 9})
	assert.Error(t, err)
	_, err = Generate(nil, cs, nil, Config{Bits: 8})
	assert.Error(t, err)
	_, err = Generate(single, nil, nil, Config{Bits: 8})
	assert.Error(t, err)
}

// =============================================================================
// Decoding
// =============================================================================

func TestTable_Decode(t *testing.T) {
	for _, mode := range []Mode{ModeSkip, ModeBreak, ModeSymmetric} {
		t.Run(mode.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(mode)))
			lengths := zeroHeavyLengths(rng, 256)
			cs, single, jt := build(t, lengths, Config{Bits: vlc.DefaultBits, Mode: mode, ZeroRun: true})

			syms := make([]uint16, 4000)
			for i := range syms {
				if rng.Intn(2) == 0 {
					syms[i] = uint16(rng.Intn(256))
				}
			}
			w := bitstream.NewWriter(len(syms))
			for _, s := range syms {
				c, _ := cs.Lookup(int(s))
				w.WriteBits(c.Bits, uint(c.Len))
			}
			total := w.Len()
			r, err := bitstream.NewReader(w.Bytes(), total)
			require.NoError(t, err)

			var got []uint16
			buf := make([]uint16, 8)
			for len(got) < len(syms) {
				n, ok := jt.Decode(r, single, buf)
				require.True(t, ok, "after %d symbols", len(got))
				got = append(got, buf[:n]...)
			}
			require.Equal(t, syms, got[:len(syms)])
		})
	}
}

func TestTable_DecodeInvalid(t *testing.T) {
	lengths := make([]uint8, 256)
	lengths[3] = 1
	cs, single, err := vlc.BuildCanonical(lengths, vlc.DefaultBits, vlc.AllowAbsent)
	require.NoError(t, err)
	jt, err := Generate(single, cs, nil, Config{Bits: vlc.DefaultBits})
	require.NoError(t, err)

	r, _ := bitstream.NewReaderBytes([]byte{0xFF, 0xFF, 0, 0})
	buf := make([]uint16, 8)
	_, ok := jt.Decode(r, single, buf)
	assert.False(t, ok)
}
