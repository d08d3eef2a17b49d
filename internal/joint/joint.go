// Package joint builds lookup tables that decode several consecutive symbols
// with one table probe.
//
// A joint table has the same index width as the single-symbol table it is
// derived from. Each index holds either a run of decoded symbols whose
// concatenated codewords form a prefix of the index, or a fallback marker
// telling the caller to decode one symbol through the single-symbol table.
package joint

import (
	"errors"
	"fmt"

	"github.com/mrjoshuak/go-magicyuv/internal/bitstream"
	"github.com/mrjoshuak/go-magicyuv/internal/vlc"
)

// DefaultBudget is the default number of candidate codes examined per
// combination size before enumeration gives up.
const DefaultBudget = 1 << 20

// Mode selects how candidate symbols are enumerated.
type Mode int

const (
	// ModeSkip steps over candidates that do not fit and keeps scanning.
	ModeSkip Mode = iota
	// ModeBreak stops a level at the first candidate that does not fit.
	// Candidates are visited by ascending length, so no later one fits.
	ModeBreak
	// ModeSymmetric visits symbol values from both ends of the alphabet
	// inward (0, N-1, 1, N-2, ...), the likely values of residuals mirrored
	// around zero. Each end stops at its first symbol that does not fit.
	ModeSymmetric
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSkip:
		return "skip"
	case ModeBreak:
		return "break"
	case ModeSymmetric:
		return "symmetric"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Kind tags a joint table entry.
type Kind uint8

const (
	// Fallback entries defer to the single-symbol table.
	Fallback Kind = iota
	Single
	Pair
	Quad
	// ZeroRun entries decode eight zero symbols.
	ZeroRun
)

// Entry is one joint table slot. Len is the number of bits consumed, or -1
// for Fallback entries.
type Entry struct {
	Len    int8
	Kind   Kind
	Values [4]uint16
}

// Count returns the number of symbols the entry decodes.
func (e Entry) Count() int {
	switch e.Kind {
	case Single:
		return 1
	case Pair:
		return 2
	case Quad:
		return 4
	case ZeroRun:
		return 8
	default:
		return 0
	}
}

// Table is a joint lookup table.
type Table struct {
	Bits    int
	Entries []Entry

	Pairs     int  // pair combinations placed
	Quads     int  // quad combinations placed
	Truncated bool // enumeration stopped at the budget
}

// Config controls Generate.
type Config struct {
	Bits    int
	Mode    Mode
	Budget  int  // candidates examined per combination size, 0 means DefaultBudget
	ZeroRun bool // add eight-zero entries when symbol 0 has a one-bit code
}

var errTableWidth = errors.New("joint: table width does not match single-symbol table")

// Generate builds a joint table. Pairs combine a symbol of first with a
// symbol of second; quads use first for all four positions. second may be
// nil to use first for both.
func Generate(single *vlc.Table, first, second *vlc.CodeSet, cfg Config) (*Table, error) {
	if cfg.Bits < 1 || cfg.Bits > 16 || single == nil || single.Bits != cfg.Bits {
		return nil, errTableWidth
	}
	if first == nil || first.Len() == 0 {
		return nil, errors.New("joint: empty code set")
	}
	if second == nil {
		second = first
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}

	t := &Table{Bits: cfg.Bits, Entries: make([]Entry, 1<<cfg.Bits)}
	for i := range t.Entries {
		e := single.Entries[i]
		if e.Kind == vlc.Terminal {
			t.Entries[i] = Entry{Len: int8(e.Len), Kind: Single, Values: [4]uint16{uint16(e.Value)}}
		} else {
			t.Entries[i] = Entry{Len: -1, Kind: Fallback}
		}
	}

	pairs := newGenerator(t, cfg, Pair, []*vlc.CodeSet{first, second})
	pairs.walk(0, 0, 0, [4]uint16{})
	t.Pairs = pairs.placed

	quads := newGenerator(t, cfg, Quad, []*vlc.CodeSet{first, first, first, first})
	quads.walk(0, 0, 0, [4]uint16{})
	t.Quads = quads.placed
	t.Truncated = pairs.truncated || quads.truncated

	if cfg.ZeroRun && cfg.Bits >= 8 {
		t.addZeroRun(first)
	}
	return t, nil
}

// addZeroRun maps eight repetitions of a one-bit code for symbol 0.
func (t *Table) addZeroRun(cs *vlc.CodeSet) {
	c, ok := cs.Lookup(0)
	if !ok || c.Len != 1 {
		return
	}
	var pattern int
	if c.Bits == 1 {
		pattern = 0xFF
	}
	shift := t.Bits - 8
	start := pattern << shift
	for i := start; i < start+1<<shift; i++ {
		t.Entries[i] = Entry{Len: 8, Kind: ZeroRun}
	}
}

type generator struct {
	t      *Table
	bits   int
	mode   Mode
	kind   Kind
	levels []*vlc.CodeSet
	cands  [][]int32
	tail   []int // shortest possible length of the levels after each level

	budget    int
	visits    int
	placed    int
	truncated bool
}

func newGenerator(t *Table, cfg Config, kind Kind, levels []*vlc.CodeSet) *generator {
	g := &generator{
		t:      t,
		bits:   cfg.Bits,
		mode:   cfg.Mode,
		kind:   kind,
		levels: levels,
		cands:  make([][]int32, len(levels)),
		tail:   make([]int, len(levels)),
		budget: cfg.Budget,
	}

	total := 0
	for _, cs := range levels {
		total += cs.MinLen()
	}
	for l := len(levels) - 2; l >= 0; l-- {
		g.tail[l] = g.tail[l+1] + levels[l+1].MinLen()
	}
	for l, cs := range levels {
		// Longest code that can still be part of a combination that fits.
		limit := g.bits - (total - cs.MinLen())
		if g.mode == ModeSymmetric {
			g.cands[l] = symmetricCandidates(cs, limit)
		} else {
			g.cands[l] = sortedCandidates(cs, limit)
		}
	}
	return g
}

// sortedCandidates returns the indices of codes no longer than limit. The
// code set is sorted by length, so this is a prefix of the index range.
func sortedCandidates(cs *vlc.CodeSet, limit int) []int32 {
	n := 0
	for n < cs.Len() && int(cs.Lens[n]) <= limit {
		n++
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

// symmetricCandidates walks symbol values from both ends toward the middle.
// Each end stops at its first symbol longer than limit; when the ends meet on
// the same value it is taken once.
func symmetricCandidates(cs *vlc.CodeSet, limit int) []int32 {
	var out []int32
	take := func(v int) bool {
		idx := cs.Lut[v]
		if idx < 0 {
			return true
		}
		if int(cs.Lens[idx]) > limit {
			return false
		}
		out = append(out, idx)
		return true
	}

	lo, hi := 0, cs.Alphabet()-1
	loOpen, hiOpen := true, true
	for lo <= hi && (loOpen || hiOpen) {
		if loOpen {
			loOpen = take(lo)
			lo++
		}
		if lo > hi {
			break
		}
		if hiOpen {
			hiOpen = take(hi)
			hi--
		}
	}
	return out
}

func (g *generator) walk(level int, code uint32, length int, vals [4]uint16) {
	if level == len(g.levels) {
		g.place(code, length, vals)
		return
	}
	cs := g.levels[level]
	budget := g.bits - length - g.tail[level]
	for _, idx := range g.cands[level] {
		if g.visits >= g.budget {
			g.truncated = true
			return
		}
		g.visits++

		l := int(cs.Lens[idx])
		if l > budget {
			if g.mode == ModeBreak {
				break
			}
			continue
		}
		vals[level] = cs.Symbols[idx]
		g.walk(level+1, code<<uint(l)|cs.Codes[idx], length+l, vals)
		if g.truncated {
			return
		}
	}
}

func (g *generator) place(code uint32, length int, vals [4]uint16) {
	shift := g.bits - length
	start := int(code) << shift
	e := Entry{Len: int8(length), Kind: g.kind, Values: vals}
	for i := start; i < start+1<<shift; i++ {
		g.t.Entries[i] = e
	}
	g.placed++
}

// Decode decodes the symbols of one probe into dst, which must have room
// for eight values, and returns how many were written. It returns false when
// the bits do not start a valid code.
func (t *Table) Decode(r *bitstream.Reader, single *vlc.Table, dst []uint16) (int, bool) {
	bits := uint(t.Bits)
	probe := r.Read(bits)
	e := &t.Entries[probe]
	if e.Kind == Fallback {
		r.Unget(uint64(probe), bits)
		sym, ok := single.Decode(r)
		if !ok {
			return 0, false
		}
		dst[0] = uint16(sym)
		return 1, true
	}

	// Hand back the part of the probe the entry did not use.
	r.Unget(uint64(probe), bits-uint(e.Len))
	switch e.Kind {
	case ZeroRun:
		for i := 0; i < 8; i++ {
			dst[i] = 0
		}
		return 8, true
	default:
		n := e.Count()
		copy(dst[:n], e.Values[:n])
		return n, true
	}
}
