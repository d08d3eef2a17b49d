// Package vlc builds canonical prefix codes from code-length tables and the
// flat multi-level lookup tables used to decode them.
package vlc

import (
	"errors"
	"fmt"
	"sort"
)

// MaxLen is the longest supported code length.
const MaxLen = 32

// ErrMalformedCodeTable is returned when a code-length table cannot be turned
// into a prefix-free code.
var ErrMalformedCodeTable = errors.New("vlc: malformed code table")

// Flags alter how AssignCanonical treats its input.
type Flags uint8

const (
	// AllowAbsent lets a zero length mark a symbol that has no code.
	// Without it every symbol of the alphabet must have a code.
	AllowAbsent Flags = 1 << iota
)

// Code is one codeword. Bits holds the codeword right aligned.
type Code struct {
	Symbol uint16
	Len    uint8
	Bits   uint32
}

// CodeSet is a canonical code stored as parallel slices ordered by ascending
// code length; within one length larger symbols come first.
type CodeSet struct {
	Symbols []uint16
	Codes   []uint32
	Lens    []uint8
	Lut     []int32 // symbol -> index, -1 when the symbol has no code
}

// Len returns the number of codes.
func (cs *CodeSet) Len() int { return len(cs.Symbols) }

// MinLen returns the shortest code length.
func (cs *CodeSet) MinLen() int { return int(cs.Lens[0]) }

// Alphabet returns the size of the symbol alphabet the set was built for.
func (cs *CodeSet) Alphabet() int { return len(cs.Lut) }

// At returns the i-th code in length order.
func (cs *CodeSet) At(i int) Code {
	return Code{Symbol: cs.Symbols[i], Len: cs.Lens[i], Bits: cs.Codes[i]}
}

// Lookup returns the code for a symbol.
func (cs *CodeSet) Lookup(sym int) (Code, bool) {
	if sym < 0 || sym >= len(cs.Lut) || cs.Lut[sym] < 0 {
		return Code{}, false
	}
	return cs.At(int(cs.Lut[sym])), true
}

// List returns the codes in length order.
func (cs *CodeSet) List() []Code {
	out := make([]Code, cs.Len())
	for i := range out {
		out[i] = cs.At(i)
	}
	return out
}

// AssignCanonical assigns codewords to a code-length table indexed by symbol.
//
// Codewords are handed out from the longest length down, starting at zero, so
// longer codes take the numerically smaller codewords and, within one length,
// the smaller symbol gets the smaller codeword. This is the order MagicYUV
// encoders use. An assignment that overflows or cannot keep the codewords
// aligned (the lengths violate Kraft's inequality or describe an incomplete
// code that has no such assignment) is rejected.
func AssignCanonical(lengths []uint8, flags Flags) (*CodeSet, error) {
	if len(lengths) == 0 || len(lengths) > 1<<16 {
		return nil, fmt.Errorf("%w: alphabet of %d symbols", ErrMalformedCodeTable, len(lengths))
	}

	type entry struct {
		sym uint16
		len uint8
	}
	entries := make([]entry, 0, len(lengths))
	for s, l := range lengths {
		switch {
		case l > MaxLen:
			return nil, fmt.Errorf("%w: symbol %d has length %d", ErrMalformedCodeTable, s, l)
		case l == 0:
			if flags&AllowAbsent == 0 {
				return nil, fmt.Errorf("%w: symbol %d has no code", ErrMalformedCodeTable, s)
			}
			continue
		}
		entries = append(entries, entry{sym: uint16(s), len: l})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrMalformedCodeTable)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].len != entries[j].len {
			return entries[i].len < entries[j].len
		}
		return entries[i].sym > entries[j].sym
	})

	n := len(entries)
	cs := &CodeSet{
		Symbols: make([]uint16, n),
		Codes:   make([]uint32, n),
		Lens:    make([]uint8, n),
		Lut:     make([]int32, len(lengths)),
	}
	for i := range cs.Lut {
		cs.Lut[i] = -1
	}

	// next is the following free codeword, left aligned in 32 bits.
	var next uint64
	for i := n - 1; i >= 0; i-- {
		e := entries[i]
		step := uint64(1) << (MaxLen - e.len)
		if next%step != 0 || next+step > 1<<MaxLen {
			return nil, fmt.Errorf("%w: lengths do not form a prefix code", ErrMalformedCodeTable)
		}
		cs.Symbols[i] = e.sym
		cs.Lens[i] = e.len
		cs.Codes[i] = uint32(next >> (MaxLen - e.len))
		cs.Lut[e.sym] = int32(i)
		next += step
	}
	return cs, nil
}
