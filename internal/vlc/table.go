package vlc

import (
	"fmt"
	"sort"

	"github.com/mrjoshuak/go-magicyuv/internal/bitstream"
)

const (
	// DefaultBits is the index width of the first table level.
	DefaultBits = 12
	// MaxDepth bounds the number of table levels a lookup may visit.
	MaxDepth = 3
)

// Kind tags a table entry.
type Kind uint8

const (
	// Absent marks an index no code maps to.
	Absent Kind = iota
	// Terminal entries decode a symbol.
	Terminal
	// Escape entries continue the lookup in a sub-table.
	Escape
)

// Entry is one lookup-table slot.
//
// For Terminal entries Value is the symbol and Len the number of bits the
// code occupies at this level. For Escape entries Value is the offset of the
// sub-table within Table.Entries and Len its index width.
type Entry struct {
	Value uint32
	Len   uint8
	Kind  Kind
}

// Table is a multi-level lookup table stored in one flat slice. The first
// 1<<Bits entries form the root level.
type Table struct {
	Bits    int
	Entries []Entry
}

// pending is a code being placed, left aligned with the bits already
// resolved by outer levels shifted out.
type pending struct {
	code uint32
	len  int
	sym  uint16
}

// Build constructs a lookup table with a root index of bits bits.
// Codes with zero length are skipped.
func Build(codes []Code, bits int) (*Table, error) {
	if bits < 1 || bits > 16 {
		return nil, fmt.Errorf("vlc: table width %d out of range", bits)
	}

	list := make([]pending, 0, len(codes))
	for _, c := range codes {
		if c.Len == 0 {
			continue
		}
		if c.Len > MaxLen || (c.Len < MaxLen && c.Bits>>c.Len != 0) {
			return nil, fmt.Errorf("%w: code %#x does not fit %d bits", ErrMalformedCodeTable, c.Bits, c.Len)
		}
		list = append(list, pending{code: c.Bits << (MaxLen - c.Len), len: int(c.Len), sym: c.Symbol})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].code != list[j].code {
			return list[i].code < list[j].code
		}
		return list[i].len < list[j].len
	})

	t := &Table{Bits: bits}
	if _, err := t.build(list, bits, 1); err != nil {
		return nil, err
	}
	return t, nil
}

// BuildCanonical assigns canonical codes to lengths and builds their table.
func BuildCanonical(lengths []uint8, bits int, flags Flags) (*CodeSet, *Table, error) {
	cs, err := AssignCanonical(lengths, flags)
	if err != nil {
		return nil, nil, err
	}
	t, err := Build(cs.List(), bits)
	if err != nil {
		return nil, nil, err
	}
	return cs, t, nil
}

func (t *Table) build(codes []pending, bits, depth int) (int, error) {
	base := len(t.Entries)
	t.Entries = append(t.Entries, make([]Entry, 1<<bits)...)

	for _, c := range codes {
		idx := base + int(c.code>>(MaxLen-bits))
		if c.len <= bits {
			fill := t.Entries[idx : idx+1<<(bits-c.len)]
			for k := range fill {
				if fill[k].Kind != Absent {
					return 0, fmt.Errorf("%w: overlapping codes", ErrMalformedCodeTable)
				}
				fill[k] = Entry{Value: uint32(c.sym), Len: uint8(c.len), Kind: Terminal}
			}
			continue
		}
		e := &t.Entries[idx]
		if e.Kind == Terminal {
			return 0, fmt.Errorf("%w: overlapping codes", ErrMalformedCodeTable)
		}
		e.Kind = Escape
		if rest := c.len - bits; rest > int(e.Len) {
			e.Len = uint8(rest)
		}
	}

	// Codes sharing a prefix are adjacent because the list is sorted.
	for i := 0; i < len(codes); {
		if codes[i].len <= bits {
			i++
			continue
		}
		prefix := codes[i].code >> (MaxLen - bits)
		j := i + 1
		for j < len(codes) && codes[j].code>>(MaxLen-bits) == prefix {
			j++
		}
		if depth == MaxDepth {
			return 0, fmt.Errorf("%w: code of %d bits exceeds table depth", ErrMalformedCodeTable, codes[i].len)
		}

		idx := base + int(prefix)
		subBits := int(t.Entries[idx].Len)
		if subBits > bits {
			subBits = bits
		}
		sub := make([]pending, j-i)
		for k := range sub {
			c := codes[i+k]
			sub[k] = pending{code: c.code << bits, len: c.len - bits, sym: c.sym}
		}
		off, err := t.build(sub, subBits, depth+1)
		if err != nil {
			return 0, err
		}
		t.Entries[idx] = Entry{Value: uint32(off), Len: uint8(subBits), Kind: Escape}
		i = j
	}
	return base, nil
}

// Decode reads one symbol. It returns false when the bits do not start any
// code in the table.
func (t *Table) Decode(r *bitstream.Reader) (int, bool) {
	bits := uint(t.Bits)
	e := t.Entries[r.Peek(bits)]
	for depth := 1; e.Kind == Escape; depth++ {
		if depth == MaxDepth {
			return -1, false
		}
		r.Skip(bits)
		bits = uint(e.Len)
		e = t.Entries[int(e.Value)+int(r.Peek(bits))]
	}
	if e.Kind != Terminal {
		return -1, false
	}
	r.Skip(uint(e.Len))
	return int(e.Value), true
}
