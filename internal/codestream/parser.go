package codestream

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Parser reads the header of one MagicYUV packet.
type Parser struct {
	data []byte
	pos  int
}

// NewParser creates a parser over a complete packet.
func NewParser(pkt []byte) *Parser {
	return &Parser{data: pkt}
}

// ParseHeader parses the header of pkt.
func ParseHeader(pkt []byte) (*Header, error) {
	return NewParser(pkt).ReadHeader()
}

// ReadHeader parses the fixed header, the slice index table and locates the
// code-length tables.
func (p *Parser) ReadHeader() (*Header, error) {
	h := &Header{PacketSize: len(p.data)}

	tag, err := p.readBytes(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag: %w", err)
	}
	if string(tag) != Tag {
		return nil, fmt.Errorf("%w: bad tag %q", ErrInvalidData, tag)
	}

	if h.HeaderSize, err = p.readUint32(); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if h.HeaderSize < MinHeaderSize || int64(h.HeaderSize) >= int64(len(p.data)) {
		return nil, fmt.Errorf("%w: header size %d for %d byte packet", ErrInvalidData, h.HeaderSize, len(p.data))
	}

	if h.Version, err = p.readByte(); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, h.Version)
	}

	code, err := p.readByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read format: %w", err)
	}
	f, ok := LookupFormat(code)
	if !ok {
		return nil, fmt.Errorf("%w: format %#x", ErrUnsupportedFormat, code)
	}
	h.Format = f

	if err := p.skip(1); err != nil {
		return nil, err
	}
	matrix, err := p.readByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read color matrix: %w", err)
	}
	h.ColorMatrix = ColorMatrix(matrix)
	if h.Flags, err = p.readByte(); err != nil {
		return nil, fmt.Errorf("failed to read flags: %w", err)
	}
	if err := p.skip(3); err != nil {
		return nil, err
	}

	for _, field := range []*uint32{&h.Width, &h.Height, &h.SliceWidth, &h.SliceHeight} {
		if *field, err = p.readUint32(); err != nil {
			return nil, fmt.Errorf("failed to read dimensions: %w", err)
		}
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	h.CalculateDerivedValues()

	if err := p.skip(4); err != nil {
		return nil, err
	}
	if err := p.readSliceTable(h); err != nil {
		return nil, err
	}

	planes, err := p.readByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read plane count: %w", err)
	}
	if int(planes) != h.Format.Planes {
		return nil, fmt.Errorf("%w: %d planes signalled, format has %d", ErrInvalidData, planes, h.Format.Planes)
	}
	if h.SliceFlags, err = p.readBytes(h.NumSlices * h.Format.Planes); err != nil {
		return nil, fmt.Errorf("failed to read slice flags: %w", err)
	}

	h.TableStart = p.pos
	h.TableEnd = int(h.HeaderSize) + int(h.Offsets[0][0])
	if h.TableEnd-h.TableStart < 2 {
		return nil, fmt.Errorf("%w: code tables of %d bytes", ErrInvalidData, h.TableEnd-h.TableStart)
	}
	return h, nil
}

// readSliceTable reads the per-plane slice offsets.
func (p *Parser) readSliceTable(h *Header) error {
	dataSize := uint32(len(p.data)) - h.HeaderSize
	if need := h.NumSlices * h.Format.Planes * 4; need > len(p.data)-p.pos {
		return fmt.Errorf("%w: slice table of %d bytes truncated", ErrInvalidData, need)
	}
	h.Offsets = make([][]uint32, h.Format.Planes)
	for i := range h.Offsets {
		offsets := make([]uint32, h.NumSlices)
		for j := range offsets {
			off, err := p.readUint32()
			if err != nil {
				return fmt.Errorf("failed to read slice offset: %w", err)
			}
			if off >= dataSize || (j > 0 && off <= offsets[j-1]) {
				return fmt.Errorf("%w: plane %d slice %d offset %d", ErrInvalidData, i, j, off)
			}
			offsets[j] = off
		}
		h.Offsets[i] = offsets
	}
	return nil
}

func (p *Parser) readBytes(n int) ([]byte, error) {
	if n < 0 || n > len(p.data)-p.pos {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, io.ErrUnexpectedEOF)
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

func (p *Parser) readByte() (byte, error) {
	b, err := p.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readUint32 reads a little-endian uint32.
func (p *Parser) readUint32() (uint32, error) {
	b, err := p.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (p *Parser) skip(n int) error {
	_, err := p.readBytes(n)
	return err
}

// Tell returns the number of bytes consumed.
func (p *Parser) Tell() int { return p.pos }
