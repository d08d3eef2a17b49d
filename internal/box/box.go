// Package box implements the MagicYUV packet dump format.
//
// A dump is a sequence of boxes, where each box has:
// - 4-byte length (or 1 for extended length)
// - 4-byte type code
// - Optional 8-byte extended length
// - Box contents
//
// An optional "mgyi" info box describes the stream and each "MAGY" box holds
// one packet. The whole dump may be zstd compressed; readers detect this from
// the zstd frame magic.
package box

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Box type codes
const (
	TypeInfo   Type = 0x6D677969 // "mgyi" - Stream info box
	TypePacket Type = 0x4D414759 // "MAGY" - Packet box
	TypeFree   Type = 0x66726565 // "free" - Padding, skipped by readers
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// maxContents bounds the size of a single box.
const maxContents = 1 << 30

// Type represents a 4-byte box type code.
type Type uint32

// String returns the 4-character type code.
func (t Type) String() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(t))
	return string(b)
}

// Box represents a single box.
type Box struct {
	Type     Type
	Length   uint64 // Total box length including header
	Contents []byte // Box contents (excluding header)
}

// NewBox creates a box of type t holding contents.
func NewBox(t Type, contents []byte) *Box {
	length := uint64(8 + len(contents))
	if length > 0xFFFFFFFF {
		length += 8
	}
	return &Box{Type: t, Length: length, Contents: contents}
}

// Header returns the box header bytes.
func (b *Box) Header() []byte {
	if b.Length <= 0xFFFFFFFF {
		header := make([]byte, 8)
		binary.BigEndian.PutUint32(header[0:4], uint32(b.Length))
		binary.BigEndian.PutUint32(header[4:8], uint32(b.Type))
		return header
	}
	// Extended length
	header := make([]byte, 16)
	binary.BigEndian.PutUint32(header[0:4], 1)
	binary.BigEndian.PutUint32(header[4:8], uint32(b.Type))
	binary.BigEndian.PutUint64(header[8:16], b.Length)
	return header
}

// Bytes returns the complete box as bytes.
func (b *Box) Bytes() []byte {
	header := b.Header()
	result := make([]byte, len(header)+len(b.Contents))
	copy(result, header)
	copy(result[len(header):], b.Contents)
	return result
}

// Info describes the stream a dump holds.
type Info struct {
	Width        uint32
	Height       uint32
	FrameRateNum uint32
	FrameRateDen uint32
	FrameCount   uint32 // 0 if unknown
}

// Parse parses the info box contents.
func (i *Info) Parse(data []byte) error {
	if len(data) < 20 {
		return errors.New("info box too short")
	}
	i.Width = binary.BigEndian.Uint32(data[0:4])
	i.Height = binary.BigEndian.Uint32(data[4:8])
	i.FrameRateNum = binary.BigEndian.Uint32(data[8:12])
	i.FrameRateDen = binary.BigEndian.Uint32(data[12:16])
	i.FrameCount = binary.BigEndian.Uint32(data[16:20])
	return nil
}

// Bytes returns the box contents.
func (i *Info) Bytes() []byte {
	data := make([]byte, 20)
	binary.BigEndian.PutUint32(data[0:4], i.Width)
	binary.BigEndian.PutUint32(data[4:8], i.Height)
	binary.BigEndian.PutUint32(data[8:12], i.FrameRateNum)
	binary.BigEndian.PutUint32(data[12:16], i.FrameRateDen)
	binary.BigEndian.PutUint32(data[16:20], i.FrameCount)
	return data
}

// Reader reads boxes from a dump.
type Reader struct {
	r      io.Reader
	zr     *zstd.Decoder
	offset int64
	info   *Info
}

// NewReader creates a new box reader. A zstd compressed dump is
// decompressed transparently.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading dump: %w", err)
	}
	if !bytes.Equal(magic, zstdMagic) {
		return &Reader{r: br}, nil
	}
	zr, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("opening zstd stream: %w", err)
	}
	return &Reader{r: zr, zr: zr}, nil
}

// Compressed reports whether the dump is zstd compressed.
func (r *Reader) Compressed() bool {
	return r.zr != nil
}

// ReadBox reads the next box from the stream.
func (r *Reader) ReadBox() (*Box, error) {
	// Read box length and type
	header := make([]byte, 8)
	n, err := io.ReadFull(r.r, header)
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading box header: %w", err)
	}
	r.offset += 8

	length := uint64(binary.BigEndian.Uint32(header[0:4]))
	boxType := Type(binary.BigEndian.Uint32(header[4:8]))

	headerLen := uint64(8)

	// Handle extended length
	if length == 1 {
		extLen := make([]byte, 8)
		if _, err := io.ReadFull(r.r, extLen); err != nil {
			return nil, fmt.Errorf("reading extended length: %w", err)
		}
		length = binary.BigEndian.Uint64(extLen)
		headerLen = 16
		r.offset += 8
	} else if length == 0 {
		return nil, errors.New("box extends to EOF not supported")
	}

	if length < headerLen {
		return nil, fmt.Errorf("invalid box length: %d", length)
	}

	// Read contents
	contentLen := length - headerLen
	if contentLen > maxContents {
		return nil, fmt.Errorf("box too large: %d bytes", contentLen)
	}

	contents := make([]byte, contentLen)
	if _, err := io.ReadFull(r.r, contents); err != nil {
		return nil, fmt.Errorf("reading box contents: %w", err)
	}
	r.offset += int64(contentLen)

	return &Box{
		Type:     boxType,
		Length:   length,
		Contents: contents,
	}, nil
}

// NextPacket returns the contents of the next packet box. Info boxes are
// recorded and other boxes skipped. It returns io.EOF after the last packet.
func (r *Reader) NextPacket() ([]byte, error) {
	for {
		b, err := r.ReadBox()
		if err != nil {
			return nil, err
		}
		switch b.Type {
		case TypePacket:
			return b.Contents, nil
		case TypeInfo:
			info := &Info{}
			if err := info.Parse(b.Contents); err != nil {
				return nil, err
			}
			r.info = info
		}
	}
}

// Info returns the last info box seen by NextPacket, or nil.
func (r *Reader) Info() *Info {
	return r.info
}

// Offset returns the current offset in the uncompressed stream.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Close releases the zstd decoder, if any. It does not close the
// underlying reader.
func (r *Reader) Close() {
	if r.zr != nil {
		r.zr.Close()
	}
}

// Writer writes boxes to a dump.
type Writer struct {
	w  io.Writer
	zw *zstd.Encoder
}

// NewWriter creates a new uncompressed box writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NewCompressedWriter creates a box writer that zstd compresses the dump.
// Close must be called to flush it.
func NewCompressedWriter(w io.Writer, level zstd.EncoderLevel) (*Writer, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	return &Writer{w: zw, zw: zw}, nil
}

// WriteBox writes a box to the stream.
func (w *Writer) WriteBox(b *Box) error {
	_, err := w.w.Write(b.Bytes())
	return err
}

// WriteInfo writes an info box.
func (w *Writer) WriteInfo(info *Info) error {
	return w.WriteBox(NewBox(TypeInfo, info.Bytes()))
}

// WritePacket writes a packet box.
func (w *Writer) WritePacket(pkt []byte) error {
	return w.WriteBox(NewBox(TypePacket, pkt))
}

// Close flushes a compressed stream. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	if w.zw != nil {
		return w.zw.Close()
	}
	return nil
}
