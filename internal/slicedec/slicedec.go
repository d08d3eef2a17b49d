// Package slicedec decodes one plane's slice of a MagicYUV frame.
//
// A slice starts with an 8-bit flags byte and an 8-bit predictor selector.
// With flag bit 0 set the residuals follow as fixed-width literals,
// otherwise they are Huffman coded. The predictor then turns residuals into
// samples in place.
package slicedec

import (
	"errors"
	"fmt"

	"github.com/mrjoshuak/go-magicyuv/internal/bitstream"
	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
	"github.com/mrjoshuak/go-magicyuv/internal/joint"
	"github.com/mrjoshuak/go-magicyuv/internal/predict"
	"github.com/mrjoshuak/go-magicyuv/internal/vlc"
)

// ErrBitstreamUnderrun is returned when a slice runs out of bits before all
// of its samples are decoded.
var ErrBitstreamUnderrun = errors.New("magicyuv: bitstream underrun")

// FlagRaw marks a slice stored as literals.
const FlagRaw = 1

// Tables holds the lookup tables of one plane. They are only read.
type Tables struct {
	Single *vlc.Table
	Joint  *joint.Table // nil disables multi-symbol lookups
}

// Params are the frame-level settings a slice decodes with.
type Params struct {
	Depth      predict.Depth
	Interlaced bool
}

// Header is the two-byte slice header.
type Header struct {
	Flags  uint8
	Method predict.Method
}

// Raw reports whether the slice stores literals.
func (h Header) Raw() bool { return h.Flags&FlagRaw != 0 }

// ReadHeader reads the slice header.
func ReadHeader(r *bitstream.Reader) (Header, error) {
	if r.BitsLeft() < 16 {
		return Header{}, fmt.Errorf("%w: slice of %d bits", codestream.ErrInvalidData, r.BitsLeft())
	}
	h := Header{Flags: uint8(r.Read(8)), Method: predict.Method(r.Read(8))}
	if !h.Method.Valid() {
		return h, fmt.Errorf("%w: prediction method %d", codestream.ErrInvalidData, uint8(h.Method))
	}
	return h, nil
}

// Decode decodes data into dst. On failure the rows of dst are zeroed.
func Decode(data []byte, dst predict.Region, tables Tables, p Params) (err error) {
	defer func() {
		if err != nil {
			zero(dst)
		}
	}()
	if len(data) == 0 {
		return fmt.Errorf("%w: empty slice", codestream.ErrInvalidData)
	}
	r, err := bitstream.NewReaderBytes(data)
	if err != nil {
		return fmt.Errorf("%w: %v", codestream.ErrInvalidData, err)
	}
	h, err := ReadHeader(r)
	if err != nil {
		return err
	}

	if h.Raw() {
		err = copyRaw(r, dst, p.Depth)
	} else {
		err = decodeEntropy(r, dst, tables)
	}
	if err != nil {
		return err
	}
	return predict.Inverse(h.Method, dst, p.Depth, p.Interlaced)
}

func copyRaw(r *bitstream.Reader, dst predict.Region, d predict.Depth) error {
	bps := uint(d)
	if need := int(bps) * dst.Width * dst.Height; r.BitsLeft() < need {
		return fmt.Errorf("%w: raw slice needs %d bits, has %d", codestream.ErrInvalidData, need, r.BitsLeft())
	}
	for y := 0; y < dst.Height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+dst.Width]
		for x := range row {
			row[x] = uint16(r.Read(bps))
		}
	}
	return nil
}

func decodeEntropy(r *bitstream.Reader, dst predict.Region, t Tables) error {
	if t.Single == nil {
		return fmt.Errorf("%w: no code table", codestream.ErrInvalidData)
	}
	var buf [8]uint16
	for y := 0; y < dst.Height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+dst.Width]
		x := 0
		if t.Joint != nil {
			// Keep room for the eight samples a probe may produce.
			for x < len(row)-8 {
				if r.BitsLeft() <= 0 {
					return underrun(y, x)
				}
				n, ok := t.Joint.Decode(r, t.Single, buf[:])
				if !ok {
					return fmt.Errorf("%w: invalid code at row %d column %d", codestream.ErrInvalidData, y, x)
				}
				copy(row[x:], buf[:n])
				x += n
			}
		}
		for ; x < len(row); x++ {
			if r.BitsLeft() <= 0 {
				return underrun(y, x)
			}
			sym, ok := t.Single.Decode(r)
			if !ok {
				return fmt.Errorf("%w: invalid code at row %d column %d", codestream.ErrInvalidData, y, x)
			}
			row[x] = uint16(sym)
		}
		if r.BitsLeft() < 0 {
			return underrun(y, len(row))
		}
	}
	return nil
}

func underrun(y, x int) error {
	return fmt.Errorf("%w: at row %d column %d", ErrBitstreamUnderrun, y, x)
}

func zero(r predict.Region) {
	for y := 0; y < r.Height; y++ {
		row := r.Pix[y*r.Stride : y*r.Stride+r.Width]
		for x := range row {
			row[x] = 0
		}
	}
}
