package magicyuv

import (
	"fmt"

	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
	"github.com/mrjoshuak/go-magicyuv/internal/slicedec"
	"github.com/mrjoshuak/go-magicyuv/internal/vlc"
)

// Errors returned by the decoder. Returned errors wrap one of these and can
// be matched with errors.Is.
var (
	// ErrInvalidData reports a malformed packet or slice.
	ErrInvalidData = codestream.ErrInvalidData
	// ErrUnsupportedFormat reports a version, pixel format or geometry the
	// decoder does not handle.
	ErrUnsupportedFormat = codestream.ErrUnsupportedFormat
	// ErrMalformedCodeTable reports code lengths that do not form a prefix
	// code.
	ErrMalformedCodeTable = vlc.ErrMalformedCodeTable
	// ErrBitstreamUnderrun reports a slice that ended before all of its
	// samples were decoded.
	ErrBitstreamUnderrun = slicedec.ErrBitstreamUnderrun
)

// SliceError records the failure of one plane's slice. The rows it covers
// are zero in the decoded frame.
type SliceError struct {
	Plane int
	Index int // band number
	Err   error
}

func (e *SliceError) Error() string {
	return fmt.Sprintf("plane %d slice %d: %v", e.Plane, e.Index, e.Err)
}

func (e *SliceError) Unwrap() error { return e.Err }
