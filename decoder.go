package magicyuv

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/mrjoshuak/go-magicyuv/internal/bitstream"
	"github.com/mrjoshuak/go-magicyuv/internal/codestream"
	"github.com/mrjoshuak/go-magicyuv/internal/joint"
	"github.com/mrjoshuak/go-magicyuv/internal/mct"
	"github.com/mrjoshuak/go-magicyuv/internal/predict"
	"github.com/mrjoshuak/go-magicyuv/internal/slicedec"
	"github.com/mrjoshuak/go-magicyuv/internal/vlc"
)

// Decoder decodes a sequence of packets. It caches the code tables of each
// plane and rebuilds them only when a packet carries different code
// lengths. A Decoder is safe for concurrent use; frames are decoded one at a
// time.
type Decoder struct {
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	cache  []planeTables
	builds int // table sets built, for tests
}

// planeTables are the tables built from one plane's code lengths.
type planeTables struct {
	lengths []uint8
	tables  slicedec.Tables
}

// NewDecoder creates a decoder. A nil opts uses DefaultOptions.
func NewDecoder(opts *Options) *Decoder {
	if opts == nil {
		opts = DefaultOptions()
	}
	d := &Decoder{opts: *opts, log: opts.Logger}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

func (d *Decoder) workers() int {
	if d.opts.Workers > 0 {
		return d.opts.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// DecodeFrame decodes one packet.
//
// A slice that fails to decode leaves its rows zero and is reported in
// Frame.Errors; the frame is still returned. DecodeFrame returns an error
// when the header or code tables are invalid, when every slice failed, or
// when ctx is done.
func (d *Decoder) DecodeFrame(ctx context.Context, pkt []byte) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := codestream.ParseHeader(pkt)
	if err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if max := d.opts.MaxPixels; max > 0 && int64(h.Width)*int64(h.Height) > int64(max) {
		return nil, fmt.Errorf("%w: %dx%d frame exceeds %d pixels", ErrUnsupportedFormat, h.Width, h.Height, max)
	}
	slices, err := h.Slices()
	if err != nil {
		return nil, fmt.Errorf("reading slice table: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tables, err := d.loadTables(pkt[h.TableStart:h.TableEnd], h.Format)
	if err != nil {
		return nil, fmt.Errorf("reading code tables: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := newFrame(h)
	params := slicedec.Params{Depth: h.Format.Depth, Interlaced: h.Interlaced()}
	decodeBand := func(j int) []*SliceError {
		var errs []*SliceError
		for i := range slices {
			s := slices[i][j]
			p := &f.Planes[i]
			dst := predict.Region{Pix: p.Pix[s.Row*p.Stride:], Stride: p.Stride, Width: s.Width, Height: s.Rows}
			if err := slicedec.Decode(pkt[s.Start:s.End], dst, tables[i], params); err != nil {
				errs = append(errs, &SliceError{Plane: i, Index: j, Err: err})
			}
		}
		if len(errs) == 0 && h.Format.Decorrelate {
			s := slices[0][j]
			b, g, r := &f.Planes[0], &f.Planes[1], &f.Planes[2]
			off := s.Row * b.Stride
			mct.InverseDecorrelateRows(b.Pix[off:], g.Pix[off:], r.Pix[off:], b.Stride, s.Width, s.Rows, h.Format.Depth.Max())
		}
		return errs
	}

	results := d.runBands(ctx, h.NumSlices, decodeBand)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, errs := range results {
		for _, e := range errs {
			d.log.Debug("slice failed", "plane", e.Plane, "slice", e.Index, "err", e.Err)
			f.Errors = append(f.Errors, e)
		}
	}
	f.HadErrors = len(f.Errors) > 0
	if len(f.Errors) == h.NumSlices*h.Format.Planes {
		return nil, f.Errors[0]
	}
	return f, nil
}

// runBands calls decode for every band and returns the results by band.
func (d *Decoder) runBands(ctx context.Context, n int, decode func(int) []*SliceError) [][]*SliceError {
	results := make([][]*SliceError, n)

	// Sequential decoding for small frames or single-threaded mode
	numWorkers := d.workers()
	if n <= 4 || numWorkers == 1 {
		for j := 0; j < n; j++ {
			if ctx.Err() != nil {
				break
			}
			results[j] = decode(j)
		}
		return results
	}

	if numWorkers > n {
		numWorkers = n
	}

	// Pre-fill job channel before starting workers to reduce contention
	jobChan := make(chan int, n)
	for j := 0; j < n; j++ {
		jobChan <- j
	}
	close(jobChan)

	type bandResult struct {
		index int
		errs  []*SliceError
	}
	resultChan := make(chan bandResult, n)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				if ctx.Err() != nil {
					continue
				}
				resultChan <- bandResult{index: j, errs: decode(j)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		results[result.index] = result.errs
	}
	return results
}

// loadTables reads the code lengths of every plane and returns their
// tables, rebuilding those whose lengths changed. d.mu must be held.
func (d *Decoder) loadTables(data []byte, format codestream.Format) ([]slicedec.Tables, error) {
	r, err := bitstream.NewReaderBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	lengths, err := codestream.ReadCodebooks(r, format.Planes, format.Depth.Symbols(), codestream.LayoutV7)
	if err != nil {
		return nil, err
	}

	for len(d.cache) < len(lengths) {
		d.cache = append(d.cache, planeTables{})
	}
	out := make([]slicedec.Tables, len(lengths))
	for i, l := range lengths {
		c := &d.cache[i]
		if c.tables.Single == nil || !bytes.Equal(c.lengths, l) {
			t, err := d.buildTables(i, l, format.Depth)
			if err != nil {
				*c = planeTables{}
				return nil, fmt.Errorf("plane %d: %w", i, err)
			}
			*c = planeTables{lengths: l, tables: t}
		}
		out[i] = c.tables
	}
	return out, nil
}

func (d *Decoder) buildTables(plane int, lengths []uint8, depth predict.Depth) (slicedec.Tables, error) {
	cs, single, err := vlc.BuildCanonical(lengths, vlc.DefaultBits, 0)
	if err != nil {
		return slicedec.Tables{}, err
	}
	t := slicedec.Tables{Single: single}
	d.builds++

	if d.opts.JointMode == JointDisabled {
		d.log.Debug("built code tables", "plane", plane, "symbols", cs.Len())
		return t, nil
	}
	jt, err := joint.Generate(single, cs, nil, joint.Config{
		Bits:    vlc.DefaultBits,
		Mode:    joint.Mode(d.opts.JointMode),
		Budget:  d.opts.JointBudget,
		ZeroRun: depth == predict.Depth8,
	})
	if err != nil {
		return slicedec.Tables{}, err
	}
	if jt.Truncated {
		d.log.Debug("joint table truncated", "plane", plane, "mode", d.opts.JointMode, "budget", d.opts.JointBudget)
	}
	d.log.Debug("built code tables", "plane", plane, "symbols", cs.Len(), "pairs", jt.Pairs, "quads", jt.Quads)
	t.Joint = jt
	return t, nil
}
