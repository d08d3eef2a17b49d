package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	magicyuv "github.com/mrjoshuak/go-magicyuv"
	"github.com/mrjoshuak/go-magicyuv/internal/box"
)

// config holds the command line settings.
type config struct {
	format  string
	outDir  string
	workers int
	joint   string
	info    bool
}

var jointModes = map[string]magicyuv.JointMode{
	"skip":      magicyuv.JointSkip,
	"break":     magicyuv.JointBreak,
	"symmetric": magicyuv.JointSymmetric,
	"off":       magicyuv.JointDisabled,
}

func parseJoint(s string) (magicyuv.JointMode, error) {
	m, ok := jointModes[s]
	if !ok {
		return 0, fmt.Errorf("unknown joint mode %q", s)
	}
	return m, nil
}

// packetSource yields packets until io.EOF.
type packetSource interface {
	NextPacket() ([]byte, error)
}

// singlePacket is the source for an input holding one bare packet.
type singlePacket struct {
	r    io.Reader
	done bool
}

func (s *singlePacket) NextPacket() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	pkt, err := io.ReadAll(s.r)
	if err != nil {
		return nil, fmt.Errorf("reading packet: %w", err)
	}
	return pkt, nil
}

// openSource detects a bare packet by its tag and otherwise reads a dump.
func openSource(r io.Reader) (packetSource, func(), error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)
	if bytes.Equal(head, []byte("MAGY")) {
		return &singlePacket{r: br}, func() {}, nil
	}
	dump, err := box.NewReader(br)
	if err != nil {
		return nil, nil, err
	}
	return dump, dump.Close, nil
}

// run decodes every packet of in. Frames are decoded in order while up to
// cfg.workers images are encoded concurrently.
func run(ctx context.Context, cfg config, in io.Reader, out io.Writer, logger *slog.Logger) error {
	enc, ok := encoders[cfg.format]
	if !ok {
		return fmt.Errorf("unknown output format %q", cfg.format)
	}
	mode, err := parseJoint(cfg.joint)
	if err != nil {
		return err
	}
	if !cfg.info {
		if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
			return err
		}
	}

	src, closeSrc, err := openSource(in)
	if err != nil {
		return err
	}
	defer closeSrc()

	opts := magicyuv.DefaultOptions()
	opts.Workers = cfg.workers
	opts.JointMode = mode
	opts.Logger = logger
	dec := magicyuv.NewDecoder(opts)

	limit := cfg.workers
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	frames, failed := 0, 0
	for ; ; frames++ {
		pkt, err := src.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			g.Wait()
			return fmt.Errorf("frame %d: %w", frames, err)
		}

		if cfg.info {
			if err := printInfo(out, frames, pkt); err != nil {
				logger.Error("bad frame", "frame", frames, "err", err)
				failed++
			}
			continue
		}

		frame, err := dec.DecodeFrame(gctx, pkt)
		if err != nil {
			if gctx.Err() != nil {
				break
			}
			logger.Error("decode failed", "frame", frames, "err", err)
			failed++
			continue
		}
		for _, se := range frame.Errors {
			logger.Warn("damaged slice", "frame", frames, "plane", se.Plane, "slice", se.Index, "err", se.Err)
		}

		path := filepath.Join(cfg.outDir, fmt.Sprintf("frame_%05d.%s", frames, cfg.format))
		img := frame.Image()
		g.Go(func() error {
			return writeImage(path, img, enc)
		})
		logger.Debug("decoded frame", "frame", frames, "path", path)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d frames failed", failed, frames)
	}
	logger.Info("done", "frames", frames)
	return nil
}

func printInfo(out io.Writer, n int, pkt []byte) error {
	m, err := magicyuv.DecodeMetadata(bytes.NewReader(pkt))
	if err != nil {
		return err
	}
	scan := "progressive"
	if m.Interlaced {
		scan = "interlaced"
	}
	rng := "limited"
	if m.FullRange {
		rng = "full"
	}
	_, err = fmt.Fprintf(out, "frame %d: %dx%d %s %d-bit, %d slices of %d rows, %s %s range, %s\n",
		n, m.Width, m.Height, m.Format, m.BitDepth, m.NumSlices, m.SliceHeight, m.ColorMatrix, rng, scan)
	return err
}

func writeImage(path string, img image.Image, enc encodeFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := enc(w, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
