// magydec decodes MagicYUV packets to image files.
//
// Usage:
//
//	magydec [options] <file>
//
// The input is either a single packet or a packet dump (optionally zstd
// compressed). Use '-' to read from stdin:
//
//	cat capture.mgy.zst | magydec -format qoi -o frames -
//
// Options:
//
//	-format string   output format: png, qoi or tiff (default "png")
//	-o string        output directory (default ".")
//	-workers int     slice decoding goroutines, 0 for all CPUs
//	-joint string    multi-symbol tables: skip, break, symmetric or off (default "break")
//	-info            print frame information instead of decoding
//	-v               log debug events
//	-version         print version information
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
)

const version = "1.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <file>\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Decode a MagicYUV packet or packet dump to image files.\n\n")
	fmt.Fprintf(os.Stderr, "Use '-' as filename to read from stdin.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}

func main() {
	var (
		cfg     config
		verbose bool
		showVer bool
	)
	flag.StringVar(&cfg.format, "format", "png", "output format: png, qoi or tiff")
	flag.StringVar(&cfg.outDir, "o", ".", "output directory")
	flag.IntVar(&cfg.workers, "workers", 0, "slice decoding goroutines, 0 for all CPUs")
	flag.StringVar(&cfg.joint, "joint", "break", "multi-symbol tables: skip, break, symmetric or off")
	flag.BoolVar(&cfg.info, "info", false, "print frame information instead of decoding")
	flag.BoolVar(&verbose, "v", false, "log debug events")
	flag.BoolVar(&showVer, "version", false, "print version information")
	flag.Usage = usage
	flag.Parse()

	if showVer {
		fmt.Printf("magydec (go-magicyuv) %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, in, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR '%s': %v\n", args[0], err)
		stop()
		os.Exit(1)
	}
}
