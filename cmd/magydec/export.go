package main

import (
	"image"
	"image/png"
	"io"

	"github.com/xfmoulet/qoi"
	"golang.org/x/image/tiff"
)

// encodeFunc writes an image in one output format.
type encodeFunc func(io.Writer, image.Image) error

// encoders maps output format names to encoders. QOI stores 8 bits per
// channel; TIFF and PNG keep 16-bit samples.
var encoders = map[string]encodeFunc{
	"png": png.Encode,
	"qoi": qoi.Encode,
	"tiff": func(w io.Writer, m image.Image) error {
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	},
}
