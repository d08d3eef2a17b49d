// Color conversion for YUV frames that have no image.Image counterpart.
//
// 8-bit YUV frames decode to image.YCbCr and leave conversion to the image
// package. Deeper YUV frames are converted to RGB here using the matrix the
// packet declares:
//
//   - BT.601 (also used when the matrix is unspecified)
//   - BT.709
//
// Limited range samples span [16, 235] for luma and [16, 240] for chroma,
// scaled by 2^(depth-8). Full range samples use the whole sample range.

package magicyuv

// colorConversion converts one Y'CbCr sample triple at the given precision
// to R'G'B' at the same precision.
type colorConversion func(y, cb, cr int32, precision int) (r, g, b int32)

// yuvMatrix holds the inverse matrix coefficients.
type yuvMatrix struct {
	crR, cbG, crG, cbB float64
}

var (
	// ITU-R BT.601 inverse matrix
	matrixBT601 = yuvMatrix{crR: 1.402, cbG: 0.344136, crG: 0.714136, cbB: 1.772}
	// ITU-R BT.709 inverse matrix
	matrixBT709 = yuvMatrix{crR: 1.5748, cbG: 0.1873, crG: 0.4681, cbB: 1.8556}
)

// getColorConversion returns the conversion for a matrix and range.
func getColorConversion(m ColorMatrix, fullRange bool) colorConversion {
	k := matrixBT601
	if m == MatrixBT709 {
		k = matrixBT709
	}
	return func(y, cb, cr int32, precision int) (int32, int32, int32) {
		maxVal := float64(int32(1)<<precision - 1)
		halfVal := float64(int32(1) << (precision - 1))

		fy := float64(y)
		fcb := float64(cb) - halfVal
		fcr := float64(cr) - halfVal
		if !fullRange {
			scale := float64(int32(1) << (precision - 8))
			fy = (fy - 16*scale) * maxVal / (219 * scale)
			fcb *= maxVal / (224 * scale)
			fcr *= maxVal / (224 * scale)
		}

		r := fy + k.crR*fcr
		g := fy - k.cbG*fcb - k.crG*fcr
		b := fy + k.cbB*fcb

		return clampToInt32(r, 0, maxVal), clampToInt32(g, 0, maxVal), clampToInt32(b, 0, maxVal)
	}
}

// clampToInt32 clamps a float64 to the given range and converts to int32.
func clampToInt32(v, min, max float64) int32 {
	if v < min {
		return int32(min)
	}
	if v > max {
		return int32(max)
	}
	return int32(v + 0.5) // Round
}
