// Package enhance re-inks a rasterized document page: strokes are isolated by
// thresholding, thickened by dilation and painted over a clean background.
//
// Every function here is pure. Inputs are never modified and outputs share no
// memory with them.
package enhance

import (
	"image"
	"image/color"
	"math"

	"github.com/local/inkboost/internal/style"
)

const (
	// FixedThreshold is the ink cut-off used by style.ThresholdFixed. After
	// contrast amplification a pixel at or below it is ink.
	FixedThreshold uint8 = 220

	// SmoothThreshold re-binarizes the blurred mask; values above it stay ink.
	SmoothThreshold uint8 = 100

	ink uint8 = 255
)

// Enhance runs the full pipeline on one page and returns a new RGBA image with
// the same bounds as src. Pixels are either st.Ink or background: st.Background
// when st.RemoveBackground is set, otherwise the inverse of the undilated ink
// mask.
//
// st is expected to be valid (see style.Config.Validate).
func Enhance(src image.Image, st style.Config) *image.RGBA {
	if st.Flat() {
		return fill(src.Bounds(), st.Ink)
	}
	gray := Grayscale(src)
	amplified := AmplifyContrast(gray, st.ContrastGain)

	threshold := FixedThreshold
	if st.Threshold == style.ThresholdOtsu {
		threshold = OtsuThreshold(amplified)
	}
	binary := Binarize(amplified, threshold)
	thick := Dilate(binary, st.Thickness)
	final := Smooth(thick)

	return composite(final, binary, st)
}

// Grayscale collapses src to one luminance channel with the BT.601 weights in
// 14-bit fixed point. A *image.Gray is copied unchanged.
func Grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)

	switch s := src.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(out.Pix[y*w:(y+1)*w], row[:w])
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				p := row[x*4 : x*4+3]
				out.Pix[y*w+x] = luma(uint32(p[0]), uint32(p[1]), uint32(p[2]))
			}
		}
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			row := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				p := row[x*4 : x*4+3]
				out.Pix[y*w+x] = luma(uint32(p[0]), uint32(p[1]), uint32(p[2]))
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bb, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
				out.Pix[y*w+x] = luma(r>>8, g>>8, bb>>8)
			}
		}
	}
	return out
}

func luma(r, g, b uint32) uint8 {
	return uint8((r*4899 + g*9617 + b*1868 + 8192) >> 14)
}

// AmplifyContrast scales every pixel by gain with no offset, rounding half to
// even and saturating to [0,255].
func AmplifyContrast(g *image.Gray, gain float64) *image.Gray {
	var lut [256]uint8
	for i := range lut {
		v := math.RoundToEven(math.Abs(float64(i) * gain))
		switch {
		case v > 255:
			lut[i] = 255
		default:
			lut[i] = uint8(v)
		}
	}
	out := image.NewGray(g.Bounds())
	for i, v := range tight(g) {
		out.Pix[i] = lut[v]
	}
	return out
}

// Binarize marks pixels at or below threshold as ink (255); everything else
// becomes 0.
func Binarize(g *image.Gray, threshold uint8) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, v := range tight(g) {
		if v <= threshold {
			out.Pix[i] = ink
		}
	}
	return out
}

// OtsuThreshold returns the global threshold that maximizes between-class
// variance of the histogram of g. A single-valued histogram has no split and
// yields 0, so a uniform page is only ink when it is pure black.
func OtsuThreshold(g *image.Gray) uint8 {
	pix := tight(g)
	if len(pix) == 0 {
		return FixedThreshold
	}
	var hist [256]int
	for _, v := range pix {
		hist[v]++
	}
	n := float64(len(pix))

	var mu float64
	for i, c := range hist {
		mu += float64(i) * float64(c)
	}
	mu /= n

	const eps = 1e-7
	var (
		q1, mu1  float64
		maxSigma float64
		best     int
	)
	for i := 0; i < 256; i++ {
		p := float64(hist[i]) / n
		next := q1 + p
		if next > 0 {
			mu1 = (mu1*q1 + float64(i)*p) / next
		}
		q1 = next
		if q1 < eps || q1 > 1-eps {
			continue
		}
		mu2 := (mu - q1*mu1) / (1 - q1)
		sigma := q1 * (1 - q1) * (mu1 - mu2) * (mu1 - mu2)
		if sigma > maxSigma {
			maxSigma = sigma
			best = i
		}
	}
	return uint8(best)
}

// Dilate grows ink regions with a k×k square structuring element anchored at
// its center, one iteration. Pixels outside the image never contribute.
func Dilate(mask *image.Gray, k int) *image.Gray {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	pix := tight(mask)
	if k <= 1 {
		copy(out.Pix, pix)
		return out
	}
	lo := -(k / 2)
	hi := k - 1 + lo

	// A square element is separable: max along rows, then along columns.
	rows := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		src := pix[y*w : (y+1)*w]
		dst := rows[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			from, to := clamp(x+lo, 0, w-1), clamp(x+hi, 0, w-1)
			var m uint8
			for i := from; i <= to; i++ {
				if src[i] > m {
					m = src[i]
					if m == ink {
						break
					}
				}
			}
			dst[x] = m
		}
	}
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			from, to := clamp(y+lo, 0, h-1), clamp(y+hi, 0, h-1)
			var m uint8
			for i := from; i <= to; i++ {
				if v := rows[i*w+x]; v > m {
					m = v
					if m == ink {
						break
					}
				}
			}
			out.Pix[y*w+x] = m
		}
	}
	return out
}

// Smooth applies a 3×3 Gaussian blur (reflect-101 border) and re-binarizes at
// SmoothThreshold, removing single-pixel spurs left by dilation.
func Smooth(mask *image.Gray) *image.Gray {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	pix := tight(mask)
	weights := [3]int{1, 2, 1}

	// Horizontal pass keeps 4x scaled sums, vertical pass brings it to 16x.
	tmp := make([]int, w*h)
	for y := 0; y < h; y++ {
		row := pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			s := 0
			for i := -1; i <= 1; i++ {
				s += weights[i+1] * int(row[reflect101(x+i, w)])
			}
			tmp[y*w+x] = s
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for i := -1; i <= 1; i++ {
				s += weights[i+1] * tmp[reflect101(y+i, h)*w+x]
			}
			if uint8((s+8)/16) > SmoothThreshold {
				out.Pix[y*w+x] = ink
			}
		}
	}
	return out
}

func composite(final, binary *image.Gray, st style.Config) *image.RGBA {
	out := image.NewRGBA(final.Bounds())
	inkColor := color.RGBA{st.Ink.R, st.Ink.G, st.Ink.B, 0xff}
	bgColor := color.RGBA{st.Background.R, st.Background.G, st.Background.B, 0xff}

	mask, orig := tight(final), tight(binary)
	for i, m := range mask {
		c := bgColor
		switch {
		case m == ink:
			c = inkColor
		case !st.RemoveBackground:
			v := 255 - orig[i]
			c = color.RGBA{v, v, v, 0xff}
		}
		p := out.Pix[i*4 : i*4+4]
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
	}
	return out
}

// fill is the result for a flat style, where ink and background coincide.
func fill(b image.Rectangle, c style.RGB) *image.RGBA {
	out := image.NewRGBA(b)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = c.R, c.G, c.B, 0xff
	}
	return out
}

// tight returns the pixels of g as a row-major slice of exactly Dx*Dy bytes,
// copying only when g is a sub-image.
func tight(g *image.Gray) []uint8 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	start := g.PixOffset(b.Min.X, b.Min.Y)
	if g.Stride == w {
		return g.Pix[start : start+w*h]
	}
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		off := start + y*g.Stride
		copy(out[y*w:(y+1)*w], g.Pix[off:off+w])
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}
