package vision

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat"
)

// colorVariance measures how colorful/uneven a zone is, as the mean of the
// per-channel standard deviations of H,S,V over the mask pixels, scaled by
// colorVarScale into [0,1]. Empty asphalt is near-uniform (low variance);
// a vehicle brings paint, glass and shadow (high variance).
//
// Channels use the 8-bit-camera convention (H in [0,180), S and V in [0,255])
// so that colorVarScale keeps its customary meaning.
func colorVariance(rgba *image.RGBA, m *zoneMask) float32 {
	// MeanStdDev needs at least two samples
	if m.count < 2 {
		return 0
	}
	hs := make([]float64, 0, m.count)
	ss := make([]float64, 0, m.count)
	vs := make([]float64, 0, m.count)
	w := m.rect.Dx()
	hgt := m.rect.Dy()
	for y := 0; y < hgt; y++ {
		fy := m.rect.Min.Y + y
		line := rgba.Pix[fy*rgba.Stride:]
		for x := 0; x < w; x++ {
			if !m.bits[y*w+x] {
				continue
			}
			fx := m.rect.Min.X + x
			c := colorful.Color{
				R: float64(line[fx*4]) / 255,
				G: float64(line[fx*4+1]) / 255,
				B: float64(line[fx*4+2]) / 255,
			}
			h, s, v := c.Hsv()
			hs = append(hs, h/2)
			ss = append(ss, s*255)
			vs = append(vs, v*255)
		}
	}
	_, hStd := stat.MeanStdDev(hs, nil)
	_, sStd := stat.MeanStdDev(ss, nil)
	_, vStd := stat.MeanStdDev(vs, nil)
	score := float32((hStd + sStd + vStd) / 3 / colorVarScale)
	if score > 1 {
		score = 1
	}
	return score
}
