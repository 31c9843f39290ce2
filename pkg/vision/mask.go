package vision

import (
	"image"

	"github.com/fogleman/gg"
	"github.com/lotcam/lotcam/pkg/geom"
)

// zoneMask is a rasterized zone polygon, clipped to the frame.
// Signal fractions are computed over the set pixels only, so a car in the
// corner of the frame does not bleed into a neighboring zone's statistics.
type zoneMask struct {
	rect  image.Rectangle // placement within the frame
	bits  []bool          // row-major over rect
	count int             // number of set bits
}

// rasterizeMask renders the polygon into a bitmap over its bounding box,
// clipped to frameWidth x frameHeight. count is 0 if the polygon lies
// entirely outside the frame or covers no whole pixels.
func rasterizeMask(pg geom.Polygon, frameWidth, frameHeight int) *zoneMask {
	bounds := pg.Bounds()
	x0 := max(int(bounds.X), 0)
	y0 := max(int(bounds.Y), 0)
	x1 := min(int(bounds.X2())+1, frameWidth)
	y1 := min(int(bounds.Y2())+1, frameHeight)
	m := &zoneMask{
		rect: image.Rect(x0, y0, x1, y1),
	}
	if m.rect.Empty() {
		return m
	}
	w := m.rect.Dx()
	h := m.rect.Dy()
	dc := gg.NewContext(w, h)
	dc.MoveTo(float64(pg[0].X)-float64(x0), float64(pg[0].Y)-float64(y0))
	for _, v := range pg[1:] {
		dc.LineTo(float64(v.X)-float64(x0), float64(v.Y)-float64(y0))
	}
	dc.ClosePath()
	dc.SetRGB(1, 1, 1)
	dc.Fill()
	img := dc.Image().(*image.RGBA)
	m.bits = make([]bool, w*h)
	for y := 0; y < h; y++ {
		line := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			if line[x*4] >= 128 {
				m.bits[y*w+x] = true
				m.count++
			}
		}
	}
	return m
}

// fraction returns the share of mask pixels that are set in the binary image.
// binary must be a full-frame mask.
func (m *zoneMask) fraction(binary *image.Gray) float32 {
	if m.count == 0 {
		return 0
	}
	w := m.rect.Dx()
	h := m.rect.Dy()
	hits := 0
	for y := 0; y < h; y++ {
		fy := m.rect.Min.Y + y
		line := binary.Pix[fy*binary.Stride:]
		for x := 0; x < w; x++ {
			if m.bits[y*w+x] && line[m.rect.Min.X+x] >= 128 {
				hits++
			}
		}
	}
	return float32(hits) / float32(m.count)
}
