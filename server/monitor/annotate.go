package monitor

import (
	"fmt"
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/server/camera"
)

const annotateJPEGQuality = 85

// Zone colors: free bays green, taken bays red, malformed zones gray, and the
// top ranked recommendations gold.
var (
	colorFree     = [3]int{40, 200, 80}
	colorOccupied = [3]int{230, 60, 50}
	colorInvalid  = [3]int{128, 128, 128}
	colorBest     = [3]int{255, 200, 40}
)

// annotator renders zone state over camera frames for the live feed.
type annotator struct {
	face font.Face
}

func newAnnotator() (*annotator, error) {
	fnt, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse embedded font: %w", err)
	}
	return &annotator{
		face: truetype.NewFace(fnt, &truetype.Options{Size: 13}),
	}, nil
}

// draw renders zone outlines, labels, recommendations and the HUD over a copy
// of the frame. zones are the monitor's compiled zones, in the same order as
// snapshot.Zones.
func (a *annotator) draw(frame *cimg.Image, snapshot *Snapshot, zones []*zoneState) *image.RGBA {
	rgba := camera.ToRGBA(frame)
	dc := gg.NewContextForRGBA(rgba)
	dc.SetFontFace(a.face)

	for i, status := range snapshot.Zones {
		z := zones[i]
		color := colorFree
		label := "FREE"
		switch {
		case !status.Valid:
			color = colorInvalid
			label = "?"
		case status.Occupied:
			color = colorOccupied
			label = "TAKEN"
		}
		if len(z.polygon) >= 3 {
			pathPolygon(dc, z.polygon)
			dc.SetRGBA255(color[0], color[1], color[2], 76)
			dc.FillPreserve()
			dc.SetRGBA255(color[0], color[1], color[2], 255)
			dc.SetLineWidth(2)
			dc.Stroke()
		}
		if len(z.polygon) > 0 {
			a.drawLabel(dc, fmt.Sprintf("%v %v", status.ZID, label), float64(z.centroid.X), float64(z.centroid.Y))
		}
	}

	// Gold overlay on the top recommendations.
	byZID := make(map[int64]*zoneState, len(zones))
	for _, z := range zones {
		byZID[z.zid] = z
	}
	for i, r := range snapshot.Ranked {
		if i >= 3 {
			break
		}
		z := byZID[r.ZID]
		if z == nil || len(z.polygon) < 3 {
			continue
		}
		pathPolygon(dc, z.polygon)
		dc.SetRGBA255(colorBest[0], colorBest[1], colorBest[2], 255)
		dc.SetLineWidth(2)
		dc.Stroke()
		a.drawLabel(dc, fmt.Sprintf("BEST #%v", i+1), float64(z.centroid.X), float64(z.centroid.Y)+16)
	}

	a.drawHUD(dc, snapshot, rgba.Bounds().Dx())
	return rgba
}

func pathPolygon(dc *gg.Context, polygon geom.Polygon) {
	dc.MoveTo(float64(polygon[0].X), float64(polygon[0].Y))
	for _, p := range polygon[1:] {
		dc.LineTo(float64(p.X), float64(p.Y))
	}
	dc.ClosePath()
}

func (a *annotator) drawLabel(dc *gg.Context, text string, x, y float64) {
	dc.SetRGBA255(0, 0, 0, 200)
	dc.DrawStringAnchored(text, x+1, y+1, 0.5, 0.5)
	dc.SetRGB255(255, 255, 255)
	dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
}

func (a *annotator) drawHUD(dc *gg.Context, snapshot *Snapshot, width int) {
	totalValid := snapshot.OccupiedCount + snapshot.FreeCount
	percent := 0
	if totalValid > 0 {
		percent = snapshot.OccupiedCount * 100 / totalValid
	}
	line := fmt.Sprintf("%v | Occupied %v/%v (%v%%) | %v",
		snapshot.At.Format("2006-01-02 15:04:05"), snapshot.OccupiedCount, totalValid, percent, snapshot.Detector)
	dc.SetRGBA255(0, 0, 0, 150)
	dc.DrawRectangle(0, 0, float64(width), 22)
	dc.Fill()
	dc.SetRGB255(255, 255, 255)
	dc.DrawStringAnchored(line, 6, 11, 0, 0.5)
}

// encodeJPEG compresses an annotated frame for the MJPEG feed.
func encodeJPEG(rgba *image.RGBA) ([]byte, error) {
	return cimg.Compress(camera.FromImage(rgba), cimg.MakeCompressParams(cimg.Sampling420, annotateJPEGQuality, 0))
}
