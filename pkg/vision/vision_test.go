package vision

import (
	"image"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/stretchr/testify/require"
)

func uniformImage(width, height int, value byte) *cimg.Image {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = value
	}
	return img
}

func fillRect(img *cimg.Image, x0, y0, x1, y1 int, value byte) {
	for y := y0; y < y1; y++ {
		line := img.Pixels[y*img.Stride : y*img.Stride+img.Width*3]
		for x := x0; x < x1; x++ {
			line[x*3] = value
			line[x*3+1] = value
			line[x*3+2] = value
		}
	}
}

// fillRampX paints a horizontal grayscale ramp across the full frame:
// black at rampX0, full white at rampX1, clamped outside that range.
func fillRampX(img *cimg.Image, rampX0, rampX1 int) {
	for y := 0; y < img.Height; y++ {
		line := img.Pixels[y*img.Stride : y*img.Stride+img.Width*3]
		for x := 0; x < img.Width; x++ {
			v := (x - rampX0) * 255 / (rampX1 - rampX0)
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			line[x*3] = byte(v)
			line[x*3+1] = byte(v)
			line[x*3+2] = byte(v)
		}
	}
}

func fillChecker(img *cimg.Image, x0, y0, x1, y1, square int, dark, bright byte) {
	for y := y0; y < y1; y++ {
		line := img.Pixels[y*img.Stride : y*img.Stride+img.Width*3]
		for x := x0; x < x1; x++ {
			v := dark
			if ((x-x0)/square+(y-y0)/square)%2 == 1 {
				v = bright
			}
			line[x*3] = v
			line[x*3+1] = v
			line[x*3+2] = v
		}
	}
}

func rectPolygon(x0, y0, x1, y1 float32) geom.Polygon {
	return geom.Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func TestFuseVotes(t *testing.T) {
	low := ZoneSignals{Change: 0.01, ColorVar: 0.01, EdgeDensity: 0.01}
	cases := []struct {
		change, color, edge bool
	}{
		{false, false, false},
		{true, false, false},
		{false, true, false},
		{false, false, true},
		{true, true, false},
		{true, false, true},
		{false, true, true},
		{true, true, true},
	}
	for _, c := range cases {
		sig := low
		expectVotes := 0
		if c.change {
			sig.Change = ChangeThreshold + 0.1
			expectVotes++
		}
		if c.color {
			sig.ColorVar = ColorVarThreshold + 0.1
			expectVotes++
		}
		if c.edge {
			sig.EdgeDensity = EdgeDensityThreshold + 0.1
			expectVotes++
		}
		fused := fuse(sig)
		require.Equal(t, expectVotes, fused.Votes, "case %+v", c)
		require.Equal(t, expectVotes >= 2, fused.Occupied, "case %+v", c)
	}
}

func TestMaskRasterize(t *testing.T) {
	// Axis-aligned rectangle on integer coordinates rasterizes exactly
	m := rasterizeMask(rectPolygon(10, 10, 50, 50), 100, 100)
	require.Equal(t, 40*40, m.count)
	require.Equal(t, image.Rect(10, 10, 51, 51), m.rect)

	// Clipped by the frame boundary
	m = rasterizeMask(rectPolygon(90, 90, 150, 150), 100, 100)
	require.Equal(t, 10*10, m.count)

	// Entirely outside the frame
	m = rasterizeMask(rectPolygon(-50, -50, -10, -10), 100, 100)
	require.Equal(t, 0, m.count)

	// fraction counts only mask pixels
	binary := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 30; x++ {
			binary.Pix[y*binary.Stride+x] = 255
		}
	}
	m = rasterizeMask(rectPolygon(10, 10, 50, 50), 100, 100)
	// Columns 10..29 of the 40 wide mask are set
	require.InDelta(t, 0.5, m.fraction(binary), 0.01)
}

func TestUniformFrameIsFree(t *testing.T) {
	ref := uniformImage(160, 120, 40)
	frame := uniformImage(160, 120, 40)
	h := NewHeuristic(logs.NewTestingLog(t), ref)
	sig := h.Analyze(frame, []Zone{{ID: 1, Polygon: rectPolygon(16, 16, 144, 104)}})
	require.Len(t, sig, 1)
	require.Equal(t, 0, sig[0].Votes)
	require.False(t, sig[0].Occupied)
	require.Less(t, sig[0].Change, ChangeThreshold)
	require.Less(t, sig[0].EdgeDensity, EdgeDensityThreshold)
}

// A solid brightness change with no internal structure trips only the change
// signal, and one vote out of three must not flip the zone.
func TestSingleSignalIsFree(t *testing.T) {
	ref := uniformImage(160, 120, 40)
	frame := uniformImage(160, 120, 40)
	// The block extends well past the zone so the block's border edges stay
	// outside the zone mask.
	fillRect(frame, 8, 8, 152, 112, 200)
	h := NewHeuristic(logs.NewTestingLog(t), ref)
	sig := h.Analyze(frame, []Zone{{ID: 1, Polygon: rectPolygon(24, 24, 136, 96)}})
	require.Len(t, sig, 1)
	require.Greater(t, sig[0].Change, ChangeThreshold)
	require.Less(t, sig[0].ColorVar, ColorVarThreshold)
	require.Less(t, sig[0].EdgeDensity, EdgeDensityThreshold)
	require.Equal(t, 1, sig[0].Votes)
	require.False(t, sig[0].Occupied)
}

// A smooth brightness ramp has high variance and large change but no edges:
// two of three votes, which is enough.
func TestTwoSignalsIsOccupied(t *testing.T) {
	ref := uniformImage(160, 120, 40)
	frame := uniformImage(160, 120, 40)
	fillRampX(frame, 16, 144)
	h := NewHeuristic(logs.NewTestingLog(t), ref)
	sig := h.Analyze(frame, []Zone{{ID: 1, Polygon: rectPolygon(16, 16, 144, 104)}})
	require.Len(t, sig, 1)
	require.Greater(t, sig[0].Change, ChangeThreshold)
	require.Greater(t, sig[0].ColorVar, ColorVarThreshold)
	require.Less(t, sig[0].EdgeDensity, EdgeDensityThreshold)
	require.Equal(t, 2, sig[0].Votes)
	require.True(t, sig[0].Occupied)
}

// Without a reference image the detector still works off edges and variance.
func TestEdgeMode(t *testing.T) {
	frame := uniformImage(160, 120, 40)
	fillChecker(frame, 8, 8, 152, 112, 16, 0, 255)
	h := NewHeuristic(logs.NewTestingLog(t), nil)
	require.False(t, h.HasReference())
	sig := h.Analyze(frame, []Zone{
		{ID: 1, Polygon: rectPolygon(24, 24, 136, 96)},
	})
	require.Len(t, sig, 1)
	require.True(t, sig[0].Occupied)

	// An empty uniform frame stays free
	empty := uniformImage(160, 120, 40)
	sig = h.Analyze(empty, []Zone{
		{ID: 1, Polygon: rectPolygon(24, 24, 136, 96)},
	})
	require.Equal(t, 0, sig[0].Votes)
	require.False(t, sig[0].Occupied)
}

// Masks are cached per zone id and rebuilt when the frame size changes.
func TestMaskCache(t *testing.T) {
	h := NewHeuristic(logs.NewTestingLog(t), nil)
	zone := []Zone{{ID: 7, Polygon: rectPolygon(10, 10, 50, 50)}}
	h.Analyze(uniformImage(100, 100, 40), zone)
	first := h.masks[7]
	require.NotNil(t, first)
	h.Analyze(uniformImage(100, 100, 40), zone)
	require.Same(t, first, h.masks[7])
	h.Analyze(uniformImage(200, 100, 40), zone)
	require.NotSame(t, first, h.masks[7])
}
