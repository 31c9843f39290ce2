package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
	"github.com/lotcam/lotcam/pkg/geom"
)

// Synthetic lot layout, in pixels.
const (
	synthStallWidth  = 120
	synthStallHeight = 180
	synthStallGap    = 20
	synthMarginX     = 40
	synthMarginY     = 60
	// The zone polygon is inset from the painted stall so the white lane lines
	// stay outside the zone mask and don't register as edges.
	synthZoneInset = 6
)

// Car paint, chosen to contrast with the asphalt in both luminance and color
// so the heuristic signals have healthy margins.
var synthCarColors = [][3]int{
	{230, 60, 50},   // red
	{70, 130, 220},  // blue
	{230, 200, 60},  // yellow
	{190, 192, 198}, // silver
	{235, 120, 40},  // orange
}

// SynthSource renders a procedural parking lot. Stalls appear and free up
// either under test control (SetOccupied) or on a rotating schedule (SetCycle),
// which powers `--source synth://WxH` demo mode.
type SynthSource struct {
	log    logs.Log
	width  int
	height int
	stalls []geom.Rect

	lock     sync.Mutex
	occupied []bool
	cycle    int64 // frames per phase of the rotating pattern, 0 = manual

	nextID int64
}

// NewSynthSource creates a procedural lot of the given size.
// numStalls <= 0 fits as many stalls as the width allows.
func NewSynthSource(log logs.Log, width, height, numStalls int) (*SynthSource, error) {
	if numStalls <= 0 {
		numStalls = (width - synthMarginX*2 + synthStallGap) / (synthStallWidth + synthStallGap)
		if numStalls < 1 {
			numStalls = 1
		}
	}
	needW := synthMarginX*2 + numStalls*synthStallWidth + (numStalls-1)*synthStallGap
	needH := synthMarginY + synthStallHeight
	if width < needW || height < needH {
		return nil, fmt.Errorf("%v stalls need at least %vx%v, have %vx%v", numStalls, needW, needH, width, height)
	}
	s := &SynthSource{
		log:      log,
		width:    width,
		height:   height,
		occupied: make([]bool, numStalls),
	}
	y := float32(height - synthMarginY - synthStallHeight)
	for i := 0; i < numStalls; i++ {
		x := float32(synthMarginX + i*(synthStallWidth+synthStallGap))
		s.stalls = append(s.stalls, geom.Rect{X: x, Y: y, Width: synthStallWidth, Height: synthStallHeight})
	}
	return s, nil
}

// NumStalls returns the number of stalls in the lot.
func (s *SynthSource) NumStalls() int {
	return len(s.stalls)
}

// StallPolygons returns the zone geometry matching the painted stalls,
// in stall order.
func (s *SynthSource) StallPolygons() []geom.Polygon {
	polys := make([]geom.Polygon, len(s.stalls))
	for i, st := range s.stalls {
		x0 := st.X + synthZoneInset
		y0 := st.Y + synthZoneInset
		x1 := st.X2() - synthZoneInset
		y1 := st.Y2() - synthZoneInset
		polys[i] = geom.Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
	}
	return polys
}

// SetOccupied parks or removes the car in one stall.
func (s *SynthSource) SetOccupied(stall int, occupied bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if stall >= 0 && stall < len(s.occupied) {
		s.occupied[stall] = occupied
	}
}

// SetCycle switches to a rotating occupancy pattern that advances every
// framesPerPhase frames. 0 returns to manual control.
func (s *SynthSource) SetCycle(framesPerPhase int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cycle = framesPerPhase
}

// EmptyLot renders the lot with every stall free, for use as the heuristic
// detector's reference image.
func (s *SynthSource) EmptyLot() *cimg.Image {
	return s.render(make([]bool, len(s.stalls)))
}

func (s *SynthSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	occ := make([]bool, len(s.occupied))
	if s.cycle > 0 {
		phase := s.nextID / s.cycle
		for i := range occ {
			occ[i] = (phase+int64(i))%3 != 0
		}
	} else {
		copy(occ, s.occupied)
	}
	s.lock.Unlock()

	frame := &Frame{
		Image: s.render(occ),
		ID:    s.nextID,
		At:    time.Now(),
	}
	s.nextID++
	return frame, nil
}

func (s *SynthSource) Rewind() error {
	s.nextID = 0
	return nil
}

func (s *SynthSource) Close() {
}

func (s *SynthSource) render(occupied []bool) *cimg.Image {
	dc := gg.NewContext(s.width, s.height)
	// Asphalt
	dc.SetRGB255(58, 58, 60)
	dc.Clear()
	// Lane lines
	dc.SetRGB255(235, 235, 235)
	dc.SetLineWidth(3)
	for _, st := range s.stalls {
		dc.DrawRectangle(float64(st.X), float64(st.Y), float64(st.Width), float64(st.Height))
		dc.Stroke()
	}
	// Cars
	for i, st := range s.stalls {
		if !occupied[i] {
			continue
		}
		body := synthCarColors[i%len(synthCarColors)]
		x := float64(st.X)
		y := float64(st.Y)
		dc.SetRGB255(body[0], body[1], body[2])
		dc.DrawRoundedRectangle(x+10, y+10, synthStallWidth-20, synthStallHeight-20, 14)
		dc.Fill()
		// Windshield and rear window
		dc.SetRGB255(25, 28, 34)
		dc.DrawRoundedRectangle(x+24, y+36, synthStallWidth-48, 32, 6)
		dc.Fill()
		dc.DrawRoundedRectangle(x+24, y+synthStallHeight-62, synthStallWidth-48, 26, 6)
		dc.Fill()
	}
	return FromImage(dc.Image().(*image.RGBA))
}
