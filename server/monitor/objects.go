package monitor

import (
	"context"
	"time"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/pkg/nn"
	"github.com/lotcam/lotcam/pkg/vision"
	"github.com/lotcam/lotcam/server/camera"
)

// A vehicle box marks a zone occupied when the IoU of the box against the
// zone's bounding box exceeds this, even if the box center falls outside
// the polygon.
const minZoneOverlap = 0.3

// objectAnalyzer infers occupancy from an object detection service: a zone is
// occupied when any vehicle detection lands in it. One vehicle spanning two
// zones marks both; there is no assignment step.
type objectAnalyzer struct {
	log       logs.Log
	detector  nn.ObjectDetector
	zones     []*zoneState
	index     *flatbush.Flatbush[int32] // static index over zone bounds
	searchBuf []int
	lastErr   time.Time
}

func newObjectAnalyzer(log logs.Log, detector nn.ObjectDetector, zones []*zoneState) *objectAnalyzer {
	a := &objectAnalyzer{
		log:      log,
		detector: detector,
		zones:    zones,
		index:    flatbush.NewFlatbush[int32](),
	}
	// Zone geometry is fixed for the life of the analyzer, so one index serves
	// every frame. Bounds are rounded outward.
	a.index.Reserve(len(zones))
	for _, z := range zones {
		b := z.bounds
		a.index.Add(int32(math32.Floor(b.X)), int32(math32.Floor(b.Y)), int32(math32.Ceil(b.X2())), int32(math32.Ceil(b.Y2())))
	}
	a.index.Finish()
	return a
}

func (a *objectAnalyzer) name() string {
	return "objects"
}

func (a *objectAnalyzer) close() {
	a.detector.Close()
}

func (a *objectAnalyzer) analyze(ctx context.Context, frame *camera.Frame) ([]bool, []vision.ZoneSignals, error) {
	occupied := make([]bool, len(a.zones))
	objects, err := a.detector.DetectObjects(ctx, frame.Image)
	if err != nil {
		// A dead detection service must not kill the loop. This frame simply
		// has no vehicles in it, and the tracker sees empty zones.
		if time.Now().Sub(a.lastErr) > 15*time.Second {
			a.log.Errorf("Object detection failed: %v", err)
			a.lastErr = time.Now()
		}
		return occupied, nil, nil
	}
	for _, obj := range objects {
		if !nn.IsVehicle(obj.Class) {
			continue
		}
		box := geom.Rect{
			X:      float32(obj.Box.X),
			Y:      float32(obj.Box.Y),
			Width:  float32(obj.Box.Width),
			Height: float32(obj.Box.Height),
		}
		center := box.Center()
		a.searchBuf = a.index.SearchFast(int32(obj.Box.X), int32(obj.Box.Y), int32(obj.Box.X+obj.Box.Width), int32(obj.Box.Y+obj.Box.Height), a.searchBuf)
		for _, zi := range a.searchBuf {
			if occupied[zi] {
				continue
			}
			z := a.zones[zi]
			if z.polygon.Contains(center) || geom.BoxOverlapRatio(box, z.polygon) > minZoneOverlap {
				occupied[zi] = true
			}
		}
	}
	return occupied, nil, nil
}
