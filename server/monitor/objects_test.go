package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/pkg/nn"
	"github.com/lotcam/lotcam/server/camera"
	"github.com/lotcam/lotcam/server/configdb"
	"github.com/stretchr/testify/require"
)

// fakeDetector returns a fixed set of detections, or a fixed error.
type fakeDetector struct {
	objects []nn.ObjectDetection
	err     error
	closed  bool
}

func (d *fakeDetector) Close() {
	d.closed = true
}

func (d *fakeDetector) DetectObjects(ctx context.Context, img *cimg.Image) ([]nn.ObjectDetection, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.objects, nil
}

// Two 100x100 zones with a 100px gap between them.
func testObjectZones(t *testing.T) []*zoneState {
	zones := []configdb.Zone{
		{ZID: 1, Name: "A", Vertices: dbh.MakeJSONField(geom.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}})},
		{ZID: 2, Name: "B", Vertices: dbh.MakeJSONField(geom.Polygon{{X: 200, Y: 0}, {X: 300, Y: 0}, {X: 300, Y: 100}, {X: 200, Y: 100}})},
	}
	return validZones(compileZones(logs.NewTestingLog(t), zones))
}

func testFrame() *camera.Frame {
	return &camera.Frame{
		Image: cimg.NewImage(320, 100, cimg.PixelFormatRGB),
		ID:    1,
		At:    time.Now(),
	}
}

func TestObjectAnalyzerCenter(t *testing.T) {
	det := &fakeDetector{
		objects: []nn.ObjectDetection{
			{Class: nn.COCOCar, Confidence: 0.9, Box: nn.Rect{X: 40, Y: 40, Width: 20, Height: 20}},
			{Class: nn.COCOCar, Confidence: 0.8, Box: nn.Rect{X: 10, Y: 10, Width: 20, Height: 20}},
			{Class: nn.COCOPerson, Confidence: 0.95, Box: nn.Rect{X: 210, Y: 10, Width: 80, Height: 80}},
			{Class: nn.COCOBicycle, Confidence: 0.9, Box: nn.Rect{X: 220, Y: 20, Width: 30, Height: 30}},
		},
	}
	a := newObjectAnalyzer(logs.NewTestingLog(t), det, testObjectZones(t))
	occupied, signals, err := a.analyze(context.Background(), testFrame())
	require.NoError(t, err)
	require.Nil(t, signals)
	// Two cars in A still mark it occupied exactly once. The person and the
	// bicycle in B are not vehicles, so B stays free.
	require.Equal(t, []bool{true, false}, occupied)

	det.objects = []nn.ObjectDetection{
		{Class: nn.COCOMotorcycle, Confidence: 0.7, Box: nn.Rect{X: 210, Y: 10, Width: 50, Height: 50}},
	}
	occupied, _, err = a.analyze(context.Background(), testFrame())
	require.NoError(t, err)
	require.Equal(t, []bool{false, true}, occupied)

	a.close()
	require.True(t, det.closed)
}

func TestObjectAnalyzerSpanning(t *testing.T) {
	// A truck covering the whole strip overlaps both zones by IOU 1/3, so both
	// count as occupied even though its center is in the gap.
	det := &fakeDetector{
		objects: []nn.ObjectDetection{
			{Class: nn.COCOTruck, Confidence: 0.9, Box: nn.Rect{X: 0, Y: 0, Width: 300, Height: 100}},
		},
	}
	a := newObjectAnalyzer(logs.NewTestingLog(t), det, testObjectZones(t))
	occupied, _, err := a.analyze(context.Background(), testFrame())
	require.NoError(t, err)
	require.Equal(t, []bool{true, true}, occupied)
}

func TestObjectAnalyzerGap(t *testing.T) {
	// A car parked in the lane between the zones touches neither.
	det := &fakeDetector{
		objects: []nn.ObjectDetection{
			{Class: nn.COCOCar, Confidence: 0.9, Box: nn.Rect{X: 110, Y: 40, Width: 30, Height: 30}},
		},
	}
	a := newObjectAnalyzer(logs.NewTestingLog(t), det, testObjectZones(t))
	occupied, _, err := a.analyze(context.Background(), testFrame())
	require.NoError(t, err)
	require.Equal(t, []bool{false, false}, occupied)
}

func TestObjectAnalyzerDetectorError(t *testing.T) {
	// A dead detection service reads as an empty lot, not a dead loop
	det := &fakeDetector{err: fmt.Errorf("connection refused")}
	a := newObjectAnalyzer(logs.NewTestingLog(t), det, testObjectZones(t))
	occupied, signals, err := a.analyze(context.Background(), testFrame())
	require.NoError(t, err)
	require.Nil(t, signals)
	require.Equal(t, []bool{false, false}, occupied)
}
