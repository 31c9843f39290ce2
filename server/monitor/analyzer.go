package monitor

import (
	"context"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/vision"
	"github.com/lotcam/lotcam/server/camera"
)

// frameAnalyzer is what the monitor loop runs on every frame: one occupancy
// verdict per zone, parallel to the zone slice the analyzer was built with.
// signals is nil for analyzers that have no per-signal scores to report.
type frameAnalyzer interface {
	analyze(ctx context.Context, frame *camera.Frame) (occupied []bool, signals []vision.ZoneSignals, err error)
	name() string
	close()
}

// heuristicAnalyzer adapts the pixel-signal detector in pkg/vision.
type heuristicAnalyzer struct {
	det         *vision.Heuristic
	visionZones []vision.Zone
}

func newHeuristicAnalyzer(log logs.Log, ref *cimg.Image, zones []*zoneState) *heuristicAnalyzer {
	visionZones := make([]vision.Zone, len(zones))
	for i, z := range zones {
		visionZones[i] = vision.Zone{ID: z.zid, Polygon: z.polygon}
	}
	return &heuristicAnalyzer{
		det:         vision.NewHeuristic(log, ref),
		visionZones: visionZones,
	}
}

func (a *heuristicAnalyzer) name() string {
	return "heuristic"
}

func (a *heuristicAnalyzer) close() {
}

func (a *heuristicAnalyzer) analyze(ctx context.Context, frame *camera.Frame) ([]bool, []vision.ZoneSignals, error) {
	signals := a.det.Analyze(frame.Image, a.visionZones)
	occupied := make([]bool, len(signals))
	for i, sig := range signals {
		occupied[i] = sig.Occupied
	}
	return occupied, signals, nil
}
