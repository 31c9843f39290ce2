package monitor

import (
	"sort"

	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/server/configdb"
)

// zoneState is the compiled runtime form of a zone record: geometry digested
// once, validity decided once.
type zoneState struct {
	zid      int64
	name     string
	polygon  geom.Polygon
	centroid geom.Point
	bounds   geom.Rect
	valid    bool
}

// compileZones digests zone records into runtime state, sorted by ascending
// zone id. A zone with fewer than 3 vertices or zero area is malformed: we
// keep it, so the API can show it to whoever drew it, but it is flagged
// invalid and takes no part in detection or ranking.
func compileZones(log logs.Log, zones []configdb.Zone) []*zoneState {
	out := make([]*zoneState, 0, len(zones))
	for _, z := range zones {
		polygon := z.Vertices.Data
		zs := &zoneState{
			zid:      z.ZID,
			name:     z.Name,
			polygon:  polygon,
			centroid: polygon.Centroid(),
			bounds:   polygon.Bounds(),
			valid:    len(polygon) >= 3 && polygon.Area() > 0,
		}
		if !zs.valid {
			log.Warnf("Zone %v (%v) is malformed (%v vertices, area %.1f). It will not take part in detection.",
				z.ZID, z.Name, len(polygon), polygon.Area())
		}
		out = append(out, zs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].zid < out[j].zid
	})
	return out
}

// validZones returns the zones that take part in detection and ranking.
func validZones(zones []*zoneState) []*zoneState {
	out := make([]*zoneState, 0, len(zones))
	for _, z := range zones {
		if z.valid {
			out = append(out, z)
		}
	}
	return out
}
