package monitor

import (
	"sort"

	"github.com/lotcam/lotcam/pkg/geom"
)

// RankedZone is a free zone, ordered by how convenient it is to reach.
type RankedZone struct {
	ZID      int64      `json:"zid"`
	Distance float32    `json:"distance"`
	Centroid geom.Point `json:"centroid"`
}

// RankAvailable orders the free zones by distance from zone centroid to the
// entrance, closest first. Ties break on ascending zone id, so the ranking is
// deterministic. Occupied and malformed zones are excluded.
func RankAvailable(zones []ZoneStatus, entrance geom.Point) []RankedZone {
	ranked := make([]RankedZone, 0, len(zones))
	for _, z := range zones {
		if !z.Valid || z.Occupied {
			continue
		}
		ranked = append(ranked, RankedZone{
			ZID:      z.ZID,
			Distance: z.Centroid.Distance(entrance),
			Centroid: z.Centroid,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].ZID < ranked[j].ZID
	})
	return ranked
}
