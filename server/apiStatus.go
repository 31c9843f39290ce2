package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/server/configdb"
	"github.com/lotcam/lotcam/server/historydb"
	"github.com/lotcam/lotcam/server/monitor"
)

const defaultEventLimit = 50
const maxEventLimit = 1000

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	www.SendJSON(w, s.monitor.Snapshot())
}

func (s *Server) httpRecommendations(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	n := www.QueryInt(r, "n")
	if n <= 0 {
		n = 3
	}
	ranked := s.monitor.Snapshot().Ranked
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	www.SendJSON(w, ranked)
}

// availableJSON is the compact poll for signage: how many zones are free right now.
type availableJSON struct {
	Available int     `json:"available"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

func (s *Server) httpAvailable(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	snapshot := s.monitor.Snapshot()
	total := snapshot.FreeCount + snapshot.OccupiedCount
	percent := 0.0
	if total != 0 {
		percent = 100 * float64(snapshot.FreeCount) / float64(total)
	}
	www.SendJSON(w, &availableJSON{
		Available: snapshot.FreeCount,
		Total:     total,
		Percent:   percent,
	})
}

// httpEvents returns recent occupancy change events, oldest first.
// Query parameters:
//
//	limit  max number of events (default 50)
//	zid    restrict to one zone (served from the history DB)
func (s *Server) httpEvents(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	if r.URL.Query().Has("zid") {
		events, err := s.historyDB.EventsForZone(www.QueryInt64(r, "zid"), limit)
		www.Check(err)
		www.SendJSON(w, historyToChangeEvents(events))
		return
	}

	// The in-memory ring has the freshest events, but it is bounded and empties
	// on restart. When it can't fill the request, the history DB serves it
	// instead; its write buffer lags the ring by a couple of seconds.
	recent := s.monitor.RecentEvents(limit)
	if len(recent) < limit {
		stored, err := s.historyDB.RecentEvents(limit)
		www.Check(err)
		if len(stored) > len(recent) {
			www.SendJSON(w, historyToChangeEvents(stored))
			return
		}
	}
	www.SendJSON(w, recent)
}

func historyToChangeEvents(events []historydb.Event) []monitor.ChangeEvent {
	out := make([]monitor.ChangeEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, monitor.ChangeEvent{
			ZID:      ev.ZID,
			Occupied: ev.Occupied,
			At:       ev.At.Get(),
		})
	}
	return out
}
