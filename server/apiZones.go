package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/server/configdb"
)

// Zone edits only take effect in the monitor after a restart
// (/api/system/restart). The dashboard batches its edits and restarts once.

// SYNC-ZONE-JSON
type zoneJSON struct {
	ZID      int64        `json:"zid"`
	Name     string       `json:"name"`
	Vertices geom.Polygon `json:"vertices"`
}

func (s *Server) httpZoneList(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	zones, err := s.configDB.ListZones()
	www.Check(err)
	www.SendJSON(w, zones)
}

func (s *Server) httpZoneCreate(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	body := zoneJSON{}
	www.ReadJSON(w, r, &body, 1024*1024)
	zone, err := s.configDB.CreateZone(body.ZID, body.Name, body.Vertices)
	www.CheckClient(err)
	s.Log.Infof("User %v created zone %v ('%v')", user.Username, zone.ZID, zone.Name)
	www.SendJSON(w, zone)
}

func (s *Server) httpZoneUpdate(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	zid := www.ParseID(params.ByName("zid"))
	body := zoneJSON{}
	www.ReadJSON(w, r, &body, 1024*1024)
	zone, err := s.configDB.UpdateZone(zid, body.Name, body.Vertices)
	www.CheckClient(err)
	s.Log.Infof("User %v updated zone %v ('%v')", user.Username, zone.ZID, zone.Name)
	www.SendJSON(w, zone)
}

func (s *Server) httpZoneDelete(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	zid := www.ParseID(params.ByName("zid"))
	www.CheckClient(s.configDB.DeleteZone(zid))
	s.Log.Infof("User %v deleted zone %v", user.Username, zid)
	www.SendOK(w)
}
