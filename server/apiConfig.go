package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/server/configdb"
)

func (s *Server) httpConfigGetVariableDefinitions(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	www.SendJSON(w, configdb.AllVariables)
}

func (s *Server) httpConfigGetVariableValues(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	values := []configdb.Variable{}
	www.Check(s.configDB.DB.Find(&values).Error)
	www.SendJSON(w, values)
}

func (s *Server) httpConfigSetVariable(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	key := configdb.VariableKey(params.ByName("key"))
	value := ""
	if r.URL.Query().Has("value") {
		value = r.URL.Query().Get("value")
	} else {
		value = www.ReadString(w, r, 1024*1024)
	}

	www.CheckClient(configdb.ValidateVariable(key, value))
	www.Check(s.configDB.SetVariable(key, value))

	s.Log.Infof("Set config variable %v: %v", key, value)

	// If you receive wantRestart:true, then you should call /api/system/restart
	// when you're ready to restart. You may want to batch a few setVariable
	// calls before restarting.
	// SYNC-SET-VARIABLE-RESPONSE
	type Response struct {
		WantRestart bool `json:"wantRestart"`
	}

	www.SendJSON(w, &Response{
		WantRestart: configdb.VariableSetNeedsRestart(key),
	})
}
