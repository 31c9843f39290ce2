package server

import (
	"net/http"
	"os"
	"time"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/pkg/buildinfo"
	"github.com/lotcam/lotcam/server/configdb"
)

type pingJSON struct {
	Greeting string `json:"greeting"`
	Hostname string `json:"hostname"`
	Time     int64  `json:"time"`
	Version  string `json:"version"`
}

func (s *Server) httpSystemPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	hostname, _ := os.Hostname()
	ping := &pingJSON{
		Greeting: "I am Lotcam",
		Hostname: hostname,
		Time:     time.Now().Unix(),
		Version:  buildinfo.Version,
	}
	www.SendJSON(w, ping)
}

func (s *Server) httpSystemRestart(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	www.SendText(w, "Restarting...")
	// We run the shutdown from a new goroutine so that this HTTP handler can return,
	// which tells the HTTP framework that this request is finished.
	// If we instead run Shutdown from this thread, then the system never sees us return,
	// so it thinks that we're still busy sending a response.
	go func() {
		s.Shutdown(true)
	}()
}
