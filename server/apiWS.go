package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/server/configdb"
)

// httpEventsWebSocket streams occupancy change events to the client, one JSON
// ChangeEvent per message. A client that stops reading loses events rather
// than stalling the monitor (see monitor.AddWatcher).
func (s *Server) httpEventsWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("Event websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events := s.monitor.AddWatcher()
	defer s.monitor.RemoveWatcher(events)

	// Read from the websocket and post to our own channel, so that a single
	// loop handles both client closure and event delivery.
	closed := make(chan bool, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		closed <- true
	}()

	for {
		select {
		case <-closed:
			return
		case ev := <-events:
			if err := conn.WriteJSON(&ev); err != nil {
				s.Log.Infof("Event websocket write failed: %v", err)
				return
			}
		}
	}
}
