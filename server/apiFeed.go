package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/pkg/mjpeg"
	"github.com/lotcam/lotcam/server/configdb"
)

// Clients get at most this many frames per second, regardless of how fast the
// monitor runs. A dashboard doesn't need more, and it keeps the JPEG bandwidth
// per viewer predictable.
const feedMaxFPS = 10

// httpFeedMJPEG streams annotated frames as multipart MJPEG, until the client
// disconnects. Polling LatestJPEG is what tells the monitor that somebody is
// watching, so a stream with no viewers costs no annotation work.
func (s *Server) httpFeedMJPEG(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	writer, err := mjpeg.NewWriter(w)
	www.Check(err)

	ticker := time.NewTicker(time.Second / feedMaxFPS)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			jpg := s.monitor.LatestJPEG()
			if jpg == nil {
				continue
			}
			if err := writer.WriteFrame(jpg); err != nil {
				// The client went away
				return
			}
		}
	}
}

// Fetch a JPG of the latest annotated frame.
// Example: curl -o img.jpg localhost:8080/camera/latest.jpg
func (s *Server) httpFeedLatestImage(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	www.CacheNever(w)

	contentType := "image/jpeg"
	img := s.monitor.LatestJPEG()
	if img == nil {
		www.PanicBadRequestf("No image available yet")
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(img)
}
