package server

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/staticfiles"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/server/configdb"
)

//go:embed www
var staticWWW embed.FS

type authenticatedHandler func(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User)

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	// protected creates an HTTP handler that needs a logged-in user
	protected := func(method, route string, handle authenticatedHandler) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			user := s.configDB.GetUser(r)
			if user == nil {
				http.Error(w, "Not authorized", http.StatusUnauthorized)
				return
			}
			handle(w, r, params, user)
		})
	}

	// protectedAdmin additionally needs the admin permission
	protectedAdmin := func(method, route string, handle authenticatedHandler) {
		protected(method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
			if !user.HasPermission(configdb.UserPermissionAdmin) {
				www.PanicForbidden()
			}
			handle(w, r, params, user)
		})
	}

	// unprotected creates an HTTP handler that is accessible without authentication
	unprotected := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// ratelimited creates an unprotected handler with a per-IP request budget.
	// The only place BASIC credentials are accepted is behind one of these.
	ratelimited := func(method, route string, handle func(w http.ResponseWriter, r *http.Request), requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(handle)).ServeHTTP(w, r)
		})
	}

	unprotected("GET", "/api/ping", s.httpSystemPing)

	ratelimited("POST", "/api/auth/login", s.httpAuthLogin, 10, 5*time.Minute)
	protected("POST", "/api/auth/logout", s.httpAuthLogout)
	protected("GET", "/api/auth/whoami", s.httpAuthWhoAmi)
	unprotected("GET", "/api/auth/hasAdmin", s.httpAuthHasAdmin)
	protectedAdmin("POST", "/api/auth/users", s.httpAuthCreateUser)
	protectedAdmin("GET", "/api/auth/users", s.httpAuthListUsers)

	protected("GET", "/api/status", s.httpStatus)
	protected("GET", "/api/recommendations", s.httpRecommendations)
	protected("GET", "/api/available", s.httpAvailable)
	protected("GET", "/api/events", s.httpEvents)
	protected("GET", "/api/ws/events", s.httpEventsWebSocket)

	protected("GET", "/api/zones", s.httpZoneList)
	protectedAdmin("POST", "/api/zones", s.httpZoneCreate)
	protectedAdmin("POST", "/api/zones/:zid", s.httpZoneUpdate)
	protectedAdmin("DELETE", "/api/zones/:zid", s.httpZoneDelete)

	protected("GET", "/api/config/variableDefinitions", s.httpConfigGetVariableDefinitions)
	protected("GET", "/api/config/variableValues", s.httpConfigGetVariableValues)
	protectedAdmin("POST", "/api/config/setVariable/:key", s.httpConfigSetVariable)
	protectedAdmin("POST", "/api/system/restart", s.httpSystemRestart)

	protected("GET", "/video_feed", s.httpFeedMJPEG)
	protected("GET", "/camera/latest.jpg", s.httpFeedLatestImage)
	protected("GET", "/report/occupancy", s.httpReportOccupancy)

	metricsHandler := s.monitor.Metrics().Handler()
	unprotected("GET", "/metrics", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		metricsHandler.ServeHTTP(w, r)
	})

	isImmutable := true
	var fsys fs.FS
	fsysRoot := "www"
	fsys = staticWWW
	if s.HotReloadWWW {
		relRoot := "server/www"
		absRoot, err := filepath.Abs(relRoot)
		if err != nil {
			s.Log.Errorf("Failed to resolve static file directory %v: %v", relRoot, err)
			return errors.New("Failed to resolve static file directory for hot reload")
		}
		s.Log.Infof("Serving static files from %v, with hot reload", absRoot)
		fsys = os.DirFS(absRoot)
		fsysRoot = ""
		isImmutable = false
	}

	static, err := staticfiles.NewCachedStaticFileServer(fsys, fsysRoot, []string{"/api/"}, s.Log, isImmutable, nil)
	if err != nil {
		s.Log.Warnf("Error in static files: %v. The API will work, but the dashboard won't.", err)
	}
	router.NotFound = static

	s.httpRouter = router
	return nil
}
