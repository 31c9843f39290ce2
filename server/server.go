// Package server is the lotcam HTTP server. It owns the config and history
// databases and the occupancy monitor, and exposes them over a JSON API,
// an MJPEG feed, a websocket event stream, and an embedded dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/pkg/nn"
	"github.com/lotcam/lotcam/server/camera"
	"github.com/lotcam/lotcam/server/configdb"
	"github.com/lotcam/lotcam/server/historydb"
	"github.com/lotcam/lotcam/server/monitor"
)

const ServerFlagHotReloadWWW = 1

// Options are the command-line level settings of the server. Runtime settings
// (zones, users, variables) live in the config database, and survive restarts.
type Options struct {
	// Source is the frame source URL.
	// One of dir://path, mjpeg://host/stream, synth://WxH.
	Source string

	// HistoryFile is the occupancy history database (eg history.sqlite).
	HistoryFile string

	// ReferenceFile is an optional JPEG of the empty lot, for the heuristic detector.
	ReferenceFile string

	// Detector overrides the "detector" config variable ("heuristic" or "objects").
	Detector string

	// NNServiceURL is the object detection service, for the "objects" detector.
	NNServiceURL string

	// ZonesFile seeds the zone table on first run (ignored once zones exist).
	ZonesFile string

	// Entrance overrides the "entrance" config variable ("x,y" in frame pixels).
	Entrance string

	// FPS is the target analysis frame rate (0 = monitor default).
	FPS int

	DisableAnnotation bool
	Verbose           bool
}

type Server struct {
	Log              logs.Log
	OwnIP            net.IP     // If not nil, printed in the startup banner so you can find the dashboard
	MustRestart      bool       // Value of the 'restart' parameter given to Shutdown()
	ShutdownComplete chan error // Closed after shutdown has finished
	HotReloadWWW     bool

	configDB  *configdb.ConfigDB
	historyDB *historydb.HistoryDB
	monitor   *monitor.Monitor
	startedAt time.Time

	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	wsUpgrader websocket.Upgrader
}

// NewServer brings up the history database and the monitor, but does not
// listen yet. Call ListenHTTP to start serving.
func NewServer(logger logs.Log, configDB *configdb.ConfigDB, flags int, options *Options) (*Server, error) {
	s := &Server{
		Log:              logger,
		configDB:         configDB,
		HotReloadWWW:     flags&ServerFlagHotReloadWWW != 0,
		ShutdownComplete: make(chan error, 1),
		startedAt:        time.Now(),
	}

	if options.ZonesFile != "" {
		if _, err := configDB.ImportZonesFromFile(options.ZonesFile); err != nil {
			return nil, fmt.Errorf("Failed to import zones from %v: %w", options.ZonesFile, err)
		}
	}

	source, synth, err := openSource(logger, options.Source)
	if err != nil {
		return nil, err
	}

	zones, err := configDB.ListZones()
	if err != nil {
		source.Close()
		return nil, err
	}
	if len(zones) == 0 && synth != nil {
		// A synthetic lot knows its own stall layout, so seed the zones from it.
		// This makes `lotcam --source synth://` work on a completely fresh system.
		for i, poly := range synth.StallPolygons() {
			if _, err := configDB.CreateZone(0, fmt.Sprintf("Stall %v", i+1), poly); err != nil {
				source.Close()
				return nil, err
			}
		}
		zones, err = configDB.ListZones()
		if err != nil {
			source.Close()
			return nil, err
		}
		logger.Infof("Seeded %v zones from the synthetic lot layout", len(zones))
	}

	detector, err := s.resolveVariable(configdb.VarDetector, options.Detector)
	if err != nil {
		source.Close()
		return nil, err
	}
	var objectDetector nn.ObjectDetector
	if detector == "objects" {
		if options.NNServiceURL == "" {
			source.Close()
			return nil, errors.New("The objects detector needs an object detection service URL (--nn)")
		}
		objectDetector = nn.NewHTTPDetector(options.NNServiceURL)
	}

	reference, err := loadReference(options.ReferenceFile, synth)
	if err != nil {
		source.Close()
		return nil, err
	}

	entranceStr, err := s.resolveVariable(configdb.VarEntrance, options.Entrance)
	if err != nil {
		source.Close()
		return nil, err
	}
	entrance := geom.Point{}
	if entranceStr != "" {
		entrance, err = configdb.ParseEntrance(entranceStr)
		if err != nil {
			source.Close()
			return nil, err
		}
	}

	annotationVar, err := s.resolveVariable(configdb.VarAnnotation, "")
	if err != nil {
		source.Close()
		return nil, err
	}

	historyDB, err := historydb.NewHistoryDB(logger, options.HistoryFile, 0)
	if err != nil {
		source.Close()
		return nil, err
	}
	s.historyDB = historyDB

	mon, err := monitor.NewMonitor(logger, monitor.Options{
		Source:            source,
		Zones:             zones,
		Detector:          objectDetector,
		Reference:         reference,
		Entrance:          entrance,
		FPS:               options.FPS,
		DisableAnnotation: options.DisableAnnotation || annotationVar == "0",
		Sink:              historyDB,
		Verbose:           options.Verbose,
	})
	if err != nil {
		historyDB.Close()
		source.Close()
		return nil, err
	}
	s.monitor = mon

	if err := s.setupHttpRoutes(); err != nil {
		s.monitor.Close()
		s.historyDB.Close()
		return nil, err
	}
	return s, nil
}

// resolveVariable returns the command-line override if present, and the config
// variable otherwise. The override is validated the same way the API validates
// a variable write.
func (s *Server) resolveVariable(key configdb.VariableKey, override string) (string, error) {
	if override != "" {
		if err := configdb.ValidateVariable(key, override); err != nil {
			return "", err
		}
		return override, nil
	}
	value, err := s.configDB.GetVariable(key)
	if err != nil {
		return "", err
	}
	return value, nil
}

// openSource turns a source URL into a frame source. For synthetic sources the
// concrete *SynthSource is also returned, so that the caller can reuse its
// stall layout and empty-lot render.
func openSource(logger logs.Log, url string) (camera.FrameSource, *camera.SynthSource, error) {
	switch {
	case strings.HasPrefix(url, "dir://"):
		src, err := camera.NewImageDirSource(logger, strings.TrimPrefix(url, "dir://"), 0)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	case strings.HasPrefix(url, "mjpeg://"):
		return camera.NewMJPEGSource(logger, "http://"+strings.TrimPrefix(url, "mjpeg://")), nil, nil
	case strings.HasPrefix(url, "synth://"):
		width, height := 640, 360
		if size := strings.TrimPrefix(url, "synth://"); size != "" {
			var err error
			width, height, err = parseSize(size)
			if err != nil {
				return nil, nil, err
			}
		}
		src, err := camera.NewSynthSource(logger, width, height, 0)
		if err != nil {
			return nil, nil, err
		}
		// Rotate the parked cars so that a demo system shows live flips.
		src.SetCycle(300)
		return src, src, nil
	}
	return nil, nil, fmt.Errorf("Unrecognized source '%v'. Valid sources are dir://path, mjpeg://host/stream, synth://WxH", url)
}

func parseSize(size string) (int, int, error) {
	parts := strings.Split(strings.ToLower(size), "x")
	if len(parts) == 2 {
		width, err1 := strconv.Atoi(parts[0])
		height, err2 := strconv.Atoi(parts[1])
		if err1 == nil && err2 == nil && width > 0 && height > 0 {
			return width, height, nil
		}
	}
	return 0, 0, fmt.Errorf("Invalid size '%v'. Expected WxH, eg 640x360", size)
}

// loadReference loads the empty-lot reference image. When there is no
// reference file but the source is synthetic, the synthetic lot renders its
// own empty frame.
func loadReference(filename string, synth *camera.SynthSource) (*cimg.Image, error) {
	if filename != "" {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("Failed to read reference image %v: %w", filename, err)
		}
		img, err := cimg.Decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("Failed to decode reference image %v: %w", filename, err)
		}
		if img.NChan() != 3 {
			img = img.ToRGB()
		}
		return img, nil
	}
	if synth != nil {
		return synth.EmptyLot(), nil
	}
	return nil, nil
}

// Monitor returns the running occupancy monitor.
func (s *Server) Monitor() *monitor.Monitor {
	return s.monitor
}

// addr example: ":8080"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	if s.OwnIP != nil {
		s.Log.Infof("Dashboard at http://%v%v", s.OwnIP, addr)
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.httpRouter,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// Regular Shutdown() path
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			s.Shutdown(false)
		} else {
			// Shutdown() was initiated by somebody else (eg the restart API),
			// and it closed signalIn.
		}
	}()
}

// Shutdown stops the HTTP server, the monitor, and the history database.
// With restart true, the outer process loop creates a fresh server instead of
// exiting.
func (s *Server) Shutdown(restart bool) {
	s.Log.Infof("Shutdown (restart: %v)", restart)
	s.MustRestart = restart
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}

	// Closing the HTTP server causes ListenHTTP to return.
	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.httpServer.Shutdown(ctx)
		cancel()
	}

	s.monitor.Close()
	s.historyDB.Close()

	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	if !restart {
		s.Log.Close()
	}
	s.ShutdownComplete <- err
}
