package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/pkg/nn"
	"github.com/lotcam/lotcam/server/camera"
	"github.com/lotcam/lotcam/server/configdb"
	"github.com/stretchr/testify/require"
)

// scriptedSource serves the same image over and over. With limit set it ends
// the stream every limit frames, so we can watch the monitor rewind.
type scriptedSource struct {
	img   *cimg.Image
	limit int64
	fail  error

	lock    sync.Mutex
	nextID  int64
	rewinds int64
	closed  bool
}

func (s *scriptedSource) Next(ctx context.Context) (*camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	if s.limit > 0 && s.nextID >= s.limit {
		return nil, camera.ErrEndOfStream
	}
	frame := &camera.Frame{
		Image: s.img,
		ID:    s.nextID,
		At:    time.Now(),
	}
	s.nextID++
	return frame, nil
}

func (s *scriptedSource) Rewind() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rewinds++
	s.nextID = 0
	return nil
}

func (s *scriptedSource) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
}

func (s *scriptedSource) numRewinds() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.rewinds
}

func (s *scriptedSource) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// flipDetector sees a car in the zone on every second call, so every frame
// produces exactly one change event.
type flipDetector struct {
	calls atomic.Int64
}

func (d *flipDetector) Close() {}

func (d *flipDetector) DetectObjects(ctx context.Context, img *cimg.Image) ([]nn.ObjectDetection, error) {
	if d.calls.Add(1)%2 == 1 {
		return []nn.ObjectDetection{
			{Class: nn.COCOCar, Confidence: 0.9, Box: nn.Rect{X: 15, Y: 15, Width: 20, Height: 20}},
		}, nil
	}
	return nil, nil
}

// recordingSink collects EventSink calls.
type recordingSink struct {
	lock    sync.Mutex
	events  []ChangeEvent
	samples int
}

func (s *recordingSink) RecordEvent(zid int64, occupied bool, at time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.events = append(s.events, ChangeEvent{ZID: zid, Occupied: occupied, At: at})
}

func (s *recordingSink) RecordSample(at time.Time, occupied, free, totalValid int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.samples++
}

func (s *recordingSink) eventLog() []ChangeEvent {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]ChangeEvent{}, s.events...)
}

func (s *recordingSink) sampleCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.samples
}

func zonesFromPolygons(polys []geom.Polygon) []configdb.Zone {
	zones := make([]configdb.Zone, len(polys))
	for i, p := range polys {
		zones[i] = configdb.Zone{
			ZID:      int64(i) + 1,
			Name:     fmt.Sprintf("S%v", i+1),
			Vertices: dbh.MakeJSONField(p),
		}
	}
	return zones
}

func squareZone() []geom.Polygon {
	return []geom.Polygon{{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 50}, {X: 10, Y: 50}}}
}

// End-to-end: synthetic lot, heuristic detector, real annotation.
func TestMonitorSynthetic(t *testing.T) {
	src, err := camera.NewSynthSource(logs.NewTestingLog(t), 640, 360, 4)
	require.NoError(t, err)
	sink := &recordingSink{}
	m, err := NewMonitor(logs.NewTestingLog(t), Options{
		Source:    src,
		Zones:     zonesFromPolygons(src.StallPolygons()),
		Reference: src.EmptyLot(),
		Entrance:  geom.Point{X: 0, Y: 360},
		FPS:       100,
		Sink:      sink,
	})
	require.NoError(t, err)
	defer m.Close()

	require.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.FrameID >= 0 && s.FreeCount == 4
	}, 10*time.Second, 10*time.Millisecond)

	snap := m.Snapshot()
	require.Equal(t, "heuristic", snap.Detector)
	require.Equal(t, 4, snap.TotalZones)
	require.Equal(t, 0, snap.OccupiedCount)
	require.Len(t, snap.Ranked, 4)
	// Entrance is at the bottom-left corner, so stall 1 is the best spot
	require.Equal(t, int64(1), snap.Ranked[0].ZID)

	// Park a car in stall 3
	src.SetOccupied(2, true)
	require.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.OccupiedCount == 1 && s.Zones[2].Occupied
	}, 10*time.Second, 10*time.Millisecond)

	snap = m.Snapshot()
	require.False(t, snap.Zones[0].Occupied)
	require.Len(t, snap.Ranked, 3)
	for _, r := range snap.Ranked {
		require.NotEqual(t, int64(3), r.ZID)
	}
	require.NotNil(t, snap.Zones[2].Signals)

	events := m.RecentEvents(10)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, int64(3), last.ZID)
	require.True(t, last.Occupied)

	require.Eventually(t, func() bool {
		for _, ev := range sink.eventLog() {
			if ev.ZID == 3 && ev.Occupied {
				return true
			}
		}
		return false
	}, 10*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, sink.sampleCount(), 1)

	// And drive it away again
	src.SetOccupied(2, false)
	require.Eventually(t, func() bool {
		return m.Snapshot().OccupiedCount == 0
	}, 10*time.Second, 10*time.Millisecond)

	// Polling LatestJPEG registers demand, so an annotated frame shows up
	var jpg []byte
	require.Eventually(t, func() bool {
		jpg = m.LatestJPEG()
		return jpg != nil
	}, 10*time.Second, 20*time.Millisecond)
	decoded, err := cimg.Decompress(jpg)
	require.NoError(t, err)
	require.Equal(t, 640, decoded.Width)
	require.Equal(t, 360, decoded.Height)

	require.Greater(t, m.Metrics().FramesProcessed.Load(), uint64(0))
}

func TestMonitorRewind(t *testing.T) {
	src := &scriptedSource{
		img:   cimg.NewImage(64, 64, cimg.PixelFormatRGB),
		limit: 5,
	}
	m, err := NewMonitor(logs.NewTestingLog(t), Options{
		Source:            src,
		Zones:             zonesFromPolygons(squareZone()),
		FPS:               200,
		DisableAnnotation: true,
	})
	require.NoError(t, err)
	defer m.Close()

	require.Eventually(t, func() bool {
		return src.numRewinds() >= 2
	}, 10*time.Second, 5*time.Millisecond)
	require.Greater(t, m.Metrics().FramesProcessed.Load(), uint64(8))
	// Frame ids restart from 0 after each rewind
	require.Less(t, m.Snapshot().FrameID, int64(5))
}

func TestMonitorSourceErrors(t *testing.T) {
	src := &scriptedSource{
		img:  cimg.NewImage(64, 64, cimg.PixelFormatRGB),
		fail: fmt.Errorf("camera unplugged"),
	}
	m, err := NewMonitor(logs.NewTestingLog(t), Options{
		Source:            src,
		Zones:             zonesFromPolygons(squareZone()),
		FPS:               200,
		DisableAnnotation: true,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Metrics().FrameErrors.Load() >= 2
	}, 10*time.Second, 5*time.Millisecond)
	// No frame ever made it through
	require.Equal(t, int64(-1), m.Snapshot().FrameID)
	require.Equal(t, uint64(0), m.Metrics().FramesProcessed.Load())

	// The loop is in backoff sleep; Close must still return promptly
	done := make(chan bool)
	go func() {
		m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Close did not return while the source was failing")
	}
	require.True(t, src.isClosed())
}

func TestMonitorWatchers(t *testing.T) {
	src := &scriptedSource{img: cimg.NewImage(64, 64, cimg.PixelFormatRGB)}
	det := &flipDetector{}
	m, err := NewMonitor(logs.NewTestingLog(t), Options{
		Source:            src,
		Zones:             zonesFromPolygons(squareZone()),
		Detector:          det,
		FPS:               500,
		DisableAnnotation: true,
	})
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, "objects", m.Snapshot().Detector)

	watcher := m.AddWatcher()
	require.Equal(t, int64(1), m.Metrics().WatchersActive.Load())

	events := []ChangeEvent{}
	for len(events) < 3 {
		select {
		case ev := <-watcher:
			events = append(events, ev)
		case <-time.After(10 * time.Second):
			t.Fatalf("Timed out waiting for change events")
		}
	}
	for i, ev := range events {
		require.Equal(t, int64(1), ev.ZID)
		if i > 0 {
			require.NotEqual(t, events[i-1].Occupied, ev.Occupied)
		}
	}

	// Stop draining. The channel tops out just below capacity, and the
	// monitor keeps processing frames instead of stalling.
	require.Eventually(t, func() bool {
		return len(watcher) >= WatcherChannelSize*9/10
	}, 10*time.Second, 5*time.Millisecond)
	before := m.Metrics().FramesProcessed.Load()
	time.Sleep(100 * time.Millisecond)
	require.Greater(t, m.Metrics().FramesProcessed.Load(), before)
	require.LessOrEqual(t, len(watcher), WatcherChannelSize)

	m.RemoveWatcher(watcher)
	require.Equal(t, int64(0), m.Metrics().WatchersActive.Load())
	// Double removal warns rather than panicking
	m.RemoveWatcher(watcher)
}

func TestMonitorInvalidZone(t *testing.T) {
	src := &scriptedSource{img: cimg.NewImage(64, 64, cimg.PixelFormatRGB)}
	zones := zonesFromPolygons(squareZone())
	zones = append(zones, configdb.Zone{
		ZID:      2,
		Name:     "broken",
		Vertices: dbh.MakeJSONField(geom.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}}),
	})
	m, err := NewMonitor(logs.NewTestingLog(t), Options{
		Source:            src,
		Zones:             zones,
		FPS:               200,
		DisableAnnotation: true,
	})
	require.NoError(t, err)
	defer m.Close()

	require.Eventually(t, func() bool {
		return m.Snapshot().FrameID >= 0
	}, 10*time.Second, 5*time.Millisecond)

	snap := m.Snapshot()
	require.Equal(t, 2, snap.TotalZones)
	require.Len(t, snap.Zones, 2)
	require.True(t, snap.Zones[0].Valid)
	require.False(t, snap.Zones[1].Valid)
	// The malformed zone counts as neither free nor occupied
	require.Equal(t, 1, snap.FreeCount+snap.OccupiedCount)
}

func TestMonitorOptionErrors(t *testing.T) {
	src := &scriptedSource{img: cimg.NewImage(64, 64, cimg.PixelFormatRGB)}

	_, err := NewMonitor(logs.NewTestingLog(t), Options{Zones: zonesFromPolygons(squareZone())})
	require.Error(t, err)

	_, err = NewMonitor(logs.NewTestingLog(t), Options{Source: src})
	require.Error(t, err)

	malformed := []configdb.Zone{{ZID: 1, Name: "x", Vertices: dbh.MakeJSONField(geom.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}})}}
	_, err = NewMonitor(logs.NewTestingLog(t), Options{Source: src, Zones: malformed})
	require.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	src := &scriptedSource{img: cimg.NewImage(64, 64, cimg.PixelFormatRGB)}
	m, err := NewMonitor(logs.NewTestingLog(t), Options{
		Source:            src,
		Zones:             zonesFromPolygons(squareZone()),
		FPS:               200,
		DisableAnnotation: true,
	})
	require.NoError(t, err)
	defer m.Close()

	require.Eventually(t, func() bool {
		return m.Metrics().FramesProcessed.Load() > 0
	}, 10*time.Second, 5*time.Millisecond)

	w := httptest.NewRecorder()
	m.Metrics().Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "lotcam_frames_processed_total")
	require.Contains(t, body, "lotcam_zones_free 1")
	require.Contains(t, body, "lotcam_watchers_active 0")
}
