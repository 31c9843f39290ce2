// Package monitor runs the occupancy engine. A single loop pulls frames from
// a camera source, scores every parking zone with the configured detector,
// tracks flips between free and occupied, ranks the free zones by distance to
// the entrance, and publishes an immutable snapshot plus an annotated JPEG for
// anybody who asks.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/geom"
	"github.com/lotcam/lotcam/pkg/nn"
	"github.com/lotcam/lotcam/pkg/perfstats"
	"github.com/lotcam/lotcam/pkg/vision"
	"github.com/lotcam/lotcam/server/camera"
	"github.com/lotcam/lotcam/server/configdb"
)

const (
	// DefaultFPS is the target frame cadence when Options.FPS is zero.
	DefaultFPS = 30

	// Number of recent change events that RecentEvents can serve without
	// touching the history database. Must be a power of 2.
	recentEventCount = 256

	errorBackoffStart = 200 * time.Millisecond
	errorBackoffMax   = 5 * time.Second

	// How long after the last LatestJPEG call we keep annotating frames.
	// Nobody watching means no drawing and no JPEG encoding.
	annotateDemandWindow = 10 * time.Second

	statsDumpInterval = 1000
)

// EventSink receives tracker output for persistence. The monitor calls it
// from the frame loop, so implementations must not block; the history
// database buffers internally.
type EventSink interface {
	RecordEvent(zid int64, occupied bool, at time.Time)
	RecordSample(at time.Time, occupied, free, totalValid int)
}

// Options configures a Monitor.
type Options struct {
	Source camera.FrameSource
	Zones  []configdb.Zone

	// Detector selects object detection mode when non-nil.
	// When nil, the heuristic pixel-signal detector runs instead.
	Detector nn.ObjectDetector

	// Reference is an optional photo of the empty lot for the heuristic
	// detector. Ignored in object detection mode.
	Reference *cimg.Image

	// Entrance is the point that zone recommendations measure distance to.
	Entrance geom.Point

	// FPS is the target frames per second (default DefaultFPS).
	FPS int

	// DisableAnnotation turns off frame annotation and JPEG encoding.
	DisableAnnotation bool

	// Sink receives change events and hourly samples. May be nil.
	Sink EventSink

	Verbose bool
}

// ZoneStatus is one zone's state inside a Snapshot.
type ZoneStatus struct {
	ZID         int64               `json:"zid"`
	Name        string              `json:"name"`
	Valid       bool                `json:"valid"`
	Occupied    bool                `json:"occupied"`
	LastChanged time.Time           `json:"lastChanged"`
	Centroid    geom.Point          `json:"centroid"`
	Signals     *vision.ZoneSignals `json:"signals,omitempty"`
}

// Snapshot is the monitor's published state after a frame. It is immutable,
// shared by reference, and replaced wholesale on the next frame, so callers
// may hold onto it for as long as they like.
type Snapshot struct {
	At            time.Time    `json:"at"`
	FrameID       int64        `json:"frameID"`
	Detector      string       `json:"detector"`
	Zones         []ZoneStatus `json:"zones"`
	TotalZones    int          `json:"totalZones"`
	OccupiedCount int          `json:"occupiedCount"`
	FreeCount     int          `json:"freeCount"`
	Ranked        []RankedZone `json:"ranked"`
}

// Monitor owns the processing loop.
type Monitor struct {
	log       logs.Log
	source    camera.FrameSource
	analyzer  frameAnalyzer
	tracker   *Tracker
	zones     []*zoneState // all zones, ascending zid
	valid     []*zoneState // the subset that takes part in detection
	entrance  geom.Point
	interval  time.Duration
	sink      EventSink
	verbose   bool
	metrics   *Metrics
	annot     *annotator // nil when annotation is disabled
	createdAt time.Time

	recent     ringbuffer.RingP[ChangeEvent]
	recentLock sync.Mutex

	watchers     []chan ChangeEvent
	watchersLock sync.RWMutex

	currentLock     sync.Mutex
	current         *Snapshot
	currentJPEG     []byte
	lastFrameDemand atomic.Int64 // unix nanoseconds of the last LatestJPEG call

	ctx           context.Context
	cancel        context.CancelFunc
	mustStop      atomic.Bool
	looperStopped chan bool

	lastSample time.Time // hour bucket of the last sample handed to the sink
	lastEOSLog time.Time
	lastErrLog time.Time
	frameCount int64
	stats      loopStats
}

// Per-stage timing of the frame loop.
type loopStats struct {
	read     perfstats.TimeAccumulator
	detect   perfstats.TimeAccumulator
	track    perfstats.TimeAccumulator
	annotate perfstats.TimeAccumulator
	encode   perfstats.TimeAccumulator
}

func (s *loopStats) reset() {
	s.read.Reset()
	s.detect.Reset()
	s.track.Reset()
	s.annotate.Reset()
	s.encode.Reset()
}

// NewMonitor creates a monitor and starts its processing loop.
func NewMonitor(logger logs.Log, opts Options) (*Monitor, error) {
	if opts.Source == nil {
		return nil, errors.New("monitor needs a frame source")
	}
	zones := compileZones(logger, opts.Zones)
	valid := validZones(zones)
	if len(valid) == 0 {
		return nil, errors.New("monitor needs at least one valid zone")
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	now := time.Now()
	m := &Monitor{
		log:       logger,
		source:    opts.Source,
		zones:     zones,
		valid:     valid,
		entrance:  opts.Entrance,
		interval:  time.Second / time.Duration(fps),
		sink:      opts.Sink,
		verbose:   opts.Verbose,
		metrics:   newMetrics(),
		createdAt: now,
		recent:    ringbuffer.NewRingP[ChangeEvent](recentEventCount),
	}
	zids := make([]int64, len(valid))
	for i, z := range valid {
		zids[i] = z.zid
	}
	m.tracker = NewTracker(logger, zids, now)
	if opts.Detector != nil {
		m.analyzer = newObjectAnalyzer(logger, opts.Detector, valid)
	} else {
		m.analyzer = newHeuristicAnalyzer(logger, opts.Reference, valid)
	}
	if !opts.DisableAnnotation {
		annot, err := newAnnotator()
		if err != nil {
			return nil, fmt.Errorf("Failed to create annotator: %w", err)
		}
		m.annot = annot
	}
	m.lastFrameDemand.Store(now.UnixNano())
	m.current = m.buildSnapshot(-1, now, nil)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	logger.Infof("Monitor starting: %v zones (%v valid), detector %v, %v fps", len(zones), len(valid), m.analyzer.name(), fps)
	m.start()
	return m, nil
}

// Close stops the processing loop and releases the source and the detector.
func (m *Monitor) Close() {
	m.log.Infof("Monitor shutting down")
	m.stop()
	m.analyzer.close()
	m.source.Close()
	m.log.Infof("Monitor is closed")
}

// Stop the processing loop
func (m *Monitor) stop() {
	m.mustStop.Store(true)
	m.cancel()
	<-m.looperStopped
}

// Start the processing loop
func (m *Monitor) start() {
	m.mustStop.Store(false)
	m.looperStopped = make(chan bool)
	go m.loop()
}

// Metrics returns the monitor's prometheus-facing counters.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Snapshot returns the most recently published state. Never nil.
func (m *Monitor) Snapshot() *Snapshot {
	m.currentLock.Lock()
	defer m.currentLock.Unlock()
	return m.current
}

// LatestJPEG returns the latest annotated frame, or nil if no frame has been
// annotated yet. Calling it registers demand: the monitor only spends time on
// annotation while somebody is polling this.
func (m *Monitor) LatestJPEG() []byte {
	m.lastFrameDemand.Store(time.Now().UnixNano())
	m.currentLock.Lock()
	defer m.currentLock.Unlock()
	return m.currentJPEG
}

// RecentEvents returns up to n of the latest change events, oldest first.
func (m *Monitor) RecentEvents(n int) []ChangeEvent {
	m.recentLock.Lock()
	defer m.recentLock.Unlock()
	count := m.recent.Len()
	if n > count {
		n = count
	}
	out := make([]ChangeEvent, 0, n)
	for i := count - n; i < count; i++ {
		out = append(out, m.recent.Peek(i))
	}
	return out
}

// Loop runs until Close()
func (m *Monitor) loop() {
	backoff := errorBackoffStart

	for !m.mustStop.Load() {
		frameStart := time.Now()
		frame, err := m.source.Next(m.ctx)
		if m.mustStop.Load() {
			break
		}
		if errors.Is(err, camera.ErrEndOfStream) {
			// Finite sources loop forever.
			if time.Now().Sub(m.lastEOSLog) > 15*time.Second {
				m.log.Infof("Frame source ended. Rewinding.")
				m.lastEOSLog = time.Now()
			}
			if rerr := m.source.Rewind(); rerr != nil {
				m.log.Errorf("Rewind failed: %v", rerr)
				m.sleepInterruptible(backoff)
				backoff = min(backoff*2, errorBackoffMax)
			}
			continue
		}
		if err != nil {
			m.metrics.FrameErrors.Add(1)
			if time.Now().Sub(m.lastErrLog) > 15*time.Second {
				m.log.Errorf("Failed to read frame: %v", err)
				m.lastErrLog = time.Now()
			}
			m.sleepInterruptible(backoff)
			backoff = min(backoff*2, errorBackoffMax)
			continue
		}
		backoff = errorBackoffStart
		m.stats.read.AddSince(frameStart)

		detectStart := time.Now()
		occupied, signals, err := m.analyzer.analyze(m.ctx, frame)
		if err != nil {
			m.metrics.FrameErrors.Add(1)
			if time.Now().Sub(m.lastErrLog) > 15*time.Second {
				m.log.Errorf("Analyzer failed: %v", err)
				m.lastErrLog = time.Now()
			}
			m.sleepInterruptible(m.interval)
			continue
		}
		m.stats.detect.AddSince(detectStart)
		m.metrics.DetectLatencyMs.Store(uint64(time.Now().Sub(detectStart).Milliseconds()))

		trackStart := time.Now()
		obs := make([]ZoneObservation, len(m.valid))
		for i, z := range m.valid {
			obs[i] = ZoneObservation{ZID: z.zid, Occupied: occupied[i]}
		}
		events := m.tracker.IngestFrame(obs, frame.At)
		for _, ev := range events {
			m.recentLock.Lock()
			m.recent.Add(ev)
			m.recentLock.Unlock()
			if m.sink != nil {
				m.sink.RecordEvent(ev.ZID, ev.Occupied, ev.At)
			}
		}
		if len(events) != 0 {
			m.metrics.ChangeEvents.Add(uint64(len(events)))
			m.sendToWatchers(events)
		}
		snapshot := m.buildSnapshot(frame.ID, frame.At, signals)
		m.stats.track.AddSince(trackStart)

		var jpg []byte
		if m.annotationWanted() {
			annotateStart := time.Now()
			rgba := m.annot.draw(frame.Image, snapshot, m.zones)
			m.stats.annotate.AddSince(annotateStart)
			encodeStart := time.Now()
			jpg, err = encodeJPEG(rgba)
			if err != nil {
				m.log.Warnf("Failed to encode annotated frame: %v", err)
				jpg = nil
			}
			m.stats.encode.AddSince(encodeStart)
		}

		m.publish(snapshot, jpg)
		m.metrics.FramesProcessed.Add(1)
		m.metrics.ZonesOccupied.Store(uint64(snapshot.OccupiedCount))
		m.metrics.ZonesFree.Store(uint64(snapshot.FreeCount))
		m.recordSample(snapshot)

		m.frameCount++
		if m.verbose && m.frameCount%statsDumpInterval == 0 {
			m.dumpStats()
		}

		elapsed := time.Now().Sub(frameStart)
		m.metrics.LoopLatencyMs.Store(uint64(elapsed.Milliseconds()))
		if elapsed > m.interval {
			// We overran the frame budget. Don't try to catch up; just start
			// the next frame immediately.
			m.metrics.FramesDropped.Add(1)
		} else {
			m.sleepInterruptible(m.interval - elapsed)
		}
	}
	close(m.looperStopped)
}

// buildSnapshot assembles the published state. signals is parallel to m.valid
// and may be nil.
func (m *Monitor) buildSnapshot(frameID int64, at time.Time, signals []vision.ZoneSignals) *Snapshot {
	statuses := make([]ZoneStatus, 0, len(m.zones))
	occupiedCount := 0
	freeCount := 0
	vi := 0
	for _, z := range m.zones {
		status := ZoneStatus{
			ZID:      z.zid,
			Name:     z.name,
			Valid:    z.valid,
			Centroid: z.centroid,
		}
		if z.valid {
			state, _ := m.tracker.State(z.zid)
			status.Occupied = state.Occupied
			status.LastChanged = state.LastChanged
			if signals != nil {
				sig := signals[vi]
				status.Signals = &sig
			}
			if state.Occupied {
				occupiedCount++
			} else {
				freeCount++
			}
			vi++
		} else {
			status.LastChanged = m.createdAt
		}
		statuses = append(statuses, status)
	}
	return &Snapshot{
		At:            at,
		FrameID:       frameID,
		Detector:      m.analyzer.name(),
		Zones:         statuses,
		TotalZones:    len(m.zones),
		OccupiedCount: occupiedCount,
		FreeCount:     freeCount,
		Ranked:        RankAvailable(statuses, m.entrance),
	}
}

func (m *Monitor) publish(snapshot *Snapshot, jpg []byte) {
	m.currentLock.Lock()
	m.current = snapshot
	if jpg != nil {
		m.currentJPEG = jpg
	}
	m.currentLock.Unlock()
}

func (m *Monitor) annotationWanted() bool {
	if m.annot == nil {
		return false
	}
	return time.Now().UnixNano()-m.lastFrameDemand.Load() < int64(annotateDemandWindow)
}

// recordSample hands an occupancy sample to the sink on the first frame after
// each hour boundary.
func (m *Monitor) recordSample(snapshot *Snapshot) {
	if m.sink == nil {
		return
	}
	hour := snapshot.At.Truncate(time.Hour)
	if hour.After(m.lastSample) {
		m.lastSample = hour
		m.sink.RecordSample(snapshot.At, snapshot.OccupiedCount, snapshot.FreeCount, snapshot.OccupiedCount+snapshot.FreeCount)
	}
}

// sleepInterruptible sleeps for d, returning early if the monitor is stopping.
func (m *Monitor) sleepInterruptible(d time.Duration) {
	select {
	case <-m.ctx.Done():
	case <-time.After(d):
	}
}

func (m *Monitor) dumpStats() {
	m.log.Infof("Processed %v frames. Average read %v, detect %v, track %v, annotate %v, encode %v",
		m.frameCount, m.stats.read.Average(), m.stats.detect.Average(), m.stats.track.Average(),
		m.stats.annotate.Average(), m.stats.encode.Average())
	m.stats.reset()
}
