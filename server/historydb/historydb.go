// Package historydb stores the parking record: every zone transition, plus an
// occupancy sample taken once an hour. Writes are buffered in memory and
// flushed by a background thread, so the monitor's frame loop never waits on
// SQLite. Old records are pruned once a day.
package historydb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// DefaultRetention is how long events and samples are kept when NewHistoryDB
// is given a zero retention.
const DefaultRetention = 90 * 24 * time.Hour

const (
	flushInterval  = 2 * time.Second
	flushThreshold = 256

	// Hard cap on buffered records. If the writer can't keep up (eg the disk
	// has died), we drop instead of growing without bound.
	maxPending = 10000

	pruneInterval     = 24 * time.Hour
	firstPruneDelay   = time.Minute
	dropWarnThrottle  = 15 * time.Second
	createInBatchSize = 64
)

type HistoryDB struct {
	log       logs.Log
	db        *gorm.DB
	retention time.Duration

	shutdown          chan bool // Closed when it's time to shut down
	wake              chan bool // Nudges the write thread when the buffer is getting full
	writeThreadClosed chan bool // The write thread closes this channel when it exits
	pruneThreadClosed chan bool // The prune thread closes this channel when it exits

	bufferLock     sync.Mutex
	pendingEvents  []Event
	pendingSamples []Sample
	lastDropWarn   time.Time
}

// NewHistoryDB opens or creates a history DB.
// retention = 0 means DefaultRetention.
func NewHistoryDB(logger logs.Log, dbFilename string, retention time.Duration) (*HistoryDB, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	os.MkdirAll(filepath.Dir(dbFilename), 0770)
	logger.Infof("Opening history DB at '%v'", dbFilename)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open history database %v: %w", dbFilename, err)
	}
	h := &HistoryDB{
		log:               logger,
		db:                db,
		retention:         retention,
		shutdown:          make(chan bool),
		wake:              make(chan bool, 1),
		writeThreadClosed: make(chan bool),
		pruneThreadClosed: make(chan bool),
	}
	go h.writeThread()
	go h.pruneThread()
	return h, nil
}

// Close flushes buffered records and stops the background threads.
func (h *HistoryDB) Close() {
	close(h.shutdown)
	h.log.Infof("Waiting for history write thread to exit")
	<-h.writeThreadClosed
	<-h.pruneThreadClosed
	h.log.Infof("History DB is closed")
}

func (h *HistoryDB) writeThread() {
	h.log.Infof("History write thread starting")
	keepRunning := true
	for keepRunning {
		select {
		case <-h.shutdown:
			keepRunning = false
		case <-h.wake:
			h.flush()
		case <-time.After(flushInterval):
			h.flush()
		}
	}
	h.log.Infof("Flushing history")
	h.flush()
	h.log.Infof("History write thread exiting")
	close(h.writeThreadClosed)
}

func (h *HistoryDB) pruneThread() {
	// The first prune runs shortly after startup, in case the system has been
	// off for longer than the retention window.
	wait := firstPruneDelay
	keepRunning := true
	for keepRunning {
		select {
		case <-h.shutdown:
			keepRunning = false
		case <-time.After(wait):
			h.prune()
			wait = pruneInterval
		}
	}
	close(h.pruneThreadClosed)
}

func (h *HistoryDB) prune() {
	nEvents, nSamples, err := h.PruneBefore(time.Now().Add(-h.retention))
	if err != nil {
		h.log.Errorf("History prune failed: %v", err)
		return
	}
	if nEvents != 0 || nSamples != 0 {
		h.log.Infof("Pruned %v events and %v samples from history", nEvents, nSamples)
	}
}

// PruneBefore deletes all events and samples older than cutoff, and returns
// how many of each were deleted.
func (h *HistoryDB) PruneBefore(cutoff time.Time) (int64, int64, error) {
	events := h.db.Where("at < ?", cutoff.UnixMilli()).Delete(&Event{})
	if events.Error != nil {
		return 0, 0, events.Error
	}
	samples := h.db.Where("at < ?", cutoff.UnixMilli()).Delete(&Sample{})
	if samples.Error != nil {
		return events.RowsAffected, 0, samples.Error
	}
	return events.RowsAffected, samples.RowsAffected, nil
}
