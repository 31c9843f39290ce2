package historydb

import (
	"time"

	"github.com/cyclopcam/dbh"
)

// RecordEvent buffers a zone transition for writing. It never blocks, so the
// monitor can call it from the frame loop.
func (h *HistoryDB) RecordEvent(zid int64, occupied bool, at time.Time) {
	h.bufferLock.Lock()
	defer h.bufferLock.Unlock()
	if len(h.pendingEvents) >= maxPending {
		h.warnDrop()
		return
	}
	h.pendingEvents = append(h.pendingEvents, Event{
		ZID:      zid,
		Occupied: occupied,
		At:       dbh.MakeIntTime(at),
	})
	if len(h.pendingEvents) >= flushThreshold {
		h.wakeWriter()
	}
}

// RecordSample buffers an hourly occupancy sample. It never blocks.
func (h *HistoryDB) RecordSample(at time.Time, occupied, free, totalValid int) {
	h.bufferLock.Lock()
	defer h.bufferLock.Unlock()
	if len(h.pendingSamples) >= maxPending {
		h.warnDrop()
		return
	}
	h.pendingSamples = append(h.pendingSamples, Sample{
		At:            dbh.MakeIntTime(at),
		OccupiedCount: occupied,
		FreeCount:     free,
		TotalValid:    totalValid,
	})
}

// You must be holding bufferLock before calling warnDrop.
func (h *HistoryDB) warnDrop() {
	if time.Now().Sub(h.lastDropWarn) > dropWarnThrottle {
		h.log.Warnf("History write buffer is full. Dropping records.")
		h.lastDropWarn = time.Now()
	}
}

func (h *HistoryDB) wakeWriter() {
	select {
	case h.wake <- true:
	default:
	}
}

// flush writes all buffered records to the DB.
func (h *HistoryDB) flush() {
	h.bufferLock.Lock()
	events := h.pendingEvents
	samples := h.pendingSamples
	h.pendingEvents = nil
	h.pendingSamples = nil
	h.bufferLock.Unlock()

	if len(events) != 0 {
		if err := h.db.CreateInBatches(events, createInBatchSize).Error; err != nil {
			h.log.Errorf("Failed to write %v events to history DB: %v", len(events), err)
		}
	}
	if len(samples) != 0 {
		if err := h.db.CreateInBatches(samples, createInBatchSize).Error; err != nil {
			h.log.Errorf("Failed to write %v samples to history DB: %v", len(samples), err)
		}
	}
}
