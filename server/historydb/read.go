package historydb

import (
	"time"

	"github.com/lotcam/lotcam/pkg/gen"
)

// RecentEvents returns up to limit of the newest events, oldest first.
func (h *HistoryDB) RecentEvents(limit int) ([]Event, error) {
	events := []Event{}
	if err := h.db.Order("at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	gen.ReverseSlice(events)
	return events, nil
}

// EventsForZone returns up to limit of one zone's newest events, oldest first.
func (h *HistoryDB) EventsForZone(zid int64, limit int) ([]Event, error) {
	events := []Event{}
	if err := h.db.Where("zid = ?", zid).Order("at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	gen.ReverseSlice(events)
	return events, nil
}

// Samples returns the occupancy samples in [from, to), oldest first.
func (h *HistoryDB) Samples(from, to time.Time) ([]Sample, error) {
	samples := []Sample{}
	if err := h.db.Where("at >= ? AND at < ?", from.UnixMilli(), to.UnixMilli()).Order("at").Find(&samples).Error; err != nil {
		return nil, err
	}
	return samples, nil
}
