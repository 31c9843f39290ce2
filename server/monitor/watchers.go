package monitor

import "github.com/lotcam/lotcam/pkg/gen"

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// AddWatcher registers a channel that receives every ChangeEvent the tracker
// emits. The channel is buffered; a watcher that stops draining loses events
// rather than stalling the monitor.
func (m *Monitor) AddWatcher() chan ChangeEvent {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan ChangeEvent, WatcherChannelSize)
	m.watchers = append(m.watchers, ch)
	m.metrics.WatchersActive.Add(1)
	return ch
}

// RemoveWatcher unregisters a channel returned by AddWatcher.
func (m *Monitor) RemoveWatcher(ch chan ChangeEvent) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, w := range m.watchers {
		if w == ch {
			m.watchers = gen.DeleteFromSliceUnordered(m.watchers, i)
			m.metrics.WatchersActive.Add(-1)
			return
		}
	}
	m.log.Warnf("Monitor.RemoveWatcher failed to find channel")
}

func (m *Monitor) sendToWatchers(events []ChangeEvent) {
	m.watchersLock.RLock()
	for _, ch := range m.watchers {
		for _, ev := range events {
			// SYNC-WATCHER-CHANNEL-SIZE
			// One stuck watcher must not stall the frame loop, or starve the
			// other watchers, so when a channel gets close to full, we drop.
			if len(ch) >= cap(ch)*9/10 {
				m.log.Warnf("A monitor watcher is falling behind. I am going to drop events.")
				break
			}
			ch <- ev
		}
	}
	m.watchersLock.RUnlock()
}
