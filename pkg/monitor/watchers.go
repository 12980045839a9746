package monitor

import "github.com/cyclopcam/posecam/pkg/gen"

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// Register to receive the result of every processed frame
func (m *Monitor) AddWatcher() chan *FrameResult {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *FrameResult, WatcherChannelSize)
	m.watchers = append(m.watchers, ch)
	return ch
}

// Unregister a channel returned by AddWatcher
func (m *Monitor) RemoveWatcher(ch chan *FrameResult) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, w := range m.watchers {
		if w == ch {
			m.watchers = gen.DeleteFromSliceUnordered(m.watchers, i)
			return
		}
	}
	m.Log.Warnf("Monitor.RemoveWatcher failed to find channel")
}

func (m *Monitor) sendToWatchers(result *FrameResult) {
	m.watchersLock.RLock()
	defer m.watchersLock.RUnlock()
	// A slow watcher must never stall the frame loop, so we drop results instead of blocking
	for _, ch := range m.watchers {
		// SYNC-WATCHER-CHANNEL-SIZE
		if len(ch) >= cap(ch)*9/10 {
			m.Log.Warnf("Monitor watcher is falling behind. Dropping frame %v", result.FrameIndex)
		} else {
			ch <- result
		}
	}
}
