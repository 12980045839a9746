package server

import (
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/posecam/pkg/monitor"
	"github.com/gorilla/websocket"
)

// resultStreamer sends monitor results to a websocket client
type resultStreamer struct {
	log           logs.Log
	monitor       *monitor.Monitor
	fromWebSocket chan bool
	nSent         int64
	lastLogTime   time.Time
}

const resultWriteTimeout = 5 * time.Second

func newResultStreamer(log logs.Log, m *monitor.Monitor) *resultStreamer {
	return &resultStreamer{
		log:           log,
		monitor:       m,
		fromWebSocket: make(chan bool, 1),
	}
}

// Run until the client goes away
func (s *resultStreamer) Run(conn *websocket.Conn) {
	defer conn.Close()
	results := s.monitor.AddWatcher()
	defer s.monitor.RemoveWatcher(results)

	go s.webSocketReader(conn)

	for {
		select {
		case result := <-results:
			conn.SetWriteDeadline(time.Now().Add(resultWriteTimeout))
			if err := conn.WriteJSON(result); err != nil {
				s.log.Infof("Error writing to result websocket: %v", err)
				return
			}
			s.nSent++
			if now := time.Now(); now.Sub(s.lastLogTime) > 30*time.Second {
				s.log.Infof("Sent %v results to websocket", s.nSent)
				s.lastLogTime = now
			}
		case <-s.fromWebSocket:
			return
		}
	}
}

// We don't expect anything from the client, but we need to read in order to notice a close
func (s *resultStreamer) webSocketReader(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.fromWebSocket <- true
}
