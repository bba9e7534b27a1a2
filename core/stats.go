package core

import (
	"encoding/json"
	"fmt"

	"github.com/stokehttp/stoker/core/pools"
)

// ServerStats is a point-in-time snapshot of the serving machinery.
type ServerStats struct {
	Listening           bool                  `json:"listening"`
	ConnectionsAccepted uint64                `json:"connections_accepted"`
	ConnectionsOpen     int                   `json:"connections_open"`
	RequestsServed      uint64                `json:"requests_served"`
	Workers             pools.WorkerPoolStats `json:"workers"`
	Runtime             pools.GCStats         `json:"runtime"`
}

// Stats returns a snapshot of server, pool, and runtime counters.
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	open := len(s.conns)
	s.mu.Unlock()

	return ServerStats{
		Listening:           s.started.Load(),
		ConnectionsAccepted: s.stats.accepted.Load(),
		ConnectionsOpen:     open,
		RequestsServed:      s.stats.served.Load(),
		Workers:             s.pool.Stats(),
		Runtime:             pools.GetGCStats(),
	}
}

// StatsJSON returns the snapshot as indented JSON.
func (s *Server) StatsJSON() string {
	data, _ := json.MarshalIndent(s.Stats(), "", "  ")
	return string(data)
}

// StatsText returns the snapshot as human-readable text.
func (s *Server) StatsText() string {
	st := s.Stats()
	return fmt.Sprintf(`Server Statistics
=================

Connections:
  Accepted: %d
  Open:     %d

Requests:
  Served:   %d

Workers:
  Live:      %d
  Busy:      %d
  Queue:     %d
  Submitted: %d
  Completed: %d
  Spawned:   %d
  Retired:   %d
`,
		st.ConnectionsAccepted, st.ConnectionsOpen,
		st.RequestsServed,
		st.Workers.LiveWorkers, st.Workers.BusyWorkers, st.Workers.QueueDepth,
		st.Workers.TasksSubmitted, st.Workers.TasksCompleted,
		st.Workers.Spawned, st.Workers.Retired,
	)
}
