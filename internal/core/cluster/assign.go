package cluster

import (
	"github.com/useframi1/CloudP2P/internal/core/metrics"
	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/core/protocol"
)

// handleAssignRequest routes a task to the least-loaded known node. Only the
// coordinator answers; everyone else stays silent so the client's broadcast
// sees exactly one response. Replying "not the leader" would race the real
// coordinator's answer.
func (s *Server) handleAssignRequest(m protocol.AssignRequest, conn *protocol.Conn) {
	if !s.leader.is(s.cfg.Server.ID) {
		return
	}

	assignee, load := s.chooseAssignee()
	address := s.addrByID[assignee]

	s.log.Info("task assigned",
		log.String("client", m.ClientID),
		log.Uint64("request", m.RequestID),
		log.Uint32("assigned", assignee),
		log.Float64("load", load))

	timestamp := metrics.Timestamp()
	s.history.Add(
		HistoryKey{ClientID: m.ClientID, RequestID: m.RequestID},
		HistoryEntry{AssignedServerID: assignee, Timestamp: timestamp},
	)
	s.broadcast(protocol.HistoryAdd{
		ClientID:         m.ClientID,
		RequestID:        m.RequestID,
		AssignedServerID: assignee,
		Timestamp:        timestamp,
	})

	response := protocol.AssignResponse{
		RequestID:             m.RequestID,
		AssignedServerID:      assignee,
		AssignedServerAddress: address,
	}
	if err := conn.WriteMessage(response); err != nil {
		s.log.Warn("assignment response failed",
			log.Uint64("request", m.RequestID), log.Error(err))
	}
}

// chooseAssignee picks the node with the smallest load among this server's
// live priority reading and every peer's last reported load. Ties go to this
// server, and the coordinator may assign to itself.
func (s *Server) chooseAssignee() (uint32, float64) {
	best := s.cfg.Server.ID
	bestLoad := s.sensor.Priority()

	for peerID, load := range s.peers.loads() {
		if load < bestLoad {
			best = peerID
			bestLoad = load
		}
	}
	return best, bestLoad
}

// handleStatusQuery answers a client's reassignment poll from the replicated
// history. A task this server has no entry for gets no reply; the client
// accepts whichever server answers first.
func (s *Server) handleStatusQuery(m protocol.TaskStatusQuery, conn *protocol.Conn) {
	entry, ok := s.history.Get(HistoryKey{ClientID: m.ClientID, RequestID: m.RequestID})
	if !ok {
		return
	}

	address, ok := s.addrByID[entry.AssignedServerID]
	if !ok {
		s.log.Warn("history names unknown server",
			log.Uint32("assigned", entry.AssignedServerID))
		return
	}

	response := protocol.TaskStatusResponse{
		RequestID:             m.RequestID,
		AssignedServerID:      entry.AssignedServerID,
		AssignedServerAddress: address,
	}
	if err := conn.WriteMessage(response); err != nil {
		s.log.Debug("status response failed", log.Error(err))
	}
}
