package cluster

import (
	"context"
	"time"

	"github.com/useframi1/CloudP2P/internal/core/metrics"
	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/core/protocol"
)

// heartbeatLoop broadcasts this server's liveness and current load to every
// peer at the configured interval.
func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Election.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load := s.sensor.Priority()
			s.broadcast(protocol.Heartbeat{
				FromID:    s.cfg.Server.ID,
				Timestamp: metrics.Timestamp(),
				Load:      load,
			})
			s.log.Debug("heartbeat sent", log.Float64("load", load))
		}
	}
}

// handleHeartbeat refreshes the sender's liveness row. The receiver's clock
// is authoritative; the message timestamp is observability-only, so a peer
// with a skewed clock still stays live. A peer silent long enough to have
// been dropped re-enters here with no handshake.
func (s *Server) handleHeartbeat(m protocol.Heartbeat) {
	s.peers.observe(m.FromID, m.Load, time.Now())
}

// monitorLoop is the failure detector: every monitor interval it declares
// failed any peer whose last heartbeat is older than the failure timeout.
// Declaration drops the peer from the liveness table, purges its orphaned
// history entries, and triggers an election when the failed peer was the
// leader.
func (s *Server) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Election.MonitorInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepFailedPeers()
		}
	}
}

func (s *Server) sweepFailedPeers() {
	failed := s.peers.expired(time.Now(), s.cfg.Election.FailureTimeout())

	for _, peerID := range failed {
		s.log.Warn("peer declared failed",
			log.Uint32("peer", peerID),
			log.Duration("timeout", s.cfg.Election.FailureTimeout()))

		s.peers.drop(peerID)

		if purged := s.history.PurgeAssignee(peerID); purged > 0 {
			s.log.Warn("purged orphaned tasks of failed peer",
				log.Uint32("peer", peerID),
				log.Int("purged", purged))
		}

		if s.leader.is(peerID) {
			s.onLeaderLost()
		}
	}
}
