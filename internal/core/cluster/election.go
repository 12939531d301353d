package cluster

import (
	"context"
	"time"

	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/core/protocol"
)

// reElectionStagger delays the counter-election a better-placed server starts
// after answering Alive, so its Election lands after the loser has processed
// the response.
const reElectionStagger = 100 * time.Millisecond

// startupElection waits the randomized initial delay and fires the first
// election of this server's life.
func (s *Server) startupElection(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}
	s.log.Info("initial election timer expired")
	s.beginElection()
}

// beginElection starts a new election round: clear the alive flag, broadcast
// our priority to every peer (connected or not), and arm the election timer.
// The sequence number stamps the round so a timer from a superseded round is
// ignored.
func (s *Server) beginElection() {
	priority := s.sensor.Priority()

	s.electionMu.Lock()
	s.state = stateElecting
	s.aliveReceived = false
	s.electionSeq++
	seq := s.electionSeq
	s.electionMu.Unlock()

	s.log.Info("initiating election",
		log.Float64("priority", priority),
		log.Float64("cpu", s.sensor.CPUPercent()),
		log.Int("active_tasks", int(s.sensor.ActiveTasks())))

	s.broadcast(protocol.Election{FromID: s.cfg.Server.ID, Priority: priority})

	time.AfterFunc(s.cfg.Election.ElectionTimeout(), func() {
		s.electionTimerFired(seq, priority)
	})
}

// electionTimerFired concludes the round it was armed for. No alive response
// means this server had the best priority of everyone who heard the
// broadcast: take leadership and announce it. Otherwise step back and await
// the winner's Coordinator message.
func (s *Server) electionTimerFired(seq uint64, priority float64) {
	s.electionMu.Lock()
	if s.electionSeq != seq || s.state != stateElecting {
		s.electionMu.Unlock()
		return
	}
	won := !s.aliveReceived
	if won {
		s.state = stateLeader
	} else {
		s.state = stateIdle
	}
	s.electionMu.Unlock()

	if !won {
		s.log.Info("election lost, awaiting coordinator")
		return
	}

	s.leader.set(s.cfg.Server.ID)
	s.log.Info("election won, announcing coordinator", log.Float64("priority", priority))
	s.broadcast(protocol.Coordinator{LeaderID: s.cfg.Server.ID})
}

// handleElection answers a peer's election. A strictly better own priority
// sends Alive back and schedules a counter-election; otherwise the peer's
// claim stands and this server stays quiet. Equal priorities defer, leaving
// the outcome to whichever election timer fires first.
func (s *Server) handleElection(m protocol.Election) {
	myPriority := s.sensor.Priority()

	if myPriority < m.Priority {
		s.log.Info("better priority than election initiator, responding alive",
			log.Uint32("from", m.FromID),
			log.Float64("own", myPriority),
			log.Float64("theirs", m.Priority))

		s.sendToPeer(m.FromID, protocol.Alive{FromID: s.cfg.Server.ID})
		time.AfterFunc(reElectionStagger, s.beginElection)
		return
	}

	s.log.Debug("deferring to election initiator",
		log.Uint32("from", m.FromID),
		log.Float64("own", myPriority),
		log.Float64("theirs", m.Priority))
}

// handleAlive records that a better-placed server answered the in-flight
// election. The round still concludes on the timer.
func (s *Server) handleAlive(m protocol.Alive) {
	s.electionMu.Lock()
	defer s.electionMu.Unlock()
	if s.state == stateElecting {
		s.aliveReceived = true
		s.log.Info("alive received, election lost", log.Uint32("from", m.FromID))
	}
}

// handleCoordinator accepts the announced winner unconditionally: a
// Coordinator broadcast may overtake a concurrent Election on another
// connection, and the Coordinator wins.
func (s *Server) handleCoordinator(m protocol.Coordinator) {
	s.leader.set(m.LeaderID)

	s.electionMu.Lock()
	if m.LeaderID == s.cfg.Server.ID {
		s.state = stateLeader
	} else {
		s.state = stateFollower
	}
	s.electionMu.Unlock()

	s.log.Info("coordinator acknowledged", log.Uint32("leader", m.LeaderID))
}

// onLeaderLost reacts to the failure detector declaring the leader failed.
func (s *Server) onLeaderLost() {
	s.leader.clear()
	s.log.Warn("leader lost, starting election")
	s.beginElection()
}
