package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/useframi1/CloudP2P/internal/core/config"
	"github.com/useframi1/CloudP2P/internal/core/metrics"
	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/core/protocol"
)

// TransformFunc is the external payload transform invoked by the task
// executor. It must be pure, deterministic and CPU-bound.
type TransformFunc func(payload []byte, parameterText string) ([]byte, error)

// Server is one node of the coordination cluster. All coordination state
// lives here; subsystems share it through reader-writer-guarded fields and
// never own one another.
type Server struct {
	cfg       *config.ServerConfig
	log       log.Log
	sensor    *metrics.Sensor
	transform TransformFunc

	// Immutable routing tables built from configuration.
	links    map[uint32]*peerLink
	addrByID map[uint32]string

	leader  leaderState
	peers   *peerTable
	history *History

	// Election engine state. seq stamps each election so stale timers are
	// ignored.
	electionMu    sync.Mutex
	state         electionState
	aliveReceived bool
	electionSeq   uint64

	// transformSlots is the blocking pool bound for concurrent transforms.
	transformSlots *semaphore.Weighted

	// initialDelay precedes the startup election; randomized so peers do not
	// all fire at once.
	initialDelay time.Duration
}

// NewServer assembles a server from its configuration, logger, load sensor
// and payload transform.
func NewServer(cfg *config.ServerConfig, logger log.Log, sensor *metrics.Sensor, transform TransformFunc) *Server {
	serverLog := logger.With(log.NodeID(cfg.Server.ID))

	links := make(map[uint32]*peerLink, len(cfg.Peers))
	addrByID := map[uint32]string{cfg.Server.ID: cfg.Server.Address}
	for _, peer := range cfg.Peers {
		links[peer.ID] = newPeerLink(peer.ID, peer.Address, serverLog)
		addrByID[peer.ID] = peer.Address
	}

	return &Server{
		cfg:            cfg,
		log:            serverLog,
		sensor:         sensor,
		transform:      transform,
		links:          links,
		addrByID:       addrByID,
		peers:          newPeerTable(),
		history:        NewHistory(),
		state:          stateIdle,
		transformSlots: semaphore.NewWeighted(cfg.Executor.MaxConcurrentTransforms),
		initialDelay:   3*time.Second + time.Duration(100+rand.Intn(400))*time.Millisecond,
	}
}

// Leader returns this server's current belief about the coordinator.
func (s *Server) Leader() (uint32, bool) {
	return s.leader.get()
}

// Run starts every subsystem and blocks until the context is cancelled or the
// listener fails. Bind failure is fatal and returned to the caller.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Server.Address, err)
	}

	s.log.Info("server listening", log.String("address", s.cfg.Server.Address))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { return s.acceptLoop(ctx, listener) })
	group.Go(func() error { s.heartbeatLoop(ctx); return nil })
	group.Go(func() error { s.monitorLoop(ctx); return nil })
	group.Go(func() error { s.startupElection(ctx); return nil })
	for _, link := range s.links {
		link := link
		group.Go(func() error { s.runPeerLink(ctx, link); return nil })
	}

	<-ctx.Done()
	_ = listener.Close()
	return group.Wait()
}

// acceptLoop takes inbound connections from peers and clients and hands each
// one to a read-dispatch goroutine.
func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		raw, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		conn := protocol.NewConn(raw)
		s.log.Debug("accepted connection",
			log.String("conn", conn.ID()),
			log.String("remote", raw.RemoteAddr().String()))
		go s.readLoop(ctx, conn)
	}
}

// readLoop reads messages from one connection and dispatches them until the
// connection closes or violates the protocol. Transport errors are recovered
// by closing this connection only.
func (s *Server) readLoop(ctx context.Context, conn *protocol.Conn) {
	defer conn.Close()

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.log.Debug("connection closed", log.String("conn", conn.ID()))
			case errors.Is(err, protocol.ErrFrameTooLarge),
				errors.Is(err, protocol.ErrProtocolViolation),
				errors.Is(err, protocol.ErrDeserializationFailed):
				s.log.Warn("protocol violation, closing connection",
					log.String("conn", conn.ID()), log.Error(err))
			case ctx.Err() == nil:
				s.log.Debug("connection read failed",
					log.String("conn", conn.ID()), log.Error(err))
			}
			return
		}

		s.dispatch(ctx, msg, conn)

		if ctx.Err() != nil {
			return
		}
	}
}

// dispatch routes one inbound message. The switch is the single entry point
// for every variant the server handles; responses go out on the same
// connection the request arrived on.
func (s *Server) dispatch(ctx context.Context, msg protocol.Message, conn *protocol.Conn) {
	switch m := msg.(type) {
	case protocol.Election:
		s.handleElection(m)
	case protocol.Alive:
		s.handleAlive(m)
	case protocol.Coordinator:
		s.handleCoordinator(m)
	case protocol.Heartbeat:
		s.handleHeartbeat(m)
	case protocol.LeaderQuery:
		s.handleLeaderQuery(conn)
	case protocol.AssignRequest:
		s.handleAssignRequest(m, conn)
	case protocol.TaskRequest:
		s.handleTaskRequest(ctx, m, conn)
	case protocol.TaskAck:
		// A stray or duplicate ack; the executor that cared has already
		// consumed its own.
	case protocol.TaskStatusQuery:
		s.handleStatusQuery(m, conn)
	case protocol.HistoryAdd:
		s.applyHistoryAdd(m)
	case protocol.HistoryRemove:
		s.applyHistoryRemove(m)
	default:
		s.log.Debug("ignoring unexpected message",
			log.String("kind", string(msg.Kind())), log.String("conn", conn.ID()))
	}
}

// handleLeaderQuery answers inline when a leader is known; the connection
// stays open for further messages.
func (s *Server) handleLeaderQuery(conn *protocol.Conn) {
	if id, ok := s.leader.get(); ok {
		if err := conn.WriteMessage(protocol.LeaderResponse{LeaderID: id}); err != nil {
			s.log.Debug("leader response failed", log.Error(err))
		}
	}
}

// applyHistoryAdd replicates a coordinator's assignment record locally.
func (s *Server) applyHistoryAdd(m protocol.HistoryAdd) {
	s.history.Add(
		HistoryKey{ClientID: m.ClientID, RequestID: m.RequestID},
		HistoryEntry{AssignedServerID: m.AssignedServerID, Timestamp: m.Timestamp},
	)
	s.log.Debug("history entry added",
		log.String("client", m.ClientID),
		log.Uint64("request", m.RequestID),
		log.Uint32("assigned", m.AssignedServerID))
}

// applyHistoryRemove retires a completed task locally.
func (s *Server) applyHistoryRemove(m protocol.HistoryRemove) {
	s.history.Remove(HistoryKey{ClientID: m.ClientID, RequestID: m.RequestID})
	s.log.Debug("history entry removed",
		log.String("client", m.ClientID),
		log.Uint64("request", m.RequestID))
}
