package cluster

import (
	"context"
	"time"

	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/core/protocol"
)

// ackTimeout bounds the wait for the client's TaskAck after the response was
// written. Generous relative to task duration; a client that never acks
// leaves the history entry in place for reassignment.
const ackTimeout = 30 * time.Second

// handleTaskRequest runs one task: count it, transform the payload on the
// bounded blocking pool, answer on the same connection, and retire the
// history entry once the client acknowledges. The active-task counter moves
// on every exit path, so load reflects exactly the wrappers in flight.
func (s *Server) handleTaskRequest(ctx context.Context, m protocol.TaskRequest, conn *protocol.Conn) {
	s.sensor.TaskStarted()
	defer s.sensor.TaskFinished()

	s.log.Info("task received",
		log.String("client", m.ClientID),
		log.Uint64("request", m.RequestID),
		log.String("payload", m.PayloadName),
		log.Uint32("assigned_by", m.AssignedByLeader),
		log.Int("active_tasks", int(s.sensor.ActiveTasks())))

	result, err := s.runTransform(ctx, m.PayloadBytes, m.ParameterText)

	response := protocol.TaskResponse{RequestID: m.RequestID, OK: err == nil}
	if err != nil {
		s.log.Error("transform failed",
			log.Uint64("request", m.RequestID), log.Error(err))
		response.ErrorMessage = err.Error()
	} else {
		response.ResultBytes = result
	}

	if writeErr := conn.WriteMessage(response); writeErr != nil {
		s.log.Warn("task response failed",
			log.Uint64("request", m.RequestID), log.Error(writeErr))
		return
	}

	// A failed transform is surfaced to the client and the history entry
	// stays; the client will retry.
	if err != nil {
		return
	}

	s.awaitAck(m, conn)
}

// runTransform executes the CPU-bound transform under the blocking pool so
// concurrent tasks cannot starve the rest of the server.
func (s *Server) runTransform(ctx context.Context, payload []byte, parameterText string) ([]byte, error) {
	if err := s.transformSlots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.transformSlots.Release(1)
	return s.transform(payload, parameterText)
}

// awaitAck reads the client's TaskAck off the task connection. On ack the
// entry is removed locally and the removal broadcast exactly once; a
// connection that dies first leaves the entry so a future reassignment can
// still find it.
func (s *Server) awaitAck(m protocol.TaskRequest, conn *protocol.Conn) {
	deadline := time.Now().Add(ackTimeout)

	for {
		msg, err := conn.ReadMessageDeadline(deadline)
		if err != nil {
			s.log.Warn("no ack before connection ended, keeping history entry",
				log.String("client", m.ClientID),
				log.Uint64("request", m.RequestID),
				log.Error(err))
			return
		}

		ack, ok := msg.(protocol.TaskAck)
		if !ok || ack.ClientID != m.ClientID || ack.RequestID != m.RequestID {
			continue
		}

		s.history.Remove(HistoryKey{ClientID: m.ClientID, RequestID: m.RequestID})
		s.broadcast(protocol.HistoryRemove{
			ClientID:  m.ClientID,
			RequestID: m.RequestID,
		})

		s.log.Info("task completed",
			log.String("client", m.ClientID),
			log.Uint64("request", m.RequestID))
		return
	}
}
