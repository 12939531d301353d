package cluster

import (
	"context"
	"time"

	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/core/protocol"
)

const (
	// sendQueueDepth bounds each peer's outbound queue. Overflow drops the
	// oldest queued message so one slow peer cannot stall the coordinator.
	sendQueueDepth = 100

	dialTimeout    = 2 * time.Second
	reconnectDelay = 2 * time.Second
)

// peerLink is the outbound half of one peer relationship: a bounded send
// queue drained to the wire by a supervisor goroutine that redials forever.
// Delivery is best-effort; messages in flight when the link tears down are
// lost and recovered by the protocols above (heartbeats repeat, elections
// restart, orphaned history is purged).
type peerLink struct {
	id    uint32
	addr  string
	queue chan protocol.Message
	log   log.Log
}

func newPeerLink(id uint32, addr string, logger log.Log) *peerLink {
	return &peerLink{
		id:    id,
		addr:  addr,
		queue: make(chan protocol.Message, sendQueueDepth),
		log:   logger.With(log.Uint32("peer", id)),
	}
}

// enqueue queues a message for delivery without blocking. When the queue is
// full the oldest pending message is dropped to make room.
func (l *peerLink) enqueue(msg protocol.Message) {
	for {
		select {
		case l.queue <- msg:
			return
		default:
		}
		select {
		case dropped := <-l.queue:
			l.log.Warn("send queue full, dropping oldest message",
				log.String("kind", string(dropped.Kind())))
		default:
		}
	}
}

// runPeerLink is the link supervisor: dial, drain the queue onto the connection, and
// on any error tear down and retry after a bounded interval, forever.
func (s *Server) runPeerLink(ctx context.Context, link *peerLink) {
	for {
		conn, err := protocol.Dial(link.addr, dialTimeout)
		if err == nil {
			link.log.Info("connected to peer", log.String("conn", conn.ID()))
			s.drainPeerQueue(ctx, link, conn)
			_ = conn.Close()
			link.log.Warn("lost connection to peer")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// drainPeerQueue writes queued messages to the connection until a write
// fails or the server stops. Messages arriving on the connection (a peer may
// answer on either side of a duplex link) are dispatched like inbound ones.
func (s *Server) drainPeerQueue(ctx context.Context, link *peerLink, conn *protocol.Conn) {
	go s.readLoop(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-link.queue:
			if err := conn.WriteMessage(msg); err != nil {
				link.log.Debug("peer write failed", log.Error(err))
				return
			}
		}
	}
}

// broadcast queues a message for every configured peer, connected or not.
func (s *Server) broadcast(msg protocol.Message) {
	for _, link := range s.links {
		link.enqueue(msg)
	}
}

// sendToPeer queues a message for one peer. Unknown ids are dropped silently.
func (s *Server) sendToPeer(id uint32, msg protocol.Message) {
	if link, ok := s.links[id]; ok {
		link.enqueue(msg)
	}
}
