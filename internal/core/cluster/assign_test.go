package cluster

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/useframi1/CloudP2P/internal/core/protocol"
)

// pipeToServer returns a server-side conn plus the client end to observe
// replies on.
func pipeToServer(t *testing.T) (*protocol.Conn, *protocol.Conn) {
	t.Helper()
	clientRaw, serverRaw := net.Pipe()
	client, server := protocol.NewConn(clientRaw), protocol.NewConn(serverRaw)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return server, client
}

// expectSilence asserts no message arrives on the connection within the
// window.
func expectSilence(t *testing.T, conn *protocol.Conn, window time.Duration) {
	t.Helper()
	_, err := conn.ReadMessageDeadline(time.Now().Add(window))
	require.Error(t, err, "expected silence, got a reply")
}

func TestChooseAssignee_PicksLeastLoaded(t *testing.T) {
	s := bareServer(t, 2, newStubProbe(36, 100)) // own priority 18
	now := time.Now()
	s.peers.observe(1, 25, now)
	s.peers.observe(3, 12, now)

	assignee, load := s.chooseAssignee()
	assert.Equal(t, uint32(3), assignee)
	assert.Equal(t, 12.0, load)
}

func TestChooseAssignee_SelfWhenLeastLoaded(t *testing.T) {
	s := bareServer(t, 2, newStubProbe(36, 100))
	s.peers.observe(1, 25, time.Now())
	s.peers.observe(3, 42, time.Now())

	assignee, _ := s.chooseAssignee()
	assert.Equal(t, uint32(2), assignee)
}

func TestChooseAssignee_TieGoesToSelf(t *testing.T) {
	s := bareServer(t, 2, newStubProbe(36, 100)) // own priority 18
	s.peers.observe(1, 18, time.Now())

	assignee, _ := s.chooseAssignee()
	assert.Equal(t, uint32(2), assignee)
}

func TestHandleAssignRequest_NonLeaderStaysSilent(t *testing.T) {
	s := bareServer(t, 1, newStubProbe(20, 100))
	s.leader.set(2) // someone else leads

	serverConn, clientConn := pipeToServer(t)
	go s.handleAssignRequest(protocol.AssignRequest{ClientID: "Client1", RequestID: 1}, serverConn)

	expectSilence(t, clientConn, 300*time.Millisecond)
	assert.Zero(t, s.history.Len())
}

func TestHandleAssignRequest_LeaderAssignsAndRecords(t *testing.T) {
	s := bareServer(t, 2, newStubProbe(36, 100))
	s.leader.set(2)
	s.peers.observe(1, 55, time.Now())
	s.peers.observe(3, 60, time.Now())

	serverConn, clientConn := pipeToServer(t)
	go s.handleAssignRequest(protocol.AssignRequest{ClientID: "Client1", RequestID: 9}, serverConn)

	msg, err := clientConn.ReadMessageDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	resp, ok := msg.(protocol.AssignResponse)
	require.True(t, ok)
	assert.Equal(t, uint64(9), resp.RequestID)
	assert.Equal(t, uint32(2), resp.AssignedServerID)
	assert.Equal(t, s.cfg.Server.Address, resp.AssignedServerAddress)

	entry, ok := s.history.Get(HistoryKey{ClientID: "Client1", RequestID: 9})
	require.True(t, ok)
	assert.Equal(t, uint32(2), entry.AssignedServerID)

	// The assignment is replicated to every peer.
	for _, peerID := range []uint32{1, 3} {
		assert.Contains(t, drainKinds(s.links[peerID]), protocol.KindHistoryAdd)
	}
}

func TestHandleStatusQuery_RepliesFromHistory(t *testing.T) {
	s := bareServer(t, 1, newStubProbe(20, 100))
	s.history.Add(
		HistoryKey{ClientID: "Client1", RequestID: 4},
		HistoryEntry{AssignedServerID: 3, Timestamp: 1},
	)

	serverConn, clientConn := pipeToServer(t)
	go s.handleStatusQuery(protocol.TaskStatusQuery{ClientID: "Client1", RequestID: 4}, serverConn)

	msg, err := clientConn.ReadMessageDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	resp, ok := msg.(protocol.TaskStatusResponse)
	require.True(t, ok)
	assert.Equal(t, uint32(3), resp.AssignedServerID)
	assert.Equal(t, s.addrByID[3], resp.AssignedServerAddress)
}

func TestHandleStatusQuery_UnknownTaskStaysSilent(t *testing.T) {
	s := bareServer(t, 1, newStubProbe(20, 100))

	serverConn, clientConn := pipeToServer(t)
	go s.handleStatusQuery(protocol.TaskStatusQuery{ClientID: "Client1", RequestID: 99}, serverConn)

	expectSilence(t, clientConn, 300*time.Millisecond)
}
