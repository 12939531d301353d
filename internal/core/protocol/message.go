// Package protocol defines the message set spoken between CloudP2P nodes and
// the length-prefixed framing that carries it.
//
// Every message is one variant of a tagged union. The wire form is a JSON
// envelope {"kind": ..., "payload": ...} preceded by a 4-byte big-endian
// length, identical on every node.
package protocol

// Kind names a message variant on the wire.
type Kind string

const (
	KindElection           Kind = "election"
	KindAlive              Kind = "alive"
	KindCoordinator        Kind = "coordinator"
	KindHeartbeat          Kind = "heartbeat"
	KindLeaderQuery        Kind = "leader_query"
	KindLeaderResponse     Kind = "leader_response"
	KindAssignRequest      Kind = "assign_request"
	KindAssignResponse     Kind = "assign_response"
	KindTaskRequest        Kind = "task_request"
	KindTaskResponse       Kind = "task_response"
	KindTaskAck            Kind = "task_ack"
	KindTaskStatusQuery    Kind = "task_status_query"
	KindTaskStatusResponse Kind = "task_status_response"
	KindHistoryAdd         Kind = "history_add"
	KindHistoryRemove      Kind = "history_remove"
)

// Message is implemented by every protocol variant.
type Message interface {
	Kind() Kind
}

// Election starts a leader election. Priority is the sender's load score;
// lower means a better candidate.
type Election struct {
	FromID   uint32  `json:"from_id"`
	Priority float64 `json:"priority"`
}

// Alive answers an Election when the responder has a strictly better priority.
type Alive struct {
	FromID uint32 `json:"from_id"`
}

// Coordinator announces the election winner to the whole cluster.
type Coordinator struct {
	LeaderID uint32 `json:"leader_id"`
}

// Heartbeat is the periodic liveness and load report between servers. The
// timestamp is carried for observability only; receivers keep their own clock.
type Heartbeat struct {
	FromID    uint32  `json:"from_id"`
	Timestamp uint64  `json:"timestamp"`
	Load      float64 `json:"load"`
}

// LeaderQuery asks any server who the current leader is.
type LeaderQuery struct{}

// LeaderResponse answers a LeaderQuery.
type LeaderResponse struct {
	LeaderID uint32 `json:"leader_id"`
}

// AssignRequest asks the coordinator to pick a server for a task. Clients
// broadcast it to every known server; only the coordinator replies.
type AssignRequest struct {
	ClientID  string `json:"client_id"`
	RequestID uint64 `json:"request_id"`
}

// AssignResponse names the server a task was routed to.
type AssignResponse struct {
	RequestID             uint64 `json:"request_id"`
	AssignedServerID      uint32 `json:"assigned_server_id"`
	AssignedServerAddress string `json:"assigned_server_address"`
}

// TaskRequest carries the task payload to its assigned server.
type TaskRequest struct {
	ClientID         string `json:"client_id"`
	RequestID        uint64 `json:"request_id"`
	PayloadBytes     []byte `json:"payload_bytes"`
	PayloadName      string `json:"payload_name"`
	ParameterText    string `json:"parameter_text"`
	AssignedByLeader uint32 `json:"assigned_by_leader"`
}

// TaskResponse returns the transform result, or the failure message when OK is
// false.
type TaskResponse struct {
	RequestID    uint64 `json:"request_id"`
	ResultBytes  []byte `json:"result_bytes"`
	OK           bool   `json:"ok"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TaskAck confirms the client received and verified a TaskResponse.
type TaskAck struct {
	ClientID  string `json:"client_id"`
	RequestID uint64 `json:"request_id"`
}

// TaskStatusQuery asks any server where a task is currently assigned.
type TaskStatusQuery struct {
	ClientID  string `json:"client_id"`
	RequestID uint64 `json:"request_id"`
}

// TaskStatusResponse answers a TaskStatusQuery from the replicated history.
type TaskStatusResponse struct {
	RequestID             uint64 `json:"request_id"`
	AssignedServerID      uint32 `json:"assigned_server_id"`
	AssignedServerAddress string `json:"assigned_server_address"`
}

// HistoryAdd replicates one assignment record to every server.
type HistoryAdd struct {
	ClientID         string `json:"client_id"`
	RequestID        uint64 `json:"request_id"`
	AssignedServerID uint32 `json:"assigned_server_id"`
	Timestamp        uint64 `json:"timestamp"`
}

// HistoryRemove retires an assignment record after the client acknowledged the
// result.
type HistoryRemove struct {
	ClientID  string `json:"client_id"`
	RequestID uint64 `json:"request_id"`
}

func (Election) Kind() Kind           { return KindElection }
func (Alive) Kind() Kind              { return KindAlive }
func (Coordinator) Kind() Kind        { return KindCoordinator }
func (Heartbeat) Kind() Kind          { return KindHeartbeat }
func (LeaderQuery) Kind() Kind        { return KindLeaderQuery }
func (LeaderResponse) Kind() Kind     { return KindLeaderResponse }
func (AssignRequest) Kind() Kind      { return KindAssignRequest }
func (AssignResponse) Kind() Kind     { return KindAssignResponse }
func (TaskRequest) Kind() Kind        { return KindTaskRequest }
func (TaskResponse) Kind() Kind       { return KindTaskResponse }
func (TaskAck) Kind() Kind            { return KindTaskAck }
func (TaskStatusQuery) Kind() Kind    { return KindTaskStatusQuery }
func (TaskStatusResponse) Kind() Kind { return KindTaskStatusResponse }
func (HistoryAdd) Kind() Kind         { return KindHistoryAdd }
func (HistoryRemove) Kind() Kind      { return KindHistoryRemove }
