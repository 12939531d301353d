package protocol

import (
	"encoding/json"
	"fmt"
)

// envelope is the self-describing wire form of every message.
type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes a message into its envelope bytes.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	data, err := json.Marshal(envelope{Kind: msg.Kind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return data, nil
}

// Decode parses envelope bytes back into a concrete message. An unknown kind
// is a protocol violation.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}

	msg, err := newMessage(env.Kind)
	if err != nil {
		return nil, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrDeserializationFailed, env.Kind, err)
		}
	}
	return deref(msg), nil
}

func newMessage(kind Kind) (Message, error) {
	switch kind {
	case KindElection:
		return &Election{}, nil
	case KindAlive:
		return &Alive{}, nil
	case KindCoordinator:
		return &Coordinator{}, nil
	case KindHeartbeat:
		return &Heartbeat{}, nil
	case KindLeaderQuery:
		return &LeaderQuery{}, nil
	case KindLeaderResponse:
		return &LeaderResponse{}, nil
	case KindAssignRequest:
		return &AssignRequest{}, nil
	case KindAssignResponse:
		return &AssignResponse{}, nil
	case KindTaskRequest:
		return &TaskRequest{}, nil
	case KindTaskResponse:
		return &TaskResponse{}, nil
	case KindTaskAck:
		return &TaskAck{}, nil
	case KindTaskStatusQuery:
		return &TaskStatusQuery{}, nil
	case KindTaskStatusResponse:
		return &TaskStatusResponse{}, nil
	case KindHistoryAdd:
		return &HistoryAdd{}, nil
	case KindHistoryRemove:
		return &HistoryRemove{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrProtocolViolation, kind)
	}
}

// deref returns the value form so type switches on Message see value types.
func deref(msg Message) Message {
	switch m := msg.(type) {
	case *Election:
		return *m
	case *Alive:
		return *m
	case *Coordinator:
		return *m
	case *Heartbeat:
		return *m
	case *LeaderQuery:
		return *m
	case *LeaderResponse:
		return *m
	case *AssignRequest:
		return *m
	case *AssignResponse:
		return *m
	case *TaskRequest:
		return *m
	case *TaskResponse:
		return *m
	case *TaskAck:
		return *m
	case *TaskStatusQuery:
		return *m
	case *TaskStatusResponse:
		return *m
	case *HistoryAdd:
		return *m
	case *HistoryRemove:
		return *m
	default:
		return msg
	}
}
