package protocol

import "errors"

// Core protocol errors
var (
	// Connection errors

	ErrConnectionClosed = errors.New("connection is closed")

	// Message errors

	ErrFrameTooLarge         = errors.New("frame exceeds maximum size")
	ErrSerializationFailed   = errors.New("message serialization failed")
	ErrDeserializationFailed = errors.New("message deserialization failed")

	// Protocol errors

	ErrProtocolViolation = errors.New("protocol violation")
)
