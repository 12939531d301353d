package log

import (
	"time"

	"go.uber.org/zap"
)

// Log is the logging surface handed to node components. Child loggers created
// with With carry their fields on every record.
type Log interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	With(fields ...Field) Log
}

type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Field is a structured log field.
type Field = zap.Field

// Field constructors, re-exported so callers never import zap directly.

func String(key, value string) Field { return zap.String(key, value) }

func Int(key string, value int) Field { return zap.Int(key, value) }

func Uint32(key string, value uint32) Field { return zap.Uint32(key, value) }

func Uint64(key string, value uint64) Field { return zap.Uint64(key, value) }

func Float64(key string, value float64) Field { return zap.Float64(key, value) }

func Bool(key string, value bool) Field { return zap.Bool(key, value) }

func Duration(key string, d time.Duration) Field { return zap.Duration(key, d) }

func Error(err error) Field { return zap.Error(err) }

// NodeID tags a record with the server id that produced it.
func NodeID(id uint32) Field { return zap.Uint32("node", id) }
