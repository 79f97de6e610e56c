// File: api/host.go
// Author: momentics <momentics@gmail.com>
//
// Vocabulary shared with the engine that drives the core. The core never
// interprets these values; it only guarantees its primitives are safe to
// call from inside the engine's service loop.

package api

import "time"

// LogType categorizes engine log events.
type LogType int

const (
	LogCommand LogType = iota
	LogResponse
	LogError
)

func (t LogType) String() string {
	switch t {
	case LogCommand:
		return "command"
	case LogResponse:
		return "response"
	case LogError:
		return "error"
	}
	return "unknown"
}

// HostConfig enumerates the options an engine recognizes.
type HostConfig struct {
	User string
	Pass string
	Port uint16

	Anon                 bool // anonymous access allowed
	ReadOnly             bool // uploads refused
	WriteAccountRequired bool // storing files requires an account
	Timeout              time.Duration

	LogFunc      func(LogType, string)
	ProgressFunc func()
}
