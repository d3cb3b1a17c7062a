package fsm

import "github.com/librescoot/librefsm"

// Keyer states
const (
	StateInit     librefsm.StateID = "init"
	StateIdle     librefsm.StateID = "idle"
	StateKeying   librefsm.StateID = "keying"
	StateAborting librefsm.StateID = "aborting"
)

// Keyer events
const (
	// Lifecycle
	EvReady librefsm.EventID = "ready"

	// Job control (from Redis or the CLI)
	EvSpeak librefsm.EventID = "speak"
	EvAbort librefsm.EventID = "abort"

	// Job outcome
	EvDone  librefsm.EventID = "done"
	EvFault librefsm.EventID = "fault"

	// Timer events
	EvAbortTimeout librefsm.EventID = "abort-timeout"
)
