package types

import "time"

// KeyerState is the published state of the keyer.
type KeyerState string

const (
	StateInit     KeyerState = "init"
	StateIdle     KeyerState = "idle"
	StateKeying   KeyerState = "keying"
	StateAborting KeyerState = "aborting"
)

// Stats is the statistics snapshot published after every job.
type Stats struct {
	Letters      uint64
	WordGaps     uint64
	Symbols      uint64
	Dropped      uint64
	Queued       int
	Jobs         uint64
	LastJob      string
	LastDuration time.Duration
}
