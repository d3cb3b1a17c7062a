package core

import (
	"morse-service/internal/messaging"
	"morse-service/internal/types"
)

// MessagingClient defines the interface for Redis messaging operations needed by MorseSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// State management
	PublishState(state types.KeyerState, job string) error
	PublishStats(stats types.Stats) error

	// Transcript
	PublishTranscript(data []byte) error

	// Events
	ReportJobFailure(job string, reason string) error
}

// IndicatorDevice defines the interface for the keyed indicator
type IndicatorDevice interface {
	Init() error
	Cleanup()

	Activate() error
	Deactivate() error
}
