package core

import (
	"fmt"

	"github.com/librescoot/librefsm"

	"morse-service/internal/types"
)

// sendEvent sends an event to the FSM and waits for it to be processed
func (s *MorseSystem) sendEvent(event librefsm.EventID) error {
	if s.machine == nil {
		return fmt.Errorf("state machine not started, dropping event %s", event)
	}
	return s.machine.SendSync(librefsm.Event{ID: event})
}

// getCurrentState returns the current keyer state
func (s *MorseSystem) getCurrentState() types.KeyerState {
	if s.machine == nil {
		return types.StateInit
	}
	return stateIDToKeyerState(s.machine.CurrentState())
}

// State returns the current keyer state.
func (s *MorseSystem) State() types.KeyerState {
	return s.getCurrentState()
}
