package fsm

import (
	"time"

	"github.com/librescoot/librefsm"
)

// AbortTimeout bounds how long the machine waits in aborting for the
// interrupted job to hand back the actuator.
const AbortTimeout = 5 * time.Second

// NewDefinition creates the keyer FSM definition.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateInit).
		State(StateIdle,
			librefsm.WithOnEnter(actions.EnterIdle),
		).
		State(StateKeying,
			librefsm.WithOnEnter(actions.EnterKeying),
			librefsm.WithOnExit(actions.ExitKeying),
		).
		State(StateAborting,
			librefsm.WithTimeout(AbortTimeout, EvAbortTimeout),
			librefsm.WithOnEnter(actions.EnterAborting),
		).

		// === Transitions ===

		Transition(StateInit, EvReady, StateIdle).
		Transition(StateIdle, EvSpeak, StateKeying).
		Transition(StateKeying, EvDone, StateIdle).
		Transition(StateKeying, EvFault, StateIdle,
			librefsm.WithAction(actions.OnFault),
		).
		Transition(StateKeying, EvAbort, StateAborting,
			librefsm.WithGuard(actions.HasActiveJob),
		).

		// The interrupted job reports back with done or fault
		Transition(StateAborting, EvDone, StateIdle).
		Transition(StateAborting, EvFault, StateIdle).
		Transition(StateAborting, EvAbortTimeout, StateIdle,
			librefsm.WithAction(actions.OnAbortTimeout),
		).
		Initial(StateInit)
}
