package fsm

import "github.com/librescoot/librefsm"

// Actions defines the interface for keyer state machine actions.
// MorseSystem implements this interface.
type Actions interface {
	// State entry actions
	EnterIdle(c *librefsm.Context) error
	EnterKeying(c *librefsm.Context) error
	EnterAborting(c *librefsm.Context) error

	// State exit actions
	ExitKeying(c *librefsm.Context) error

	// Guards
	HasActiveJob(c *librefsm.Context) bool

	// Transition actions
	OnFault(c *librefsm.Context) error
	OnAbortTimeout(c *librefsm.Context) error
}
