package hardware

import (
	"fmt"
	"sync"

	"morse-service/internal/logger"
)

// Actuator is the indicator the keyer drives. Commands are idempotent and
// carry no acknowledgement beyond the returned error.
type Actuator interface {
	Activate() error
	Deactivate() error
}

// Device is an actuator with a hardware lifecycle.
type Device interface {
	Actuator
	Init() error
	Cleanup()
}

// Options selects and parameterises an actuator.
type Options struct {
	Kind       string
	LedName    string
	GpioChip   string
	GpioLine   int
	PwmChannel int
	PwmDuty    int
}

// NewDevice builds the actuator named by opts.Kind. Init must still be called.
func NewDevice(opts Options, l *logger.Logger) (Device, error) {
	switch opts.Kind {
	case KindLog, "":
		return NewLogActuator(l), nil
	case KindSysfsLed:
		if opts.LedName == "" {
			return nil, fmt.Errorf("sysfs LED actuator needs a LED name")
		}
		return NewSysfsLed(SysfsLedsDir, opts.LedName, l), nil
	case KindGpio:
		if opts.GpioChip == "" {
			return nil, fmt.Errorf("GPIO actuator needs a chip name")
		}
		return NewGpioLine(opts.GpioChip, opts.GpioLine, l), nil
	case KindPwmLed:
		if opts.PwmChannel < 0 || opts.PwmChannel >= PwmLedCount {
			return nil, fmt.Errorf("invalid PWM LED channel: %d", opts.PwmChannel)
		}
		return NewImxPwmLed(opts.PwmChannel, opts.PwmDuty, l), nil
	default:
		return nil, fmt.Errorf("unknown actuator kind: %s", opts.Kind)
	}
}

// LogActuator only records and logs state changes. It stands in for a real
// LED when running on a development machine.
type LogActuator struct {
	logger *logger.Logger
	mu     sync.Mutex
	on     bool
	pulses int
}

func NewLogActuator(l *logger.Logger) *LogActuator {
	return &LogActuator{logger: l.WithTag("led")}
}

func (a *LogActuator) Init() error {
	a.logger.Infof("Using log actuator, no hardware will be driven")
	return nil
}

func (a *LogActuator) Cleanup() {
	a.Deactivate()
}

func (a *LogActuator) Activate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.on {
		a.pulses++
		a.logger.Debugf("on")
	}
	a.on = true
	return nil
}

func (a *LogActuator) Deactivate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.on {
		a.logger.Debugf("off")
	}
	a.on = false
	return nil
}

// IsOn reports the last commanded state.
func (a *LogActuator) IsOn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on
}

// Pulses counts off-to-on transitions.
func (a *LogActuator) Pulses() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pulses
}
