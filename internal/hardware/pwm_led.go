package hardware

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"morse-service/internal/logger"
)

const (
	pwmLedConfigure = 0x00007540 // _IO('u', 0x40)
	pwmLedSetActive = 0x00007549 // _IO('u', 0x49)
	pwmLedSetDuty   = 0x0000754A // _IO('u', 0x4A)

	// PWM configuration matching the imx_pwm_led kernel module parameters
	pwmPeriod    = 12000
	pwmPrescaler = 0
	pwmInvert    = 0
	pwmRepeat    = 3
)

// PWM configuration bits as defined in kernel module
const (
	pwmCfgBitPeriod    = 0
	pwmCfgBitPrescaler = 16
	pwmCfgBitInvert    = 28
	pwmCfgBitRepeat    = 29
)

const imxPwmLedModule = "/sys/module/imx_pwm_led"

// ImxPwmLed keys one channel of the i.MX PWM LED driver by switching its duty
// cycle between zero and the configured level.
type ImxPwmLed struct {
	logger  *logger.Logger
	channel int
	duty    int
	lock    sync.Mutex
	fd      int
	enabled bool
}

func NewImxPwmLed(channel, duty int, l *logger.Logger) *ImxPwmLed {
	if duty <= 0 || duty > PwmLedFullDuty {
		duty = PwmLedFullDuty
	}
	return &ImxPwmLed{
		logger:  l.WithTag("pwm-led"),
		channel: channel,
		duty:    duty,
		fd:      -1,
	}
}

func pwmConfigWord() uint32 {
	return uint32(pwmPeriod)<<pwmCfgBitPeriod |
		uint32(pwmPrescaler)<<pwmCfgBitPrescaler |
		uint32(pwmInvert)<<pwmCfgBitInvert |
		uint32(pwmRepeat)<<pwmCfgBitRepeat
}

func (l *ImxPwmLed) Init() error {
	l.logger.Infof("Initializing PWM LED channel %d", l.channel)
	if _, err := os.Stat(imxPwmLedModule); os.IsNotExist(err) {
		return fmt.Errorf("PWM LED module not loaded")
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	devPath := fmt.Sprintf("/dev/pwm_led%d", l.channel)
	fd, err := unix.Open(devPath, unix.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open LED device %s: %w", devPath, err)
	}

	if err := unix.IoctlSetInt(fd, pwmLedConfigure, int(pwmConfigWord())); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to configure PWM: %w", err)
	}
	// The driver needs a moment after reconfiguration before it accepts
	// activation.
	time.Sleep(10 * time.Millisecond)

	if err := unix.IoctlSetInt(fd, pwmLedSetDuty, 0); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to reset duty: %w", err)
	}
	if err := unix.IoctlSetInt(fd, pwmLedSetActive, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to activate LED %d: %w", l.channel, err)
	}

	l.fd = fd
	l.enabled = true
	l.logger.Infof("Successfully activated LED %d (duty %d/%d)", l.channel, l.duty, pwmPeriod)
	return nil
}

func (l *ImxPwmLed) Activate() error {
	return l.setDuty(l.duty)
}

func (l *ImxPwmLed) Deactivate() error {
	return l.setDuty(0)
}

func (l *ImxPwmLed) setDuty(duty int) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if !l.enabled {
		return fmt.Errorf("LED system not enabled")
	}
	if err := unix.IoctlSetInt(l.fd, pwmLedSetDuty, duty); err != nil {
		return fmt.Errorf("failed to set duty %d on LED %d: %w", duty, l.channel, err)
	}
	return nil
}

func (l *ImxPwmLed) Cleanup() {
	l.lock.Lock()
	defer l.lock.Unlock()

	if !l.enabled {
		return
	}
	unix.IoctlSetInt(l.fd, pwmLedSetDuty, 0)
	unix.IoctlSetInt(l.fd, pwmLedSetActive, 0)
	unix.Close(l.fd)
	l.fd = -1
	l.enabled = false
}
