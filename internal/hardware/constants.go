package hardware

const (
	PwmLedCount = 8

	// Duty cycle written to a PWM LED channel when keyed. The i.MX driver
	// accepts 0..pwmPeriod.
	PwmLedFullDuty = pwmPeriod

	SysfsLedsDir = "/sys/class/leds"

	GpioConsumer = "morse-service"
)

// Actuator kinds accepted in the configuration file.
const (
	KindLog      = "log"
	KindSysfsLed = "sysfs-led"
	KindGpio     = "gpio"
	KindPwmLed   = "pwm-led"
)
