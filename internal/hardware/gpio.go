package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"morse-service/internal/logger"
)

// GpioLine keys a single GPIO output, e.g. a LED or a transmitter PTT/key
// line, through the GPIO character device.
type GpioLine struct {
	logger   *logger.Logger
	chipName string
	offset   int
	lock     sync.Mutex
	chip     *gpiocdev.Chip
	line     *gpiocdev.Line
}

func NewGpioLine(chipName string, offset int, l *logger.Logger) *GpioLine {
	return &GpioLine{
		logger:   l.WithTag("gpio"),
		chipName: chipName,
		offset:   offset,
	}
}

func (g *GpioLine) Init() error {
	g.lock.Lock()
	defer g.lock.Unlock()

	chip, err := gpiocdev.NewChip(g.chipName)
	if err != nil {
		return fmt.Errorf("failed to open GPIO chip %s: %w", g.chipName, err)
	}

	// Request line as output, starting dark
	line, err := chip.RequestLine(g.offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(GpioConsumer))
	if err != nil {
		chip.Close()
		return fmt.Errorf("failed to request GPIO line %d: %w", g.offset, err)
	}

	g.chip = chip
	g.line = line
	g.logger.Infof("Configured key output: chip=%s, line=%d", g.chipName, g.offset)
	return nil
}

func (g *GpioLine) Activate() error {
	return g.set(1)
}

func (g *GpioLine) Deactivate() error {
	return g.set(0)
}

func (g *GpioLine) set(value int) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.line == nil {
		return fmt.Errorf("GPIO line %s:%d not requested", g.chipName, g.offset)
	}
	if err := g.line.SetValue(value); err != nil {
		return fmt.Errorf("failed to set GPIO %s:%d=%d: %w", g.chipName, g.offset, value, err)
	}
	return nil
}

func (g *GpioLine) Cleanup() {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.line != nil {
		g.line.SetValue(0)
		g.line.Close()
		g.line = nil
		g.logger.Infof("Closed GPIO line %s:%d", g.chipName, g.offset)
	}
	if g.chip != nil {
		g.chip.Close()
		g.chip = nil
	}
}
