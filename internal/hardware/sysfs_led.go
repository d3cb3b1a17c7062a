package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"morse-service/internal/logger"
)

// SysfsLed drives a LED class device through /sys/class/leds/<name>. The LED
// trigger is set to "none" on Init so the kernel does not fight over it, and
// the previous trigger is restored on Cleanup.
type SysfsLed struct {
	logger        *logger.Logger
	dir           string
	lock          sync.Mutex
	maxBrightness int
	prevTrigger   string
	enabled       bool
}

func NewSysfsLed(root, name string, l *logger.Logger) *SysfsLed {
	return &SysfsLed{
		logger: l.WithTag("led"),
		dir:    filepath.Join(root, name),
	}
}

func (s *SysfsLed) Init() error {
	s.logger.Infof("Initializing sysfs LED %s", s.dir)
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return fmt.Errorf("LED not found: %s", s.dir)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	maxBrightness, err := readIntAttr(filepath.Join(s.dir, "max_brightness"))
	if err != nil {
		s.logger.Warnf("Failed to read max_brightness, assuming 1: %v", err)
		maxBrightness = 1
	}
	s.maxBrightness = maxBrightness

	if trig, err := currentTrigger(filepath.Join(s.dir, "trigger")); err == nil {
		s.prevTrigger = trig
		if trig != "none" {
			if err := writeAttr(filepath.Join(s.dir, "trigger"), "none"); err != nil {
				return fmt.Errorf("failed to detach LED trigger %s: %w", trig, err)
			}
			s.logger.Infof("Detached LED trigger %s", trig)
		}
	}

	s.enabled = true
	return s.setBrightness(0)
}

func (s *SysfsLed) Activate() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.setBrightness(s.maxBrightness)
}

func (s *SysfsLed) Deactivate() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.setBrightness(0)
}

func (s *SysfsLed) Cleanup() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.enabled {
		return
	}
	if err := s.setBrightness(0); err != nil {
		s.logger.Warnf("Failed to switch LED off: %v", err)
	}
	if s.prevTrigger != "" && s.prevTrigger != "none" {
		if err := writeAttr(filepath.Join(s.dir, "trigger"), s.prevTrigger); err != nil {
			s.logger.Warnf("Failed to restore LED trigger %s: %v", s.prevTrigger, err)
		}
	}
	s.enabled = false
}

func (s *SysfsLed) setBrightness(value int) error {
	if !s.enabled {
		return fmt.Errorf("LED %s not enabled", s.dir)
	}
	if err := writeAttr(filepath.Join(s.dir, "brightness"), strconv.Itoa(value)); err != nil {
		return fmt.Errorf("failed to set brightness %d: %w", value, err)
	}
	return nil
}

// writeAttr behaves like `echo value > path`.
func writeAttr(path, value string) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_TRUNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	buf := []byte(value + "\n")
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		buf = buf[n:]
	}
	return nil
}

func readIntAttr(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed reading %s: %w", path, err)
	}
	var value int
	if _, err := fmt.Sscanf(string(data), "%d", &value); err != nil {
		return 0, fmt.Errorf("failed parsing %s: %w", path, err)
	}
	return value, nil
}

// currentTrigger extracts the bracketed entry from a LED trigger listing
// such as "none [heartbeat] timer".
func currentTrigger(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := string(data)
	start := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			start = i + 1
		case ']':
			if start >= 0 {
				return s[start:i], nil
			}
		}
	}
	return "", fmt.Errorf("no active trigger in %s", path)
}
