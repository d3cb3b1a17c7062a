package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"morse-service/internal/config"
	"morse-service/internal/core"
	"morse-service/internal/hardware"
	"morse-service/internal/logger"
	"morse-service/internal/messaging"
	"morse-service/internal/transcript"
)

func main() {
	// Service log level
	var serviceLogLevel int
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")

	configPath := flag.String("config", "", "Path to YAML configuration file")
	dotTime := flag.Int("dottime", 0, "Dot time in milliseconds [1-2000]")
	redisHost := flag.String("redis-host", "", "Redis host")
	redisPort := flag.Int("redis-port", 0, "Redis port")
	actuatorType := flag.String("actuator", "", "Indicator type (log, sysfs-led, gpio, pwm-led)")
	ledName := flag.String("led", "", "sysfs LED name for the sysfs-led indicator")
	text := flag.String("text", "", "Send this text once, print the transcript and exit")

	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	// Flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log":
			cfg.Logging.Level = fmt.Sprint(serviceLogLevel)
		case "dottime":
			cfg.Keyer.DotTimeMs = *dotTime
		case "redis-host":
			cfg.Redis.Host = *redisHost
		case "redis-port":
			cfg.Redis.Port = *redisPort
		case "actuator":
			cfg.Actuator.Type = *actuatorType
		case "led":
			cfg.Actuator.Led = *ledName
		}
	})
	oneShot := *text != ""
	if oneShot {
		cfg.Redis.Enabled = false
	}

	diags, err := cfg.Validate()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stderr, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	// Create leveled logger
	l := logger.NewLogger(stdLogger, cfg.LogLevel())

	for _, d := range diags {
		l.Warnf("Config: %v", d)
	}
	if err != nil {
		l.Fatalf("Invalid configuration: %v", err)
	}

	l.Infof("Starting morse service...")
	l.Infof("Configuration: %s", cfg.Summary())

	device, err := hardware.NewDevice(cfg.ActuatorOptions(), l.WithTag("indicator"))
	if err != nil {
		l.Fatalf("Failed to create indicator: %v", err)
	}

	queue := transcript.NewQueue(cfg.Transcript.Capacity, cfg.OverflowPolicy())

	var redis core.MessagingClient
	if cfg.Redis.Enabled {
		redis = messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, l.WithTag("redis"), messaging.Callbacks{})
	}

	system := core.NewMorseSystem(device, redis, queue, cfg.Keyer.DotTimeMs, l)
	if err := system.Start(); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	if oneShot {
		os.Exit(runOnce(system, *text, queue.Cap(), l))
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	l.Infof("Shutdown complete")
}

// runOnce sends text, prints the transcript to stdout and returns the exit code.
func runOnce(system *core.MorseSystem, text string, capacity int, l *logger.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer system.Shutdown()

	code := 0
	if err := system.Speak(ctx, text); err != nil {
		l.Errorf("Send failed: %v", err)
		code = 1
	}

	// Room for a full queue plus its terminator
	data, err := system.Read(context.Background(), capacity+1)
	if err != nil {
		l.Errorf("Failed to read transcript: %v", err)
		return 1
	}
	os.Stdout.Write(data)
	return code
}
