package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"morse-service/internal/keyer"
	"morse-service/internal/logger"
	"morse-service/internal/messaging"
	"morse-service/internal/transcript"
	"morse-service/internal/types"
)

// Mock MessagingClient
type mockMessagingClient struct {
	mu        sync.Mutex
	callbacks messaging.Callbacks

	// Track method calls
	publishedStates []types.KeyerState
	publishedJobs   []string
	transcripts     []string
	stats           []types.Stats
	failures        []struct{ job, reason string }
	connected       bool
	listening       bool
	closed          bool

	connectErr error
}

func newMockMessagingClient() *mockMessagingClient {
	return &mockMessagingClient{}
}

func (m *mockMessagingClient) SetCallbacks(callbacks messaging.Callbacks) { m.callbacks = callbacks }
func (m *mockMessagingClient) StartListening() error                      { m.listening = true; return nil }

func (m *mockMessagingClient) Connect() error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockMessagingClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockMessagingClient) PublishState(state types.KeyerState, job string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedStates = append(m.publishedStates, state)
	m.publishedJobs = append(m.publishedJobs, job)
	return nil
}

func (m *mockMessagingClient) PublishStats(stats types.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("client closed")
	}
	m.stats = append(m.stats, stats)
	return nil
}

func (m *mockMessagingClient) PublishTranscript(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts = append(m.transcripts, string(data))
	return nil
}

func (m *mockMessagingClient) ReportJobFailure(job string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("client closed")
	}
	m.failures = append(m.failures, struct{ job, reason string }{job, reason})
	return nil
}

func (m *mockMessagingClient) failureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failures)
}

func (m *mockMessagingClient) hasState(state types.KeyerState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.publishedStates {
		if s == state {
			return true
		}
	}
	return false
}

// Mock IndicatorDevice
type mockIndicator struct {
	mu          sync.Mutex
	on          bool
	pulses      int
	initialized bool
	cleanedUp   bool
	initErr     error
}

func (m *mockIndicator) Init() error {
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *mockIndicator) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanedUp = true
}

func (m *mockIndicator) Activate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.on {
		m.pulses++
	}
	m.on = true
	return nil
}

func (m *mockIndicator) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = false
	return nil
}

func (m *mockIndicator) isOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// instantSleep skips timing but still observes cancellation
func instantSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// blockingSleep never elapses; only cancellation ends it
func blockingSleep(ctx context.Context, d time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

// Test helper
func newTestMorseSystem(sleep keyer.SleepFunc) (*MorseSystem, *mockIndicator, *mockMessagingClient) {
	l := logger.NewLogger(nil, logger.LogLevelError)
	mockIO := &mockIndicator{}
	mockRedis := newMockMessagingClient()
	queue := transcript.NewQueue(64, transcript.DropNewest)
	system := NewMorseSystem(mockIO, mockRedis, queue, 10, l, keyer.WithSleep(sleep))
	return system, mockIO, mockRedis
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ===== Basic Construction Tests =====

func TestNewMorseSystem(t *testing.T) {
	system, mockIO, mockRedis := newTestMorseSystem(instantSleep)

	if system == nil {
		t.Fatal("NewMorseSystem returned nil")
	}
	if system.io != mockIO {
		t.Error("io not set correctly")
	}
	if system.redis != mockRedis {
		t.Error("redis not set correctly")
	}
	if system.State() != types.StateInit {
		t.Errorf("Expected initial state init, got %v", system.State())
	}
	if system.keyer.DotTime() != 10*time.Millisecond {
		t.Errorf("Expected dot time 10ms, got %v", system.keyer.DotTime())
	}
}

func TestStart(t *testing.T) {
	system, mockIO, mockRedis := newTestMorseSystem(instantSleep)
	defer system.Shutdown()

	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !mockIO.initialized {
		t.Error("indicator not initialized")
	}
	if !mockRedis.connected || !mockRedis.listening {
		t.Error("messaging not connected and listening")
	}
	if mockRedis.callbacks.SpeakCallback == nil || mockRedis.callbacks.ReadCallback == nil ||
		mockRedis.callbacks.ControlCallback == nil {
		t.Error("callbacks not registered")
	}
	if system.State() != types.StateIdle {
		t.Errorf("Expected idle after start, got %v", system.State())
	}
	waitFor(t, "idle state to be published", func() bool { return mockRedis.hasState(types.StateIdle) })
}

func TestStartFailures(t *testing.T) {
	system, _, mockRedis := newTestMorseSystem(instantSleep)
	mockRedis.connectErr = errors.New("connection refused")
	if err := system.Start(); err == nil {
		t.Error("expected error when Redis is unreachable")
	}

	system, mockIO, _ := newTestMorseSystem(instantSleep)
	mockIO.initErr = errors.New("no such LED")
	if err := system.Start(); err == nil {
		t.Error("expected error when the indicator cannot be initialized")
	}
}

func TestSpeakBeforeStart(t *testing.T) {
	system, mockIO, _ := newTestMorseSystem(instantSleep)

	if err := system.Speak(context.Background(), "e"); err == nil {
		t.Fatal("expected error when the state machine is not running")
	}
	if mockIO.pulses != 0 {
		t.Error("indicator keyed without a running state machine")
	}
}

// ===== Speak / Read Tests =====

func TestSpeakAndRead(t *testing.T) {
	system, mockIO, mockRedis := newTestMorseSystem(instantSleep)
	defer system.Shutdown()
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := system.Speak(context.Background(), "sos"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if mockIO.pulses != 9 {
		t.Errorf("Expected 9 pulses, got %d", mockIO.pulses)
	}
	if mockIO.isOn() {
		t.Error("indicator left on after job")
	}

	data, err := system.Read(context.Background(), 100)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "... --- ...\n" {
		t.Errorf("Read = %q", data)
	}

	mockRedis.mu.Lock()
	defer mockRedis.mu.Unlock()
	if len(mockRedis.transcripts) != 1 || mockRedis.transcripts[0] != "... --- ...\n" {
		t.Errorf("published transcripts = %q", mockRedis.transcripts)
	}
	if len(mockRedis.stats) != 1 {
		t.Fatalf("Expected one stats publication, got %d", len(mockRedis.stats))
	}
	if mockRedis.stats[0].Letters != 3 || mockRedis.stats[0].Jobs != 1 {
		t.Errorf("published stats = %+v", mockRedis.stats[0])
	}
}

func TestSpeakPublishesJobStates(t *testing.T) {
	system, _, mockRedis := newTestMorseSystem(instantSleep)
	defer system.Shutdown()
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := system.Speak(context.Background(), "a b"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitFor(t, "return to idle", func() bool { return system.State() == types.StateIdle })

	stats := system.Stats()
	if stats.Letters != 2 || stats.WordGaps != 1 || stats.Jobs != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	if stats.LastJob == "" {
		t.Fatal("LastJob not recorded")
	}

	waitFor(t, "keying state to be published", func() bool { return mockRedis.hasState(types.StateKeying) })
}

func TestReadEmptyDoesNotPublish(t *testing.T) {
	system, _, mockRedis := newTestMorseSystem(instantSleep)

	if err := system.handleReadRequest(32); err != nil {
		t.Fatalf("handleReadRequest failed: %v", err)
	}
	if err := system.handleReadRequest(0); err != nil {
		t.Fatalf("handleReadRequest failed: %v", err)
	}
	if len(mockRedis.transcripts) != 0 {
		t.Errorf("empty reads published %q", mockRedis.transcripts)
	}
}

func TestConcurrentSpeakIsSerialised(t *testing.T) {
	system, _, _ := newTestMorseSystem(instantSleep)
	defer system.Shutdown()
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var wg sync.WaitGroup
	for _, text := range []string{"e", "t"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			if err := system.Speak(context.Background(), text); err != nil {
				t.Errorf("Speak(%q) failed: %v", text, err)
			}
		}(text)
	}
	wg.Wait()

	data, err := system.Read(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != ".-\n" && got != "-.\n" {
		t.Errorf("Read = %q, want the two jobs back to back", got)
	}
	if system.Stats().Jobs != 2 {
		t.Errorf("Jobs = %d, want 2", system.Stats().Jobs)
	}
}

// ===== Abort / Fault Tests =====

func TestAbortStopsJob(t *testing.T) {
	system, mockIO, mockRedis := newTestMorseSystem(blockingSleep)
	defer system.Shutdown()
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- system.Speak(context.Background(), "sos")
	}()
	waitFor(t, "keying", func() bool { return system.State() == types.StateKeying })
	waitFor(t, "first pulse", mockIO.isOn)

	if err := system.handleControlRequest("abort"); err != nil {
		t.Fatalf("handleControlRequest failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, keyer.ErrInterrupted) {
			t.Errorf("Speak = %v, want ErrInterrupted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after abort")
	}

	if mockIO.isOn() {
		t.Error("indicator left on after abort")
	}
	waitFor(t, "return to idle", func() bool { return system.State() == types.StateIdle })

	mockRedis.mu.Lock()
	defer mockRedis.mu.Unlock()
	if len(mockRedis.failures) == 0 || mockRedis.failures[0].reason != "aborted" {
		t.Errorf("failures = %+v, want an aborted job", mockRedis.failures)
	}
}

func TestAbortWhenIdle(t *testing.T) {
	system, _, mockRedis := newTestMorseSystem(instantSleep)
	defer system.Shutdown()
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if system.Abort() {
		t.Error("Abort reported a job while idle")
	}
	if err := system.handleControlRequest("abort"); err != nil {
		t.Errorf("handleControlRequest failed: %v", err)
	}
	if err := system.handleControlRequest("pause"); err == nil {
		t.Error("expected error for unknown control command")
	}
	if mockRedis.failureCount() != 0 {
		t.Error("idle abort reported a failure")
	}
}

func TestFaultIsReported(t *testing.T) {
	broken := func(ctx context.Context, d time.Duration) error {
		return errors.New("timer broken")
	}
	system, mockIO, mockRedis := newTestMorseSystem(broken)
	defer system.Shutdown()
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := system.Speak(context.Background(), "t")
	if err == nil {
		t.Fatal("expected Speak to fail")
	}
	if mockIO.isOn() {
		t.Error("indicator left on after fault")
	}
	waitFor(t, "fault report", func() bool { return mockRedis.failureCount() == 1 })

	mockRedis.mu.Lock()
	defer mockRedis.mu.Unlock()
	if !strings.Contains(mockRedis.failures[0].reason, "timer broken") {
		t.Errorf("failure reason = %q", mockRedis.failures[0].reason)
	}
}

func TestSpeakRequestSwallowsInterruption(t *testing.T) {
	system, _, _ := newTestMorseSystem(blockingSleep)
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- system.handleSpeakRequest("e")
	}()
	waitFor(t, "keying", func() bool { return system.State() == types.StateKeying })

	system.Shutdown()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("handleSpeakRequest = %v, want nil after shutdown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("speak request did not return after shutdown")
	}
}

// ===== Shutdown Tests =====

func TestShutdown(t *testing.T) {
	system, mockIO, mockRedis := newTestMorseSystem(instantSleep)
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	system.Shutdown()

	if !mockIO.cleanedUp {
		t.Error("indicator not cleaned up")
	}
	if mockIO.isOn() {
		t.Error("indicator left on")
	}
	if !mockRedis.closed {
		t.Error("messaging not closed")
	}
	if err := system.Speak(context.Background(), "e"); !errors.Is(err, keyer.ErrInterrupted) {
		t.Errorf("Speak after shutdown = %v, want ErrInterrupted", err)
	}
}

func TestShutdownRecordsInterruptedJob(t *testing.T) {
	system, mockIO, mockRedis := newTestMorseSystem(blockingSleep)
	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- system.handleSpeakRequest("sos")
	}()
	waitFor(t, "keying", func() bool { return system.State() == types.StateKeying })

	system.Shutdown()
	<-done

	mockRedis.mu.Lock()
	defer mockRedis.mu.Unlock()
	if len(mockRedis.failures) != 1 {
		t.Fatalf("failures = %+v, want the interrupted job recorded before close", mockRedis.failures)
	}
	if !strings.Contains(mockRedis.failures[0].reason, "canceled") {
		t.Errorf("failure reason = %q", mockRedis.failures[0].reason)
	}
	if len(mockRedis.stats) != 1 || mockRedis.stats[0].Jobs != 1 {
		t.Errorf("stats = %+v, want the interrupted job published", mockRedis.stats)
	}
	if mockIO.isOn() || !mockIO.cleanedUp {
		t.Error("indicator not switched off and cleaned up")
	}
}

func TestWithoutMessaging(t *testing.T) {
	l := logger.NewLogger(nil, logger.LogLevelError)
	mockIO := &mockIndicator{}
	queue := transcript.NewQueue(16, transcript.DropNewest)
	system := NewMorseSystem(mockIO, nil, queue, 10, l, keyer.WithSleep(instantSleep))
	defer system.Shutdown()

	if err := system.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := system.Speak(context.Background(), "e"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	data, err := system.Read(context.Background(), 16)
	if err != nil || string(data) != ".\n" {
		t.Errorf("Read = %q, %v", data, err)
	}
}
