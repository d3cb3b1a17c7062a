package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"morse-service/internal/logger"
	"morse-service/internal/types"

	"github.com/redis/go-redis/v9"
)

// Redis keys
const (
	SpeakList   = "morse:speak"
	ReadList    = "morse:read"
	ControlList = "morse:control"

	// TranscriptList receives every drained chunk in order; consumers pop
	// from the left.
	TranscriptList = "morse:transcript"

	StateHash      = "morse"
	StateChannel   = "morse"
	ControlChannel = "morse:control"
	FaultStream    = "events:morse"
)

type Callbacks struct {
	SpeakCallback   func(string) error // text to send
	ReadCallback    func(int) error    // transcript buffer capacity
	ControlCallback func(string) error // "abort"
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Infof("Redis connection failed: %v", err)
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")

	state, err := r.client.HGet(r.ctx, StateHash, "state").Result()
	if err != nil && err != redis.Nil {
		r.logger.Infof("Failed to get previous keyer state: %v", err)
	} else if state != "" {
		r.logger.Infof("Previous keyer state: %s", state)
	}

	return nil
}

// StartListening starts all Redis listeners after system initialization is complete
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pubsub := r.client.Subscribe(r.ctx, ControlChannel)
	r.logger.Infof("Subscribed to Redis channel: %s", ControlChannel)

	r.wg.Add(1)
	go r.redisListener(pubsub)

	r.wg.Add(3)
	go r.listCommandListener(SpeakList, r.handleSpeakCommand)
	go r.listCommandListener(ReadList, r.handleReadCommand)
	go r.listCommandListener(ControlList, r.handleControlCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context cancellation checks
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Infof("Error reading from %s list: %v", key, err)
				continue
			}

			select {
			case <-r.ctx.Done():
				r.logger.Infof("Context cancelled, exiting %s listener", key)
				return
			default:
				if len(result) >= 2 { // BRPOP returns [key, value]
					value := result[1]
					r.logger.Debugf("Received command from %s: %q", key, value)
					if err := handler(value); err != nil {
						r.logger.Warnf("Error handling %s command: %v", key, err)
					}
				}
			}
		}
	}
}

func (r *RedisClient) handleSpeakCommand(value string) error {
	if r.callbacks.SpeakCallback == nil {
		return nil
	}
	return r.callbacks.SpeakCallback(value)
}

func (r *RedisClient) handleReadCommand(value string) error {
	if r.callbacks.ReadCallback == nil {
		return nil
	}
	max, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || max < 0 {
		r.logger.Infof("Invalid read command value: %s", value)
		return fmt.Errorf("invalid read command: %s", value)
	}
	return r.callbacks.ReadCallback(max)
}

func (r *RedisClient) handleControlCommand(value string) error {
	if r.callbacks.ControlCallback == nil {
		return nil
	}
	switch value {
	case "abort":
		return r.callbacks.ControlCallback(value)
	default:
		r.logger.Infof("Invalid control command value: %s", value)
		return fmt.Errorf("invalid control command: %s", value)
	}
}

func (r *RedisClient) redisListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	r.logger.Infof("Starting Redis message listener")
	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting listener")
			return
		case msg, ok := <-channel:
			if !ok || msg == nil {
				r.logger.Infof("Redis channel closed unexpectedly")
				r.logger.Fatalf("Redis connection lost, exiting to allow systemd restart")
			}

			r.logger.Debugf("Received Redis message: channel=%s payload=%s", msg.Channel, msg.Payload)

			if msg.Channel == ControlChannel {
				if err := r.handleControlCommand(msg.Payload); err != nil {
					r.logger.Infof("Failed to handle control request: %v", err)
				}
			}
		}
	}
}

// publishHashSet atomically updates hash fields and publishes a notification
func (r *RedisClient) publishHashSet(values map[string]interface{}, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, StateHash, values)
	pipe.Publish(r.ctx, StateChannel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) PublishState(state types.KeyerState, job string) error {
	r.logger.Infof("Publishing keyer state: %s", state)

	err := r.publishHashSet(map[string]interface{}{
		"state":           string(state),
		"state:timestamp": time.Now().Format(time.RFC3339),
		"job":             job,
	}, "state")
	if err != nil {
		r.logger.Warnf("Failed to publish keyer state: %v", err)
		return err
	}
	return nil
}

// PublishTranscript appends a drained transcript chunk to the transcript
// list and announces it. Drained symbols are gone from the queue, so chunks
// are never overwritten.
func (r *RedisClient) PublishTranscript(data []byte) error {
	r.logger.Debugf("Publishing transcript: %d bytes", len(data))

	pipe := r.client.Pipeline()
	pipe.RPush(r.ctx, TranscriptList, string(data))
	pipe.HSet(r.ctx, StateHash, "transcript:timestamp", time.Now().Format(time.RFC3339))
	pipe.Publish(r.ctx, StateChannel, "transcript")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish transcript: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) PublishStats(stats types.Stats) error {
	err := r.publishHashSet(map[string]interface{}{
		"stats:letters":          stats.Letters,
		"stats:word-gaps":        stats.WordGaps,
		"stats:symbols":          stats.Symbols,
		"stats:dropped":          stats.Dropped,
		"stats:queued":           stats.Queued,
		"stats:jobs":             stats.Jobs,
		"stats:last-job":         stats.LastJob,
		"stats:last-duration-ms": stats.LastDuration.Milliseconds(),
	}, "stats")
	if err != nil {
		r.logger.Warnf("Failed to publish stats: %v", err)
		return err
	}
	return nil
}

// ReportJobFailure records a failed or aborted job in the event stream
func (r *RedisClient) ReportJobFailure(job string, reason string) error {
	r.logger.Infof("Reporting job failure: job=%s reason=%s", job, reason)

	pipe := r.client.Pipeline()
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: FaultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"job":    job,
			"reason": reason,
			"ts":     time.Now().Unix(),
		},
	})
	pipe.Publish(r.ctx, StateChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Infof("Failed to report job failure: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	// Wait for all goroutines to finish with a timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
