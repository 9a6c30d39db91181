package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	EventCreated  = "created"
	EventJoined   = "joined"
	EventLeft     = "left"
	EventDeleted  = "deleted"
	EventDealt    = "dealt"
	EventPassed   = "passed"
	EventFinished = "completed"
)

const roomChannelPrefix = "fourkind:room:"

// RoomEvent announces a committed change to a room.
type RoomEvent struct {
	RoomCode string `json:"roomId"`
	Version  int64  `json:"version"`
	Kind     string `json:"kind"`
}

// Notifier is the change feed keyed by room code.
type Notifier interface {
	Publish(ctx context.Context, ev RoomEvent) error
	// Subscribe delivers events for every room until ctx is done.
	Subscribe(ctx context.Context) (<-chan RoomEvent, error)
	Health(ctx context.Context) map[string]string
	Close() error
}

const (
	subscriberBuffer = 64
	publishTimeout   = time.Second
)

// LocalNotifier fans events out to subscribers in the same process.
type LocalNotifier struct {
	subscribers map[chan RoomEvent]struct{}
	mu          sync.RWMutex
	log         logrus.FieldLogger
	timeout     time.Duration
}

func NewLocalNotifier(log logrus.FieldLogger) *LocalNotifier {
	return &LocalNotifier{
		subscribers: make(map[chan RoomEvent]struct{}),
		log:         log,
		timeout:     publishTimeout,
	}
}

// Publish waits up to the publish timeout for each full subscriber. An
// event that still does not fit is dropped and reported in the error.
func (n *LocalNotifier) Publish(ctx context.Context, ev RoomEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	dropped := 0
	for ch := range n.subscribers {
		select {
		case ch <- ev:
			continue
		default:
		}

		timer := time.NewTimer(n.timeout)
		select {
		case ch <- ev:
		case <-timer.C:
			dropped++
		case <-ctx.Done():
			dropped++
		}
		timer.Stop()
	}
	if dropped > 0 {
		return fmt.Errorf("dropped event for room %s at %d subscribers", ev.RoomCode, dropped)
	}
	return nil
}

func (n *LocalNotifier) Subscribe(ctx context.Context) (<-chan RoomEvent, error) {
	ch := make(chan RoomEvent, subscriberBuffer)

	n.mu.Lock()
	n.subscribers[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subscribers, ch)
		close(ch)
		n.mu.Unlock()
	}()
	return ch, nil
}

func (n *LocalNotifier) Health(context.Context) map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return map[string]string{
		"status":      "up",
		"subscribers": fmt.Sprint(len(n.subscribers)),
	}
}

func (n *LocalNotifier) Close() error {
	return nil
}

// RedisNotifier publishes room events on one channel per room and reads
// them back with a pattern subscription, so every server instance sees
// every change.
type RedisNotifier struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewRedisNotifier(ctx context.Context, cfg Config, log logrus.FieldLogger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	return &RedisNotifier{client: client, log: log}, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, ev RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize room event: %w", err)
	}
	if err := n.client.Publish(ctx, roomChannelPrefix+ev.RoomCode, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event for room %s: %w", ev.RoomCode, err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan RoomEvent, error) {
	pubsub := n.client.PSubscribe(ctx, roomChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room events: %w", err)
	}

	out := make(chan RoomEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev RoomEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.log.WithError(err).WithField("channel", msg.Channel).Warn("Ignoring malformed room event")
					continue
				}
				if ev.RoomCode == "" {
					ev.RoomCode = strings.TrimPrefix(msg.Channel, roomChannelPrefix)
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (n *RedisNotifier) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := n.client.Ping(ctx).Err(); err != nil {
		return map[string]string{"status": "down", "error": fmt.Sprintf("redis down: %v", err)}
	}
	return map[string]string{"status": "up"}
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
