package addonmgr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/redis/go-redis/v9"
)

const (
	eventsStream        = "adsp:addon_events"
	notificationsStream = "adsp:notifications"
)

type EventType string

const (
	EventAddonsUpdated EventType = "addons_updated"
	EventAddonDisabled EventType = "addon_disabled"
	EventAddonEnabled  EventType = "addon_enabled"
)

// Event is a change in the set of running addons.
type Event struct {
	Type    EventType
	AddonID string
	Time    time.Time
}

type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// LogEventPublisher only logs events. It is used when no Redis is configured.
type LogEventPublisher struct{}

var _ EventPublisher = (*LogEventPublisher)(nil)

func (p *LogEventPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		slog.InfoContext(
			ctx,
			"addon event",
			slog.String("type", string(e.Type)),
			slog.String("addonID", e.AddonID),
			slog.String("time", e.Time.Format(time.RFC3339)),
		)
	}
	return nil
}

type RedisEventPublisher struct {
	client *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{client: client}
}

var _ EventPublisher = (*RedisEventPublisher)(nil)

func (p *RedisEventPublisher) Publish(ctx context.Context, events ...Event) error {
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range events {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: eventsStream,
				Values: map[string]any{
					"type":    string(e.Type),
					"addonID": e.AddonID,
					"time":    e.Time.Format(time.RFC3339),
				},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish addon events: %w", err)
	}
	return nil
}

// RedisEventReceiver reads addon events through a consumer group.
type RedisEventReceiver struct {
	client   *redis.Client
	group    string
	consumer string
}

func NewRedisEventReceiver(ctx context.Context, client *redis.Client, group, consumer string) (*RedisEventReceiver, error) {
	err := client.XGroupCreateMkStream(ctx, eventsStream, group, "0").Err()
	if err != nil && err != redis.Nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", group, err)
	}
	return &RedisEventReceiver{client: client, group: group, consumer: consumer}, nil
}

// Receive blocks up to block for new events and acknowledges what it returns.
func (r *RedisEventReceiver) Receive(ctx context.Context, block time.Duration) ([]Event, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{eventsStream, ">"},
		Count:    64,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read addon events: %w", err)
	}

	var events []Event
	var ids []string
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ids = append(ids, msg.ID)
			e, err := eventFromValues(msg.Values)
			if err != nil {
				slog.WarnContext(ctx, "skipping malformed addon event", slog.String("id", msg.ID), slog.Any("error", err))
				continue
			}
			events = append(events, e)
		}
	}
	if len(ids) > 0 {
		if err := r.client.XAck(ctx, eventsStream, r.group, ids...).Err(); err != nil {
			return events, fmt.Errorf("failed to ack addon events: %w", err)
		}
	}
	return events, nil
}

func eventFromValues(values map[string]any) (Event, error) {
	typ, _ := values["type"].(string)
	addonID, _ := values["addonID"].(string)
	raw, _ := values["time"].(string)
	if typ == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return Event{}, fmt.Errorf("invalid event time %q: %w", raw, err)
	}
	return Event{Type: EventType(typ), AddonID: addonID, Time: ts}, nil
}

type MemoryEventPublisher struct {
	mu     sync.Mutex
	events []Event
}

var _ EventPublisher = (*MemoryEventPublisher)(nil)

func (p *MemoryEventPublisher) Publish(_ context.Context, events ...Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *MemoryEventPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// LogNotifier reports addon exceptions to the log instead of a dialog.
type LogNotifier struct{}

var _ adsp.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) ShowExceptionErrorDialog(ctx context.Context, info adsp.AddonInfo) error {
	slog.ErrorContext(
		ctx,
		"addon caused an exception and was disabled",
		slog.String("addonID", info.ID),
		slog.String("name", info.Name),
		slog.String("version", info.Version),
	)
	return nil
}

// RedisNotifier queues an exception dialog for whichever UI reads the
// notifications stream.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

var _ adsp.Notifier = (*RedisNotifier)(nil)

func (n *RedisNotifier) ShowExceptionErrorDialog(ctx context.Context, info adsp.AddonInfo) error {
	err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: notificationsStream,
		Values: map[string]any{
			"kind":    "exception",
			"addonID": info.ID,
			"name":    info.Name,
			"version": info.Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to queue exception dialog for %s: %w", info.ID, err)
	}
	return nil
}
