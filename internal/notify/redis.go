package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisQueueSize = 256

type publication struct {
	channel string
	kind    Kind
	data    []byte
}

// Redis publishes envelopes on "<prefix><audience key>" channels so other
// processes (chat bridges, dashboards) can relay them. Post only enqueues;
// a single worker publishes in order and drops posts when the queue is full.
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger

	queue chan publication
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewRedis(client *redis.Client, prefix string, logger *slog.Logger) *Redis {
	r := &Redis{
		client:  client,
		prefix:  prefix,
		timeout: 2 * time.Second,
		logger:  logger,
		queue:   make(chan publication, redisQueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Channel returns the pub/sub channel messages for to are published on.
func (r *Redis) Channel(to Audience) string {
	return r.prefix + to.Key()
}

func (r *Redis) Post(_ context.Context, to Audience, msg Message) {
	data, err := json.Marshal(Envelope{Audience: to, Message: msg})
	if err != nil {
		r.logger.Error("encoding notification", "error", err)
		return
	}
	select {
	case <-r.stop:
		return
	default:
	}
	select {
	case r.queue <- publication{channel: r.Channel(to), kind: msg.Kind, data: data}:
	default:
		r.logger.Warn("dropping notification, redis queue full", "channel", r.Channel(to), "kind", msg.Kind)
	}
}

// Close publishes what is already queued and stops the worker.
func (r *Redis) Close() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Redis) run() {
	defer close(r.done)
	for {
		select {
		case p := <-r.queue:
			r.publish(p)
		case <-r.stop:
			for {
				select {
				case p := <-r.queue:
					r.publish(p)
				default:
					return
				}
			}
		}
	}
}

func (r *Redis) publish(p publication) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Publish(ctx, p.channel, p.data).Err(); err != nil {
		r.logger.Warn("publishing notification", "channel", p.channel, "kind", p.kind, "error", err)
	}
}
