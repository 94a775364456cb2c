package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SGman98/mafiabot/internal/mafia"
)

func TestAudienceKey(t *testing.T) {
	tests := []struct {
		name string
		to   Audience
		want string
	}{
		{"public", Public("R1"), "R1/general"},
		{"no roles", Private("R1"), "R1/general"},
		{"single role", Private("R1", mafia.RoleKiller), "R1/role-killer"},
		{"sorted group", Private("R1", mafia.RoleInvestigator, mafia.RoleHealer), "R1/role-healer+investigator"},
		{"innocents make it public", Private("R1", mafia.RoleKiller, mafia.RoleInnocent), "R1/general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.to.Key(); got != tt.want {
				t.Fatalf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAudienceIncludes(t *testing.T) {
	killers := Private("R1", mafia.RoleKiller)
	if !killers.Includes(mafia.RoleKiller) {
		t.Error("killer audience excludes killers")
	}
	if killers.Includes(mafia.RoleHealer) {
		t.Error("killer audience includes healers")
	}
	if !Public("R1").Includes(mafia.RoleHealer) {
		t.Error("public audience excludes healers")
	}
}

func TestBrokerDelivers(t *testing.T) {
	b := NewBroker()
	killers := Private("R1", mafia.RoleKiller)
	ch := b.Subscribe(killers.Key())
	defer b.Unsubscribe(ch, killers.Key())
	other := b.Subscribe(Public("R1").Key())
	defer b.Unsubscribe(other, Public("R1").Key())

	b.Post(context.Background(), killers, Message{Kind: KindBallot, Title: "Vote"})

	select {
	case data := <-ch:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decoding envelope: %v", err)
		}
		if env.Message.Kind != KindBallot || env.Audience.Key() != killers.Key() {
			t.Fatalf("envelope = %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("no envelope delivered")
	}

	select {
	case data := <-other:
		t.Fatalf("public subscriber got private envelope %s", data)
	default:
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	key := Public("R1").Key()
	ch := b.Subscribe(key)

	for range 100 {
		b.Publish(key, Envelope{Audience: Public("R1"), Message: Message{Kind: KindCountdown}})
	}
	if got := len(ch); got != cap(ch) {
		t.Fatalf("buffered = %d, want %d", got, cap(ch))
	}

	b.Unsubscribe(ch, key)
	b.Publish(key, Envelope{})
	if got := len(ch); got != cap(ch) {
		t.Fatalf("unsubscribed channel received more envelopes")
	}
}

func TestLogPost(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	l.Post(context.Background(), Private("R1", mafia.RoleHealer), Message{Kind: KindBallot, Title: "Vote"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	if entry["audience"] != "R1/role-healer" || entry["kind"] != string(KindBallot) {
		t.Fatalf("log entry = %v", entry)
	}
}

type countNotifier struct{ n int }

func (c *countNotifier) Post(context.Context, Audience, Message) { c.n++ }

func TestMulti(t *testing.T) {
	a, b := &countNotifier{}, &countNotifier{}
	Multi{a, nil, b}.Post(context.Background(), Public("R1"), Message{})
	if a.n != 1 || b.n != 1 {
		t.Fatalf("posts = %d, %d, want 1, 1", a.n, b.n)
	}
}

func TestRedisChannel(t *testing.T) {
	r := NewRedis(nil, "mafiabot:", slog.Default())
	defer r.Close()
	if got := r.Channel(Private("R1", mafia.RoleKiller)); got != "mafiabot:R1/role-killer" {
		t.Fatalf("Channel = %q", got)
	}
}

func TestRedisPostUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	var buf bytes.Buffer
	r := NewRedis(client, "mafiabot:", slog.New(slog.NewTextHandler(&buf, nil)))
	r.Post(context.Background(), Public("R1"), Message{Kind: KindGameOver})
	r.Close()

	if !strings.Contains(buf.String(), "publishing notification") {
		t.Fatalf("log = %q, want a publish warning", buf.String())
	}
}

// stalledServer accepts connections and never answers.
func stalledServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	return ln.Addr().String()
}

func TestRedisPostDoesNotBlock(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:       stalledServer(t),
		MaxRetries: -1,
	})
	defer client.Close()

	var buf bytes.Buffer
	r := NewRedis(client, "mafiabot:", slog.New(slog.NewTextHandler(&buf, nil)))
	r.timeout = 100 * time.Millisecond

	start := time.Now()
	for range redisQueueSize + 50 {
		r.Post(context.Background(), Public("R1"), Message{Kind: KindCountdown})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("posting took %s while redis was stalled", elapsed)
	}

	// Drop the backlog so Close does not wait on every stalled publish.
	for len(r.queue) > 0 {
		<-r.queue
	}
	r.Close()

	if !strings.Contains(buf.String(), "redis queue full") {
		t.Fatalf("log = %q, want a queue-full warning", buf.String())
	}
}
