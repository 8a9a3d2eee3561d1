package stream

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/exchange/orderbook/internal/engine"
	"github.com/exchange/orderbook/pkg/logger"
)

func newTestPublisher(t *testing.T) (*Publisher, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewPublisher(client, "orderbook:events", logger.New("stream-test", io.Discard)), client
}

func TestPublisherWritesEventsToStream(t *testing.T) {
	p, client := newTestPublisher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *engine.Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, events)
	}()

	events <- &engine.Event{
		Type:      engine.EventTradeCreated,
		Pair:      "BTCZAR",
		Seq:       1,
		Timestamp: time.Now().UnixNano(),
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := client.XLen(ctx, "orderbook:events").Result()
		if err == nil && n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected event to be published within deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := client.XRange(ctx, "orderbook:events", "-", "+").Result()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	payload, ok := entries[0].Values["data"].(string)
	if !ok {
		t.Fatalf("expected string payload, got %T", entries[0].Values["data"])
	}
	var event engine.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if event.Type != engine.EventTradeCreated {
		t.Fatalf("expected TRADE_CREATED, got %s", event.Type)
	}
	if event.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", event.Seq)
	}
	if event.Pair != "BTCZAR" {
		t.Fatalf("expected pair BTCZAR, got %s", event.Pair)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected publisher to stop on context cancel")
	}
}

func TestPublisherStaysHealthyWhileIdle(t *testing.T) {
	p, _ := newTestPublisher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *engine.Event)
	go p.Run(ctx, events)

	// 超过一个心跳周期不发任何事件，循环仍应保持健康
	time.Sleep(2*loopTickInterval + 500*time.Millisecond)

	if ok, age, _ := p.Healthy(time.Now(), 2*loopTickInterval); !ok {
		t.Fatalf("expected idle publisher loop to stay healthy, last tick %s ago", age)
	}
}

func TestPublisherHealthTracksLoopActivity(t *testing.T) {
	p, _ := newTestPublisher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *engine.Event)
	go p.Run(ctx, events)

	deadline := time.Now().Add(time.Second)
	for {
		if ok, _, _ := p.Healthy(time.Now(), 45*time.Second); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected publisher loop to report healthy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if ok, _, _ := p.Healthy(time.Now().Add(time.Hour), 45*time.Second); ok {
		t.Fatal("expected stale loop to report unhealthy")
	}
}
