// Package stream 将撮合事件发布到 Redis Stream
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/exchange/orderbook/internal/engine"
	"github.com/exchange/orderbook/internal/metrics"
	"github.com/exchange/orderbook/pkg/health"
	"github.com/exchange/orderbook/pkg/logger"
)

const (
	publishTimeout   = 2 * time.Second
	maxBackoff       = 2 * time.Second
	loopTickInterval = time.Second
)

// Publisher 事件发布器
//
// 消费引擎事件通道并通过 XADD 写入输出流，供下游
// （清算、行情落地等）消费。发布失败按指数退避重试。
type Publisher struct {
	redis  *redis.Client
	stream string
	log    *logger.Logger
	loop   health.LoopMonitor
}

// NewPublisher 创建发布器
func NewPublisher(client *redis.Client, stream string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.New("stream", nil)
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		log:    log,
	}
}

// Run 消费事件直到 ctx 结束
//
// 空闲时也周期性上报心跳，没有事件不代表循环不健康。
func (p *Publisher) Run(ctx context.Context, events <-chan *engine.Event) {
	p.loop.Tick()
	ticker := time.NewTicker(loopTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.loop.Tick()
		case event := <-events:
			p.loop.Tick()
			if event == nil {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				p.log.WithError(err).Warn("marshal event error")
				continue
			}

			if err := p.publish(ctx, data); err != nil && ctx.Err() == nil {
				p.loop.SetError(err)
				p.log.WithError(err).Warn("publish event error")
			}
		}
	}
}

// Healthy 发布循环是否仍在运转
func (p *Publisher) Healthy(now time.Time, maxAge time.Duration) (bool, time.Duration, string) {
	return p.loop.Healthy(now, maxAge)
}

func (p *Publisher) publish(ctx context.Context, payload []byte) error {
	backoff := 200 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		_, err := p.redis.XAdd(sendCtx, &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]interface{}{
				"data": string(payload),
			},
		}).Result()
		cancel()
		if err == nil {
			return nil
		}
		metrics.IncPublishError(p.stream)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
