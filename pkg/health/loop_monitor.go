// Package health exposes liveness tracking for background loops.
package health

import (
	"sync/atomic"
	"time"
)

// LoopMonitor records heartbeats from a background loop so readiness
// probes can tell a quiet loop from a dead one. The zero value is
// ready to use; a monitor that never ticked reports unhealthy.
type LoopMonitor struct {
	lastTickUnixNano atomic.Int64
	lastErr          atomic.Value // string
}

// Tick 记录一次心跳
func (m *LoopMonitor) Tick() {
	m.lastTickUnixNano.Store(time.Now().UnixNano())
}

// SetError 记录循环最近一次错误
func (m *LoopMonitor) SetError(err error) {
	if err == nil {
		return
	}
	m.lastErr.Store(err.Error())
}

// Healthy 最近一次心跳是否在 maxAge 之内
func (m *LoopMonitor) Healthy(now time.Time, maxAge time.Duration) (ok bool, age time.Duration, lastErr string) {
	lastErr = m.lastError()
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}

	last := m.lastTickUnixNano.Load()
	if last <= 0 {
		return false, 0, lastErr
	}
	if tick := time.Unix(0, last); now.After(tick) {
		age = now.Sub(tick)
	}
	return age <= maxAge, age, lastErr
}

func (m *LoopMonitor) lastError() string {
	if v := m.lastErr.Load(); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
