package pool

import (
	"fmt"
	"time"
)

// queueWarnRatio is the queue utilization that HealthCheck flags.
const queueWarnRatio = 0.8

// Health is the result of HealthCheck.
type Health struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
}

// HealthCheck inspects the pool for an external monitor. It flags a pool
// without live units, a queue at or above 80% of MaxQueueSize, saturation
// (every unit busy while tasks wait), and queued tasks that already waited
// longer than half of TaskTimeout. It has no side effects.
func (p *Pool) HealthCheck() Health {
	p.mu.Lock()
	defer p.mu.Unlock()

	var issues []string
	units := len(p.units)
	queued := p.queue.Len()

	if units == 0 {
		issues = append(issues, "no live execution units")
	}
	if ratio := float64(queued) / float64(p.opt.MaxQueueSize); ratio >= queueWarnRatio {
		issues = append(issues, fmt.Sprintf("queue utilization %.0f%% (%d/%d)", ratio*100, queued, p.opt.MaxQueueSize))
	}
	if units > 0 && queued > 0 && p.busyLocked() == units {
		issues = append(issues, fmt.Sprintf("all %d units busy with %d tasks queued", units, queued))
	}

	limit := p.opt.TaskTimeout / 2
	now := time.Now()
	stale := 0
	for _, t := range p.queue {
		if now.Sub(t.enqueuedAt) > limit {
			stale++
		}
	}
	if stale > 0 {
		issues = append(issues, fmt.Sprintf("%d tasks queued longer than %s", stale, limit))
	}

	return Health{Healthy: len(issues) == 0, Issues: issues}
}
