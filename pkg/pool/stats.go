package pool

import "time"

// Stats is a point-in-time snapshot of pool state and cumulative counters.
type Stats struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`

	// Created counts live connections: idle, leased or being dialed.
	Created int `json:"created"`
	Idle    int `json:"idle"`
	InUse   int `json:"in_use"`
	Waiting int `json:"waiting"`

	Acquired       int64         `json:"acquired"`
	Reused         int64         `json:"reused"`
	CreateFailures int64         `json:"create_failures"`
	WaitCount      int64         `json:"wait_count"`
	WaitDuration   time.Duration `json:"wait_duration"`
	LeaksRecovered int64         `json:"leaks_recovered"`

	Closed bool `json:"closed"`
}

// Stats returns a snapshot of the pool
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Name:           p.name,
		Capacity:       p.capacity,
		Created:        p.created,
		Idle:           len(p.idle),
		InUse:          p.leased,
		Waiting:        len(p.waiters),
		Acquired:       p.acquired,
		Reused:         p.reused,
		CreateFailures: p.createFailures,
		WaitCount:      p.waitCount,
		WaitDuration:   p.waitDuration,
		LeaksRecovered: p.leaksRecovered,
		Closed:         p.closed,
	}
}
