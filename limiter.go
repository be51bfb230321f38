package main

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// PacingSemaphore enforces a minimum interval between permitted calls
// across every bot in the process. The token is released on a
// background timer rather than by the caller, so two acquisitions can
// never complete closer together than the configured delay.
type PacingSemaphore struct {
	sem   *semaphore.Weighted
	delay time.Duration
}

// NewPacingSemaphore creates a pacing semaphore with the given minimum
// spacing. A zero delay disables pacing entirely.
func NewPacingSemaphore(delay time.Duration) *PacingSemaphore {
	return &PacingSemaphore{
		sem:   semaphore.NewWeighted(1),
		delay: delay,
	}
}

// Wait blocks until the caller is allowed to proceed. The permit is
// handed back automatically after the configured delay.
func (p *PacingSemaphore) Wait(ctx context.Context) error {
	if p.delay == 0 {
		return nil
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	time.AfterFunc(p.delay, func() {
		p.sem.Release(1)
	})

	return nil
}

// HostLimiter bounds concurrent outbound HTTP calls per destination
// host. All bots hitting the same host share one semaphore.
type HostLimiter struct {
	mutex    sync.Mutex
	capacity int64
	hosts    map[string]*semaphore.Weighted
}

// NewHostLimiter creates a limiter allowing up to capacity concurrent
// calls per host.
func NewHostLimiter(capacity int) *HostLimiter {
	return &HostLimiter{
		capacity: int64(capacity),
		hosts:    make(map[string]*semaphore.Weighted),
	}
}

func (h *HostLimiter) forHost(host string) *semaphore.Weighted {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sem, ok := h.hosts[host]
	if !ok {
		sem = semaphore.NewWeighted(h.capacity)
		h.hosts[host] = sem
	}

	return sem
}

// Acquire blocks until a connection slot for the host is available.
func (h *HostLimiter) Acquire(ctx context.Context, host string) error {
	return h.forHost(host).Acquire(ctx, 1)
}

// Release returns a connection slot for the host.
func (h *HostLimiter) Release(host string) {
	h.forHost(host).Release(1)
}
