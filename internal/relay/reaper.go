package relay

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically evicts clients whose last-seen time exceeds the
// heartbeat timeout. It is the only eviction path not triggered by an
// explicit disconnect or kick. Closing the evicted client's connection also
// terminates its stuck receive goroutine.
type Reaper struct {
	engine   *Server
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	quit    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewReaper creates a liveness reaper.
//
// Precondition: engine and logger must be non-nil; interval and timeout must be positive.
func NewReaper(engine *Server, interval, timeout time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		engine:   engine,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		quit:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. This method blocks.
func (r *Reaper) Start() error {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	r.logger.Info("reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("timeout", r.timeout),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.quit:
			return nil
		}
	}
}

// Stop terminates the sweep loop.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.quit)
	r.logger.Info("reaper stopped")
}

// sweep evicts every stale client. Each eviction is independent: one
// client's teardown never prevents the next from being evicted.
func (r *Reaper) sweep() {
	stale := r.engine.registry.Stale(r.timeout)
	for _, id := range stale {
		r.logger.Info("evicting stale client",
			zap.String("client_id", id),
			zap.Duration("timeout", r.timeout),
		)
		r.engine.Teardown(id)
	}
}
