package shardmgr

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

// shardHealth tracks the reachability of one shard's client, as
// observed by periodic Ping calls. It is purely observational — the
// Manager never consults it when routing, since spec §4.3 treats the
// configured topology as authoritative regardless of transient
// unreachability.
//
// Adapted from the teacher's HealthMonitor/NodeHealth pair: same
// ticker-driven background loop and consecutive-failure threshold,
// retargeted from node liveness to per-shard reachability and logged
// through zap instead of log.Printf.
type shardHealth struct {
	lastCheck        time.Time
	lastHealthy      time.Time
	consecutiveFails int
	healthy          bool
}

// HealthProber periodically pings every configured shard client and
// logs state transitions. Start it once after building a Manager;
// Stop it during shutdown.
type HealthProber struct {
	mgr         *Manager
	logger      *zap.Logger
	interval    time.Duration
	maxFailures int

	mu     sync.RWMutex
	status map[shardKey]*shardHealth

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthProber builds a prober that checks every shard in mgr every
// interval, marking a shard unhealthy after maxFailures consecutive
// failed pings.
func NewHealthProber(mgr *Manager, logger *zap.Logger, interval time.Duration, maxFailures int) *HealthProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthProber{
		mgr:         mgr,
		logger:      logger,
		interval:    interval,
		maxFailures: maxFailures,
		status:      make(map[shardKey]*shardHealth),
	}
}

// Start launches the background probing loop. It returns immediately;
// call Stop to shut it down.
func (p *HealthProber) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.probeAll(ctx)
			}
		}
	}()
}

// Stop cancels the probing loop and waits for it to exit.
func (p *HealthProber) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *HealthProber) probeAll(ctx context.Context) {
	snap := p.mgr.current.Load()
	for key, client := range snap.clients {
		key, client := key, client
		go p.probeOne(ctx, key, client)
	}
}

func (p *HealthProber) probeOne(ctx context.Context, key shardKey, client interface{ Ping(context.Context) error }) {
	checkCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	err := client.Ping(checkCtx)

	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.status[key]
	if !ok {
		h = &shardHealth{healthy: true}
		p.status[key] = h
	}
	h.lastCheck = time.Now()

	if err == nil {
		h.consecutiveFails = 0
		h.lastHealthy = h.lastCheck
		if !h.healthy {
			h.healthy = true
			p.logger.Info("shard recovered",
				zap.Int("element", int(key.element)), zap.Int("op", int(key.op)),
				zap.Uint32("hashRangeStart", key.hashRangeStart))
		}
		return
	}

	h.consecutiveFails++
	if h.healthy && h.consecutiveFails >= p.maxFailures {
		h.healthy = false
		p.logger.Warn("shard unreachable",
			zap.Int("element", int(key.element)), zap.Int("op", int(key.op)),
			zap.Uint32("hashRangeStart", key.hashRangeStart),
			zap.Int("consecutiveFails", h.consecutiveFails), zap.Error(err))
	}
}

// IsHealthy reports the last-observed reachability of the shard owning
// (element, op, hashRangeStart). An unprobed shard reports healthy
// until the first probe completes.
func (p *HealthProber) IsHealthy(element identity.DataElementKind, op identity.OperationKind, hashRangeStart uint32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.status[shardKey{element: element, op: op, hashRangeStart: hashRangeStart}]
	if !ok {
		return true
	}
	return h.healthy
}
