package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/relay-bot/internal/model"
	"github.com/capitalize-ai/relay-bot/pkg/metrics"
)

// Sweep drops the conversation buffer and cooldown record of every channel
// idle for longer than the configured threshold. Channels with work in
// flight are skipped; they are not idle.
func (r *Relay) Sweep(ctx context.Context, now time.Time) []model.ChannelID {
	activity := r.gate.Activity()
	for _, id := range r.store.Channels() {
		if _, ok := activity[id]; !ok {
			activity[id] = time.Time{}
		}
	}

	locked := make(map[model.ChannelID]time.Time)
	var unlocks []func()
	defer func() {
		for _, unlock := range unlocks {
			unlock()
		}
	}()

	for id, last := range activity {
		if now.Sub(last) <= r.cfg.IdleThreshold {
			continue
		}
		unlock, ok := r.locks.TryLock(id)
		if !ok {
			continue
		}
		unlocks = append(unlocks, unlock)

		// A request may have passed the gate after Activity was sampled.
		if fresh, ok := r.gate.LastRequest(id); ok {
			last = fresh
		}
		locked[id] = last
	}

	evicted := r.store.EvictIdle(now, r.cfg.IdleThreshold, locked)
	for _, id := range evicted {
		r.gate.ForgetIdle(id, now, r.cfg.IdleThreshold)
	}

	if len(evicted) > 0 {
		metrics.EvictionsTotal.Add(float64(len(evicted)))
		for _, id := range evicted {
			r.publish(ctx, r.logger, id, model.EventTypeEvicted, "idle", nil)
		}
	}
	metrics.ActiveChannels.Set(float64(len(r.store.Channels())))

	return evicted
}

// DefaultSweepInterval is used when RunSweeper gets a non-positive interval.
const DefaultSweepInterval = time.Hour

// RunSweeper waits for ready, then sweeps every interval until ctx is done.
func (r *Relay) RunSweeper(ctx context.Context, interval time.Duration, ready <-chan struct{}) error {
	if interval <= 0 {
		r.logger.Warn("non-positive sweep interval, using default",
			zap.Duration("interval", interval),
			zap.Duration("default", DefaultSweepInterval),
		)
		interval = DefaultSweepInterval
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return nil
	}

	r.logger.Info("idle sweeper started",
		zap.Duration("interval", interval),
		zap.Duration("threshold", r.cfg.IdleThreshold),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if evicted := r.Sweep(ctx, r.now()); len(evicted) > 0 {
				r.logger.Info("evicted idle channels", zap.Int("count", len(evicted)))
			}
		}
	}
}
