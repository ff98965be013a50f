package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper is a background worker that evicts idle connections and keeps
// the records of live ones fresh
type Reaper struct {
	hub           *Hub
	interval      time.Duration
	idleThreshold time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewReaper creates a reaper that sweeps every interval and evicts
// connections idle for longer than idleThreshold
func NewReaper(h *Hub, interval, idleThreshold time.Duration) *Reaper {
	return &Reaper{
		hub:           h,
		interval:      interval,
		idleThreshold: idleThreshold,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
	log.Info().
		Dur("interval", r.interval).
		Dur("idle_threshold", r.idleThreshold).
		Msg("Idle reaper started")
}

// Stop signals the worker to stop and waits for it to finish
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	log.Info().Msg("Idle reaper stopped")
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			r.Sweep(ctx, r.hub.now())
			cancel()
		}
	}
}

// Sweep evicts every connection idle at now and refreshes the records of
// the rest. It returns the number of evicted connections.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	evicted := 0
	for _, c := range r.hub.registry.All() {
		last := c.LastActivity()
		if now.Sub(last) > r.idleThreshold {
			if r.hub.Close(ctx, c, reasonIdle) {
				evicted++
			}
			continue
		}
		sctx, cancel := storeContext(ctx)
		if err := r.hub.records.Touch(sctx, c.ID, last); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to refresh connection record")
		}
		cancel()
	}

	if evicted > 0 {
		log.Info().Int("count", evicted).Msg("Evicted idle connections")
	}
	return evicted
}
