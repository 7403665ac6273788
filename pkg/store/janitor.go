package store

import (
	"context"
	"sync"
	"time"

	"github.com/zarrbench/zarrbench/pkg/logging"
)

// JanitorConfig defines retention policy for terminal job records
type JanitorConfig struct {
	Retention time.Duration // how long terminal records are kept
	Interval  time.Duration // how often to sweep
}

// DefaultJanitorConfig returns sensible defaults for in-memory retention
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Retention: 24 * time.Hour,
		Interval:  10 * time.Minute,
	}
}

// Janitor periodically evicts old terminal job records to bound memory.
// Pending and running records are never evicted.
type Janitor struct {
	store  *MemoryStore
	config JanitorConfig
	log    *logging.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	totalEvicted int64
	lastSweep    time.Time
}

// NewJanitor creates a janitor for the given store
func NewJanitor(s *MemoryStore, config JanitorConfig, log *logging.Logger) *Janitor {
	return &Janitor{
		store:  s,
		config: config,
		log:    log,
	}
}

// Start begins the background sweep loop
func (j *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	j.log.Info("Job janitor started", map[string]interface{}{
		"retention": j.config.Retention.String(),
		"interval":  j.config.Interval.String(),
	})
}

// Stop halts the sweep loop and waits for an in-progress sweep to finish
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) sweep() {
	evicted := j.store.EvictTerminal(j.config.Retention)

	j.mu.Lock()
	j.totalEvicted += int64(evicted)
	j.lastSweep = time.Now()
	j.mu.Unlock()

	if evicted > 0 {
		j.log.Info("Evicted terminal job records", map[string]interface{}{
			"evicted": evicted,
		})
	}
}

// TotalEvicted returns the number of records evicted since start
func (j *Janitor) TotalEvicted() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalEvicted
}
