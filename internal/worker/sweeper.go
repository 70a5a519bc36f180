package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/craftbridge/backend/internal/config"
	"github.com/craftbridge/backend/internal/services"
)

// Sweeper periodically releases held escrows whose auto-release date has
// passed with no open dispute. Each escrow is processed independently: a
// failure is logged and the sweep moves on. The release itself re-checks
// status under a row lock, so two sweepers (or a sweeper racing an admin)
// resolve the same escrow exactly once.
type Sweeper struct {
	escrow *services.EscrowService
	cfg    *config.Platform
}

func NewSweeper(escrow *services.EscrowService, cfg *config.Platform) *Sweeper {
	return &Sweeper{escrow: escrow, cfg: cfg}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		log.Printf("[SWEEP] auto-release sweeper started (interval %s)", s.cfg.SweepInterval)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[SWEEP] auto-release sweeper stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single sweep pass and reports how many escrows were
// released.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	ids, err := s.escrow.ReleaseDueIDs(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		log.Printf("[SWEEP] failed to list due escrows: %v", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	released := 0
	for _, id := range ids {
		_, err := s.escrow.Release(ctx, "system", "system", id, true)
		if err != nil {
			// Lost races are expected when an admin or a second sweeper got
			// there first.
			if errors.Is(err, services.ErrAlreadyFinalized) {
				continue
			}
			log.Printf("[SWEEP] release of escrow %s failed: %v", id, err)
			continue
		}
		released++
	}

	log.Printf("[SWEEP] pass complete: %d candidates, %d released", len(ids), released)
	return released
}
