package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelforge/reelforge-api/internal/provider"
)

// poller is the supervisor entry for one generation's polling loop.
// Stopping is explicit and race-free: stop() closes the channel at most once
// and the loop's timer is drained on exit, so no orphaned tick survives a
// terminal state.
type poller struct {
	generationID string
	providerJob  string
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func newPoller(generationID, providerJob string) *poller {
	return &poller{
		generationID: generationID,
		providerJob:  providerJob,
		stopCh:       make(chan struct{}),
	}
}

func (p *poller) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// runPoller reconciles provider-side job state into local state until a
// terminal outcome or the attempt budget is exhausted. Each generation has
// its own timer; cadence and attempt count are independent across
// generations.
func (o *Orchestrator) runPoller(ctx context.Context, id, jobID string) {
	p := newPoller(id, jobID)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.pollers[id] = p
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.pollers, id)
		o.mu.Unlock()
	}()

	// An external driver may have finished the generation between the
	// GENERATING write and this registration; its teardown saw no poller to
	// stop, so check once before the first tick.
	if gen, err := o.repo.Get(ctx, id); err == nil && gen.IsTerminal() {
		return
	}

	timer := time.NewTimer(o.cfg.PollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= o.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			o.logger.Info("poller cancelled",
				slog.String("generation_id", id),
			)
			return
		case <-p.stopCh:
			return
		case <-timer.C:
		}

		if done := o.pollTick(ctx, id, jobID, attempt); done {
			return
		}

		timer.Reset(o.cfg.PollInterval)
	}

	o.fail(ctx, id, fmt.Sprintf("generation timed out after %d polling attempts", o.cfg.MaxPollAttempts))
}

// pollTick performs one reconciliation step. It returns true when polling
// should stop (the generation reached, or raced into, a terminal outcome).
//
// Transient poll errors do not fail the generation: infrastructure
// flakiness is separated from job failure, and only the attempt budget
// terminates the loop.
func (o *Orchestrator) pollTick(ctx context.Context, id, jobID string, attempt int) bool {
	res, err := o.provider.Poll(ctx, jobID)
	if err != nil {
		o.logger.Warn("provider poll failed, rescheduling",
			slog.String("generation_id", id),
			slog.String("provider_job_id", jobID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return false
	}

	switch res.Status {
	case provider.StatusSucceeded:
		if res.OutputURL == "" {
			// Terminal provider state with no payload is a contract
			// violation, not something to retry past.
			o.fail(ctx, id, "provider reported success but returned no output URL")
			return true
		}
		o.completeFromOutput(ctx, id, res.OutputURL, map[string]string{
			"provider_status": string(res.Status),
		})
		return true

	case provider.StatusFailed, provider.StatusCancelled, provider.StatusThrottled:
		msg := fmt.Sprintf("provider job %s", res.Status)
		if res.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, res.Error)
		}
		o.fail(ctx, id, msg)
		return true

	default:
		// Still pending remotely; consume the attempt and reschedule.
		o.logger.Debug("generation still pending at provider",
			slog.String("generation_id", id),
			slog.String("provider_status", string(res.Status)),
			slog.Int("attempt", attempt),
		)
		return false
	}
}
