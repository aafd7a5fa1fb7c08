package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/connectivity"
	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

// defaultResetDelay is how long a terminal state stays visible before the
// machine returns to Idle.
const defaultResetDelay = 3 * time.Second

// AttractionSyncer runs one attraction delta pass. Satisfied by
// *Engine[models.Attraction].
type AttractionSyncer interface {
	Sync(ctx context.Context) models.SyncResult
}

// BulkReviewSyncer runs one global review pass. Satisfied by *ReviewSyncer.
type BulkReviewSyncer interface {
	BulkSync(ctx context.Context) models.SyncResult
}

// Orchestrator is the single entry point for a full sync run. It sequences
// connectivity check, attraction sync, and review bulk sync, and publishes
// an observable state machine: Idle -> Syncing -> Succeeded|Failed -> Idle.
type Orchestrator struct {
	attractions AttractionSyncer
	reviews     BulkReviewSyncer
	probe       connectivity.Probe
	resetDelay  time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	state       models.SyncState
	stateGen    int
	syncing     bool
	subscribers map[int]chan models.SyncState
	nextSubID   int
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithResetDelay overrides how long terminal states are held before
// auto-resetting to Idle.
func WithResetDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.resetDelay = d
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	attractions AttractionSyncer,
	reviews BulkReviewSyncer,
	probe connectivity.Probe,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		attractions: attractions,
		reviews:     reviews,
		probe:       probe,
		resetDelay:  defaultResetDelay,
		logger:      slog.Default(),
		state:       models.SyncState{Phase: models.SyncPhaseIdle},
		subscribers: make(map[int]chan models.SyncState),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state machine value.
func (o *Orchestrator) State() models.SyncState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers an observer. The current state is delivered
// immediately; the returned function unsubscribes. Slow observers miss
// intermediate states rather than blocking the machine.
func (o *Orchestrator) Subscribe() (<-chan models.SyncState, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSubID
	o.nextSubID++
	ch := make(chan models.SyncState, 4)
	ch <- o.state
	o.subscribers[id] = ch

	unsubscribe := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// TriggerSync runs one full sync. At most one run is active at a time; a
// concurrent trigger is rejected immediately with AlreadyInProgress.
func (o *Orchestrator) TriggerSync(ctx context.Context) models.SyncResult {
	o.mu.Lock()
	if o.syncing {
		o.mu.Unlock()
		o.logger.Debug("Sync already in progress, rejecting trigger")
		return models.FailedResult(models.ErrorKindAlreadyInProgress)
	}
	o.syncing = true
	o.mu.Unlock()

	o.publish(models.SyncState{Phase: models.SyncPhaseSyncing})
	o.logger.Info("Starting sync run")

	result := o.run(ctx)

	if result.Success {
		o.logger.Info("Sync run completed",
			"added", result.Added,
			"updated", result.Updated,
			"deleted", result.Deleted)
		o.finish(models.SyncState{Phase: models.SyncPhaseSucceeded, Result: result})
	} else {
		o.logger.Warn("Sync run failed", "kind", string(result.Err))
		o.finish(models.SyncState{
			Phase:   models.SyncPhaseFailed,
			Result:  result,
			Message: fmt.Sprintf("sync failed: %s", result.Err),
		})
	}
	return result
}

// run executes the sync sequence. Attraction sync strictly precedes the
// review bulk pass because reviews reference attraction ids; attraction
// progress is retained even when the review phase fails.
func (o *Orchestrator) run(ctx context.Context) models.SyncResult {
	if !o.probe.Online(ctx) {
		return models.FailedResult(models.ErrorKindOffline)
	}

	attractionResult := o.attractions.Sync(ctx)
	if !attractionResult.Success {
		return attractionResult
	}

	reviewResult := o.reviews.BulkSync(ctx)
	return attractionResult.Merge(reviewResult)
}

// finish publishes a terminal state and schedules the reset to Idle.
func (o *Orchestrator) finish(state models.SyncState) {
	gen := o.publish(state)

	time.AfterFunc(o.resetDelay, func() {
		o.mu.Lock()
		// A newer state has been published in the meantime; leave it alone.
		if o.stateGen != gen {
			o.mu.Unlock()
			return
		}
		o.publishLocked(models.SyncState{Phase: models.SyncPhaseIdle})
		o.mu.Unlock()
	})

	o.mu.Lock()
	o.syncing = false
	o.mu.Unlock()
}

func (o *Orchestrator) publish(state models.SyncState) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.publishLocked(state)
}

func (o *Orchestrator) publishLocked(state models.SyncState) int {
	o.state = state
	o.stateGen++
	for _, sub := range o.subscribers {
		select {
		case sub <- state:
		default:
		}
	}
	return o.stateGen
}
