package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teliris/jobscout/db"
	"github.com/teliris/jobscout/errors"
)

const (
	// TransitionChannelBufferSize is the buffer size for subscriber channels
	TransitionChannelBufferSize = 100
)

// DriverConfig contains configuration for the queue driver.
type DriverConfig struct {
	Workers         int           `json:"workers"`          // Number of concurrent workers
	PollInterval    time.Duration `json:"poll_interval"`    // How often each worker checks for claimable items
	MaxRetries      int           `json:"max_retries"`      // Transient retries per stage before the item fails
	RetryBackoff    time.Duration `json:"retry_backoff"`    // Base delay before a transient retry
	ClaimTimeout    time.Duration `json:"claim_timeout"`    // Processing items older than this are reclaimable
	ReclaimInterval time.Duration `json:"reclaim_interval"` // How often to sweep for abandoned claims
}

// DefaultDriverConfig returns sensible defaults
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Workers:         2,
		PollInterval:    time.Second,
		MaxRetries:      2,
		RetryBackoff:    30 * time.Second,
		ClaimTimeout:    5 * time.Minute,
		ReclaimInterval: time.Minute,
	}
}

// Transition describes one observed item state change, published to
// subscribers for the monitoring tail.
type Transition struct {
	ItemID     string    `json:"item_id"`
	Type       ItemType  `json:"type"`
	Stage      Stage     `json:"stage"`
	Status     Status    `json:"status"`
	SourceKey  string    `json:"source_key"`
	TrackingID string    `json:"tracking_id"`
	Depth      int       `json:"depth"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Report aggregates item counts for drain detection and the status API.
type Report struct {
	ByStatus map[Status]int `json:"by_status"`
	Total    int            `json:"total"`
}

// Pending returns the number of items still in flight.
func (r Report) Pending() int {
	return r.ByStatus[StatusPending] + r.ByStatus[StatusProcessing]
}

// Terminal returns the number of items at a terminal status.
func (r Report) Terminal() int {
	return r.ByStatus[StatusSuccess] + r.ByStatus[StatusFailed] +
		r.ByStatus[StatusFiltered] + r.ByStatus[StatusSkipped]
}

// Driver runs the claim/dispatch/persist loop over the item store.
//
// Multiple Driver instances may run against the same store; the store's
// conditional claim is the sole point of mutual exclusion between them.
type Driver struct {
	store       *Store
	guard       *SpawnGuard
	registry    *Registry
	config      DriverConfig
	parentCtx   context.Context // Parent context from which the worker context is derived
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	log         *zap.SugaredLogger
	subscribers []chan Transition
	mu          sync.Mutex
}

// NewDriver creates a queue driver.
// Callers must register stage handlers on the registry before Start().
func NewDriver(ctx context.Context, store *Store, guard *SpawnGuard, registry *Registry, cfg DriverConfig, log *zap.SugaredLogger) *Driver {
	workerCtx, cancel := context.WithCancel(ctx)

	return &Driver{
		store:     store,
		guard:     guard,
		registry:  registry,
		config:    cfg,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		log:       log.Named("driver"),
	}
}

// Store returns the underlying item store (useful for intake and tests).
func (d *Driver) Store() *Store {
	return d.store
}

// Guard returns the spawn guard.
func (d *Driver) Guard() *SpawnGuard {
	return d.guard
}

// Start begins processing items with the worker pool, plus one sweeper
// goroutine that reclaims abandoned claims.
func (d *Driver) Start() {
	d.mu.Lock()
	// If Stop() already cancelled the context, recreate it from the
	// parent before spawning workers
	select {
	case <-d.ctx.Done():
		d.ctx, d.cancel = context.WithCancel(d.parentCtx)
		d.log.Debugw("Recreated driver context after previous shutdown")
	default:
	}
	d.mu.Unlock()

	// Claims orphaned by a previous crash become claimable again after
	// the claim timeout; sweep once up front so restart is not delayed
	// by a full reclaim interval
	if reclaimed, err := d.store.ReclaimAbandoned(d.config.ClaimTimeout); err != nil {
		d.log.Warnw("Failed to reclaim abandoned items on startup", "error", err)
	} else if reclaimed > 0 {
		d.log.Infow("Reclaimed abandoned items from previous run", "count", reclaimed)
	}

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.wg.Add(1)
	go d.reclaimLoop()

	d.log.Infow("Driver started",
		"workers", d.config.Workers,
		"poll_interval", d.config.PollInterval,
		"types", d.registry.Types(),
	)
}

// Stop gracefully stops the driver. Workers release in-progress claims
// on context cancellation; a timeout bounds how long shutdown blocks.
func (d *Driver) Stop() {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		d.log.Infow("Driver stopped, all workers exited cleanly")
	case <-time.After(timeout):
		d.log.Warnw("Driver stop timeout, workers may still be releasing claims", "timeout", timeout)
	}
}

// worker processes items from the store until the context is cancelled.
func (d *Driver) worker(id int) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.processNext(); err != nil {
				select {
				case <-d.ctx.Done():
					// Shutting down; exit silently
					return
				default:
				}
				if db.IsDatabaseClosed(err) {
					// Database closed during shutdown
					return
				}

				errorCount++
				d.log.Errorw("Worker error processing item",
					"worker_id", id,
					"error", err,
					"consecutive_errors", errorCount)

				if errorCount >= maxConsecutiveErrors {
					d.log.Warnw("Worker backing off due to consecutive errors",
						"worker_id", id,
						"backoff", backoffDuration,
						"consecutive_errors", errorCount)
					time.Sleep(backoffDuration)
					backoffDuration = min(backoffDuration*2, maxBackoff)
				}
			} else {
				if errorCount > 0 {
					d.log.Infow("Worker recovered from errors",
						"worker_id", id,
						"previous_error_count", errorCount)
				}
				errorCount = 0
				backoffDuration = time.Second
			}
		}
	}
}

// processNext claims one item, dispatches it to its stage handler, and
// persists the resulting transition.
func (d *Driver) processNext() error {
	select {
	case <-d.ctx.Done():
		return nil // Graceful shutdown; don't claim new work
	default:
	}

	item, err := d.store.ClaimNext(d.registry.Types())
	if err != nil {
		return errors.Wrap(err, "failed to claim item")
	}
	if item == nil {
		return nil // Nothing claimable
	}

	handler := d.registry.Get(item.Type)
	if handler == nil {
		// Types() comes from the registry, so this means a handler was
		// unregistered mid-run
		item.Fail(errors.Newf("no handler registered for item type %s", item.Type))
		return d.persist(item)
	}

	outcome, execErr := handler.Execute(d.ctx, item)

	if execErr != nil {
		select {
		case <-d.ctx.Done():
			// Cooperative cancellation: release the claim back to
			// pending without consuming a status
			d.log.Infow("Item cancelled during execution, releasing claim",
				"item_id", item.ID, "stage", item.Stage)
			item.Release()
			if updateErr := d.store.Update(item); updateErr != nil {
				d.log.Errorw("Failed to release cancelled item",
					"item_id", item.ID, "error", updateErr)
			}
			return nil
		default:
		}

		if errors.IsTransient(execErr) && item.RetryCount < d.config.MaxRetries {
			backoff := d.config.RetryBackoff * time.Duration(item.RetryCount+1)
			d.log.Warnw("Transient stage error, scheduling retry",
				"item_id", item.ID,
				"stage", item.Stage,
				"retry", item.RetryCount+1,
				"max_retries", d.config.MaxRetries,
				"backoff", backoff,
				"error", execErr)
			item.ScheduleRetry(backoff, execErr)
			return d.persist(item)
		}

		d.log.Warnw("Stage failed",
			"item_id", item.ID,
			"stage", item.Stage,
			"transient", errors.IsTransient(execErr),
			"retries", item.RetryCount,
			"error", execErr)
		item.Fail(execErr)
		return d.persist(item)
	}

	// Spawns first: a rejected or failed spawn never affects the item's
	// own progression
	d.requestSpawns(item, outcome.Spawns)

	if outcome.Payload != nil {
		item.Payload = outcome.Payload
	}

	switch {
	case outcome.Terminal != "":
		item.Terminate(outcome.Terminal, outcome.TerminalReason)
	case outcome.Advance:
		item.Advance()
	default:
		// A handler returning neither is a bug; fail loudly rather than
		// leave the item stuck in processing
		item.Fail(errors.AssertionFailedf("handler for %s returned empty outcome", item.Type))
	}

	return d.persist(item)
}

// requestSpawns submits each candidate to the spawn guard. Rejections are
// logged and dropped; a validation error means the handler built a bad
// candidate and is logged loudly, but still never aborts the parent.
func (d *Driver) requestSpawns(parent *Item, spawns []Candidate) {
	for _, candidate := range spawns {
		spawned, err := d.guard.Request(parent, candidate)
		if err != nil {
			switch {
			case errors.IsSpawnRejection(err):
				d.log.Debugw("Spawn dropped",
					"parent_id", parent.ID,
					"candidate_source_key", candidate.SourceKey,
					"reason", err)
			case errors.Is(err, errors.ErrValidation):
				d.log.Errorw("Spawn candidate failed validation (handler bug)",
					"parent_id", parent.ID,
					"candidate_type", candidate.Type,
					"candidate_source_key", candidate.SourceKey,
					"error", err)
			default:
				d.log.Errorw("Spawn request failed",
					"parent_id", parent.ID,
					"candidate_source_key", candidate.SourceKey,
					"error", err)
			}
			continue
		}
		d.notifySubscribers(transitionOf(spawned))
	}
}

// persist writes the item back and publishes the transition.
func (d *Driver) persist(item *Item) error {
	if err := d.store.Update(item); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			// We held the claim, so a conflict means the reclaim sweeper
			// took the item back mid-flight; abandon our result
			d.log.Warnw("Lost claim while processing, abandoning result",
				"item_id", item.ID, "stage", item.Stage)
			return nil
		}
		return errors.Wrapf(err, "failed to persist item %s", item.ID)
	}

	d.notifySubscribers(transitionOf(item))
	return nil
}

// reclaimLoop periodically returns abandoned claims to pending.
func (d *Driver) reclaimLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := d.store.ReclaimAbandoned(d.config.ClaimTimeout)
			if err != nil {
				if !db.IsDatabaseClosed(err) {
					d.log.Warnw("Failed to reclaim abandoned items", "error", err)
				}
				continue
			}
			if reclaimed > 0 {
				d.log.Infow("Reclaimed abandoned items", "count", reclaimed)
			}
		}
	}
}

// DrainAndReport polls the store until no items are pending or processing
// and at least one item has reached a terminal status, then returns the
// aggregate counts. The caller bounds it via ctx; on expiry the last
// observed report is returned along with the context error.
func (d *Driver) DrainAndReport(ctx context.Context, interval time.Duration) (Report, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Report
	for {
		counts, err := d.store.CountByStatus()
		if err != nil {
			return last, errors.Wrap(err, "drain: failed to count items")
		}

		last = Report{ByStatus: counts}
		for _, c := range counts {
			last.Total += c
		}

		if last.Pending() == 0 && last.Terminal() > 0 {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return last, errors.Wrap(ctx.Err(), "drain timed out")
		case <-ticker.C:
		}
	}
}

// Subscribe returns a channel that receives item transitions.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (d *Driver) Subscribe() chan Transition {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan Transition, TransitionChannelBufferSize)
	d.subscribers = append(d.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed.
func (d *Driver) Unsubscribe(ch chan Transition) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, sub := range d.subscribers {
		if sub == ch {
			d.subscribers = append(d.subscribers[:i], d.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a transition to all subscribers.
// Non-blocking: a slow subscriber drops updates rather than stalling
// the worker.
func (d *Driver) notifySubscribers(t Transition) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ch := range d.subscribers {
		select {
		case ch <- t:
		default:
			// Channel full, skip
		}
	}
}

func transitionOf(item *Item) Transition {
	return Transition{
		ItemID:     item.ID,
		Type:       item.Type,
		Stage:      item.Stage,
		Status:     item.Status,
		SourceKey:  item.SourceKey,
		TrackingID: item.Lineage.TrackingID,
		Depth:      item.Lineage.Depth(),
		Error:      item.Error,
		At:         item.UpdatedAt,
	}
}
