package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	engerrors "github.com/cloudreg/regsync/internal/errors"
	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/internal/registry"
	"github.com/cloudreg/regsync/pkg/types"
)

// Options bounds the executor's batching and retry behavior.
type Options struct {
	BatchSize     int
	Workers       int
	MaxAttempts   int
	RetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 2 * time.Second
	}
	return o
}

// Executor applies a SyncPlan against the registry in batches over a
// bounded worker pool, with per-item retry and failure isolation.
type Executor struct {
	client registry.Client
	opts   Options
	log    logger.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

func New(client registry.Client, opts Options, log logger.Logger) *Executor {
	return &Executor{
		client:  client,
		opts:    opts.withDefaults(),
		log:     log,
		ensured: make(map[string]bool),
	}
}

// Apply executes the plan's creates, updates, then deletes. A failing item
// never blocks its siblings. The registry is pinged before the first
// mutation; a failing ping aborts with a fatal error and no outcomes.
func (e *Executor) Apply(ctx context.Context, plan *types.SyncPlan) ([]types.ItemOutcome, error) {
	outcomes := make([]types.ItemOutcome, 0, plan.Size()+len(plan.Skips))

	for _, skip := range plan.Skips {
		outcomes = append(outcomes, types.ItemOutcome{
			Op: skip.Op, Record: skip.Record, Status: types.StatusSkipped, Reason: string(skip.Reason),
		})
	}
	if plan.Empty() {
		return outcomes, nil
	}

	if err := e.client.Ping(ctx); err != nil {
		return nil, err
	}

	// A failed node ensure sinks this scope's creates and updates, not
	// the run: deletes target existing assets and still proceed.
	if len(plan.Creates) > 0 || len(plan.Updates) > 0 {
		if err := e.ensureNode(ctx, plan.NodePath); err != nil {
			e.log.WithField("node_path", plan.NodePath).Error("failed to ensure node path", err)
			for _, seq := range [][]types.PlannedChange{plan.Creates, plan.Updates} {
				for _, change := range seq {
					outcomes = append(outcomes, types.ItemOutcome{
						Op: change.Op, Record: change.Record, Status: types.StatusFailed,
						Reason: "node-ensure-failed", Error: err.Error(),
					})
				}
			}
			applied, err := e.applySequence(ctx, plan.Deletes)
			outcomes = append(outcomes, applied...)
			return outcomes, err
		}
	}

	for _, seq := range [][]types.PlannedChange{plan.Creates, plan.Updates, plan.Deletes} {
		applied, err := e.applySequence(ctx, seq)
		outcomes = append(outcomes, applied...)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// ensureNode creates missing node path segments once per distinct path for
// the executor's lifetime.
func (e *Executor) ensureNode(ctx context.Context, nodePath string) error {
	e.mu.Lock()
	done := e.ensured[nodePath]
	e.mu.Unlock()
	if done {
		return nil
	}

	if _, err := e.client.EnsureNode(ctx, nodePath); err != nil {
		return err
	}

	e.mu.Lock()
	e.ensured[nodePath] = true
	e.mu.Unlock()
	return nil
}

// applySequence slices one op sequence into batches and runs each batch on
// a bounded pool. Batches run sequentially; cancellation is honored between
// batches and between item attempts, letting in-flight items finish.
func (e *Executor) applySequence(ctx context.Context, seq []types.PlannedChange) ([]types.ItemOutcome, error) {
	outcomes := make([]types.ItemOutcome, len(seq))

	for start := 0; start < len(seq); start += e.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(seq); i++ {
				outcomes[i] = skippedOutcome(seq[i], "run cancelled")
			}
			return outcomes, err
		}

		end := start + e.opts.BatchSize
		if end > len(seq) {
			end = len(seq)
		}

		sem := make(chan struct{}, e.opts.Workers)
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				outcomes[i] = e.applyItem(ctx, seq[i])
			}(i)
		}
		wg.Wait()
	}
	return outcomes, nil
}

// applyItem drives one change through the retry state machine: transient
// failures back off and retry up to MaxAttempts, permanent failures stop
// immediately.
func (e *Executor) applyItem(ctx context.Context, change types.PlannedChange) types.ItemOutcome {
	outcome := types.ItemOutcome{Op: change.Op, Record: change.Record, Reason: string(change.Reason)}

	interval := e.opts.RetryInterval
	var err error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		outcome.Attempts = attempt
		var registryID string
		registryID, err = e.dispatch(ctx, change)
		if err == nil {
			outcome.Status = types.StatusSucceeded
			// plan records stay immutable; the assigned ID rides on a
			// clone in the outcome
			if registryID != "" && change.Record.RegistryID != registryID {
				rec := change.Record.Clone()
				rec.RegistryID = registryID
				outcome.Record = rec
			}
			return outcome
		}
		if !engerrors.IsTransient(err) || attempt == e.opts.MaxAttempts {
			break
		}

		e.log.WithFields(map[string]interface{}{
			"op":      string(change.Op),
			"asset":   change.Record.Hostname,
			"attempt": attempt,
			"backoff": interval.String(),
		}).Warn("transient apply failure, retrying")

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			outcome.Status = types.StatusFailed
			outcome.Error = fmt.Sprintf("%v (cancelled after attempt %d)", err, attempt)
			return outcome
		}
		interval *= 2
	}

	outcome.Status = types.StatusFailed
	outcome.Error = err.Error()
	if engerrors.IsTransient(err) {
		outcome.Reason = "transient-exhausted"
	} else {
		outcome.Reason = "permanent"
	}
	e.log.WithFields(map[string]interface{}{
		"op":       string(change.Op),
		"asset":    change.Record.Hostname,
		"attempts": outcome.Attempts,
	}).Error("apply failed", err)
	return outcome
}

// dispatch applies one change and returns the registry ID it now lives
// under, without touching the plan's records.
func (e *Executor) dispatch(ctx context.Context, change types.PlannedChange) (string, error) {
	switch change.Op {
	case types.OpCreate:
		return e.client.CreateAsset(ctx, change.Record)
	case types.OpUpdate:
		rec := change.Record.Clone()
		rec.RegistryID = change.Existing.RegistryID
		if err := e.client.UpdateAsset(ctx, change.Existing.RegistryID, rec); err != nil {
			return "", err
		}
		return change.Existing.RegistryID, nil
	case types.OpDelete:
		return "", e.client.DeleteAsset(ctx, change.Existing.RegistryID)
	default:
		return "", engerrors.New(engerrors.KindApplyPermanent, fmt.Sprintf("unknown operation %q", change.Op))
	}
}

func skippedOutcome(change types.PlannedChange, reason string) types.ItemOutcome {
	return types.ItemOutcome{
		Op: change.Op, Record: change.Record, Status: types.StatusSkipped,
		Reason: string(change.Reason), Error: reason,
	}
}
