package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudreg/regsync/internal/cache"
	"github.com/cloudreg/regsync/internal/collector"
	engerrors "github.com/cloudreg/regsync/internal/errors"
	"github.com/cloudreg/regsync/internal/executor"
	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/internal/notify"
	"github.com/cloudreg/regsync/internal/planner"
	"github.com/cloudreg/regsync/internal/providers"
	"github.com/cloudreg/regsync/internal/registry"
	"github.com/cloudreg/regsync/pkg/config"
	"github.com/cloudreg/regsync/pkg/types"
)

// Engine drives one reconciliation run: collect cloud inventories, list
// the registry, plan per provider scope, apply, aggregate, notify.
type Engine struct {
	cfg       *config.Config
	client    registry.Client
	notifier  notify.Notifier
	factories *providers.Registry
	newCache  func() cache.Manager
	log       logger.Logger
}

// New wires an Engine from configuration. Every run owns a fresh cache
// instance, so a second run always re-reads the post-mutation state.
func New(cfg *config.Config, client registry.Client, notifier notify.Notifier, log logger.Logger) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Engine{
		cfg:       cfg,
		client:    client,
		notifier:  notifier,
		factories: providers.DefaultRegistry(),
		newCache:  cache.NewManager,
		log:       log,
	}
}

// WithProviderRegistry swaps the provider factory registry. Tests use this
// to install fakes without touching the process-wide registry.
func (e *Engine) WithProviderRegistry(r *providers.Registry) *Engine {
	e.factories = r
	return e
}

// scope is one provider config's slice of the run.
type scope struct {
	cfg      config.ProviderConfig
	nodePath string
	cloud    []*types.AssetRecord
	plan     *types.SyncPlan
	readErr  error
}

// Plan collects and diffs without mutating the registry. Scopes whose
// registry listing failed carry a nil plan.
func (e *Engine) Plan(ctx context.Context) ([]*types.SyncPlan, error) {
	scopes, err := e.buildScopes(ctx, e.newCache())
	if err != nil {
		return nil, err
	}
	plans := make([]*types.SyncPlan, 0, len(scopes))
	for _, s := range scopes {
		if s.readErr != nil {
			return nil, s.readErr
		}
		plans = append(plans, s.plan)
	}
	return plans, nil
}

// Run executes a full reconciliation pass and returns the run summary.
// Scope-level failures are recorded in the summary; only pre-flight
// connectivity failure and total collection failure return an error.
func (e *Engine) Run(ctx context.Context) (*types.RunSummary, error) {
	if e.cfg.Sync.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Sync.RunTimeout)
		defer cancel()
	}

	summary := &types.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	e.log.WithField("run_id", summary.RunID).Info("starting sync run")

	scopes, err := e.buildScopes(ctx, e.newCache())
	if err != nil {
		return nil, err
	}

	exec := executor.New(e.client, executor.Options{
		BatchSize:     e.cfg.Sync.BatchSize,
		Workers:       e.cfg.Sync.ApplyWorkers,
		MaxAttempts:   e.cfg.Sync.RetryMaxAttempts,
		RetryInterval: e.cfg.Sync.RetryInterval,
	}, e.log)

	for _, s := range scopes {
		started := time.Now()

		if s.readErr != nil {
			outcomes := skipAll(s.cloud, "registry-read-failed")
			summary.Results = append(summary.Results,
				aggregate(s.cfg.Type, s.cfg.Name, s.nodePath, outcomes, started, s.readErr))
			continue
		}

		outcomes, applyErr := exec.Apply(ctx, s.plan)
		if applyErr != nil && engerrors.IsFatal(applyErr) {
			return nil, applyErr
		}
		res := aggregate(s.cfg.Type, s.cfg.Name, s.nodePath, outcomes, started, applyErr)
		summary.Results = append(summary.Results, res)

		e.log.WithFields(map[string]interface{}{
			"node_path": s.nodePath,
			"created":   res.Counts.Created,
			"updated":   res.Counts.Updated,
			"deleted":   res.Counts.Deleted,
			"skipped":   res.Counts.Skipped,
			"failed":    res.Counts.Failed,
		}).Info("scope reconciled")
	}

	summary.Duration = time.Since(summary.StartedAt)
	summary.Created = mergeRecords(summary.Results, types.OpCreate)
	summary.Updated = mergeRecords(summary.Results, types.OpUpdate)
	summary.Deleted = mergeRecords(summary.Results, types.OpDelete)

	if err := e.notifier.Notify(ctx, summary); err != nil {
		e.log.Error("failed to deliver run summary", err)
	}
	return summary, nil
}

// buildScopes collects all provider inventories, lists the registry per
// node path, and plans each scope. The cache is run-scoped: it memoizes
// repeated reads within one pass and is discarded with it.
func (e *Engine) buildScopes(ctx context.Context, runCache cache.Manager) ([]scope, error) {
	cfgs := e.cfg.EnabledProviders()
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no enabled providers configured")
	}

	provs := make([]providers.Provider, 0, len(cfgs))
	for _, pc := range cfgs {
		p, err := e.factories.Build(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s/%s: %w", pc.Type, pc.Name, err)
		}
		provs = append(provs, p)
	}

	coll := collector.New(e.cfg.Sync.CollectWorkers, e.cfg.Sync.CacheTTL, runCache, e.log)
	collected, err := coll.Collect(ctx, provs, cfgs)
	if err != nil {
		return nil, err
	}

	byScope := make(map[string][]*types.AssetRecord)
	for _, rec := range collected.Records {
		byScope[rec.NodePath()] = append(byScope[rec.NodePath()], rec)
	}

	pl := planner.New(planner.Policy{
		Whitelist:    e.cfg.Sync.Whitelist,
		ProtectedIPs: e.cfg.Sync.ProtectedIPs,
		NoDelete:     e.cfg.Sync.NoDelete,
	}, e.log)

	scopes := make([]scope, 0, len(cfgs))
	for _, pc := range cfgs {
		s := scope{cfg: pc, nodePath: types.NodePathFor(pc.Type, pc.Name)}
		s.cloud = byScope[s.nodePath]

		reg, err := e.listRegistry(ctx, runCache, s.nodePath)
		if err != nil {
			e.log.WithField("node_path", s.nodePath).Error("registry listing failed, scope skipped", err)
			s.readErr = err
			scopes = append(scopes, s)
			continue
		}

		s.plan = pl.BuildPlan(s.nodePath, s.cloud, reg)
		scopes = append(scopes, s)
	}
	return scopes, nil
}

func (e *Engine) listRegistry(ctx context.Context, runCache cache.Manager, nodePath string) ([]*types.AssetRecord, error) {
	key := cache.Key("list_assets", nodePath)
	v, err := runCache.GetOrCompute(key, e.cfg.Sync.CacheTTL, func() (interface{}, error) {
		return e.client.ListAssets(ctx, nodePath)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.AssetRecord), nil
}

func skipAll(recs []*types.AssetRecord, reason string) []types.ItemOutcome {
	outcomes := make([]types.ItemOutcome, 0, len(recs))
	for _, rec := range recs {
		outcomes = append(outcomes, types.ItemOutcome{
			Op: types.OpCreate, Record: rec, Status: types.StatusSkipped, Reason: reason,
		})
	}
	return outcomes
}
