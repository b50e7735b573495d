package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudreg/regsync/internal/cache"
	engerrors "github.com/cloudreg/regsync/internal/errors"
	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/internal/providers"
	"github.com/cloudreg/regsync/pkg/config"
	"github.com/cloudreg/regsync/pkg/types"
)

// ErrAllPairsFailed is returned when every provider×region pair failed:
// an empty inventory is indistinguishable from "delete everything", which
// must never happen implicitly.
var ErrAllPairsFailed = fmt.Errorf("all provider/region pairs failed to list instances")

// PairResult holds one provider×region listing outcome.
type PairResult struct {
	ProviderType string
	ProviderName string
	Region       string
	Records      []*types.AssetRecord
	Err          error
	Duration     time.Duration
}

// Result is the output of one collection pass: records in stable pair
// order plus the per-pair failures that were isolated along the way.
type Result struct {
	Records  []*types.AssetRecord
	Failures []PairResult
	Pairs    int
}

// Collector queries each enabled provider×region pair concurrently over a
// bounded worker pool and normalizes instances into AssetRecords.
type Collector struct {
	workers int
	ttl     time.Duration
	cache   cache.Manager
	log     logger.Logger
}

// New builds a Collector. workers bounds concurrent listings; ttl bounds
// memoization of provider reads within the run.
func New(workers int, ttl time.Duration, c cache.Manager, log logger.Logger) *Collector {
	if workers <= 0 {
		workers = 4
	}
	return &Collector{workers: workers, ttl: ttl, cache: c, log: log}
}

type pair struct {
	provider providers.Provider
	cfg      config.ProviderConfig
	region   string
	index    int
}

// Collect lists instances for every provider×region pair. Failures in one
// pair are logged and excluded, never aborting the pass, unless all pairs
// fail, which returns ErrAllPairsFailed. Record ordering is stable:
// provider config order, then region order, then provider API order.
func (c *Collector) Collect(ctx context.Context, provs []providers.Provider, cfgs []config.ProviderConfig) (*Result, error) {
	var pairs []pair
	for i, p := range provs {
		regions := cfgs[i].Regions
		if len(regions) == 0 {
			regions = []string{"cluster"}
		}
		for _, region := range regions {
			pairs = append(pairs, pair{provider: p, cfg: cfgs[i], region: region, index: len(pairs)})
		}
	}
	if len(pairs) == 0 {
		return &Result{}, nil
	}

	sem := make(chan struct{}, c.workers)
	results := make([]PairResult, len(pairs))
	var wg sync.WaitGroup

	for _, pr := range pairs {
		wg.Add(1)
		go func(pr pair) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[pr.index] = PairResult{
					ProviderType: pr.provider.Type(),
					ProviderName: pr.provider.Name(),
					Region:       pr.region,
					Err:          ctx.Err(),
				}
				return
			}

			results[pr.index] = c.collectPair(ctx, pr)
		}(pr)
	}
	wg.Wait()

	out := &Result{Pairs: len(pairs)}
	for _, res := range results {
		if res.Err != nil {
			c.log.WithFields(map[string]interface{}{
				"provider": res.ProviderName,
				"region":   res.Region,
			}).Error("instance listing failed", res.Err)
			out.Failures = append(out.Failures, res)
			continue
		}
		out.Records = append(out.Records, res.Records...)
	}

	if len(out.Failures) == len(pairs) {
		return out, ErrAllPairsFailed
	}
	return out, nil
}

func (c *Collector) collectPair(ctx context.Context, pr pair) PairResult {
	start := time.Now()
	res := PairResult{
		ProviderType: pr.provider.Type(),
		ProviderName: pr.provider.Name(),
		Region:       pr.region,
	}

	key := cache.Key("list_instances", pr.provider.Type(), pr.provider.Name(), pr.region)
	v, err := c.cache.GetOrCompute(key, c.ttl, func() (interface{}, error) {
		return pr.provider.ListInstances(ctx, pr.region)
	})
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = engerrors.Wrap(engerrors.KindCollection, "instance listing failed", err).
			WithProvider(pr.provider.Name()).
			WithScope(pr.provider.Type() + "/" + pr.region)
		return res
	}

	instances := v.([]providers.Instance)
	for _, inst := range instances {
		rec := Normalize(inst, pr.cfg, pr.region)
		if rec.PrimaryIP == "" {
			c.log.WithFields(map[string]interface{}{
				"instance": inst.ID,
				"region":   pr.region,
			}).Warn("instance has no usable IP, skipping")
			continue
		}
		res.Records = append(res.Records, rec)
	}

	c.log.WithFields(map[string]interface{}{
		"provider": res.ProviderName,
		"region":   res.Region,
		"count":    len(res.Records),
		"elapsed":  res.Duration.String(),
	}).Info("collected instances")

	return res
}

// Normalize maps a raw provider instance to the canonical AssetRecord.
func Normalize(inst providers.Instance, cfg config.ProviderConfig, region string) *types.AssetRecord {
	hostname := inst.Name
	if hostname == "" {
		hostname = fmt.Sprintf("%s-%s", cfg.Type, inst.ID)
	}

	primaryIP := inst.PrivateIP
	if primaryIP == "" {
		primaryIP = inst.PublicIP
	}

	attrs := map[string]any{}
	for k, v := range inst.Extra {
		attrs[k] = v
	}
	if inst.State != "" {
		attrs["state"] = inst.State
	}

	return &types.AssetRecord{
		Fingerprint:  inst.ID,
		Hostname:     hostname,
		PrimaryIP:    primaryIP,
		PublicIP:     inst.PublicIP,
		Platform:     types.InferPlatform(inst.OS),
		ProviderType: cfg.Type,
		ProviderName: cfg.Name,
		Region:       region,
		DomainID:     cfg.DomainID,
		Attributes:   attrs,
		Source:       types.SourceCloud,
	}
}
