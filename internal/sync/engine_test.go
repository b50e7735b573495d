package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/internal/notify"
	"github.com/cloudreg/regsync/internal/providers"
	"github.com/cloudreg/regsync/pkg/config"
	"github.com/cloudreg/regsync/pkg/types"
)

type fakeProvider struct {
	typeName  string
	name      string
	instances []providers.Instance
	err       error
}

func (f *fakeProvider) Type() string { return f.typeName }
func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) ListInstances(ctx context.Context, region string) ([]providers.Instance, error) {
	return f.instances, f.err
}

type fakeClient struct {
	mu      sync.Mutex
	assets  map[string][]*types.AssetRecord // node path -> records
	listErr error
	nextID  int
	created []string
	updated []string
	deleted []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{assets: make(map[string][]*types.AssetRecord)}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) ListAssets(ctx context.Context, nodePath string) ([]*types.AssetRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.assets[nodePath], nil
}

func (f *fakeClient) EnsureNode(ctx context.Context, nodePath string) (string, error) {
	return "n-1", nil
}

func (f *fakeClient) CreateAsset(ctx context.Context, rec *types.AssetRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created = append(f.created, rec.Hostname)

	id := fmt.Sprintf("a-%d", f.nextID)
	stored := rec.Clone()
	stored.RegistryID = id
	stored.Source = types.SourceRegistry
	f.assets[rec.NodePath()] = append(f.assets[rec.NodePath()], stored)
	return id, nil
}

func (f *fakeClient) UpdateAsset(ctx context.Context, id string, rec *types.AssetRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, id)

	for path, recs := range f.assets {
		for i, existing := range recs {
			if existing.RegistryID == id {
				stored := rec.Clone()
				stored.RegistryID = id
				stored.Source = types.SourceRegistry
				f.assets[path][i] = stored
			}
		}
	}
	return nil
}

func (f *fakeClient) DeleteAsset(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)

	for path, recs := range f.assets {
		kept := recs[:0]
		for _, existing := range recs {
			if existing.RegistryID != id {
				kept = append(kept, existing)
			}
		}
		f.assets[path] = kept
	}
	return nil
}

type capturingNotifier struct {
	mu      sync.Mutex
	summary *types.RunSummary
}

func (c *capturingNotifier) Notify(ctx context.Context, summary *types.RunSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = summary
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Registry.URL = "http://registry.local"
	cfg.Providers = []config.ProviderConfig{
		{Type: "faketest", Name: "prod", Enabled: true, Regions: []string{"us-east-1"}},
	}
	cfg.Sync.RetryInterval = time.Millisecond
	return cfg
}

func testEngine(t *testing.T, cfg *config.Config, client *fakeClient, prov *fakeProvider, n notify.Notifier) *Engine {
	t.Helper()
	reg := providers.NewRegistry()
	reg.Register("faketest", func(ctx context.Context, pc config.ProviderConfig) (providers.Provider, error) {
		return prov, nil
	})
	return New(cfg, client, n, logger.NewNop()).WithProviderRegistry(reg)
}

func regAsset(id, fp, host, ip string) *types.AssetRecord {
	return &types.AssetRecord{
		RegistryID: id, Fingerprint: fp, Hostname: host, PrimaryIP: ip,
		Platform: types.PlatformLinux, ProviderType: "faketest", ProviderName: "prod",
		Source: types.SourceRegistry,
	}
}

func TestRunEndToEnd(t *testing.T) {
	// cloud: A unchanged, B renamed, C new; registry: A, B, D stale
	prov := &fakeProvider{typeName: "faketest", name: "prod", instances: []providers.Instance{
		{ID: "i-a", Name: "asset-a", PrivateIP: "10.0.0.1", OS: "Linux"},
		{ID: "i-b", Name: "asset-b-renamed", PrivateIP: "10.0.0.2", OS: "Linux"},
		{ID: "i-c", Name: "asset-c", PrivateIP: "10.0.0.3", OS: "Linux"},
	}}
	client := newFakeClient()
	client.assets["DEFAULT/faketest/prod"] = []*types.AssetRecord{
		regAsset("r-a", "i-a", "asset-a", "10.0.0.1"),
		regAsset("r-b", "i-b", "asset-b", "10.0.0.2"),
		regAsset("r-d", "i-d", "asset-d", "10.0.0.4"),
	}
	notifier := &capturingNotifier{}

	summary, err := testEngine(t, testConfig(), client, prov, notifier).Run(context.Background())
	require.NoError(t, err)

	totals := summary.Totals()
	assert.Equal(t, 1, totals.Created)
	assert.Equal(t, 1, totals.Updated)
	assert.Equal(t, 1, totals.Deleted)
	assert.Equal(t, 0, totals.Failed)

	assert.Equal(t, []string{"asset-c"}, client.created)
	assert.Equal(t, []string{"r-b"}, client.updated)
	assert.Equal(t, []string{"r-d"}, client.deleted)

	require.NotNil(t, notifier.summary, "notifier must receive the summary")
	assert.Equal(t, summary.RunID, notifier.summary.RunID)
	require.Len(t, summary.Created, 1)
	assert.Equal(t, "asset-c", summary.Created[0].Hostname)
}

func TestSecondRunIsIdempotent(t *testing.T) {
	prov := &fakeProvider{typeName: "faketest", name: "prod", instances: []providers.Instance{
		{ID: "i-a", Name: "asset-a", PrivateIP: "10.0.0.1", OS: "Linux"},
	}}
	client := newFakeClient()
	engine := testEngine(t, testConfig(), client, prov, nil)

	first, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Totals().Created)

	// same engine, unchanged cloud: the second run must see the first
	// run's create, not a stale pre-mutation listing
	second, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Totals().Created)
	assert.Equal(t, 0, second.Totals().Updated)
	assert.Equal(t, 0, second.Totals().Deleted)
	assert.Equal(t, []string{"asset-a"}, client.created, "asset must not be re-created")
}

func TestRunRegistryReadFailureSkipsScope(t *testing.T) {
	prov := &fakeProvider{typeName: "faketest", name: "prod", instances: []providers.Instance{
		{ID: "i-a", Name: "asset-a", PrivateIP: "10.0.0.1", OS: "Linux"},
	}}
	client := newFakeClient()
	client.listErr = errors.New("registry returned 500")

	summary, err := testEngine(t, testConfig(), client, prov, nil).Run(context.Background())
	require.NoError(t, err, "a registry read failure must not fail the run")
	require.Len(t, summary.Results, 1)

	res := summary.Results[0]
	assert.False(t, res.Succeeded())
	assert.Equal(t, 1, res.Counts.Skipped)
	assert.Empty(t, client.created)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "registry-read-failed", res.Outcomes[0].Reason)
}

func TestRunTotalCollectionFailureIsFatal(t *testing.T) {
	prov := &fakeProvider{typeName: "faketest", name: "prod", err: errors.New("api down")}
	client := newFakeClient()

	_, err := testEngine(t, testConfig(), client, prov, nil).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, client.created)
	assert.Empty(t, client.deleted)
}

func TestRunNoEnabledProviders(t *testing.T) {
	cfg := testConfig()
	cfg.Providers[0].Enabled = false

	_, err := testEngine(t, cfg, newFakeClient(), &fakeProvider{}, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestPlanDoesNotMutate(t *testing.T) {
	prov := &fakeProvider{typeName: "faketest", name: "prod", instances: []providers.Instance{
		{ID: "i-c", Name: "asset-c", PrivateIP: "10.0.0.3", OS: "Linux"},
	}}
	client := newFakeClient()

	plans, err := testEngine(t, testConfig(), client, prov, nil).Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Len(t, plans[0].Creates, 1)
	assert.Empty(t, client.created, "planning must not touch the registry")
}

func TestAggregateCounts(t *testing.T) {
	started := time.Now().Add(-time.Second)
	outcomes := []types.ItemOutcome{
		{Op: types.OpCreate, Status: types.StatusSucceeded},
		{Op: types.OpUpdate, Status: types.StatusSucceeded},
		{Op: types.OpDelete, Status: types.StatusSucceeded},
		{Op: types.OpCreate, Status: types.StatusFailed},
		{Op: types.OpDelete, Status: types.StatusSkipped},
	}

	res := aggregate("aws", "prod", "DEFAULT/aws/prod", outcomes, started, nil)
	assert.Equal(t, types.Counts{
		TotalConsidered: 5, Created: 1, Updated: 1, Deleted: 1, Skipped: 1, Failed: 1,
	}, res.Counts)
	assert.True(t, res.Succeeded())
	assert.GreaterOrEqual(t, res.Duration, time.Second)
}
