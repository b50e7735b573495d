package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudreg/regsync/pkg/config"
)

type fakeProvider struct {
	typeName string
	name     string
}

func (f *fakeProvider) Type() string { return f.typeName }
func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) ListInstances(ctx context.Context, region string) ([]Instance, error) {
	return nil, nil
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	r.Register("fake", func(ctx context.Context, cfg config.ProviderConfig) (Provider, error) {
		return &fakeProvider{typeName: "fake", name: cfg.Name}, nil
	})

	p, err := r.Build(context.Background(), config.ProviderConfig{Type: "fake", Name: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "fake", p.Type())
	assert.Equal(t, "prod", p.Name())
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(context.Background(), config.ProviderConfig{Type: "oracle"})
	assert.ErrorContains(t, err, "unknown provider type")
}

func TestRegistryTypesSorted(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, cfg config.ProviderConfig) (Provider, error) { return nil, nil }
	r.Register("gcp", noop)
	r.Register("aws", noop)
	assert.Equal(t, []string{"aws", "gcp"}, r.Types())
}
