package providers

import (
	"context"

	"github.com/cloudreg/regsync/pkg/config"
)

// Instance is the raw normalized form of one machine returned by a
// provider, before it becomes an AssetRecord. Field mapping from
// provider-specific APIs happens inside each provider; the engine never
// branches on provider type beyond this contract.
type Instance struct {
	ID        string
	Name      string
	PrivateIP string
	PublicIP  string
	OS        string
	State     string
	Extra     map[string]any
}

// Provider is the capability the collector drives, one implementation per
// cloud vendor. ListInstances is read-only and must tolerate being called
// concurrently for different regions.
type Provider interface {
	Type() string
	Name() string
	ListInstances(ctx context.Context, region string) ([]Instance, error)
}

// Factory builds a Provider from its configuration.
type Factory func(ctx context.Context, cfg config.ProviderConfig) (Provider, error)
