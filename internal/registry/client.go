package registry

import (
	"context"

	"github.com/cloudreg/regsync/pkg/types"
)

// Client is the registry capability the engine drives. Every call is
// potentially slow and potentially failing; no transactional semantics
// are assumed across calls.
type Client interface {
	// Ping verifies the registry is reachable. Used as the apply
	// pre-flight check; failure aborts before any mutation.
	Ping(ctx context.Context) error

	// ListAssets returns the registry records filed under a node path,
	// tagged Source=registry with RegistryID set.
	ListAssets(ctx context.Context, nodePath string) ([]*types.AssetRecord, error)

	// EnsureNode creates missing path segments and returns the node ID
	// for the full path.
	EnsureNode(ctx context.Context, nodePath string) (string, error)

	CreateAsset(ctx context.Context, rec *types.AssetRecord) (string, error)
	UpdateAsset(ctx context.Context, id string, rec *types.AssetRecord) error
	DeleteAsset(ctx context.Context, id string) error
}
