package notify

import (
	"context"

	"github.com/cloudreg/regsync/pkg/types"
)

// Notifier delivers the run summary to an external channel. Delivery
// failures never affect the run outcome.
type Notifier interface {
	Notify(ctx context.Context, summary *types.RunSummary) error
}

// Noop discards summaries. Used when notification is disabled.
type Noop struct{}

func (Noop) Notify(ctx context.Context, summary *types.RunSummary) error { return nil }
