package sync

import (
	"time"

	"github.com/cloudreg/regsync/pkg/types"
)

// aggregate folds per-item outcomes into a SyncResult for one provider
// scope. Pure: same outcomes and timing always produce the same result.
func aggregate(providerType, providerName, nodePath string, outcomes []types.ItemOutcome, startedAt time.Time, scopeErr error) types.SyncResult {
	res := types.SyncResult{
		ProviderType: providerType,
		ProviderName: providerName,
		NodePath:     nodePath,
		Outcomes:     outcomes,
		StartedAt:    startedAt,
		Duration:     time.Since(startedAt),
	}
	if scopeErr != nil {
		res.Error = scopeErr.Error()
	}

	for _, o := range outcomes {
		res.Counts.TotalConsidered++
		switch o.Status {
		case types.StatusSkipped:
			res.Counts.Skipped++
		case types.StatusFailed:
			res.Counts.Failed++
		case types.StatusSucceeded:
			switch o.Op {
			case types.OpCreate:
				res.Counts.Created++
			case types.OpUpdate:
				res.Counts.Updated++
			case types.OpDelete:
				res.Counts.Deleted++
			}
		}
	}
	return res
}

// mergeRecords collects the succeeded records of one op across results,
// for the notifier's display lists.
func mergeRecords(results []types.SyncResult, op types.Operation) []types.AssetRecord {
	var out []types.AssetRecord
	for _, r := range results {
		for _, o := range r.Outcomes {
			if o.Op == op && o.Status == types.StatusSucceeded && o.Record != nil {
				out = append(out, *o.Record)
			}
		}
	}
	return out
}
