package planner

import (
	"fmt"

	engerrors "github.com/cloudreg/regsync/internal/errors"
	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/pkg/types"
)

// Policy carries the safety rails applied while diffing.
type Policy struct {
	// Whitelist, when non-empty, restricts participation to these primary
	// IPs on both sides. Everything else is left untouched.
	Whitelist []string

	// ProtectedIPs are never deleted, whatever the cloud says.
	ProtectedIPs []string

	// NoDelete turns every candidate delete into a skip.
	NoDelete bool
}

// Planner diffs the cloud inventory against the registry view and emits a
// SyncPlan. Pure with respect to its inputs: identical inputs produce
// identical plans.
type Planner struct {
	policy Policy
	log    logger.Logger
}

func New(policy Policy, log logger.Logger) *Planner {
	return &Planner{policy: policy, log: log}
}

// comparableAttrKeys are the Attributes keys that participate in drift
// detection. Volatile keys like state stay out.
var comparableAttrKeys = []string{"instance_type", "vpc_id"}

// BuildPlan matches cloud records to registry records by fingerprint first,
// then by primary IP for registry records predating fingerprint tracking.
// Fingerprint wins over IP: a matched pair with a changed IP is one update,
// never a delete plus create.
func (p *Planner) BuildPlan(nodePath string, cloud, reg []*types.AssetRecord) *types.SyncPlan {
	plan := &types.SyncPlan{NodePath: nodePath}

	whitelist := toSet(p.policy.Whitelist)
	protected := toSet(p.policy.ProtectedIPs)

	cloud = p.filterWhitelist(cloud, whitelist, plan)
	reg = p.filterWhitelist(reg, whitelist, nil)

	byFingerprint := make(map[string]*types.AssetRecord, len(reg))
	byIP := make(map[string]*types.AssetRecord, len(reg))
	for _, r := range reg {
		if r.Fingerprint != "" {
			byFingerprint[r.Fingerprint] = r
		}
		if r.PrimaryIP != "" {
			if _, dup := byIP[r.PrimaryIP]; !dup {
				byIP[r.PrimaryIP] = r
			}
		}
	}

	matched := make(map[*types.AssetRecord]bool, len(reg))

	for _, c := range cloud {
		existing := byFingerprint[c.Fingerprint]
		if existing == nil {
			// IP fallback only binds registry records that no fingerprint
			// claims, so legacy entries adopt the fingerprint on update.
			if cand := byIP[c.PrimaryIP]; cand != nil && !matched[cand] && byFingerprint[cand.Fingerprint] == nil {
				existing = cand
			}
		}

		if existing == nil {
			plan.Creates = append(plan.Creates, types.PlannedChange{
				Op: types.OpCreate, Record: c, Reason: types.ReasonNewFingerprint,
			})
			continue
		}

		matched[existing] = true
		if drift := diff(c, existing); len(drift) > 0 {
			plan.Updates = append(plan.Updates, types.PlannedChange{
				Op: types.OpUpdate, Record: c, Existing: existing,
				Reason: types.ReasonAttributeDrift, Drift: drift,
			})
		} else {
			plan.Skips = append(plan.Skips, types.PlannedChange{
				Op: types.OpUpdate, Record: c, Existing: existing, Reason: types.SkipUnchanged,
			})
		}
	}

	for _, r := range reg {
		if matched[r] {
			continue
		}
		change := types.PlannedChange{Op: types.OpDelete, Record: r, Existing: r, Reason: types.ReasonMissingFromCloud}
		switch {
		case p.policy.NoDelete:
			change.Reason = types.SkipNoDelete
			plan.Skips = append(plan.Skips, change)
		case protected[r.PrimaryIP]:
			change.Reason = types.SkipProtectedIP
			plan.Skips = append(plan.Skips, change)
		default:
			plan.Deletes = append(plan.Deletes, change)
		}
	}

	p.verify(plan, protected)
	return plan
}

// filterWhitelist removes records whose primary IP is outside a non-empty
// whitelist. Cloud-side exclusions are recorded as skips when plan is given.
func (p *Planner) filterWhitelist(recs []*types.AssetRecord, whitelist map[string]bool, plan *types.SyncPlan) []*types.AssetRecord {
	if len(whitelist) == 0 {
		return recs
	}
	kept := recs[:0:0]
	for _, r := range recs {
		if whitelist[r.PrimaryIP] {
			kept = append(kept, r)
			continue
		}
		if plan != nil {
			plan.Skips = append(plan.Skips, types.PlannedChange{
				Op: types.OpCreate, Record: r, Reason: types.SkipWhitelistExcluded,
			})
		}
	}
	return kept
}

// diff returns the comparable fields that differ between the desired cloud
// state and the current registry record.
func diff(cloud, reg *types.AssetRecord) []string {
	var drift []string
	if cloud.Hostname != reg.Hostname {
		drift = append(drift, "hostname")
	}
	if cloud.PrimaryIP != reg.PrimaryIP {
		drift = append(drift, "primary_ip")
	}
	if cloud.Platform != reg.Platform && reg.Platform != types.PlatformUnknown {
		drift = append(drift, "platform")
	}
	if reg.Fingerprint == "" && cloud.Fingerprint != "" {
		drift = append(drift, "fingerprint")
	}
	for _, key := range comparableAttrKeys {
		cv, rv := cloud.Attr(key), reg.Attr(key)
		if cv != nil && rv != nil && fmt.Sprint(cv) != fmt.Sprint(rv) {
			drift = append(drift, key)
		}
	}
	return drift
}

// verify is the last line of defense: a protected IP that slipped into the
// delete sequence is logged as a bug and demoted to a skip.
func (p *Planner) verify(plan *types.SyncPlan, protected map[string]bool) {
	kept := plan.Deletes[:0]
	for _, d := range plan.Deletes {
		if protected[d.Record.PrimaryIP] {
			err := engerrors.New(engerrors.KindPolicyViolation, "protected IP reached the delete sequence").
				WithScope(plan.NodePath)
			p.log.WithField("ip", d.Record.PrimaryIP).Error("plan policy violation", err)
			d.Reason = types.SkipProtectedIP
			plan.Skips = append(plan.Skips, d)
			continue
		}
		kept = append(kept, d)
	}
	plan.Deletes = kept
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
