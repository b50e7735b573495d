package types

// Operation names a mutation the executor can apply against the registry.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Rationale explains why the planner placed a record in a plan sequence.
type Rationale string

const (
	ReasonNewFingerprint   Rationale = "new-fingerprint"
	ReasonAttributeDrift   Rationale = "attribute-drift"
	ReasonMissingFromCloud Rationale = "missing-from-cloud"

	// Skip reasons for candidate deletes suppressed by policy.
	SkipNoDelete          Rationale = "no-delete"
	SkipProtectedIP       Rationale = "protected-ip"
	SkipWhitelistExcluded Rationale = "whitelist-excluded"
	SkipUnchanged         Rationale = "unchanged"
)

// PlannedChange is one entry of a SyncPlan. For updates both sides are
// populated: Record is the desired cloud-side state, Existing the current
// registry-side record (carrying the registry ID to mutate).
type PlannedChange struct {
	Op       Operation    `json:"op" yaml:"op"`
	Record   *AssetRecord `json:"record" yaml:"record"`
	Existing *AssetRecord `json:"existing,omitempty" yaml:"existing,omitempty"`
	Reason   Rationale    `json:"reason" yaml:"reason"`

	// Drift lists the comparable fields that differ, for updates.
	Drift []string `json:"drift,omitempty" yaml:"drift,omitempty"`
}

// SyncPlan is the ephemeral output of the planner: three disjoint ordered
// sequences of changes plus the skips policy carved out of them. Ordering
// follows the stable cloud-side input ordering, so identical inputs always
// produce identical plans.
type SyncPlan struct {
	NodePath string          `json:"node_path" yaml:"node_path"`
	Creates  []PlannedChange `json:"creates" yaml:"creates"`
	Updates  []PlannedChange `json:"updates" yaml:"updates"`
	Deletes  []PlannedChange `json:"deletes" yaml:"deletes"`
	Skips    []PlannedChange `json:"skips" yaml:"skips"`
}

// Empty reports whether the plan contains no mutations.
func (p *SyncPlan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// Size returns the number of mutations the executor will attempt.
func (p *SyncPlan) Size() int {
	return len(p.Creates) + len(p.Updates) + len(p.Deletes)
}
