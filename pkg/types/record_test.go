package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferPlatform(t *testing.T) {
	tests := []struct {
		os   string
		want Platform
	}{
		{"CentOS 7.9", PlatformLinux},
		{"Ubuntu 22.04.3 LTS", PlatformLinux},
		{"Debian GNU/Linux 12", PlatformLinux},
		{"Red Hat Enterprise Linux 9", PlatformLinux},
		{"Windows Server 2019", PlatformWindows},
		{"win2016", PlatformWindows},
		{"SunOS", PlatformUnknown},
		{"FreeBSD 14.0", PlatformUnknown},
		{"", PlatformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			assert.Equal(t, tt.want, InferPlatform(tt.os))
		})
	}
}

func TestAssetRecordNodePath(t *testing.T) {
	r := &AssetRecord{ProviderType: "aws", ProviderName: "prod"}
	assert.Equal(t, "DEFAULT/aws/prod", r.NodePath())
}

func TestAssetRecordClone(t *testing.T) {
	r := &AssetRecord{
		Fingerprint: "i-1234",
		Hostname:    "web-1",
		PrimaryIP:   "10.0.0.5",
		Attributes:  map[string]any{"instance_type": "t3.micro"},
	}

	clone := r.Clone()
	clone.Attributes["instance_type"] = "t3.large"

	assert.Equal(t, "t3.micro", r.Attributes["instance_type"])
	assert.Equal(t, r.Fingerprint, clone.Fingerprint)
}

func TestSyncPlanEmpty(t *testing.T) {
	p := &SyncPlan{}
	assert.True(t, p.Empty())
	assert.Equal(t, 0, p.Size())

	p.Creates = append(p.Creates, PlannedChange{Op: OpCreate})
	assert.False(t, p.Empty())
	assert.Equal(t, 1, p.Size())
}

func TestRunSummaryTotals(t *testing.T) {
	s := &RunSummary{Results: []SyncResult{
		{Counts: Counts{Created: 1, Failed: 2, TotalConsidered: 5}},
		{Counts: Counts{Updated: 3, Skipped: 1, TotalConsidered: 4}},
	}}

	totals := s.Totals()
	assert.Equal(t, 1, totals.Created)
	assert.Equal(t, 3, totals.Updated)
	assert.Equal(t, 2, totals.Failed)
	assert.Equal(t, 1, totals.Skipped)
	assert.Equal(t, 9, totals.TotalConsidered)
}
