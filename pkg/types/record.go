package types

import (
	"strings"
)

// Platform is the normalized operating system family of an asset.
type Platform string

const (
	PlatformLinux   Platform = "Linux"
	PlatformWindows Platform = "Windows"
	PlatformUnknown Platform = "Unknown"
)

var linuxKeywords = []string{"linux", "centos", "ubuntu", "debian", "rhel", "red hat", "suse", "fedora", "rocky", "alma"}

// InferPlatform maps a free-text OS description to a Platform by
// case-insensitive substring matching. Unrecognized values are Unknown.
func InferPlatform(os string) Platform {
	s := strings.ToLower(strings.TrimSpace(os))
	if s == "" {
		return PlatformUnknown
	}
	for _, kw := range linuxKeywords {
		if strings.Contains(s, kw) {
			return PlatformLinux
		}
	}
	if strings.Contains(s, "windows") || strings.Contains(s, "win") {
		return PlatformWindows
	}
	return PlatformUnknown
}

// Source identifies which side of the reconciliation a record came from.
type Source string

const (
	SourceCloud    Source = "cloud"
	SourceRegistry Source = "registry"
)

// AssetRecord is the canonical representation of a machine, built either
// from a cloud provider instance or from an existing registry entry.
// Records are immutable after construction; diffing produces new records.
type AssetRecord struct {
	// Fingerprint is the provider-assigned instance ID, the idempotent
	// matching key across runs. Unique within a provider+region scope.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	Hostname  string `json:"hostname" yaml:"hostname"`
	PrimaryIP string `json:"primary_ip" yaml:"primary_ip"`
	PublicIP  string `json:"public_ip,omitempty" yaml:"public_ip,omitempty"`

	Platform Platform `json:"platform" yaml:"platform"`

	ProviderType string `json:"provider_type" yaml:"provider_type"`
	ProviderName string `json:"provider_name" yaml:"provider_name"`
	Region       string `json:"region" yaml:"region"`

	// DomainID is an optional network-zone identifier; empty means no
	// zone restriction.
	DomainID string `json:"domain_id,omitempty" yaml:"domain_id,omitempty"`

	// Attributes carries extra provider fields (instance type, vpc id,
	// state, tags) preserved for drift comparison and notification
	// display. Not interpreted by the engine.
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	Source Source `json:"source" yaml:"source"`

	// RegistryID is set only on records loaded from the registry.
	RegistryID string `json:"registry_id,omitempty" yaml:"registry_id,omitempty"`
}

// NodePath returns the hierarchical registry placement key for this record.
func (r *AssetRecord) NodePath() string {
	return NodePathFor(r.ProviderType, r.ProviderName)
}

// NodePathFor builds the registry node path for a provider type and name.
func NodePathFor(providerType, providerName string) string {
	return "DEFAULT/" + providerType + "/" + providerName
}

// Attr returns a named attribute, or nil if unset.
func (r *AssetRecord) Attr(key string) any {
	if r.Attributes == nil {
		return nil
	}
	return r.Attributes[key]
}

// Clone returns a deep copy of the record.
func (r *AssetRecord) Clone() *AssetRecord {
	clone := *r
	if r.Attributes != nil {
		clone.Attributes = make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			clone.Attributes[k] = v
		}
	}
	return &clone
}

// String returns a short human-readable identity for logging.
func (r *AssetRecord) String() string {
	return r.ProviderType + ":" + r.Hostname + " (" + r.PrimaryIP + ")"
}
