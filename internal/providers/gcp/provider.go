package gcp

import (
	"context"
	"fmt"
	"strings"

	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/option"

	"github.com/cloudreg/regsync/internal/providers"
	"github.com/cloudreg/regsync/pkg/config"
)

func init() {
	providers.DefaultRegistry().Register("gcp", New)
}

// instanceLister is the compute API slice the provider needs; narrowed
// for mocking in tests.
type instanceLister interface {
	List(ctx context.Context, project, zone string) ([]*compute.Instance, error)
}

// Provider lists Compute Engine instances for one project. Configured
// regions are GCE zone names (instances are zonal resources).
type Provider struct {
	name    string
	project string
	lister  instanceLister
}

type computeLister struct {
	svc *compute.Service
}

func (c *computeLister) List(ctx context.Context, project, zone string) ([]*compute.Instance, error) {
	var all []*compute.Instance
	call := c.svc.Instances.List(project, zone).Context(ctx)
	err := call.Pages(ctx, func(page *compute.InstanceList) error {
		all = append(all, page.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// New builds a GCP provider from configuration. With no credentials file
// configured, Application Default Credentials are used.
func New(ctx context.Context, cfg config.ProviderConfig) (providers.Provider, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("gcp provider %q: project_id is required", cfg.Name)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}

	return &Provider{name: cfg.Name, project: cfg.ProjectID, lister: &computeLister{svc: svc}}, nil
}

func (p *Provider) Type() string { return "gcp" }
func (p *Provider) Name() string { return p.name }

func (p *Provider) ListInstances(ctx context.Context, zone string) ([]providers.Instance, error) {
	items, err := p.lister.List(ctx, p.project, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances in %s/%s: %w", p.project, zone, err)
	}

	var instances []providers.Instance
	for _, inst := range items {
		if inst.Status == "TERMINATED" {
			continue
		}
		instances = append(instances, normalizeInstance(inst))
	}
	return instances, nil
}

func normalizeInstance(inst *compute.Instance) providers.Instance {
	i := providers.Instance{
		ID:    fmt.Sprintf("%d", inst.Id),
		Name:  inst.Name,
		State: inst.Status,
		OS:    osFromInstance(inst),
		Extra: map[string]any{
			"machine_type": lastPathSegment(inst.MachineType),
		},
	}

	if len(inst.NetworkInterfaces) > 0 {
		ni := inst.NetworkInterfaces[0]
		i.PrivateIP = ni.NetworkIP
		i.Extra["vpc_id"] = lastPathSegment(ni.Network)
		if len(ni.AccessConfigs) > 0 {
			i.PublicIP = ni.AccessConfigs[0].NatIP
		}
	}

	return i
}

// osFromInstance reads the OS from disk licenses (the only reliable
// signal GCE exposes), falling back to the "os" label.
func osFromInstance(inst *compute.Instance) string {
	for _, disk := range inst.Disks {
		if !disk.Boot {
			continue
		}
		for _, license := range disk.Licenses {
			name := lastPathSegment(license)
			if name != "" {
				return strings.ReplaceAll(name, "-", " ")
			}
		}
	}
	if inst.Labels != nil {
		return inst.Labels["os"]
	}
	return ""
}

func lastPathSegment(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}
