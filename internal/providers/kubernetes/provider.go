package kubernetes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/cloudreg/regsync/internal/providers"
	"github.com/cloudreg/regsync/pkg/config"
)

func init() {
	providers.DefaultRegistry().Register("kubernetes", New)
}

// Provider treats cluster nodes as machine inventory. Kubernetes has no
// region dimension, so the collector drives it with the synthetic region
// "cluster" and the provider ignores the value.
type Provider struct {
	name      string
	clientset k8s.Interface
}

// New builds a Kubernetes provider, preferring in-cluster config and
// falling back to the kubeconfig file and context from configuration.
func New(ctx context.Context, cfg config.ProviderConfig) (providers.Provider, error) {
	restCfg, err := buildRESTConfig(cfg.Kubeconfig, cfg.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
	}
	clientset, err := k8s.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return &Provider{name: cfg.Name, clientset: clientset}, nil
}

func buildRESTConfig(kubeconfig, contextName string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	if kubeconfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{}
	if contextName != "" {
		overrides.CurrentContext = contextName
	}

	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

func (p *Provider) Type() string { return "kubernetes" }
func (p *Provider) Name() string { return p.name }

func (p *Provider) ListInstances(ctx context.Context, _ string) ([]providers.Instance, error) {
	nodes, err := p.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	var instances []providers.Instance
	for i := range nodes.Items {
		instances = append(instances, normalizeNode(&nodes.Items[i]))
	}
	return instances, nil
}

func normalizeNode(node *corev1.Node) providers.Instance {
	i := providers.Instance{
		ID:   string(node.UID),
		Name: node.Name,
		OS:   node.Status.NodeInfo.OSImage,
		Extra: map[string]any{
			"kubelet_version": node.Status.NodeInfo.KubeletVersion,
			"architecture":    node.Status.NodeInfo.Architecture,
		},
	}

	for _, addr := range node.Status.Addresses {
		switch addr.Type {
		case corev1.NodeInternalIP:
			if i.PrivateIP == "" {
				i.PrivateIP = addr.Address
			}
		case corev1.NodeExternalIP:
			if i.PublicIP == "" {
				i.PublicIP = addr.Address
			}
		}
	}

	i.State = "NotReady"
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
			i.State = "Ready"
		}
	}

	return i
}
