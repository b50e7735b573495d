package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	engerrors "github.com/cloudreg/regsync/internal/errors"
	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/pkg/types"
)

// HTTPClient talks JSON REST to the asset registry, scoped to one org.
type HTTPClient struct {
	baseURL         string
	accessKeyID     string
	accessKeySecret string
	orgID           string
	http            *http.Client
	log             logger.Logger

	mu    sync.Mutex
	nodes map[string]string // node path -> node id, memoized per client
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL         string
	AccessKeyID     string
	AccessKeySecret string
	OrgID           string
	Timeout         time.Duration
}

// NewHTTPClient builds a registry client. Timeout applies per request.
func NewHTTPClient(opts Options, log logger.Logger) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		accessKeyID:     opts.AccessKeyID,
		accessKeySecret: opts.AccessKeySecret,
		orgID:           opts.OrgID,
		http:            &http.Client{Timeout: timeout},
		log:             log,
		nodes:           make(map[string]string),
	}
}

// assetPayload is the registry's wire form of an asset.
type assetPayload struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	PublicIP    string         `json:"public_ip,omitempty"`
	Platform    string         `json:"platform"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	NodePath    string         `json:"node_path,omitempty"`
	Domain      string         `json:"domain,omitempty"`
	Attrs       map[string]any `json:"attrs,omitempty"`
}

type nodePayload struct {
	ID     string `json:"id"`
	Value  string `json:"value"`
	Parent string `json:"parent,omitempty"`
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/v1/health/", nil, &out); err != nil {
		return engerrors.Wrap(engerrors.KindPreflight, "registry unreachable", err)
	}
	return nil
}

func (c *HTTPClient) ListAssets(ctx context.Context, nodePath string) ([]*types.AssetRecord, error) {
	path := "/api/v1/assets/?node_path=" + url.QueryEscape(nodePath)
	var payloads []assetPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &payloads); err != nil {
		return nil, engerrors.Wrap(engerrors.KindRegistryRead, "failed to list registry assets", err).
			WithScope(nodePath)
	}

	records := make([]*types.AssetRecord, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, fromPayload(p))
	}
	return records, nil
}

// EnsureNode walks the path segments, creating each missing child under
// its parent. Resolved paths are memoized for the client's lifetime.
func (c *HTTPClient) EnsureNode(ctx context.Context, nodePath string) (string, error) {
	c.mu.Lock()
	if id, ok := c.nodes[nodePath]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	parentID := ""
	current := ""
	for _, segment := range strings.Split(nodePath, "/") {
		if segment == "" {
			continue
		}
		if current == "" {
			current = segment
		} else {
			current = current + "/" + segment
		}

		c.mu.Lock()
		cached, ok := c.nodes[current]
		c.mu.Unlock()
		if ok {
			parentID = cached
			continue
		}

		id, err := c.ensureChild(ctx, parentID, segment)
		if err != nil {
			return "", fmt.Errorf("failed to ensure node %q: %w", current, err)
		}

		c.mu.Lock()
		c.nodes[current] = id
		c.mu.Unlock()
		parentID = id
	}

	return parentID, nil
}

func (c *HTTPClient) ensureChild(ctx context.Context, parentID, value string) (string, error) {
	query := "/api/v1/nodes/?value=" + url.QueryEscape(value)
	if parentID != "" {
		query += "&parent=" + url.QueryEscape(parentID)
	}
	var existing []nodePayload
	if err := c.do(ctx, http.MethodGet, query, nil, &existing); err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return existing[0].ID, nil
	}

	var created nodePayload
	body := nodePayload{Value: value, Parent: parentID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/nodes/", body, &created); err != nil {
		return "", err
	}
	c.log.WithFields(map[string]interface{}{"node": value, "id": created.ID}).Info("created registry node")
	return created.ID, nil
}

func (c *HTTPClient) CreateAsset(ctx context.Context, rec *types.AssetRecord) (string, error) {
	var out assetPayload
	if err := c.do(ctx, http.MethodPost, "/api/v1/assets/", toPayload(rec), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) UpdateAsset(ctx context.Context, id string, rec *types.AssetRecord) error {
	return c.do(ctx, http.MethodPut, "/api/v1/assets/"+url.PathEscape(id)+"/", toPayload(rec), nil)
}

func (c *HTTPClient) DeleteAsset(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/assets/"+url.PathEscape(id)+"/", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Key-ID", c.accessKeyID)
	req.Header.Set("X-Access-Key-Secret", c.accessKeySecret)
	if c.orgID != "" {
		req.Header.Set("X-Org-ID", c.orgID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(method, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode registry response: %w", err)
		}
	}
	return nil
}

// classifyTransport maps network-level failures: timeouts are transient,
// everything else on the wire is too (connection refused may be a blip
// mid-run; the pre-flight Ping catches a registry that is down outright).
func classifyTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return engerrors.Wrap(engerrors.KindApplyTransient, "registry request timed out", err)
	}
	return engerrors.Wrap(engerrors.KindApplyTransient, "registry request failed", err)
}

// classifyStatus maps HTTP status codes onto the retry taxonomy: 429 and
// 5xx are transient, a 404 on delete and all other 4xx are permanent.
func classifyStatus(method string, status int) error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return engerrors.New(engerrors.KindApplyTransient, fmt.Sprintf("registry returned %d", status))
	case status == http.StatusNotFound && method == http.MethodDelete:
		return engerrors.New(engerrors.KindApplyPermanent, "asset not found on delete")
	default:
		return engerrors.New(engerrors.KindApplyPermanent, fmt.Sprintf("registry returned %d", status))
	}
}

func toPayload(rec *types.AssetRecord) assetPayload {
	return assetPayload{
		ID:          rec.RegistryID,
		Name:        rec.Hostname,
		Address:     rec.PrimaryIP,
		PublicIP:    rec.PublicIP,
		Platform:    string(rec.Platform),
		Fingerprint: rec.Fingerprint,
		NodePath:    rec.NodePath(),
		Domain:      rec.DomainID,
		Attrs:       rec.Attributes,
	}
}

func fromPayload(p assetPayload) *types.AssetRecord {
	parts := strings.Split(p.NodePath, "/")
	rec := &types.AssetRecord{
		RegistryID:  p.ID,
		Hostname:    p.Name,
		PrimaryIP:   p.Address,
		PublicIP:    p.PublicIP,
		Platform:    types.Platform(p.Platform),
		Fingerprint: p.Fingerprint,
		DomainID:    p.Domain,
		Attributes:  p.Attrs,
		Source:      types.SourceRegistry,
	}
	if rec.Platform == "" {
		rec.Platform = types.PlatformUnknown
	}
	if len(parts) == 3 {
		rec.ProviderType = parts[1]
		rec.ProviderName = parts[2]
	}
	return rec
}
