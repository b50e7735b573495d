package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/cloudreg/regsync/internal/errors"
	"github.com/cloudreg/regsync/internal/logger"
	"github.com/cloudreg/regsync/pkg/types"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewHTTPClient(Options{
		BaseURL:     srv.URL,
		AccessKeyID: "ak",
		OrgID:       "org-1",
	}, logger.NewNop())
	return c, srv
}

func TestPingSendsAuthHeaders(t *testing.T) {
	var gotKey, gotOrg string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Access-Key-ID")
		gotOrg = r.Header.Get("X-Org-ID")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "ak", gotKey)
	assert.Equal(t, "org-1", gotOrg)
}

func TestPingFailureIsPreflight(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, engerrors.KindPreflight, engerrors.KindOf(err))
}

func TestListAssetsMapsPayloads(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DEFAULT/aws/prod", r.URL.Query().Get("node_path"))
		json.NewEncoder(w).Encode([]assetPayload{
			{
				ID:          "a-1",
				Name:        "web-1",
				Address:     "10.0.0.1",
				Platform:    "Linux",
				Fingerprint: "i-abc",
				NodePath:    "DEFAULT/aws/prod",
			},
		})
	}))

	got, err := c.ListAssets(context.Background(), "DEFAULT/aws/prod")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-1", got[0].RegistryID)
	assert.Equal(t, "i-abc", got[0].Fingerprint)
	assert.Equal(t, types.SourceRegistry, got[0].Source)
	assert.Equal(t, "aws", got[0].ProviderType)
	assert.Equal(t, "prod", got[0].ProviderName)
}

func TestListAssetsFailureIsRegistryRead(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.ListAssets(context.Background(), "DEFAULT/aws/prod")
	require.Error(t, err)
	assert.Equal(t, engerrors.KindRegistryRead, engerrors.KindOf(err))
}

func TestStatusClassification(t *testing.T) {
	var status atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	rec := &types.AssetRecord{Hostname: "h", PrimaryIP: "10.0.0.1"}

	status.Store(http.StatusTooManyRequests)
	_, err := c.CreateAsset(context.Background(), rec)
	assert.True(t, engerrors.IsTransient(err), "429 must be transient")

	status.Store(http.StatusBadGateway)
	_, err = c.CreateAsset(context.Background(), rec)
	assert.True(t, engerrors.IsTransient(err), "5xx must be transient")

	status.Store(http.StatusBadRequest)
	_, err = c.CreateAsset(context.Background(), rec)
	assert.Equal(t, engerrors.KindApplyPermanent, engerrors.KindOf(err))

	status.Store(http.StatusNotFound)
	err = c.DeleteAsset(context.Background(), "a-gone")
	assert.Equal(t, engerrors.KindApplyPermanent, engerrors.KindOf(err))
}

func TestEnsureNodeWalksAndMemoizes(t *testing.T) {
	type node struct {
		ID     string
		Value  string
		Parent string
	}
	nodes := map[string]node{} // id -> node
	var nextID atomic.Int64
	var creates atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/nodes/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			value := r.URL.Query().Get("value")
			parent := r.URL.Query().Get("parent")
			var matches []nodePayload
			for _, n := range nodes {
				if n.Value == value && n.Parent == parent {
					matches = append(matches, nodePayload{ID: n.ID, Value: n.Value, Parent: n.Parent})
				}
			}
			json.NewEncoder(w).Encode(matches)
		case http.MethodPost:
			creates.Add(1)
			var body nodePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			id := fmt.Sprintf("n-%d", nextID.Add(1))
			nodes[id] = node{ID: id, Value: body.Value, Parent: body.Parent}
			json.NewEncoder(w).Encode(nodePayload{ID: id, Value: body.Value, Parent: body.Parent})
		}
	})
	c, _ := newTestClient(t, mux)

	id, err := c.EnsureNode(context.Background(), "DEFAULT/aws/prod")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, int64(3), creates.Load(), "three segments created on first ensure")

	// same path again, plus a sibling sharing two segments
	again, err := c.EnsureNode(context.Background(), "DEFAULT/aws/prod")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, int64(3), creates.Load(), "memoized path must not re-create")

	_, err = c.EnsureNode(context.Background(), "DEFAULT/aws/staging")
	require.NoError(t, err)
	assert.Equal(t, int64(4), creates.Load(), "only the new leaf is created")
}

func TestCreateAssetReturnsID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body assetPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "web-1", body.Name)
		assert.Equal(t, "i-abc", body.Fingerprint)
		body.ID = "a-new"
		json.NewEncoder(w).Encode(body)
	}))

	rec := &types.AssetRecord{
		Fingerprint:  "i-abc",
		Hostname:     "web-1",
		PrimaryIP:    "10.0.0.1",
		Platform:     types.PlatformLinux,
		ProviderType: "aws",
		ProviderName: "prod",
	}
	id, err := c.CreateAsset(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "a-new", id)
}
