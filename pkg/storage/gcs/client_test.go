package gcs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/storage"
)

func newFakeGCS(t *testing.T, objects map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		idx := strings.Index(path, "/o/")
		if idx < 0 {
			// bucket metadata
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"name": "bucket"})
			return
		}
		name := path[idx+3:]
		body, ok := objects[name]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
			return
		}
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write([]byte(body))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":        name,
			"contentType": "image/png",
			"size":        strconv.Itoa(len(body)),
		})
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(context.Background(),
		config.GCSConfig{ProofBucket: "proofs", AssetBucket: "assets"},
		config.GCPConfig{}, nil,
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return client
}

func TestStatMissingObjectMapsToNotFound(t *testing.T) {
	srv := newFakeGCS(t, map[string]string{})
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.Stat(context.Background(), "proofs", "missing.png")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStatReturnsMetadata(t *testing.T) {
	srv := newFakeGCS(t, map[string]string{"proof.png": "abc"})
	defer srv.Close()
	client := newTestClient(t, srv)

	info, err := client.Stat(context.Background(), "proofs", "proof.png")
	require.NoError(t, err)
	assert.Equal(t, "proof.png", info.Key)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, int64(3), info.Size)
}

func TestNewClientRequiresProofBucket(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCSConfig{}, config.GCPConfig{}, nil)
	assert.Error(t, err)
}
