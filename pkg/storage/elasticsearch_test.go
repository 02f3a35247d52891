package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/ivindex-go/pkg/config"
)

type fakeCluster struct {
	mu         sync.Mutex
	bulkStatus int
	bulkPath   string
	bulkBody   string
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if !strings.HasSuffix(r.URL.Path, "/_bulk") {
		_, _ = io.WriteString(w, `{"version":{"number":"7.17.10"},"tagline":"You Know, for Search"}`)
		return
	}

	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bulkPath = r.URL.Path
	c.bulkBody = string(body)
	status := c.bulkStatus
	c.mu.Unlock()

	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"took":1,"errors":false,"items":[]}`)
}

func newTestES(t *testing.T, bulkStatus int) (*ElasticSearch, *fakeCluster) {
	t.Helper()
	cluster := &fakeCluster{bulkStatus: bulkStatus}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	es, err := NewElasticSearch(context.Background(), config.ESConfig{
		Addresses: []string{srv.URL},
		IndexName: "ivindex",
		Timeout:   config.Duration(time.Second),
	})
	require.NoError(t, err)
	return es, cluster
}

func TestElasticSearch_Commit(t *testing.T) {
	es, cluster := newTestES(t, http.StatusOK)

	require.NoError(t, es.Commit(context.Background(), []Record{testRecord(), testRecord()}))

	assert.Equal(t, "/ivindex/_bulk", cluster.bulkPath)
	lines := strings.Split(strings.TrimSpace(cluster.bulkBody), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"create":{}}`, lines[0])
	assert.Contains(t, lines[1], `"underlying":"BTC"`)
	assert.Contains(t, lines[1], `"cycle_id":"c-1"`)
	assert.Contains(t, lines[1], `"value":55.5`)
}

func TestElasticSearch_CommitError(t *testing.T) {
	es, _ := newTestES(t, http.StatusBadRequest)

	err := es.Commit(context.Background(), []Record{testRecord()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.NoError(t, es.Commit(context.Background(), nil))
}
