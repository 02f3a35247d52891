package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/StrathCole/ivindex-go/pkg/config"
)

// ElasticSearch bulk indexes records.
type ElasticSearch struct {
	ES        *elasticsearch.Client
	IndexName string
	timeout   time.Duration
}

// esData is the indexed document of one record.
type esData struct {
	Underlying string    `json:"underlying"`
	CycleID    string    `json:"cycle_id"`
	Value      float64   `json:"value"`
	Sigma2     float64   `json:"sigma2"`
	Sigma2Raw  float64   `json:"sigma2_raw"`
	Method     string    `json:"method"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewElasticSearch creates a client and pings the cluster.
func NewElasticSearch(ctx context.Context, cfg config.ESConfig) (*ElasticSearch, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		t.MaxIdleConns = cfg.MaxIdleConns
		t.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: t,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create elasticsearch client")
	}

	pingCtx, cancel := withTimeout(ctx, cfg.Timeout.ToDuration())
	defer cancel()
	resp, err := es.Ping(es.Ping.WithContext(pingCtx))
	if err != nil {
		return nil, errors.Wrap(err, "ping elasticsearch")
	}
	resp.Body.Close()
	if resp.IsError() {
		return nil, errors.Errorf("ping elasticsearch: %s", resp.Status())
	}

	index := cfg.IndexName
	if index == "" {
		index = config.DefaultTable
	}
	return &ElasticSearch{ES: es, IndexName: index, timeout: cfg.Timeout.ToDuration()}, nil
}

// Name implements Sink.
func (e *ElasticSearch) Name() string { return "elasticsearch" }

// Commit bulk indexes the records.
func (e *ElasticSearch) Commit(appCtx context.Context, data []Record) error {
	if len(data) == 0 {
		return nil
	}

	var buf bytes.Buffer
	createdAt := time.Now().UTC()
	for _, r := range data {
		meta := []byte(fmt.Sprintf(`{"create":{}}%s`, "\n"))
		esBytes, err := jsoniter.Marshal(esData{
			Underlying: r.Underlying,
			CycleID:    r.CycleID,
			Value:      r.Value,
			Sigma2:     r.Sigma2,
			Sigma2Raw:  r.Sigma2Raw,
			Method:     r.Method,
			Timestamp:  r.Timestamp,
			CreatedAt:  createdAt,
		})
		if err != nil {
			return errors.WithStack(err)
		}
		esBytes = append(esBytes, "\n"...)
		buf.Grow(len(meta) + len(esBytes))
		buf.Write(meta)
		buf.Write(esBytes)
	}

	ctx, cancel := withTimeout(appCtx, e.timeout)
	defer cancel()
	resp, err := e.ES.Bulk(bytes.NewReader(buf.Bytes()), e.ES.Bulk.WithIndex(e.IndexName), e.ES.Bulk.WithContext(ctx))
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("code : %v, status : %v", resp.StatusCode, resp.Status())
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return errors.WithStack(err)
}

// Close implements Sink.
func (e *ElasticSearch) Close() error { return nil }
