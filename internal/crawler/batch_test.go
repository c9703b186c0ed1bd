package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalogsync/internal/model"
)

// productsServer answers productsArray-style requests. fail decides, per
// requested id list, which status to send instead of a body.
type productsServer struct {
	mu    sync.Mutex
	calls []string
	fail  func(ids string) int
	drop  map[string]bool
}

func (s *productsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query().Get("productIds")
	s.mu.Lock()
	s.calls = append(s.calls, ids)
	s.mu.Unlock()

	if s.fail != nil {
		if code := s.fail(ids); code != 0 {
			w.WriteHeader(code)
			return
		}
	}
	var products []map[string]any
	for _, id := range strings.Split(ids, ",") {
		if s.drop[id] {
			continue
		}
		products = append(products, map[string]any{"id": id, "nameEn": "Item " + id})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"products": products})
}

func newTestFetcher(t *testing.T, srv *httptest.Server, opts FetcherOptions) *Fetcher {
	t.Helper()
	fields, err := NewFieldMap(nil)
	require.NoError(t, err)
	opts.ProductsURL = srv.URL + "/productsArray?productIds={product_ids}&categoryId={category_id}&appId=1"
	f, err := NewFetcher(NewSession(SessionOptions{Timeout: 5 * time.Second}, zap.NewNop()), opts, fields, zap.NewNop())
	require.NoError(t, err)
	f.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return f
}

func TestPartition(t *testing.T) {
	assert.Equal(t, [][]string{{"A", "B"}, {"C"}}, Partition([]string{"A", "B", "C"}, 2))
	assert.Empty(t, Partition(nil, 50))
	assert.Len(t, Partition(make([]string, 120), 50), 3)
}

func TestFetchCategory_FailedBatchDoesNotStopOthers(t *testing.T) {
	ps := &productsServer{fail: func(ids string) int {
		if ids == "A,B" {
			return http.StatusBadGateway
		}
		return 0
	}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherOptions{BatchSize: 2, MaxAttempts: 3})
	results := f.FetchCategory(context.Background(), model.Category{ID: "men"}, []string{"A", "B", "C"})

	require.Len(t, results, 2)
	assert.Equal(t, BatchFailure, results[0].Status)
	assert.Equal(t, []string{"A", "B"}, results[0].FailedIDs)
	assert.Equal(t, 3, results[0].Attempts)
	assert.True(t, errors.Is(results[0].Err, ErrBatchFailed))

	assert.Equal(t, BatchSuccess, results[1].Status)
	require.Len(t, results[1].Records, 1)
	assert.Equal(t, "C", results[1].Records[0].ID)

	// three attempts for [A,B], one for [C]
	assert.Equal(t, []string{"A,B", "A,B", "A,B", "C"}, ps.calls)
}

func TestFetchCategory_RetryThenSuccess(t *testing.T) {
	n := 0
	ps := &productsServer{fail: func(string) int {
		n++
		if n < 3 {
			return http.StatusTooManyRequests
		}
		return 0
	}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherOptions{BatchSize: 50, MaxAttempts: 3})
	results := f.FetchCategory(context.Background(), model.Category{ID: "1"}, []string{"A", "B"})

	require.Len(t, results, 1)
	assert.Equal(t, BatchSuccess, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Len(t, results[0].Records, 2)
}

func TestFetchCategory_ForbiddenIsNotRetried(t *testing.T) {
	ps := &productsServer{fail: func(string) int { return http.StatusForbidden }}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherOptions{BatchSize: 50, MaxAttempts: 3})
	results := f.FetchCategory(context.Background(), model.Category{ID: "1"}, []string{"A"})

	require.Len(t, results, 1)
	assert.Equal(t, BatchFailure, results[0].Status)
	assert.Equal(t, 1, results[0].Attempts)
	assert.True(t, errors.Is(results[0].Err, ErrForbidden))
	assert.Len(t, ps.calls, 1)
}

func TestFetchCategory_MissingIDsArePartial(t *testing.T) {
	ps := &productsServer{drop: map[string]bool{"B": true}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherOptions{BatchSize: 50})
	results := f.FetchCategory(context.Background(), model.Category{ID: "1"}, []string{"A", "B", "C"})

	require.Len(t, results, 1)
	assert.Equal(t, BatchPartialFailure, results[0].Status)
	assert.Equal(t, []string{"B"}, results[0].FailedIDs)
	assert.Len(t, results[0].Records, 2)
}

func TestFetchCategory_MalformedBodyIsRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"unexpected": true}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherOptions{BatchSize: 50, MaxAttempts: 2})
	results := f.FetchCategory(context.Background(), model.Category{ID: "1"}, []string{"A"})

	assert.Equal(t, BatchFailure, results[0].Status)
	assert.True(t, errors.Is(results[0].Err, ErrMalformedBody))
	assert.Equal(t, 2, calls)
}

func TestFetchCategory_IgnoresForeignRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"products":[{"id":123,"name":"a"},{"id":999,"name":"stray"},{"id":123,"name":"dup"}]}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, FetcherOptions{BatchSize: 50})
	results := f.FetchCategory(context.Background(), model.Category{ID: "1"}, []string{"123"})

	require.Len(t, results[0].Records, 1)
	assert.Equal(t, "123", results[0].Records[0].ID)
	assert.Equal(t, BatchSuccess, results[0].Status)
}

func TestFetchCategory_Concurrent(t *testing.T) {
	ps := &productsServer{}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", 700000+i)
	}
	f := newTestFetcher(t, srv, FetcherOptions{BatchSize: 3, Concurrency: 2})
	results := f.FetchCategory(context.Background(), model.Category{ID: "1"}, ids)

	require.Len(t, results, 4)
	total := 0
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, BatchSuccess, r.Status)
		total += len(r.Records)
	}
	assert.Equal(t, 10, total)
}

func TestBatchURL(t *testing.T) {
	f := &Fetcher{opts: FetcherOptions{ProductsURL: "https://x.test/p?productIds={product_ids}&categoryId={category_id}"}}
	got := f.batchURL(model.Category{ID: "1030204838"}, []string{"1", "2", "3"})
	assert.Equal(t, "https://x.test/p?productIds=1%2C2%2C3&categoryId=1030204838", got)
}

func TestBackoff(t *testing.T) {
	f := &Fetcher{opts: FetcherOptions{Backoff: time.Second, MaxBackoff: 3 * time.Second}}
	assert.Equal(t, time.Second, f.backoff(1))
	assert.Equal(t, 2*time.Second, f.backoff(2))
	assert.Equal(t, 3*time.Second, f.backoff(3))
}
