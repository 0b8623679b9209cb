package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

const sampleTrace = `{
	"assetID": "ASSET_HEO_001",
	"fullHistory": [
		{"details": {"feeds": [{"name": "Cám A", "dosageKg": 2.5, "startDate": "2025-01-01", "endDate": "2025-02-01", "notes": "ăn tốt"}],
		             "medications": [{"name": "Vắc-xin tai xanh", "dose": "2ml", "dateApplied": "2025-01-10", "nextDueDate": "2025-04-10"}]}}
	]
}`

// dropConnection kills the TCP connection so the client sees a transport
// error rather than an HTTP status.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(err)
	}
	conn.Close()
}

func TestFetchRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			dropConnection(w)
			return
		}
		w.Write([]byte(sampleTrace))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 3, nil, zap.NewNop())
	got, err := c.Fetch(context.Background(), "ASSET_HEO_001")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}

	details := got.LatestDetails()
	if details == nil || len(details.Feeds) != 1 {
		t.Fatalf("unexpected trace payload: %+v", got)
	}
	if details.Feeds[0].Name != "Cám A" || details.Feeds[0].DosageKg != 2.5 {
		t.Fatalf("unexpected feed: %+v", details.Feeds[0])
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		dropConnection(w)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 3, nil, zap.NewNop())
	_, err := c.Fetch(context.Background(), "ASSET_HEO_001")
	if !errors.Is(err, ErrExhaustedRetries) {
		t.Fatalf("expected ErrExhaustedRetries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls.Load())
	}
}

func TestFetchNonSuccessStatusFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "asset not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 3, nil, zap.NewNop())
	_, err := c.Fetch(context.Background(), "ASSET_BO_404")

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", remote.Status)
	}
	if calls.Load() != 1 {
		t.Fatalf("non-2xx must not be retried, saw %d attempts", calls.Load())
	}
}

func TestFetchEmptyAssetID(t *testing.T) {
	c := NewClient("http://unused", time.Second, 3, nil, zap.NewNop())

	if _, err := c.Fetch(context.Background(), "  "); !errors.Is(err, ErrInvalidAssetID) {
		t.Fatalf("expected ErrInvalidAssetID, got %v", err)
	}
}

type mapCache struct {
	data map[string][]byte
	sets int
}

func (m *mapCache) Get(_ context.Context, assetID string) ([]byte, bool) {
	b, ok := m.data[assetID]
	return b, ok
}

func (m *mapCache) Set(_ context.Context, assetID string, body []byte) {
	m.sets++
	m.data[assetID] = body
}

func TestFetchReadsThroughCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(sampleTrace))
	}))
	defer srv.Close()

	cache := &mapCache{data: map[string][]byte{}}
	c := NewClient(srv.URL, time.Second, 3, cache, zap.NewNop())

	if _, err := c.Fetch(context.Background(), "ASSET_HEO_001"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := c.Fetch(context.Background(), "ASSET_HEO_001"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected second fetch served from cache, saw %d remote calls", calls.Load())
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}
}

func TestEntriesFallsBackToHistory(t *testing.T) {
	tr := &Trace{History: []HistoryEntry{{Details: Details{Feeds: []Feed{{Name: "Cám B"}}}}}}
	if d := tr.LatestDetails(); d == nil || d.Feeds[0].Name != "Cám B" {
		t.Fatalf("expected history fallback, got %+v", d)
	}

	empty := &Trace{}
	if d := empty.LatestDetails(); d != nil {
		t.Fatalf("expected nil details for empty trace, got %+v", d)
	}
}
