package dashrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rld-labs/dashrelay/internal/validate"
	"github.com/rld-labs/dashrelay/upstream"
)

// newTestRelay builds a relay whose upstreams point at the given fake
// servers, with fast timeouts and testing-profile limits.
func newTestRelay(t *testing.T, chatURL, airtableURL string) *Relay {
	t.Helper()
	cfg := DefaultConfig(ProfileTesting)
	cfg.Upstreams.ChatURL = chatURL
	cfg.Upstreams.AirtableURL = airtableURL
	cfg.Timeouts.Chat = Duration(2 * time.Second)
	cfg.Timeouts.Airtable = Duration(2 * time.Second)

	r, err := New(cfg, Credentials{AnthropicAPIKey: "anth-key", AirtableAPIKey: "air-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func recordsBody(n int) string {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"id":          fmt.Sprintf("rec%06d", i),
			"createdTime": "2026-01-01T00:00:00.000Z",
			"fields":      map[string]any{"Value": i},
		}
	}
	body, _ := json.Marshal(map[string]any{"records": records})
	return string(body)
}

func TestNew_RequiresCredentials(t *testing.T) {
	cfg := DefaultConfig(ProfileTesting)
	if _, err := New(cfg, Credentials{AirtableAPIKey: "x"}); err == nil {
		t.Error("missing anthropic key accepted")
	}
	if _, err := New(cfg, Credentials{AnthropicAPIKey: "x"}); err == nil {
		t.Error("missing airtable key accepted")
	}
}

func TestRelayRecords_CachesOnSuccess(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, recordsBody(10))
	}))
	defer srv.Close()

	r := newTestRelay(t, "http://unused.invalid", srv.URL)
	p := validate.Params{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN"}

	first, err := r.Records(context.Background(), p)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if first.PaginationInfo.TotalRecords != 10 {
		t.Fatalf("got %d records, want 10", first.PaginationInfo.TotalRecords)
	}

	second, err := r.Records(context.Background(), p)
	if err != nil {
		t.Fatalf("Records (cached): %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("upstream called %d times, want the second request served from cache", got)
	}
	if second.PaginationInfo.TotalRecords != 10 {
		t.Errorf("cached payload differs: %+v", second.PaginationInfo)
	}
}

func TestRelayRecords_DistinctQueriesDistinctEntries(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, recordsBody(5))
	}))
	defer srv.Close()

	r := newTestRelay(t, "http://unused.invalid", srv.URL)
	base := validate.Params{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN"}

	if _, err := r.Records(context.Background(), base); err != nil {
		t.Fatal(err)
	}
	capped := base
	capped.MaxRecords = 50
	if _, err := r.Records(context.Background(), capped); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("upstream called %d times, want a separate fetch per distinct query", got)
	}
	if r.CacheStats().TotalEntries != 2 {
		t.Errorf("cache holds %d entries, want 2", r.CacheStats().TotalEntries)
	}
}

func TestRelayRecords_FailureNotCached(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"AUTHENTICATION_REQUIRED","message":"bad key"}}`)
	}))
	defer srv.Close()

	r := newTestRelay(t, "http://unused.invalid", srv.URL)
	p := validate.Params{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN"}

	_, err := r.Records(context.Background(), p)
	var uerr *upstream.Error
	if !errors.As(err, &uerr) || uerr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want a rejected 401", err)
	}
	if r.CacheStats().TotalEntries != 0 {
		t.Error("failed response was cached")
	}

	// A retry goes back upstream.
	_, _ = r.Records(context.Background(), p)
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("upstream called %d times, want 2", got)
	}
}

func TestRelayRecords_SharedFetchSurvivesCallerDisconnect(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, recordsBody(4))
	}))
	defer srv.Close()

	r := newTestRelay(t, "http://unused.invalid", srv.URL)
	p := validate.Params{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN"}

	// First client starts the fetch, then disconnects mid-flight.
	ctxA, cancelA := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = r.Records(ctxA, p)
	}()
	<-started

	// Second client joins the in-flight fetch for the same key.
	type result struct {
		resp *upstream.RecordsResponse
		err  error
	}
	second := make(chan result, 1)
	go func() {
		resp, err := r.Records(context.Background(), p)
		second <- result{resp, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	close(release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second client failed after the first disconnected: %v", got.err)
	}
	if got.resp.PaginationInfo.TotalRecords != 4 {
		t.Errorf("got %d records, want 4", got.resp.PaginationInfo.TotalRecords)
	}
	<-firstDone
}

func TestRelayRecords_FilteredQueriesExpireSooner(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, recordsBody(2))
	}))
	defer srv.Close()

	cfg := DefaultConfig(ProfileTesting)
	cfg.Upstreams.ChatURL = "http://unused.invalid"
	cfg.Upstreams.AirtableURL = srv.URL
	cfg.Cache.UnfilteredTTL = Duration(time.Hour)
	cfg.Cache.FilteredTTL = Duration(30 * time.Millisecond)

	r, err := New(cfg, Credentials{AnthropicAPIKey: "a", AirtableAPIKey: "b"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plain := validate.Params{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN"}
	filtered := plain
	filtered.Filter = "{Status}='open'"

	for _, p := range []validate.Params{plain, filtered} {
		if _, err := r.Records(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("upstream called %d times after warmup, want 2", got)
	}

	time.Sleep(60 * time.Millisecond)

	// Past the filtered TTL: the filtered entry has aged out, the
	// unfiltered one is still fresh.
	if _, err := r.Records(context.Background(), plain); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("unfiltered query refetched, want it served from cache (calls=%d)", got)
	}
	if _, err := r.Records(context.Background(), filtered); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Errorf("filtered query not refetched after its TTL (calls=%d)", got)
	}
}

func TestRelayCacheClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, recordsBody(3))
	}))
	defer srv.Close()

	r := newTestRelay(t, "http://unused.invalid", srv.URL)
	p := validate.Params{BaseID: "appABCDEFGHIJKLMN", TableID: "tblABCDEFGHIJKLMN"}
	if _, err := r.Records(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if r.CacheStats().TotalEntries != 1 {
		t.Fatalf("cache holds %d entries, want 1", r.CacheStats().TotalEntries)
	}

	r.CacheClear()
	if r.CacheStats().TotalEntries != 0 {
		t.Error("cache not empty after clear")
	}
}

func TestRelayChat_PassesBodyThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"msg_42","content":[{"type":"text","text":"ok"}]}`)
	}))
	defer srv.Close()

	r := newTestRelay(t, srv.URL, "http://unused.invalid")
	body, err := r.Chat(context.Background(), upstream.ChatRequest{
		Messages: []upstream.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("chat body not valid JSON: %v", err)
	}
	if parsed["id"] != "msg_42" {
		t.Errorf("body = %s", body)
	}
}

func TestRelayValidateRecordsQuery_UsesConfiguredLimits(t *testing.T) {
	// The testing profile caps maxRecords at 100.
	r := newTestRelay(t, "http://unused.invalid", "http://unused.invalid")
	if _, errs := r.ValidateRecordsQuery("appABCDEFGHIJKLMN", "tblABCDEFGHIJKLMN", "101", ""); len(errs) == 0 {
		t.Error("cap above the profile ceiling accepted")
	}
	if _, errs := r.ValidateRecordsQuery("appABCDEFGHIJKLMN", "tblABCDEFGHIJKLMN", "100", ""); errs != nil {
		t.Errorf("cap at the ceiling rejected: %v", errs)
	}
}

func TestRelayHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Any HTTP answer counts as reachable, even a 401.
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := newTestRelay(t, "http://unused.invalid", srv.URL)
	h := r.Health(context.Background())
	if h.Status != StatusHealthy {
		t.Errorf("status = %q, want healthy", h.Status)
	}
	for _, name := range []string{"environment", "cache", "airtable"} {
		if _, ok := h.Components[name]; !ok {
			t.Errorf("component %q missing", name)
		}
	}
}

func TestRelayHealth_UnreachableUpstreamDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // probe target is gone

	r := newTestRelay(t, "http://unused.invalid", srv.URL)
	h := r.Health(context.Background())
	if h.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded when the probe fails", h.Status)
	}
	if h.Components["airtable"].Status != StatusWarning {
		t.Errorf("airtable component = %+v, want warning", h.Components["airtable"])
	}
}
