// Package dashrelay is a backend relay for a browser analytics
// dashboard. It forwards chat completions to the Anthropic Messages API
// and proxies paginated record queries against the Airtable REST API,
// aggregating pages server-side behind a short-lived cache.
//
// The Relay type is the main entry point: build a Config with
// DefaultConfig (optionally overlaid via LoadConfig), create a Relay
// with New, and mount its operations behind HTTP handlers.
package dashrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rld-labs/dashrelay/internal/cache"
	"github.com/rld-labs/dashrelay/internal/logging"
	"github.com/rld-labs/dashrelay/internal/metrics"
	"github.com/rld-labs/dashrelay/internal/requestlog"
	"github.com/rld-labs/dashrelay/internal/validate"
	"github.com/rld-labs/dashrelay/internal/version"
	"github.com/rld-labs/dashrelay/tables"
	"github.com/rld-labs/dashrelay/upstream"
)

// Credentials holds the upstream API keys. Both are required; the
// process must not start without them.
type Credentials struct {
	AnthropicAPIKey string
	AirtableAPIKey  string
}

// Relay orchestrates validation, caching, and upstream calls. All state
// is owned explicitly by the instance; there is no package-level cache.
type Relay struct {
	cfg      Config
	cache    *cache.Memory
	airtable *upstream.Airtable
	chat     *upstream.Chat
	catalog  tables.Catalog
	reqlog   requestlog.Writer
	group    singleflight.Group
}

// New creates a Relay from a validated Config and upstream credentials.
func New(cfg Config, creds Credentials) (*Relay, error) {
	if creds.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if creds.AirtableAPIKey == "" {
		return nil, fmt.Errorf("airtable API key is required")
	}

	catalog, err := tables.Load()
	if err != nil {
		// Non-fatal: pagination still works, pages just go unsorted.
		logging.Logger.Warn("table catalog unavailable", "error", err.Error())
		catalog = tables.Catalog{}
	}

	return &Relay{
		cfg:   cfg,
		cache: cache.NewMemory(),
		airtable: upstream.NewAirtable(
			creds.AirtableAPIKey,
			cfg.Upstreams.AirtableURL,
			time.Duration(cfg.Timeouts.Airtable),
			upstream.AirtableLimits{
				PageSize: cfg.Limits.PageSize,
				MaxPages: cfg.Limits.MaxPages,
			},
			catalog,
		),
		chat:    upstream.NewChat(creds.AnthropicAPIKey, cfg.Upstreams.ChatURL, time.Duration(cfg.Timeouts.Chat)),
		catalog: catalog,
		reqlog:  requestlog.NoopWriter{},
	}, nil
}

// SetRequestLog installs a persistent request-log writer. Without one,
// entries are discarded.
func (r *Relay) SetRequestLog(w requestlog.Writer) {
	if w != nil {
		r.reqlog = w
	}
}

// Config returns the configuration the relay was built with.
func (r *Relay) Config() Config {
	return r.cfg
}

// Catalog returns the loaded table catalog.
func (r *Relay) Catalog() tables.Catalog {
	return r.catalog
}

// ValidateRecordsQuery applies the parameter rules using the relay's
// configured limits. It returns either normalized parameters or the
// full list of violation messages.
func (r *Relay) ValidateRecordsQuery(baseID, tableID, maxRecordsStr, filter string) (validate.Params, []string) {
	return validate.RecordsQuery(baseID, tableID, maxRecordsStr, filter, validate.Limits{
		MaxTotalRecords: r.cfg.Limits.MaxTotalRecords,
		MaxFilterLength: r.cfg.Limits.MaxFilterLength,
	})
}

// Records serves an aggregated records response: cache lookup first,
// then — on a miss — the full pagination loop, with the result stored
// for the TTL class of the query (filtered queries age out faster).
// Concurrent identical misses share a single upstream fetch.
func (r *Relay) Records(ctx context.Context, p validate.Params) (*upstream.RecordsResponse, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	ttl := time.Duration(r.cfg.Cache.UnfilteredTTL)
	if p.Filter != "" {
		ttl = time.Duration(r.cfg.Cache.FilteredTTL)
	}
	key := cache.Key{
		BaseID:     p.BaseID,
		TableID:    p.TableID,
		Filter:     p.Filter,
		MaxRecords: p.MaxRecords,
	}.Hash()

	if payload, ok := r.cache.Get(key, ttl); ok {
		latency := time.Since(start)
		metrics.CacheHits.Inc()
		metrics.RequestsTotal.WithLabelValues("records", "success").Inc()
		metrics.RequestDuration.WithLabelValues("records").Observe(latency.Seconds())
		log.Info("records served from cache",
			"base_id", p.BaseID,
			"table_id", p.TableID,
			"records", payload.PaginationInfo.TotalRecords,
		)
		r.logRequest(ctx, requestlog.Entry{
			Endpoint:  "records",
			BaseID:    p.BaseID,
			TableID:   p.TableID,
			Records:   payload.PaginationInfo.TotalRecords,
			Pages:     payload.PaginationInfo.PagesFetched,
			CacheHit:  true,
			LatencyMS: latency.Milliseconds(),
		})
		return payload, nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := r.group.Do(key, func() (any, error) {
		// The flight is shared by every caller waiting on this key and
		// may outlive the one that started it. Detach it from that
		// caller's lifetime (values, including the trace ID, survive) so
		// one client disconnecting cannot fail the others.
		fctx := context.WithoutCancel(ctx)
		resp, err := r.airtable.FetchAll(fctx, upstream.RecordsQuery{
			BaseID:     p.BaseID,
			TableID:    p.TableID,
			Filter:     p.Filter,
			MaxRecords: p.MaxRecords,
		})
		if err != nil {
			return nil, err
		}
		r.cache.Set(key, resp)
		metrics.CacheEntries.Set(float64(r.cache.Len()))
		return resp, nil
	})
	latency := time.Since(start)

	if err != nil {
		r.countFailure("records", err)
		log.Error("records aggregation failed",
			"base_id", p.BaseID,
			"table_id", p.TableID,
			"latency_ms", latency.Milliseconds(),
			"error", err.Error(),
		)
		r.logRequest(ctx, requestlog.Entry{
			Endpoint:  "records",
			BaseID:    p.BaseID,
			TableID:   p.TableID,
			LatencyMS: latency.Milliseconds(),
			Error:     err.Error(),
		})
		return nil, err
	}

	resp := v.(*upstream.RecordsResponse)
	metrics.RequestsTotal.WithLabelValues("records", "success").Inc()
	metrics.RequestDuration.WithLabelValues("records").Observe(latency.Seconds())
	metrics.PagesFetched.Observe(float64(resp.PaginationInfo.PagesFetched))
	metrics.RecordsReturned.Observe(float64(resp.PaginationInfo.TotalRecords))

	log.Info("records aggregated",
		"base_id", p.BaseID,
		"table_id", p.TableID,
		"records", resp.PaginationInfo.TotalRecords,
		"pages", resp.PaginationInfo.PagesFetched,
		"duplicates_removed", resp.PaginationInfo.DuplicatesRemoved,
		"latency_ms", latency.Milliseconds(),
	)
	r.logRequest(ctx, requestlog.Entry{
		Endpoint:  "records",
		BaseID:    p.BaseID,
		TableID:   p.TableID,
		Records:   resp.PaginationInfo.TotalRecords,
		Pages:     resp.PaginationInfo.PagesFetched,
		LatencyMS: latency.Milliseconds(),
	})
	return resp, nil
}

// Chat relays a completion request and returns the upstream body
// verbatim on success.
func (r *Relay) Chat(ctx context.Context, req upstream.ChatRequest) (json.RawMessage, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	body, err := r.chat.Relay(ctx, req)
	latency := time.Since(start)

	model := req.Model
	if model == "" {
		model = upstream.DefaultChatModel
	}

	if err != nil {
		r.countFailure("chat", err)
		log.Error("chat relay failed",
			"model", model,
			"latency_ms", latency.Milliseconds(),
			"error", err.Error(),
		)
		r.logRequest(ctx, requestlog.Entry{
			Endpoint:  "chat",
			Model:     model,
			LatencyMS: latency.Milliseconds(),
			Error:     err.Error(),
		})
		return nil, err
	}

	metrics.RequestsTotal.WithLabelValues("chat", "success").Inc()
	metrics.RequestDuration.WithLabelValues("chat").Observe(latency.Seconds())
	log.Info("chat relay completed",
		"model", model,
		"messages", len(req.Messages),
		"latency_ms", latency.Milliseconds(),
	)
	r.logRequest(ctx, requestlog.Entry{
		Endpoint:  "chat",
		Model:     model,
		LatencyMS: latency.Milliseconds(),
	})
	return body, nil
}

// countFailure increments the error metrics for a failed operation.
func (r *Relay) countFailure(endpoint string, err error) {
	status := "error"
	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		metrics.UpstreamErrors.WithLabelValues(uerr.Upstream, uerr.Kind.String()).Inc()
		if uerr.Kind == upstream.KindRejected {
			status = "rejected"
		}
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// CacheStats reports the cache introspection payload.
func (r *Relay) CacheStats() cache.Stats {
	return r.cache.Stats()
}

// CacheClear empties the cache.
func (r *Relay) CacheClear() {
	r.cache.Clear()
	metrics.CacheEntries.Set(0)
	logging.Logger.Info("cache cleared")
}

// Component health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusWarning   = "warning"
)

// ComponentStatus is one sub-check of the health payload.
type ComponentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthStatus is the /health response payload.
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Components map[string]ComponentStatus `json:"components"`
}

// Health runs the component sub-checks: configuration, cache, and
// upstream reachability. A warning (slow or unauthenticated upstream)
// degrades the status; only hard failures make it unhealthy.
func (r *Relay) Health(ctx context.Context) HealthStatus {
	h := HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Version:    version.Short(),
		Components: make(map[string]ComponentStatus),
	}

	h.Components["environment"] = ComponentStatus{
		Status:  StatusHealthy,
		Message: "all required credentials are set",
	}

	stats := r.cache.Stats()
	h.Components["cache"] = ComponentStatus{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d entries, ~%d bytes", stats.TotalEntries, stats.TotalSizeBytes),
	}

	if err := r.airtable.Ping(ctx, time.Duration(r.cfg.Timeouts.HealthProbe)); err != nil {
		h.Components["airtable"] = ComponentStatus{
			Status:  StatusWarning,
			Message: fmt.Sprintf("connectivity probe failed: %v", err),
		}
	} else {
		h.Components["airtable"] = ComponentStatus{
			Status:  StatusHealthy,
			Message: "airtable API is reachable",
		}
	}

	for _, comp := range h.Components {
		switch comp.Status {
		case StatusUnhealthy:
			h.Status = StatusUnhealthy
		case StatusWarning:
			if h.Status == StatusHealthy {
				h.Status = StatusDegraded
			}
		}
	}
	return h
}

// logRequest persists a request-log entry asynchronously so slow
// backends never sit on the request path.
func (r *Relay) logRequest(ctx context.Context, e requestlog.Entry) {
	e.TraceID = logging.TraceIDFromContext(ctx)
	e.CreatedAt = time.Now().UTC()
	go func() {
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.reqlog.Write(wctx, e); err != nil {
			logging.Logger.Warn("request log write failed", "error", err.Error())
		}
	}()
}
