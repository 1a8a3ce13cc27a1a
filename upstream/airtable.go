package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rld-labs/dashrelay/tables"
)

// AirtableLimits guards the pagination loop.
type AirtableLimits struct {
	// PageSize is the most records the upstream returns per page.
	PageSize int
	// MaxPages is the hard ceiling on pages per aggregation. It is a
	// defensive guard against runaway pagination, not a normal
	// termination condition.
	MaxPages int
}

// Airtable is the client for the Airtable REST API. It performs one
// bounded GET per page; the aggregation loop lives in aggregate.go.
type Airtable struct {
	http    *resty.Client
	limits  AirtableLimits
	catalog tables.Catalog
}

// NewAirtable creates an Airtable client. timeout bounds each single
// page request; catalog supplies the per-table sort directives.
func NewAirtable(apiKey, baseURL string, timeout time.Duration, limits AirtableLimits, catalog tables.Catalog) *Airtable {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")

	return &Airtable{
		http:    rc,
		limits:  limits,
		catalog: catalog,
	}
}

// airtableRecord is one record as the upstream returns it.
type airtableRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

// airtablePage is one page of the upstream list-records response.
// A non-empty Offset means more pages exist.
type airtablePage struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset"`
}

type airtableErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// pageQuery is the request for a single page.
type pageQuery struct {
	baseID  string
	tableID string
	filter  string
	offset  string
	// limit is the per-page maxRecords parameter; 0 omits it so the
	// upstream uses its default page size.
	limit int
}

// fetchPage performs one bounded GET against the upstream and decodes
// the page. Any transport failure or non-2xx status returns an *Error.
func (a *Airtable) fetchPage(ctx context.Context, q pageQuery) (*airtablePage, error) {
	params := map[string]string{}
	if q.offset != "" {
		params["offset"] = q.offset
	}
	if q.limit > 0 {
		params["maxRecords"] = strconv.Itoa(q.limit)
	}
	if q.filter != "" {
		params["filterByFormula"] = q.filter
	}
	if t, ok := a.catalog.Lookup(q.tableID); ok {
		params["sort[0][field]"] = t.DateField
		params["sort[0][direction]"] = t.SortDirection
	}

	var page airtablePage
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&page).
		Get(fmt.Sprintf("/%s/%s", q.baseID, q.tableID))
	if err != nil {
		return nil, transportError(NameAirtable, err)
	}
	if resp.IsError() {
		var body airtableErrorBody
		msg := ""
		if json.Unmarshal(resp.Body(), &body) == nil {
			msg = body.Error.Message
		}
		return nil, rejectedError(NameAirtable, resp.StatusCode(), msg)
	}

	return &page, nil
}

// Ping probes upstream reachability for health checks. Any HTTP
// response, including 401/403, counts as reachable; only transport
// failures are errors.
func (a *Airtable) Ping(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := a.http.R().SetContext(tctx).Get("/meta")
	if err != nil {
		return transportError(NameAirtable, err)
	}
	return nil
}

// Flatten merges a record's identifier and creation time with its field
// values into one flat mapping.
func (r airtableRecord) Flatten() Record {
	flat := make(Record, len(r.Fields)+2)
	flat["id"] = r.ID
	flat["createdTime"] = r.CreatedTime
	for k, v := range r.Fields {
		flat[k] = v
	}
	return flat
}
