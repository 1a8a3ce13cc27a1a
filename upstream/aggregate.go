package upstream

import (
	"context"

	"github.com/rld-labs/dashrelay/internal/logging"
)

// Record is one flattened record: id + createdTime merged with the
// upstream field values at the top level.
type Record map[string]any

// ID returns the record identifier, or "" if the upstream omitted it.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// PaginationInfo reports how an aggregated response was assembled.
type PaginationInfo struct {
	TotalRecords         int  `json:"total_records"`
	PagesFetched         int  `json:"pages_fetched"`
	ServerSidePagination bool `json:"server_side_pagination"`
	DuplicatesRemoved    int  `json:"duplicates_removed"`
}

// RecordsResponse is the aggregated envelope returned to dashboard
// clients. Offset is always null: the relay consumes every upstream
// cursor itself.
type RecordsResponse struct {
	Records        []Record       `json:"records"`
	Offset         *string        `json:"offset"`
	PaginationInfo PaginationInfo `json:"pagination_info"`
}

// RecordsQuery describes one aggregation request.
type RecordsQuery struct {
	BaseID  string
	TableID string
	// Filter is the optional filterByFormula expression, carried on
	// every page.
	Filter string
	// MaxRecords caps the total records returned; 0 means fetch
	// everything the upstream has.
	MaxRecords int
}

// FetchAll runs the sequential pagination loop: one page per iteration,
// each page's cursor coming from the previous response. It stops when
// the upstream reports no further pages, the page ceiling is hit, or a
// requested cap is satisfied. Any page failure aborts the whole
// operation — no partial results are ever returned.
func (a *Airtable) FetchAll(ctx context.Context, q RecordsQuery) (*RecordsResponse, error) {
	log := logging.FromContext(ctx)

	var all []Record
	var offset string
	pages := 0

	for pages < a.limits.MaxPages {
		if q.MaxRecords > 0 && len(all) >= q.MaxRecords {
			break
		}
		pages++

		pq := pageQuery{
			baseID:  q.BaseID,
			tableID: q.TableID,
			filter:  q.Filter,
			offset:  offset,
		}
		if q.MaxRecords > 0 {
			// Ask only for what is still missing, within the upstream's
			// per-page limit. With no cap the parameter is omitted and
			// the upstream's default page size applies.
			remaining := q.MaxRecords - len(all)
			pq.limit = min(a.limits.PageSize, remaining)
		}

		page, err := a.fetchPage(ctx, pq)
		if err != nil {
			log.Error("page fetch failed",
				"base_id", q.BaseID,
				"table_id", q.TableID,
				"page", pages,
				"error", err.Error(),
			)
			return nil, err
		}

		for _, rec := range page.Records {
			all = append(all, rec.Flatten())
		}
		log.Debug("page fetched",
			"page", pages,
			"records", len(page.Records),
			"accumulated", len(all),
		)

		// An empty page that still carries a cursor continues: some
		// upstreams do this transiently. The page ceiling is the only
		// runaway guard.
		offset = page.Offset
		if offset == "" {
			break
		}
	}

	unique, removed := dedupe(all)
	if q.MaxRecords > 0 && len(unique) > q.MaxRecords {
		unique = unique[:q.MaxRecords]
	}

	log.Info("aggregation complete",
		"base_id", q.BaseID,
		"table_id", q.TableID,
		"records", len(unique),
		"pages", pages,
		"duplicates_removed", removed,
	)

	return &RecordsResponse{
		Records: unique,
		Offset:  nil,
		PaginationInfo: PaginationInfo{
			TotalRecords:         len(unique),
			PagesFetched:         pages,
			ServerSidePagination: true,
			DuplicatesRemoved:    removed,
		},
	}, nil
}

// dedupe drops records whose id was already seen, preserving first-seen
// order. Records without an id cannot be matched against anything and
// are all kept. It returns the unique records and the number removed.
func dedupe(records []Record) ([]Record, int) {
	seen := make(map[string]struct{}, len(records))
	unique := records[:0:0]
	for _, rec := range records {
		id := rec.ID()
		if id == "" {
			unique = append(unique, rec)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, rec)
	}
	if unique == nil {
		unique = []Record{}
	}
	return unique, len(records) - len(unique)
}
