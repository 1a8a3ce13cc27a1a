// Package validate checks records-query parameters before any upstream
// call is made. All violated rules are collected and reported together
// rather than short-circuiting on the first failure.
package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// Identifier shape rules for Airtable base and table IDs.
const (
	basePrefix  = "app"
	tablePrefix = "tbl"
	idLength    = 17
)

// blockedPatterns are substrings rejected in filter formulas,
// case-insensitively. They cover script injection and destructive query
// syntax; a formula has no business containing any of them.
var blockedPatterns = []string{
	"javascript:",
	"eval(",
	"script>",
	"drop table",
	"delete from",
}

// Limits carries the configured bounds the validator enforces.
type Limits struct {
	// MaxTotalRecords is the largest accepted record cap.
	MaxTotalRecords int
	// MaxFilterLength is the longest accepted filter formula.
	MaxFilterLength int
}

// Params is a normalized, validated records query.
type Params struct {
	BaseID  string
	TableID string
	// MaxRecords is the requested cap; 0 means no cap — fetch
	// everything available.
	MaxRecords int
	Filter     string
}

// RecordsQuery validates the raw query parameters of a records request.
// On failure it returns every violation message; the transport layer
// joins them with "; ".
func RecordsQuery(baseID, tableID, maxRecordsStr, filter string, limits Limits) (Params, []string) {
	var errs []string

	switch {
	case baseID == "":
		errs = append(errs, "baseId is required")
	case !strings.HasPrefix(baseID, basePrefix) || len(baseID) != idLength:
		errs = append(errs, fmt.Sprintf("baseId must start with %q and be %d characters long", basePrefix, idLength))
	}

	switch {
	case tableID == "":
		errs = append(errs, "tableId is required")
	case !strings.HasPrefix(tableID, tablePrefix) || len(tableID) != idLength:
		errs = append(errs, fmt.Sprintf("tableId must start with %q and be %d characters long", tablePrefix, idLength))
	}

	maxRecords := 0
	if maxRecordsStr != "" {
		n, err := strconv.Atoi(maxRecordsStr)
		switch {
		case err != nil:
			errs = append(errs, "maxRecords must be a valid integer")
		case n <= 0:
			errs = append(errs, "maxRecords must be a positive integer")
		case n > limits.MaxTotalRecords:
			errs = append(errs, fmt.Sprintf("maxRecords cannot exceed %d (configured limit)", limits.MaxTotalRecords))
		default:
			maxRecords = n
		}
	}

	if filter != "" {
		lower := strings.ToLower(filter)
		for _, pattern := range blockedPatterns {
			if strings.Contains(lower, pattern) {
				errs = append(errs, fmt.Sprintf("filter formula contains disallowed pattern: %s", pattern))
			}
		}
		if len(filter) > limits.MaxFilterLength {
			errs = append(errs, fmt.Sprintf("filter formula is too long (max %d characters)", limits.MaxFilterLength))
		}
	}

	if len(errs) > 0 {
		return Params{}, errs
	}

	return Params{
		BaseID:     baseID,
		TableID:    tableID,
		MaxRecords: maxRecords,
		Filter:     filter,
	}, nil
}
