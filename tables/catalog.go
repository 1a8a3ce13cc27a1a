// Package tables provides the table catalog — a static map from Airtable
// table IDs to their display names, date fields, and sort directions.
//
// The catalog is loaded once at startup from an embedded JSON document and
// never mutated afterwards. The sort entry for a table is what keeps
// server-side pagination deterministic: every page request for a known
// table carries the same sort directive.
package tables

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed tables.json
var bundledCatalog []byte

// CatalogFileEnv is the env var operators set to load table mappings from
// a file instead of the bundled catalog. Useful when tables are added
// without cutting a new release.
const CatalogFileEnv = "RELAY_TABLES_FILE"

// Table holds the metadata for a single Airtable table.
type Table struct {
	// ID is the Airtable table identifier ("tbl…").
	ID string `json:"id"`
	// Type is the short logical name ("ghl", "pos", "meta_ads", …).
	Type string `json:"type"`
	// Name is the human-readable table name.
	Name string `json:"name"`
	// DateField is the column used for the deterministic sort directive.
	DateField string `json:"date_field"`
	// SortDirection is "asc" or "desc".
	SortDirection string `json:"sort_direction"`
	// Legacy marks tables kept only for backward compatibility.
	Legacy bool `json:"legacy,omitempty"`
}

// Catalog maps table IDs to their metadata.
type Catalog map[string]Table

// Load returns the table catalog, preferring the file named by
// RELAY_TABLES_FILE over the bundled document.
func Load() (Catalog, error) {
	data := bundledCatalog
	if path := os.Getenv(CatalogFileEnv); path != "" {
		fileData, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("reading table catalog %s: %w", path, err)
		}
		data = fileData
	}
	return Parse(data)
}

// Parse decodes a catalog document: a JSON array of Table entries.
func Parse(data []byte) (Catalog, error) {
	var entries []Table
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing table catalog: %w", err)
	}

	catalog := make(Catalog, len(entries))
	for _, t := range entries {
		if t.ID == "" {
			return nil, fmt.Errorf("table catalog entry %q has no id", t.Name)
		}
		if t.SortDirection != "asc" && t.SortDirection != "desc" {
			return nil, fmt.Errorf("table %s has invalid sort direction %q", t.ID, t.SortDirection)
		}
		if _, dup := catalog[t.ID]; dup {
			return nil, fmt.Errorf("duplicate table id %s in catalog", t.ID)
		}
		catalog[t.ID] = t
	}
	return catalog, nil
}

// Lookup returns the metadata for a table ID. Unknown tables are not an
// error: pagination simply omits the sort directive for them.
func (c Catalog) Lookup(tableID string) (Table, bool) {
	t, ok := c[tableID]
	return t, ok
}

// IDs returns all known table IDs.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	return ids
}
