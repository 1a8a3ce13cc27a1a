package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Key identifies one records query. Two logically identical requests
// always produce the same key.
type Key struct {
	BaseID  string
	TableID string
	// Filter is the filterByFormula expression, or "" when absent.
	Filter string
	// MaxRecords is the requested cap; 0 means unbounded.
	MaxRecords int
}

// canonical renders the key parts in a fixed order.
// Format: records:<base>:<table>:filter=<f>:max=<n|all>
func (k Key) canonical() string {
	capPart := "all"
	if k.MaxRecords > 0 {
		capPart = strconv.Itoa(k.MaxRecords)
	}
	return strings.Join([]string{
		"records",
		k.BaseID,
		k.TableID,
		"filter=" + k.Filter,
		"max=" + capPart,
	}, ":")
}

// Hash returns the hex digest used as the cache map key.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.canonical()))
	return hex.EncodeToString(sum[:])
}
