package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 10
	// MaxLimit caps how many rows any page query can request.
	MaxLimit = 100
)

// Page describes one page of an offset-paginated result set. TotalItems and
// TotalPages are computed from the same filter predicate that selected the
// rows, so the two always reconcile.
type Page struct {
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	TotalItems  int `json:"totalItems"`
}

// NewPage derives the pagination envelope for a filtered count.
func NewPage(currentPage, limit int, totalItems int64) Page {
	return Page{
		TotalPages:  TotalPages(totalItems, limit),
		CurrentPage: currentPage,
		TotalItems:  int(totalItems),
	}
}

// ClampLimit enforces the provided default and maximum page sizes.
func ClampLimit(limit, fallback, max int) int {
	if fallback <= 0 {
		fallback = DefaultLimit
	}
	if max <= 0 {
		max = MaxLimit
	}
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

// NormalizePage coerces the 1-indexed page number into range.
func NormalizePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}

// Offset converts a 1-indexed page into a row offset.
func Offset(page, limit int) int {
	return (NormalizePage(page) - 1) * limit
}

// TotalPages is ceil(totalItems/limit); zero items means zero pages.
func TotalPages(totalItems int64, limit int) int {
	if totalItems <= 0 || limit <= 0 {
		return 0
	}
	return int((totalItems + int64(limit) - 1) / int64(limit))
}

// Cursor marks a resume point in the append sequence. Seq is assigned by the
// store at append time and is strictly increasing, so keyset iteration on it
// never skips or repeats rows under concurrent appends.
type Cursor struct {
	Seq int64
}

// EncodeCursor builds a base64 cursor string from the provided values.
func EncodeCursor(cursor Cursor) string {
	payload := fmt.Sprintf("seq|%d", cursor.Seq)
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes the cursor string back into its components.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[0] != "seq" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor sequence: %w", err)
	}
	return &Cursor{Seq: seq}, nil
}
