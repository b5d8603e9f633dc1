package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// DefaultMaxResults is the default page size when none is specified.
const DefaultMaxResults = 500

// MaxMaxResults is the maximum allowed page size, regardless of request.
const MaxMaxResults = 1000

// PageRequest holds pagination parameters for list operations.
type PageRequest struct {
	MaxResults int
	PageToken  string // opaque token (base64-encoded offset)
}

// Offset decodes the page token into an integer offset. An empty or
// undecodable token resets pagination to the start.
func (p PageRequest) Offset() int {
	if p.PageToken == "" {
		return 0
	}
	decoded, err := base64.StdEncoding.DecodeString(p.PageToken)
	if err != nil {
		return 0
	}
	offset, err := strconv.Atoi(string(decoded))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// Limit returns the effective page size, clamped to [1, MaxMaxResults].
func (p PageRequest) Limit() int {
	if p.MaxResults <= 0 {
		return DefaultMaxResults
	}
	if p.MaxResults > MaxMaxResults {
		return MaxMaxResults
	}
	return p.MaxResults
}

// EncodePageToken creates an opaque page token from an offset.
// Returns empty string if offset is 0 or negative.
func EncodePageToken(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%d", offset)))
}

// Paginate slices a fully materialized listing. Offsets beyond the list
// length reset to 0. The returned token is empty on the last page.
// Ordering is the caller's responsibility and must be deterministic.
func Paginate[T any](items []T, page PageRequest) ([]T, string) {
	if len(items) == 0 {
		return items, ""
	}

	limit := page.Limit()
	offset := page.Offset()
	if offset >= len(items) {
		offset = 0
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	next := ""
	if end < len(items) {
		next = EncodePageToken(end)
	}
	return items[offset:end], next
}
