package storage

import (
	"crypto/sha256"
	"encoding/hex"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

// grantID derives a stable file id from the table coordinates and file
// path, so repeated queries hand clients the same id for the same file.
func grantID(table *domain.Table, path string) string {
	h := sha256.Sum256([]byte(table.ShareName + "/" + table.SchemaName + "/" + table.Name + "/" + path))
	return hex.EncodeToString(h[:16])
}

// statsMap projects parsed file statistics into the response shape.
func statsMap(stats *delta.Stats) map[string]any {
	m := map[string]any{"numRecords": stats.NumRecords}
	if len(stats.MinValues) > 0 {
		m["minValues"] = stats.MinValues
	}
	if len(stats.MaxValues) > 0 {
		m["maxValues"] = stats.MaxValues
	}
	if len(stats.NullCount) > 0 {
		m["nullCount"] = stats.NullCount
	}
	return m
}
