package sharing

import (
	"encoding/json"
	"fmt"
	"io"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

// NDJSONContentType is the media type of the protocol streams.
const NDJSONContentType = "application/x-ndjson; charset=utf-8"

// Response is an ordered NDJSON body plus the table version it was built
// against.
type Response struct {
	Lines   []map[string]any
	Version int64
}

// WriteNDJSON streams the lines as compact JSON, one object per line.
func WriteNDJSON(w io.Writer, lines []map[string]any) error {
	enc := json.NewEncoder(w)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encoding response line: %w", err)
		}
	}
	return nil
}

// protocolLine renders the protocol action. The delta dialect wraps it in
// a deltaProtocol envelope and adds the writer version.
func protocolLine(p delta.Protocol, wrap bool) map[string]any {
	if wrap {
		return map[string]any{
			"protocol": map[string]any{
				"deltaProtocol": map[string]any{
					"minReaderVersion": p.MinReaderVersion,
					"minWriterVersion": p.MinWriterVersion,
				},
			},
		}
	}
	return map[string]any{
		"protocol": map[string]any{
			"minReaderVersion": p.MinReaderVersion,
		},
	}
}

// metadataLine renders the metaData action in either dialect.
func metadataLine(m *delta.Metadata, wrap bool, version *int64) map[string]any {
	body := map[string]any{
		"id":               m.ID,
		"format":           map[string]any{"provider": m.Format.Provider},
		"schemaString":     m.SchemaString,
		"partitionColumns": partitionColumnsOrEmpty(m.PartitionColumns),
	}
	if m.Name != "" {
		body["name"] = m.Name
	}
	if len(m.Configuration) > 0 {
		body["configuration"] = m.Configuration
	}
	if version != nil {
		body["version"] = *version
	}

	if wrap {
		return map[string]any{
			"metaData": map[string]any{"deltaMetadata": body},
		}
	}
	return map[string]any{"metaData": body}
}

func partitionColumnsOrEmpty(cols []string) []string {
	if cols == nil {
		return []string{}
	}
	return cols
}

// fileLine renders one file grant. The parquet dialect is flat; the delta
// dialect nests the original add action under deltaSingleAction with the
// resolved URL in place of the path.
func fileLine(grant domain.FileGrant, add delta.Add, wrap bool) map[string]any {
	if !wrap {
		body := map[string]any{
			"url":             grant.URL,
			"id":              grant.ID,
			"partitionValues": grant.PartitionValues,
			"size":            grant.Size,
		}
		if grant.Stats != nil {
			body["stats"] = grant.Stats
		}
		if grant.ExpirationTimestamp != nil {
			body["expirationTimestamp"] = *grant.ExpirationTimestamp
		}
		return map[string]any{"file": body}
	}

	addBody := map[string]any{
		"path":             grant.URL,
		"partitionValues":  grant.PartitionValues,
		"size":             grant.Size,
		"modificationTime": add.ModificationTime,
		"dataChange":       add.DataChange,
	}
	if add.Stats != "" {
		addBody["stats"] = add.Stats
	}
	body := map[string]any{
		"id":                grant.ID,
		"version":           grant.Version,
		"deltaSingleAction": map[string]any{"add": addBody},
	}
	if grant.ExpirationTimestamp != nil {
		body["expirationTimestamp"] = *grant.ExpirationTimestamp
	}
	return map[string]any{"file": body}
}

// endStreamActionLine closes a query stream with the refresh token and the
// minimum URL expiry across emitted files. The expiry field is omitted
// when no file carries one.
func endStreamActionLine(refreshToken string, minExpiration *int64) map[string]any {
	body := map[string]any{"refreshToken": refreshToken}
	if minExpiration != nil {
		body["minUrlExpirationTimestamp"] = *minExpiration
	}
	return map[string]any{"endStreamAction": body}
}
