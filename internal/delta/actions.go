// Package delta reads Delta Lake transaction logs and prunes file listings
// using statistics embedded in them.
package delta

import "encoding/json"

// Default protocol versions advertised when a log carries no protocol action.
const (
	DefaultMinReaderVersion = 1
	DefaultMinWriterVersion = 1
)

// Protocol is the protocol action of a transaction log entry.
type Protocol struct {
	MinReaderVersion int `json:"minReaderVersion"`
	MinWriterVersion int `json:"minWriterVersion"`
}

// Format describes the storage format of a table.
type Format struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options,omitempty"`
}

// Metadata is the metaData action of a transaction log entry.
type Metadata struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           Format            `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration,omitempty"`
	CreatedTime      *int64            `json:"createdTime,omitempty"`
}

// Add is the add action of a transaction log entry: one live data file.
type Add struct {
	Path             string            `json:"path"`
	PartitionValues  map[string]string `json:"partitionValues"`
	Size             int64             `json:"size"`
	ModificationTime int64             `json:"modificationTime"`
	DataChange       bool              `json:"dataChange"`
	Stats            string            `json:"stats,omitempty"`
}

// Remove is the remove action of a transaction log entry.
type Remove struct {
	Path              string `json:"path"`
	DeletionTimestamp int64  `json:"deletionTimestamp,omitempty"`
	DataChange        bool   `json:"dataChange"`
}

// Stats are the per-file statistics parsed from an Add action's embedded
// stats JSON. All fields are optional; pruning treats absent values as
// unknown and keeps the file.
type Stats struct {
	NumRecords int64          `json:"numRecords"`
	MinValues  map[string]any `json:"minValues"`
	MaxValues  map[string]any `json:"maxValues"`
	NullCount  map[string]any `json:"nullCount"`
}

// ParsedStats decodes the embedded stats JSON. Returns nil when the file
// carries no stats or they cannot be decoded.
func (a Add) ParsedStats() *Stats {
	if a.Stats == "" {
		return nil
	}
	var s Stats
	if err := json.Unmarshal([]byte(a.Stats), &s); err != nil {
		return nil
	}
	return &s
}

// action is one NDJSON line of a transaction log entry. Exactly one field
// is set per line.
type action struct {
	Protocol *Protocol `json:"protocol,omitempty"`
	Metadata *Metadata `json:"metaData,omitempty"`
	Add      *Add      `json:"add,omitempty"`
	Remove   *Remove   `json:"remove,omitempty"`
}
