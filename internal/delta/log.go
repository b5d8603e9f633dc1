package delta

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"deltashare/internal/domain"
)

// LastCheckpointFile is the marker object holding the latest checkpointed
// version of a table.
const LastCheckpointFile = "_last_checkpoint"

// Snapshot is the folded state of one transaction log version: the files
// live at that version plus the table metadata and protocol.
type Snapshot struct {
	Version  int64
	Protocol Protocol
	Metadata *Metadata
	Files    []Add
}

// SchemaString returns the table schema declared by the log.
func (s *Snapshot) SchemaString() (string, error) {
	if s.Metadata == nil || s.Metadata.SchemaString == "" {
		return "", domain.ErrSchemaUnavailable("transaction log at version %d declares no table metadata", s.Version)
	}
	return s.Metadata.SchemaString, nil
}

// PartitionColumns returns the partition columns declared by the log, or
// nil when the log carries no metadata.
func (s *Snapshot) PartitionColumns() []string {
	if s.Metadata == nil {
		return nil
	}
	return s.Metadata.PartitionColumns
}

// ReadLog folds the NDJSON actions of a single version file into a
// Snapshot. The first metadata action wins. A remove excludes its path
// from the result regardless of where the matching add appears in the
// file. Malformed lines are skipped; a stream that yields no valid action
// at all is a decode failure.
func ReadLog(r io.Reader, version int64, logger *slog.Logger) (*Snapshot, error) {
	snap := &Snapshot{
		Version: version,
		Protocol: Protocol{
			MinReaderVersion: DefaultMinReaderVersion,
			MinWriterVersion: DefaultMinWriterVersion,
		},
	}

	adds := make([]Add, 0, 16)
	removed := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lines, valid := 0, 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++

		var act action
		if err := json.Unmarshal([]byte(line), &act); err != nil {
			if logger != nil {
				logger.Warn("skipping malformed log line", "version", version, "error", err)
			}
			continue
		}

		switch {
		case act.Protocol != nil:
			snap.Protocol = *act.Protocol
			valid++
		case act.Metadata != nil:
			if snap.Metadata == nil {
				snap.Metadata = act.Metadata
			}
			valid++
		case act.Add != nil:
			adds = append(adds, *act.Add)
			valid++
		case act.Remove != nil:
			removed[act.Remove.Path] = struct{}{}
			valid++
		default:
			// commitInfo, txn, and other action kinds are ignored
			valid++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.ErrDecode("reading transaction log version %d: %v", version, err)
	}
	if lines > 0 && valid == 0 {
		return nil, domain.ErrDecode("transaction log version %d contains no readable actions", version)
	}

	snap.Files = make([]Add, 0, len(adds))
	for _, a := range adds {
		if _, gone := removed[a.Path]; gone {
			continue
		}
		snap.Files = append(snap.Files, a)
	}
	return snap, nil
}

// VersionFileName formats a version number as a transaction log file name,
// zero-padded to twenty digits.
func VersionFileName(version int64) string {
	return fmt.Sprintf("%020d.json", version)
}

// ParseVersionFileName extracts the version from a transaction log file
// name. The second return is false for names that are not version files.
func ParseVersionFileName(name string) (int64, bool) {
	if !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	base := strings.TrimSuffix(name, ".json")
	if len(base) != 20 {
		return 0, false
	}
	v, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLastCheckpoint extracts the version from a _last_checkpoint payload.
func ParseLastCheckpoint(data []byte) (int64, error) {
	var cp struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", LastCheckpointFile, err)
	}
	return cp.Version, nil
}

// LatestVersionFromNames resolves the highest version among a listing of
// log file names. The second return is false when the listing holds no
// version files.
func LatestVersionFromNames(names []string) (int64, bool) {
	latest, found := int64(0), false
	for _, name := range names {
		v, ok := ParseVersionFileName(name)
		if !ok {
			continue
		}
		if !found || v > latest {
			latest = v
			found = true
		}
	}
	return latest, found
}
