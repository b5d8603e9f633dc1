// Package crawler discovers tables in storage and registers them in the
// catalog on a schedule or on demand.
package crawler

import "strings"

// DefaultPattern maps two path levels onto schema and table under the
// default share.
const DefaultPattern = "{schema}/{table}"

// TableCoords are the catalog coordinates a discovery resolved to.
type TableCoords struct {
	Share  string
	Schema string
	Table  string
}

// Pattern maps storage paths onto catalog coordinates via {share},
// {schema}, and {table} placeholder segments. Literal segments must match
// exactly. A leading scheme prefix is ignored.
type Pattern struct {
	segments []string
}

func ParsePattern(raw string) Pattern {
	raw = strings.TrimPrefix(raw, "s3://")
	raw = strings.TrimPrefix(raw, "file://")
	raw = strings.Trim(raw, "/")
	if raw == "" {
		raw = DefaultPattern
	}
	return Pattern{segments: strings.Split(raw, "/")}
}

func (p Pattern) String() string { return strings.Join(p.segments, "/") }

// Resolve matches a discovered table root against the pattern. Missing
// placeholders fall back to the given defaults. The second return is false
// when the path does not fit the pattern.
func (p Pattern) Resolve(root, defaultShare, defaultSchema string) (TableCoords, bool) {
	parts := strings.Split(strings.Trim(root, "/"), "/")
	if len(parts) != len(p.segments) {
		return TableCoords{}, false
	}

	coords := TableCoords{Share: defaultShare, Schema: defaultSchema}
	for i, seg := range p.segments {
		switch seg {
		case "{share}":
			coords.Share = parts[i]
		case "{schema}":
			coords.Schema = parts[i]
		case "{table}":
			coords.Table = parts[i]
		default:
			if seg != parts[i] {
				return TableCoords{}, false
			}
		}
	}
	if coords.Table == "" {
		return TableCoords{}, false
	}
	return coords, true
}
