package delta

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Predicate operators recognized by the hint grammar.
const (
	OpEq    = "="
	OpNotEq = "!="
	OpGt    = ">"
	OpGte   = ">="
	OpLt    = "<"
	OpLte   = "<="
	OpIn    = "IN"
	OpNotIn = "NOT IN"
)

// Predicate is one parsed predicate hint of the form `column op value`.
type Predicate struct {
	Column string
	Op     string
	Value  string
	Values []string // populated for IN / NOT IN
}

var predicateRe = regexp.MustCompile(`(?i)^\s*(\w+)\s*(==|=|!=|<>|>=|>|<=|<|NOT\s+IN|IN)\s*(.+?)\s*$`)

// ParsePredicates parses predicate hints. Hints that do not match the
// grammar are dropped; pruning is best-effort and a hint the server cannot
// understand must not exclude data.
func ParsePredicates(hints []string) []Predicate {
	preds := make([]Predicate, 0, len(hints))
	for _, hint := range hints {
		if p, ok := parsePredicate(hint); ok {
			preds = append(preds, p)
		}
	}
	return preds
}

func parsePredicate(hint string) (Predicate, bool) {
	m := predicateRe.FindStringSubmatch(hint)
	if m == nil {
		return Predicate{}, false
	}

	op := strings.ToUpper(strings.Join(strings.Fields(m[2]), " "))
	switch op {
	case "==":
		op = OpEq
	case "<>":
		op = OpNotEq
	}

	p := Predicate{Column: m[1], Op: op}
	if op == OpIn || op == OpNotIn {
		p.Values = parseValueList(m[3])
		if len(p.Values) == 0 {
			return Predicate{}, false
		}
		return p, true
	}
	p.Value = unquote(m[3])
	return p, true
}

func parseValueList(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "(")
	raw = strings.TrimSuffix(raw, ")")
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		v := unquote(part)
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Prune filters a file listing against predicate hints. A file is dropped
// only when a predicate provably excludes it via its partition values or
// min/max statistics. Missing statistics keep the file. Predicates combine
// conjunctively and input order is preserved.
func Prune(files []Add, hints []string) []Add {
	preds := ParsePredicates(hints)
	if len(preds) == 0 {
		return files
	}

	kept := make([]Add, 0, len(files))
	for _, f := range files {
		if matches(f, preds) {
			kept = append(kept, f)
		}
	}
	return kept
}

func matches(f Add, preds []Predicate) bool {
	stats := f.ParsedStats()
	for _, p := range preds {
		if pv, ok := f.PartitionValues[p.Column]; ok {
			if !matchesValue(pv, p) {
				return false
			}
			continue
		}
		if stats != nil && !matchesStats(stats, p) {
			return false
		}
	}
	return true
}

// matchesValue evaluates a predicate against an exact known value.
func matchesValue(value string, p Predicate) bool {
	switch p.Op {
	case OpEq:
		return compareValues(value, p.Value) == 0
	case OpNotEq:
		return compareValues(value, p.Value) != 0
	case OpGt:
		return compareValues(value, p.Value) > 0
	case OpGte:
		return compareValues(value, p.Value) >= 0
	case OpLt:
		return compareValues(value, p.Value) < 0
	case OpLte:
		return compareValues(value, p.Value) <= 0
	case OpIn:
		for _, v := range p.Values {
			if compareValues(value, v) == 0 {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, v := range p.Values {
			if compareValues(value, v) == 0 {
				return false
			}
		}
		return true
	}
	return true
}

// matchesStats evaluates a predicate against the min/max range of a column.
// Returns true whenever the range could contain a matching value.
func matchesStats(stats *Stats, p Predicate) bool {
	min, hasMin := statValue(stats.MinValues, p.Column)
	max, hasMax := statValue(stats.MaxValues, p.Column)
	if !hasMin && !hasMax {
		return true
	}

	switch p.Op {
	case OpEq:
		if hasMin && compareValues(p.Value, min) < 0 {
			return false
		}
		if hasMax && compareValues(p.Value, max) > 0 {
			return false
		}
		return true
	case OpGt:
		return !hasMax || compareValues(max, p.Value) > 0
	case OpGte:
		return !hasMax || compareValues(max, p.Value) >= 0
	case OpLt:
		return !hasMin || compareValues(min, p.Value) < 0
	case OpLte:
		return !hasMin || compareValues(min, p.Value) <= 0
	case OpIn:
		for _, v := range p.Values {
			inRange := true
			if hasMin && compareValues(v, min) < 0 {
				inRange = false
			}
			if hasMax && compareValues(v, max) > 0 {
				inRange = false
			}
			if inRange {
				return true
			}
		}
		return false
	}
	// != and NOT IN cannot exclude a file from a range alone
	return true
}

func statValue(values map[string]any, column string) (string, bool) {
	if values == nil {
		return "", false
	}
	v, ok := values[column]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// compareValues compares numerically when both sides parse as numbers,
// lexicographically otherwise.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
