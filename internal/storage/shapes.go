package storage

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

type colKind int

const (
	colLong colKind = iota
	colDouble
	colString
	colBool
	colTimestamp
)

type column struct {
	name string
	kind colKind
}

// tableShape is the column layout of a synthetic table.
type tableShape struct {
	columns []column
}

// shapeFor picks a layout from the table name prefix: fact tables carry
// measures, dimension tables carry descriptive attributes, aggregate
// tables carry rollups, anything else gets a generic layout.
func shapeFor(tableName string) tableShape {
	switch {
	case strings.HasPrefix(tableName, "fact_"):
		return tableShape{columns: []column{
			{"id", colLong},
			{"event_time", colTimestamp},
			{"amount", colDouble},
			{"quantity", colLong},
			{"status", colString},
		}}
	case strings.HasPrefix(tableName, "dim_"):
		return tableShape{columns: []column{
			{"id", colLong},
			{"name", colString},
			{"code", colString},
			{"active", colBool},
			{"created_at", colTimestamp},
		}}
	case strings.HasPrefix(tableName, "agg_"):
		return tableShape{columns: []column{
			{"period", colString},
			{"metric", colString},
			{"value", colDouble},
			{"sample_count", colLong},
		}}
	default:
		return tableShape{columns: []column{
			{"id", colLong},
			{"name", colString},
			{"value", colDouble},
			{"created_at", colTimestamp},
		}}
	}
}

var timestampType = &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}

func (s tableShape) arrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.columns))
	for _, c := range s.columns {
		var dt arrow.DataType
		switch c.kind {
		case colLong:
			dt = arrow.PrimitiveTypes.Int64
		case colDouble:
			dt = arrow.PrimitiveTypes.Float64
		case colBool:
			dt = arrow.FixedWidthTypes.Boolean
		case colTimestamp:
			dt = timestampType
		default:
			dt = arrow.BinaryTypes.String
		}
		fields = append(fields, arrow.Field{Name: c.name, Type: dt, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// buildRecord generates one file's worth of rows and the matching file
// statistics. Values are drawn from rng, so the same seed reproduces the
// same file.
func (s tableShape) buildRecord(mem memory.Allocator, schema *arrow.Schema, rng *rand.Rand) (arrow.Record, map[string]any) {
	rows := syntheticRowsPerFile
	cols := make([]arrow.Array, 0, len(s.columns))
	minValues := make(map[string]any)
	maxValues := make(map[string]any)
	nullCount := make(map[string]any)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, c := range s.columns {
		nullCount[c.name] = 0
		switch c.kind {
		case colLong:
			b := array.NewInt64Builder(mem)
			min, max := int64(math.MaxInt64), int64(math.MinInt64)
			for i := 0; i < rows; i++ {
				v := rng.Int63n(100000)
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
				b.Append(v)
			}
			minValues[c.name], maxValues[c.name] = min, max
			cols = append(cols, b.NewArray())
			b.Release()
		case colDouble:
			b := array.NewFloat64Builder(mem)
			min, max := math.MaxFloat64, -math.MaxFloat64
			for i := 0; i < rows; i++ {
				v := math.Round(rng.Float64()*100000) / 100
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
				b.Append(v)
			}
			minValues[c.name], maxValues[c.name] = min, max
			cols = append(cols, b.NewArray())
			b.Release()
		case colBool:
			b := array.NewBooleanBuilder(mem)
			for i := 0; i < rows; i++ {
				b.Append(rng.Intn(2) == 0)
			}
			cols = append(cols, b.NewArray())
			b.Release()
		case colTimestamp:
			b := array.NewTimestampBuilder(mem, timestampType)
			for i := 0; i < rows; i++ {
				ts := base.Add(time.Duration(rng.Int63n(365*24)) * time.Hour)
				b.Append(arrow.Timestamp(ts.UnixMilli()))
			}
			cols = append(cols, b.NewArray())
			b.Release()
		default:
			b := array.NewStringBuilder(mem)
			for i := 0; i < rows; i++ {
				b.Append(fmt.Sprintf("%s-%05d", c.name, rng.Intn(10000)))
			}
			cols = append(cols, b.NewArray())
			b.Release()
		}
	}

	rec := array.NewRecord(schema, cols, int64(rows))
	for _, col := range cols {
		col.Release()
	}

	stats := map[string]any{
		"numRecords": rows,
		"minValues":  minValues,
		"maxValues":  maxValues,
		"nullCount":  nullCount,
	}
	return rec, stats
}
