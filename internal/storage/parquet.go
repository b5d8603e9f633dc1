package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// SchemaFromParquet reads the footer of a Parquet stream and renders its
// schema as a schemaString.
func SchemaFromParquet(r parquet.ReaderAtSeeker) (string, error) {
	rdr, err := file.NewParquetReader(r)
	if err != nil {
		return "", fmt.Errorf("opening parquet footer: %w", err)
	}
	defer rdr.Close()

	arrowSchema, err := pqarrow.FromParquet(rdr.MetaData().Schema, nil, rdr.MetaData().KeyValueMetadata())
	if err != nil {
		return "", fmt.Errorf("converting parquet schema: %w", err)
	}
	return SchemaString(arrowSchema)
}

// SchemaFromParquetPath reads a local Parquet file's schema.
func SchemaFromParquetPath(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening parquet file: %w", err)
	}
	defer f.Close()
	return SchemaFromParquet(f)
}

// SchemaString renders an Arrow schema as the JSON struct schema used in
// table metadata.
func SchemaString(schema *arrow.Schema) (string, error) {
	fields := make([]map[string]any, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		fields = append(fields, map[string]any{
			"name":     f.Name,
			"type":     columnTypeName(f.Type),
			"nullable": f.Nullable,
			"metadata": map[string]any{},
		})
	}
	out, err := json.Marshal(map[string]any{
		"type":   "struct",
		"fields": fields,
	})
	if err != nil {
		return "", fmt.Errorf("encoding schema: %w", err)
	}
	return string(out), nil
}

func columnTypeName(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.BOOL:
		return "boolean"
	case arrow.INT8:
		return "byte"
	case arrow.INT16:
		return "short"
	case arrow.INT32, arrow.UINT8, arrow.UINT16:
		return "integer"
	case arrow.INT64, arrow.UINT32, arrow.UINT64:
		return "long"
	case arrow.FLOAT32:
		return "float"
	case arrow.FLOAT64:
		return "double"
	case arrow.DATE32, arrow.DATE64:
		return "date"
	case arrow.TIMESTAMP:
		return "timestamp"
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.FIXED_SIZE_BINARY:
		return "binary"
	case arrow.DECIMAL128, arrow.DECIMAL256:
		if dec, ok := dt.(arrow.DecimalType); ok {
			return fmt.Sprintf("decimal(%d,%d)", dec.GetPrecision(), dec.GetScale())
		}
		return "decimal(38,18)"
	default:
		return "string"
	}
}
