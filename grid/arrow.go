package grid

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// ColumnsFromArrowSchema declares one column per schema field.
// Column ids and fields are the field names; types are mapped from Arrow types.
// Returns nil if schema is nil.
func ColumnsFromArrowSchema(schema *arrow.Schema) Columns {
	if schema == nil {
		return nil
	}

	cols := make(Columns, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		cols = append(cols, Column{
			ID:    f.Name,
			Field: f.Name,
			Name:  f.Name,
			Type:  fieldTypeFromArrow(f.Type),
		})
	}
	return cols
}

func fieldTypeFromArrow(dt arrow.DataType) FieldType {
	switch dt.ID() {
	case arrow.BOOL:
		return FieldTypeBoolean
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64,
		arrow.DECIMAL128, arrow.DECIMAL256:
		return FieldTypeNumber
	case arrow.DATE32, arrow.DATE64, arrow.TIMESTAMP:
		return FieldTypeDate
	default:
		return FieldTypeString
	}
}
