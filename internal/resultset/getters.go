package resultset

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/extjson"
	"github.com/docsql/docsql/internal/observability"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/typeinfo"
)

// Bool reads a cell as a boolean. Zero numbers are false and every string is true.
func (rs *ResultSet) Bool(col Column) (bool, error) {
	return read(rs, col, targetBoolean, boolConversions, false)
}

// Byte, Int16 and Int32 narrow the Int64 conversion by truncation.
func (rs *ResultSet) Byte(col Column) (int8, error) {
	v, err := rs.Int64(col)
	return int8(v), err
}

func (rs *ResultSet) Int16(col Column) (int16, error) {
	v, err := rs.Int64(col)
	return int16(v), err
}

func (rs *ResultSet) Int32(col Column) (int32, error) {
	v, err := rs.Int64(col)
	return int32(v), err
}

func (rs *ResultSet) Int64(col Column) (int64, error) {
	return read(rs, col, targetIntegral, int64Conversions, 0)
}

func (rs *ResultSet) Float32(col Column) (float32, error) {
	v, err := rs.Float64(col)
	return float32(v), err
}

func (rs *ResultSet) Float64(col Column) (float64, error) {
	return read(rs, col, targetDouble, float64Conversions, 0)
}

// Decimal reads a cell as an arbitrary precision decimal. Null cells read as
// decimal.Zero rather than a null value.
func (rs *ResultSet) Decimal(col Column) (decimal.Decimal, error) {
	return read(rs, col, targetDecimal, decimalConversions, decimal.Zero)
}

// String formats any cell with the connection's extended JSON mode.
func (rs *ResultSet) String(col Column) (string, error) {
	v, _, err := rs.cell(col)
	if err != nil {
		return "", err
	}
	if rs.checkNull(v) {
		return "", nil
	}
	return rs.format(v)
}

func (rs *ResultSet) format(v bson.RawValue) (string, error) {
	if info, err := typeinfo.ByKind(v.Type); err == nil && info.Unsupported {
		observability.IncrementConversionError(targetString)
		return "", &sqlerr.ConversionError{From: info.Name, To: targetString, Err: sqlerr.ErrNotSupported}
	}
	text, _, err := extjson.Format(v, rs.opts.Format)
	if err != nil {
		observability.IncrementConversionError(targetString)
		return "", &sqlerr.ConversionError{From: typeinfo.KindName(v.Type), To: targetString, Err: err}
	}
	return text, nil
}

// Time reads a cell as a UTC timestamp.
func (rs *ResultSet) Time(col Column) (time.Time, error) {
	return read(rs, col, targetDate, timeConversions, time.Time{})
}

// Date is Time truncated to midnight UTC.
func (rs *ResultSet) Date(col Column) (time.Time, error) {
	t, err := rs.Time(col)
	if err != nil || t.IsZero() {
		return t, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// TimeOfDay is the clock part of Time on 1970-01-01 UTC.
func (rs *ResultSet) TimeOfDay(col Column) (time.Time, error) {
	t, err := rs.Time(col)
	if err != nil || t.IsZero() {
		return t, err
	}
	return time.Date(1970, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

func (rs *ResultSet) Bytes(col Column) ([]byte, error) {
	return read(rs, col, targetBlob, bytesConversions, nil)
}

// Value wraps the cell for deferred formatting. Null cells return nil.
func (rs *ResultSet) Value(col Column) (*extjson.Value, error) {
	v, _, err := rs.cell(col)
	if err != nil {
		return nil, err
	}
	if rs.checkNull(v) {
		return nil, nil
	}
	return extjson.NewValue(v, rs.opts.Format), nil
}

// Raw returns the undecoded cell. Missing cells have a zero Type.
func (rs *ResultSet) Raw(col Column) (bson.RawValue, error) {
	v, _, err := rs.cell(col)
	if err != nil {
		return bson.RawValue{}, err
	}
	rs.checkNull(v)
	return v, nil
}

// Object reads a cell as the Go value matching the column's SQL type. Null
// cells return nil.
func (rs *ResultSet) Object(col Column) (any, error) {
	v, column, err := rs.cell(col)
	if err != nil {
		return nil, err
	}
	if rs.checkNull(v) {
		return nil, nil
	}
	var out any
	switch column.Info.SQLType {
	case typeinfo.BigInt:
		out, err = convert(int64Conversions, targetIntegral, v)
	case typeinfo.Integer:
		var n int64
		n, err = convert(int64Conversions, targetIntegral, v)
		out = int32(n)
	case typeinfo.Bit, typeinfo.Boolean:
		out, err = convert(boolConversions, targetBoolean, v)
	case typeinfo.Double:
		out, err = convert(float64Conversions, targetDouble, v)
	case typeinfo.Decimal:
		out, err = convert(decimalConversions, targetDecimal, v)
	case typeinfo.Varchar:
		return rs.format(v)
	case typeinfo.Timestamp:
		out, err = convert(timeConversions, targetDate, v)
	case typeinfo.Binary:
		if v.Type == bson.TypeBinary {
			subtype, data := v.Binary()
			if id, ok := extjson.DecodeUUID(subtype, data, rs.opts.Format.UUIDRepresentation); ok {
				return id, nil
			}
		}
		out, err = convert(bytesConversions, targetBlob, v)
	case typeinfo.Null:
		return nil, nil
	case typeinfo.Other:
		return extjson.NewValue(v, rs.opts.Format), nil
	default:
		return nil, sqlerr.Unsupported("object read for column type " + column.Info.SQLType.String())
	}
	if err != nil {
		observability.IncrementConversionError(targetObject)
		return nil, err
	}
	return out, nil
}
