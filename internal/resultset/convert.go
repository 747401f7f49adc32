package resultset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/typeinfo"
)

// DateLayout is the only accepted text form for string cells read as times.
const DateLayout = "2006-01-02T15:04:05.000Z"

const (
	targetBoolean  = "boolean"
	targetIntegral = "integral type"
	targetDouble   = "double"
	targetDecimal  = "decimal"
	targetString   = "string"
	targetDate     = "date"
	targetBlob     = "blob"
	targetObject   = "object"
)

// conversions maps a source kind to its conversion for one target type.
// A kind without an entry cannot be converted.
type conversions[T any] map[bson.Type]func(bson.RawValue) (T, error)

func convert[T any](table conversions[T], target string, v bson.RawValue) (T, error) {
	var zero T
	info, err := typeinfo.ByKind(v.Type)
	if err == nil && info.Unsupported {
		return zero, &sqlerr.ConversionError{From: info.Name, To: target, Err: sqlerr.ErrNotSupported}
	}
	fn, ok := table[v.Type]
	if !ok {
		return zero, &sqlerr.ConversionError{From: typeinfo.KindName(v.Type), To: target}
	}
	out, err := fn(v)
	if err != nil {
		var convErr *sqlerr.ConversionError
		if errors.As(err, &convErr) {
			return zero, err
		}
		return zero, &sqlerr.ConversionError{From: typeinfo.KindName(v.Type), To: target, Err: err}
	}
	return out, nil
}

// Only the exponent-zero encodings of 0 and -0 read as false. Scaled zeros
// such as 0.00 read as true.
var (
	decimalPositiveZero = bson.NewDecimal128(0x3040000000000000, 0)
	decimalNegativeZero = bson.NewDecimal128(0xb040000000000000, 0)
)

var boolConversions = conversions[bool]{
	bson.TypeBoolean: func(v bson.RawValue) (bool, error) {
		return v.Boolean(), nil
	},
	bson.TypeDecimal128: func(v bson.RawValue) (bool, error) {
		d := v.Decimal128()
		return d != decimalPositiveZero && d != decimalNegativeZero, nil
	},
	bson.TypeDouble: func(v bson.RawValue) (bool, error) {
		return v.Double() != 0, nil
	},
	bson.TypeInt32: func(v bson.RawValue) (bool, error) {
		return v.Int32() != 0, nil
	},
	bson.TypeInt64: func(v bson.RawValue) (bool, error) {
		return v.Int64() != 0, nil
	},
	bson.TypeString: func(bson.RawValue) (bool, error) {
		return true, nil
	},
}

var int64Conversions = conversions[int64]{
	bson.TypeBoolean: func(v bson.RawValue) (int64, error) {
		if v.Boolean() {
			return 1, nil
		}
		return 0, nil
	},
	bson.TypeDateTime: func(v bson.RawValue) (int64, error) {
		return v.DateTime(), nil
	},
	bson.TypeDecimal128: func(v bson.RawValue) (int64, error) {
		d, err := decimalFromBSON(v.Decimal128())
		if err != nil {
			return 0, err
		}
		return d.IntPart(), nil
	},
	bson.TypeDouble: func(v bson.RawValue) (int64, error) {
		return truncateFloat(v.Double()), nil
	},
	bson.TypeInt32: func(v bson.RawValue) (int64, error) {
		return int64(v.Int32()), nil
	},
	bson.TypeInt64: func(v bson.RawValue) (int64, error) {
		return v.Int64(), nil
	},
	bson.TypeString: func(v bson.RawValue) (int64, error) {
		return strconv.ParseInt(v.StringValue(), 10, 64)
	},
}

var float64Conversions = conversions[float64]{
	bson.TypeBoolean: func(v bson.RawValue) (float64, error) {
		if v.Boolean() {
			return 1, nil
		}
		return 0, nil
	},
	bson.TypeDateTime: func(v bson.RawValue) (float64, error) {
		return float64(v.DateTime()), nil
	},
	bson.TypeDecimal128: func(v bson.RawValue) (float64, error) {
		d := v.Decimal128()
		if d.IsNaN() {
			return math.NaN(), nil
		}
		if sign := d.IsInf(); sign != 0 {
			return math.Inf(sign), nil
		}
		return strconv.ParseFloat(d.String(), 64)
	},
	bson.TypeDouble: func(v bson.RawValue) (float64, error) {
		return v.Double(), nil
	},
	bson.TypeInt32: func(v bson.RawValue) (float64, error) {
		return float64(v.Int32()), nil
	},
	bson.TypeInt64: func(v bson.RawValue) (float64, error) {
		return float64(v.Int64()), nil
	},
	bson.TypeString: func(v bson.RawValue) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(v.StringValue()), 64)
	},
}

var decimalConversions = conversions[decimal.Decimal]{
	bson.TypeBoolean: func(v bson.RawValue) (decimal.Decimal, error) {
		if v.Boolean() {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	},
	bson.TypeDateTime: func(v bson.RawValue) (decimal.Decimal, error) {
		return decimal.NewFromInt(v.DateTime()), nil
	},
	bson.TypeDecimal128: func(v bson.RawValue) (decimal.Decimal, error) {
		return decimalFromBSON(v.Decimal128())
	},
	bson.TypeDouble: func(v bson.RawValue) (decimal.Decimal, error) {
		f := v.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, fmt.Errorf("%v has no decimal form", f)
		}
		return decimal.NewFromFloat(f), nil
	},
	bson.TypeInt32: func(v bson.RawValue) (decimal.Decimal, error) {
		return decimal.NewFromInt32(v.Int32()), nil
	},
	bson.TypeInt64: func(v bson.RawValue) (decimal.Decimal, error) {
		return decimal.NewFromInt(v.Int64()), nil
	},
	bson.TypeString: func(v bson.RawValue) (decimal.Decimal, error) {
		return decimal.NewFromString(v.StringValue())
	},
}

var timeConversions = conversions[time.Time]{
	bson.TypeDateTime: func(v bson.RawValue) (time.Time, error) {
		return time.UnixMilli(v.DateTime()).UTC(), nil
	},
	bson.TypeDecimal128: func(v bson.RawValue) (time.Time, error) {
		d, err := decimalFromBSON(v.Decimal128())
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(d.IntPart()).UTC(), nil
	},
	bson.TypeDouble: func(v bson.RawValue) (time.Time, error) {
		return time.UnixMilli(truncateFloat(v.Double())).UTC(), nil
	},
	bson.TypeInt32: func(v bson.RawValue) (time.Time, error) {
		return time.UnixMilli(int64(v.Int32())).UTC(), nil
	},
	bson.TypeInt64: func(v bson.RawValue) (time.Time, error) {
		return time.UnixMilli(v.Int64()).UTC(), nil
	},
	bson.TypeString: func(v bson.RawValue) (time.Time, error) {
		return time.ParseInLocation(DateLayout, v.StringValue(), time.UTC)
	},
}

// Binary and string cells convert byte for byte; nothing else has an
// unambiguous encoding.
var bytesConversions = conversions[[]byte]{
	bson.TypeBinary: func(v bson.RawValue) ([]byte, error) {
		_, data := v.Binary()
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	},
	bson.TypeString: func(v bson.RawValue) ([]byte, error) {
		return []byte(v.StringValue()), nil
	},
}

func decimalFromBSON(d bson.Decimal128) (decimal.Decimal, error) {
	if d.IsNaN() || d.IsInf() != 0 {
		return decimal.Zero, fmt.Errorf("%s has no finite value", d.String())
	}
	coefficient, exponent, err := d.BigInt()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(coefficient, int32(exponent)), nil
}

// truncateFloat converts toward zero, mapping NaN to 0 and saturating at the
// int64 range.
func truncateFloat(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}
