package typeinfo

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// SQLType is a JDBC-compatible relational type code.
type SQLType int

const (
	Bit       SQLType = -7
	BigInt    SQLType = -5
	Binary    SQLType = -2
	Null      SQLType = 0
	Decimal   SQLType = 3
	Integer   SQLType = 4
	Double    SQLType = 8
	Varchar   SQLType = 12
	Boolean   SQLType = 16
	Timestamp SQLType = 93
	Other     SQLType = 1111
)

func (t SQLType) String() string {
	switch t {
	case Bit:
		return "BIT"
	case BigInt:
		return "BIGINT"
	case Binary:
		return "BINARY"
	case Null:
		return "NULL"
	case Decimal:
		return "DECIMAL"
	case Integer:
		return "INTEGER"
	case Double:
		return "DOUBLE"
	case Varchar:
		return "VARCHAR"
	case Boolean:
		return "BOOLEAN"
	case Timestamp:
		return "TIMESTAMP"
	case Other:
		return "OTHER"
	default:
		return fmt.Sprintf("SQLType(%d)", int(t))
	}
}

// UnknownLength is reported for display size, precision and scale when a kind has none.
const UnknownLength = 0

// AnyName is the schema name of the open kind, which matches every document value.
const AnyName = "bson"

// Info describes how one document value kind surfaces as a relational column.
type Info struct {
	Name          string
	Kind          bson.Type
	SQLType       SQLType
	DisplaySize   int
	Precision     int
	Scale         int
	CaseSensitive bool
	Signed        bool
	ScanType      reflect.Type
	Unsupported   bool
}

// IsAny reports whether the info is the open kind.
func (i Info) IsAny() bool {
	return i.Name == AnyName
}

// ClassName is the Go type name a generic row reader would scan into.
func (i Info) ClassName() string {
	if i.ScanType == nil {
		return ""
	}
	return i.ScanType.String()
}

var (
	boolType    = reflect.TypeOf(false)
	int32Type   = reflect.TypeOf(int32(0))
	int64Type   = reflect.TypeOf(int64(0))
	float64Type = reflect.TypeOf(float64(0))
	stringType  = reflect.TypeOf("")
	bytesType   = reflect.TypeOf([]byte(nil))
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	rawType     = reflect.TypeOf(bson.RawValue{})
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
)

var infos = []Info{
	{Name: "array", Kind: bson.TypeArray, SQLType: Other, ScanType: rawType},
	{Name: AnyName, SQLType: Other, CaseSensitive: true, Signed: true, ScanType: rawType},
	{Name: "binData", Kind: bson.TypeBinary, SQLType: Binary, ScanType: bytesType},
	{Name: "bool", Kind: bson.TypeBoolean, SQLType: Bit, DisplaySize: 1, Precision: 1, ScanType: boolType},
	{Name: "date", Kind: bson.TypeDateTime, SQLType: Timestamp, DisplaySize: 24, Precision: 24, ScanType: timeType},
	{Name: "dbPointer", Kind: bson.TypeDBPointer, SQLType: Other, ScanType: rawType, Unsupported: true},
	{Name: "decimal", Kind: bson.TypeDecimal128, SQLType: Decimal, DisplaySize: 34, Precision: 34, Scale: 34, Signed: true, ScanType: decimalType},
	{Name: "double", Kind: bson.TypeDouble, SQLType: Double, DisplaySize: 15, Precision: 15, Scale: 15, Signed: true, ScanType: float64Type},
	{Name: "int", Kind: bson.TypeInt32, SQLType: Integer, DisplaySize: 10, Precision: 10, Signed: true, ScanType: int32Type},
	{Name: "javascript", Kind: bson.TypeJavaScript, SQLType: Other, CaseSensitive: true, ScanType: rawType},
	{Name: "javascriptWithScope", Kind: bson.TypeCodeWithScope, SQLType: Other, CaseSensitive: true, ScanType: rawType, Unsupported: true},
	{Name: "long", Kind: bson.TypeInt64, SQLType: BigInt, DisplaySize: 19, Precision: 19, Signed: true, ScanType: int64Type},
	{Name: "maxKey", Kind: bson.TypeMaxKey, SQLType: Other, ScanType: rawType},
	{Name: "minKey", Kind: bson.TypeMinKey, SQLType: Other, ScanType: rawType},
	{Name: "null", Kind: bson.TypeNull, SQLType: Null, ScanType: anyType},
	{Name: "object", Kind: bson.TypeEmbeddedDocument, SQLType: Other, ScanType: rawType},
	{Name: "objectId", Kind: bson.TypeObjectID, SQLType: Other, DisplaySize: 24, Precision: 24, ScanType: rawType},
	{Name: "regex", Kind: bson.TypeRegex, SQLType: Other, CaseSensitive: true, ScanType: rawType},
	{Name: "string", Kind: bson.TypeString, SQLType: Varchar, CaseSensitive: true, ScanType: stringType},
	{Name: "symbol", Kind: bson.TypeSymbol, SQLType: Other, CaseSensitive: true, ScanType: rawType},
	{Name: "timestamp", Kind: bson.TypeTimestamp, SQLType: Other, ScanType: rawType},
	{Name: "undefined", Kind: bson.TypeUndefined, SQLType: Other, ScanType: rawType},
}

var (
	byName = map[string]Info{}
	byKind = map[bson.Type]Info{}
)

func init() {
	for _, info := range infos {
		byName[info.Name] = info
		if info.Kind != 0 {
			byKind[info.Kind] = info
		}
	}
}

// ByName resolves a schema bsonType name such as "int" or "objectId".
func ByName(name string) (Info, error) {
	info, ok := byName[name]
	if !ok {
		return Info{}, fmt.Errorf("unknown bson type name %q", name)
	}
	return info, nil
}

// ByKind resolves the info for a concrete document value kind.
func ByKind(kind bson.Type) (Info, error) {
	info, ok := byKind[kind]
	if !ok {
		return Info{}, fmt.Errorf("unknown bson type %s", kind)
	}
	return info, nil
}

// KindName returns the schema name for kind, falling back to the driver's name.
func KindName(kind bson.Type) string {
	if info, ok := byKind[kind]; ok {
		return info.Name
	}
	return kind.String()
}

// Any returns the open kind.
func Any() Info {
	return byName[AnyName]
}

// All returns every known kind sorted by name.
func All() []Info {
	out := make([]Info, len(infos))
	copy(out, infos)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
