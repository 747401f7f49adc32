package resultset

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/docsql/docsql/internal/extjson"
	"github.com/docsql/docsql/internal/sqlerr"
	"github.com/docsql/docsql/internal/typeinfo"
)

const typedSchema = `{
  "bsonType": "object",
  "properties": {
    "t": {
      "bsonType": "object",
      "properties": {
        "v": {},
        "i": {"bsonType": "int"},
        "l": {"bsonType": "long"},
        "s": {"bsonType": "string"},
        "d": {"bsonType": "double"},
        "dec": {"bsonType": "decimal"},
        "dt": {"bsonType": "date"},
        "bo": {"bsonType": "bool"},
        "n": {"bsonType": "null"},
        "bin": {"bsonType": "binData"}
      }
    }
  }
}`

func rowWith(t *testing.T, opts Options, fields bson.D) *ResultSet {
	t.Helper()
	rs, _ := newResultSet(t, typedSchema, opts, bson.D{{Key: "t", Value: fields}})
	mustNext(t, rs)
	return rs
}

func cell(t *testing.T, value any) *ResultSet {
	t.Helper()
	return rowWith(t, Options{}, bson.D{{Key: "v", Value: value}})
}

func mustDecimal128(t *testing.T, s string) bson.Decimal128 {
	t.Helper()
	d, err := bson.ParseDecimal128(s)
	if err != nil {
		t.Fatalf("ParseDecimal128(%q) error = %v", s, err)
	}
	return d
}

func TestBoolConversion(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"bool false", false, false},
		{"bool true", true, true},
		{"int32 zero", int32(0), false},
		{"int32 nonzero", int32(-3), true},
		{"int64 zero", int64(0), false},
		{"int64 nonzero", int64(9), true},
		{"double zero", 0.0, false},
		{"double negative zero", math.Copysign(0, -1), false},
		{"double nonzero", 0.25, true},
		{"decimal zero", mustDecimal128(t, "0"), false},
		{"decimal negative zero", mustDecimal128(t, "-0"), false},
		{"decimal nonzero", mustDecimal128(t, "0.1"), true},
		{"decimal scaled zero", mustDecimal128(t, "0.00"), true},
		{"decimal zero with negative exponent", mustDecimal128(t, "0E-5"), true},
		{"empty string", "", true},
		{"string false", "false", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cell(t, tc.value).Bool(Label("v"))
			if err != nil {
				t.Fatalf("Bool() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Bool() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBoolRejectsOtherKinds(t *testing.T) {
	for _, value := range []any{bson.DateTime(0), bson.NewObjectID(), bson.D{}, bson.A{1}} {
		_, err := cell(t, value).Bool(Label("v"))
		if !errors.Is(err, sqlerr.ErrConversion) {
			t.Fatalf("Bool(%T) error = %v", value, err)
		}
	}
}

func TestInt64Conversion(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"bool true", true, 1},
		{"bool false", false, 0},
		{"date", bson.DateTime(1700000000123), 1700000000123},
		{"decimal truncates", mustDecimal128(t, "12.9"), 12},
		{"negative decimal truncates", mustDecimal128(t, "-12.9"), -12},
		{"decimal exponent", mustDecimal128(t, "1E+3"), 1000},
		{"double truncates", 3.99, 3},
		{"double NaN", math.NaN(), 0},
		{"double saturates high", 1e30, math.MaxInt64},
		{"double saturates low", -1e30, math.MinInt64},
		{"int32", int32(-7), -7},
		{"int64", int64(1) << 40, 1 << 40},
		{"string", "42", 42},
		{"signed string", "-42", -42},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cell(t, tc.value).Int64(Label("v"))
			if err != nil {
				t.Fatalf("Int64() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Int64() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestInt64Failures(t *testing.T) {
	for _, value := range []any{"4x", "", "1.5", bson.NewObjectID(), mustDecimal128(t, "NaN"), bson.Regex{Pattern: "a"}} {
		_, err := cell(t, value).Int64(Label("v"))
		if !errors.Is(err, sqlerr.ErrConversion) {
			t.Fatalf("Int64(%v) error = %v", value, err)
		}
		var convErr *sqlerr.ConversionError
		if !errors.As(err, &convErr) || convErr.To != "integral type" {
			t.Fatalf("Int64(%v) error = %#v", value, err)
		}
	}
}

func TestNarrowingTruncates(t *testing.T) {
	rs := cell(t, int64(1)<<32+5)
	if got, err := rs.Int32(Label("v")); err != nil || got != 5 {
		t.Fatalf("Int32() = %d, %v", got, err)
	}
	rs = cell(t, int32(300))
	if got, err := rs.Byte(Label("v")); err != nil || got != 44 {
		t.Fatalf("Byte() = %d, %v", got, err)
	}
	rs = cell(t, int32(70000))
	if got, err := rs.Int16(Label("v")); err != nil || got != 4464 {
		t.Fatalf("Int16() = %d, %v", got, err)
	}
}

func TestFloat64Conversion(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
	}{
		{"bool", true, 1},
		{"date", bson.DateTime(1500), 1500},
		{"decimal", mustDecimal128(t, "1.5"), 1.5},
		{"double", 2.75, 2.75},
		{"int32", int32(3), 3},
		{"int64", int64(-4), -4},
		{"string", " 2.5 ", 2.5},
		{"decimal infinity", mustDecimal128(t, "-Infinity"), math.Inf(-1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cell(t, tc.value).Float64(Label("v"))
			if err != nil {
				t.Fatalf("Float64() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Float64() = %v, want %v", got, tc.want)
			}
		})
	}

	got, err := cell(t, mustDecimal128(t, "NaN")).Float64(Label("v"))
	if err != nil || !math.IsNaN(got) {
		t.Fatalf("Float64(NaN) = %v, %v", got, err)
	}
	if _, err := cell(t, "abc").Float64(Label("v")); !errors.Is(err, sqlerr.ErrConversion) {
		t.Fatalf("Float64(abc) error = %v", err)
	}
	f32, err := cell(t, 0.5).Float32(Label("v"))
	if err != nil || f32 != 0.5 {
		t.Fatalf("Float32() = %v, %v", f32, err)
	}
}

func TestDecimalConversion(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"bool", true, "1"},
		{"date", bson.DateTime(99), "99"},
		{"decimal", mustDecimal128(t, "123.450"), "123.45"},
		{"double", 0.5, "0.5"},
		{"int32", int32(8), "8"},
		{"int64", int64(-8), "-8"},
		{"string", "1.25", "1.25"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cell(t, tc.value).Decimal(Label("v"))
			if err != nil {
				t.Fatalf("Decimal() error = %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("Decimal() = %s, want %s", got, tc.want)
			}
		})
	}
	for _, value := range []any{"x", mustDecimal128(t, "Infinity"), math.NaN(), bson.NewObjectID()} {
		if _, err := cell(t, value).Decimal(Label("v")); !errors.Is(err, sqlerr.ErrConversion) {
			t.Fatalf("Decimal(%v) error = %v", value, err)
		}
	}
}

func TestTimeConversion(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 678*int(time.Millisecond), time.UTC)
	values := []any{
		bson.NewDateTimeFromTime(want),
		want.UnixMilli(),
		float64(want.UnixMilli()) + 0.9,
		mustDecimal128(t, "1704164645678"),
		"2024-01-02T03:04:05.678Z",
	}
	for _, value := range values {
		got, err := cell(t, value).Time(Label("v"))
		if err != nil {
			t.Fatalf("Time(%v) error = %v", value, err)
		}
		if !got.Equal(want) {
			t.Fatalf("Time(%v) = %s, want %s", value, got, want)
		}
	}

	rs := cell(t, "2024-01-02T03:04:05.678Z")
	date, err := rs.Date(Label("v"))
	if err != nil || !date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Date() = %s, %v", date, err)
	}
	clock, err := rs.TimeOfDay(Label("v"))
	if err != nil || !clock.Equal(time.Date(1970, 1, 1, 3, 4, 5, 678*int(time.Millisecond), time.UTC)) {
		t.Fatalf("TimeOfDay() = %s, %v", clock, err)
	}

	for _, value := range []any{"2024-01-02", true, bson.NewObjectID()} {
		if _, err := cell(t, value).Time(Label("v")); !errors.Is(err, sqlerr.ErrConversion) {
			t.Fatalf("Time(%v) error = %v", value, err)
		}
	}
}

func TestBytesConversion(t *testing.T) {
	got, err := cell(t, bson.Binary{Subtype: 0x00, Data: []byte{1, 2, 3}}).Bytes(Label("v"))
	if err != nil || string(got) != "\x01\x02\x03" {
		t.Fatalf("Bytes(binary) = %v, %v", got, err)
	}
	got, err = cell(t, "héllo").Bytes(Label("v"))
	if err != nil || string(got) != "héllo" {
		t.Fatalf("Bytes(string) = %q, %v", got, err)
	}
	for _, value := range []any{int32(1), 1.5, true} {
		if _, err := cell(t, value).Bytes(Label("v")); !errors.Is(err, sqlerr.ErrConversion) {
			t.Fatalf("Bytes(%v) error = %v", value, err)
		}
	}
}

func TestNullCellsReadAsZeroValues(t *testing.T) {
	cases := map[string]bson.D{
		"null":      {{Key: "v", Value: nil}},
		"undefined": {{Key: "v", Value: bson.Undefined{}}},
		"missing":   {},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			rs := rowWith(t, Options{}, fields)
			col := Label("v")
			checkNull := func(getter string) {
				t.Helper()
				wasNull, err := rs.WasNull()
				if err != nil || !wasNull {
					t.Fatalf("%s: WasNull() = %v, %v", getter, wasNull, err)
				}
			}

			if v, err := rs.Bool(col); err != nil || v {
				t.Fatalf("Bool() = %v, %v", v, err)
			}
			checkNull("Bool")
			if v, err := rs.Int32(col); err != nil || v != 0 {
				t.Fatalf("Int32() = %v, %v", v, err)
			}
			checkNull("Int32")
			if v, err := rs.Int64(col); err != nil || v != 0 {
				t.Fatalf("Int64() = %v, %v", v, err)
			}
			checkNull("Int64")
			if v, err := rs.Float64(col); err != nil || v != 0 {
				t.Fatalf("Float64() = %v, %v", v, err)
			}
			checkNull("Float64")
			if v, err := rs.Decimal(col); err != nil || !v.Equal(decimal.Zero) {
				t.Fatalf("Decimal() = %v, %v", v, err)
			}
			checkNull("Decimal")
			if v, err := rs.String(col); err != nil || v != "" {
				t.Fatalf("String() = %q, %v", v, err)
			}
			checkNull("String")
			if v, err := rs.Time(col); err != nil || !v.IsZero() {
				t.Fatalf("Time() = %v, %v", v, err)
			}
			checkNull("Time")
			if v, err := rs.Bytes(col); err != nil || v != nil {
				t.Fatalf("Bytes() = %v, %v", v, err)
			}
			checkNull("Bytes")
			if v, err := rs.Value(col); err != nil || v != nil {
				t.Fatalf("Value() = %v, %v", v, err)
			}
			checkNull("Value")
			if v, err := rs.Object(col); err != nil || v != nil {
				t.Fatalf("Object() = %v, %v", v, err)
			}
			checkNull("Object")
		})
	}
}

func TestWasNullClearsOnValue(t *testing.T) {
	rs := rowWith(t, Options{}, bson.D{{Key: "v", Value: nil}, {Key: "i", Value: int32(4)}})
	if _, err := rs.Int32(Label("v")); err != nil {
		t.Fatalf("Int32(v) error = %v", err)
	}
	if wasNull, _ := rs.WasNull(); !wasNull {
		t.Fatal("WasNull() = false after null read")
	}
	if _, err := rs.Int32(Label("i")); err != nil {
		t.Fatalf("Int32(i) error = %v", err)
	}
	if wasNull, _ := rs.WasNull(); wasNull {
		t.Fatal("WasNull() = true after non-null read")
	}
}

func TestConversionErrorKeepsCursorUsable(t *testing.T) {
	rs := rowWith(t, Options{}, bson.D{{Key: "s", Value: "nope"}, {Key: "i", Value: int32(4)}})
	if _, err := rs.Int64(Label("s")); !errors.Is(err, sqlerr.ErrConversion) {
		t.Fatalf("Int64(s) error = %v", err)
	}
	if got, err := rs.Int64(Label("i")); err != nil || got != 4 {
		t.Fatalf("Int64(i) = %d, %v", got, err)
	}
}

func TestStringFormatsUUIDInExtendedMode(t *testing.T) {
	id := uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")
	opts := Options{Format: extjson.Options{Extended: true, UUIDRepresentation: extjson.UUIDStandard}}
	rs := rowWith(t, opts, bson.D{{Key: "bin", Value: bson.Binary{Subtype: 0x04, Data: id[:]}}})
	got, err := rs.String(Label("bin"))
	if err != nil {
		t.Fatalf("String() error = %v", err)
	}
	if want := `{"$uuid":"01234567-89ab-cdef-0123-456789abcdef"}`; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestStringUsesRelaxedOrExtendedMode(t *testing.T) {
	relaxed := rowWith(t, Options{}, bson.D{{Key: "l", Value: int64(5)}})
	if got, _ := relaxed.String(Label("l")); got != "5" {
		t.Fatalf("relaxed String() = %q", got)
	}
	extended := rowWith(t, Options{Format: extjson.Options{Extended: true}}, bson.D{{Key: "l", Value: int64(5)}})
	if got, _ := extended.String(Label("l")); got != `{"$numberLong":"5"}` {
		t.Fatalf("extended String() = %q", got)
	}
}

func TestUnsupportedKindIsRejected(t *testing.T) {
	rs := cell(t, bson.DBPointer{DB: "db.coll", Pointer: bson.NewObjectID()})
	if _, err := rs.String(Label("v")); !errors.Is(err, sqlerr.ErrConversion) {
		t.Fatalf("String(dbPointer) error = %v", err)
	}
	if _, err := rs.Int64(Label("v")); !errors.Is(err, sqlerr.ErrNotSupported) {
		t.Fatalf("Int64(dbPointer) error = %v", err)
	}
}

func TestValueWrapsPolymorphicCell(t *testing.T) {
	rs := cell(t, bson.D{{Key: "x", Value: int32(1)}})
	v, err := rs.Value(Label("v"))
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v == nil || v.Type() != bson.TypeEmbeddedDocument {
		t.Fatalf("Value() = %#v", v)
	}
	if got := v.String(); got != `{"x":1}` {
		t.Fatalf("Value().String() = %q", got)
	}
}

func TestObjectFollowsColumnType(t *testing.T) {
	when := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	rs := rowWith(t, Options{}, bson.D{
		{Key: "v", Value: "poly"},
		{Key: "i", Value: int32(3)},
		{Key: "l", Value: int64(4)},
		{Key: "s", Value: "str"},
		{Key: "d", Value: 1.5},
		{Key: "dec", Value: mustDecimal128(t, "2.5")},
		{Key: "dt", Value: bson.NewDateTimeFromTime(when)},
		{Key: "bo", Value: true},
		{Key: "n", Value: nil},
		{Key: "bin", Value: bson.Binary{Subtype: 0x00, Data: []byte{9}}},
	})

	check := func(label string, want any) {
		t.Helper()
		got, err := rs.Object(Label(label))
		if err != nil {
			t.Fatalf("Object(%s) error = %v", label, err)
		}
		switch w := want.(type) {
		case decimal.Decimal:
			if d, ok := got.(decimal.Decimal); !ok || !d.Equal(w) {
				t.Fatalf("Object(%s) = %#v", label, got)
			}
		case time.Time:
			if tm, ok := got.(time.Time); !ok || !tm.Equal(w) {
				t.Fatalf("Object(%s) = %#v", label, got)
			}
		default:
			if got != want {
				t.Fatalf("Object(%s) = %#v, want %#v", label, got, want)
			}
		}
	}
	check("i", int32(3))
	check("l", int64(4))
	check("s", "str")
	check("d", 1.5)
	check("dec", decimal.RequireFromString("2.5"))
	check("dt", when)
	check("bo", true)
	check("n", nil)

	poly, err := rs.Object(Label("v"))
	if err != nil {
		t.Fatalf("Object(v) error = %v", err)
	}
	if value, ok := poly.(*extjson.Value); !ok || value.String() != "poly" {
		t.Fatalf("Object(v) = %#v", poly)
	}
	bin, err := rs.Object(Label("bin"))
	if err != nil {
		t.Fatalf("Object(bin) error = %v", err)
	}
	if b, ok := bin.([]byte); !ok || len(b) != 1 || b[0] != 9 {
		t.Fatalf("Object(bin) = %#v", bin)
	}
}

func TestObjectDecodesUUIDBinary(t *testing.T) {
	id := uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")
	opts := Options{Format: extjson.Options{UUIDRepresentation: extjson.UUIDStandard}}
	rs := rowWith(t, opts, bson.D{{Key: "bin", Value: bson.Binary{Subtype: 0x04, Data: id[:]}}})

	meta, err := rs.Metadata()
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	index, err := rs.FindColumn("bin")
	if err != nil {
		t.Fatalf("FindColumn() error = %v", err)
	}
	if typ, _ := meta.ColumnType(index); typ != typeinfo.Binary {
		t.Fatalf("ColumnType(bin) = %s", typ)
	}
	got, err := rs.Object(Label("bin"))
	if err != nil {
		t.Fatalf("Object() error = %v", err)
	}
	if got != id {
		t.Fatalf("Object() = %#v, want %s", got, id)
	}
}

func TestRawReturnsUndecodedCell(t *testing.T) {
	rs := cell(t, int32(12))
	raw, err := rs.Raw(Label("v"))
	if err != nil {
		t.Fatalf("Raw() error = %v", err)
	}
	if raw.Type != bson.TypeInt32 || raw.Int32() != 12 {
		t.Fatalf("Raw() = %v", raw)
	}
}
