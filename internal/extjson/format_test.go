package extjson

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func rawOf(t *testing.T, v any) bson.RawValue {
	t.Helper()
	doc, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
	if err != nil {
		t.Fatalf("bson.Marshal() error = %v", err)
	}
	return bson.Raw(doc).Lookup("v")
}

func TestFormatScalarsStripWrapper(t *testing.T) {
	cases := []struct {
		name     string
		value    any
		extended bool
		want     string
	}{
		{name: "int32 relaxed", value: int32(5), want: "5"},
		{name: "int32 extended", value: int32(5), extended: true, want: `{"$numberInt":"5"}`},
		{name: "int64 relaxed", value: int64(7), want: "7"},
		{name: "int64 extended", value: int64(7), extended: true, want: `{"$numberLong":"7"}`},
		{name: "double relaxed", value: 1.5, want: "1.5"},
		{name: "double extended", value: 1.5, extended: true, want: `{"$numberDouble":"1.5"}`},
		{name: "bool", value: true, want: "true"},
		{name: "bool extended", value: false, extended: true, want: "false"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := Format(rawOf(t, tc.value), Options{Extended: tc.extended})
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if !ok {
				t.Fatal("Format() reported null")
			}
			if got != tc.want {
				t.Fatalf("Format() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatNullAndUndefined(t *testing.T) {
	for _, raw := range []bson.RawValue{rawOf(t, nil), rawOf(t, bson.Undefined{}), {}} {
		got, ok, err := Format(raw, Options{})
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		if ok || got != "" {
			t.Fatalf("Format(%s) = %q/%v, want null", raw.Type, got, ok)
		}
	}
}

func TestFormatStringIsUnquoted(t *testing.T) {
	got, ok, err := Format(rawOf(t, `he said "hi"`), Options{Extended: true})
	if err != nil || !ok {
		t.Fatalf("Format() = %q/%v/%v", got, ok, err)
	}
	if got != `he said "hi"` {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatStandardUUID(t *testing.T) {
	id := uuid.MustParse("f81d4fae-7dec-11d0-a765-00a0c91e6bf6")
	raw := rawOf(t, bson.Binary{Subtype: 0x04, Data: id[:]})
	got, _, err := Format(raw, Options{Extended: true})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := `{"$uuid":"f81d4fae-7dec-11d0-a765-00a0c91e6bf6"}`
	if got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}

func TestFormatLegacyUUIDRepresentations(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	cases := []struct {
		rep  UUIDRepresentation
		data []byte
	}{
		{rep: UUIDUnspecified, data: id[:]},
		{rep: UUIDPythonLegacy, data: id[:]},
		{rep: UUIDJavaLegacy, data: []byte{
			0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, 0x00,
			0xff, 0xee, 0xdd, 0xcc, 0xbb, 0xaa, 0x99, 0x88,
		}},
		{rep: UUIDCSharpLegacy, data: []byte{
			0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66,
			0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
		}},
	}
	want := `{"$uuid":"00112233-4455-6677-8899-aabbccddeeff"}`
	for _, tc := range cases {
		t.Run(string(tc.rep), func(t *testing.T) {
			raw := rawOf(t, bson.Binary{Subtype: 0x03, Data: tc.data})
			got, _, err := Format(raw, Options{UUIDRepresentation: tc.rep})
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if got != want {
				t.Fatalf("Format() = %q, want %q", got, want)
			}
		})
	}
}

func TestFormatLegacyUUIDAsStandardFallsBack(t *testing.T) {
	id := uuid.New()
	raw := rawOf(t, bson.Binary{Subtype: 0x03, Data: id[:]})
	got, ok, err := Format(raw, Options{Extended: true, UUIDRepresentation: UUIDStandard})
	if err != nil || !ok {
		t.Fatalf("Format() = %q/%v/%v", got, ok, err)
	}
	if !strings.HasPrefix(got, `{"$binary":`) {
		t.Fatalf("Format() = %q, want generic binary encoding", got)
	}
}

func TestFormatShortUUIDFallsBack(t *testing.T) {
	raw := rawOf(t, bson.Binary{Subtype: 0x04, Data: []byte{1, 2, 3}})
	got, _, err := Format(raw, Options{Extended: true})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.HasPrefix(got, `{"$binary":`) {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatCompositeKinds(t *testing.T) {
	oid := bson.NewObjectID()
	dec, err := bson.ParseDecimal128("15")
	if err != nil {
		t.Fatalf("ParseDecimal128() error = %v", err)
	}
	cases := []struct {
		name   string
		value  any
		prefix string
	}{
		{name: "document", value: bson.D{{Key: "a", Value: int32(1)}}, prefix: `{"a":1}`},
		{name: "array", value: bson.A{int32(1), "x"}, prefix: `[1,"x"]`},
		{name: "object id", value: oid, prefix: `{"$oid":"` + oid.Hex() + `"}`},
		{name: "date", value: bson.NewDateTimeFromTime(time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)), prefix: `{"$date":`},
		{name: "decimal", value: dec, prefix: `{"$numberDecimal":"15"}`},
		{name: "regex", value: bson.Regex{Pattern: "^a", Options: "i"}, prefix: `{"$regularExpression":`},
		{name: "timestamp", value: bson.Timestamp{T: 10, I: 1}, prefix: `{"$timestamp":`},
		{name: "binary", value: bson.Binary{Subtype: 0x00, Data: []byte("hi")}, prefix: `{"$binary":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := Format(rawOf(t, tc.value), Options{})
			if err != nil || !ok {
				t.Fatalf("Format() = %q/%v/%v", got, ok, err)
			}
			if !strings.HasPrefix(got, tc.prefix) {
				t.Fatalf("Format() = %q, want prefix %q", got, tc.prefix)
			}
		})
	}
}

func TestParseUUIDRepresentation(t *testing.T) {
	rep, err := ParseUUIDRepresentation(" Java_Legacy ")
	if err != nil {
		t.Fatalf("ParseUUIDRepresentation() error = %v", err)
	}
	if rep != UUIDJavaLegacy {
		t.Fatalf("rep = %q", rep)
	}
	if _, err := ParseUUIDRepresentation("go_legacy"); err == nil {
		t.Fatal("expected error for unknown representation")
	}
}

func TestValueDefersFormatting(t *testing.T) {
	v := NewValue(rawOf(t, int64(3)), Options{Extended: true})
	if v.Type() != bson.TypeInt64 {
		t.Fatalf("Type() = %s", v.Type())
	}
	if got := v.String(); got != `{"$numberLong":"3"}` {
		t.Fatalf("String() = %q", got)
	}
	encoded, err := json.Marshal(map[string]any{"a": v, "b": NewValue(rawOf(t, "x"), Options{})})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(encoded) != `{"a":{"$numberLong":"3"},"b":"x"}` {
		t.Fatalf("json = %s", encoded)
	}
	if !v.Equal(NewValue(rawOf(t, int64(3)), Options{})) {
		t.Fatal("Equal() = false for same raw value")
	}
}
