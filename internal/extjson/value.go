package extjson

import (
	"bytes"
	"encoding/json"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Value defers formatting of a polymorphic cell until it is rendered.
type Value struct {
	raw  bson.RawValue
	opts Options
}

func NewValue(raw bson.RawValue, opts Options) *Value {
	return &Value{raw: raw, opts: opts}
}

func (v *Value) Raw() bson.RawValue {
	return v.raw
}

func (v *Value) Type() bson.Type {
	return v.raw.Type
}

// Text returns the formatted value and false when the value has no text form.
func (v *Value) Text() (string, bool, error) {
	return Format(v.raw, v.opts)
}

func (v *Value) String() string {
	text, ok, err := v.Text()
	if err != nil || !ok {
		return ""
	}
	return text
}

// MarshalJSON emits the formatted text verbatim, quoting plain strings.
func (v *Value) MarshalJSON() ([]byte, error) {
	text, ok, err := v.Text()
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte("null"), nil
	}
	if v.raw.Type == bson.TypeString {
		return json.Marshal(text)
	}
	return []byte(text), nil
}

func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.raw.Type == other.raw.Type && bytes.Equal(v.raw.Value, other.raw.Value)
}
