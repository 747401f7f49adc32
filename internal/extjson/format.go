package extjson

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// UUIDRepresentation selects the byte order used to decode legacy (subtype 3) UUIDs.
type UUIDRepresentation string

const (
	UUIDUnspecified  UUIDRepresentation = "unspecified"
	UUIDStandard     UUIDRepresentation = "standard"
	UUIDJavaLegacy   UUIDRepresentation = "java_legacy"
	UUIDCSharpLegacy UUIDRepresentation = "csharp_legacy"
	UUIDPythonLegacy UUIDRepresentation = "python_legacy"
)

// ParseUUIDRepresentation accepts the lower-case names above; empty means unspecified.
func ParseUUIDRepresentation(raw string) (UUIDRepresentation, error) {
	switch rep := UUIDRepresentation(strings.ToLower(strings.TrimSpace(raw))); rep {
	case "":
		return UUIDUnspecified, nil
	case UUIDUnspecified, UUIDStandard, UUIDJavaLegacy, UUIDCSharpLegacy, UUIDPythonLegacy:
		return rep, nil
	default:
		return "", fmt.Errorf("unknown uuid representation %q", raw)
	}
}

// Options controls text rendering of document values.
type Options struct {
	// Extended selects canonical extended JSON; otherwise relaxed.
	Extended           bool
	UUIDRepresentation UUIDRepresentation
}

const (
	binarySubtypeUUIDLegacy   byte = 0x03
	binarySubtypeUUIDStandard byte = 0x04
)

// Format renders v as text. The boolean result is false for null and undefined
// values, which have no text form.
func Format(v bson.RawValue, opts Options) (string, bool, error) {
	switch v.Type {
	case 0, bson.TypeNull, bson.TypeUndefined:
		return "", false, nil
	case bson.TypeString:
		s, ok := v.StringValueOK()
		if !ok {
			return "", false, fmt.Errorf("malformed string value")
		}
		return s, true, nil
	case bson.TypeBinary:
		subtype, data, ok := v.BinaryOK()
		if !ok {
			return "", false, fmt.Errorf("malformed binary value")
		}
		if subtype == binarySubtypeUUIDStandard || subtype == binarySubtypeUUIDLegacy {
			if text, ok := formatUUID(subtype, data, opts.UUIDRepresentation); ok {
				return text, true, nil
			}
		}
	}
	text, err := marshalValue(v, opts.Extended)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// marshalValue wraps v in a single-field document because the writer only
// accepts documents at the top level, then strips the wrapper.
func marshalValue(v bson.RawValue, extended bool) (string, error) {
	out, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, extended, false)
	if err != nil {
		return "", fmt.Errorf("marshal extended json: %w", err)
	}
	const prefix = `{"v":`
	if !bytes.HasPrefix(out, []byte(prefix)) || !bytes.HasSuffix(out, []byte("}")) {
		return "", fmt.Errorf("unexpected extended json wrapper %q", out)
	}
	return string(out[len(prefix) : len(out)-1]), nil
}

func formatUUID(subtype byte, data []byte, rep UUIDRepresentation) (string, bool) {
	id, ok := DecodeUUID(subtype, data, rep)
	if !ok {
		return "", false
	}
	return fmt.Sprintf(`{"$uuid":"%s"}`, id.String()), true
}

// DecodeUUID decodes binary subtype 3 or 4 data using rep for the legacy byte
// order. It reports false when the data is not a UUID or a legacy UUID is read
// with the standard representation.
func DecodeUUID(subtype byte, data []byte, rep UUIDRepresentation) (uuid.UUID, bool) {
	if len(data) != 16 || (subtype != binarySubtypeUUIDStandard && subtype != binarySubtypeUUIDLegacy) {
		return uuid.Nil, false
	}
	buf := make([]byte, 16)
	copy(buf, data)
	if subtype == binarySubtypeUUIDLegacy {
		if rep == "" || rep == UUIDUnspecified {
			rep = UUIDPythonLegacy
		}
		switch rep {
		case UUIDStandard:
			return uuid.Nil, false
		case UUIDJavaLegacy:
			reverse(buf[0:8])
			reverse(buf[8:16])
		case UUIDCSharpLegacy:
			reverse(buf[0:4])
			reverse(buf[4:6])
			reverse(buf[6:8])
		}
	}
	id, err := uuid.FromBytes(buf)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
