package sqlerr

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{name: "index", err: &IndexError{Index: 3, Count: 2}, target: ErrInvalidInput},
		{name: "fetch size", err: &FetchSizeError{Size: -1}, target: ErrInvalidInput},
		{name: "ambiguous", err: &AmbiguousColumnError{Label: "x"}, target: ErrAmbiguousColumn},
		{name: "conversion", err: &ConversionError{From: "array", To: "boolean"}, target: ErrConversion},
		{name: "translator query", err: &TranslatorError{Message: "bad"}, target: ErrQueryInvalid},
		{name: "translator internal", err: &TranslatorError{Message: "boom", Internal: true}, target: ErrSerialization},
		{name: "invalid helper", err: Invalid("schema %q", "x"), target: ErrInvalidInput},
		{name: "unsupported helper", err: Unsupported("executeUpdate"), target: ErrNotSupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !errors.Is(wrapped, tc.target) {
				t.Fatalf("errors.Is(%v, %v) = false", wrapped, tc.target)
			}
		})
	}
}

func TestTranslatorErrorKindsAreDistinct(t *testing.T) {
	queryErr := &TranslatorError{Message: "no such table"}
	if errors.Is(queryErr, ErrSerialization) {
		t.Fatal("query error must not match ErrSerialization")
	}
	internalErr := &TranslatorError{Message: "decode", Internal: true}
	if errors.Is(internalErr, ErrQueryInvalid) {
		t.Fatal("internal error must not match ErrQueryInvalid")
	}
}

func TestConversionErrorUnwrapsParseFailure(t *testing.T) {
	_, parseErr := strconv.ParseInt("abc", 10, 64)
	err := &ConversionError{From: "string", To: "integral type", Err: parseErr}
	var numErr *strconv.NumError
	if !errors.As(err, &numErr) {
		t.Fatalf("errors.As(*strconv.NumError) = false for %v", err)
	}
}
