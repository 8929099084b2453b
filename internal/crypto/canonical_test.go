package crypto

import (
	"encoding/json"
	"math"
	"testing"
)

func TestCanonicalizeOrdersAndStripsNulls(t *testing.T) {
	input := map[string]any{
		"b": "value",
		"a": 1,
		"c": nil,
		"d": map[string]any{
			"z": nil,
			"y": true,
		},
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := `{"a":1,"b":"value","d":{"y":true}}`
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeFloats(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{in: 1.25, want: "1.25"},
		{in: 3.0, want: "3"},
		{in: float32(0.5), want: "0.5"},
		{in: json.Number("42"), want: "42"},
		{in: json.Number("4.50"), want: "4.5"},
		{in: json.Number("1e3"), want: "1000"},
	}
	for _, tc := range cases {
		got, err := Canonicalize(tc.in)
		if err != nil {
			t.Fatalf("canonicalize %v: %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Fatalf("canonicalize %v: got %s want %s", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizeRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := Canonicalize(map[string]any{"x": v}); err != ErrNonFiniteNumber {
			t.Fatalf("expected ErrNonFiniteNumber for %v, got %v", v, err)
		}
	}
	if _, err := Canonicalize(json.Number("abc")); err != ErrInvalidNumber {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}
}

func TestCanonicalizeKeyOrderIndependent(t *testing.T) {
	first, err := CanonicalString(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	second, err := CanonicalString(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical output, got %s and %s", first, second)
	}
	if ChainHash("", []byte(first)) != ChainHash("", []byte(second)) {
		t.Fatalf("expected identical hashes")
	}
}

func TestCanonicalizeRawMessage(t *testing.T) {
	got, err := Canonicalize(json.RawMessage(`{"z":1,"a":{"c":null,"b":[2,1]}}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"a":{"b":[2,1]},"z":1}` {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}

func TestCanonicalizeNormalizesNFC(t *testing.T) {
	input := map[string]any{
		"text": "e\u0301",
	}

	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	want := "{\"text\":\"\u00e9\"}"
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n%s\nwant:\n%s", got, want)
	}
}

func TestCanonicalizeMapKeyCollision(t *testing.T) {
	input := map[string]any{
		"e\u0301": 1,
		"\u00e9":  2,
	}

	_, err := Canonicalize(input)
	if err != ErrKeyCollision {
		t.Fatalf("expected ErrKeyCollision, got %v", err)
	}
}

func TestCanonicalizeNonStringMapKey(t *testing.T) {
	input := map[int]any{1: "a"}
	_, err := Canonicalize(input)
	if err != ErrNonStringMapKey {
		t.Fatalf("expected ErrNonStringMapKey, got %v", err)
	}
}

func TestCanonicalizeUnsupportedType(t *testing.T) {
	type payload struct{ A int }

	_, err := Canonicalize(payload{A: 1})
	if err != ErrUnsupportedType {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestCanonicalizeSlices(t *testing.T) {
	input := []any{1, nil, "a"}
	got, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(got) != `[1,null,"a"]` {
		t.Fatalf("unexpected canonical json: %s", got)
	}

	var nilSlice []any
	got, err = Canonicalize(nilSlice)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	if string(got) != "null" {
		t.Fatalf("unexpected canonical json: %s", got)
	}
}
