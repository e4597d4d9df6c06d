package canonicalize

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	expected := `{"a":1,"b":2,"c":3}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_ArrayOrderPreserved(t *testing.T) {
	// Array order is semantic (input_refs); only object keys are sorted.
	input := map[string]interface{}{
		"refs": []string{"ref-b", "ref-a", "ref-b"},
	}

	expected := `{"refs":["ref-b","ref-a","ref-b"]}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	// Standard encoding/json produces < escapes; RFC 8785 forbids them.
	expected := `{"html":"<script>alert('xss')</script> &"}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NullPreserved(t *testing.T) {
	input := map[string]interface{}{
		"previous_pdo_id": nil,
		"correlation_id":  nil,
	}

	expected := `{"correlation_id":null,"previous_pdo_id":null}`

	b, err := JCS(input)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalHash_Stability(t *testing.T) {
	// Two inputs that are semantically identical but constructed differently
	v1 := map[string]interface{}{"a": 1, "b": 2}

	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	v2 := S{A: 1, B: 2}

	h1, err := CanonicalHash(v1)
	if err != nil {
		t.Fatal(err)
	}

	h2, err := CanonicalHash(v2)
	if err != nil {
		t.Fatal(err)
	}

	if h1 != h2 {
		t.Errorf("Hash mismatch for semantically identical inputs: %s != %s", h1, h2)
	}
}

func TestJCS_NumberTypes(t *testing.T) {
	input := map[string]interface{}{
		"num": json.Number("123.456"),
	}
	expected := `{"num":123.456}`

	b, err := JCS(input)
	if err != nil {
		t.Fatal(err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestFormatTime_FixedWidth(t *testing.T) {
	// Fractional seconds ending in zero must not be trimmed.
	ts := time.Date(2025, 1, 2, 3, 4, 5, 120000000, time.UTC)
	got := FormatTime(ts)
	want := "2025-01-02T03:04:05.120000000Z"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestFormatTime_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, loc)
	got := FormatTime(ts)
	want := "2025-06-01T11:00:00.000000000Z"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestParseTime_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 891011121, time.UTC)
	parsed, err := ParseTime(FormatTime(ts))
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(ts) {
		t.Errorf("Round trip lost precision: %v != %v", parsed, ts)
	}
}

func TestHashBytes_LowercaseHex(t *testing.T) {
	h := HashBytes([]byte("proofpack"))
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("non-lowercase-hex character %q in hash", c)
		}
	}
}

func TestHashPrefix(t *testing.T) {
	h := HashBytes([]byte("x"))
	if got := HashPrefix(h); got != h[:16] {
		t.Errorf("Expected %s, got %s", h[:16], got)
	}
	if got := HashPrefix("abc"); got != "abc" {
		t.Errorf("short input should pass through, got %s", got)
	}
}

func TestJCSString_IsReachable(t *testing.T) {
	s, err := JCSString(map[string]int{"b": 2, "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if s == "" {
		t.Fatal("expected non-empty string")
	}
}
