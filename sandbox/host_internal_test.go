package sandbox

import (
	"bytes"
	"strings"
	"testing"
)

func TestLookupJSONPath(t *testing.T) {
	doc := []byte(`{
		"name": "Alice",
		"age": 30,
		"score": 1.50,
		"active": true,
		"tags": ["a", "b", "c"],
		"address": {"city": "Berlin", "zip": null},
		"items": [{"id": 7}]
	}`)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "string_raw", path: "name", want: "Alice"},
		{name: "integer", path: "age", want: "30"},
		{name: "number_keeps_source_text", path: "score", want: "1.50"},
		{name: "bool", path: "active", want: "true"},
		{name: "null", path: "address.zip", want: "null"},
		{name: "nested_object", path: "address.city", want: "Berlin"},
		{name: "array_index", path: "tags.1", want: "b"},
		{name: "object_in_array", path: "items.0.id", want: "7"},
		{name: "missing_key", path: "missing", wantErr: true},
		{name: "index_out_of_range", path: "tags.9", wantErr: true},
		{name: "negative_index", path: "tags.-1", wantErr: true},
		{name: "non_numeric_index", path: "tags.x", wantErr: true},
		{name: "composite_result", path: "address", wantErr: true},
		{name: "descend_into_scalar", path: "name.x", wantErr: true},
		{name: "empty_path", path: "", wantErr: true},
		{name: "empty_segment", path: "address..city", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lookupJSONPath(doc, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("lookupJSONPath(%q) = %q, expected error", tt.path, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("lookupJSONPath(%q) failed: %v", tt.path, err)
			}
			if string(got) != tt.want {
				t.Errorf("lookupJSONPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestLookupJSONPathBadDocument(t *testing.T) {
	if _, err := lookupJSONPath([]byte(`{"a":`), "a"); err == nil {
		t.Error("truncated document accepted")
	}
	if _, err := lookupJSONPath([]byte(`{"a":1} extra`), "a"); err == nil {
		t.Error("trailing data accepted")
	}
	if _, err := lookupJSONPath(nil, "a"); err == nil {
		t.Error("empty document accepted")
	}
}

func TestLookupJSONPathScalarRoot(t *testing.T) {
	// A bare scalar document is valid JSON but any path descends into it.
	if _, err := lookupJSONPath([]byte(`42`), "x"); err == nil {
		t.Error("descent into scalar root accepted")
	}
}

func TestRandomFillDeterministic(t *testing.T) {
	mk := func(seed string) *Host {
		return NewHost(HostConfig{Seed: []byte(seed)})
	}

	a := make([]byte, 64)
	b := make([]byte, 64)
	mk("seed-1").randomFill(a)
	mk("seed-1").randomFill(b)
	if !bytes.Equal(a, b) {
		t.Error("same seed produced different streams")
	}

	c := make([]byte, 64)
	mk("seed-2").randomFill(c)
	if bytes.Equal(a, c) {
		t.Error("different seeds produced identical streams")
	}
}

func TestRandomFillStreamPositionCarries(t *testing.T) {
	whole := make([]byte, 80)
	mkWhole := NewHost(HostConfig{Seed: []byte("carry")})
	mkWhole.randomFill(whole)

	split := NewHost(HostConfig{Seed: []byte("carry")})
	first := make([]byte, 17)
	second := make([]byte, 63)
	split.randomFill(first)
	split.randomFill(second)

	if !bytes.Equal(whole, append(append([]byte(nil), first...), second...)) {
		t.Error("split reads diverge from one contiguous read")
	}
}

func TestRandomFillZeroLength(t *testing.T) {
	h := NewHost(HostConfig{Seed: []byte("zero")})
	h.randomFill(nil)
	if h.randCounter != 0 {
		t.Error("zero-length fill consumed stream blocks")
	}
}

func TestLogCallSequence(t *testing.T) {
	h := NewHost(HostConfig{Grant: NewGrant(CapHash)})
	h.logCall(CapHash, FuncHashCommit, "5 bytes")
	h.logCall(CapHash, FuncHashCommit, "9 bytes")
	if h.log[0].Sequence != 1 || h.log[1].Sequence != 2 {
		t.Errorf("sequences = %d, %d", h.log[0].Sequence, h.log[1].Sequence)
	}
	if !strings.Contains(h.log[0].Detail, "5 bytes") {
		t.Errorf("detail = %q", h.log[0].Detail)
	}
	if h.calls != 2 {
		t.Errorf("calls = %d, want 2", h.calls)
	}
}
