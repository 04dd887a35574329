package canonjson

import "testing"

func TestCanonicalizeOrdersKeys(t *testing.T) {
	in := []byte(`{ "b":2, "a":1 }`)
	want := `{"a":1,"b":2}`
	out, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("canonicalize error: %v", err)
	}
	if string(out) != want {
		t.Fatalf("unexpected canonical form: %s", string(out))
	}
}

func TestDigestStableAcrossKeyOrder(t *testing.T) {
	a, err := Digest([]byte(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	b, err := Digest([]byte(`{ "b":2, "a":1 }`))
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	if a != b {
		t.Fatal("expected same digest for equivalent JSON")
	}
}

func TestCanonicalizeInvalidJSON(t *testing.T) {
	if _, err := Canonicalize([]byte(`{`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
