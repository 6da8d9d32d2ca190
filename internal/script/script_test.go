package script

import "testing"

func TestValidateName(t *testing.T) {
	valid := []string{"a", "queue.push", "a.b.c", "_private.helper", "v2.sum_all"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "A.b", "a..b", ".a", "a.", "a b", "1a", "a.1b", "a-b"}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestHashSource(t *testing.T) {
	// SHA-256 of the empty string is a fixed, well-known digest.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashSource(""); got != empty {
		t.Errorf("HashSource(\"\") = %s, want %s", got, empty)
	}

	a := HashSource("RESULT = 1\n")
	b := HashSource("RESULT = 2\n")
	if a == b {
		t.Error("different sources hashed to the same value")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a != HashSource("RESULT = 1\n") {
		t.Error("hashing is not deterministic")
	}
}

func TestTaggedHash(t *testing.T) {
	h := HashSource("x = 1\n")
	tagged := TagHash(h)
	if tagged != "fn:"+h {
		t.Errorf("TagHash = %q, want fn: prefix", tagged)
	}

	got, err := ParseTaggedHash(tagged)
	if err != nil {
		t.Fatalf("ParseTaggedHash(%q): %v", tagged, err)
	}
	if got != h {
		t.Errorf("ParseTaggedHash = %q, want %q", got, h)
	}

	for _, bad := range []string{"", h, "fn:", "sha:" + h} {
		if _, err := ParseTaggedHash(bad); err == nil {
			t.Errorf("ParseTaggedHash(%q) = nil error, want failure", bad)
		}
	}
}

func TestSymbol(t *testing.T) {
	if got := Symbol("abc123"); got != "f_abc123" {
		t.Errorf("Symbol = %q, want f_abc123", got)
	}
}

func TestScriptTargets(t *testing.T) {
	s := &Script{
		CallSites: []CallSite{
			{Target: "b.first"},
			{Target: "c.second"},
			{Target: "b.first"},
		},
	}
	got := s.Targets()
	want := []string{"b.first", "c.second"}
	if len(got) != len(want) {
		t.Fatalf("Targets() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Targets()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
