package slug

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane-doe"},
		{"  JANE--DOE  ", "jane-doe"},
		{"jane_doe.dev", "jane-doe-dev"},
		{"jané döe", "jan-de"},
		{"--lead-in--", "lead-in"},
		{"already-fine-7", "already-fine-7"},
		{"日本語のみ", ""},
		{"", ""},
	}

	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Jane Doe", "a--b", "x_y.z", "Ünicode Here"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid("jane-doe") {
		t.Error("jane-doe should be valid")
	}
	if IsValid("Jane-Doe") {
		t.Error("uppercase slug should be invalid")
	}
	if IsValid("") {
		t.Error("empty slug should be invalid")
	}
}
