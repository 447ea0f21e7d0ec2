package signin

import "testing"

func TestNormalizeAddress(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"100 Main St", "100 Main St"},
		{"  100 Main St  ", "100 Main St"},
		{"100   Main\tSt", "100 Main St"},
		{"12/B Oak St", "12-B Oak St"},
		{`12\B Oak St`, "12-B Oak St"},
		{"Unit [4]: Lot *7?", "Unit -4-- Lot -7-"},
		{"Cafe\u0301 Row", "Caf\u00e9 Row"},
		{"", ""},
	} {
		if got := NormalizeAddress(tc.in); got != tc.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeAddressIdempotent(t *testing.T) {
	for _, in := range []string{" 12/B  Oak St ", "Café Row", "a:b"} {
		once := NormalizeAddress(in)
		if twice := NormalizeAddress(once); twice != once {
			t.Errorf("NormalizeAddress not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
