package calllog

import "testing"

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+91 98765-43210", "+919876543210"},
		{"  919876543210 ", "919876543210"},
		{"(0253) 235-1234", "02532351234"},
		{"+", ""},
		{"", ""},
		{"abc", ""},
		{"98+76", "9876"}, // "+" only kept in leading position
	}
	for _, c := range cases {
		if got := NormalizeNumber(c.in); got != c.want {
			t.Errorf("NormalizeNumber(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeNumberIdempotent(t *testing.T) {
	for _, in := range []string{"+91 98765-43210", "9876543210", ""} {
		once := NormalizeNumber(in)
		if twice := NormalizeNumber(once); twice != once {
			t.Errorf("NormalizeNumber not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestLastTenDigits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+919876543210", "9876543210"},
		{"919876543210", "9876543210"},
		{"9876543210", "9876543210"},
		{"12345", "12345"},
		{"", ""},
	}
	for _, c := range cases {
		if got := LastTenDigits(c.in); got != c.want {
			t.Errorf("LastTenDigits(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if got := LastTenDigits(LastTenDigits("+919876543210")); got != "9876543210" {
		t.Errorf("LastTenDigits not idempotent: got %q", got)
	}
}
