package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		max   int
		want  string
	}{
		{name: "trims", in: "  Ana  ", max: 10, want: "Ana"},
		{name: "drops control characters", in: "Ana\x00 María\n", max: 0, want: "Ana María"},
		{name: "counts runes", in: "Ñandú Tours", max: 5, want: "Ñandú"},
		{name: "unbounded", in: "Hotel Mar", max: 0, want: "Hotel Mar"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeString(tc.in, tc.max); got != tc.want {
				t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}
