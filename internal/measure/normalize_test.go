package measure

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"shoulder_width", "shoulder_width"},
		{"Shoulder Width", "shoulder_width"},
		{"shoulder-width", "shoulder_width"},
		{"  Waist  ", "waist"},
		{"délka paže", "delka_paze"},
		{"OBVOD PASU", "obvod_pasu"},
	}

	for _, tc := range tests {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
